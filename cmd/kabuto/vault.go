package main

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/mfujita/kabuto/internal/config"
	"github.com/mfujita/kabuto/internal/store"
	"github.com/mfujita/kabuto/internal/vault"
)

func runVault(args []string) error {
	if len(args) == 0 {
		printVaultUsage()
		return nil
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Vault.Passphrase == "" {
		return fmt.Errorf("KABUTO_VAULT_PASSPHRASE environment variable is required")
	}

	db, err := store.New(cfg.Store)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	secrets := vault.NewSecrets(cfg.Vault.Passphrase, db)

	switch args[0] {
	case "list":
		return vaultList(db)
	case "set":
		return vaultSet(secrets, args[1:])
	case "get":
		return vaultGet(secrets, args[1:])
	case "delete":
		return vaultDelete(secrets, args[1:])
	default:
		printVaultUsage()
		return fmt.Errorf("unknown vault command: %s", args[0])
	}
}

func printVaultUsage() {
	fmt.Fprintf(os.Stderr, `Usage: kabuto vault <command>

Commands:
  list                         List all secrets (metadata only)
  set <name> --value <str>     Store a secret from the command line
  set <name> --file <path>     Store a secret read from a file
  get <name>                   Retrieve and decrypt a secret
  delete <name>                Delete a secret

Environment:
  KABUTO_VAULT_PASSPHRASE      Required. Encryption passphrase.
`)
}

func vaultList(db *store.Store) error {
	secrets, err := db.ListSecrets()
	if err != nil {
		return err
	}
	if len(secrets) == 0 {
		fmt.Println("No secrets stored.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NAME\tCREATED\tUPDATED")
	for _, s := range secrets {
		fmt.Fprintf(w, "%s\t%s\t%s\n", s.Name,
			s.CreatedAt.Format("2006-01-02 15:04"),
			s.UpdatedAt.Format("2006-01-02 15:04"))
	}
	return w.Flush()
}

func vaultSet(secrets *vault.Secrets, args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: kabuto vault set <name> --value <string> | --file <path>")
	}

	name := args[0]
	var value string

	switch args[1] {
	case "--value":
		value = args[2]
	case "--file":
		data, err := os.ReadFile(args[2])
		if err != nil {
			return fmt.Errorf("read file: %w", err)
		}
		value = string(data)
	default:
		return fmt.Errorf("expected --value or --file, got %s", args[1])
	}

	if err := secrets.Set(name, value); err != nil {
		return err
	}
	fmt.Printf("Secret %q saved\n", name)
	return nil
}

func vaultGet(secrets *vault.Secrets, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: kabuto vault get <name>")
	}
	value, err := secrets.Get(args[0])
	if err != nil {
		return err
	}
	fmt.Print(value)
	return nil
}

func vaultDelete(secrets *vault.Secrets, args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: kabuto vault delete <name>")
	}
	if err := secrets.Delete(args[0]); err != nil {
		return err
	}
	fmt.Printf("Secret %q deleted\n", args[0])
	return nil
}
