package vault

import (
	"fmt"

	"github.com/mfujita/kabuto/internal/store"
)

// Secrets is the store-backed keyring for provider credentials. Values
// are sealed with the vault key before they reach sqlite.
type Secrets struct {
	vault *Vault
	store *store.Store
}

func NewSecrets(passphrase string, s *store.Store) *Secrets {
	return &Secrets{vault: New(passphrase), store: s}
}

func (s *Secrets) Set(name, value string) error {
	ciphertext, nonce, err := s.vault.Encrypt([]byte(value))
	if err != nil {
		return fmt.Errorf("seal secret %s: %w", name, err)
	}
	return s.store.SaveSecret(&store.Secret{Name: name, Value: ciphertext, Nonce: nonce})
}

func (s *Secrets) Get(name string) (string, error) {
	sec, err := s.store.GetSecret(name)
	if err != nil {
		return "", err
	}
	if sec == nil {
		return "", fmt.Errorf("secret %q not found", name)
	}
	plaintext, err := s.vault.Decrypt(sec.Value, sec.Nonce)
	if err != nil {
		return "", fmt.Errorf("unseal secret %s: %w", name, err)
	}
	return string(plaintext), nil
}

func (s *Secrets) List() ([]string, error) {
	secrets, err := s.store.ListSecrets()
	if err != nil {
		return nil, err
	}
	names := make([]string, 0, len(secrets))
	for _, sec := range secrets {
		names = append(names, sec.Name)
	}
	return names, nil
}

func (s *Secrets) Delete(name string) error {
	return s.store.DeleteSecret(name)
}
