package main

import (
	"archive/tar"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/mfujita/kabuto/internal/config"
	"github.com/mfujita/kabuto/internal/store"
)

// Archives hold one directory per run under this prefix, with run.json
// holding the run row and messages.json its conversation.
const archivePrefix = "runs"

func runExport(args []string) error {
	var outputPath string
	var runIDs []string

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-f":
			if i+1 >= len(args) {
				return fmt.Errorf("missing value for -f")
			}
			i++
			outputPath = args[i]
		case "-run":
			if i+1 >= len(args) {
				return fmt.Errorf("missing value for -run")
			}
			i++
			runIDs = append(runIDs, args[i])
		}
	}

	if outputPath == "" {
		fmt.Fprintf(os.Stderr, "Usage: kabuto export -f <output.tar.zst> [-run <id>]...\n")
		return fmt.Errorf("missing -f flag")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := store.New(cfg.Store)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	count, err := exportRuns(db, runIDs, outputPath)
	if err != nil {
		return err
	}

	info, _ := os.Stat(outputPath)
	size := int64(0)
	if info != nil {
		size = info.Size()
	}
	fmt.Printf("Export complete: %d runs, %s\n", count, formatSize(size))
	return nil
}

// exportRuns writes the selected runs (all when runIDs is empty) to a
// zstd-compressed tar archive.
func exportRuns(db *store.Store, runIDs []string, outputPath string) (int, error) {
	var runs []store.ResearchRun
	if len(runIDs) == 0 {
		all, err := db.ListResearchRuns()
		if err != nil {
			return 0, fmt.Errorf("list runs: %w", err)
		}
		runs = all
	} else {
		for _, id := range runIDs {
			run, err := db.GetResearchRun(id)
			if err != nil {
				return 0, fmt.Errorf("load run %s: %w", id, err)
			}
			if run == nil {
				return 0, fmt.Errorf("run %s not found", id)
			}
			runs = append(runs, *run)
		}
	}

	if len(runs) == 0 {
		slog.Warn("no research runs found, creating empty archive")
	}

	f, err := os.Create(outputPath)
	if err != nil {
		return 0, fmt.Errorf("create output file: %w", err)
	}
	defer f.Close()

	zw, err := zstd.NewWriter(f)
	if err != nil {
		return 0, fmt.Errorf("create zstd writer: %w", err)
	}
	defer zw.Close()

	tw := tar.NewWriter(zw)
	defer tw.Close()

	for _, run := range runs {
		slog.Info("exporting run", "id", run.ID, "status", run.Status)
		if err := writeRunEntries(db, tw, run); err != nil {
			return 0, fmt.Errorf("export run %s: %w", run.ID, err)
		}
	}

	// Close everything explicitly to catch write errors
	if err := tw.Close(); err != nil {
		return 0, fmt.Errorf("close tar: %w", err)
	}
	if err := zw.Close(); err != nil {
		return 0, fmt.Errorf("close zstd: %w", err)
	}
	if err := f.Close(); err != nil {
		return 0, fmt.Errorf("close file: %w", err)
	}
	return len(runs), nil
}

func writeRunEntries(db *store.Store, tw *tar.Writer, run store.ResearchRun) error {
	messages, err := db.GetMessages(run.ID, 10000)
	if err != nil {
		return fmt.Errorf("load messages: %w", err)
	}
	if messages == nil {
		messages = []store.Message{}
	}

	if err := writeJSONEntry(tw, path.Join(archivePrefix, run.ID, "run.json"), run); err != nil {
		return err
	}
	return writeJSONEntry(tw, path.Join(archivePrefix, run.ID, "messages.json"), messages)
}

func writeJSONEntry(tw *tar.Writer, name string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal %s: %w", name, err)
	}
	hdr := &tar.Header{Name: name, Mode: 0644, Size: int64(len(data))}
	if err := tw.WriteHeader(hdr); err != nil {
		return fmt.Errorf("write tar header: %w", err)
	}
	if _, err := tw.Write(data); err != nil {
		return fmt.Errorf("write tar data: %w", err)
	}
	return nil
}

func runImport(args []string) error {
	var inputPath string
	overwrite := false

	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "-f":
			if i+1 >= len(args) {
				return fmt.Errorf("missing value for -f")
			}
			i++
			inputPath = args[i]
		case "-overwrite":
			overwrite = true
		}
	}

	if inputPath == "" {
		fmt.Fprintf(os.Stderr, "Usage: kabuto import -f <archive.tar.zst> [-overwrite]\n")
		return fmt.Errorf("missing -f flag")
	}

	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	db, err := store.New(cfg.Store)
	if err != nil {
		return fmt.Errorf("open store: %w", err)
	}
	defer db.Close()

	count, err := importRuns(db, inputPath, overwrite)
	if err != nil {
		return err
	}
	fmt.Printf("Import complete: %d runs\n", count)
	return nil
}

// importRuns restores runs from an archive. Without overwrite it
// refuses to touch runs that already exist in the store.
func importRuns(db *store.Store, inputPath string, overwrite bool) (int, error) {
	runIDs, err := scanArchiveRuns(inputPath)
	if err != nil {
		return 0, fmt.Errorf("scan archive: %w", err)
	}
	if len(runIDs) == 0 {
		fmt.Println("Archive contains no runs.")
		return 0, nil
	}

	if !overwrite {
		for _, id := range runIDs {
			existing, err := db.GetResearchRun(id)
			if err != nil {
				return 0, fmt.Errorf("check run %s: %w", id, err)
			}
			if existing != nil {
				return 0, fmt.Errorf("run %s already exists, add -overwrite to replace it", id)
			}
		}
	}

	f, err := os.Open(inputPath)
	if err != nil {
		return 0, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return 0, fmt.Errorf("create zstd reader: %w", err)
	}
	defer zr.Close()

	tr := tar.NewReader(zr)
	restored := make(map[string]bool)

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return 0, fmt.Errorf("read tar entry: %w", err)
		}

		runID, relPath := splitRunPath(hdr.Name)
		if runID == "" {
			continue
		}

		data, err := io.ReadAll(tr)
		if err != nil {
			return 0, fmt.Errorf("read %s: %w", hdr.Name, err)
		}

		switch relPath {
		case "run.json":
			var run store.ResearchRun
			if err := json.Unmarshal(data, &run); err != nil {
				return 0, fmt.Errorf("parse %s: %w", hdr.Name, err)
			}
			if err := db.SaveResearchRun(&run); err != nil {
				return 0, err
			}
			restored[runID] = true
			slog.Info("imported run", "id", run.ID, "status", run.Status)
		case "messages.json":
			var messages []store.Message
			if err := json.Unmarshal(data, &messages); err != nil {
				return 0, fmt.Errorf("parse %s: %w", hdr.Name, err)
			}
			for i := range messages {
				msg := messages[i]
				msg.ID = 0
				if err := db.SaveMessage(&msg); err != nil {
					return 0, err
				}
			}
		}
	}

	return len(restored), nil
}

// scanArchiveRuns reads tar headers to collect unique run IDs without
// extracting file data.
func scanArchiveRuns(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	zr, err := zstd.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer zr.Close()

	tr := tar.NewReader(zr)

	seen := make(map[string]bool)
	var ids []string

	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}

		runID, _ := splitRunPath(hdr.Name)
		if runID != "" && !seen[runID] {
			seen[runID] = true
			ids = append(ids, runID)
		}
	}

	return ids, nil
}

// splitRunPath splits "runs/<id>/run.json" into ("<id>", "run.json").
// Returns an empty run ID for paths outside the runs directory.
func splitRunPath(name string) (runID, relPath string) {
	name = strings.TrimLeft(name, "./")
	if !strings.HasPrefix(name, archivePrefix+"/") {
		return "", ""
	}
	rest := name[len(archivePrefix)+1:]

	idx := strings.IndexByte(rest, '/')
	if idx < 0 {
		// Directory entry like "runs/<id>"
		if rest == "" {
			return "", ""
		}
		return rest, "./"
	}

	runID = rest[:idx]
	relPath = rest[idx+1:]
	if runID == "" {
		return "", ""
	}
	if relPath == "" {
		relPath = "./"
	}
	return runID, relPath
}

func formatSize(bytes int64) string {
	const unit = 1024
	if bytes < unit {
		return fmt.Sprintf("%d bytes", bytes)
	}
	div, exp := int64(unit), 0
	for n := bytes / unit; n >= unit; n /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %cB", float64(bytes)/float64(div), "KMGTPE"[exp])
}
