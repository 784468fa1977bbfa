package sandbox

import (
	"fmt"
	"os"
	"path/filepath"
)

// materializeWorkspace writes filename and every entry of files into
// dir, creating parent directories as needed.
func materializeWorkspace(dir, filename string, code []byte, files map[string][]byte) error {
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return fmt.Errorf("create workspace: %w", err)
	}

	if err := writeWorkspaceFile(dir, filename, code); err != nil {
		return err
	}
	for path, content := range files {
		if err := writeWorkspaceFile(dir, path, content); err != nil {
			return err
		}
	}
	return nil
}

func writeWorkspaceFile(dir, relPath string, content []byte) error {
	full := filepath.Join(dir, relPath)
	if err := os.MkdirAll(filepath.Dir(full), 0o700); err != nil {
		return fmt.Errorf("create parent directory for %s: %w", relPath, err)
	}
	if err := os.WriteFile(full, content, 0o600); err != nil {
		return fmt.Errorf("write workspace file %s: %w", relPath, err)
	}
	return nil
}

// collectOutputFiles walks dir and returns every file whose path is not
// among inputs, read into memory. These are the job's output artifacts.
func collectOutputFiles(dir string, inputs map[string]struct{}) (map[string][]byte, error) {
	out := make(map[string][]byte)

	err := filepath.Walk(dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if _, isInput := inputs[rel]; isInput {
			return nil
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("read output file %s: %w", rel, err)
		}
		out[rel] = data
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk workspace: %w", err)
	}
	return out, nil
}

// inputSet builds the set of relative paths that were seeded into the
// workspace, so collectOutputFiles can tell a job's own inputs apart
// from whatever the container wrote.
func inputSet(filename string, files map[string][]byte) map[string]struct{} {
	set := make(map[string]struct{}, len(files)+1)
	set[filename] = struct{}{}
	for path := range files {
		set[path] = struct{}{}
	}
	return set
}
