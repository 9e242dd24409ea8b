// Package artifact persists trained pipeline state (scaler parameters, model,
// realtime cursor) as JSON files.
package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// ErrMissing reports that a required artifact file does not exist.
var ErrMissing = errors.New("missing artifact")

// Load decodes the JSON artifact at path into v.
//
// A file that does not exist yields an error wrapping ErrMissing and naming
// the path, so callers can tell "never trained" apart from a corrupt file.
//
// Args:
//   - path: Path to the artifact file
//   - v: Pointer to decode into
//
// Returns:
//   - Error if the file is missing, unreadable or not valid JSON
func Load(path string, v interface{}) error {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrMissing, path)
		}
		return fmt.Errorf("open artifact: %w", err)
	}
	defer f.Close()

	if err := json.NewDecoder(f).Decode(v); err != nil {
		return fmt.Errorf("decode artifact %s: %w", path, err)
	}
	return nil
}

// Save writes v atomically using a temp file + rename.
//
// The process:
// 1. Write to a temporary file (path.tmp)
// 2. Close the temporary file
// 3. Atomically rename the temporary file to the final path
//
// Either the previous artifact survives or the new one is completely
// written. Missing parent directories are created.
func Save(path string, v interface{}) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create artifact dir: %w", err)
		}
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("create temp artifact: %w", err)
	}

	enc := json.NewEncoder(f)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		f.Close()
		os.Remove(tmp)
		return fmt.Errorf("encode artifact: %w", err)
	}

	if err := f.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("close temp artifact: %w", err)
	}
	return os.Rename(tmp, path)
}
