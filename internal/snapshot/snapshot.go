// Package snapshot reads and writes golden screen files.
//
// A snapshot file holds the canonical screen text followed by a single
// newline. An empty screen is stored as an empty file.
package snapshot

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/timvw/testty/internal/model"
)

// Name returns the file name of the n-th recorded snapshot.
func Name(n int) string {
	return fmt.Sprintf("snapshot%03d.txt", n)
}

// Encode returns the file content for a screen text.
func Encode(text string) []byte {
	if text == "" {
		return nil
	}
	return []byte(text + "\n")
}

// Decode returns the screen text stored in a snapshot file. Exactly one
// trailing newline is removed, so files written without one compare as-is.
func Decode(data []byte) string {
	return strings.TrimSuffix(string(data), "\n")
}

// Write stores text as dir/name.
func Write(dir, name, text string) error {
	path := filepath.Join(dir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("snapshot: create directory: %w", err)
	}
	if err := os.WriteFile(path, Encode(text), 0o644); err != nil {
		return fmt.Errorf("snapshot: write %s: %w", path, err)
	}
	return nil
}

// Load reads the screen text stored in dir/name.
func Load(dir, name string) (string, error) {
	data, err := os.ReadFile(filepath.Join(dir, name))
	if err != nil {
		return "", err
	}
	return Decode(data), nil
}

// Check compares the rendered screen against dir/name. A missing or
// unreadable file is a failed expectation, never an error.
func Check(dir, name, actual string) model.ExpectationResult {
	res := model.ExpectationResult{Snapshot: name, Actual: actual}
	expected, err := Load(dir, name)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			res.Error = fmt.Sprintf("snapshot file not found: %s", filepath.Join(dir, name))
		} else {
			res.Error = err.Error()
		}
		return res
	}
	res.Expected = expected
	res.Passed = expected == actual
	return res
}

// Update writes actual as the new golden content for dir/name and reports
// a passed expectation.
func Update(dir, name, actual string) (model.ExpectationResult, error) {
	if err := Write(dir, name, actual); err != nil {
		return model.ExpectationResult{Snapshot: name, Actual: actual, Error: err.Error()}, err
	}
	return model.ExpectationResult{Snapshot: name, Actual: actual, Expected: actual, Passed: true}, nil
}
