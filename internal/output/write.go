// Package output writes finished artifacts to the output tree.
package output

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/renameio/v2"
)

// MaxNameBytes is the longest file name, in UTF-8 bytes, accepted for a
// passively combined track.
const MaxNameBytes = 256

// NameFits reports whether name is short enough to be written.
func NameFits(name string) bool {
	return len(name) <= MaxNameBytes
}

// WriteFile atomically replaces path with data, creating the parent directory
// when needed. Readers never observe a partially written artifact.
func WriteFile(path string, data []byte) (err error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create output dir for %s: %w", path, err)
	}

	pendingFile, err := renameio.NewPendingFile(path, renameio.WithPermissions(0o644))
	if err != nil {
		return fmt.Errorf("create pending file %s: %w", path, err)
	}
	defer func() {
		// Cleanup is a no-op once the file has been committed.
		if cleanupErr := pendingFile.Cleanup(); cleanupErr != nil && err == nil {
			err = fmt.Errorf("cleanup pending file %s: %w", path, cleanupErr)
		}
	}()

	if _, err := pendingFile.Write(data); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := pendingFile.CloseAtomicallyReplace(); err != nil {
		return fmt.Errorf("atomically replace %s: %w", path, err)
	}
	return nil
}
