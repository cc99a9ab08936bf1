package storage

import (
	"fmt"
	"io"
	"os"
)

const tempSuffix = ".tmp"

// WriteFileAtomic writes through a temporary file next to dest and renames it
// into place once fill succeeds. On any error the temporary file is removed
// and dest is left untouched.
func WriteFileAtomic(dest string, fill func(w io.Writer) (int64, error)) (int64, error) {
	tempFile := dest + tempSuffix
	out, err := os.Create(tempFile)
	if err != nil {
		return 0, fmt.Errorf("failed to create temporary file: %w", err)
	}

	n, err := fill(out)
	if err != nil {
		out.Close()
		os.Remove(tempFile)
		return n, err
	}

	if err := out.Sync(); err != nil {
		out.Close()
		os.Remove(tempFile)
		return n, fmt.Errorf("failed to sync file: %w", err)
	}

	if err := out.Close(); err != nil {
		os.Remove(tempFile)
		return n, fmt.Errorf("failed to close file: %w", err)
	}

	if err := os.Rename(tempFile, dest); err != nil {
		os.Remove(tempFile)
		return n, fmt.Errorf("failed to rename temporary file: %w", err)
	}

	return n, nil
}
