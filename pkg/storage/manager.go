package storage

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// ManifestFile is the name of the manifest written into a completed run directory
const ManifestFile = "manifest.json"

// Run is the output directory owned by one pipeline invocation
type Run struct {
	root      string
	name      string
	dir       string
	mediaType string
}

// NewRun creates <root>/<mediaType>_<uuid>. The uuid keeps concurrent runs
// from sharing a directory.
func NewRun(root, mediaType string) (*Run, error) {
	if mediaType == "" || strings.ContainsAny(mediaType, `/\`) {
		return nil, fmt.Errorf("invalid media type %q", mediaType)
	}
	name := fmt.Sprintf("%s_%s", mediaType, uuid.NewString())
	dir := filepath.Join(root, name)

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create run directory: %w", err)
	}

	return &Run{
		root:      root,
		name:      name,
		dir:       dir,
		mediaType: mediaType,
	}, nil
}

// Dir returns the run directory path
func (r *Run) Dir() string {
	return r.dir
}

// Name returns the directory name, <type>_<uuid>
func (r *Run) Name() string {
	return r.name
}

// MediaFilename returns media_<index>.<ext>. Index is 1-based.
func MediaFilename(index int, ext string) string {
	return fmt.Sprintf("media_%d.%s", index, strings.TrimPrefix(ext, "."))
}

// MediaPath returns the on-disk path for the index-th media file
func (r *Run) MediaPath(index int, ext string) string {
	return filepath.Join(r.dir, MediaFilename(index, ext))
}

// PublicURL returns the path a caller serves filename under, <prefix>/<dir>/<filename>
func (r *Run) PublicURL(prefix, filename string) string {
	rel := path.Join(r.name, filename)
	if prefix == "" {
		return rel
	}
	return strings.TrimRight(prefix, "/") + "/" + rel
}

// Discard removes a file that should not be kept, such as an empty download
func (r *Run) Discard(p string) error {
	if err := os.Remove(p); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to discard %s: %w", filepath.Base(p), err)
	}
	return nil
}

// Remove deletes the run directory and everything in it
func (r *Run) Remove() error {
	if err := os.RemoveAll(r.dir); err != nil {
		return fmt.Errorf("failed to remove run directory: %w", err)
	}
	return nil
}

// Files lists the regular files currently in the run directory
func (r *Run) Files() ([]string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read directory: %w", err)
	}
	var files []string
	for _, entry := range entries {
		if !entry.IsDir() && !strings.HasSuffix(entry.Name(), tempSuffix) {
			files = append(files, entry.Name())
		}
	}
	return files, nil
}

// WriteManifest stores v as indented JSON in the run directory
func (r *Run) WriteManifest(v interface{}) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode manifest: %w", err)
	}
	p := filepath.Join(r.dir, ManifestFile)
	if _, err := WriteFileAtomic(p, func(w io.Writer) (int64, error) {
		n, err := w.Write(append(data, '\n'))
		return int64(n), err
	}); err != nil {
		return "", err
	}
	return p, nil
}
