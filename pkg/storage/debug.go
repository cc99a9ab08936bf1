package storage

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"igfetch/pkg/logger"
)

// DebugDumper persists raw GraphQL pages for offline inspection. A nil
// *DebugDumper is valid and writes nothing.
type DebugDumper struct {
	dir    string
	logger logger.Logger
	now    func() time.Time
}

// NewDebugDumper creates a dumper writing into dir. The directory is created on first use.
func NewDebugDumper(dir string, log logger.Logger) *DebugDumper {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &DebugDumper{dir: dir, logger: log, now: time.Now}
}

// Dump writes body as debug_<username>_<YYYYmmdd_HHMMSS>_p<page>.json and
// returns the path. Failures are logged and reported as an empty path.
func (d *DebugDumper) Dump(username string, page int, body []byte) string {
	if d == nil {
		return ""
	}

	name := fmt.Sprintf("debug_%s_%s_p%d.json",
		filepath.Base(username), d.now().Format("20060102_150405"), page)
	p := filepath.Join(d.dir, name)

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, body, "", "  "); err != nil {
		pretty.Reset()
		pretty.Write(body)
	}

	size := pretty.Len()
	if err := os.MkdirAll(d.dir, 0755); err != nil {
		d.logger.WithError(err).WarnWithFields("Failed to create debug directory", map[string]interface{}{"dir": d.dir})
		return ""
	}
	if _, err := WriteFileAtomic(p, func(w io.Writer) (int64, error) { return pretty.WriteTo(w) }); err != nil {
		d.logger.WithError(err).WarnWithFields("Failed to write debug dump", map[string]interface{}{"path": p})
		return ""
	}

	d.logger.DebugWithFields("Debug dump written", map[string]interface{}{
		"path":  p,
		"bytes": size,
	})
	return p
}
