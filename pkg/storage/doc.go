// Package storage owns what a retrieval run leaves on disk.
//
// Each run gets its own directory, <root>/<type>_<uuid>, holding
// media_<n>.<ext> files and, on success, a manifest.json. Files are written
// through a temporary sibling and renamed into place so a crashed or failed
// download never leaves a truncated media file behind.
//
// Usage:
//
//	run, err := storage.NewRun("uploads", "post")
//	if err != nil {
//	    return err
//	}
//	n, err := storage.WriteFileAtomic(run.MediaPath(1, "jpg"), func(w io.Writer) (int64, error) {
//	    return io.Copy(w, body)
//	})
//
// DebugDumper writes raw GraphQL pages next to the runs. Dump failures are
// logged and otherwise ignored.
package storage
