package main

import (
	"encoding/json"
	"errors"
	"io"

	errs "igfetch/pkg/errors"
)

func writeJSON(w io.Writer, v interface{}) error {
	return json.NewEncoder(w).Encode(v)
}

// reportError prints {"error": ...} to w and returns errReported so the
// process exits 1 without printing the error a second time
func reportError(w io.Writer, err error) error {
	_ = writeJSON(w, map[string]string{"error": errorMessage(err)})
	return errReported
}

func errorMessage(err error) string {
	var e *errs.Error
	if errors.As(err, &e) {
		return e.Message
	}
	return err.Error()
}
