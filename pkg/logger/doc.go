// Package logger provides the structured logging interface used across igfetch.
//
// It wraps zerolog behind a small Logger interface with field chaining and
// *WithFields helpers. Console output is written to stderr so that commands can
// print machine-readable results on stdout.
//
//	log, err := logger.New(&cfg.Logging)
//	if err != nil {
//	    return err
//	}
//	log.WithField("url", target).Info("Rendering page")
//
// Tests use NewTestLogger to capture messages or NewNopLogger to discard them.
package logger
