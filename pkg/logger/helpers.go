package logger

import (
	"time"
)

// LogRequest logs HTTP request information
func LogRequest(log Logger, method, url string, statusCode int, duration time.Duration) {
	fields := map[string]interface{}{
		"method":      method,
		"url":         url,
		"status_code": statusCode,
		"duration_ms": duration.Milliseconds(),
	}

	switch {
	case statusCode >= 500:
		log.ErrorWithFields("HTTP request server error", fields)
	case statusCode >= 400:
		log.WarnWithFields("HTTP request client error", fields)
	default:
		log.DebugWithFields("HTTP request completed", fields)
	}
}

// LogDownload logs the outcome of a single media download
func LogDownload(log Logger, url, path string, size int64, err error) {
	l := log.WithFields(map[string]interface{}{
		"url":  url,
		"path": path,
	})

	switch {
	case err != nil:
		l.WithError(err).Warn("Download failed")
	case size == 0:
		l.Warn("Download produced an empty file, discarding")
	default:
		l.WithField("bytes", size).Info("Download completed")
	}
}

// LogPage logs one page of a paginated walk
func LogPage(log Logger, username string, page, items int, hasNext bool) {
	log.InfoWithFields("Fetched timeline page", map[string]interface{}{
		"username": username,
		"page":     page,
		"items":    items,
		"has_next": hasNext,
	})
}

// LogStateChange logs a pipeline state transition
func LogStateChange(log Logger, from, to string) {
	log.DebugWithFields("Pipeline state changed", map[string]interface{}{
		"from": from,
		"to":   to,
	})
}

// LogComponentStart logs when a component starts
func LogComponentStart(log Logger, component string, config map[string]interface{}) {
	l := log.WithField("component", component)
	if len(config) > 0 {
		l = l.WithFields(config)
	}
	l.Info("Component started")
}

// LogComponentStop logs when a component stops
func LogComponentStop(log Logger, component string, reason string) {
	log.WithFields(map[string]interface{}{
		"component": component,
		"reason":    reason,
	}).Info("Component stopped")
}

// NewNopLogger returns a Logger that discards everything
func NewNopLogger() Logger {
	return nopLogger{}
}

type nopLogger struct{}

func (nopLogger) Debug(string)                                   {}
func (nopLogger) Info(string)                                    {}
func (nopLogger) Warn(string)                                    {}
func (nopLogger) Error(string)                                   {}
func (n nopLogger) WithField(string, interface{}) Logger         { return n }
func (n nopLogger) WithFields(map[string]interface{}) Logger     { return n }
func (n nopLogger) WithError(error) Logger                       { return n }
func (nopLogger) DebugWithFields(string, map[string]interface{}) {}
func (nopLogger) InfoWithFields(string, map[string]interface{})  {}
func (nopLogger) WarnWithFields(string, map[string]interface{})  {}
func (nopLogger) ErrorWithFields(string, map[string]interface{}) {}
