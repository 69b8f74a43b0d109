package audit

import (
	"context"
	"time"
)

// Logger is the logging interface used by the recorder.
type Logger interface {
	Warn(msg string, args ...any)
}

// Recorder writes entries for one source and never fails the caller:
// storage errors are logged and dropped.
type Recorder struct {
	repo   Repository
	source string
	logger Logger
}

// NewRecorder creates a recorder tagging every entry with source.
// logger may be nil.
func NewRecorder(repo Repository, source string, logger Logger) *Recorder {
	return &Recorder{repo: repo, source: source, logger: logger}
}

// Record stores one entry.
func (r *Recorder) Record(ctx context.Context, action, deviceID string, details map[string]any) {
	err := r.repo.Create(ctx, &Entry{
		Action:    action,
		DeviceID:  deviceID,
		Source:    r.source,
		Details:   details,
		CreatedAt: time.Now().UTC(),
	})
	if err != nil && r.logger != nil {
		r.logger.Warn("audit entry not stored", "action", action, "device_id", deviceID, "error", err)
	}
}
