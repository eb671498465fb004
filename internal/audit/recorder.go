package audit

import (
	"context"
	"time"
)

// recordTimeout bounds one audit insert.
const recordTimeout = 5 * time.Second

// Logger is the logging the audit package needs.
type Logger interface {
	Info(msg string, keysAndValues ...any)
	Warn(msg string, keysAndValues ...any)
}

type noopLogger struct{}

func (noopLogger) Info(string, ...any) {}
func (noopLogger) Warn(string, ...any) {}

// CommandRecorder writes one audit entry per characteristic write.
// It satisfies accessory.CommandRecorder.
type CommandRecorder struct {
	repo   Repository
	logger Logger
}

// NewCommandRecorder creates a recorder backed by repo. logger may be nil.
func NewCommandRecorder(repo Repository, logger Logger) *CommandRecorder {
	if logger == nil {
		logger = noopLogger{}
	}
	return &CommandRecorder{repo: repo, logger: logger}
}

// RecordCommand stores the outcome of a write. The entry is written even
// when ctx is already cancelled: a timed-out command belongs in the trail.
// Storage failures are logged, never returned.
func (r *CommandRecorder) RecordCommand(ctx context.Context, accessoryID, characteristic string, value any, source string, err error) {
	entry := &Entry{
		AccessoryID:    accessoryID,
		Characteristic: characteristic,
		Value:          value,
		Source:         source,
		Outcome:        OutcomeOK,
	}
	if err != nil {
		entry.Outcome = OutcomeFailed
		entry.Error = err.Error()
	}

	writeCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), recordTimeout)
	defer cancel()

	if createErr := r.repo.Create(writeCtx, entry); createErr != nil {
		r.logger.Warn("audit write failed",
			"accessory", accessoryID,
			"characteristic", characteristic,
			"error", createErr,
		)
	}
}

// Pruner deletes entries older than a cutoff.
type Pruner interface {
	Prune(ctx context.Context, cutoff time.Time) (int64, error)
}

// RunRetention prunes entries older than keep, once immediately and then
// every interval, until ctx is cancelled. A zero keep disables pruning.
//
// Parameters:
//   - ctx: Stops the loop
//   - p: Store to prune
//   - keep: Age beyond which entries are deleted
//   - interval: Time between passes
//   - logger: May be nil
func RunRetention(ctx context.Context, p Pruner, keep, interval time.Duration, logger Logger) {
	if keep <= 0 || interval <= 0 {
		return
	}
	if logger == nil {
		logger = noopLogger{}
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		n, err := p.Prune(ctx, time.Now().Add(-keep))
		switch {
		case err != nil:
			logger.Warn("audit pruning failed", "error", err)
		case n > 0:
			logger.Info("audit entries pruned", "removed", n, "retention", keep)
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}
