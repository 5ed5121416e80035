package content

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// compensation undoes one completed step of a saga.
type compensation struct {
	name string
	undo func(ctx context.Context) error
}

// saga records compensations as steps complete and runs them in reverse
// order when a later step fails.
type saga struct {
	steps   []compensation
	timeout time.Duration
	logger  *slog.Logger
}

func newSaga(timeout time.Duration, logger *slog.Logger) *saga {
	return &saga{timeout: timeout, logger: logger}
}

func (s *saga) onFailure(name string, undo func(ctx context.Context) error) {
	s.steps = append(s.steps, compensation{name: name, undo: undo})
}

// abort runs every recorded compensation and returns cause joined with any
// compensation failures. Compensations run even if ctx is already done.
func (s *saga) abort(ctx context.Context, cause error) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	errs := []error{cause}
	for i := len(s.steps) - 1; i >= 0; i-- {
		step := s.steps[i]
		if err := step.undo(ctx); err != nil {
			s.logger.Error("compensation failed", "step", step.name, "error", err)
			errs = append(errs, fmt.Errorf("compensate %s: %w", step.name, err))
			continue
		}
		s.logger.Info("compensated", "step", step.name)
	}
	s.steps = nil

	if len(errs) == 1 {
		return cause
	}
	return errors.Join(errs...)
}
