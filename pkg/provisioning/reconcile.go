package provisioning

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/tendant/account-provisioner/pkg/domain"
)

// ErrNoPendingStore is returned by ReconcileProfiles when no PendingStore is configured.
var ErrNoPendingStore = errors.New("pending store not configured")

// ReconcileReport summarizes one reconciliation pass.
type ReconcileReport struct {
	Attempted   int
	Reconciled  int
	Rescheduled int
	Abandoned   int
}

// ReconcileProfiles retries up to limit queued profile writes that are due.
// Successful or already-present profiles are removed from the queue; failures
// are rescheduled with exponential backoff until MaxAttempts is reached, after
// which the entry is dropped.
func (s *Service) ReconcileProfiles(ctx context.Context, limit int) (ReconcileReport, error) {
	var report ReconcileReport
	if s.pending == nil {
		return report, ErrNoPendingStore
	}

	due, err := s.pending.Due(ctx, s.now(), limit)
	if err != nil {
		return report, fmt.Errorf("failed to load pending profiles: %w", err)
	}

	for _, entry := range due {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		report.Attempted++

		err := s.profiles.InsertProfile(ctx, entry.Profile)
		if err == nil || domain.KindOf(err) == domain.KindAlreadyExists {
			if cerr := s.pending.Complete(ctx, entry.ID()); cerr != nil && !errors.Is(cerr, domain.ErrPendingProfileNotFound) {
				s.logger.Error("failed to complete pending profile", "error", cerr, "account_id", entry.ID())
			}
			s.recorder.ProfileReconciled()
			s.logger.Info("profile reconciled", "account_id", entry.ID(), "attempts", entry.Attempts+1)
			report.Reconciled++
			continue
		}

		attempts := entry.Attempts + 1
		if domain.IsProfileConflict(err) {
			s.abandon(ctx, entry, attempts, err, "profile write conflicts with another row, giving up")
			report.Abandoned++
			continue
		}
		if attempts >= s.maxAttempts {
			s.abandon(ctx, entry, attempts, err, "giving up on profile write")
			report.Abandoned++
			continue
		}

		next := s.now().Add(s.backoff(attempts))
		if rerr := s.pending.Reschedule(ctx, entry.ID(), attempts, next, err.Error()); rerr != nil {
			s.logger.Error("failed to reschedule pending profile", "error", rerr, "account_id", entry.ID())
		}
		s.logger.Warn("profile write retry failed",
			"error", err,
			"account_id", entry.ID(),
			"attempts", attempts,
			"next_attempt_at", next,
		)
		report.Rescheduled++
	}

	return report, nil
}

func (s *Service) abandon(ctx context.Context, entry domain.PendingProfile, attempts int, err error, msg string) {
	if cerr := s.pending.Complete(ctx, entry.ID()); cerr != nil && !errors.Is(cerr, domain.ErrPendingProfileNotFound) {
		s.logger.Error("failed to drop pending profile", "error", cerr, "account_id", entry.ID())
	}
	s.recorder.ProfileAbandoned()
	s.logger.Error(msg,
		"error", err,
		"account_id", entry.ID(),
		"attempts", attempts,
	)
}

// backoff returns the delay after the given number of failed retries:
// InitialBackoff doubled per retry, capped at MaxBackoff.
func (s *Service) backoff(retries int) time.Duration {
	delay := s.initialBackoff
	for i := 0; i < retries; i++ {
		delay *= 2
		if delay > s.maxBackoff {
			return s.maxBackoff
		}
	}
	if delay > s.maxBackoff {
		return s.maxBackoff
	}
	return delay
}
