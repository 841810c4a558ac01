package provisioning

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/tendant/account-provisioner/pkg/domain"
)

func newReconcileService(store *mockStore, pending PendingStore, rec Recorder, clock *fixedClock) *Service {
	var logs bytes.Buffer
	return NewService(Config{
		Provider:    &mockProvider{},
		Profiles:    store,
		Pending:     pending,
		Recorder:    rec,
		Logger:      slog.New(slog.NewTextHandler(&logs, nil)),
		MaxAttempts: 3,
		Now:         clock.Now,
	})
}

func queued(id string, attempts int, next time.Time) domain.PendingProfile {
	return domain.PendingProfile{
		Profile:       domain.Profile{ID: id, Email: id + "@x.com", Role: domain.ProfileRoleSelfService},
		Attempts:      attempts,
		NextAttemptAt: next,
	}
}

func TestReconcileProfiles(t *testing.T) {
	start := time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name         string
		entry        domain.PendingProfile
		storeErr     error
		wantReport   ReconcileReport
		wantQueued   bool
		wantAttempts int
		wantNext     time.Time
	}{
		{
			name:       "write succeeds",
			entry:      queued("u1", 0, start),
			wantReport: ReconcileReport{Attempted: 1, Reconciled: 1},
		},
		{
			name:       "profile already exists",
			entry:      queued("u1", 0, start),
			storeErr:   domain.NewError(domain.KindAlreadyExists, "duplicate key value violates unique constraint"),
			wantReport: ReconcileReport{Attempted: 1, Reconciled: 1},
		},
		{
			name:  "conflict on another column",
			entry: queued("u1", 0, start),
			storeErr: &domain.Error{
				Kind:    domain.KindRejected,
				Code:    domain.CodeProfileConflict,
				Message: `duplicate key value violates unique constraint "profiles_email_key"`,
			},
			wantReport: ReconcileReport{Attempted: 1, Abandoned: 1},
		},
		{
			name:         "write fails again",
			entry:        queued("u1", 0, start),
			storeErr:     errors.New("connection refused"),
			wantReport:   ReconcileReport{Attempted: 1, Rescheduled: 1},
			wantQueued:   true,
			wantAttempts: 1,
			wantNext:     start.Add(time.Minute),
		},
		{
			name:       "attempts exhausted",
			entry:      queued("u1", 2, start),
			storeErr:   errors.New("connection refused"),
			wantReport: ReconcileReport{Attempted: 1, Abandoned: 1},
		},
		{
			name:       "not yet due",
			entry:      queued("u1", 0, start.Add(time.Minute)),
			wantReport: ReconcileReport{},
			wantQueued: true,
			wantNext:   start.Add(time.Minute),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &mockStore{}
			if tt.storeErr != nil {
				store.errFn = func(domain.Profile) error { return tt.storeErr }
			}
			pending := newMemPending()
			pending.entries[tt.entry.ID()] = tt.entry
			rec := newCountingRecorder()
			svc := newReconcileService(store, pending, rec, &fixedClock{t: start})

			report, err := svc.ReconcileProfiles(context.Background(), 10)
			if err != nil {
				t.Fatalf("ReconcileProfiles() error = %v", err)
			}
			if report != tt.wantReport {
				t.Errorf("report = %+v, want %+v", report, tt.wantReport)
			}

			entry, ok := pending.entries["u1"]
			if ok != tt.wantQueued {
				t.Fatalf("queued = %v, want %v", ok, tt.wantQueued)
			}
			if ok {
				if entry.Attempts != tt.wantAttempts {
					t.Errorf("Attempts = %d, want %d", entry.Attempts, tt.wantAttempts)
				}
				if !entry.NextAttemptAt.Equal(tt.wantNext) {
					t.Errorf("NextAttemptAt = %v, want %v", entry.NextAttemptAt, tt.wantNext)
				}
			}
			if rec.reconciled != tt.wantReport.Reconciled {
				t.Errorf("reconciled metric = %d, want %d", rec.reconciled, tt.wantReport.Reconciled)
			}
			if rec.abandoned != tt.wantReport.Abandoned {
				t.Errorf("abandoned metric = %d, want %d", rec.abandoned, tt.wantReport.Abandoned)
			}
		})
	}
}

func TestReconcileProfiles_EventuallySucceeds(t *testing.T) {
	clock := &fixedClock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	failures := 2
	store := &mockStore{errFn: func(domain.Profile) error {
		if failures > 0 {
			failures--
			return errors.New("timeout")
		}
		return nil
	}}
	pending := newMemPending()
	pending.entries["u1"] = queued("u1", 0, clock.Now())
	svc := newReconcileService(store, pending, nil, clock)

	for i := 0; i < 5 && len(pending.entries) > 0; i++ {
		if _, err := svc.ReconcileProfiles(context.Background(), 10); err != nil {
			t.Fatalf("pass %d: %v", i, err)
		}
		clock.Advance(time.Hour)
	}

	if len(pending.entries) != 0 {
		t.Fatalf("queue should be drained, has %d entries", len(pending.entries))
	}
	if len(store.inserted) != 1 || store.inserted[0].ID != "u1" {
		t.Errorf("inserted = %+v, want one profile for u1", store.inserted)
	}
}

func TestReconcileProfiles_NoPendingStore(t *testing.T) {
	svc := newReconcileService(&mockStore{}, nil, nil, &fixedClock{t: time.Now()})

	if _, err := svc.ReconcileProfiles(context.Background(), 10); !errors.Is(err, ErrNoPendingStore) {
		t.Errorf("error = %v, want ErrNoPendingStore", err)
	}
}

func TestReconcileProfiles_RespectsLimit(t *testing.T) {
	clock := &fixedClock{t: time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)}
	pending := newMemPending()
	for _, id := range []string{"a", "b", "c", "d"} {
		pending.entries[id] = queued(id, 0, clock.Now())
	}
	svc := newReconcileService(&mockStore{}, pending, nil, clock)

	report, err := svc.ReconcileProfiles(context.Background(), 3)
	if err != nil {
		t.Fatal(err)
	}
	if report.Attempted != 3 || len(pending.entries) != 1 {
		t.Errorf("attempted = %d, remaining = %d; want 3, 1", report.Attempted, len(pending.entries))
	}
}

func TestBackoff(t *testing.T) {
	svc := NewService(Config{})

	tests := []struct {
		retries int
		want    time.Duration
	}{
		{0, 30 * time.Second},
		{1, time.Minute},
		{2, 2 * time.Minute},
		{3, 4 * time.Minute},
		{6, 32 * time.Minute},
		{7, time.Hour},
		{50, time.Hour},
	}

	for _, tt := range tests {
		if got := svc.backoff(tt.retries); got != tt.want {
			t.Errorf("backoff(%d) = %v, want %v", tt.retries, got, tt.want)
		}
	}
}
