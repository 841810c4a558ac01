package provisioning

import (
	"context"
	"sync"
	"time"

	"github.com/tendant/account-provisioner/pkg/domain"
)

// mockProvider is an IdentityProvider whose behavior is set per test.
type mockProvider struct {
	signUpFn         func(ctx context.Context, creds domain.Credentials, meta domain.AccountMetadata) (*domain.Account, *domain.Session, error)
	signInFn         func(ctx context.Context, creds domain.Credentials) (*domain.Account, *domain.Session, error)
	signOutFn        func(ctx context.Context, session domain.Session) error
	resetFn          func(ctx context.Context, email string) error
	updatePasswordFn func(ctx context.Context, session domain.Session, pw string) (*domain.Account, error)
	getUserFn        func(ctx context.Context, session domain.Session) (*domain.Account, error)

	mu          sync.Mutex
	signUpCalls int
	lastMeta    domain.AccountMetadata
}

func (m *mockProvider) SignUp(ctx context.Context, creds domain.Credentials, meta domain.AccountMetadata) (*domain.Account, *domain.Session, error) {
	m.mu.Lock()
	m.signUpCalls++
	m.lastMeta = meta
	m.mu.Unlock()
	return m.signUpFn(ctx, creds, meta)
}

func (m *mockProvider) SignInWithPassword(ctx context.Context, creds domain.Credentials) (*domain.Account, *domain.Session, error) {
	return m.signInFn(ctx, creds)
}

func (m *mockProvider) SignOut(ctx context.Context, session domain.Session) error {
	return m.signOutFn(ctx, session)
}

func (m *mockProvider) ResetPasswordForEmail(ctx context.Context, email string) error {
	return m.resetFn(ctx, email)
}

func (m *mockProvider) UpdatePassword(ctx context.Context, session domain.Session, pw string) (*domain.Account, error) {
	return m.updatePasswordFn(ctx, session, pw)
}

func (m *mockProvider) GetUser(ctx context.Context, session domain.Session) (*domain.Account, error) {
	return m.getUserFn(ctx, session)
}

// mockStore records every profile insert and fails while errFn returns an error.
type mockStore struct {
	mu       sync.Mutex
	inserted []domain.Profile
	calls    int
	errFn    func(p domain.Profile) error
}

func (m *mockStore) InsertProfile(ctx context.Context, p domain.Profile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.errFn != nil {
		if err := m.errFn(p); err != nil {
			return err
		}
	}
	m.inserted = append(m.inserted, p)
	return nil
}

// memPending is a map-backed PendingStore.
type memPending struct {
	mu         sync.Mutex
	entries    map[string]domain.PendingProfile
	enqueueErr error
}

func newMemPending() *memPending {
	return &memPending{entries: make(map[string]domain.PendingProfile)}
}

func (m *memPending) Enqueue(ctx context.Context, p domain.PendingProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.enqueueErr != nil {
		return m.enqueueErr
	}
	m.entries[p.ID()] = p
	return nil
}

func (m *memPending) Due(ctx context.Context, now time.Time, limit int) ([]domain.PendingProfile, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []domain.PendingProfile
	for _, p := range m.entries {
		if len(out) == limit {
			break
		}
		if !p.NextAttemptAt.After(now) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (m *memPending) Complete(ctx context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.entries[id]; !ok {
		return domain.ErrPendingProfileNotFound
	}
	delete(m.entries, id)
	return nil
}

func (m *memPending) Reschedule(ctx context.Context, id string, attempts int, next time.Time, lastErr string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.entries[id]
	if !ok {
		return domain.ErrPendingProfileNotFound
	}
	p.Attempts = attempts
	p.NextAttemptAt = next
	p.LastError = lastErr
	m.entries[id] = p
	return nil
}

// countingRecorder counts events.
type countingRecorder struct {
	mu             sync.Mutex
	created        int
	profileFailed  int
	reconciled     int
	abandoned      int
	providerErrors map[string]domain.ErrorKind
}

func newCountingRecorder() *countingRecorder {
	return &countingRecorder{providerErrors: make(map[string]domain.ErrorKind)}
}

func (r *countingRecorder) AccountCreated() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.created++
}

func (r *countingRecorder) ProfileWriteFailed() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profileFailed++
}

func (r *countingRecorder) ProfileReconciled() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.reconciled++
}

func (r *countingRecorder) ProfileAbandoned() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.abandoned++
}

func (r *countingRecorder) ProviderError(op string, kind domain.ErrorKind) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.providerErrors[op] = kind
}

// fixedClock returns a controllable clock.
type fixedClock struct{ t time.Time }

func (c *fixedClock) Now() time.Time          { return c.t }
func (c *fixedClock) Advance(d time.Duration) { c.t = c.t.Add(d) }
