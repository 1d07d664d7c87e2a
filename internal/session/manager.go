package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"

	"github.com/congo-pay/walletclient/internal/credentials"
	"github.com/congo-pay/walletclient/internal/gateway"
)

const (
	loginPath   = "/accounts/login/"
	profilePath = "/accounts/me/"
)

var (
	// ErrNoSession is returned by operations that need an authenticated session.
	ErrNoSession = errors.New("no authenticated session")

	// ErrMissingCredentials rejects a login without email or password.
	ErrMissingCredentials = errors.New("email and password are required")

	// ErrSessionChanged reports that a logout or another login completed while
	// this operation was in flight; its result was discarded.
	ErrSessionChanged = errors.New("session changed while request was in flight")

	// ErrEndpointPending marks operations the backend does not expose yet.
	ErrEndpointPending = errors.New("operation has no backing endpoint yet")
)

// State is the session lifecycle state.
type State int

const (
	StateUninitialized State = iota
	StateLoading
	StateAuthenticated
	StateAnonymous
)

func (s State) String() string {
	switch s {
	case StateUninitialized:
		return "uninitialized"
	case StateLoading:
		return "loading"
	case StateAuthenticated:
		return "authenticated"
	case StateAnonymous:
		return "anonymous"
	default:
		return "unknown"
	}
}

// Doer performs backend calls; *gateway.Client satisfies it.
type Doer interface {
	Do(ctx context.Context, req gateway.Request, out any) error
}

// CredentialStore is the subset of *credentials.Store the manager needs.
type CredentialStore interface {
	Get(ctx context.Context) (credentials.Pair, bool)
	Set(ctx context.Context, pair credentials.Pair) error
	Clear(ctx context.Context)
}

// Manager is the session state machine. Create one per process and pass it to
// consumers explicitly.
type Manager struct {
	api    Doer
	store  CredentialStore
	logger *slog.Logger

	mu          sync.RWMutex
	state       State
	profile     Profile
	epoch       uint64
	subscribers map[chan State]struct{}
}

// NewManager builds an uninitialized manager.
func NewManager(api Doer, store CredentialStore, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		api:         api,
		store:       store,
		logger:      logger,
		subscribers: make(map[chan State]struct{}),
	}
}

// Init restores the session from stored credentials. A stored pair that fails
// the profile fetch is cleared. Calling Init again after it settled is a no-op.
func (m *Manager) Init(ctx context.Context) State {
	m.mu.RLock()
	state, epoch := m.state, m.epoch
	m.mu.RUnlock()
	if state != StateUninitialized {
		return state
	}

	// The store may be slow (file, redis); read it unlocked and let the epoch
	// detect a login or logout that happened meanwhile.
	pair, ok := m.store.Get(ctx)

	m.mu.Lock()
	if epoch != m.epoch || m.state != StateUninitialized {
		current := m.state
		m.mu.Unlock()
		return current
	}
	if !ok {
		m.setStateLocked(StateAnonymous)
		m.mu.Unlock()
		return StateAnonymous
	}
	m.setStateLocked(StateLoading)
	m.mu.Unlock()

	profile, err := m.fetchProfile(ctx, pair.Access)

	m.mu.Lock()
	defer m.mu.Unlock()
	if epoch != m.epoch {
		return m.state
	}
	if err != nil {
		m.logger.Warn("stored session rejected, clearing credentials", slog.Any("error", err))
		m.store.Clear(ctx)
		m.profile = Profile{}
		m.setStateLocked(StateAnonymous)
		return StateAnonymous
	}
	m.profile = profile
	m.setStateLocked(StateAuthenticated)
	return StateAuthenticated
}

// Login authenticates, fetches the profile with the fresh access token, and
// only then persists the pair and publishes the session. On any failure the
// previous session and stored credentials are left as they were.
func (m *Manager) Login(ctx context.Context, email, password string) error {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return ErrMissingCredentials
	}

	m.mu.RLock()
	epoch := m.epoch
	m.mu.RUnlock()

	var tokens tokenResponse
	err := m.api.Do(ctx, gateway.Request{
		Method:    http.MethodPost,
		Path:      loginPath,
		Body:      map[string]string{"email": email, "password": password},
		Anonymous: true,
	}, &tokens)
	if err != nil {
		return err
	}
	pair := credentials.Pair{Access: tokens.Access, Refresh: tokens.Refresh}

	profile, err := m.fetchProfile(ctx, pair.Access)
	if err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if epoch != m.epoch {
		return ErrSessionChanged
	}
	if err := m.store.Set(ctx, pair); err != nil {
		return fmt.Errorf("store credentials: %w", err)
	}
	m.epoch++
	m.profile = profile
	m.setStateLocked(StateAuthenticated)
	m.logger.Info("session established", slog.String("user", profile.ID))
	return nil
}

// Logout clears credentials and the session locally without a network call.
func (m *Manager) Logout(ctx context.Context) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.epoch++
	m.store.Clear(ctx)
	m.profile = Profile{}
	m.setStateLocked(StateAnonymous)
}

// RefreshProfile re-fetches the profile. On failure the current session is
// kept and the error returned so the caller can decide what to do.
func (m *Manager) RefreshProfile(ctx context.Context) error {
	m.mu.RLock()
	state, epoch := m.state, m.epoch
	m.mu.RUnlock()
	if state != StateAuthenticated {
		return ErrNoSession
	}

	profile, err := m.fetchProfile(ctx, "")
	if err != nil {
		m.logger.Warn("profile refresh failed, keeping current session", slog.Any("error", err))
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if epoch != m.epoch {
		return ErrSessionChanged
	}
	m.profile = profile
	return nil
}

// UpdateProfile merges update into the in-memory session only. There is no
// backend write endpoint, so the change is lost on the next profile fetch.
func (m *Manager) UpdateProfile(update ProfileUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.state != StateAuthenticated {
		return ErrNoSession
	}
	if update.empty() {
		return nil
	}
	m.profile = m.profile.merge(update)
	return nil
}

// Register is not backed by an endpoint yet.
func (m *Manager) Register(context.Context, Registration) error {
	return ErrEndpointPending
}

// ResetPassword is not backed by an endpoint yet.
func (m *Manager) ResetPassword(context.Context, string) error {
	return ErrEndpointPending
}

// ChangePassword is not backed by an endpoint yet.
func (m *Manager) ChangePassword(context.Context, string, string) error {
	return ErrEndpointPending
}

// Registration captures sign-up data for Register.
type Registration struct {
	FirstName string
	LastName  string
	Email     string
	Phone     string
	Password  string
}

// Dispose drops the in-memory session and closes subscriptions. Stored
// credentials stay in place for the next process.
func (m *Manager) Dispose() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.epoch++
	m.profile = Profile{}
	m.state = StateUninitialized
	for ch := range m.subscribers {
		close(ch)
		delete(m.subscribers, ch)
	}
}

// State returns the current lifecycle state.
func (m *Manager) State() State {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.state
}

// Current returns the session profile when authenticated.
func (m *Manager) Current() (Profile, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.state != StateAuthenticated {
		return Profile{}, false
	}
	return m.profile, true
}

// Subscribe delivers state transitions. Slow readers only see the latest
// state. The returned func cancels the subscription.
func (m *Manager) Subscribe() (<-chan State, func()) {
	ch := make(chan State, 1)
	m.mu.Lock()
	m.subscribers[ch] = struct{}{}
	m.mu.Unlock()

	cancel := func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if _, ok := m.subscribers[ch]; ok {
			delete(m.subscribers, ch)
			close(ch)
		}
	}
	return ch, cancel
}

func (m *Manager) setStateLocked(s State) {
	m.state = s
	for ch := range m.subscribers {
		select {
		case <-ch:
		default:
		}
		ch <- s
	}
}

func (m *Manager) fetchProfile(ctx context.Context, bearer string) (Profile, error) {
	var resp profileResponse
	if err := m.api.Do(ctx, gateway.Request{Method: http.MethodGet, Path: profilePath, Bearer: bearer}, &resp); err != nil {
		return Profile{}, err
	}
	return resp.profile(), nil
}
