package credentials

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
)

var (
	// ErrNotFound is returned by a Backend when no record exists.
	ErrNotFound = errors.New("credential record not found")

	// ErrIncompletePair rejects pairs missing either token.
	ErrIncompletePair = errors.New("credential pair must carry both access and refresh tokens")
)

// Pair is the opaque token bundle issued by the backend at login.
type Pair struct {
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// Complete reports whether both tokens are present.
func (p Pair) Complete() bool {
	return p.Access != "" && p.Refresh != ""
}

// Backend stores one encoded credential record under a fixed key.
type Backend interface {
	Load(ctx context.Context) ([]byte, error)
	Save(ctx context.Context, payload []byte) error
	Delete(ctx context.Context) error
}

// Store wraps a Backend with the credential policy: whole-value replacement,
// never a partial pair, and read failures degrade to "absent".
type Store struct {
	mu      sync.Mutex
	backend Backend
	logger  *slog.Logger
}

// NewStore builds a Store on top of backend.
func NewStore(backend Backend, logger *slog.Logger) *Store {
	if logger == nil {
		logger = slog.Default()
	}
	return &Store{backend: backend, logger: logger}
}

// Get returns the stored pair. Storage errors, undecodable records and
// partial pairs are all reported as absent.
func (s *Store) Get(ctx context.Context) (Pair, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.load(ctx)
}

func (s *Store) load(ctx context.Context) (Pair, bool) {
	raw, err := s.backend.Load(ctx)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.logger.Warn("credential read failed, treating session as absent", slog.Any("error", err))
		}
		return Pair{}, false
	}

	var pair Pair
	if err := json.Unmarshal(raw, &pair); err != nil {
		s.logger.Warn("credential record undecodable, treating session as absent", slog.Any("error", err))
		return Pair{}, false
	}
	if !pair.Complete() {
		s.logger.Warn("credential record incomplete, treating session as absent")
		return Pair{}, false
	}
	return pair, true
}

// Set replaces the stored pair as a whole.
func (s *Store) Set(ctx context.Context, pair Pair) error {
	if !pair.Complete() {
		return ErrIncompletePair
	}
	payload, err := json.Marshal(pair)
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.backend.Save(ctx, payload); err != nil {
		return fmt.Errorf("persist credentials: %w", err)
	}
	return nil
}

// Clear removes the stored pair. Failures are logged and otherwise ignored;
// clearing an already empty store is a no-op.
func (s *Store) Clear(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := s.backend.Delete(ctx); err != nil && !errors.Is(err, ErrNotFound) {
		s.logger.Warn("credential clear failed", slog.Any("error", err))
	}
}

// Swap replaces the stored pair with next only if the current access token
// still equals expectedAccess. It reports whether the swap happened.
func (s *Store) Swap(ctx context.Context, expectedAccess string, next Pair) (bool, error) {
	if !next.Complete() {
		return false, ErrIncompletePair
	}
	payload, err := json.Marshal(next)
	if err != nil {
		return false, fmt.Errorf("encode credentials: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.load(ctx)
	if !ok || current.Access != expectedAccess {
		return false, nil
	}
	if err := s.backend.Save(ctx, payload); err != nil {
		return false, fmt.Errorf("persist credentials: %w", err)
	}
	return true, nil
}

// AccessToken returns the stored access token, if any.
func (s *Store) AccessToken(ctx context.Context) (string, bool) {
	pair, ok := s.Get(ctx)
	return pair.Access, ok
}
