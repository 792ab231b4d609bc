// Package presence tracks which users currently hold at least one Active
// connection, derived from hub lifecycle events.
package presence

import (
	"context"
	"errors"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/nfrund/relay/internal/hub"
	"github.com/nfrund/relay/internal/pubsub"
)

// OfflineDebounceDelay is the time to wait before marking a user as offline
// after their last connection closes. It absorbs page reloads and quick
// reconnects.
const OfflineDebounceDelay = 5 * time.Second

// Presence is one online user.
type Presence struct {
	UserID      string    `json:"user_id"`
	Username    string    `json:"username"`
	Connections int       `json:"connections"`
	Since       time.Time `json:"since"`
}

type entry struct {
	Presence
	conns map[string]struct{}
}

// Service keeps the online set. It is fed only by hub events.
type Service struct {
	mu        sync.RWMutex
	presences map[string]*entry // userID -> presence
	// offline holds pending debounce timers for users with no connections.
	offline map[string]*time.Timer
	// closed holds connection ids whose close was seen before their open.
	closed map[string]struct{}

	offlineDebounceDelay time.Duration
	now                  func() time.Time
	logger               *slog.Logger
}

// Option is a function that configures a Service.
type Option func(*Service)

// WithOfflineDebounce sets a custom debounce delay for offline transitions.
// Zero marks users offline immediately.
func WithOfflineDebounce(d time.Duration) Option {
	return func(s *Service) {
		s.offlineDebounceDelay = d
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		s.now = now
	}
}

// NewService creates an empty presence service.
func NewService(logger *slog.Logger, opts ...Option) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	svc := &Service{
		presences:            make(map[string]*entry),
		offline:              make(map[string]*time.Timer),
		closed:               make(map[string]struct{}),
		offlineDebounceDelay: OfflineDebounceDelay,
		now:                  time.Now,
		logger:               logger.With("service", "presence"),
	}
	for _, opt := range opts {
		opt(svc)
	}
	return svc
}

// Subscribe feeds the service from hub connection events on sub.
func (s *Service) Subscribe(ctx context.Context, sub pubsub.Subscriber) error {
	return errors.Join(
		pubsub.On(ctx, sub, hub.ConnectionOpened, func(_ context.Context, e hub.ConnectionEvent) error {
			s.connected(e)
			return nil
		}),
		pubsub.On(ctx, sub, hub.ConnectionClosed, func(_ context.Context, e hub.ConnectionEvent) error {
			s.disconnected(e)
			return nil
		}),
	)
}

func (s *Service) connected(e hub.ConnectionEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	// Opened and closed arrive on separate topics; a close may overtake its open.
	if _, ok := s.closed[e.ConnID]; ok {
		delete(s.closed, e.ConnID)
		return
	}

	if timer, ok := s.offline[e.UserID]; ok {
		timer.Stop()
		delete(s.offline, e.UserID)
		s.logger.Debug("Cancelled offline debounce due to reconnection", "user_id", e.UserID)
	}

	p, ok := s.presences[e.UserID]
	if !ok {
		p = &entry{Presence: Presence{UserID: e.UserID, Username: e.Username, Since: s.now().UTC()}, conns: map[string]struct{}{}}
		s.presences[e.UserID] = p
		s.logger.Info("User came online", "user_id", e.UserID, "username", e.Username)
	}
	p.conns[e.ConnID] = struct{}{}
}

func (s *Service) disconnected(e hub.ConnectionEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.presences[e.UserID]
	if !ok {
		s.closed[e.ConnID] = struct{}{}
		return
	}
	if _, ok := p.conns[e.ConnID]; !ok {
		s.closed[e.ConnID] = struct{}{}
		return
	}
	delete(p.conns, e.ConnID)
	if len(p.conns) > 0 {
		return
	}

	userID := e.UserID
	if s.offlineDebounceDelay <= 0 {
		s.removeLocked(userID)
		return
	}
	if timer, ok := s.offline[userID]; ok {
		timer.Stop()
	}
	s.offline[userID] = time.AfterFunc(s.offlineDebounceDelay, func() {
		s.mu.Lock()
		defer s.mu.Unlock()
		delete(s.offline, userID)
		if p, ok := s.presences[userID]; ok && len(p.conns) == 0 {
			s.removeLocked(userID)
		}
	})
}

func (s *Service) removeLocked(userID string) {
	delete(s.presences, userID)
	s.logger.Info("User went offline", "user_id", userID)
}

// Online returns every user with an Active connection or a pending offline
// debounce, ordered by username.
func (s *Service) Online() []Presence {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]Presence, 0, len(s.presences))
	for _, p := range s.presences {
		presence := p.Presence
		presence.Connections = len(p.conns)
		out = append(out, presence)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Username != out[j].Username {
			return out[i].Username < out[j].Username
		}
		return out[i].UserID < out[j].UserID
	})
	return out
}

// IsOnline reports whether userID is in the online set.
func (s *Service) IsOnline(userID string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.presences[userID]
	return ok
}

// Shutdown stops pending debounce timers.
func (s *Service) Shutdown() {
	s.mu.Lock()
	defer s.mu.Unlock()
	for userID, timer := range s.offline {
		timer.Stop()
		delete(s.offline, userID)
	}
}
