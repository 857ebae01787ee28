package memory

import (
	"strings"
	"sync"

	"github.com/DiegoEnriquezSerrano/api.newslt.rs/subscriber"
	"github.com/google/uuid"
	"github.com/juju/clock"
	"golang.org/x/xerrors"
)

// Compile-time check for ensuring Store implements subscriber.Store.
var _ subscriber.Store = (*Store)(nil)

type subscriptionKey struct {
	email      string
	newsletter string
}

// Store implements an in-memory subscriber store that can be concurrently
// accessed by multiple clients.
type Store struct {
	mu    sync.RWMutex
	clock clock.Clock

	subs map[subscriptionKey]*subscriber.Subscriber
}

// NewStore creates a new in-memory subscriber store. If clk is nil the wall
// clock is used to timestamp new subscriptions.
func NewStore(clk clock.Clock) *Store {
	if clk == nil {
		clk = clock.WallClock
	}
	return &Store{
		clock: clk,
		subs:  make(map[subscriptionKey]*subscriber.Subscriber),
	}
}

// Insert implements subscriber.Store.
func (s *Store) Insert(sub *subscriber.Subscriber) error {
	key := keyFor(sub.Email, sub.Newsletter)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.subs[key]; exists {
		return xerrors.Errorf("insert subscriber: %w", subscriber.ErrAlreadySubscribed)
	}

	sub.ID = uuid.New()
	sub.SubscribedAt = s.clock.Now().UTC()
	if sub.Status == "" {
		sub.Status = subscriber.StatusPendingConfirmation
	}

	sCopy := new(subscriber.Subscriber)
	*sCopy = *sub
	s.subs[key] = sCopy
	return nil
}

// FindByEmail implements subscriber.Store.
func (s *Store) FindByEmail(email, newsletter string) (*subscriber.Subscriber, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sub, exists := s.subs[keyFor(email, newsletter)]
	if !exists {
		return nil, xerrors.Errorf("find subscriber: %w", subscriber.ErrNotFound)
	}

	sCopy := new(subscriber.Subscriber)
	*sCopy = *sub
	return sCopy, nil
}

func keyFor(email, newsletter string) subscriptionKey {
	return subscriptionKey{email: strings.ToLower(email), newsletter: newsletter}
}
