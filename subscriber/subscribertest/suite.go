package subscribertest

import (
	"sync"

	"github.com/DiegoEnriquezSerrano/api.newslt.rs/subscriber"
	"github.com/google/uuid"
	"golang.org/x/xerrors"
	gc "gopkg.in/check.v1"
)

// SuiteBase defines a re-usable set of subscriber-related tests that can be
// executed against any type that implements subscriber.Store.
type SuiteBase struct {
	store subscriber.Store
}

// SetStore configures the test-suite to run all tests against store.
func (s *SuiteBase) SetStore(store subscriber.Store) {
	s.store = store
}

// TestInsert verifies that inserting a subscriber assigns its ID and
// subscription timestamp.
func (s *SuiteBase) TestInsert(c *gc.C) {
	sub := &subscriber.Subscriber{
		Email:      "ursula@domain.com",
		Name:       "Ursula",
		Newsletter: "earthsea",
	}
	err := s.store.Insert(sub)
	c.Assert(err, gc.IsNil)
	c.Assert(sub.ID, gc.Not(gc.Equals), uuid.Nil, gc.Commentf("expected an ID to be assigned to the new subscriber"))
	c.Assert(sub.SubscribedAt.IsZero(), gc.Equals, false)
	c.Assert(sub.Status, gc.Equals, subscriber.StatusPendingConfirmation)

	stored, err := s.store.FindByEmail("ursula@domain.com", "earthsea")
	c.Assert(err, gc.IsNil)
	c.Assert(stored.ID, gc.Equals, sub.ID)
	c.Assert(stored.Name, gc.Equals, "Ursula")
	c.Assert(stored.Status, gc.Equals, subscriber.StatusPendingConfirmation)
	c.Assert(stored.SubscribedAt.Equal(sub.SubscribedAt), gc.Equals, true)
}

// TestInsertDuplicate verifies that an address can only subscribe once to
// each newsletter.
func (s *SuiteBase) TestInsertDuplicate(c *gc.C) {
	err := s.store.Insert(&subscriber.Subscriber{Email: "ged@domain.com", Name: "Ged", Newsletter: "earthsea"})
	c.Assert(err, gc.IsNil)

	err = s.store.Insert(&subscriber.Subscriber{Email: "GED@domain.com", Name: "Sparrowhawk", Newsletter: "earthsea"})
	c.Assert(xerrors.Is(err, subscriber.ErrAlreadySubscribed), gc.Equals, true, gc.Commentf("got %v", err))

	err = s.store.Insert(&subscriber.Subscriber{Email: "ged@domain.com", Name: "Ged", Newsletter: "hainish"})
	c.Assert(err, gc.IsNil, gc.Commentf("expected the same address to subscribe to another newsletter"))
}

// TestFindByEmail verifies lookups of existing and missing subscribers.
func (s *SuiteBase) TestFindByEmail(c *gc.C) {
	sub := &subscriber.Subscriber{
		Email:      "Tenar@domain.com",
		Name:       "Tenar",
		Newsletter: "earthsea",
		Status:     subscriber.StatusConfirmed,
	}
	c.Assert(s.store.Insert(sub), gc.IsNil)

	stored, err := s.store.FindByEmail("tenar@DOMAIN.com", "earthsea")
	c.Assert(err, gc.IsNil)
	c.Assert(stored.ID, gc.Equals, sub.ID)
	c.Assert(stored.Email, gc.Equals, "Tenar@domain.com")
	c.Assert(stored.Status, gc.Equals, subscriber.StatusConfirmed)

	_, err = s.store.FindByEmail("tenar@domain.com", "hainish")
	c.Assert(xerrors.Is(err, subscriber.ErrNotFound), gc.Equals, true)

	_, err = s.store.FindByEmail("nobody@domain.com", "earthsea")
	c.Assert(xerrors.Is(err, subscriber.ErrNotFound), gc.Equals, true)
}

// TestConcurrentInsert verifies that exactly one of several concurrent
// subscriptions of the same address succeeds.
func (s *SuiteBase) TestConcurrentInsert(c *gc.C) {
	const workers = 8

	var wg sync.WaitGroup
	errCh := make(chan error, workers)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errCh <- s.store.Insert(&subscriber.Subscriber{Email: "ogion@domain.com", Name: "Ogion", Newsletter: "earthsea"})
		}()
	}
	wg.Wait()
	close(errCh)

	var inserted int
	for err := range errCh {
		if err == nil {
			inserted++
			continue
		}
		c.Assert(xerrors.Is(err, subscriber.ErrAlreadySubscribed), gc.Equals, true, gc.Commentf("got %v", err))
	}
	c.Assert(inserted, gc.Equals, 1)
}
