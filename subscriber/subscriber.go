// Package subscriber models newsletter subscriptions and the stores that
// persist them.
package subscriber

import (
	"time"

	"github.com/google/uuid"
)

// Subscription states.
const (
	StatusPendingConfirmation = "pending_confirmation"
	StatusConfirmed           = "confirmed"
)

// Subscriber describes a single email address subscribed to a newsletter.
type Subscriber struct {
	// A unique identifier for the subscription. Assigned by Store.Insert.
	ID uuid.UUID

	Email string
	Name  string

	// The username of the newsletter author.
	Newsletter string

	// One of the Status* constants. Insert defaults it to
	// StatusPendingConfirmation.
	Status string

	// The time the subscription was stored. Assigned by Store.Insert.
	SubscribedAt time.Time
}

// Store is implemented by objects that can persist subscribers.
type Store interface {
	// Insert stores a new subscriber, populating its ID and SubscribedAt
	// fields. Email addresses are compared case-insensitively; a second
	// subscription to the same newsletter fails with ErrAlreadySubscribed.
	Insert(sub *Subscriber) error

	// FindByEmail looks up the subscription of email to newsletter.
	FindByEmail(email, newsletter string) (*Subscriber, error)
}
