package pg

import (
	"database/sql"

	"github.com/DiegoEnriquezSerrano/api.newslt.rs/subscriber"
	"github.com/google/uuid"
	"github.com/lib/pq"
	"golang.org/x/xerrors"
)

var (
	createSchemaQuery = `
CREATE TABLE IF NOT EXISTS subscriptions (
	id UUID PRIMARY KEY,
	email TEXT NOT NULL,
	name TEXT NOT NULL,
	newsletter TEXT NOT NULL,
	status TEXT NOT NULL,
	subscribed_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
);
CREATE UNIQUE INDEX IF NOT EXISTS subscriptions_email_newsletter_idx ON subscriptions (lower(email), newsletter);
`
	insertSubscriberQuery = `
INSERT INTO subscriptions (id, email, name, newsletter, status) VALUES ($1, $2, $3, $4, $5)
RETURNING subscribed_at
`
	findSubscriberQuery = "SELECT id, email, name, status, subscribed_at FROM subscriptions WHERE lower(email)=lower($1) AND newsletter=$2"

	// Compile-time check for ensuring Store implements subscriber.Store.
	_ subscriber.Store = (*Store)(nil)
)

// Store implements a subscriber store that persists subscriptions to a
// PostgreSQL instance.
type Store struct {
	db *sql.DB
}

// NewStore returns a Store instance that connects to the PostgreSQL instance
// specified by dsn.
func NewStore(dsn string) (*Store, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, err
	}

	return &Store{db: db}, nil
}

// Migrate creates the subscriptions table and its indices if they do not
// already exist.
func (s *Store) Migrate() error {
	if _, err := s.db.Exec(createSchemaQuery); err != nil {
		return xerrors.Errorf("migrate: %w", err)
	}
	return nil
}

// Close terminates the connection to the backing PostgreSQL instance.
func (s *Store) Close() error {
	return s.db.Close()
}

// Insert implements subscriber.Store.
func (s *Store) Insert(sub *subscriber.Subscriber) error {
	id := uuid.New()
	status := sub.Status
	if status == "" {
		status = subscriber.StatusPendingConfirmation
	}

	row := s.db.QueryRow(insertSubscriberQuery, id, sub.Email, sub.Name, sub.Newsletter, status)
	if err := row.Scan(&sub.SubscribedAt); err != nil {
		if isUniqueViolationError(err) {
			err = subscriber.ErrAlreadySubscribed
		}
		return xerrors.Errorf("insert subscriber: %w", err)
	}

	sub.ID = id
	sub.Status = status
	sub.SubscribedAt = sub.SubscribedAt.UTC()
	return nil
}

// FindByEmail implements subscriber.Store.
func (s *Store) FindByEmail(email, newsletter string) (*subscriber.Subscriber, error) {
	row := s.db.QueryRow(findSubscriberQuery, email, newsletter)
	sub := &subscriber.Subscriber{Newsletter: newsletter}
	if err := row.Scan(&sub.ID, &sub.Email, &sub.Name, &sub.Status, &sub.SubscribedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, xerrors.Errorf("find subscriber: %w", subscriber.ErrNotFound)
		}

		return nil, xerrors.Errorf("find subscriber: %w", err)
	}

	sub.SubscribedAt = sub.SubscribedAt.UTC()
	return sub, nil
}

// isUniqueViolationError returns true if err indicates a unique constraint
// violation.
func isUniqueViolationError(err error) bool {
	pqErr, valid := err.(*pq.Error)
	if !valid {
		return false
	}

	return pqErr.Code.Name() == "unique_violation"
}
