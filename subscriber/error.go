package subscriber

import "golang.org/x/xerrors"

var (
	// ErrNotFound is returned when a subscriber lookup fails.
	ErrNotFound = xerrors.New("not found")

	// ErrAlreadySubscribed is returned when inserting an email address that
	// is already subscribed to the same newsletter.
	ErrAlreadySubscribed = xerrors.New("already subscribed")

	// ErrInvalidName is returned by ParseName.
	ErrInvalidName = xerrors.New("invalid subscriber name")

	// ErrInvalidEmail is returned by ParseEmail.
	ErrInvalidEmail = xerrors.New("invalid subscriber email")
)
