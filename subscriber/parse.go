package subscriber

import (
	"html"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/xerrors"
)

const (
	maxNameLength  = 256
	forbiddenChars = `/()"<>\{}`
)

var markupPolicy = bluemonday.StrictPolicy()

// ParseName strips any markup from s and checks that what remains is a
// usable display name.
func ParseName(s string) (string, error) {
	name := strings.TrimSpace(html.UnescapeString(markupPolicy.Sanitize(s)))
	switch {
	case name == "":
		return "", xerrors.Errorf("name is empty: %w", ErrInvalidName)
	case utf8.RuneCountInString(name) > maxNameLength:
		return "", xerrors.Errorf("name is longer than %d characters: %w", maxNameLength, ErrInvalidName)
	case strings.ContainsAny(name, forbiddenChars):
		return "", xerrors.Errorf("name contains one of %s: %w", forbiddenChars, ErrInvalidName)
	}
	return name, nil
}

// ParseEmail checks that s is a bare email address.
func ParseEmail(s string) (string, error) {
	s = strings.TrimSpace(s)
	addr, err := mail.ParseAddress(s)
	if err != nil || addr.Address != s {
		return "", xerrors.Errorf("%q is not an email address: %w", s, ErrInvalidEmail)
	}
	return addr.Address, nil
}
