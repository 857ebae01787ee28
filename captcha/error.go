package captcha

import (
	"github.com/DiegoEnriquezSerrano/api.newslt.rs/token"
	"golang.org/x/xerrors"
)

var (
	// ErrAnswerMismatch is returned by Verify when the token opens cleanly
	// but the attempt differs from the sealed answer.
	ErrAnswerMismatch = xerrors.New("captcha answer mismatch")

	// ErrNoPuzzle is returned by Issue when the challenger produced no image.
	ErrNoPuzzle = xerrors.New("challenger returned no image")
)

// Rejected returns true if err means the client supplied a bad token or a
// wrong answer, as opposed to a server-side failure. Callers that face
// untrusted users should collapse every rejected error into one response.
func Rejected(err error) bool {
	return xerrors.Is(err, ErrAnswerMismatch) ||
		xerrors.Is(err, token.ErrMalformedToken) ||
		xerrors.Is(err, token.ErrDecryptionFailed) ||
		xerrors.Is(err, token.ErrInvalidPlaintext)
}
