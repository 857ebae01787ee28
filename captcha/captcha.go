// Package captcha issues and verifies stateless image challenges. The
// expected answer travels with the client inside an encrypted token, so
// nothing is remembered between Issue and Verify.
package captcha

import (
	"image"

	"github.com/DiegoEnriquezSerrano/api.newslt.rs/secret"
	"golang.org/x/xerrors"
)

//go:generate mockgen -package mocks -destination mocks/mocks.go github.com/DiegoEnriquezSerrano/api.newslt.rs/captcha Challenger,Prompter

// Challenger is implemented by objects that can generate CAPTCHA image challenges.
type Challenger interface {
	Challenge() (img image.Image, imgText string)
}

// Prompter is implemented by objects that display a CAPTCHA image to the user,
// ask them to type their contents and return back their response.
type Prompter interface {
	Prompt(img image.Image) string
}

// ChallengeUser issues a challenge with iss and prompts the user for an
// answer using p. The answer is checked against the issued token only, just
// like a remote client would have it checked. A wrong answer yields false
// and a nil error; the error is reserved for issuance failures.
func ChallengeUser(iss *Issuer, ver *Verifier, p Prompter) (bool, error) {
	ch, err := iss.Issue()
	if err != nil {
		return false, err
	}

	if err = ver.Verify(ch.Token, p.Prompt(ch.img)); err != nil {
		if Rejected(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func checkKey(key *secret.Key) error {
	if key == nil {
		return xerrors.New("secret key not provided")
	}
	return nil
}
