package captcha

import (
	"bytes"
	"encoding/base64"
	"image"
	"image/png"

	"github.com/DiegoEnriquezSerrano/api.newslt.rs/secret"
	"github.com/DiegoEnriquezSerrano/api.newslt.rs/token"
	"golang.org/x/xerrors"
)

// Challenge is what gets handed to a client: the rendered puzzle and the
// token that seals its answer.
type Challenge struct {
	// Image holds the PNG-encoded puzzle.
	Image []byte

	// Token is the sealed answer. It is opaque to the client.
	Token string

	img image.Image
}

// DataURI returns the puzzle image as a data:image/png;base64 URI suitable
// for an <img> src attribute.
func (c *Challenge) DataURI() string {
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(c.Image)
}

// Issuer creates challenges. It keeps no record of what it issued.
type Issuer struct {
	challenger Challenger
	codec      *token.Codec
}

// NewIssuer returns an Issuer that draws puzzles from c and seals their
// answers with key.
func NewIssuer(c Challenger, key *secret.Key) (*Issuer, error) {
	if c == nil {
		return nil, xerrors.New("challenger not provided")
	}
	if err := checkKey(key); err != nil {
		return nil, err
	}
	return &Issuer{challenger: c, codec: token.NewCodec(key)}, nil
}

// Issue generates a puzzle and seals its answer. An error means the
// challenge could not be produced and the caller may retry.
func (iss *Issuer) Issue() (*Challenge, error) {
	img, answer := iss.challenger.Challenge()
	if img == nil {
		return nil, ErrNoPuzzle
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, xerrors.Errorf("encode puzzle image: %w", err)
	}

	tok, err := iss.codec.Encode(answer)
	if err != nil {
		return nil, xerrors.Errorf("seal answer: %w", err)
	}

	return &Challenge{Image: buf.Bytes(), Token: tok, img: img}, nil
}
