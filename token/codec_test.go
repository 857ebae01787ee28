package token

import (
	"bytes"
	"encoding/base64"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/DiegoEnriquezSerrano/api.newslt.rs/secret"
	"golang.org/x/xerrors"
	gc "gopkg.in/check.v1"
)

var _ = gc.Suite(new(CodecTestSuite))

func Test(t *testing.T) { gc.TestingT(t) }

type CodecTestSuite struct {
	key *secret.Key
}

func (s *CodecTestSuite) SetUpTest(c *gc.C) {
	s.key = mustKey(c, "njE17BV5QLYO82V3UWoa22ZwwdiD40l2")
}

func (s *CodecTestSuite) TestRoundTrip(c *gc.C) {
	specs := []string{
		"",
		"AB3F7Q",
		"lorem ipsum dolor sit amet",
		"ünïcödé ✓ 漢字",
		strings.Repeat("x", 4096),
	}

	for _, plaintext := range specs {
		tok, err := Encode(plaintext, s.key)
		c.Assert(err, gc.IsNil)

		got, err := Decode(tok, s.key)
		c.Assert(err, gc.IsNil)
		c.Assert(got, gc.Equals, plaintext)
	}
}

func (s *CodecTestSuite) TestWireFormat(c *gc.C) {
	nonce := bytes.Repeat([]byte{0xab}, NonceSize)
	codec := NewCodec(s.key).WithRandom(bytes.NewReader(nonce))

	tok, err := codec.Encode("AB3F7Q")
	c.Assert(err, gc.IsNil)

	raw, err := base64.StdEncoding.DecodeString(tok)
	c.Assert(err, gc.IsNil)
	c.Assert(raw, gc.HasLen, NonceSize+len("AB3F7Q")+TagSize)
	c.Assert(raw[:NonceSize], gc.DeepEquals, nonce)

	// The same key and nonce always produce the same token.
	again, err := NewCodec(s.key).WithRandom(bytes.NewReader(nonce)).Encode("AB3F7Q")
	c.Assert(err, gc.IsNil)
	c.Assert(again, gc.Equals, tok)
}

func (s *CodecTestSuite) TestFreshNoncePerToken(c *gc.C) {
	seen := make(map[string]struct{})
	for i := 0; i < 100; i++ {
		tok, err := Encode("AB3F7Q", s.key)
		c.Assert(err, gc.IsNil)

		_, dup := seen[tok]
		c.Assert(dup, gc.Equals, false, gc.Commentf("token reused after %d encodings", i))
		seen[tok] = struct{}{}
	}
}

func (s *CodecTestSuite) TestBitFlipsAreDetected(c *gc.C) {
	tok, err := Encode("AB3F7Q", s.key)
	c.Assert(err, gc.IsNil)
	raw, err := base64.StdEncoding.DecodeString(tok)
	c.Assert(err, gc.IsNil)

	for i := range raw {
		for bit := 0; bit < 8; bit++ {
			tampered := append([]byte(nil), raw...)
			tampered[i] ^= 1 << uint(bit)

			got, err := Decode(base64.StdEncoding.EncodeToString(tampered), s.key)
			c.Assert(err, gc.Equals, ErrDecryptionFailed, gc.Commentf("byte %d bit %d decoded to %q", i, bit, got))
		}
	}
}

func (s *CodecTestSuite) TestCorruptedCharactersAreDetected(c *gc.C) {
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789+/"

	tok, err := Encode("AB3F7Q", s.key)
	c.Assert(err, gc.IsNil)

	for i := range tok {
		replacement := alphabet[(strings.IndexByte(alphabet, tok[i])+1)%len(alphabet)]
		corrupted := tok[:i] + string(replacement) + tok[i+1:]

		_, err := Decode(corrupted, s.key)
		c.Assert(isTokenErr(err), gc.Equals, true, gc.Commentf("position %d: got %v", i, err))
	}

	_, err = Decode(tok+"x", s.key)
	c.Assert(xerrors.Is(err, ErrMalformedToken), gc.Equals, true)
}

func (s *CodecTestSuite) TestWrongKey(c *gc.C) {
	other := mustKey(c, "tNuS550e9os25IFZxw518GlNSK3ouiY1")

	tok, err := Encode("AB3F7Q", s.key)
	c.Assert(err, gc.IsNil)

	_, err = Decode(tok, other)
	c.Assert(err, gc.Equals, ErrDecryptionFailed)
}

func (s *CodecTestSuite) TestMalformedTokens(c *gc.C) {
	specs := []struct {
		descr string
		tok   string
		exp   error
	}{
		{descr: "bad base64", tok: "not-valid-base64!!", exp: ErrMalformedToken},
		{descr: "empty", tok: "", exp: ErrMalformedToken},
		{descr: "11 zero bytes", tok: base64.StdEncoding.EncodeToString(make([]byte, 11)), exp: ErrMalformedToken},
		{descr: "url alphabet", tok: "-_-_-_-_-_-_-_-_", exp: ErrMalformedToken},
		{descr: "nonce only", tok: base64.StdEncoding.EncodeToString(make([]byte, NonceSize)), exp: ErrDecryptionFailed},
		{descr: "nonce and short tag", tok: base64.StdEncoding.EncodeToString(make([]byte, NonceSize+TagSize-1)), exp: ErrDecryptionFailed},
		{descr: "nonce and zero tag", tok: base64.StdEncoding.EncodeToString(make([]byte, NonceSize+TagSize)), exp: ErrDecryptionFailed},
	}

	for specIndex, spec := range specs {
		c.Logf("[spec %d] %s", specIndex, spec.descr)
		got, err := Decode(spec.tok, s.key)
		c.Assert(got, gc.Equals, "")
		c.Assert(xerrors.Is(err, spec.exp), gc.Equals, true, gc.Commentf("got %v", err))
	}
}

func (s *CodecTestSuite) TestLineBreaksAreRejected(c *gc.C) {
	tok, err := Encode("AB3F7Q", s.key)
	c.Assert(err, gc.IsNil)
	mid := len(tok) / 2

	specs := []struct {
		descr string
		tok   string
	}{
		{descr: "LF inside token", tok: tok[:mid] + "\n" + tok[mid:]},
		{descr: "CR inside token", tok: tok[:mid] + "\r" + tok[mid:]},
		{descr: "trailing CRLF", tok: tok + "\r\n"},
		{descr: "leading LF", tok: "\n" + tok},
	}

	for specIndex, spec := range specs {
		c.Logf("[spec %d] %s", specIndex, spec.descr)
		got, err := Decode(spec.tok, s.key)
		c.Assert(got, gc.Equals, "")
		c.Assert(xerrors.Is(err, ErrMalformedToken), gc.Equals, true, gc.Commentf("got %v", err))
	}

	// The untouched token still opens.
	got, err := Decode(tok, s.key)
	c.Assert(err, gc.IsNil)
	c.Assert(got, gc.Equals, "AB3F7Q")
}

func (s *CodecTestSuite) TestZeroedKey(c *gc.C) {
	key := mustKey(c, "tNuS550e9os25IFZxw518GlNSK3ouiY1")
	codec := NewCodec(key)

	tok, err := codec.Encode("AB3F7Q")
	c.Assert(err, gc.IsNil)

	key.Zero()

	_, err = codec.Encode("AB3F7Q")
	c.Assert(xerrors.Is(err, ErrEncryptionFailed), gc.Equals, true, gc.Commentf("got %v", err))

	_, err = codec.Decode(tok)
	c.Assert(err, gc.Equals, ErrDecryptionFailed)
}

func (s *CodecTestSuite) TestInvalidUTF8Plaintext(c *gc.C) {
	tok, err := Encode("\xff\xfe\xfd", s.key)
	c.Assert(err, gc.IsNil)

	_, err = Decode(tok, s.key)
	c.Assert(err, gc.Equals, ErrInvalidPlaintext)
}

func (s *CodecTestSuite) TestNonceSourceFailure(c *gc.C) {
	codec := NewCodec(s.key).WithRandom(failingReader{})

	_, err := codec.Encode("AB3F7Q")
	c.Assert(xerrors.Is(err, ErrEncryptionFailed), gc.Equals, true)
	c.Assert(err, gc.ErrorMatches, ".*entropy exhausted.*")
}

func (s *CodecTestSuite) TestMissingKey(c *gc.C) {
	_, err := Encode("AB3F7Q", nil)
	c.Assert(xerrors.Is(err, ErrEncryptionFailed), gc.Equals, true)

	tok, err := Encode("AB3F7Q", s.key)
	c.Assert(err, gc.IsNil)
	_, err = Decode(tok, nil)
	c.Assert(err, gc.Equals, ErrDecryptionFailed)
}

func (s *CodecTestSuite) TestConcurrentUse(c *gc.C) {
	codec := NewCodec(s.key)

	var wg sync.WaitGroup
	errCh := make(chan error, 32)
	for i := 0; i < cap(errCh); i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			plaintext := strings.Repeat("A", i)
			tok, err := codec.Encode(plaintext)
			if err != nil {
				errCh <- err
				return
			}
			got, err := codec.Decode(tok)
			if err != nil {
				errCh <- err
				return
			}
			if got != plaintext {
				errCh <- xerrors.Errorf("expected %q; got %q", plaintext, got)
			}
		}(i)
	}
	wg.Wait()
	close(errCh)

	for err := range errCh {
		c.Fatal(err)
	}
}

func isTokenErr(err error) bool {
	return xerrors.Is(err, ErrMalformedToken) || xerrors.Is(err, ErrDecryptionFailed)
}

func mustKey(c *gc.C, s string) *secret.Key {
	k, err := secret.KeyFromString(s)
	c.Assert(err, gc.IsNil)
	return k
}

type failingReader struct{}

func (failingReader) Read([]byte) (int, error) { return 0, errors.New("entropy exhausted") }
