package subscriber

import (
	"strings"
	"testing"

	"golang.org/x/xerrors"
	gc "gopkg.in/check.v1"
)

var _ = gc.Suite(new(ParseTestSuite))

func Test(t *testing.T) { gc.TestingT(t) }

type ParseTestSuite struct{}

func (s *ParseTestSuite) TestParseName(c *gc.C) {
	specs := []struct {
		in  string
		exp string
		ok  bool
	}{
		{in: "Ursula Le Guin", exp: "Ursula Le Guin", ok: true},
		{in: "  Ursula  ", exp: "Ursula", ok: true},
		{in: "Tom & Jerry", exp: "Tom & Jerry", ok: true},
		{in: "<b>Ursula</b>", exp: "Ursula", ok: true},
		{in: "ё", exp: "ё", ok: true},
		{in: strings.Repeat("a", 256), exp: strings.Repeat("a", 256), ok: true},
		{in: strings.Repeat("a", 257)},
		{in: ""},
		{in: "   "},
		{in: "<script>alert(1)</script>"},
		{in: "Ursula (admin)"},
		{in: `back\slash`},
		{in: "{name}"},
		{in: `"quoted"`},
		{in: "a/b"},
	}

	for specIndex, spec := range specs {
		c.Logf("[spec %d] %q", specIndex, spec.in)
		got, err := ParseName(spec.in)
		if spec.ok {
			c.Assert(err, gc.IsNil)
			c.Assert(got, gc.Equals, spec.exp)
			continue
		}
		c.Assert(xerrors.Is(err, ErrInvalidName), gc.Equals, true, gc.Commentf("got %v", err))
	}
}

func (s *ParseTestSuite) TestParseEmail(c *gc.C) {
	specs := []struct {
		in string
		ok bool
	}{
		{in: "ursula@domain.com", ok: true},
		{in: " ursula@domain.com ", ok: true},
		{in: ""},
		{in: "ursuladomain.com"},
		{in: "@domain.com"},
		{in: "Ursula <ursula@domain.com>"},
	}

	for specIndex, spec := range specs {
		c.Logf("[spec %d] %q", specIndex, spec.in)
		got, err := ParseEmail(spec.in)
		if spec.ok {
			c.Assert(err, gc.IsNil)
			c.Assert(got, gc.Equals, strings.TrimSpace(spec.in))
			continue
		}
		c.Assert(xerrors.Is(err, ErrInvalidEmail), gc.Equals, true, gc.Commentf("got %v", err))
	}
}
