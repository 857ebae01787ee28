package service

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	logtest "github.com/sirupsen/logrus/hooks/test"
	"golang.org/x/xerrors"
	gc "gopkg.in/check.v1"
)

var _ = gc.Suite(new(GroupTestSuite))

func Test(t *testing.T) { gc.TestingT(t) }

type GroupTestSuite struct{}

func (s *GroupTestSuite) TestFailureStopsSiblings(c *gc.C) {
	var stopped int32
	grp := NewGroup(nil,
		dummyService{id: "captcha-api", stopped: &stopped},
		dummyService{id: "metrics", err: xerrors.Errorf("address already in use")},
		dummyService{id: "other", stopped: &stopped},
	)

	err := grp.Run(context.TODO())
	c.Assert(err, gc.ErrorMatches, "(?ms).*metrics: address already in use.*")
	c.Assert(atomic.LoadInt32(&stopped), gc.Equals, int32(2))
}

func (s *GroupTestSuite) TestErrorsAccumulate(c *gc.C) {
	grp := NewGroup(nil,
		dummyService{id: "captcha-api", err: xerrors.Errorf("address already in use")},
		dummyService{id: "metrics", err: xerrors.Errorf("address already in use")},
	)

	err := grp.Run(context.TODO())
	c.Assert(err, gc.ErrorMatches, "(?ms).*captcha-api: address already in use.*")
	c.Assert(err, gc.ErrorMatches, "(?ms).*metrics: address already in use.*")
}

func (s *GroupTestSuite) TestCancelledContext(c *gc.C) {
	grp := NewGroup(nil,
		dummyService{id: "captcha-api"},
		dummyService{id: "metrics"},
	)

	ctx, cancelFn := context.WithTimeout(context.TODO(), 200*time.Millisecond)
	defer cancelFn()
	c.Assert(grp.Run(ctx), gc.IsNil)
}

func (s *GroupTestSuite) TestEmptyGroup(c *gc.C) {
	c.Assert(NewGroup(nil).Run(context.TODO()), gc.IsNil)
}

func (s *GroupTestSuite) TestLifecycleIsLogged(c *gc.C) {
	logger, hook := logtest.NewNullLogger()
	grp := NewGroup(logrus.NewEntry(logger),
		dummyService{id: "captcha-api"},
		dummyService{id: "metrics", err: xerrors.Errorf("address already in use")},
	)

	err := grp.Run(context.TODO())
	c.Assert(err, gc.Not(gc.IsNil))

	started := map[string]bool{}
	var stopped, failed []string
	var stopping int
	for _, entry := range hook.AllEntries() {
		name, _ := entry.Data["service"].(string)
		switch entry.Message {
		case "starting service":
			c.Assert(entry.Level, gc.Equals, logrus.InfoLevel)
			started[name] = true
		case "service stopped":
			c.Assert(entry.Level, gc.Equals, logrus.InfoLevel)
			stopped = append(stopped, name)
		case "service failed":
			c.Assert(entry.Level, gc.Equals, logrus.ErrorLevel)
			c.Assert(entry.Data["err"], gc.ErrorMatches, "address already in use")
			failed = append(failed, name)
		case "stopping remaining services":
			stopping++
		default:
			c.Fatalf("unexpected log entry %q", entry.Message)
		}
	}

	c.Assert(started, gc.DeepEquals, map[string]bool{"captcha-api": true, "metrics": true})
	c.Assert(stopped, gc.DeepEquals, []string{"captcha-api"})
	c.Assert(failed, gc.DeepEquals, []string{"metrics"})
	c.Assert(stopping, gc.Equals, 1)
}

type dummyService struct {
	id      string
	err     error
	stopped *int32
}

func (s dummyService) Name() string { return s.id }
func (s dummyService) Run(ctx context.Context) error {
	if s.err != nil {
		return s.err
	}

	<-ctx.Done()
	if s.stopped != nil {
		atomic.AddInt32(s.stopped, 1)
	}
	return nil
}
