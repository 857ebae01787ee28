// Package service runs the long-lived components of the newsletter API
// daemon side by side.
package service

import (
	"context"
	"io/ioutil"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// Service is a long-running component of the daemon, such as an HTTP
// listener.
type Service interface {
	// Name returns the service name.
	Name() string

	// Run executes the service and blocks until the context gets cancelled
	// or an error occurs.
	Run(context.Context) error
}

// Group is a set of services that start together and stop together.
type Group struct {
	services []Service
	logger   *logrus.Entry
}

// NewGroup returns a Group for the given services. Lifecycle events are
// logged through logger; a nil logger discards them.
func NewGroup(logger *logrus.Entry, services ...Service) *Group {
	if logger == nil {
		logger = logrus.NewEntry(&logrus.Logger{Out: ioutil.Discard})
	}
	return &Group{services: services, logger: logger}
}

type exitStatus struct {
	name string
	err  error
}

// Run executes every service in the group with a shared context and returns
// once all of them have exited. The first service to fail cancels the
// others. The result accumulates every error reported, each prefixed with
// the name of the failing service.
func (g *Group) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	runCtx, cancelFn := context.WithCancel(ctx)
	defer cancelFn()

	exitCh := make(chan exitStatus, len(g.services))
	for _, s := range g.services {
		g.logger.WithField("service", s.Name()).Info("starting service")
		go func(s Service) {
			exitCh <- exitStatus{name: s.Name(), err: s.Run(runCtx)}
		}(s)
	}

	var err error
	for pending := len(g.services); pending > 0; pending-- {
		st := <-exitCh
		svcLogger := g.logger.WithField("service", st.name)
		if st.err == nil {
			svcLogger.Info("service stopped")
			continue
		}

		svcLogger.WithField("err", st.err).Error("service failed")
		err = multierror.Append(err, xerrors.Errorf("%s: %w", st.name, st.err))
		if runCtx.Err() == nil {
			g.logger.Info("stopping remaining services")
			cancelFn()
		}
	}
	return err
}
