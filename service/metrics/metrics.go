// Package metrics serves the Prometheus scrape endpoint on its own port.
package metrics

import (
	"context"
	"io/ioutil"
	"net"
	"net/http"

	"github.com/hashicorp/go-multierror"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

const metricsEndpoint = "/metrics"

// Config encapsulates the settings for configuring the metrics service.
type Config struct {
	// The address to listen for incoming scrape requests.
	ListenAddr string

	// The source of the exported metrics. If not specified, the default
	// prometheus registry will be used instead.
	Gatherer prometheus.Gatherer

	// The logger to use. If not defined an output-discarding logger will
	// be used instead.
	Logger *logrus.Entry
}

func (cfg *Config) validate() error {
	var err error
	if cfg.ListenAddr == "" {
		err = multierror.Append(err, xerrors.Errorf("listen address has not been specified"))
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.NewEntry(&logrus.Logger{Out: ioutil.Discard})
	}
	return err
}

// Service exposes prometheus metrics over HTTP.
type Service struct {
	cfg     Config
	handler http.Handler
}

// NewService creates a new metrics service instance with the specified config.
func NewService(cfg Config) (*Service, error) {
	if err := cfg.validate(); err != nil {
		return nil, xerrors.Errorf("metrics service: config validation failed: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle(metricsEndpoint, promhttp.HandlerFor(cfg.Gatherer, promhttp.HandlerOpts{}))
	return &Service{cfg: cfg, handler: mux}, nil
}

// Name implements service.Service
func (svc *Service) Name() string { return "metrics" }

// Run implements service.Service
func (svc *Service) Run(ctx context.Context) error {
	l, err := net.Listen("tcp", svc.cfg.ListenAddr)
	if err != nil {
		return err
	}
	defer func() { _ = l.Close() }()

	srv := &http.Server{
		Addr:    svc.cfg.ListenAddr,
		Handler: svc.handler,
	}

	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	svc.cfg.Logger.WithField("addr", svc.cfg.ListenAddr).Info("starting metrics server")
	if err = srv.Serve(l); err == http.ErrServerClosed {
		// Ignore error when the server shuts down.
		err = nil
	}

	return err
}
