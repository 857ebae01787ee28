package main

import (
	"context"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"syscall"

	"github.com/DiegoEnriquezSerrano/api.newslt.rs/captcha"
	"github.com/DiegoEnriquezSerrano/api.newslt.rs/captcha/puzzle"
	"github.com/DiegoEnriquezSerrano/api.newslt.rs/secret"
	"github.com/DiegoEnriquezSerrano/api.newslt.rs/service"
	"github.com/DiegoEnriquezSerrano/api.newslt.rs/service/captchaapi"
	"github.com/DiegoEnriquezSerrano/api.newslt.rs/service/metrics"
	"github.com/DiegoEnriquezSerrano/api.newslt.rs/subscriber"
	"github.com/DiegoEnriquezSerrano/api.newslt.rs/subscriber/store/memory"
	"github.com/DiegoEnriquezSerrano/api.newslt.rs/subscriber/store/pg"
	"github.com/DiegoEnriquezSerrano/api.newslt.rs/tracer"
	"github.com/juju/clock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli"
	"golang.org/x/xerrors"
)

var (
	appName = "newsltr-api"
	appSha  = "populated-at-link-time"
	logger  *logrus.Entry
)

func main() {
	host, _ := os.Hostname()
	rootLogger := logrus.New()
	rootLogger.SetFormatter(new(logrus.JSONFormatter))
	logger = rootLogger.WithFields(logrus.Fields{
		"app":  appName,
		"sha":  appSha,
		"host": host,
	})

	if err := makeApp().Run(os.Args); err != nil {
		logger.WithField("err", err).Error("shutting down due to error")
		_ = os.Stderr.Sync()
		os.Exit(1)
	}
}

func makeApp() *cli.App {
	app := cli.NewApp()
	app.Name = appName
	app.Version = appSha
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:   "captcha-secret",
			EnvVar: "CAPTCHA_SECRET",
			Usage:  "The 32-byte secret used to seal captcha answers",
		},
		cli.StringFlag{
			Name:   "captcha-secret-encoding",
			Value:  "raw",
			EnvVar: "CAPTCHA_SECRET_ENCODING",
			Usage:  "How the captcha secret is encoded (supported values: raw, base64)",
		},
		cli.StringFlag{
			Name:   "subscriber-store-uri",
			Value:  "in-memory://",
			EnvVar: "SUBSCRIBER_STORE_URI",
			Usage:  "The URI for connecting to the subscriber store (supported URIs: in-memory://, postgresql://user@host:5432/newsletter?sslmode=disable)",
		},
		cli.StringFlag{
			Name:   "puzzle-config",
			EnvVar: "PUZZLE_CONFIG",
			Usage:  "An optional YAML file describing the appearance of captcha puzzles",
		},
		cli.IntFlag{
			Name:   "api-port",
			Value:  8000,
			EnvVar: "API_PORT",
			Usage:  "The port for exposing the captcha API",
		},
		cli.IntFlag{
			Name:   "metrics-port",
			Value:  9090,
			EnvVar: "METRICS_PORT",
			Usage:  "The port for exposing prometheus metrics",
		},
		cli.BoolFlag{
			Name:   "enable-tracing",
			EnvVar: "ENABLE_TRACING",
			Usage:  "Report request traces to jaeger (configured through the JAEGER_* envvars)",
		},
		cli.Float64Flag{
			Name:   "trace-sample-ratio",
			Value:  1,
			EnvVar: "TRACE_SAMPLE_RATIO",
			Usage:  "The fraction of requests to trace when tracing is enabled",
		},
	}
	app.Action = runMain
	return app
}

func runMain(appCtx *cli.Context) error {
	key, err := secret.Load(appCtx.String("captcha-secret"), appCtx.String("captcha-secret-encoding"))
	if err != nil {
		return xerrors.Errorf("invalid captcha secret (see --captcha-secret): %w", err)
	}
	defer key.Zero()

	challenger, err := getChallenger(appCtx.String("puzzle-config"))
	if err != nil {
		return err
	}
	issuer, err := captcha.NewIssuer(challenger, key)
	if err != nil {
		return err
	}
	verifier, err := captcha.NewVerifier(key)
	if err != nil {
		return err
	}

	store, err := getSubscriberStore(appCtx.String("subscriber-store-uri"), logger)
	if err != nil {
		return err
	}
	if closer, ok := store.(io.Closer); ok {
		defer func() { _ = closer.Close() }()
	}

	if appCtx.Bool("enable-tracing") {
		tracers := tracer.NewPool()
		if err = tracers.InstallGlobal(appName, appCtx.Float64("trace-sample-ratio")); err != nil {
			return err
		}
		defer func() { _ = tracers.Close() }()
		logger.Info("tracing enabled")
	}

	apiSvc, err := captchaapi.NewService(captchaapi.Config{
		Issuer:      issuer,
		Verifier:    verifier,
		Subscribers: store,
		ListenAddr:  fmt.Sprintf(":%d", appCtx.Int("api-port")),
		Registerer:  prometheus.DefaultRegisterer,
		Clock:       clock.WallClock,
		Logger:      logger.WithField("service", "captcha-api"),
	})
	if err != nil {
		return err
	}
	metricsSvc, err := metrics.NewService(metrics.Config{
		ListenAddr: fmt.Sprintf(":%d", appCtx.Int("metrics-port")),
		Gatherer:   prometheus.DefaultGatherer,
		Logger:     logger.WithField("service", "metrics"),
	})
	if err != nil {
		return err
	}

	ctx, cancelFn := context.WithCancel(context.Background())
	defer cancelFn()

	// Start signal watcher
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGHUP, syscall.SIGTERM)
		select {
		case s := <-sigCh:
			logger.WithField("signal", s.String()).Infof("shutting down due to signal")
			cancelFn()
		case <-ctx.Done():
		}
	}()

	if err = service.NewGroup(logger, apiSvc, metricsSvc).Run(ctx); err != nil {
		return err
	}
	logger.Info("shutdown complete")
	return nil
}

func getChallenger(configPath string) (*puzzle.Generator, error) {
	cfg := puzzle.DefaultConfig()
	if configPath != "" {
		var err error
		if cfg, err = puzzle.LoadConfig(configPath); err != nil {
			return nil, err
		}
	}
	return puzzle.NewGenerator(cfg)
}

func getSubscriberStore(storeURI string, logger *logrus.Entry) (subscriber.Store, error) {
	if storeURI == "" {
		return nil, xerrors.Errorf("subscriber store URI must be specified with --subscriber-store-uri")
	}

	uri, err := url.Parse(storeURI)
	if err != nil {
		return nil, xerrors.Errorf("could not parse subscriber store URI: %w", err)
	}

	switch uri.Scheme {
	case "in-memory":
		logger.Info("using in-memory subscriber store")
		return memory.NewStore(clock.WallClock), nil
	case "postgresql", "postgres":
		logger.Info("using postgres subscriber store")
		store, err := pg.NewStore(storeURI)
		if err != nil {
			return nil, err
		}
		if err = store.Migrate(); err != nil {
			_ = store.Close()
			return nil, err
		}
		return store, nil
	default:
		return nil, xerrors.Errorf("unsupported subscriber store URI scheme: %q", uri.Scheme)
	}
}
