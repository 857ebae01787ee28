// Package captchaapi exposes captcha issuance, captcha verification and
// captcha-gated newsletter subscriptions over a JSON HTTP API.
package captchaapi

import (
	"context"
	"encoding/json"
	"io/ioutil"
	"net"
	"net/http"

	"github.com/DiegoEnriquezSerrano/api.newslt.rs/captcha"
	"github.com/DiegoEnriquezSerrano/api.newslt.rs/subscriber"
	"github.com/gorilla/mux"
	"github.com/hashicorp/go-multierror"
	"github.com/juju/clock"
	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

//go:generate mockgen -package mocks -destination mocks/mocks.go github.com/DiegoEnriquezSerrano/api.newslt.rs/service/captchaapi SubscriberStore

const (
	captchaEndpoint   = "/captcha"
	verifyEndpoint    = "/captcha/verify"
	subscribeEndpoint = "/subscriptions"
	healthEndpoint    = "/health_check"

	maxRequestBodySize = 64 << 10

	msgCaptchaRejected = "invalid or incorrect captcha answer"
	msgBadRequest      = "invalid request body"
	msgIssueFailed     = "could not generate a captcha; please try again later"
	msgInternalError   = "an error occurred; please try again later"
)

// SubscriberStore defines the API for persisting new subscribers.
type SubscriberStore interface {
	Insert(*subscriber.Subscriber) error
}

// Config encapsulates the settings for configuring the captcha API service.
type Config struct {
	// Issues captcha challenges.
	Issuer *captcha.Issuer

	// Checks answers to challenges created by Issuer. It must be configured
	// with the same secret key.
	Verifier *captcha.Verifier

	// Persists subscribers that passed the captcha check.
	Subscribers SubscriberStore

	// The address to listen for incoming requests.
	ListenAddr string

	// The registry for the service metrics. If not specified, a private
	// registry will be used instead.
	Registerer prometheus.Registerer

	// A clock instance for timing requests. If not specified, the default
	// wall-clock will be used instead.
	Clock clock.Clock

	// The logger to use. If not defined an output-discarding logger will
	// be used instead.
	Logger *logrus.Entry
}

func (cfg *Config) validate() error {
	var err error
	if cfg.ListenAddr == "" {
		err = multierror.Append(err, xerrors.Errorf("listen address has not been specified"))
	}
	if cfg.Issuer == nil {
		err = multierror.Append(err, xerrors.Errorf("captcha issuer has not been provided"))
	}
	if cfg.Verifier == nil {
		err = multierror.Append(err, xerrors.Errorf("captcha verifier has not been provided"))
	}
	if cfg.Subscribers == nil {
		err = multierror.Append(err, xerrors.Errorf("subscriber store has not been provided"))
	}
	if cfg.Registerer == nil {
		cfg.Registerer = prometheus.NewRegistry()
	}
	if cfg.Clock == nil {
		cfg.Clock = clock.WallClock
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.NewEntry(&logrus.Logger{Out: ioutil.Discard})
	}
	return err
}

// Service implements the captcha API.
type Service struct {
	cfg     Config
	router  *mux.Router
	metrics *metrics
}

// NewService creates a new captcha API service instance with the specified
// config.
func NewService(cfg Config) (*Service, error) {
	if err := cfg.validate(); err != nil {
		return nil, xerrors.Errorf("captcha API service: config validation failed: %w", err)
	}

	svc := &Service{
		cfg:     cfg,
		router:  mux.NewRouter(),
		metrics: newMetrics(cfg.Registerer),
	}

	svc.router.HandleFunc(captchaEndpoint, svc.issueCaptcha).Methods("GET")
	svc.router.HandleFunc(verifyEndpoint, svc.verifyCaptcha).Methods("POST")
	svc.router.HandleFunc(subscribeEndpoint, svc.subscribe).Methods("POST")
	svc.router.HandleFunc(healthEndpoint, svc.healthCheck).Methods("GET")
	svc.router.NotFoundHandler = http.HandlerFunc(svc.notFound)
	svc.router.MethodNotAllowedHandler = http.HandlerFunc(svc.methodNotAllowed)
	return svc, nil
}

// Name implements service.Service
func (svc *Service) Name() string { return "captcha-api" }

// Run implements service.Service
func (svc *Service) Run(ctx context.Context) error {
	l, err := net.Listen("tcp", svc.cfg.ListenAddr)
	if err != nil {
		return err
	}
	defer func() { _ = l.Close() }()

	srv := &http.Server{
		Addr:    svc.cfg.ListenAddr,
		Handler: svc.instrument(svc.router),
	}

	go func() {
		<-ctx.Done()
		_ = srv.Close()
	}()

	svc.cfg.Logger.WithField("addr", svc.cfg.ListenAddr).Info("starting captcha API server")
	if err = srv.Serve(l); err == http.ErrServerClosed {
		// Ignore error when the server shuts down.
		err = nil
	}

	return err
}

type captchaResponse struct {
	ChallengeImage string `json:"challenge_image"`
	Challenge      string `json:"challenge"`
}

type verifyRequest struct {
	SignedAnswer  string `json:"signed_answer"`
	AnswerAttempt string `json:"answer_attempt"`
}

type subscribeRequest struct {
	AnswerAttempt string `json:"answer_attempt"`
	Email         string `json:"email"`
	Name          string `json:"name"`
	SignedAnswer  string `json:"signed_answer"`
	Username      string `json:"username"`
}

type successResponse struct {
	Success bool `json:"success"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func (svc *Service) issueCaptcha(w http.ResponseWriter, r *http.Request) {
	span, _ := opentracing.StartSpanFromContext(r.Context(), "IssueCaptcha")
	defer span.Finish()

	ch, err := svc.cfg.Issuer.Issue()
	if err != nil {
		ext.Error.Set(span, true)
		svc.metrics.issueFailures.Inc()
		svc.cfg.Logger.WithField("err", err).Error("could not issue captcha")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: msgIssueFailed})
		return
	}

	svc.metrics.issued.Inc()
	writeJSON(w, http.StatusOK, captchaResponse{
		ChallengeImage: ch.DataURI(),
		Challenge:      ch.Token,
	})
}

func (svc *Service) verifyCaptcha(w http.ResponseWriter, r *http.Request) {
	span, _ := opentracing.StartSpanFromContext(r.Context(), "VerifyCaptcha")
	defer span.Finish()

	var req verifyRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if !svc.checkAnswer(w, span, req.SignedAnswer, req.AnswerAttempt) {
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (svc *Service) subscribe(w http.ResponseWriter, r *http.Request) {
	span, _ := opentracing.StartSpanFromContext(r.Context(), "Subscribe")
	defer span.Finish()

	var req subscribeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if !svc.checkAnswer(w, span, req.SignedAnswer, req.AnswerAttempt) {
		svc.metrics.subscriptions.WithLabelValues(outcomeCaptcha).Inc()
		return
	}

	name, err := subscriber.ParseName(req.Name)
	if err != nil {
		svc.rejectSubscription(w, subscriber.ErrInvalidName.Error())
		return
	}
	email, err := subscriber.ParseEmail(req.Email)
	if err != nil {
		svc.rejectSubscription(w, subscriber.ErrInvalidEmail.Error())
		return
	}
	if req.Username == "" {
		svc.rejectSubscription(w, "newsletter username not specified")
		return
	}

	sub := &subscriber.Subscriber{
		Email:      email,
		Name:       name,
		Newsletter: req.Username,
	}
	if err = svc.cfg.Subscribers.Insert(sub); err != nil {
		if xerrors.Is(err, subscriber.ErrAlreadySubscribed) {
			svc.metrics.subscriptions.WithLabelValues(outcomeDuplicate).Inc()
			writeJSON(w, http.StatusConflict, errorResponse{Error: subscriber.ErrAlreadySubscribed.Error()})
			return
		}

		ext.Error.Set(span, true)
		svc.metrics.subscriptions.WithLabelValues(outcomeError).Inc()
		svc.cfg.Logger.WithField("err", err).Error("could not store subscriber")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: msgInternalError})
		return
	}

	svc.metrics.subscriptions.WithLabelValues(outcomeCreated).Inc()
	svc.cfg.Logger.WithFields(logrus.Fields{
		"subscriber_id": sub.ID,
		"newsletter":    sub.Newsletter,
	}).Info("new subscriber")
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

// checkAnswer verifies a captcha answer and writes the rejection response
// if it is wrong. Clients always receive the same message; the specific
// reason is only logged.
func (svc *Service) checkAnswer(w http.ResponseWriter, span opentracing.Span, tok, attempt string) bool {
	err := svc.cfg.Verifier.Verify(tok, attempt)
	if err == nil {
		svc.metrics.verifications.WithLabelValues(outcomeAccepted).Inc()
		span.SetTag("captcha.outcome", outcomeAccepted)
		return true
	}

	svc.metrics.verifications.WithLabelValues(outcomeRejected).Inc()
	span.SetTag("captcha.outcome", outcomeRejected)
	if !captcha.Rejected(err) {
		ext.Error.Set(span, true)
		svc.cfg.Logger.WithField("err", err).Error("captcha verification failed")
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: msgInternalError})
		return false
	}

	svc.cfg.Logger.WithField("reason", err.Error()).Info("captcha answer rejected")
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msgCaptchaRejected})
	return false
}

func (svc *Service) rejectSubscription(w http.ResponseWriter, msg string) {
	svc.metrics.subscriptions.WithLabelValues(outcomeInvalid).Inc()
	writeJSON(w, http.StatusBadRequest, errorResponse{Error: msg})
}

func (svc *Service) healthCheck(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
}

func (svc *Service) notFound(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusNotFound, errorResponse{Error: "not found"})
}

func (svc *Service) methodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusMethodNotAllowed, errorResponse{Error: "method not allowed"})
}

// decodeJSON reads the request body into v. On failure it writes a 400
// response and returns false.
func decodeJSON(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestBodySize)).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: msgBadRequest})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
