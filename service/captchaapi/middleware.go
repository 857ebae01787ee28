package captchaapi

import (
	"net/http"

	"github.com/opentracing/opentracing-go"
	"github.com/opentracing/opentracing-go/ext"
	"github.com/sirupsen/logrus"
)

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(status int) {
	r.status = status
	r.ResponseWriter.WriteHeader(status)
}

// instrument wraps every request in a server span, continuing any trace
// propagated by the caller, and logs the request once it completes.
func (svc *Service) instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := svc.cfg.Clock.Now()

		tracer := opentracing.GlobalTracer()
		wireCtx, _ := tracer.Extract(opentracing.HTTPHeaders, opentracing.HTTPHeadersCarrier(r.Header))
		span := tracer.StartSpan("HTTP "+r.Method, ext.RPCServerOption(wireCtx))
		defer span.Finish()
		ext.HTTPMethod.Set(span, r.Method)
		ext.HTTPUrl.Set(span, r.URL.Path)

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r.WithContext(opentracing.ContextWithSpan(r.Context(), span)))

		ext.HTTPStatusCode.Set(span, uint16(rec.status))
		if rec.status >= http.StatusInternalServerError {
			ext.Error.Set(span, true)
		}

		svc.cfg.Logger.WithFields(logrus.Fields{
			"method": r.Method,
			"path":   r.URL.Path,
			"status": rec.status,
			"took":   svc.cfg.Clock.Now().Sub(start).String(),
		}).Debug("handled request")
	})
}
