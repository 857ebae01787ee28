// Package tracer builds Jaeger tracers for the daemon and keeps track of
// them so that buffered spans can be flushed on exit.
package tracer

import (
	"io"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/opentracing/opentracing-go"
	"github.com/uber/jaeger-client-go"
	jaegercfg "github.com/uber/jaeger-client-go/config"
	"golang.org/x/xerrors"
)

// Pool keeps track of instantiated tracers and provides a helper method for
// closing all of them at once.
type Pool struct {
	mu      sync.Mutex
	closers []io.Closer
}

// NewPool returns an empty Pool.
func NewPool() *Pool {
	return new(Pool)
}

// Close flushes and closes every tracer created through the pool.
func (p *Pool) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	var err error
	for _, closer := range p.closers {
		if cErr := closer.Close(); cErr != nil {
			err = multierror.Append(err, cErr)
		}
	}

	p.closers = nil
	return err
}

// GetTracer returns a new Jaeger tracer for serviceName. Reporter and agent
// settings are read from the standard JAEGER_* environment variables. A
// sampleRatio of 1 or more records every span; smaller values sample that
// fraction of traces.
func (p *Pool) GetTracer(serviceName string, sampleRatio float64) (opentracing.Tracer, error) {
	cfg, err := jaegercfg.FromEnv()
	if err != nil {
		return nil, xerrors.Errorf("jaeger config: %w", err)
	}

	cfg.ServiceName = serviceName
	cfg.Sampler = &jaegercfg.SamplerConfig{
		Type:  jaeger.SamplerTypeConst,
		Param: 1,
	}
	if sampleRatio < 1 {
		cfg.Sampler = &jaegercfg.SamplerConfig{
			Type:  jaeger.SamplerTypeProbabilistic,
			Param: sampleRatio,
		}
	}

	tracer, closer, err := cfg.NewTracer()
	if err != nil {
		return nil, xerrors.Errorf("jaeger tracer: %w", err)
	}

	p.mu.Lock()
	p.closers = append(p.closers, closer)
	p.mu.Unlock()
	return tracer, nil
}

// InstallGlobal creates a tracer with GetTracer and installs it as the
// opentracing global tracer.
func (p *Pool) InstallGlobal(serviceName string, sampleRatio float64) error {
	tracer, err := p.GetTracer(serviceName, sampleRatio)
	if err != nil {
		return err
	}
	opentracing.SetGlobalTracer(tracer)
	return nil
}
