package inference

import (
	"context"
	"fmt"
	"time"

	"podcast-be/internal/domain"
	"podcast-be/internal/metrics"
	"podcast-be/pkg/logger"
)

// DefaultTimeout bounds a single inference run
const DefaultTimeout = 3 * time.Second

// Guard runs an Inferrer so that login never waits on it for long and
// never fails because of it. Any error, panic, timeout or out-of-taxonomy
// label degrades to an empty result.
type Guard struct {
	inner    Inferrer
	taxonomy *Taxonomy
	timeout  time.Duration
	logger   *logger.Logger
	metrics  metrics.Recorder
}

// NewGuard wraps inner. A zero timeout uses DefaultTimeout.
func NewGuard(inner Inferrer, taxonomy *Taxonomy, timeout time.Duration, log *logger.Logger, rec metrics.Recorder) *Guard {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if rec == nil {
		rec = metrics.Nop{}
	}
	return &Guard{
		inner:    inner,
		taxonomy: taxonomy,
		timeout:  timeout,
		logger:   log,
		metrics:  rec,
	}
}

type outcome struct {
	result domain.Demographics
	err    error
}

// Run returns the inferred demographics, or domain.NoDemographics
func (g *Guard) Run(ctx context.Context, accessToken string, hints domain.DemographicHints) domain.Demographics {
	if hints.Empty() {
		g.metrics.RecordInference("skipped")
		return domain.NoDemographics
	}

	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	done := make(chan outcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- outcome{err: fmt.Errorf("inference panicked: %v", r)}
			}
		}()
		res, err := g.inner.Infer(ctx, accessToken, hints)
		done <- outcome{result: res, err: err}
	}()

	select {
	case <-ctx.Done():
		g.metrics.RecordInference("timeout")
		g.logger.WithField("timeout", g.timeout.String()).Warn("Demographic inference timed out")
		return domain.NoDemographics
	case out := <-done:
		if out.err != nil {
			g.metrics.RecordInference("error")
			g.logger.WithError(out.err).Warn("Demographic inference failed")
			return domain.NoDemographics
		}
		return g.accept(out.result)
	}
}

// accept drops labels the taxonomy does not know
func (g *Guard) accept(res domain.Demographics) domain.Demographics {
	if res.Persona != "" && !g.taxonomy.ValidPersona(res.Persona) {
		g.logger.WithField("persona", res.Persona).Warn("Discarding unknown inferred persona")
		res.Persona = ""
	}
	if res.Vertical != "" && !g.taxonomy.ValidVertical(res.Vertical) {
		g.logger.WithField("vertical", res.Vertical).Warn("Discarding unknown inferred vertical")
		res.Vertical = ""
	}

	switch {
	case res.Persona == "" && res.Vertical == "":
		res.Confidence = domain.ConfidenceNone
		g.metrics.RecordInference("empty")
	case res.Confidence == "":
		res.Confidence = domain.ConfidenceLow
		g.metrics.RecordInference("ok")
	default:
		g.metrics.RecordInference("ok")
	}
	return res
}
