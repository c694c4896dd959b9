package classifier

import (
	"context"
	"log/slog"
	"time"

	"helpdesk-ai/internal/domain"
)

// Fallback runs a primary classifier under a timeout and drops to the
// rule classifier on any error. Its Classify never fails.
type Fallback struct {
	primary  domain.Classifier
	rules    domain.Classifier
	timeout  time.Duration
	logger   *slog.Logger
	onResult func(fellBack bool)
}

// NewFallback wraps primary. A nil primary means rules only.
func NewFallback(primary domain.Classifier, timeout time.Duration, logger *slog.Logger) *Fallback {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Fallback{primary: primary, rules: NewRules(), timeout: timeout, logger: logger}
}

// OnResult registers a callback reporting whether each call fell back.
func (f *Fallback) OnResult(fn func(fellBack bool)) { f.onResult = fn }

// Classify implements domain.Classifier.
func (f *Fallback) Classify(ctx context.Context, message, summary string) (domain.Classification, error) {
	if f.primary != nil {
		cctx, cancel := context.WithTimeout(ctx, f.timeout)
		c, err := f.primary.Classify(cctx, message, summary)
		cancel()
		if err == nil {
			if c.Intent == "" {
				c.Intent = domain.IntentKnowledge
			}
			if c.Entities == nil {
				c.Entities = map[string]string{}
			}
			f.report(false)
			return c, nil
		}
		f.logger.Warn("classifier failed, using keyword rules", "error", err)
	}
	f.report(f.primary != nil)
	c, _ := f.rules.Classify(ctx, message, summary)
	return c, nil
}

func (f *Fallback) report(fellBack bool) {
	if f.onResult != nil {
		f.onResult(fellBack)
	}
}

var _ domain.Classifier = (*Fallback)(nil)
