package pipeline

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// StaticRunner returns a canned evaluation after an optional delay. It stands in for the
// real crew in development mode.
type StaticRunner struct {
	Delay time.Duration
	// Template is formatted with the idea; defaults to a short evaluation.
	Template string
}

const defaultStaticTemplate = "Evaluation of %q: promising. Validate demand with a small pilot before scaling."

// Run waits for Delay (or ctx) and renders Template.
func (s StaticRunner) Run(ctx context.Context, idea string) (string, error) {
	if s.Delay > 0 {
		t := time.NewTimer(s.Delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return "", ctx.Err()
		case <-t.C:
		}
	}
	tmpl := s.Template
	if tmpl == "" {
		tmpl = defaultStaticTemplate
	}
	if !strings.Contains(tmpl, "%") {
		return tmpl, nil
	}
	return fmt.Sprintf(tmpl, idea), nil
}
