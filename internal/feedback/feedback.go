// Package feedback produces the short coaching message shown with a
// patient's adherence summary.
package feedback

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"theralink-server/internal/adherence"
)

// Input is everything a provider may use to phrase a message.
type Input struct {
	Percentage float64
	Risk       adherence.RiskLabel
	MissedDays map[string]adherence.MissedDayInfo
}

// Provider generates a feedback message. Implementations may call out to
// remote services and may fail.
type Provider interface {
	Name() string
	Generate(ctx context.Context, in Input) (string, error)
}

// ErrEmptyMessage is returned by providers that produced no text.
var ErrEmptyMessage = errors.New("feedback provider returned an empty message")

// DefaultTimeout bounds a call to the primary provider.
const DefaultTimeout = 3 * time.Second

// Message is a generated message and the provider that produced it.
type Message struct {
	Text     string `json:"text"`
	Provider string `json:"provider"`
	Fallback bool   `json:"fallback"`
}

// Generator runs a primary provider under a timeout and falls back to the
// rule-based provider on error, timeout or empty output.
type Generator struct {
	primary  Provider
	fallback RuleProvider
	timeout  time.Duration
	logger   zerolog.Logger
}

// NewGenerator creates a Generator. A nil primary means rules only.
func NewGenerator(primary Provider, timeout time.Duration, logger zerolog.Logger) *Generator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Generator{primary: primary, timeout: timeout, logger: logger}
}

// Generate never fails and never blocks longer than the configured timeout.
func (g *Generator) Generate(ctx context.Context, in Input) Message {
	if g.primary == nil {
		return g.fallbackMessage(in)
	}

	text, err := g.call(ctx, in)
	if err == nil && strings.TrimSpace(text) == "" {
		err = ErrEmptyMessage
	}
	if err != nil {
		g.logger.Warn().
			Err(err).
			Str("provider", g.primary.Name()).
			Msg("feedback provider failed, using rule-based message")
		return g.fallbackMessage(in)
	}
	return Message{Text: strings.TrimSpace(text), Provider: g.primary.Name()}
}

// call runs the primary provider under the timeout. A panicking provider
// is reported as an error.
func (g *Generator) call(ctx context.Context, in Input) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	type result struct {
		text string
		err  error
	}
	done := make(chan result, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- result{err: fmt.Errorf("provider panicked: %v", r)}
			}
		}()
		text, err := g.primary.Generate(ctx, in)
		done <- result{text: text, err: err}
	}()

	select {
	case res := <-done:
		return res.text, res.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// Ping reports whether the primary provider answers within the timeout.
func (g *Generator) Ping(ctx context.Context) (string, error) {
	if g.primary == nil {
		return g.fallback.Name(), nil
	}
	_, err := g.call(ctx, Input{Percentage: 80, Risk: adherence.Classify(80)})
	return g.primary.Name(), err
}

func (g *Generator) fallbackMessage(in Input) Message {
	text, _ := g.fallback.Generate(context.Background(), in)
	return Message{Text: text, Provider: g.fallback.Name(), Fallback: g.primary != nil}
}
