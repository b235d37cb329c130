// Package orchestrator drives one conversational turn end to end: window
// the history, call the model with credential fallback, execute requested
// tools, feed results back, and commit the exchange to the store.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/halim/aria/internal/metrics"
	"github.com/halim/aria/internal/tracing"
	"github.com/halim/aria/pkg/conversation"
	"github.com/halim/aria/pkg/credential"
	"github.com/halim/aria/pkg/provider"
	"github.com/halim/aria/pkg/tools"
)

// Abort reasons reported in TurnOutcome.
const (
	AbortIterationLimit = "IterationLimitExceeded"
)

// ErrCredentialsExhausted means every credential in the pool was tried and
// none produced a successful model call.
var ErrCredentialsExhausted = errors.New("all credentials exhausted")

// Defaults applied by New when the config leaves a field zero.
const (
	DefaultMaxIterations    = 10
	DefaultTransientRetries = 2
	DefaultRetryBackoff     = 500 * time.Millisecond
	DefaultContextBudget    = 100_000
	DefaultMaxTokens        = 4096
)

// Config is the per-run orchestration configuration, sourced by the CLI
// layer and consumed here as plain values.
type Config struct {
	Provider     string
	Model        string
	SystemPrompt string
	MaxTokens    int
	Temperature  float64

	// ContextBudget is the history window size in characters.
	ContextBudget int
	// MaxIterations bounds the model/tool loop within one turn.
	MaxIterations int
	// TransientRetries is the number of same-credential retries before
	// rotating on a transient failure.
	TransientRetries int
	RetryBackoff     time.Duration

	// PreferredCredential is the pool index to try first, or -1 to pick a
	// pseudo-random anchor. Resumed conversations pass the index that
	// served them last so provider-side caches stay warm.
	PreferredCredential int

	ToolTimeout time.Duration
}

// TurnOutcome is what one turn produced.
type TurnOutcome struct {
	// Text is the final answer, empty when the turn aborted.
	Text string
	// ConversationID identifies the persisted conversation for resume.
	ConversationID string
	// Iterations is the number of model calls made.
	Iterations int
	// Aborted is set when the loop hit a bound instead of a final answer.
	Aborted     bool
	AbortReason string
	// CredentialIndex is the pool index that served the last successful
	// call, for the caller to persist as the next preferred index.
	CredentialIndex int
}

// Orchestrator runs turns. One instance handles one conversation at a time.
type Orchestrator struct {
	cfg      Config
	pool     *credential.Pool
	store    *conversation.Store
	registry *tools.Registry
	metrics  *metrics.Metrics

	// newClient is swappable in tests.
	newClient func(apiKey string) (provider.Client, error)

	lastGood int
}

// New wires an orchestrator. registry may be nil when tool execution is
// disabled; m may be nil when metrics are not collected.
func New(cfg Config, pool *credential.Pool, store *conversation.Store, registry *tools.Registry, m *metrics.Metrics) (*Orchestrator, error) {
	if pool == nil {
		return nil, errors.New("credential pool is required")
	}
	if store == nil {
		return nil, errors.New("conversation store is required")
	}
	if cfg.Model == "" {
		return nil, errors.New("model is required")
	}

	if cfg.MaxIterations <= 0 {
		cfg.MaxIterations = DefaultMaxIterations
	}
	if cfg.TransientRetries <= 0 {
		cfg.TransientRetries = DefaultTransientRetries
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = DefaultRetryBackoff
	}
	if cfg.ContextBudget <= 0 {
		cfg.ContextBudget = DefaultContextBudget
	}
	if cfg.MaxTokens <= 0 {
		cfg.MaxTokens = DefaultMaxTokens
	}

	providerName := cfg.Provider
	return &Orchestrator{
		cfg:      cfg,
		pool:     pool,
		store:    store,
		registry: registry,
		metrics:  m,
		newClient: func(apiKey string) (provider.Client, error) {
			return provider.New(providerName, apiKey)
		},
		lastGood: cfg.PreferredCredential,
	}, nil
}

// RunTurn appends the user messages to the conversation and drives the
// model/tool loop until a final answer or a bound. The exchange, including
// partial tool progress, is committed to the store; only a canceled context
// leaves the store untouched.
func (o *Orchestrator) RunTurn(ctx context.Context, conv *conversation.Conversation, msgs ...conversation.Message) (*TurnOutcome, error) {
	if conv == nil {
		return nil, errors.New("conversation is required")
	}
	if len(msgs) == 0 {
		return nil, errors.New("at least one user message is required")
	}

	start := time.Now()
	turnID := tracing.TurnID(ctx)
	conv.Append(msgs...)

	outcome := &TurnOutcome{ConversationID: conv.ID}
	for iteration := 1; iteration <= o.cfg.MaxIterations; iteration++ {
		outcome.Iterations = iteration

		window := conv.Window(o.cfg.ContextBudget)
		if len(window) < len(conv.Messages) {
			log.Debug().
				Str("turn_id", turnID).
				Int("kept", len(window)).
				Int("total", len(conv.Messages)).
				Msg("history truncated to context budget")
			if o.metrics != nil {
				o.metrics.ContextTruncationsTotal.Inc()
			}
		}

		resp, credIndex, err := o.complete(ctx, window)
		if err != nil {
			if ctx.Err() != nil {
				// The turn is incomplete; leave the store as it was.
				o.observeTurn("canceled", start)
				return nil, ctx.Err()
			}
			if saveErr := o.save(conv); saveErr != nil {
				log.Error().Err(saveErr).Str("conversation_id", conv.ID).
					Msg("failed to persist partial turn")
			}
			o.observeTurn("failed", start)
			return nil, fmt.Errorf("model call failed on iteration %d: %w", iteration, err)
		}
		o.lastGood = credIndex
		outcome.CredentialIndex = credIndex

		if len(resp.ToolCalls) == 0 {
			conv.Append(conversation.ModelText(resp.Text))
			outcome.Text = resp.Text
			if err := o.save(conv); err != nil {
				return nil, err
			}
			o.observeTurn("completed", start)
			return outcome, nil
		}

		if resp.Text != "" {
			conv.Append(conversation.ModelText(resp.Text))
		}
		for _, call := range resp.ToolCalls {
			conv.Append(conversation.ToolCall(call.ID, call.Name, call.Arguments))
		}

		results := o.executeTools(ctx, resp.ToolCalls)
		if ctx.Err() != nil {
			o.observeTurn("canceled", start)
			return nil, ctx.Err()
		}
		conv.Append(results...)
	}

	outcome.Aborted = true
	outcome.AbortReason = AbortIterationLimit
	log.Warn().
		Str("turn_id", turnID).
		Int("iterations", o.cfg.MaxIterations).
		Str("conversation_id", conv.ID).
		Msg("tool loop hit the iteration limit")

	if err := o.save(conv); err != nil {
		return nil, err
	}
	o.observeTurn("aborted", start)
	return outcome, nil
}

func (o *Orchestrator) save(conv *conversation.Conversation) error {
	if o.lastGood >= 0 {
		conv.KeyIndex = o.lastGood
	}
	if err := o.store.Save(conv); err != nil {
		return err
	}
	if o.metrics != nil {
		o.metrics.ConversationCostObserved.Observe(float64(conv.Cost()))
	}
	return nil
}

func (o *Orchestrator) observeTurn(status string, start time.Time) {
	if o.metrics == nil {
		return
	}
	o.metrics.TurnsTotal.WithLabelValues(status).Inc()
	o.metrics.TurnDuration.Observe(time.Since(start).Seconds())
}

func (o *Orchestrator) toolSpecs() []provider.ToolSpec {
	if o.registry == nil {
		return nil
	}
	return o.registry.Specs()
}
