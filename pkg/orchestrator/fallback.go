package orchestrator

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/halim/aria/pkg/conversation"
	"github.com/halim/aria/pkg/credential"
	"github.com/halim/aria/pkg/provider"
)

// complete performs one model call, walking the credential pool on failure.
// Transient errors get same-credential retries with backoff first; rate
// limits rotate immediately; auth rejections, malformed requests and
// cancellation surface at once. Returns the pool index that succeeded.
func (o *Orchestrator) complete(ctx context.Context, window []conversation.Message) (*provider.Response, int, error) {
	handle := o.startHandle()

	req := provider.Request{
		Model:        o.cfg.Model,
		SystemPrompt: o.cfg.SystemPrompt,
		MaxTokens:    o.cfg.MaxTokens,
		Temperature:  o.cfg.Temperature,
		Messages:     window,
		Tools:        o.toolSpecs(),
	}

	var lastErr error
	for {
		client, err := o.newClient(handle.Key)
		if err != nil {
			return nil, 0, err
		}
		if handle.Flagged {
			log.Warn().Int("credential_index", handle.Index).
				Msg("trying credential with suspicious format")
		}

		resp, err := o.tryCredential(ctx, client, req)
		if err == nil {
			return resp, handle.Index, nil
		}
		if ctx.Err() != nil {
			return nil, 0, ctx.Err()
		}

		pe, classified := provider.AsError(err)
		if !classified || !pe.Retryable() {
			return nil, 0, err
		}
		lastErr = err

		next, ok := o.pool.Next(handle)
		if !ok {
			return nil, 0, fmt.Errorf("%w: last failure: %v", ErrCredentialsExhausted, lastErr)
		}
		log.Warn().
			Int("from_index", handle.Index).
			Int("to_index", next.Index).
			Str("reason", string(pe.Kind)).
			Msg("rotating credential")
		if o.metrics != nil {
			o.metrics.CredentialRotationsTotal.Inc()
		}
		handle = next
	}
}

// tryCredential calls the model with one credential, retrying transient
// failures in place before giving up on it.
func (o *Orchestrator) tryCredential(ctx context.Context, client provider.Client, req provider.Request) (*provider.Response, error) {
	var lastErr error
	for attempt := 0; ; attempt++ {
		start := time.Now()
		resp, err := client.Complete(ctx, req)
		o.observeCall(client.Name(), err, start)
		if err == nil {
			return resp, nil
		}
		lastErr = err

		if ctx.Err() != nil || !provider.IsTransient(err) || attempt >= o.cfg.TransientRetries {
			return nil, lastErr
		}

		backoff := o.cfg.RetryBackoff * time.Duration(attempt+1)
		log.Debug().Err(err).Dur("backoff", backoff).Int("attempt", attempt+1).
			Msg("transient model failure, retrying")
		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (o *Orchestrator) startHandle() credential.Handle {
	if o.lastGood >= 0 {
		return o.pool.StartAt(o.lastGood)
	}
	return o.pool.Start()
}

func (o *Orchestrator) observeCall(providerName string, err error, start time.Time) {
	if o.metrics == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "error"
		if pe, ok := provider.AsError(err); ok {
			outcome = string(pe.Kind)
		}
	}
	o.metrics.ProviderCallsTotal.WithLabelValues(providerName, outcome).Inc()
	o.metrics.ProviderCallDuration.WithLabelValues(providerName).Observe(time.Since(start).Seconds())
}
