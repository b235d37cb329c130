package tools

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/halim/aria/pkg/toolserver"
)

// Remote proxies one tool served by a connected tool server. Arguments are
// forwarded verbatim; the server's schema is advertised untouched.
type Remote struct {
	session *toolserver.Session
	desc    toolserver.ToolDescriptor
	timeout time.Duration
}

// NewRemote wraps a remote tool descriptor as a registrable tool.
func NewRemote(session *toolserver.Session, desc toolserver.ToolDescriptor, timeout time.Duration) *Remote {
	if timeout <= 0 {
		timeout = toolserver.DefaultCallTimeout
	}
	return &Remote{session: session, desc: desc, timeout: timeout}
}

func (t *Remote) Name() string        { return t.desc.Name }
func (t *Remote) Description() string { return t.desc.Description }

// Params derives a flat parameter view from the remote schema, for display.
func (t *Remote) Params() []Param {
	schema := t.desc.InputSchema
	properties, ok := schema["properties"].(map[string]any)
	if !ok {
		return nil
	}
	required := map[string]bool{}
	if raw, ok := schema["required"].([]any); ok {
		for _, r := range raw {
			if name, ok := r.(string); ok {
				required[name] = true
			}
		}
	}

	params := make([]Param, 0, len(properties))
	for name, propData := range properties {
		prop, _ := propData.(map[string]any)
		param := Param{Name: name, Required: required[name]}
		if typeVal, ok := prop["type"].(string); ok {
			param.Type = typeVal
		}
		if desc, ok := prop["description"].(string); ok {
			param.Description = desc
		}
		params = append(params, param)
	}
	return params
}

// InputSchema forwards the server's schema so validation matches what the
// server itself would accept.
func (t *Remote) InputSchema() map[string]any {
	return t.desc.InputSchema
}

func (t *Remote) Execute(ctx context.Context, args map[string]any) (string, error) {
	outcome, err := t.session.CallTool(ctx, t.desc.Name, args, t.timeout)
	if err != nil {
		return "", err
	}
	if outcome.IsError {
		return "", errors.New(outcome.Content)
	}
	return outcome.Content, nil
}

// RegisterRemote connects to a tool server and registers every tool it
// advertises. A connect failure is returned for the caller to log; the run
// continues with local tools only.
func RegisterRemote(ctx context.Context, reg *Registry, address string, timeout time.Duration) (*toolserver.Session, error) {
	session, err := toolserver.Connect(ctx, address)
	if err != nil {
		return nil, err
	}

	descriptors, err := session.ListTools(ctx)
	if err != nil {
		session.Close()
		return nil, err
	}

	for _, desc := range descriptors {
		if err := reg.Register(NewRemote(session, desc, timeout)); err != nil {
			log.Warn().Err(err).Str("tool", desc.Name).Str("address", address).
				Msg("skipping remote tool")
		}
	}
	if len(descriptors) > 0 {
		log.Info().Int("tools", len(descriptors)).Str("address", address).
			Msg("remote tools registered")
	}
	return session, nil
}

// String identifies the tool and its origin in logs.
func (t *Remote) String() string {
	return fmt.Sprintf("%s@%s", t.desc.Name, t.session.Address())
}
