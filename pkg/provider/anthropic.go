package provider

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/halim/aria/pkg/conversation"
)

// Anthropic implements Client for the Claude Messages API.
type Anthropic struct {
	client anthropic.Client
}

// NewAnthropic creates an Anthropic client bound to one API key.
func NewAnthropic(apiKey string) *Anthropic {
	return &Anthropic{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
	}
}

// Name returns the vendor name.
func (p *Anthropic) Name() string {
	return "anthropic"
}

// Complete performs one Messages API call over the windowed history.
func (p *Anthropic) Complete(ctx context.Context, req Request) (*Response, error) {
	messages := make([]anthropic.MessageParam, 0, len(req.Messages))

	for _, msg := range req.Messages {
		switch msg.Kind {
		case conversation.KindUserText:
			messages = append(messages, anthropic.NewUserMessage(
				anthropic.NewTextBlock(msg.Text),
			))
		case conversation.KindUserMedia:
			messages = append(messages, anthropic.NewUserMessage(mediaBlock(msg)))
		case conversation.KindModelText:
			messages = append(messages, anthropic.MessageParam{
				Role: anthropic.MessageParamRoleAssistant,
				Content: []anthropic.ContentBlockParamUnion{
					anthropic.NewTextBlock(msg.Text),
				},
			})
		case conversation.KindToolCall:
			messages = append(messages, anthropic.MessageParam{
				Role: anthropic.MessageParamRoleAssistant,
				Content: []anthropic.ContentBlockParamUnion{
					anthropic.NewToolUseBlock(msg.CallID, msg.Arguments, msg.ToolName),
				},
			})
		case conversation.KindToolResult:
			messages = append(messages, anthropic.NewUserMessage(
				anthropic.NewToolResultBlock(msg.CallID, msg.Content, msg.IsError),
			))
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(req.Model),
		Messages:  messages,
		MaxTokens: int64(req.MaxTokens),
	}
	if req.SystemPrompt != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.SystemPrompt}}
	}
	if req.Temperature > 0 {
		params.Temperature = anthropic.Float(req.Temperature)
	}
	if len(req.Tools) > 0 {
		tools := make([]anthropic.ToolUnionParam, 0, len(req.Tools))
		for _, spec := range req.Tools {
			tool := anthropic.ToolParam{
				Name:        spec.Name,
				Description: anthropic.String(spec.Description),
				InputSchema: anthropic.ToolInputSchemaParam{
					Properties: spec.InputSchema["properties"],
				},
			}
			tool.InputSchema.Required = requiredFields(spec.InputSchema)
			tools = append(tools, anthropic.ToolUnionParam{OfTool: &tool})
		}
		params.Tools = tools
	}

	response, err := p.client.Messages.New(ctx, params)
	if err != nil {
		return nil, p.wrapError(err)
	}

	text := ""
	var toolCalls []ToolCall
	for _, block := range response.Content {
		switch b := block.AsAny().(type) {
		case anthropic.TextBlock:
			text += b.Text
		case anthropic.ToolUseBlock:
			var args map[string]any
			if err := json.Unmarshal([]byte(b.JSON.Input.Raw()), &args); err != nil {
				return nil, &Error{
					Kind:     KindInvalid,
					Provider: p.Name(),
					Message:  fmt.Sprintf("unparsable tool input for %s: %v", b.Name, err),
				}
			}
			toolCalls = append(toolCalls, ToolCall{ID: b.ID, Name: b.Name, Arguments: args})
		}
	}

	return &Response{
		Text:      text,
		ToolCalls: toolCalls,
		Usage: Usage{
			InputTokens:  int(response.Usage.InputTokens),
			OutputTokens: int(response.Usage.OutputTokens),
		},
	}, nil
}

// requiredFields normalizes a schema's "required" list. Schemas built in
// process carry []string; schemas decoded from remote tool advertisements
// carry []any.
func requiredFields(schema map[string]any) []string {
	switch v := schema["required"].(type) {
	case []string:
		return v
	case []any:
		fields := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				fields = append(fields, s)
			}
		}
		return fields
	default:
		return nil
	}
}

func (p *Anthropic) wrapError(err error) error {
	var apierr *anthropic.Error
	if errors.As(err, &apierr) {
		return &Error{
			Kind:     classify(apierr.StatusCode, apierr.Error()),
			Provider: p.Name(),
			Status:   apierr.StatusCode,
			Message:  apierr.Error(),
		}
	}
	return wrapTransport(p.Name(), err)
}

// mediaBlock inlines an image attachment as base64; anything the API cannot
// take inline is described in text so the model still sees the attachment.
func mediaBlock(msg conversation.Message) anthropic.ContentBlockParamUnion {
	if strings.HasPrefix(msg.MediaMIME, "image/") {
		if data, err := os.ReadFile(msg.MediaPath); err == nil {
			return anthropic.NewImageBlockBase64(msg.MediaMIME, base64.StdEncoding.EncodeToString(data))
		}
	}
	return anthropic.NewTextBlock(fmt.Sprintf("[attached file: %s (%s)]", msg.MediaPath, msg.MediaMIME))
}
