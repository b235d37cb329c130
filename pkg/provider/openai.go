package provider

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"github.com/halim/aria/pkg/conversation"
)

// OpenAI implements Client for the Chat Completions API.
type OpenAI struct {
	client openai.Client
}

// NewOpenAI creates an OpenAI client bound to one API key.
func NewOpenAI(apiKey string) *OpenAI {
	return &OpenAI{
		client: openai.NewClient(option.WithAPIKey(apiKey)),
	}
}

// Name returns the vendor name.
func (p *OpenAI) Name() string {
	return "openai"
}

// Complete performs one Chat Completions call over the windowed history.
func (p *OpenAI) Complete(ctx context.Context, req Request) (*Response, error) {
	messages := []openai.ChatCompletionMessageParamUnion{}
	if req.SystemPrompt != "" {
		messages = append(messages, openai.SystemMessage(req.SystemPrompt))
	}

	// Consecutive tool calls belong to one assistant message; tool results
	// must follow it as individual tool messages.
	for i := 0; i < len(req.Messages); i++ {
		msg := req.Messages[i]
		switch msg.Kind {
		case conversation.KindUserText:
			messages = append(messages, openai.UserMessage(msg.Text))
		case conversation.KindUserMedia:
			messages = append(messages, openai.UserMessage(
				fmt.Sprintf("[attached file: %s (%s)]", msg.MediaPath, msg.MediaMIME),
			))
		case conversation.KindModelText:
			messages = append(messages, openai.AssistantMessage(msg.Text))
		case conversation.KindToolCall:
			var toolCalls []openai.ChatCompletionMessageToolCall
			for ; i < len(req.Messages) && req.Messages[i].Kind == conversation.KindToolCall; i++ {
				call := req.Messages[i]
				argsJSON, err := json.Marshal(call.Arguments)
				if err != nil {
					return nil, &Error{
						Kind:     KindInvalid,
						Provider: p.Name(),
						Message:  fmt.Sprintf("marshal arguments for %s: %v", call.ToolName, err),
					}
				}
				toolCalls = append(toolCalls, openai.ChatCompletionMessageToolCall{
					ID:   call.CallID,
					Type: "function",
					Function: openai.ChatCompletionMessageToolCallFunction{
						Name:      call.ToolName,
						Arguments: string(argsJSON),
					},
				})
			}
			i--
			assistant := openai.ChatCompletionMessage{
				Role:      "assistant",
				ToolCalls: toolCalls,
			}
			messages = append(messages, assistant.ToParam())
		case conversation.KindToolResult:
			messages = append(messages, openai.ToolMessage(msg.CallID, msg.Content))
		}
	}

	params := openai.ChatCompletionNewParams{
		Model:    openai.ChatModel(req.Model),
		Messages: messages,
	}
	if req.MaxTokens > 0 {
		params.MaxTokens = openai.Int(int64(req.MaxTokens))
	}
	if req.Temperature > 0 {
		params.Temperature = openai.Float(req.Temperature)
	}
	if len(req.Tools) > 0 {
		tools := make([]openai.ChatCompletionToolParam, 0, len(req.Tools))
		for _, spec := range req.Tools {
			tools = append(tools, openai.ChatCompletionToolParam{
				Type: "function",
				Function: openai.FunctionDefinitionParam{
					Name:        spec.Name,
					Description: openai.String(spec.Description),
					Parameters:  openai.FunctionParameters(spec.InputSchema),
				},
			})
		}
		params.Tools = tools
	}

	response, err := p.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return nil, p.wrapError(err)
	}
	if len(response.Choices) == 0 {
		return nil, &Error{Kind: KindTransient, Provider: p.Name(), Message: "no response choices returned"}
	}

	choice := response.Choices[0]
	var toolCalls []ToolCall
	for _, tc := range choice.Message.ToolCalls {
		var args map[string]any
		if err := json.Unmarshal([]byte(tc.Function.Arguments), &args); err != nil {
			return nil, &Error{
				Kind:     KindInvalid,
				Provider: p.Name(),
				Message:  fmt.Sprintf("unparsable tool arguments for %s: %v", tc.Function.Name, err),
			}
		}
		toolCalls = append(toolCalls, ToolCall{ID: tc.ID, Name: tc.Function.Name, Arguments: args})
	}

	return &Response{
		Text:      choice.Message.Content,
		ToolCalls: toolCalls,
		Usage: Usage{
			InputTokens:  int(response.Usage.PromptTokens),
			OutputTokens: int(response.Usage.CompletionTokens),
		},
	}, nil
}

func (p *OpenAI) wrapError(err error) error {
	var apierr *openai.Error
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
