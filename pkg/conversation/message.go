package conversation

import (
	"encoding/json"
	"time"
	"unicode/utf8"
)

// Kind tags the message variant.
type Kind string

const (
	// KindUserText is a plain text prompt from the user.
	KindUserText Kind = "user_text"
	// KindUserMedia is a user-supplied media attachment (image, audio, file).
	KindUserMedia Kind = "user_media"
	// KindModelText is a final or intermediate text reply from the model.
	KindModelText Kind = "model_text"
	// KindToolCall is a tool invocation requested by the model.
	KindToolCall Kind = "tool_call"
	// KindToolResult is the outcome of a tool invocation.
	KindToolResult Kind = "tool_result"
)

// messageOverhead approximates the per-message framing cost (role tag,
// separators) added on top of the payload when the history is resent.
const messageOverhead = 20

// Message is one entry in a conversation. Exactly one variant's fields are
// populated, selected by Kind.
type Message struct {
	Kind      Kind      `json:"kind"`
	Timestamp time.Time `json:"timestamp"`

	// user_text / model_text
	Text string `json:"text,omitempty"`

	// user_media
	MediaPath string `json:"media_path,omitempty"`
	MediaMIME string `json:"media_mime,omitempty"`

	// tool_call / tool_result
	CallID    string         `json:"call_id,omitempty"`
	ToolName  string         `json:"tool_name,omitempty"`
	Arguments map[string]any `json:"arguments,omitempty"`

	// tool_result
	Content string `json:"content,omitempty"`
	IsError bool   `json:"is_error,omitempty"`
}

// Cost is the approximate context-window cost of the message, measured in
// characters (roughly 4 characters per model token; the unit only has to be
// applied consistently against the configured budget).
func (m Message) Cost() int {
	cost := messageOverhead
	cost += utf8.RuneCountInString(m.Text)
	cost += utf8.RuneCountInString(m.Content)
	cost += utf8.RuneCountInString(m.MediaPath)
	if len(m.Arguments) > 0 {
		if data, err := json.Marshal(m.Arguments); err == nil {
			cost += utf8.RuneCountInString(string(data))
		}
	}
	return cost
}

// UserText builds a user_text message stamped now.
func UserText(text string) Message {
	return Message{Kind: KindUserText, Text: text, Timestamp: time.Now().UTC()}
}

// UserMedia builds a user_media message stamped now.
func UserMedia(path, mime string) Message {
	return Message{Kind: KindUserMedia, MediaPath: path, MediaMIME: mime, Timestamp: time.Now().UTC()}
}

// ModelText builds a model_text message stamped now.
func ModelText(text string) Message {
	return Message{Kind: KindModelText, Text: text, Timestamp: time.Now().UTC()}
}

// ToolCall builds a tool_call message stamped now.
func ToolCall(callID, tool string, args map[string]any) Message {
	return Message{Kind: KindToolCall, CallID: callID, ToolName: tool, Arguments: args, Timestamp: time.Now().UTC()}
}

// ToolResult builds a tool_result message stamped now.
func ToolResult(callID, content string, isError bool) Message {
	return Message{Kind: KindToolResult, CallID: callID, Content: content, IsError: isError, Timestamp: time.Now().UTC()}
}

// TruncateForBudget returns the suffix of msgs that fits the budget. It is a
// pure function with this policy: the most recent message is always kept;
// older messages are accumulated whole until the budget would be exceeded;
// a tool_result is only kept together with its matching tool_call (the pair
// is costed and dropped as a unit), so the windowed view never contains an
// orphaned tool reference.
func TruncateForBudget(msgs []Message, budget int) []Message {
	if len(msgs) == 0 {
		return nil
	}

	callIndex := make(map[string]int)
	for i, m := range msgs {
		if m.Kind == KindToolCall && m.CallID != "" {
			callIndex[m.CallID] = i
		}
	}

	keep := make([]bool, len(msgs))
	total := 0

	for i := len(msgs) - 1; i >= 0; i-- {
		if keep[i] {
			continue
		}

		cost := msgs[i].Cost()
		pair := -1
		if msgs[i].Kind == KindToolResult {
			if j, ok := callIndex[msgs[i].CallID]; ok && j < i && !keep[j] {
				pair = j
				cost += msgs[j].Cost()
			}
		}

		newest := i == len(msgs)-1
		if !newest && total+cost > budget {
			break
		}

		keep[i] = true
		if pair >= 0 {
			keep[pair] = true
		}
		total += cost
	}

	kept := make([]Message, 0, len(msgs))
	for i, m := range msgs {
		if keep[i] {
			kept = append(kept, m)
		}
	}
	return kept
}

// totalCost sums the cost of a message list.
func totalCost(msgs []Message) int {
	total := 0
	for _, m := range msgs {
		total += m.Cost()
	}
	return total
}
