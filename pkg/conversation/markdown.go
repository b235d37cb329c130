package conversation

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Markdown renders the conversation as a human-readable transcript for the
// show command and for exports.
func (c *Conversation) Markdown() string {
	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", c.Title)
	fmt.Fprintf(&b, "- ID: `%s`\n", c.ID)
	fmt.Fprintf(&b, "- Model: %s\n", c.Model)
	fmt.Fprintf(&b, "- Created: %s\n", c.CreatedAt.Format("2006-01-02 15:04:05 MST"))
	fmt.Fprintf(&b, "- Updated: %s\n\n", c.UpdatedAt.Format("2006-01-02 15:04:05 MST"))

	for _, m := range c.Messages {
		switch m.Kind {
		case KindUserText:
			b.WriteString("## User\n\n")
			b.WriteString(m.Text)
			b.WriteString("\n\n")
		case KindUserMedia:
			fmt.Fprintf(&b, "## User\n\n*Attached media: %s (%s)*\n\n", m.MediaPath, m.MediaMIME)
		case KindModelText:
			b.WriteString("## Assistant\n\n")
			b.WriteString(m.Text)
			b.WriteString("\n\n")
		case KindToolCall:
			args := "{}"
			if len(m.Arguments) > 0 {
				if data, err := json.Marshal(m.Arguments); err == nil {
					args = string(data)
				}
			}
			fmt.Fprintf(&b, "### Tool call: %s\n\n```json\n%s\n```\n\n", m.ToolName, args)
		case KindToolResult:
			label := "Tool result"
			if m.IsError {
				label = "Tool error"
			}
			fmt.Fprintf(&b, "### %s\n\n```\n%s\n```\n\n", label, m.Content)
		}
	}

	return b.String()
}
