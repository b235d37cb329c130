package conversation

import (
	"strings"
	"time"
	"unicode"

	gonanoid "github.com/matoous/go-nanoid/v2"
)

const (
	slugMaxLen  = 40
	hashLen     = 4
	hashRunes   = "0123456789abcdefghijklmnopqrstuvwxyz"
	fallbackKey = "conversation"
)

var slugStopwords = map[string]struct{}{
	"a": {}, "an": {}, "the": {}, "and": {}, "or": {}, "but": {},
	"in": {}, "on": {}, "at": {}, "to": {}, "for": {}, "of": {},
	"with": {}, "by": {}, "is": {}, "are": {}, "was": {}, "were": {},
	"be": {}, "been": {}, "do": {}, "does": {}, "did": {}, "can": {},
	"could": {}, "will": {}, "would": {}, "should": {}, "what": {},
	"how": {}, "why": {}, "when": {}, "where": {}, "who": {}, "me": {},
	"my": {}, "you": {}, "your": {}, "i": {}, "it": {}, "this": {},
	"that": {}, "please": {},
}

// Conversation is an ordered message history plus identity metadata. It is
// not safe for concurrent use; the orchestrator owns one at a time.
type Conversation struct {
	ID        string    `json:"id"`
	Title     string    `json:"title"`
	Model     string    `json:"model"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
	// KeyIndex is the credential pool index that last served this
	// conversation, or -1 when unknown. Resuming with the same key keeps
	// provider-side prompt caches warm.
	KeyIndex int       `json:"key_index"`
	Messages []Message `json:"messages"`
}

// New creates a conversation whose ID and title derive from the first prompt.
func New(firstPrompt, model string) *Conversation {
	now := time.Now().UTC()
	return &Conversation{
		ID:        NewID(firstPrompt),
		Title:     titleFrom(firstPrompt),
		Model:     model,
		CreatedAt: now,
		UpdatedAt: now,
		KeyIndex:  -1,
	}
}

// Append adds messages and bumps the update timestamp.
func (c *Conversation) Append(msgs ...Message) {
	c.Messages = append(c.Messages, msgs...)
	c.UpdatedAt = time.Now().UTC()
}

// Cost is the total context cost of the full history.
func (c *Conversation) Cost() int {
	return totalCost(c.Messages)
}

// Window returns the message suffix that fits the context budget.
func (c *Conversation) Window(budget int) []Message {
	return TruncateForBudget(c.Messages, budget)
}

// NewID derives a stable-looking identifier from the prompt: a stopword
// filtered kebab-case slug capped at 40 characters, then a dash and a 4
// character random suffix to disambiguate similar prompts.
func NewID(prompt string) string {
	slug := Slug(prompt)
	suffix, err := gonanoid.Generate(hashRunes, hashLen)
	if err != nil {
		// crypto/rand failure; fall back to a timestamp-derived suffix.
		suffix = time.Now().UTC().Format("0405")
	}
	return slug + "-" + suffix
}

// Slug converts a prompt to a lowercase kebab slug with common stopwords
// removed, at most 40 characters, never ending in a dash.
func Slug(prompt string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(prompt) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		} else {
			b.WriteRune(' ')
		}
	}

	var words []string
	for _, w := range strings.Fields(b.String()) {
		if _, skip := slugStopwords[w]; skip {
			continue
		}
		words = append(words, w)
	}
	if len(words) == 0 {
		return fallbackKey
	}

	slug := strings.Join(words, "-")
	if runes := []rune(slug); len(runes) > slugMaxLen {
		slug = strings.TrimRight(string(runes[:slugMaxLen]), "-")
	}
	return slug
}

// titleFrom takes the first line of the prompt, trimmed to a display width.
func titleFrom(prompt string) string {
	title := strings.TrimSpace(prompt)
	if i := strings.IndexByte(title, '\n'); i >= 0 {
		title = strings.TrimSpace(title[:i])
	}
	if title == "" {
		return "Untitled conversation"
	}
	const maxTitle = 80
	runes := []rune(title)
	if len(runes) > maxTitle {
		title = string(runes[:maxTitle-3]) + "..."
	}
	return title
}
