package conversation

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

var (
	// ErrNotFound means no stored conversation matches the identifier.
	ErrNotFound = errors.New("conversation not found")
	// ErrAmbiguousIdentifier means a prefix matched more than one conversation.
	ErrAmbiguousIdentifier = errors.New("identifier matches multiple conversations")
	// ErrEmptyStore means the store holds no conversations yet.
	ErrEmptyStore = errors.New("no conversations stored")
	// ErrDanglingToolResult means a tool result references no earlier
	// tool call in the same conversation.
	ErrDanglingToolResult = errors.New("tool result references unknown tool call")
)

// Summary is the listing view of a stored conversation.
type Summary struct {
	ID           string
	Title        string
	Model        string
	UpdatedAt    time.Time
	MessageCount int
}

// Store persists conversations as one JSON document per conversation under a
// single directory. Safe for concurrent use within a process.
type Store struct {
	mu  sync.Mutex
	dir string
}

// NewStore opens (creating if needed) the conversation directory.
func NewStore(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create conversation dir: %w", err)
	}
	return &Store{dir: dir}, nil
}

// Dir returns the backing directory.
func (s *Store) Dir() string {
	return s.dir
}

// Save writes the conversation atomically: marshal, write to a temp file in
// the same directory, then rename over the target. A failed attempt is
// retried once before the error is surfaced.
func (s *Store) Save(c *Conversation) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := checkToolPairs(c.Messages); err != nil {
		return fmt.Errorf("conversation %s: %w", c.ID, err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal conversation %s: %w", c.ID, err)
	}

	if err := s.writeAtomic(c.ID, data); err != nil {
		log.Warn().Err(err).Str("conversation_id", c.ID).Msg("save failed, retrying once")
		if err = s.writeAtomic(c.ID, data); err != nil {
			return fmt.Errorf("save conversation %s: %w", c.ID, err)
		}
	}
	return nil
}

// checkToolPairs rejects histories where a tool result precedes the tool
// call it answers. Message order is chat order; a result can only follow
// its call.
func checkToolPairs(msgs []Message) error {
	calls := make(map[string]struct{})
	for _, m := range msgs {
		switch m.Kind {
		case KindToolCall:
			calls[m.CallID] = struct{}{}
		case KindToolResult:
			if _, ok := calls[m.CallID]; !ok {
				return fmt.Errorf("%w: %s", ErrDanglingToolResult, m.CallID)
			}
		}
	}
	return nil
}

func (s *Store) writeAtomic(id string, data []byte) error {
	target := s.path(id)
	tmp, err := os.CreateTemp(s.dir, id+".*.tmp")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return err
	}
	if err := os.Rename(tmpName, target); err != nil {
		os.Remove(tmpName)
		return err
	}
	return nil
}

// Load reads a conversation by exact ID.
func (s *Store) Load(id string) (*Conversation, error) {
	data, err := os.ReadFile(s.path(id))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("read conversation %s: %w", id, err)
	}
	var c Conversation
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("parse conversation %s: %w", id, err)
	}
	return &c, nil
}

// Delete removes a stored conversation.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err := os.Remove(s.path(id)); err != nil {
		if os.IsNotExist(err) {
			return fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return fmt.Errorf("delete conversation %s: %w", id, err)
	}
	return nil
}

// List returns summaries sorted newest-first. Unreadable or corrupt files
// are skipped with a warning so one bad document cannot hide the rest.
func (s *Store) List() ([]Summary, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list conversations: %w", err)
	}

	var summaries []Summary
	for _, entry := range entries {
		name := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(name, ".json") {
			continue
		}
		id := strings.TrimSuffix(name, ".json")
		c, err := s.Load(id)
		if err != nil {
			log.Warn().Err(err).Str("file", name).Msg("skipping unreadable conversation")
			continue
		}
		summaries = append(summaries, Summary{
			ID:           c.ID,
			Title:        c.Title,
			Model:        c.Model,
			UpdatedAt:    c.UpdatedAt,
			MessageCount: len(c.Messages),
		})
	}

	sort.Slice(summaries, func(i, j int) bool {
		return summaries[i].UpdatedAt.After(summaries[j].UpdatedAt)
	})
	return summaries, nil
}

// Latest loads the most recently updated conversation.
func (s *Store) Latest() (*Conversation, error) {
	summaries, err := s.List()
	if err != nil {
		return nil, err
	}
	if len(summaries) == 0 {
		return nil, ErrEmptyStore
	}
	return s.Load(summaries[0].ID)
}

// Resolve maps a user-supplied reference to a stored conversation. Accepted
// forms, in priority order: a 0-based position in the newest-first listing
// (0 is always the most recently updated conversation), an exact ID, then a
// unique ID or suffix-hash prefix. A prefix matching more than one
// conversation is rejected rather than guessed.
func (s *Store) Resolve(ref string) (*Conversation, error) {
	ref = strings.TrimSpace(ref)
	if ref == "" {
		return nil, fmt.Errorf("%w: empty identifier", ErrNotFound)
	}

	summaries, err := s.List()
	if err != nil {
		return nil, err
	}

	if n, err := strconv.Atoi(ref); err == nil {
		if n < 0 || n >= len(summaries) {
			return nil, fmt.Errorf("%w: index %d out of range 0..%d", ErrNotFound, n, len(summaries)-1)
		}
		return s.Load(summaries[n].ID)
	}

	var matches []string
	for _, sum := range summaries {
		if sum.ID == ref {
			return s.Load(sum.ID)
		}
		if strings.HasPrefix(sum.ID, ref) || strings.HasPrefix(hashPart(sum.ID), ref) {
			matches = append(matches, sum.ID)
		}
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("%w: %s", ErrNotFound, ref)
	case 1:
		return s.Load(matches[0])
	default:
		return nil, fmt.Errorf("%w: %q matches %s", ErrAmbiguousIdentifier, ref, strings.Join(matches, ", "))
	}
}

func (s *Store) path(id string) string {
	return filepath.Join(s.dir, id+".json")
}

// hashPart returns the random suffix after the final dash of an ID.
func hashPart(id string) string {
	if i := strings.LastIndexByte(id, '-'); i >= 0 {
		return id[i+1:]
	}
	return id
}
