package conversation

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := NewStore(filepath.Join(t.TempDir(), "conversations"))
	require.NoError(t, err)
	return store
}

func storedConversation(t *testing.T, store *Store, id, title string, updated time.Time) *Conversation {
	t.Helper()
	c := &Conversation{
		ID:        id,
		Title:     title,
		Model:     "claude-sonnet-4",
		CreatedAt: updated,
		UpdatedAt: updated,
		Messages:  []Message{UserText(title)},
	}
	require.NoError(t, store.Save(c))
	return c
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	store := newTestStore(t)

	c := New("test my parser please", "claude-sonnet-4")
	c.Append(
		UserText("test my parser please"),
		ToolCall("c1", "read_file", map[string]any{"path": "parser.go"}),
		ToolResult("c1", "package parser", false),
		ModelText("Looks fine."),
	)
	require.NoError(t, store.Save(c))

	loaded, err := store.Load(c.ID)
	require.NoError(t, err)
	assert.Equal(t, c.ID, loaded.ID)
	assert.Equal(t, c.Title, loaded.Title)
	require.Len(t, loaded.Messages, 4)
	assert.Equal(t, KindToolCall, loaded.Messages[1].Kind)
	assert.Equal(t, "parser.go", loaded.Messages[1].Arguments["path"])
}

func TestSaveRejectsDanglingToolResult(t *testing.T) {
	store := newTestStore(t)

	c := New("broken history", "claude-sonnet-4")
	c.Append(
		UserText("broken history"),
		ToolResult("never-called", "stale output", false),
	)
	err := store.Save(c)
	assert.ErrorIs(t, err, ErrDanglingToolResult)

	// A result appearing before its call is just as invalid.
	c = New("out of order", "claude-sonnet-4")
	c.Append(
		UserText("out of order"),
		ToolResult("c1", "too early", false),
		ToolCall("c1", "read_file", map[string]any{"path": "a.go"}),
	)
	assert.ErrorIs(t, store.Save(c), ErrDanglingToolResult)

	// A call without a result is fine; the turn may still be in flight.
	c = New("pending call", "claude-sonnet-4")
	c.Append(
		UserText("pending call"),
		ToolCall("c2", "read_file", map[string]any{"path": "b.go"}),
	)
	assert.NoError(t, store.Save(c))
}

func TestSaveLeavesNoTempFiles(t *testing.T) {
	store := newTestStore(t)
	storedConversation(t, store, "tidy-abcd", "tidy", time.Now().UTC())

	entries, err := os.ReadDir(store.Dir())
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "tidy-abcd.json", entries[0].Name())
}

func TestLoadMissing(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Load("nope-0000")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestListNewestFirst(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	storedConversation(t, store, "oldest-aaaa", "oldest", base)
	storedConversation(t, store, "newest-cccc", "newest", base.Add(2*time.Hour))
	storedConversation(t, store, "middle-bbbb", "middle", base.Add(time.Hour))

	summaries, err := store.List()
	require.NoError(t, err)
	require.Len(t, summaries, 3)
	assert.Equal(t, "newest-cccc", summaries[0].ID)
	assert.Equal(t, "middle-bbbb", summaries[1].ID)
	assert.Equal(t, "oldest-aaaa", summaries[2].ID)
	assert.Equal(t, 1, summaries[0].MessageCount)
}

func TestListSkipsCorruptFiles(t *testing.T) {
	store := newTestStore(t)
	storedConversation(t, store, "good-aaaa", "good", time.Now().UTC())
	require.NoError(t, os.WriteFile(filepath.Join(store.Dir(), "broken.json"), []byte("{not json"), 0o644))

	summaries, err := store.List()
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, "good-aaaa", summaries[0].ID)
}

func TestLatest(t *testing.T) {
	store := newTestStore(t)

	_, err := store.Latest()
	assert.ErrorIs(t, err, ErrEmptyStore)

	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	storedConversation(t, store, "old-aaaa", "old", base)
	storedConversation(t, store, "new-bbbb", "new", base.Add(time.Hour))

	latest, err := store.Latest()
	require.NoError(t, err)
	assert.Equal(t, "new-bbbb", latest.ID)
}

func TestResolveByIndex(t *testing.T) {
	store := newTestStore(t)
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	storedConversation(t, store, "old-aaaa", "old", base)
	storedConversation(t, store, "new-bbbb", "new", base.Add(time.Hour))

	// Index 0 is always the most recently updated conversation.
	c, err := store.Resolve("0")
	require.NoError(t, err)
	assert.Equal(t, "new-bbbb", c.ID)

	c, err = store.Resolve("1")
	require.NoError(t, err)
	assert.Equal(t, "old-aaaa", c.ID)

	_, err = store.Resolve("2")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.Resolve("-1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestResolveByExactID(t *testing.T) {
	store := newTestStore(t)
	storedConversation(t, store, "fix-build-a1b2", "fix build", time.Now().UTC())

	c, err := store.Resolve("fix-build-a1b2")
	require.NoError(t, err)
	assert.Equal(t, "fix-build-a1b2", c.ID)
}

func TestResolveByPrefix(t *testing.T) {
	store := newTestStore(t)
	now := time.Now().UTC()
	storedConversation(t, store, "fix-build-a1b2", "fix build", now)
	storedConversation(t, store, "write-docs-c3d4", "write docs", now)

	c, err := store.Resolve("fix")
	require.NoError(t, err)
	assert.Equal(t, "fix-build-a1b2", c.ID)

	// Hash suffix prefix works too.
	c, err = store.Resolve("c3d4")
	require.NoError(t, err)
	assert.Equal(t, "write-docs-c3d4", c.ID)
}

func TestResolveAmbiguousPrefix(t *testing.T) {
	store := newTestStore(t)
	now := time.Now().UTC()
	storedConversation(t, store, "fix-build-a1b2", "fix build", now)
	storedConversation(t, store, "fix-tests-c3d4", "fix tests", now)

	_, err := store.Resolve("fix")
	assert.ErrorIs(t, err, ErrAmbiguousIdentifier)
}

func TestResolveUnknown(t *testing.T) {
	store := newTestStore(t)
	_, err := store.Resolve("missing")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = store.Resolve("  ")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDelete(t *testing.T) {
	store := newTestStore(t)
	storedConversation(t, store, "gone-aaaa", "gone", time.Now().UTC())

	require.NoError(t, store.Delete("gone-aaaa"))
	_, err := store.Load("gone-aaaa")
	assert.ErrorIs(t, err, ErrNotFound)

	assert.ErrorIs(t, store.Delete("gone-aaaa"), ErrNotFound)
}
