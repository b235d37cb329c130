// Package credential holds the immutable API key pool and the rotation
// sequence used to route around rate limits.
package credential

import (
	"errors"
	"math/rand"
	"strings"

	"github.com/rs/zerolog/log"
)

// ErrEmptyPool is returned when a pool is constructed with no credentials.
var ErrEmptyPool = errors.New("credential pool is empty")

// Handle identifies one credential inside a pool together with the anchor
// index the current rotation started from.
type Handle struct {
	Key     string
	Index   int
	Flagged bool

	anchor int
}

// Pool is an ordered, immutable snapshot of API credentials. It is captured
// once at process start and never re-read from the environment mid-run.
type Pool struct {
	keys    []string
	flagged []bool
}

// NewPool validates and snapshots the given credential list. Keys that fail
// the format check stay in the pool (fail open) but are flagged so callers
// can surface a warning before attempting them.
func NewPool(keys []string) (*Pool, error) {
	if len(keys) == 0 {
		return nil, ErrEmptyPool
	}

	snapshot := make([]string, len(keys))
	copy(snapshot, keys)

	flagged := make([]bool, len(snapshot))
	for i, key := range snapshot {
		if !ValidFormat(key) {
			flagged[i] = true
			log.Warn().Int("index", i).Msg("API key format looks incorrect, will still be attempted")
		}
	}

	return &Pool{keys: snapshot, flagged: flagged}, nil
}

// ValidFormat performs a lightweight sanity check on a credential string.
// It is deliberately permissive: an unrecognized prefix only flags the key.
func ValidFormat(key string) bool {
	key = strings.TrimSpace(key)
	if len(key) < 20 {
		return false
	}
	if strings.ContainsAny(key, " \t\n") {
		return false
	}
	return true
}

// Size returns the number of credentials in the pool.
func (p *Pool) Size() int {
	return len(p.keys)
}

// Start picks a pseudo-random credential and anchors the rotation at its
// index. A full rotation ends when Next wraps back to this anchor.
func (p *Pool) Start() Handle {
	return p.at(rand.Intn(len(p.keys)))
}

// StartAt anchors the rotation at a preferred index, used when resuming a
// conversation so the same key keeps hitting the provider-side cache. An
// out-of-range index falls back to 0.
func (p *Pool) StartAt(index int) Handle {
	if index < 0 || index >= len(p.keys) {
		log.Warn().
			Int("preferred", index).
			Int("pool_size", len(p.keys)).
			Msg("Preferred key index out of range, using index 0")
		index = 0
	}
	return p.at(index)
}

// Next returns the credential after the given one, or ok=false once the
// rotation has visited every credential and returned to the anchor.
func (p *Pool) Next(current Handle) (Handle, bool) {
	next := (current.Index + 1) % len(p.keys)
	if next == current.anchor {
		return Handle{}, false
	}
	h := p.at(next)
	h.anchor = current.anchor
	return h, true
}

func (p *Pool) at(index int) Handle {
	return Handle{
		Key:     p.keys[index],
		Index:   index,
		Flagged: p.flagged[index],
		anchor:  index,
	}
}
