// Package id generates run identifiers.
//
// A run ID is a ULID with a "run_" prefix. ULIDs sort by creation time, so
// logs and reports from successive runs order naturally, and the prefix
// keeps them recognizable next to the per-stream session UUIDs.
package id

import (
	"crypto/rand"
	"fmt"
	"io"
	"strings"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

// RunID identifies one integration run across all of its processes.
type RunID string

// RunPrefix is prepended to every run ID.
const RunPrefix = "run"

// Generator generates ULIDs. It is safe for concurrent use.
type Generator struct {
	mu      sync.Mutex
	entropy io.Reader
}

var (
	defaultGenerator *Generator
	once             sync.Once
)

// Default returns the process-wide generator.
func Default() *Generator {
	once.Do(func() {
		defaultGenerator = NewGenerator()
	})
	return defaultGenerator
}

// NewGenerator creates a generator with monotonic, cryptographically random
// entropy: IDs from the same millisecond still sort in creation order.
func NewGenerator() *Generator {
	return NewGeneratorWithEntropy(ulid.Monotonic(rand.Reader, 0))
}

// NewGeneratorWithEntropy creates a generator reading from entropy.
func NewGeneratorWithEntropy(entropy io.Reader) *Generator {
	return &Generator{entropy: entropy}
}

// Generate creates a new ULID.
func (g *Generator) Generate() ulid.ULID {
	g.mu.Lock()
	defer g.mu.Unlock()

	return ulid.MustNew(ulid.Timestamp(time.Now()), g.entropy)
}

// GenerateWithPrefix creates a prefixed ULID string.
func (g *Generator) GenerateWithPrefix(prefix string) string {
	return fmt.Sprintf("%s_%s", prefix, g.Generate())
}

// NewRunID generates a new run ID.
func NewRunID() RunID {
	return RunID(Default().GenerateWithPrefix(RunPrefix))
}

// ParseRunID checks that s is a prefixed ULID.
func ParseRunID(s string) (RunID, error) {
	raw, ok := strings.CutPrefix(s, RunPrefix+"_")
	if !ok {
		return "", fmt.Errorf("run ID %q lacks the %s_ prefix", s, RunPrefix)
	}
	if _, err := ulid.ParseStrict(raw); err != nil {
		return "", fmt.Errorf("run ID %q: %w", s, err)
	}
	return RunID(s), nil
}

// String returns the ID as a string.
func (id RunID) String() string { return string(id) }

// Time returns the creation time encoded in the ID.
func (id RunID) Time() (time.Time, error) {
	raw := strings.TrimPrefix(string(id), RunPrefix+"_")
	parsed, err := ulid.Parse(raw)
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(parsed.Time()), nil
}
