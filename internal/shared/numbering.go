package shared

import (
	"fmt"
	"sync/atomic"
	"time"
)

// NumberGenerator produces human-readable business numbers (voucher numbers,
// transaction numbers). Implementations are assumed collision-free within a
// tenant.
type NumberGenerator interface {
	Next(prefix string) string
}

// TimestampNumberGenerator derives numbers from the current unix-millis plus
// a process-local sequence to disambiguate same-millisecond calls.
type TimestampNumberGenerator struct {
	seq atomic.Uint64
	now func() time.Time
}

// NewTimestampNumberGenerator returns the default generator.
func NewTimestampNumberGenerator() *TimestampNumberGenerator {
	return &TimestampNumberGenerator{now: time.Now}
}

// WithNow overrides the clock for deterministic tests.
func (g *TimestampNumberGenerator) WithNow(now func() time.Time) {
	if now != nil {
		g.now = now
	}
}

func (g *TimestampNumberGenerator) Next(prefix string) string {
	n := g.seq.Add(1)
	return fmt.Sprintf("%s-%d%03d", prefix, g.now().UnixMilli(), n%1000)
}
