// Package ordernum issues human-readable display numbers for orders.
package ordernum

import (
	"fmt"
	"math/rand"
	"sync"
	"time"
)

// Prefix of every generated order number.
const Prefix = "ORD"

// Generator produces order numbers of the form ORD-YYYYMMDDHHMMSS-DDDD
// where DDDD is a uniformly drawn 4-digit suffix. Uniqueness is backed
// by the database constraint on order_number; callers retry on the rare
// same-second collision.
type Generator struct {
	mu  sync.Mutex
	rnd *rand.Rand

	// Now supplies the wall clock; overridable in tests.
	Now func() time.Time
}

// NewGenerator creates a generator seeded from the current time.
func NewGenerator() *Generator {
	return &Generator{
		rnd: rand.New(rand.NewSource(time.Now().UnixNano())),
		Now: time.Now,
	}
}

// Next returns a fresh order number.
func (g *Generator) Next() string {
	g.mu.Lock()
	n := g.rnd.Intn(10000)
	g.mu.Unlock()
	return fmt.Sprintf("%s-%s-%04d", Prefix, g.Now().Format("20060102150405"), n)
}
