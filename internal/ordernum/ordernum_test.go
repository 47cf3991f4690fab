package ordernum

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var numberPattern = regexp.MustCompile(`^ORD-\d{14}-\d{4}$`)

func TestNext_Format(t *testing.T) {
	g := NewGenerator()
	g.Now = func() time.Time {
		return time.Date(2025, 3, 14, 15, 9, 26, 0, time.UTC)
	}

	n := g.Next()
	require.Regexp(t, numberPattern, n)
	assert.Equal(t, "ORD-20250314150926", n[:18])
}

func TestNext_SuffixVaries(t *testing.T) {
	g := NewGenerator()

	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		n := g.Next()
		require.Regexp(t, numberPattern, n)
		seen[n[len(n)-4:]] = true
	}

	// 100 draws from 10000 values collapsing to a single suffix would
	// mean the source is broken.
	assert.Greater(t, len(seen), 1)
}
