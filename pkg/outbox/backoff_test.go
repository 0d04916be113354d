package outbox

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestBackoff(t *testing.T) {
	max := 60 * time.Second

	assert.Equal(t, time.Duration(0), backoff(0, max))
	assert.Equal(t, 1*time.Second, backoff(1, max))
	assert.Equal(t, 2*time.Second, backoff(2, max))
	assert.Equal(t, 4*time.Second, backoff(3, max))
	assert.Equal(t, 32*time.Second, backoff(6, max))
	assert.Equal(t, max, backoff(7, max))
	assert.Equal(t, max, backoff(30, max))
}

func TestBackoffDoesNotOverflow(t *testing.T) {
	max := 60 * time.Second
	for attempts := 1; attempts <= 100; attempts++ {
		d := backoff(attempts, max)
		assert.GreaterOrEqual(t, d, time.Duration(0))
		assert.LessOrEqual(t, d, max)
	}
}

func TestJitter(t *testing.T) {
	r := rand.New(rand.NewSource(42)) //nolint:gosec
	max := 200 * time.Millisecond

	for i := 0; i < 1000; i++ {
		j := jitter(r, max)
		assert.GreaterOrEqual(t, j, time.Duration(0))
		assert.LessOrEqual(t, j, max)
	}

	assert.Equal(t, time.Duration(0), jitter(nil, max))
	assert.Equal(t, time.Duration(0), jitter(r, 0))
}
