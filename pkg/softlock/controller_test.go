package softlock

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestAcquireRequestValidate(t *testing.T) {
	valid := acquireRequest{EntityType: "order", EntityID: "o-1", TTLSeconds: 60}
	assert.NoError(t, valid.Validate())

	assert.Error(t, acquireRequest{EntityID: "o-1"}.Validate())
	assert.Error(t, acquireRequest{EntityType: "order"}.Validate())
	assert.Error(t, acquireRequest{EntityType: "order", EntityID: "o-1", TTLSeconds: -1}.Validate())
}

func TestLockExpired(t *testing.T) {
	now := time.Now()

	assert.True(t, Lock{ExpiresAt: now.Add(-time.Second)}.Expired(now))
	assert.True(t, Lock{ExpiresAt: now}.Expired(now))
	assert.False(t, Lock{ExpiresAt: now.Add(time.Second)}.Expired(now))
}
