package chainio

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/clawlet/broker/chain"
)

func TestNew_ParsesABIWithoutRedis(t *testing.T) {
	c, err := New("")
	assert.NoError(t, err)
	assert.NotNil(t, c)
	assert.Nil(t, c.redis)
}

func TestDial_RejectsUnknownNetwork(t *testing.T) {
	c, err := New("")
	assert.NoError(t, err)

	_, err = c.dial(chain.Network("unknown-network"))
	assert.Error(t, err)
}

func TestCache_MissWithoutRedisConfigured(t *testing.T) {
	c, err := New("")
	assert.NoError(t, err)

	_, ok := c.readCache("balance:base:0xabc")
	assert.False(t, ok)
}
