package heapcaps

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCapsString(t *testing.T) {
	assert.Equal(t, "none", Caps(0).String())
	assert.Equal(t, "8bit|internal", KernelCaps.String())
	assert.Equal(t, "dma|0x100", (CapDMA | 1<<8).String())
}

func TestParseCaps(t *testing.T) {
	c, err := ParseCaps("internal, DMA|8bit")
	require.NoError(t, err)
	assert.Equal(t, CapInternal|CapDMA|Cap8Bit, c)

	c, err = ParseCaps("")
	require.NoError(t, err)
	assert.Zero(t, c)

	_, err = ParseCaps("internal,fast")
	assert.ErrorIs(t, err, ErrUnknownCap)

	c, err = CapsFromNames([]string{"spiram", "32bit"})
	require.NoError(t, err)
	assert.Equal(t, CapSPIRAM|Cap32Bit, c)
}

func TestCapsRoundTrip(t *testing.T) {
	for _, n := range capNames {
		c, err := ParseCaps(n.c.String())
		require.NoError(t, err)
		assert.Equal(t, n.c, c)
	}
}
