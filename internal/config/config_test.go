package config

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rtcaps/heapcaps"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
	assert.Equal(t, 10*time.Millisecond, cfg.TickPeriod())

	stack, err := cfg.StackCaps()
	require.NoError(t, err)
	assert.Equal(t, heapcaps.CapSPIRAM, stack)

	obj, err := cfg.ObjCaps()
	require.NoError(t, err)
	assert.Equal(t, heapcaps.CapInternal|heapcaps.Cap8Bit, obj)
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("RTCAPS_CORES", "4")
	t.Setenv("RTCAPS_TICK_HZ", "1000")
	t.Setenv("RTCAPS_WORKER_STACK_CAPS", "internal|dma")
	t.Setenv("RTCAPS_METRICS_ADDR", ":9100")
	t.Setenv("RTCAPS_LOG_LEVEL", "debug")
	t.Setenv("RTCAPS_LOG_DEV", "true")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 4, cfg.Cores)
	assert.Equal(t, time.Millisecond, cfg.TickPeriod())
	assert.Equal(t, ":9100", cfg.MetricsAddr)
	assert.Equal(t, "debug", cfg.LogLevel)
	assert.True(t, cfg.LogDev)

	stack, err := cfg.StackCaps()
	require.NoError(t, err)
	assert.Equal(t, heapcaps.CapInternal|heapcaps.CapDMA, stack)
}

func TestLoadRejectsBadValues(t *testing.T) {
	tests := []struct {
		key, value string
	}{
		{"RTCAPS_CORES", "0"},
		{"RTCAPS_CORES", "two"},
		{"RTCAPS_TICK_HZ", "0"},
		{"RTCAPS_OBJECT_CAPS", "internal,warp"},
	}
	for _, tt := range tests {
		t.Run(tt.key+"="+tt.value, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)
			_, err := Load()
			assert.Error(t, err)
			assert.Equal(t, Default(), LoadOrDefault())
		})
	}
}

const sampleLayout = `
[[region]]
name = "sram"
base = 0x20000000
size = 4096
caps = ["internal", "8bit", "32bit", "dma"]

[[region]]
name = "ext"
size = 65536
caps = ["spiram", "8bit"]
`

func TestParseLayout(t *testing.T) {
	layout, err := ParseLayout(sampleLayout)
	require.NoError(t, err)
	require.Len(t, layout, 2)

	assert.Equal(t, heapcaps.RegionSpec{
		Name: "sram",
		Caps: heapcaps.CapInternal | heapcaps.Cap8Bit | heapcaps.Cap32Bit | heapcaps.CapDMA,
		Base: 0x20000000,
		Size: 4096,
	}, layout[0])
	assert.Equal(t, "ext", layout[1].Name)
	assert.Equal(t, heapcaps.CapSPIRAM|heapcaps.Cap8Bit, layout[1].Caps)
}

func TestParseLayoutErrors(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"empty", ``},
		{"syntax", `[[region]`},
		{"unknown cap", "[[region]]\nname = \"a\"\nsize = 64\ncaps = [\"fast\"]\n"},
		{"no caps", "[[region]]\nname = \"a\"\nsize = 64\n"},
		{"duplicate", "[[region]]\nname = \"a\"\nsize = 64\ncaps = [\"internal\"]\n[[region]]\nname = \"a\"\nsize = 64\ncaps = [\"internal\"]\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := ParseLayout(tt.data)
			assert.Error(t, err)
		})
	}
}

func TestLoadLayoutFile(t *testing.T) {
	layout, err := LoadLayout("")
	require.NoError(t, err)
	assert.Equal(t, heapcaps.DefaultLayout(), layout)

	path := filepath.Join(t.TempDir(), "heap.toml")
	require.NoError(t, os.WriteFile(path, []byte(sampleLayout), 0o600))

	cfg := Default()
	cfg.HeapLayout = path
	layout, err = cfg.Layout()
	require.NoError(t, err)
	assert.Len(t, layout, 2)

	_, err = LoadLayout(filepath.Join(t.TempDir(), "missing.toml"))
	assert.Error(t, err)
}

func TestEncodeLayoutIsParseable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, EncodeLayout(&buf, heapcaps.DefaultLayout()))
	assert.Contains(t, buf.String(), "[[region]]")

	layout, err := ParseLayout(buf.String())
	require.NoError(t, err)
	assert.Equal(t, heapcaps.DefaultLayout(), layout)
}
