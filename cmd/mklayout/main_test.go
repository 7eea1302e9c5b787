package main

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"rtcaps/heapcaps"
	"rtcaps/internal/config"
)

func TestWriteThenCheck(t *testing.T) {
	path := filepath.Join(t.TempDir(), "heap.toml")

	var out bytes.Buffer
	require.NoError(t, run("", path, "", &out))
	assert.Contains(t, out.String(), "REGION")
	assert.Contains(t, out.String(), "psram")

	layout, err := config.LoadLayout(path)
	require.NoError(t, err)
	assert.Equal(t, heapcaps.DefaultLayout(), layout)

	out.Reset()
	require.NoError(t, run(path, "", "internal,dma", &out))
	assert.Contains(t, out.String(), "SERVES dma|internal")
	assert.Regexp(t, `dram\s.*\syes`, out.String())
	assert.Regexp(t, `psram\s.*\s-`, out.String())
}

func TestStdout(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, run("", "-", "", &out))
	_, err := config.ParseLayout(out.String())
	assert.NoError(t, err)
}

func TestUnservableCaps(t *testing.T) {
	var out bytes.Buffer
	err := run("", "", "exec,dma", &out)
	assert.ErrorContains(t, err, "no region has caps")

	assert.Error(t, run("", "", "warp", &out))
	assert.Error(t, run(filepath.Join(t.TempDir(), "missing.toml"), "", "", &out))
}
