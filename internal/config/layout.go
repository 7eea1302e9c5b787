package config

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/BurntSushi/toml"

	"rtcaps/heapcaps"
)

// layoutFile is the TOML form of a heap layout:
//
//	[[region]]
//	name = "dram"
//	base = 0x3ffb0000
//	size = 131072
//	caps = ["internal", "dma", "8bit", "32bit", "default"]
type layoutFile struct {
	Region []regionEntry `toml:"region"`
}

type regionEntry struct {
	Name string   `toml:"name"`
	Base uint64   `toml:"base"`
	Size int      `toml:"size"`
	Caps []string `toml:"caps"`
}

// LoadLayout reads a heap layout from a TOML file. An empty path yields
// heapcaps.DefaultLayout.
func LoadLayout(path string) ([]heapcaps.RegionSpec, error) {
	if path == "" {
		return heapcaps.DefaultLayout(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("cannot read %s: %w", path, err)
	}
	layout, err := ParseLayout(string(data))
	if err != nil {
		return nil, fmt.Errorf("parse error in %s: %w", path, err)
	}
	return layout, nil
}

// ParseLayout parses a TOML heap layout.
func ParseLayout(data string) ([]heapcaps.RegionSpec, error) {
	var f layoutFile
	if _, err := toml.Decode(data, &f); err != nil {
		return nil, err
	}
	if len(f.Region) == 0 {
		return nil, fmt.Errorf("%w: no [[region]] entries", heapcaps.ErrInvalidLayout)
	}

	layout := make([]heapcaps.RegionSpec, 0, len(f.Region))
	for _, r := range f.Region {
		caps, err := heapcaps.CapsFromNames(r.Caps)
		if err != nil {
			return nil, fmt.Errorf("region %q: %w", r.Name, err)
		}
		layout = append(layout, heapcaps.RegionSpec{
			Name: r.Name,
			Caps: caps,
			Base: uintptr(r.Base),
			Size: r.Size,
		})
	}
	// Reject what NewHeap would reject, at load time.
	if _, err := heapcaps.NewHeap(layout); err != nil {
		return nil, err
	}
	return layout, nil
}

// EncodeLayout writes layout in the form ParseLayout reads.
func EncodeLayout(w io.Writer, layout []heapcaps.RegionSpec) error {
	f := layoutFile{Region: make([]regionEntry, 0, len(layout))}
	for _, r := range layout {
		var names []string
		for _, n := range strings.Split(r.Caps.String(), "|") {
			if n != "none" {
				names = append(names, n)
			}
		}
		f.Region = append(f.Region, regionEntry{
			Name: r.Name,
			Base: uint64(r.Base),
			Size: r.Size,
			Caps: names,
		})
	}
	return toml.NewEncoder(w).Encode(f)
}
