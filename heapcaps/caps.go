package heapcaps

import (
	"fmt"
	"strings"
)

// Caps describes the properties a block of memory must have.
//
// A region satisfies a request when its caps are a superset of the requested caps.
type Caps uint32

const (
	CapExec      Caps = 1 << 0
	Cap32Bit     Caps = 1 << 1
	Cap8Bit      Caps = 1 << 2
	CapDMA       Caps = 1 << 3
	CapSPIRAM    Caps = 1 << 10
	CapInternal  Caps = 1 << 11
	CapDefault   Caps = 1 << 12
	CapIRAM8Bit  Caps = 1 << 13
	CapRetention Caps = 1 << 14
	CapRTCRAM    Caps = 1 << 15
	CapInvalid   Caps = 1 << 31
)

// KernelCaps are the caps the kernel uses for its own allocations.
const KernelCaps = CapInternal | Cap8Bit

var capNames = []struct {
	c    Caps
	name string
}{
	{CapExec, "exec"},
	{Cap32Bit, "32bit"},
	{Cap8Bit, "8bit"},
	{CapDMA, "dma"},
	{CapSPIRAM, "spiram"},
	{CapInternal, "internal"},
	{CapDefault, "default"},
	{CapIRAM8Bit, "iram8bit"},
	{CapRetention, "retention"},
	{CapRTCRAM, "rtcram"},
	{CapInvalid, "invalid"},
}

// Has reports whether all bits of want are set.
func (c Caps) Has(want Caps) bool { return c&want == want }

func (c Caps) String() string {
	if c == 0 {
		return "none"
	}
	var parts []string
	rest := c
	for _, n := range capNames {
		if c&n.c != 0 {
			parts = append(parts, n.name)
			rest &^= n.c
		}
	}
	if rest != 0 {
		parts = append(parts, fmt.Sprintf("0x%x", uint32(rest)))
	}
	return strings.Join(parts, "|")
}

// ParseCaps parses a list of capability names separated by ',' or '|'.
//
// An empty string yields 0.
func ParseCaps(s string) (Caps, error) {
	var c Caps
	fields := strings.FieldsFunc(s, func(r rune) bool {
		return r == ',' || r == '|' || r == ' '
	})
	for _, f := range fields {
		v, err := parseCapName(f)
		if err != nil {
			return 0, err
		}
		c |= v
	}
	return c, nil
}

// CapsFromNames is ParseCaps for an already split list.
func CapsFromNames(names []string) (Caps, error) {
	var c Caps
	for _, n := range names {
		v, err := parseCapName(n)
		if err != nil {
			return 0, err
		}
		c |= v
	}
	return c, nil
}

func parseCapName(s string) (Caps, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for _, n := range capNames {
		if n.name == s {
			return n.c, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownCap, s)
}
