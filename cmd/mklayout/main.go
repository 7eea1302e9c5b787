// Command mklayout writes and checks heap layout files for RTCAPS_HEAP_LAYOUT.
//
//	mklayout -out heap.toml                  # write the default layout
//	mklayout -in heap.toml -caps internal,dma # show which regions serve a request
package main

import (
	"flag"
	"fmt"
	"io"
	"os"
	"text/tabwriter"

	"rtcaps/heapcaps"
	"rtcaps/internal/config"
)

func main() {
	var inPath, outPath, caps string
	flag.StringVar(&inPath, "in", "", "Layout file to check (default: built-in layout).")
	flag.StringVar(&outPath, "out", "", "Write the layout to this path (\"-\" for stdout).")
	flag.StringVar(&caps, "caps", "", "Capabilities to resolve against the layout, e.g. \"internal,dma\".")
	flag.Parse()

	if err := run(inPath, outPath, caps, os.Stdout); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run(inPath, outPath, capsArg string, stdout io.Writer) error {
	layout, err := config.LoadLayout(inPath)
	if err != nil {
		return err
	}
	want, err := heapcaps.ParseCaps(capsArg)
	if err != nil {
		return err
	}

	switch outPath {
	case "":
	case "-":
		return config.EncodeLayout(stdout, layout)
	default:
		if err := writeLayout(outPath, layout); err != nil {
			return err
		}
	}
	return printLayout(stdout, layout, want)
}

func writeLayout(path string, layout []heapcaps.RegionSpec) error {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("open layout file %q: %w", path, err)
	}
	if err := config.EncodeLayout(f, layout); err != nil {
		_ = f.Close()
		return fmt.Errorf("write layout file %q: %w", path, err)
	}
	return f.Close()
}

// printLayout lists the regions in the order Malloc tries them. With want
// set, regions that can serve the request are marked.
func printLayout(w io.Writer, layout []heapcaps.RegionSpec, want heapcaps.Caps) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	header := "REGION\tBASE\tSIZE\tCAPS"
	if want != 0 {
		header += "\tSERVES " + want.String()
	}
	fmt.Fprintln(tw, header)

	served := 0
	for _, r := range layout {
		line := fmt.Sprintf("%s\t%#x\t%d\t%s", r.Name, r.Base, r.Size, r.Caps)
		if want != 0 {
			mark := "-"
			if r.Caps.Has(want) {
				mark = "yes"
				served++
			}
			line += "\t" + mark
		}
		fmt.Fprintln(tw, line)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if want != 0 && served == 0 {
		return fmt.Errorf("no region has caps %s", want)
	}
	return nil
}
