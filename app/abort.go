package app

import (
	"fmt"
	"image/color"
	"os"
	"strings"

	"go.uber.org/zap"

	"rtcaps/hal"
	"rtcaps/internal/font"
	"rtcaps/kernel"
)

var (
	osExit = os.Exit
	// exit is replaced in tests.
	exit = osExit
)

// installAbortScreen reports kernel aborts on the console and the screen.
func installAbortScreen(h hal.HAL, k *kernel.Kernel, log *zap.Logger, exitAfter bool) {
	k.SetAbortHandler(func(info kernel.AbortInfo) {
		log.Error("kernel abort",
			zap.Uint32("task_id", info.TaskID),
			zap.String("task", info.Task),
			zap.Int32("core", int32(info.Core)),
			zap.String("reason", info.Reason))

		lines := abortReport(info)
		if l := h.Logger(); l != nil {
			for _, line := range lines {
				l.WriteLineString(line)
			}
		}
		paintAbort(h, lines)

		if exitAfter {
			_ = log.Sync()
			exit(kernel.ExitAbort)
		}
	})
}

func abortReport(info kernel.AbortInfo) []string {
	task := info.Task
	if task == "" {
		task = "-"
	}
	core := "-"
	if info.Core >= 0 {
		core = fmt.Sprint(int32(info.Core))
	}
	lines := []string{
		"rtcaps abort: " + info.Reason,
		fmt.Sprintf("task: %d (%s) core: %s", info.TaskID, task, core),
	}
	if len(info.Stack) == 0 {
		return append(lines, "stack: unavailable")
	}
	lines = append(lines, "stack:")
	for _, line := range strings.Split(string(info.Stack), "\n") {
		if line != "" {
			lines = append(lines, line)
		}
	}
	return lines
}

func paintAbort(h hal.HAL, lines []string) {
	disp := h.Display()
	if disp == nil {
		return
	}
	fb := disp.Framebuffer()
	if fb == nil {
		return
	}
	fb.ClearRGB(255, 255, 255)
	d := fbDisplay{fb: fb}
	fg := color.RGBA{A: 255}
	title := color.RGBA{R: 200, A: 255}

	cols := fb.Width() / font.Width
	y := int16(0)
	for i, line := range lines {
		c := fg
		if i == 0 {
			c = title
		}
		for _, chunk := range wrap(line, cols) {
			if int(y)+font.Height > fb.Height() {
				_ = d.Display()
				return
			}
			y = d.text(0, y, chunk, c)
		}
	}
	_ = d.Display()
}
