package terminal

import (
	"golang.org/x/sys/windows"
)

func windowSize() (rows, cols int, ok bool) {
	var sbi windows.ConsoleScreenBufferInfo
	if err := windows.GetConsoleScreenBufferInfo(windows.Stdout, &sbi); err != nil {
		return 0, 0, false
	}
	win := sbi.Window
	return int(win.Bottom - win.Top + 1), int(win.Right - win.Left + 1), true
}
