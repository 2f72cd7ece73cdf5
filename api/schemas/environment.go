package schemas

import "strings"

// ActiveWindow describes the currently focused window.
type ActiveWindow struct {
	ID      uint64 `json:"id"`
	Title   string `json:"title"`
	Process string `json:"process"`
}

// Environment is the snapshot of environment facts the core consumes. How it is
// produced is outside the core.
type Environment struct {
	ActiveWindow          ActiveWindow `json:"active_window"`
	RunningProcesses      []string     `json:"running_processes"`
	ScreenLockedHeuristic bool         `json:"screen_locked_heuristic"`
}

// desktopTitles are window titles the shell uses for the bare desktop.
var desktopTitles = map[string]bool{
	"program manager": true,
	"desktop":         true,
}

// HasFocusedWindow reports whether a real, non-desktop window holds focus.
func (e Environment) HasFocusedWindow() bool {
	w := e.ActiveWindow
	if w.ID == 0 {
		return false
	}
	title := strings.ToLower(strings.TrimSpace(w.Title))
	if title == "" || desktopTitles[title] {
		return false
	}
	return true
}

// ProcessRunning reports whether a process whose name plausibly matches name is
// in the running process list.
func (e Environment) ProcessRunning(name string) bool {
	want := NormalizeAppName(name)
	if want == "" {
		return false
	}
	for _, p := range e.RunningProcesses {
		if strings.Contains(NormalizeAppName(p), want) {
			return true
		}
	}
	return false
}

// NormalizeAppName lowercases a process or application name and strips common
// executable suffixes so "Notepad.exe" and "notepad" compare equal.
func NormalizeAppName(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	for _, suffix := range []string{".exe", ".app", ".bin"} {
		n = strings.TrimSuffix(n, suffix)
	}
	return n
}
