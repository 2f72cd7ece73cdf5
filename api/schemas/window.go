package schemas

import "context"

// WindowSnapshot is a point-in-time view of one live OS window.
type WindowSnapshot struct {
	ID          uint64 `json:"id"`
	ProcessID   int    `json:"pid"`
	ProcessName string `json:"process"`
	Title       string `json:"title"`
}

// WindowSource enumerates live windows. It is implemented by the platform
// automation backend.
type WindowSource interface {
	// ListWindows returns every top-level live window.
	ListWindows(ctx context.Context) ([]WindowSnapshot, error)
	// Window returns the live window with the given id, if it still exists.
	Window(ctx context.Context, id uint64) (WindowSnapshot, bool, error)
}
