package notify

import "sync"

// Permission is the desktop-notification permission state reported by the
// one-time capability probe.
type Permission string

const (
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
	PermissionDefault Permission = "default"
)

// ParsePermission normalizes a configured permission string.
func ParsePermission(raw string) Permission {
	switch Permission(raw) {
	case PermissionGranted:
		return PermissionGranted
	case PermissionDenied:
		return PermissionDenied
	default:
		return PermissionDefault
	}
}

// Capabilities is the result of probing desktop-notification support once at
// startup. The dispatcher consults it instead of re-probing per event.
type Capabilities struct {
	DesktopSupported bool
	Permission       Permission
}

// Viewport tracks tab visibility as the shell last announced it. It is a
// mutable handle so the long-lived feed subscription reads current state
// instead of a stale closure capture.
type Viewport struct {
	mu     sync.Mutex
	hidden bool
}

// SetHidden records a visibility change.
func (v *Viewport) SetHidden(hidden bool) {
	v.mu.Lock()
	v.hidden = hidden
	v.mu.Unlock()
}

// Hidden reports whether the tab is currently hidden.
func (v *Viewport) Hidden() bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.hidden
}
