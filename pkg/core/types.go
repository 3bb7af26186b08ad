// pkg/core/types.go
package core

import "time"

// Position is a point on the gym map image, in map pixels.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// User identifies the caller. Identity is established by the auth layer in front of
// the service; the service only trusts what it is handed.
type User struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// NotificationEvent is a transient message shown once by the UI.
type NotificationEvent struct {
	Message  string        `json:"message"`
	Duration time.Duration `json:"-"`
}

// DurationMs returns the display duration in milliseconds, the unit the UI expects.
func (n NotificationEvent) DurationMs() int64 {
	return n.Duration.Milliseconds()
}
