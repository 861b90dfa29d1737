// Package scan suppresses the repeated decode callbacks a camera emits
// while the same code stays under the lens.
package scan

import (
	"sync"
	"time"
)

// DefaultWindow is how long identical scanner text is treated as one scan.
const DefaultWindow = 3 * time.Second

// Debouncer gates scanner text. It is keyed purely on raw text equality.
type Debouncer struct {
	mu       sync.Mutex
	window   time.Duration
	lastText string
	lastAt   time.Time
	seen     bool
}

// NewDebouncer returns a debouncer with the given window. A non-positive
// window selects DefaultWindow.
func NewDebouncer(window time.Duration) *Debouncer {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Debouncer{window: window}
}

// Window returns the configured suppression window.
func (d *Debouncer) Window() time.Duration {
	return d.window
}

// ShouldProcess reports whether text observed at now should go on to
// redemption. A passing call records text as the last seen scan; a
// suppressed call leaves the state untouched.
func (d *Debouncer) ShouldProcess(text string, now time.Time) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen && d.lastText == text && now.Sub(d.lastAt) < d.window {
		return false
	}
	d.lastText = text
	d.lastAt = now
	d.seen = true
	return true
}

// Reset forgets the last seen scan.
func (d *Debouncer) Reset() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.lastText = ""
	d.lastAt = time.Time{}
	d.seen = false
}
