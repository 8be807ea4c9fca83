package apiclient

import (
	"sync"
)

// Redirector is the UI side hook fired when the session can't be recovered
type Redirector interface {
	// Location is where the UI is now
	Location() string

	// Redirect moves the UI to path
	Redirect(path string)
}

// Navigator is an in-memory Redirector
// It remembers the location and calls onRedirect for every redirect
type Navigator struct {
	mu         sync.Mutex
	location   string
	onRedirect func(path string)
}

func NewNavigator(location string, onRedirect func(path string)) *Navigator {
	return &Navigator{location: location, onRedirect: onRedirect}
}

func (n *Navigator) Location() string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.location
}

// Navigate changes location without notifying
func (n *Navigator) Navigate(path string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.location = path
}

func (n *Navigator) Redirect(path string) {
	n.mu.Lock()
	n.location = path
	n.mu.Unlock()

	if n.onRedirect != nil {
		n.onRedirect(path)
	}
}
