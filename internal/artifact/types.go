// Package artifact renders the portal certificate, keeps it in the keyed store
// and exports a copy under the project's .portal tree.
package artifact

import (
	"fmt"
	"time"
)

// Certificate canvas size in pixels.
const (
	Width  = 1400
	Height = 900
)

// FileName is the exported certificate's file name.
const FileName = "certificate.png"

// State captures whether a certificate has been produced.
type State string

const (
	StateMissing State = "missing"
	StateReady   State = "ready"
	StateError   State = "error"
)

// Content is everything printed on a certificate.
type Content struct {
	Title   string
	Player  string
	Message string
	Coins   int64
	Issued  time.Time
}

// Validate ensures the content can be rendered.
func (c Content) Validate() error {
	if c.Title == "" {
		return fmt.Errorf("artifact: title is required")
	}
	if c.Player == "" {
		return fmt.Errorf("artifact: player name is required")
	}
	if c.Coins < 0 {
		return fmt.Errorf("artifact: coin total cannot be negative")
	}
	return nil
}

// Info describes the stored certificate for the certificate view.
type Info struct {
	State     State
	Path      string
	Bytes     int
	Width     int
	Height    int
	UpdatedAt time.Time
	Err       error
}
