// Package events delivers login/logout transitions to decoupled consumers.
package events

import (
	"slices"
	"time"
)

type Kind string

const (
	KindLoggedIn  Kind = "logged_in"
	KindLoggedOut Kind = "logged_out"
)

// Reason explains why a session ended.
type Reason string

const (
	ReasonLogout        Reason = "logout"
	ReasonExpired       Reason = "expired"
	ReasonRefreshFailed Reason = "refresh_failed"
	ReasonRejected      Reason = "rejected"
	ReasonExternal      Reason = "external"
)

// Event is a single session transition.
type Event struct {
	Kind Kind `json:"kind"`

	// Username and Authorities are only set for KindLoggedIn.
	Username    string   `json:"username,omitempty"`
	Authorities []string `json:"authorities,omitempty"`

	// Reason is only set for KindLoggedOut.
	Reason Reason `json:"reason,omitempty"`

	At time.Time `json:"at"`
}

func LoggedIn(username string, authorities []string, at time.Time) Event {
	return Event{
		Kind:        KindLoggedIn,
		Username:    username,
		Authorities: slices.Clone(authorities),
		At:          at,
	}
}

func LoggedOut(reason Reason, at time.Time) Event {
	return Event{
		Kind:   KindLoggedOut,
		Reason: reason,
		At:     at,
	}
}
