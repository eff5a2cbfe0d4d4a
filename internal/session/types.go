// Package session provides the remote session controller: the single owner
// of SessionState. It loads the profile, runs listings, routes transfers to
// the coordinator and applies inventory results, publishing every change on
// the event bus so any frontend can subscribe and update its view.
package session

import (
	"github.com/rainforce/smbclient/internal/errkind"
	"github.com/rainforce/smbclient/internal/events"
	"github.com/rainforce/smbclient/internal/inventory"
	"github.com/rainforce/smbclient/internal/profile"
	"github.com/rainforce/smbclient/internal/remote"
)

// Phase is the controller's position in its state machine.
type Phase int

const (
	Uninitialized Phase = iota
	AwaitingProfile
	Ready
	Listing
	Error
)

func (p Phase) String() string {
	switch p {
	case Uninitialized:
		return "uninitialized"
	case AwaitingProfile:
		return "awaiting_profile"
	case Ready:
		return "ready"
	case Listing:
		return "listing"
	case Error:
		return "error"
	default:
		return "unknown"
	}
}

// SessionState is the observable state of one session. Values handed out by
// the controller are copies; mutating them has no effect.
type SessionState struct {
	Phase         Phase
	Profile       profile.Profile
	Entries       []remote.Entry
	LocalTarget   string // "" when no folder is selected
	LocalPresence inventory.PresenceSet
	Busy          bool
	LastError     *errkind.Error
}

func (s SessionState) clone() SessionState {
	c := s
	if s.Entries != nil {
		c.Entries = make([]remote.Entry, len(s.Entries))
		copy(c.Entries, s.Entries)
	}
	if s.LocalPresence != nil {
		c.LocalPresence = s.LocalPresence.Clone()
	}
	return c
}

// IsPresent reports whether entry exists in the local target folder.
func (s SessionState) IsPresent(entry remote.Entry) bool {
	return s.LocalPresence.Has(entry.Path)
}

// Session event types
const (
	EventSessionChanged   events.EventType = "session_changed"
	EventProfileRequired  events.EventType = "profile_required"
	EventListingStarted   events.EventType = "listing_started"
	EventListingCompleted events.EventType = "listing_completed"
	EventListingFailed    events.EventType = "listing_failed"
)

// SessionChangedEvent carries a snapshot taken at publication time.
type SessionChangedEvent struct {
	events.BaseEvent
	State SessionState
}

// ProfileRequiredEvent asks the frontend to collect credentials.
type ProfileRequiredEvent struct {
	events.BaseEvent
	Missing []string
}

// ListingEvent reports a listing lifecycle step.
type ListingEvent struct {
	events.BaseEvent
	ServerURL string
	Count     int
	ErrorKind string
	Error     error
}

// NewSessionChangedEvent creates a new SessionChangedEvent.
func NewSessionChangedEvent(state SessionState) *SessionChangedEvent {
	return &SessionChangedEvent{
		BaseEvent: events.NewBase(EventSessionChanged),
		State:     state,
	}
}

// NewProfileRequiredEvent creates a new ProfileRequiredEvent.
func NewProfileRequiredEvent(missing []string) *ProfileRequiredEvent {
	return &ProfileRequiredEvent{
		BaseEvent: events.NewBase(EventProfileRequired),
		Missing:   missing,
	}
}

// NewListingEvent creates a ListingEvent. err may be nil.
func NewListingEvent(eventType events.EventType, serverURL string, count int, err *errkind.Error) *ListingEvent {
	e := &ListingEvent{
		BaseEvent: events.NewBase(eventType),
		ServerURL: serverURL,
		Count:     count,
	}
	if err != nil {
		e.ErrorKind = err.Kind.String()
		e.Error = err
	}
	return e
}
