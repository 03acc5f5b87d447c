// Package sse implements Server-Sent Events: an in-process hub that fans
// catalog notifications out to connected clients, and the HTTP handler that
// streams them.
package sse

import (
	"time"

	"github.com/pokepi/pokepi-server/internal/id"
)

// EventType represents the type of SSE Event.
type EventType string

const (
	// EventHeartbeat represents a connection keepalive event.
	EventHeartbeat EventType = "heartbeat"

	// EventFavoriteAdded is sent to a user after an item becomes a favorite.
	EventFavoriteAdded EventType = "favorite.added"

	// EventItemFeatured announces the item of the day to every client.
	EventItemFeatured EventType = "item.featured"

	// EventSessionChanged is sent when the stored session signs in or out.
	EventSessionChanged EventType = "session.changed"
)

// Event represents an SSE event to be sent to clients.
type Event struct {
	Timestamp time.Time `json:"timestamp"`
	Data      any       `json:"data"`
	ID        string    `json:"id"`
	Type      EventType `json:"type"`

	// UserID restricts delivery to one user's clients. Empty broadcasts.
	UserID string `json:"-"`
}

// ItemEventData describes a catalog item in a notification.
type ItemEventData struct {
	ItemID   int      `json:"item_id"`
	Title    string   `json:"title"`
	Types    []string `json:"types,omitempty"`
	ImageURL string   `json:"image_url,omitempty"`
	Message  string   `json:"message"`
	// IntentID names the queued navigation intent the client may act on.
	IntentID string `json:"intent_id,omitempty"`
}

// HeartbeatEventData is the data payload for heartbeat events.
type HeartbeatEventData struct {
	ServerTime time.Time `json:"server_time"`
}

// SessionEventData is the data payload for session change events.
type SessionEventData struct {
	SignedIn bool   `json:"signed_in"`
	Username string `json:"username,omitempty"`
}

func newEvent(t EventType, data any) Event {
	return Event{
		ID:        id.MustGenerate(id.PrefixEvent),
		Type:      t,
		Data:      data,
		Timestamp: time.Now(),
	}
}

// NewFavoriteAddedEvent creates a favorite.added event. Send it with
// Manager.EmitToUser; it is meant for the user who added the favorite.
func NewFavoriteAddedEvent(data ItemEventData) Event {
	return newEvent(EventFavoriteAdded, data)
}

// NewItemFeaturedEvent creates an item.featured event for all clients.
func NewItemFeaturedEvent(data ItemEventData) Event {
	return newEvent(EventItemFeatured, data)
}

// NewSessionChangedEvent creates a session.changed event.
func NewSessionChangedEvent(signedIn bool, username string) Event {
	return newEvent(EventSessionChanged, SessionEventData{SignedIn: signedIn, Username: username})
}

// NewHeartbeatEvent creates a heartbeat event.
func NewHeartbeatEvent() Event {
	return Event{
		Type:      EventHeartbeat,
		Data:      HeartbeatEventData{ServerTime: time.Now()},
		Timestamp: time.Now(),
	}
}
