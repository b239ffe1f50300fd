// Package protocol defines the JSON messages exchanged over the collaboration
// websocket between the hub and viewers.
package protocol

import (
	"encoding/json"

	"github.com/tilescope/tilescope/backend-go/internal/annotation"
)

type Message struct {
	Type     string          `json:"type"`
	ItemID   string          `json:"itemId,omitempty"`
	ClientID string          `json:"clientId,omitempty"`
	UserID   string          `json:"userId,omitempty"`
	Seq      int64           `json:"seq,omitempty"`
	Payload  json.RawMessage `json:"payload"`
}

type PresencePayload struct {
	Cursor      *CursorPos    `json:"cursor,omitempty"` // image pixels
	Highlight   *HighlightRef `json:"highlight,omitempty"`
	DisplayName string        `json:"displayName,omitempty"`
}

type CursorPos struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// HighlightRef is the annotation element a user is pointing at.
type HighlightRef struct {
	AnnotationID string `json:"annotationId"`
	ElementID    string `json:"elementId,omitempty"`
}

type PresenceStatePayload struct {
	Presences map[string]*PresencePayload `json:"presences"`
}

type PresenceJoinPayload struct {
	UserID      string `json:"userId"`
	DisplayName string `json:"displayName"`
}

type PresenceLeavePayload struct {
	UserID string `json:"userId"`
}

type WelcomePayload struct {
	ClientID string `json:"clientId"`
	UserID   string `json:"userId"`
	Seq      int64  `json:"seq"`
}

const (
	TypeWelcome = "welcome"
	TypeError   = "error"

	TypePresenceUpdate = "presence.update"
	TypePresenceState  = "presence.state"
	TypePresenceJoin   = "presence.join"
	TypePresenceLeave  = "presence.leave"

	// Element creation
	TypeElementCreated = "element.created"
	TypeElementAck     = "element.ack"
	TypeElementNack    = "element.nack"

	TypeAnnotationChanged = "annotation.changed"
)

// ElementCreatedPayload carries a drawn element to be added to an annotation.
type ElementCreatedPayload struct {
	RequestID    string             `json:"requestId,omitempty"`
	AnnotationID string             `json:"annotationId"`
	Element      annotation.Element `json:"element"`
}

type ElementAckPayload struct {
	RequestID    string `json:"requestId,omitempty"`
	AnnotationID string `json:"annotationId"`
	ElementID    string `json:"elementId"`
	ServerSeq    int64  `json:"serverSeq"`
}

type ElementNackPayload struct {
	RequestID string `json:"requestId,omitempty"`
	Reason    string `json:"reason"`
}

// AnnotationChangedPayload tells clients to re-fetch an annotation.
type AnnotationChangedPayload struct {
	AnnotationID string `json:"annotationId"`
	UserID       string `json:"userId,omitempty"`
	ServerSeq    int64  `json:"serverSeq"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

// NewMessage builds a message with a JSON-encoded payload.
func NewMessage(msgType string, payload any) (*Message, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	return &Message{Type: msgType, Payload: data}, nil
}
