// Package realtime relays live document changes between the connections
// currently viewing the same document. Nothing is persisted: a connection
// that joins late does not see earlier events.
package realtime

import (
	"encoding/json"
	"time"
)

// Inbound and outbound message types on the wire.
const (
	TypeJoin     = "join-document"
	TypeLeave    = "leave-document"
	TypeChange   = "document-change"
	TypeUpdated  = "document-updated"
	TypeSaved    = "document-saved"
	TypeJoined   = "joined"
	TypePresence = "presence"
	TypeError    = "error"
	TypeDeleted  = "document-deleted"
	TypeRevoked  = "access-revoked"
	// TypeRestrict is hub-internal: it is relayed between nodes but never
	// written to a client.
	TypeRestrict = "access-restricted"
)

// Message is the envelope exchanged with clients and relayed between nodes.
type Message struct {
	Type       string          `json:"type"`
	DocumentID string          `json:"documentId,omitempty"`
	Payload    json.RawMessage `json:"payload,omitempty"`
	// From is the origin connection id; empty for server-originated events.
	From      string    `json:"from,omitempty"`
	UserID    string    `json:"userId,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Conn is one participant of the channel. Send must not block: it either
// queues the message or drops it and reports false.
type Conn interface {
	ID() string
	UserID() string
	Send(Message) bool
	Close()
}

// Restriction lists the users who may still read a document. Connections
// of anyone else are removed from its topic.
type Restriction struct {
	Readers []string `json:"readers"`
}

// RestrictMessage builds the server event that narrows docID's topic to
// readers.
func RestrictMessage(docID string, readers []string) Message {
	payload, _ := json.Marshal(Restriction{Readers: readers})
	return Message{Type: TypeRestrict, DocumentID: docID, Payload: payload}
}
