// Package conversation provides the ordered chat turn list shown by the widget.
//
// Turns are owned by the orchestrator that created them. Readers only ever
// see copies returned by Snapshot.
package conversation

import (
	"strings"

	"github.com/google/uuid"
)

// Role identifies who authored a turn.
type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

// Well-known turn IDs.
const (
	GreetingID    = "greeting"
	ConfigErrorID = "api-key-error"
	PendingID     = "typing"
)

// Turn is one entry of the chat.
type Turn struct {
	ID      string `json:"id"`
	Role    Role   `json:"role"`
	Content string `json:"content"`
	Pending bool   `json:"pending"`
}

// NewID returns a unique turn ID, optionally tagged with suffix.
func NewID(suffix string) string {
	id := uuid.NewString()
	if suffix == "" {
		return id
	}
	return id + "-" + suffix
}

// UserTurn builds a finalized user turn.
func UserTurn(content string) Turn {
	return Turn{ID: NewID("user"), Role: RoleUser, Content: content}
}

// ModelTurn builds a finalized model turn.
func ModelTurn(content string) Turn {
	return Turn{ID: NewID("model"), Role: RoleModel, Content: content}
}

// IsSystemNotice reports whether t is a widget-generated model turn
// (greeting or configuration notice) rather than conversation content.
func (t Turn) IsSystemNotice() bool {
	return t.ID == GreetingID || t.ID == ConfigErrorID
}

func (t Turn) String() string {
	var b strings.Builder
	b.WriteString(string(t.Role))
	b.WriteString(": ")
	if t.Pending && t.Content == "" {
		b.WriteString("…")
	} else {
		b.WriteString(t.Content)
	}
	return b.String()
}
