package domain

import (
	"strings"
	"time"
)

// UnknownName is the name the model reports when it cannot identify the
// medication with confidence.
const UnknownName = "unknown"

type Medication struct {
	Name        string   `json:"name"`
	Description string   `json:"description"`
	Dosage      string   `json:"dosage"`
	SideEffects []string `json:"sideEffects"`
	Warnings    []string `json:"warnings"`
}

// IsUnknown reports whether the model declined to identify the medication.
// An empty name counts as unknown.
func (m *Medication) IsUnknown() bool {
	name := strings.TrimSpace(m.Name)
	return name == "" || strings.EqualFold(name, UnknownName)
}

type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

func (r Role) Valid() bool {
	return r == RoleUser || r == RoleModel
}

type ChatMessage struct {
	Role    Role      `json:"role"`
	Content string    `json:"content"`
	SentAt  time.Time `json:"sentAt,omitzero"`
}

type View string

const (
	ViewIntake View = "intake"
	ViewResult View = "result"
)

// Snapshot is the persisted form of a settled session. In-flight flags are
// never part of it.
type Snapshot struct {
	SessionID  string
	View       View
	ImageKey   string
	ImageMIME  string
	Medication *Medication
	Transcript []ChatMessage
	Error      string
	UpdatedAt  time.Time
}
