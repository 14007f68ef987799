package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Persona is the live, mutable profile. Editable fields are only written
// through VersionService.Publish so the version history stays consistent.
type Persona struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	UserID       uuid.UUID      `gorm:"type:uuid;not null;index" json:"user_id"`
	User         *User          `gorm:"constraint:OnDelete:CASCADE;foreignKey:UserID;references:ID" json:"user,omitempty"`
	Name         string         `gorm:"column:name;not null" json:"name"`
	Age          int            `gorm:"column:age" json:"age"`
	Occupation   string         `gorm:"column:occupation" json:"occupation"`
	Location     string         `gorm:"column:location" json:"location"`
	Introduction string         `gorm:"column:introduction" json:"introduction"`
	Traits       datatypes.JSON `gorm:"column:traits;type:jsonb" json:"traits"`
	Interests    datatypes.JSON `gorm:"column:interests;type:jsonb" json:"interests"`
	Attributes   datatypes.JSON `gorm:"column:attributes;type:jsonb" json:"attributes"`

	AvatarBucketKey string `gorm:"column:avatar_bucket_key" json:"avatar_bucket_key"`
	AvatarURL       string `gorm:"column:avatar_url" json:"avatar_url"`

	// Current-version pointer. Label is denormalized for display.
	CurrentVersionID    *uuid.UUID `gorm:"type:uuid;column:current_version_id" json:"current_version_id,omitempty"`
	CurrentVersionLabel string     `gorm:"column:current_version_label" json:"current_version_label"`

	// Optimistic guard for concurrent publishes.
	LockVersion int `gorm:"column:lock_version;not null;default:0" json:"-"`

	// Original id carried through an archive import.
	SourceID string `gorm:"column:source_id" json:"source_id,omitempty"`

	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
	UpdatedAt time.Time `gorm:"not null" json:"updated_at"`
}

func (Persona) TableName() string {
	return "persona"
}

// PersonaVersion is an immutable snapshot of a persona's editable fields.
// ParentVersionID forms a branch tree, not a linear chain.
type PersonaVersion struct {
	ID              uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	PersonaID       uuid.UUID       `gorm:"type:uuid;not null;index" json:"persona_id"`
	Persona         *Persona        `gorm:"constraint:OnDelete:CASCADE;foreignKey:PersonaID;references:ID" json:"persona,omitempty"`
	Label           string          `gorm:"column:label;not null" json:"label"`
	Name            string          `gorm:"column:name;not null" json:"name"`
	Snapshot        datatypes.JSON  `gorm:"column:snapshot;type:jsonb;not null" json:"snapshot"`
	ParentVersionID *uuid.UUID      `gorm:"type:uuid;column:parent_version_id;index" json:"parent_version_id,omitempty"`
	Parent          *PersonaVersion `gorm:"foreignKey:ParentVersionID;references:ID" json:"parent,omitempty"`
	IsActive        bool            `gorm:"column:is_active;not null;default:false;index" json:"is_active"`
	IsDraft         bool            `gorm:"column:is_draft;not null" json:"is_draft"`
	Notes           string          `gorm:"column:notes" json:"notes"`
	CreatedBy       uuid.UUID       `gorm:"type:uuid;column:created_by" json:"created_by"`
	SourceID        string          `gorm:"column:source_id" json:"source_id,omitempty"`
	CreatedAt       time.Time       `gorm:"not null;index" json:"created_at"`
}

func (PersonaVersion) TableName() string {
	return "persona_version"
}

// VersionSnapshot is the editable-field payload captured by a version.
type VersionSnapshot struct {
	Name         string         `json:"name"`
	Age          int            `json:"age"`
	Occupation   string         `json:"occupation"`
	Location     string         `json:"location"`
	Introduction string         `json:"introduction"`
	Traits       []string       `json:"traits,omitempty"`
	Interests    []string       `json:"interests,omitempty"`
	Attributes   map[string]any `json:"attributes,omitempty"`
}
