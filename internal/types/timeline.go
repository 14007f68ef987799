package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// Timeline event types and importance weights. Events are append-only.
const (
	TimelineEventPersonaCreated  = "persona_created"
	TimelineEventVersionCreated  = "version_created"
	TimelineEventVersionPublish  = "version_published"
	TimelineEventResearchUpload  = "research_uploaded"
	TimelineEventPersonaImported = "persona_imported"
)

const (
	ImportanceHigh       = 100
	ImportanceMediumHigh = 75
	ImportanceMedium     = 50
)

const (
	InteractionRoleUser    = "user"
	InteractionRolePersona = "persona"
)

type TimelineEvent struct {
	ID          uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	PersonaID   uuid.UUID      `gorm:"type:uuid;not null;index" json:"persona_id"`
	Persona     *Persona       `gorm:"constraint:OnDelete:CASCADE;foreignKey:PersonaID;references:ID" json:"persona,omitempty"`
	Title       string         `gorm:"column:title;not null" json:"title"`
	Description string         `gorm:"column:description" json:"description"`
	EventType   string         `gorm:"column:event_type;not null;index" json:"event_type"`
	EventDate   time.Time      `gorm:"column:event_date;not null;index" json:"event_date"`
	Importance  int            `gorm:"column:importance;not null;default:50" json:"importance"`
	Category    string         `gorm:"column:category;index" json:"category"`
	// RefID backlinks a version or research item; the recorder stores it opaquely.
	RefID     *uuid.UUID     `gorm:"type:uuid;column:ref_id" json:"ref_id,omitempty"`
	Metadata  datatypes.JSON `gorm:"column:metadata;type:jsonb" json:"metadata,omitempty"`
	SourceID  string         `gorm:"column:source_id" json:"source_id,omitempty"`
	CreatedAt time.Time      `gorm:"not null" json:"created_at"`
}

func (TimelineEvent) TableName() string {
	return "timeline_event"
}

type Interaction struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey" json:"id"`
	PersonaID uuid.UUID `gorm:"type:uuid;not null;index" json:"persona_id"`
	Persona   *Persona  `gorm:"constraint:OnDelete:CASCADE;foreignKey:PersonaID;references:ID" json:"persona,omitempty"`
	UserID    uuid.UUID `gorm:"type:uuid;not null;index" json:"user_id"`
	Role      string    `gorm:"column:role;not null" json:"role"` // user|persona
	Content   string    `gorm:"column:content;not null" json:"content"`
	SourceID  string    `gorm:"column:source_id" json:"source_id,omitempty"`
	CreatedAt time.Time `gorm:"not null;index" json:"created_at"`
}

func (Interaction) TableName() string {
	return "interaction"
}
