package types

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
)

type ResearchItem struct {
	ID           uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	PersonaID    uuid.UUID      `gorm:"type:uuid;not null;index" json:"persona_id"`
	Persona      *Persona       `gorm:"constraint:OnDelete:CASCADE;foreignKey:PersonaID;references:ID" json:"persona,omitempty"`
	Title        string         `gorm:"column:title;not null" json:"title"`
	Description  string         `gorm:"column:description" json:"description"`
	Content      string         `gorm:"column:content" json:"content"`
	Category     string         `gorm:"column:category;index" json:"category"`
	Source       string         `gorm:"column:source" json:"source"`
	Tags         datatypes.JSON `gorm:"column:tags;type:jsonb" json:"tags"`
	RelevantDate *time.Time     `gorm:"column:relevant_date" json:"relevant_date,omitempty"`
	SourceID     string         `gorm:"column:source_id" json:"source_id,omitempty"`
	CreatedAt    time.Time      `gorm:"not null;index" json:"created_at"`
	UpdatedAt    time.Time      `gorm:"not null" json:"updated_at"`

	Files []*ResearchFile `gorm:"foreignKey:ResearchItemID;references:ID" json:"files,omitempty"`
}

func (ResearchItem) TableName() string {
	return "research_item"
}

type ResearchFile struct {
	ID             uuid.UUID     `gorm:"type:uuid;primaryKey" json:"id"`
	ResearchItemID uuid.UUID     `gorm:"type:uuid;not null;index" json:"research_item_id"`
	ResearchItem   *ResearchItem `gorm:"constraint:OnDelete:CASCADE;foreignKey:ResearchItemID;references:ID" json:"research_item,omitempty"`
	OriginalName   string        `gorm:"column:original_name;not null" json:"original_name"`
	MimeType       string        `gorm:"column:mime_type" json:"mime_type"`
	SizeBytes      int64         `gorm:"column:size_bytes" json:"size_bytes"`
	StorageKey     string        `gorm:"column:storage_key;not null" json:"storage_key"`
	FileURL        string        `gorm:"column:file_url" json:"file_url"`
	Status         string        `gorm:"column:status;not null;default:'uploaded'" json:"status"`
	CreatedAt      time.Time     `gorm:"not null" json:"created_at"`
	UpdatedAt      time.Time     `gorm:"not null" json:"updated_at"`
}

func (ResearchFile) TableName() string {
	return "research_file"
}

// Chunk is a bounded span of extracted text. Chunks live in the vector
// index, never in the record store; they are regenerable from their source.
type Chunk struct {
	PersonaID  uuid.UUID `json:"persona_id"`
	SourceName string    `json:"source_name"`
	Index      int       `json:"index"`
	Text       string    `json:"text"`
	Origin     string    `json:"origin"` // upload|manual
}
