package clip

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Record is the index row for one stored clip.
type Record struct {
	ID         string    `json:"id"`
	SessionID  string    `json:"session_id"`
	Key        string    `json:"key"`
	Frames     int       `json:"frames"`
	DurationMs int64     `json:"duration_ms"`
	SampleRate int       `json:"sample_rate"`
	Bytes      int       `json:"bytes"`
	Backend    string    `json:"backend"`
	CreatedAt  time.Time `json:"created_at"`
}

// ClipEntity represents the database entity for Record with GORM tags
type ClipEntity struct {
	ID         string    `gorm:"primaryKey;type:char(36);not null"`
	SessionID  string    `gorm:"column:session_id;type:varchar(64);index;not null"`
	Key        string    `gorm:"column:object_key;type:varchar(255);uniqueIndex;not null"`
	Frames     int       `gorm:"not null"`
	DurationMs int64     `gorm:"column:duration_ms;not null"`
	SampleRate int       `gorm:"column:sample_rate;not null"`
	Bytes      int       `gorm:"not null"`
	Backend    string    `gorm:"type:varchar(16);not null"`
	CreatedAt  time.Time `gorm:"autoCreateTime;index"`
}

// TableName returns the table name for GORM
func (ClipEntity) TableName() string {
	return "clips"
}

// BeforeCreate is a GORM hook to ensure UUID is set
func (c *ClipEntity) BeforeCreate(tx *gorm.DB) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	return nil
}

func (c *ClipEntity) ToDomain() Record {
	return Record{
		ID:         c.ID,
		SessionID:  c.SessionID,
		Key:        c.Key,
		Frames:     c.Frames,
		DurationMs: c.DurationMs,
		SampleRate: c.SampleRate,
		Bytes:      c.Bytes,
		Backend:    c.Backend,
		CreatedAt:  c.CreatedAt,
	}
}

func NewClipEntityFromDomain(r Record) *ClipEntity {
	return &ClipEntity{
		ID:         r.ID,
		SessionID:  r.SessionID,
		Key:        r.Key,
		Frames:     r.Frames,
		DurationMs: r.DurationMs,
		SampleRate: r.SampleRate,
		Bytes:      r.Bytes,
		Backend:    r.Backend,
		CreatedAt:  r.CreatedAt,
	}
}
