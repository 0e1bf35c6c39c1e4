package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// SSHKey represents an SSH public key associated with a user
type SSHKey struct {
	ID     uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	UserID uuid.UUID `json:"user_id" gorm:"type:uuid;not null;index"`
	User   User      `json:"-" gorm:"foreignKey:UserID"`
	Title  string    `json:"title" gorm:"not null;size:255"`
	// PublicKey is stored in authorized_keys format
	PublicKey   string     `json:"-" gorm:"not null;type:text"`
	Fingerprint string     `json:"fingerprint" gorm:"size:255;index"`
	Active      bool       `json:"active" gorm:"not null;index"`
	LastUsedAt  *time.Time `json:"last_used_at,omitempty"`
	CreatedAt   time.Time  `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt   time.Time  `json:"updated_at" gorm:"autoUpdateTime"`
}

// TableName returns the table name for the SSHKey model
func (SSHKey) TableName() string {
	return "ssh_keys"
}

// BeforeCreate assigns an ID when none was set
func (k *SSHKey) BeforeCreate(tx *gorm.DB) error {
	if k.ID == uuid.Nil {
		k.ID = uuid.New()
	}
	return nil
}
