package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Repository represents a Git repository in the system
type Repository struct {
	ID        uuid.UUID `json:"id" gorm:"type:uuid;primaryKey"`
	Name      string    `json:"name" gorm:"not null;uniqueIndex:idx_repo_owner_name"`
	OwnerID   uuid.UUID `json:"owner_id" gorm:"type:uuid;not null;uniqueIndex:idx_repo_owner_name"`
	Owner     User      `json:"owner,omitzero" gorm:"foreignKey:OwnerID"`
	IsPrivate bool      `json:"is_private" gorm:"default:false"`
	// GitPath is the storage location; relative paths resolve against the storage base path
	GitPath   string    `json:"git_path" gorm:"size:1024"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// TableName specifies the table name for Repository
func (Repository) TableName() string {
	return "repositories"
}

// BeforeCreate assigns an ID when none was set
func (r *Repository) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

// GetFullName returns the full repository name in format owner/repo
func (r *Repository) GetFullName() string {
	if r.Owner.Username != "" {
		return r.Owner.Username + "/" + r.Name
	}
	return r.Name
}

// CanBeAccessedBy reports whether a user may read (or, with write, push to) the repository.
// Public repositories are readable by any authenticated user; everything else needs
// the owner or an admin.
func (r *Repository) CanBeAccessedBy(userID uuid.UUID, isAdmin, write bool) bool {
	if isAdmin || (userID != uuid.Nil && userID == r.OwnerID) {
		return true
	}
	return !write && !r.IsPrivate && userID != uuid.Nil
}
