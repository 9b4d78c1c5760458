package models

import "time"

// AnnouncementPriority defines ordering for announcements.
type AnnouncementPriority string

const (
	AnnouncementPriorityLow    AnnouncementPriority = "LOW"
	AnnouncementPriorityNormal AnnouncementPriority = "NORMAL"
	AnnouncementPriorityHigh   AnnouncementPriority = "HIGH"
)

// Announcement represents a persisted announcement row.
type Announcement struct {
	ID          string               `db:"id" json:"id"`
	Title       string               `db:"title" json:"title"`
	Content     string               `db:"content" json:"content"`
	Priority    AnnouncementPriority `db:"priority" json:"priority"`
	Active      bool                 `db:"active" json:"active"`
	PublishedAt time.Time            `db:"published_at" json:"published_at"`
	ExpiresAt   *time.Time           `db:"expires_at" json:"expires_at,omitempty"`
	CreatedBy   string               `db:"created_by" json:"created_by"`
	CreatedAt   time.Time            `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time            `db:"updated_at" json:"updated_at"`
}

// AnnouncementFilter allows listing announcements.
type AnnouncementFilter struct {
	// ActiveOnly restricts to active, published and unexpired rows.
	ActiveOnly bool
	// ExcludeDismissedBy hides rows the given user dismissed.
	ExcludeDismissedBy string
	Page               int
	PageSize           int
}

// AnnouncementRequest is the admin create/update payload.
type AnnouncementRequest struct {
	Title       string               `json:"title" validate:"required,max=200"`
	Content     string               `json:"content" validate:"required"`
	Priority    AnnouncementPriority `json:"priority" validate:"omitempty,priority"`
	Active      *bool                `json:"active"`
	PublishedAt *time.Time           `json:"published_at"`
	ExpiresAt   *time.Time           `json:"expires_at"`
}
