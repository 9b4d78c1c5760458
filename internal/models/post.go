package models

import "time"

// Post is an entry in the team feed.
type Post struct {
	ID         string    `db:"id" json:"id"`
	AuthorID   string    `db:"author_id" json:"author_id"`
	AuthorName string    `db:"author_name" json:"author_name"`
	Content    string    `db:"content" json:"content"`
	ImageURL   *string   `db:"image_url" json:"image_url,omitempty"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time `db:"updated_at" json:"updated_at"`
}

// PostRequest creates or edits a post.
type PostRequest struct {
	Content  string  `json:"content" validate:"required,max=5000"`
	ImageURL *string `json:"image_url" validate:"omitempty,url"`
}
