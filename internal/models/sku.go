package models

import "time"

// SKU is a catalog product.
type SKU struct {
	ID          string    `db:"id" json:"id"`
	Code        string    `db:"code" json:"code"`
	Name        string    `db:"name" json:"name"`
	Description string    `db:"description" json:"description"`
	Category    string    `db:"category" json:"category"`
	Active      bool      `db:"active" json:"active"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
	UpdatedAt   time.Time `db:"updated_at" json:"updated_at"`
}

// SKUFilter narrows catalog listings.
type SKUFilter struct {
	Search   string `json:"search,omitempty"`
	Category string `json:"category,omitempty"`
	Active   *bool  `json:"active,omitempty"`
	Page     int    `json:"page"`
	PageSize int    `json:"page_size"`
}

// SKURequest is the create/update payload for a catalog product.
type SKURequest struct {
	Code        string `json:"code" validate:"required,max=64"`
	Name        string `json:"name" validate:"required,max=255"`
	Description string `json:"description"`
	Category    string `json:"category"`
	Active      *bool  `json:"active"`
}
