package models

import (
	"time"

	"github.com/lib/pq"
)

// Account is a customer institution.
type Account struct {
	ID               string         `db:"id" json:"id"`
	Name             string         `db:"name" json:"name"`
	UCN              string         `db:"ucn" json:"ucn"`
	Address          string         `db:"address" json:"address"`
	City             string         `db:"city" json:"city"`
	State            string         `db:"state" json:"state"`
	Zip              string         `db:"zip" json:"zip"`
	ContactName      string         `db:"contact_name" json:"contact_name"`
	ContactEmail     string         `db:"contact_email" json:"contact_email"`
	ContactPhone     string         `db:"contact_phone" json:"contact_phone"`
	IsGovernment     bool           `db:"is_government" json:"is_government"`
	PurchasedSKUs    pq.StringArray `db:"purchased_skus" json:"purchased_skus"`
	LastPurchaseDate *time.Time     `db:"last_purchase_date" json:"last_purchase_date,omitempty"`
	CreatedAt        time.Time      `db:"created_at" json:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at" json:"updated_at"`
}

// AccountFilter narrows account listings.
type AccountFilter struct {
	Search       string
	IsGovernment *bool
	Page         int
	PageSize     int
	SortBy       string
	SortOrder    string
}

// AccountRequest is the create/update payload for an account.
type AccountRequest struct {
	Name             string     `json:"name" validate:"required,max=255"`
	UCN              string     `json:"ucn" validate:"max=64"`
	Address          string     `json:"address"`
	City             string     `json:"city"`
	State            string     `json:"state"`
	Zip              string     `json:"zip"`
	ContactName      string     `json:"contact_name"`
	ContactEmail     string     `json:"contact_email" validate:"omitempty,email"`
	ContactPhone     string     `json:"contact_phone"`
	IsGovernment     bool       `json:"is_government"`
	PurchasedSKUs    []string   `json:"purchased_skus"`
	LastPurchaseDate *time.Time `json:"last_purchase_date"`
}

// BulkImportResult summarises an account bulk import.
type BulkImportResult struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
}

// DeduplicateResult summarises a de-duplication pass.
type DeduplicateResult struct {
	Groups               int `json:"groups"`
	Removed              int `json:"removed"`
	EvaluationsRepointed int `json:"evaluations_repointed"`
}

// RecoverOrphansResult lists placeholder accounts created for dangling evaluations.
type RecoverOrphansResult struct {
	Created []Account `json:"created"`
}
