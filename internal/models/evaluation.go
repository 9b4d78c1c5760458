package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// EvaluationStatus is the lifecycle stage of an evaluation.
type EvaluationStatus string

const (
	EvaluationStatusDraft     EvaluationStatus = "draft"
	EvaluationStatusSubmitted EvaluationStatus = "submitted"
	EvaluationStatusApproved  EvaluationStatus = "approved"
	EvaluationStatusActive    EvaluationStatus = "active"
	EvaluationStatusCompleted EvaluationStatus = "completed"
	EvaluationStatusCancelled EvaluationStatus = "cancelled"
)

var evaluationTransitions = map[EvaluationStatus][]EvaluationStatus{
	EvaluationStatusDraft:     {EvaluationStatusSubmitted, EvaluationStatusCancelled},
	EvaluationStatusSubmitted: {EvaluationStatusApproved, EvaluationStatusDraft, EvaluationStatusCancelled},
	EvaluationStatusApproved:  {EvaluationStatusActive, EvaluationStatusCancelled},
	EvaluationStatusActive:    {EvaluationStatusCompleted, EvaluationStatusCancelled},
}

// Valid reports whether s is a known status.
func (s EvaluationStatus) Valid() bool {
	switch s {
	case EvaluationStatusDraft, EvaluationStatusSubmitted, EvaluationStatusApproved,
		EvaluationStatusActive, EvaluationStatusCompleted, EvaluationStatusCancelled:
		return true
	}
	return false
}

// Terminal reports whether no further transitions are possible.
func (s EvaluationStatus) Terminal() bool {
	return s == EvaluationStatusCompleted || s == EvaluationStatusCancelled
}

// CanTransitionTo reports whether moving from s to next is allowed.
func (s EvaluationStatus) CanTransitionTo(next EvaluationStatus) bool {
	for _, allowed := range evaluationTransitions[s] {
		if allowed == next {
			return true
		}
	}
	return false
}

// SignatureStatus is the customer signature state. It only moves forward.
type SignatureStatus string

const (
	SignatureStatusNotSent SignatureStatus = "not_sent"
	SignatureStatusSent    SignatureStatus = "sent"
	SignatureStatusSigned  SignatureStatus = "signed"
)

// LineItem is one product requested within an evaluation.
type LineItem struct {
	SKUCode  string `json:"sku_code" validate:"required,max=64"`
	Quantity int    `json:"quantity" validate:"min=1"`
	Notes    string `json:"notes,omitempty"`
}

// LineItems is stored as a JSONB array.
type LineItems []LineItem

// Value implements driver.Valuer.
func (l LineItems) Value() (driver.Value, error) {
	if l == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner.
func (l *LineItems) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*l = LineItems{}
		return nil
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return fmt.Errorf("line items: unsupported scan type %T", src)
	}
}

// Contains reports whether any line carries code.
func (l LineItems) Contains(code string) bool {
	for _, item := range l {
		if item.SKUCode == code {
			return true
		}
	}
	return false
}

// Codes returns the SKU codes in line order.
func (l LineItems) Codes() []string {
	codes := make([]string, 0, len(l))
	for _, item := range l {
		codes = append(codes, item.SKUCode)
	}
	return codes
}

// Evaluation is one equipment-evaluation engagement at an account.
type Evaluation struct {
	ID                   string           `db:"id" json:"id"`
	EvaluationNumber     string           `db:"evaluation_number" json:"evaluation_number"`
	AccountID            string           `db:"account_id" json:"account_id"`
	SalesConsultantID    string           `db:"sales_consultant_id" json:"sales_consultant_id"`
	SalesConsultantName  string           `db:"sales_consultant_name" json:"sales_consultant_name"`
	SalesConsultantEmail string           `db:"sales_consultant_email" json:"sales_consultant_email"`
	LineItems            LineItems        `db:"line_items" json:"line_items"`
	Status               EvaluationStatus `db:"status" json:"status"`
	StartDate            *time.Time       `db:"start_date" json:"start_date,omitempty"`
	EndDate              *time.Time       `db:"end_date" json:"end_date,omitempty"`
	Notes                string           `db:"notes" json:"notes"`

	SignatureStatus        SignatureStatus `db:"signature_status" json:"signature_status"`
	SignatureToken         *string         `db:"signature_token" json:"-"`
	SignatureRequestSentAt *time.Time      `db:"signature_request_sent_at" json:"signature_request_sent_at,omitempty"`
	SignedAt               *time.Time      `db:"signed_at" json:"signed_at,omitempty"`
	SignedByName           *string         `db:"signed_by_name" json:"signed_by_name,omitempty"`
	SignedByEmail          *string         `db:"signed_by_email" json:"signed_by_email,omitempty"`
	SignedByTitle          *string         `db:"signed_by_title" json:"signed_by_title,omitempty"`
	CustomerPONumber       *string         `db:"customer_po_number" json:"customer_po_number,omitempty"`
	SignatureDataURL       *string         `db:"signature_data_url" json:"signature_data_url,omitempty"`

	CreatedAt time.Time `db:"created_at" json:"created_at"`
	UpdatedAt time.Time `db:"updated_at" json:"updated_at"`
}

// EvaluationFilter narrows evaluation listings.
type EvaluationFilter struct {
	AccountID         string
	Status            EvaluationStatus
	SalesConsultantID string
	SignatureStatus   SignatureStatus
	Search            string
	Page              int
	PageSize          int
	SortBy            string
	SortOrder         string
}

// EvaluationRequest is the create/update payload.
type EvaluationRequest struct {
	AccountID string     `json:"account_id" validate:"required,uuid"`
	LineItems LineItems  `json:"line_items" validate:"required,min=1,dive"`
	StartDate *time.Time `json:"start_date"`
	EndDate   *time.Time `json:"end_date"`
	Notes     string     `json:"notes" validate:"max=5000"`
}

// EvaluationStatusRequest moves an evaluation through its lifecycle.
type EvaluationStatusRequest struct {
	Status EvaluationStatus `json:"status" validate:"required,oneof=draft submitted approved active completed cancelled"`
}
