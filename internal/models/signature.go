package models

import "time"

// SignatureSubmission is the payload posted by the customer on the public signing page.
type SignatureSubmission struct {
	Name             string `json:"signed_by_name" validate:"required,max=255"`
	Email            string `json:"signed_by_email" validate:"required,email"`
	Title            string `json:"signed_by_title" validate:"required,max=255"`
	PONumber         string `json:"customer_po_number" validate:"required,max=128"`
	SignatureDataURL string `json:"signature_data_url" validate:"required"`
}

// SignatureRequestResult is returned to staff after a request is dispatched.
type SignatureRequestResult struct {
	EvaluationID string          `json:"evaluation_id"`
	Status       SignatureStatus `json:"signature_status"`
	SentTo       string          `json:"sent_to"`
	SentAt       time.Time       `json:"sent_at"`
	SigningURL   string          `json:"signing_url"`
}

// PublicLineItem is a line item enriched with its product name.
type PublicLineItem struct {
	SKUCode     string `json:"sku_code"`
	ProductName string `json:"product_name"`
	Quantity    int    `json:"quantity"`
	Notes       string `json:"notes,omitempty"`
}

// PublicEvaluation is the unauthenticated view shown to a signer.
type PublicEvaluation struct {
	EvaluationNumber    string           `json:"evaluation_number"`
	AccountName         string           `json:"account_name"`
	AccountAddress      string           `json:"account_address,omitempty"`
	SalesConsultantName string           `json:"sales_consultant_name"`
	StartDate           *time.Time       `json:"start_date,omitempty"`
	EndDate             *time.Time       `json:"end_date,omitempty"`
	LineItems           []PublicLineItem `json:"line_items"`
	SignatureStatus     SignatureStatus  `json:"signature_status"`
	RequestSentAt       *time.Time       `json:"signature_request_sent_at,omitempty"`
}

// SignatureReceipt confirms a completed signature.
type SignatureReceipt struct {
	EvaluationNumber string          `json:"evaluation_number"`
	SignatureStatus  SignatureStatus `json:"signature_status"`
	SignedAt         time.Time       `json:"signed_at"`
}

// CompletedSignature is the data persisted on the sent to signed transition.
type CompletedSignature struct {
	Token            string    `db:"token"`
	SignedAt         time.Time `db:"signed_at"`
	Name             string    `db:"signed_by_name"`
	Email            string    `db:"signed_by_email"`
	Title            string    `db:"signed_by_title"`
	PONumber         string    `db:"customer_po_number"`
	SignatureDataURL string    `db:"signature_data_url"`
}
