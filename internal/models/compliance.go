package models

import "time"

// ComplianceItem is a candidate line item submitted for checking.
type ComplianceItem struct {
	SKUCode  string `json:"sku_code" validate:"required"`
	Quantity int    `json:"quantity"`
}

// ComplianceCheckRequest asks whether items may be evaluated at an account.
type ComplianceCheckRequest struct {
	AccountID           string           `json:"account_id" validate:"required"`
	Items               []ComplianceItem `json:"items" validate:"dive"`
	ExcludeEvaluationID string           `json:"exclude_evaluation_id"`
}

// ComplianceViolation reports a SKU evaluated at the account inside the lookback window.
// It is computed on demand and never stored.
type ComplianceViolation struct {
	SKUCode            string    `json:"sku_code"`
	ProductName        string    `json:"product_name"`
	LastEvaluationDate time.Time `json:"last_evaluation_date"`
	CanEvaluateDate    time.Time `json:"can_evaluate_date"`
	DaysUntilEligible  int       `json:"days_until_eligible"`
	EvaluationNumber   string    `json:"evaluation_number"`
}

// Blocking reports whether the violation must still prevent a save.
func (v ComplianceViolation) Blocking() bool {
	return v.DaysUntilEligible > 0
}

// ComplianceCheckResponse wraps the computed violations.
type ComplianceCheckResponse struct {
	Compliant  bool                  `json:"compliant"`
	Violations []ComplianceViolation `json:"violations"`
}
