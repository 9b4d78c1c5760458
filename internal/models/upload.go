package models

// UploadResult is returned after a file is stored.
type UploadResult struct {
	FileURL     string `json:"file_url"`
	FileKey     string `json:"file_key"`
	ContentType string `json:"content_type"`
	Size        int64  `json:"size"`
}

// Extraction targets.
const (
	ExtractionTargetEvaluation = "evaluation"
	ExtractionTargetAccounts   = "accounts"
)

// ExtractionRequest asks for structured data from an uploaded file.
type ExtractionRequest struct {
	FileURL string `json:"file_url" validate:"required"`
	Target  string `json:"target" validate:"required,oneof=evaluation accounts"`
}

// ExtractedLineItem is a line item read from a document.
type ExtractedLineItem struct {
	SKUCode  string `json:"sku_code" jsonschema:"description=Product SKU code exactly as printed"`
	Quantity int    `json:"quantity" jsonschema:"description=Requested quantity; 1 when not stated"`
	Notes    string `json:"notes" jsonschema:"description=Free text notes for the line; empty when none"`
}

// ExtractedEvaluation is the schema used when reading an evaluation request form.
type ExtractedEvaluation struct {
	AccountName string              `json:"account_name" jsonschema:"description=Customer institution name"`
	UCN         string              `json:"ucn" jsonschema:"description=Customer number; empty when absent"`
	LineItems   []ExtractedLineItem `json:"line_items"`
	Notes       string              `json:"notes"`
}

// ExtractedAccount is one customer row read from a spreadsheet or PDF.
type ExtractedAccount struct {
	Name         string `json:"name"`
	UCN          string `json:"ucn"`
	Address      string `json:"address"`
	City         string `json:"city"`
	State        string `json:"state"`
	Zip          string `json:"zip"`
	ContactName  string `json:"contact_name"`
	ContactEmail string `json:"contact_email"`
	ContactPhone string `json:"contact_phone"`
	IsGovernment bool   `json:"is_government"`
}

// ExtractedAccounts is the schema used when reading an account list.
type ExtractedAccounts struct {
	Accounts []ExtractedAccount `json:"accounts"`
}
