// Package extract turns uploaded documents into structured JSON using an LLM
// constrained by a JSON schema generated from Go types.
package extract

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/invopop/jsonschema"
	"go.uber.org/zap"
)

// Status values reported in a Result.
const (
	StatusSuccess = "success"
	StatusError   = "error"
)

// Document is the raw file handed to the model.
type Document struct {
	Filename string
	MIMEType string
	Data     []byte
}

// Result mirrors the {status, output | details} contract returned to clients.
type Result struct {
	Status  string          `json:"status"`
	Output  json.RawMessage `json:"output,omitempty"`
	Details string          `json:"details,omitempty"`
}

// Request describes one completion: instructions, content and the response schema.
type Request struct {
	Instructions string
	Text         string
	FileName     string
	FileDataURL  string
	SchemaName   string
	Schema       *jsonschema.Schema
}

// Completer sends a schema constrained request to a model and returns its raw JSON answer.
type Completer interface {
	Complete(ctx context.Context, req Request) (string, error)
}

// Extractor renders documents into JSON matching a Go target type.
type Extractor struct {
	completer Completer
	timeout   time.Duration
	logger    *zap.Logger
}

// New constructs an Extractor.
func New(completer Completer, timeout time.Duration, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &Extractor{completer: completer, timeout: timeout, logger: logger}
}

// SchemaFor reflects a strict JSON schema from target.
func SchemaFor(target interface{}) *jsonschema.Schema {
	reflector := jsonschema.Reflector{
		AllowAdditionalProperties: false,
		DoNotReference:            true,
	}
	return reflector.Reflect(target)
}

// Extract asks the model to fill target's schema from doc. Model and decoding
// failures are reported in the Result rather than as errors; only a missing
// completer returns an error.
func (e *Extractor) Extract(ctx context.Context, doc Document, schemaName, instructions string, target interface{}) (*Result, error) {
	if e == nil || e.completer == nil {
		return nil, errors.New("extract: completer not configured")
	}

	ctx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req := Request{
		Instructions: instructions,
		SchemaName:   schemaName,
		Schema:       SchemaFor(target),
		FileName:     doc.Filename,
	}
	if isTextual(doc.MIMEType) {
		req.Text = string(doc.Data)
	} else {
		req.FileDataURL = fmt.Sprintf("data:%s;base64,%s", baseMIME(doc.MIMEType), base64.StdEncoding.EncodeToString(doc.Data))
	}

	raw, err := e.completer.Complete(ctx, req)
	if err != nil {
		e.logger.Warn("extraction request failed", zap.String("schema", schemaName), zap.Error(err))
		return &Result{Status: StatusError, Details: err.Error()}, nil
	}

	if err := json.Unmarshal([]byte(raw), target); err != nil {
		e.logger.Warn("extraction returned invalid json", zap.String("schema", schemaName), zap.Error(err))
		return &Result{Status: StatusError, Details: fmt.Sprintf("model returned invalid JSON: %v", err)}, nil
	}

	normalised, err := json.Marshal(target)
	if err != nil {
		return &Result{Status: StatusError, Details: err.Error()}, nil
	}
	return &Result{Status: StatusSuccess, Output: normalised}, nil
}

func isTextual(mimeType string) bool {
	m := baseMIME(mimeType)
	return strings.HasPrefix(m, "text/") || m == "application/json"
}

func baseMIME(mimeType string) string {
	if idx := strings.Index(mimeType, ";"); idx >= 0 {
		mimeType = mimeType[:idx]
	}
	return strings.TrimSpace(strings.ToLower(mimeType))
}
