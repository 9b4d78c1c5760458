package extract

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type lineItem struct {
	SKUCode  string `json:"sku_code"`
	Quantity int    `json:"quantity"`
}

type evaluationDoc struct {
	AccountName string     `json:"account_name"`
	LineItems   []lineItem `json:"line_items"`
}

type fakeCompleter struct {
	answer string
	err    error
	got    Request
}

func (f *fakeCompleter) Complete(_ context.Context, req Request) (string, error) {
	f.got = req
	return f.answer, f.err
}

func TestExtractSuccessWithTextDocument(t *testing.T) {
	completer := &fakeCompleter{answer: `{"account_name":"General Hospital","line_items":[{"sku_code":"225028","quantity":3}]}`}
	extractor := New(completer, time.Second, nil)

	var out evaluationDoc
	res, err := extractor.Extract(context.Background(), Document{Filename: "eval.csv", MIMEType: "text/csv; charset=utf-8", Data: []byte("sku,qty\n225028,3")}, "evaluation", "extract", &out)
	require.NoError(t, err)
	assert.Equal(t, StatusSuccess, res.Status)
	assert.Equal(t, "General Hospital", out.AccountName)
	assert.Equal(t, "sku,qty\n225028,3", completer.got.Text)
	assert.Empty(t, completer.got.FileDataURL)
	assert.NotNil(t, completer.got.Schema)

	var echoed evaluationDoc
	require.NoError(t, json.Unmarshal(res.Output, &echoed))
	assert.Equal(t, out, echoed)
}

func TestExtractBinaryDocumentUsesDataURL(t *testing.T) {
	completer := &fakeCompleter{answer: `{"account_name":"","line_items":[]}`}
	extractor := New(completer, time.Second, nil)

	var out evaluationDoc
	_, err := extractor.Extract(context.Background(), Document{Filename: "eval.pdf", MIMEType: "application/pdf", Data: []byte("%PDF-1.4")}, "evaluation", "extract", &out)
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(completer.got.FileDataURL, "data:application/pdf;base64,"))
	assert.Equal(t, "eval.pdf", completer.got.FileName)
}

func TestExtractReportsModelFailures(t *testing.T) {
	extractor := New(&fakeCompleter{err: errors.New("rate limited")}, time.Second, nil)
	var out evaluationDoc
	res, err := extractor.Extract(context.Background(), Document{MIMEType: "text/plain", Data: []byte("x")}, "evaluation", "extract", &out)
	require.NoError(t, err)
	assert.Equal(t, StatusError, res.Status)
	assert.Equal(t, "rate limited", res.Details)

	extractor = New(&fakeCompleter{answer: "not json"}, time.Second, nil)
	res, err = extractor.Extract(context.Background(), Document{MIMEType: "text/plain", Data: []byte("x")}, "evaluation", "extract", &out)
	require.NoError(t, err)
	assert.Equal(t, StatusError, res.Status)
	assert.Contains(t, res.Details, "invalid JSON")
}

func TestSchemaForIsStrict(t *testing.T) {
	schema := SchemaFor(&evaluationDoc{})
	raw, err := json.Marshal(schema)
	require.NoError(t, err)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, false, decoded["additionalProperties"])
	assert.ElementsMatch(t, []interface{}{"account_name", "line_items"}, decoded["required"])
}
