package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluationStatusTransitions(t *testing.T) {
	tests := []struct {
		from, to EvaluationStatus
		allowed  bool
	}{
		{EvaluationStatusDraft, EvaluationStatusSubmitted, true},
		{EvaluationStatusDraft, EvaluationStatusApproved, false},
		{EvaluationStatusSubmitted, EvaluationStatusDraft, true},
		{EvaluationStatusApproved, EvaluationStatusActive, true},
		{EvaluationStatusActive, EvaluationStatusCompleted, true},
		{EvaluationStatusCompleted, EvaluationStatusCancelled, false},
		{EvaluationStatusCancelled, EvaluationStatusDraft, false},
	}
	for _, tc := range tests {
		assert.Equal(t, tc.allowed, tc.from.CanTransitionTo(tc.to), "%s -> %s", tc.from, tc.to)
	}
	assert.True(t, EvaluationStatusCancelled.Terminal())
	assert.False(t, EvaluationStatus("archived").Valid())
}

func TestLineItemsScanAndValue(t *testing.T) {
	var items LineItems
	require.NoError(t, items.Scan([]byte(`[{"sku_code":"225028","quantity":3,"notes":"loaner"}]`)))
	require.Len(t, items, 1)
	assert.True(t, items.Contains("225028"))
	assert.False(t, items.Contains("999"))
	assert.Equal(t, []string{"225028"}, items.Codes())

	require.NoError(t, items.Scan(nil))
	assert.Empty(t, items)

	var empty LineItems
	v, err := empty.Value()
	require.NoError(t, err)
	assert.Equal(t, []byte("[]"), v)

	assert.Error(t, items.Scan(42))
}
