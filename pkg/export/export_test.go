package export

import (
	"bytes"
	"encoding/csv"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCSVExporterQuotesEveryField(t *testing.T) {
	data := Dataset{
		Headers: []string{"Evaluation Number", "Account"},
		Rows: []map[string]string{
			{"Evaluation Number": "EV-1", "Account": `St. "Mary" Hospital`},
			{"Evaluation Number": "EV-2", "Account": "General, North"},
		},
	}

	out, err := NewCSVExporter().Render(data)
	require.NoError(t, err)
	assert.Equal(t, "\"Evaluation Number\",\"Account\"\n\"EV-1\",\"St. \"\"Mary\"\" Hospital\"\n\"EV-2\",\"General, North\"\n", string(out))

	records, err := csv.NewReader(bytes.NewReader(out)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, `St. "Mary" Hospital`, records[1][1])
}

func TestCSVExporterMinimalQuoting(t *testing.T) {
	exporter := &CSVExporter{}
	out, err := exporter.Render(Dataset{Headers: []string{"a", "b"}, Rows: []map[string]string{{"a": "1", "b": "x,y"}}})
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,\"x,y\"\n", string(out))

	_, err = exporter.Render(Dataset{})
	assert.Error(t, err)
}

func TestPDFExporterRender(t *testing.T) {
	out, err := NewPDFExporter().Render(Dataset{
		Headers: []string{"A", "B", "C", "D", "E", "F", "G"},
		Rows:    []map[string]string{{"A": "1"}},
	}, "Evaluations")
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(out, []byte("%PDF")))
}

func signaturePNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 40, 20))
	for x := 5; x < 35; x++ {
		img.Set(x, 10, color.Black)
	}
	buf := &bytes.Buffer{}
	require.NoError(t, png.Encode(buf, img))
	return buf.Bytes()
}

func TestAgreementRenderer(t *testing.T) {
	start := time.Date(2026, 11, 1, 0, 0, 0, 0, time.UTC)
	agreement := Agreement{
		EvaluationNumber: "EV-20261015-ABC123",
		Status:           "approved",
		CreatedAt:        time.Date(2026, 10, 15, 12, 0, 0, 0, time.UTC),
		StartDate:        &start,
		ConsultantName:   "Dana Reyes",
		Account:          AgreementParty{Name: "General Hospital", UCN: "UCN-1"},
		Items:            []AgreementItem{{SKUCode: "225028", ProductName: "Infusion Pump", Quantity: 3}},
	}

	unsigned, err := NewAgreementRenderer().Render(agreement)
	require.NoError(t, err)
	assert.True(t, bytes.HasPrefix(unsigned, []byte("%PDF")))

	agreement.Signature = &AgreementSignature{
		Name:     "Pat Buyer",
		Title:    "Director",
		Email:    "pat@hospital.org",
		PONumber: "PO-77",
		SignedAt: time.Date(2026, 10, 16, 9, 0, 0, 0, time.UTC),
		ImagePNG: signaturePNG(t),
	}
	signed, err := NewAgreementRenderer().Render(agreement)
	require.NoError(t, err)
	assert.Greater(t, len(signed), len(unsigned))

	_, err = NewAgreementRenderer().Render(Agreement{})
	assert.Error(t, err)
}
