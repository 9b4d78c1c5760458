package export

import (
	"bytes"
	"fmt"
	"strconv"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// AgreementParty is the customer block printed on an agreement.
type AgreementParty struct {
	Name         string
	UCN          string
	Address      string
	ContactName  string
	ContactEmail string
	ContactPhone string
}

// AgreementItem is one product row.
type AgreementItem struct {
	SKUCode     string
	ProductName string
	Quantity    int
	Notes       string
}

// AgreementSignature carries the captured signature. ImagePNG may be empty.
type AgreementSignature struct {
	Name     string
	Title    string
	Email    string
	PONumber string
	SignedAt time.Time
	ImagePNG []byte
}

// Agreement is the printable evaluation agreement.
type Agreement struct {
	EvaluationNumber string
	Status           string
	CreatedAt        time.Time
	StartDate        *time.Time
	EndDate          *time.Time
	ConsultantName   string
	ConsultantEmail  string
	Account          AgreementParty
	Items            []AgreementItem
	Notes            string
	Signature        *AgreementSignature
}

// AgreementRenderer renders evaluation agreements to PDF.
type AgreementRenderer struct{}

// NewAgreementRenderer constructs an AgreementRenderer.
func NewAgreementRenderer() *AgreementRenderer {
	return &AgreementRenderer{}
}

const dateLayout = "January 2, 2006"

// Render produces the agreement PDF.
func (r *AgreementRenderer) Render(a Agreement) ([]byte, error) {
	if a.EvaluationNumber == "" {
		return nil, fmt.Errorf("agreement requires an evaluation number")
	}

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetMargins(15, 15, 15)
	pdf.SetTitle("Evaluation Agreement "+a.EvaluationNumber, true)
	tr := pdf.UnicodeTranslatorFromDescriptor("")
	pdf.AddPage()

	pdf.SetFont("Arial", "B", 16)
	pdf.CellFormat(0, 10, "EQUIPMENT EVALUATION AGREEMENT", "", 1, "C", false, 0, "")
	pdf.SetFont("Arial", "", 10)
	pdf.CellFormat(0, 6, tr(fmt.Sprintf("Evaluation %s  |  Status: %s  |  Created %s", a.EvaluationNumber, a.Status, a.CreatedAt.Format(dateLayout))), "", 1, "C", false, 0, "")
	pdf.Ln(4)

	section(pdf, "Customer")
	field(pdf, tr, "Account", a.Account.Name)
	field(pdf, tr, "UCN", a.Account.UCN)
	field(pdf, tr, "Address", a.Account.Address)
	field(pdf, tr, "Contact", a.Account.ContactName)
	field(pdf, tr, "Email", a.Account.ContactEmail)
	field(pdf, tr, "Phone", a.Account.ContactPhone)
	pdf.Ln(2)

	section(pdf, "Sales Consultant")
	field(pdf, tr, "Name", a.ConsultantName)
	field(pdf, tr, "Email", a.ConsultantEmail)
	if a.StartDate != nil {
		field(pdf, tr, "Start date", a.StartDate.Format(dateLayout))
	}
	if a.EndDate != nil {
		field(pdf, tr, "End date", a.EndDate.Format(dateLayout))
	}
	pdf.Ln(2)

	section(pdf, "Products")
	widths := []float64{30, 80, 20, 50}
	pdf.SetFont("Arial", "B", 9)
	pdf.SetFillColor(230, 230, 230)
	for i, h := range []string{"SKU", "Product", "Qty", "Notes"} {
		pdf.CellFormat(widths[i], 7, h, "1", 0, "C", true, 0, "")
	}
	pdf.Ln(-1)
	pdf.SetFont("Arial", "", 9)
	for _, item := range a.Items {
		pdf.CellFormat(widths[0], 7, tr(item.SKUCode), "1", 0, "", false, 0, "")
		pdf.CellFormat(widths[1], 7, tr(truncate(pdf, item.ProductName, widths[1]-2)), "1", 0, "", false, 0, "")
		pdf.CellFormat(widths[2], 7, strconv.Itoa(item.Quantity), "1", 0, "R", false, 0, "")
		pdf.CellFormat(widths[3], 7, tr(truncate(pdf, item.Notes, widths[3]-2)), "1", 0, "", false, 0, "")
		pdf.Ln(-1)
	}
	pdf.Ln(2)

	if a.Notes != "" {
		section(pdf, "Notes")
		pdf.SetFont("Arial", "", 9)
		pdf.MultiCell(0, 5, tr(a.Notes), "", "", false)
		pdf.Ln(2)
	}

	section(pdf, "Customer Acceptance")
	if a.Signature == nil {
		pdf.SetFont("Arial", "I", 9)
		pdf.CellFormat(0, 6, "Awaiting customer signature.", "", 1, "", false, 0, "")
	} else {
		if err := drawSignature(pdf, a.Signature.ImagePNG); err != nil {
			return nil, err
		}
		field(pdf, tr, "Signed by", a.Signature.Name)
		field(pdf, tr, "Title", a.Signature.Title)
		field(pdf, tr, "Email", a.Signature.Email)
		field(pdf, tr, "PO number", a.Signature.PONumber)
		field(pdf, tr, "Signed at", a.Signature.SignedAt.UTC().Format(time.RFC1123))
	}

	buf := &bytes.Buffer{}
	if err := pdf.Output(buf); err != nil {
		return nil, fmt.Errorf("render agreement pdf: %w", err)
	}
	return buf.Bytes(), nil
}

func section(pdf *gofpdf.Fpdf, title string) {
	pdf.SetFont("Arial", "B", 11)
	pdf.CellFormat(0, 7, title, "B", 1, "", false, 0, "")
	pdf.Ln(1)
}

func field(pdf *gofpdf.Fpdf, tr func(string) string, label, value string) {
	if value == "" {
		return
	}
	pdf.SetFont("Arial", "B", 9)
	pdf.CellFormat(35, 6, label+":", "", 0, "", false, 0, "")
	pdf.SetFont("Arial", "", 9)
	pdf.CellFormat(0, 6, tr(value), "", 1, "", false, 0, "")
}

func drawSignature(pdf *gofpdf.Fpdf, png []byte) error {
	if len(png) == 0 {
		return nil
	}
	opts := gofpdf.ImageOptions{ImageType: "PNG"}
	pdf.RegisterImageOptionsReader("signature", opts, bytes.NewReader(png))
	if err := pdf.Error(); err != nil {
		return fmt.Errorf("register signature image: %w", err)
	}
	x, y := pdf.GetXY()
	pdf.ImageOptions("signature", x, y, 60, 0, false, opts, 0, "")
	info := pdf.GetImageInfo("signature")
	height := 20.0
	if info != nil && info.Width() > 0 {
		height = 60 * info.Height() / info.Width()
	}
	pdf.SetXY(x, y+height+2)
	return nil
}
