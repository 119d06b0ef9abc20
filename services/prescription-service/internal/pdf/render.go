// Package pdf renders a prescription as a printable A4 document.
package pdf

import (
	"fmt"
	"io"
	"strings"

	"github.com/jung-kurt/gofpdf"
	"github.com/repromitra/telehealth/services/prescription-service/internal/model"
)

const brand = "ReproMitra"

func Render(w io.Writer, p model.Prescription) error {
	doc := gofpdf.New("P", "mm", "A4", "")
	doc.SetTitle("Prescription "+p.AppointmentID, true)
	doc.SetAuthor(brand, true)
	doc.SetMargins(15, 15, 15)
	doc.AddPage()
	tr := doc.UnicodeTranslatorFromDescriptor("")

	doc.SetFont("Arial", "B", 16)
	doc.SetTextColor(30, 64, 175)
	doc.CellFormat(0, 10, brand+" Prescription", "", 1, "C", false, 0, "")
	doc.SetTextColor(0, 0, 0)
	doc.Ln(4)

	doctor := p.DoctorName
	if doctor == "" {
		doctor = "Doctor"
	}
	if p.Specialization != "" {
		doctor += " (" + p.Specialization + ")"
	}
	detail(doc, tr, "Doctor", doctor)
	detail(doc, tr, "Consultation", strings.TrimSpace(p.Date+" "+p.Time))
	detail(doc, tr, "Appointment", p.AppointmentID)
	detail(doc, tr, "Issued", p.IssuedAt.UTC().Format("2006-01-02 15:04 MST"))
	if p.Diagnosis != "" {
		detail(doc, tr, "Diagnosis", p.Diagnosis)
	}
	doc.Ln(4)

	section(doc, "Medications")
	if len(p.Medications) == 0 {
		doc.SetFont("Arial", "I", 11)
		doc.CellFormat(0, 7, "No medications prescribed", "", 1, "L", false, 0, "")
	} else {
		widths := []float64{60, 40, 40, 40}
		doc.SetFont("Arial", "B", 11)
		doc.SetFillColor(229, 231, 235)
		for i, h := range []string{"Name", "Dosage", "Frequency", "Duration"} {
			doc.CellFormat(widths[i], 8, h, "1", 0, "L", true, 0, "")
		}
		doc.Ln(-1)
		doc.SetFont("Arial", "", 11)
		for _, m := range p.Medications {
			for i, v := range []string{m.Name, m.Dosage, m.Frequency, m.Duration} {
				doc.CellFormat(widths[i], 8, tr(v), "1", 0, "L", false, 0, "")
			}
			doc.Ln(-1)
		}
	}
	doc.Ln(4)

	if p.Instructions != "" {
		section(doc, "Instructions")
		doc.SetFont("Arial", "", 11)
		doc.MultiCell(0, 6, tr(p.Instructions), "", "L", false)
		doc.Ln(2)
	}
	if p.FollowUpDate != "" {
		section(doc, "Follow-up")
		doc.SetFont("Arial", "", 11)
		doc.CellFormat(0, 7, fmt.Sprintf("Please book a follow-up consultation on or after %s.", p.FollowUpDate), "", 1, "L", false, 0, "")
	}

	doc.SetY(-30)
	doc.SetFont("Arial", "I", 9)
	doc.SetTextColor(107, 114, 128)
	doc.MultiCell(0, 5, "This prescription was issued after a video consultation on "+brand+". Patient identity is kept pseudonymous.", "", "C", false)

	if err := doc.Error(); err != nil {
		return err
	}
	return doc.Output(w)
}

func section(doc *gofpdf.Fpdf, title string) {
	doc.SetFont("Arial", "B", 13)
	doc.CellFormat(0, 9, title, "B", 1, "L", false, 0, "")
	doc.Ln(1)
}

func detail(doc *gofpdf.Fpdf, tr func(string) string, label, value string) {
	doc.SetFont("Arial", "B", 11)
	doc.CellFormat(35, 7, label+":", "", 0, "L", false, 0, "")
	doc.SetFont("Arial", "", 11)
	doc.CellFormat(0, 7, tr(value), "", 1, "L", false, 0, "")
}
