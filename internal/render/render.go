// Package render produces the durable plain-text form of artifacts using the
// machine-first report template. Layout details stay here so the workflow and
// the validator only ever deal with structured artifacts.
package render

import (
	"fmt"
	"strings"
	"time"

	"chartforge/internal/artifact"
	"chartforge/pkg/domain"
)

const (
	reportStart = "--- REPORT START ---"
	reportEnd   = "--- REPORT END ---"
)

// Meta carries the report header fields shared by every rendered artifact.
type Meta struct {
	PatientKey  domain.PatientKey
	MRN         string
	PatientName string
	DOB         string
	Gender      string
	ReportDate  string
	AccessionID string
}

// MRN formats the centralized medical record number for a patient.
func MRN(key domain.PatientKey, now time.Time) string {
	return fmt.Sprintf("MRN-%s-%d", key, now.Year())
}

// Renderer turns a finalized artifact into its durable byte form.
type Renderer interface {
	Render(final *artifact.Final, meta Meta) ([]byte, error)
}

// TextRenderer emits the machine-first plain-text template. It stands in for
// the PDF layer, which consumes the same structured content.
type TextRenderer struct{}

// NewText returns a plain-text renderer.
func NewText() *TextRenderer {
	return &TextRenderer{}
}

func (r *TextRenderer) Render(final *artifact.Final, meta Meta) ([]byte, error) {
	switch final.Kind {
	case artifact.KindDocument:
		if final.Document == nil {
			return nil, fmt.Errorf("document artifact has no document payload")
		}
		return r.renderDocument(final.Document, meta), nil
	case artifact.KindPersona:
		if final.Persona == nil {
			return nil, fmt.Errorf("persona artifact has no persona payload")
		}
		return r.renderPersona(final.Persona, meta), nil
	case artifact.KindSummary:
		if final.Summary == nil {
			return nil, fmt.Errorf("summary artifact has no summary payload")
		}
		return r.renderSummary(final.Summary, meta), nil
	}
	return nil, fmt.Errorf("unknown artifact kind %q", final.Kind)
}

func header(meta Meta, docType string) string {
	var b strings.Builder
	b.WriteString("[REPORT_METADATA]\n")
	fmt.Fprintf(&b, "PATIENT_ID: %s\n", meta.PatientKey)
	fmt.Fprintf(&b, "MRN: %s\n", meta.MRN)
	fmt.Fprintf(&b, "PATIENT_NAME: %s\n", meta.PatientName)
	fmt.Fprintf(&b, "DOB: %s\n", meta.DOB)
	fmt.Fprintf(&b, "GENDER: %s\n", meta.Gender)
	fmt.Fprintf(&b, "REPORT_DATE: %s\n", meta.ReportDate)
	fmt.Fprintf(&b, "ACCESSION_ID: %s\n", meta.AccessionID)
	fmt.Fprintf(&b, "DOC_TYPE: %s\n", docType)
	return b.String()
}

func (r *TextRenderer) renderDocument(doc *artifact.Document, meta Meta) []byte {
	var b strings.Builder
	b.WriteString(reportStart + "\n")
	b.WriteString(header(meta, doc.DocType))
	fmt.Fprintf(&b, "PROVIDER: %s\n", doc.Provider)
	fmt.Fprintf(&b, "FACILITY: %s\n", doc.Facility)
	fmt.Fprintf(&b, "SERVICE_DATE: %s\n", doc.ServiceDate)
	fmt.Fprintf(&b, "TITLE: %s\n", doc.Title)
	for _, section := range doc.Sections {
		if strings.TrimSpace(section.Body) == "" {
			continue
		}
		fmt.Fprintf(&b, "\n[%s]\n%s\n", strings.ToUpper(section.Name), strings.TrimSpace(section.Body))
	}
	if strings.TrimSpace(doc.Narrative) != "" {
		fmt.Fprintf(&b, "\n[CLINICAL_TEXT]\n%s\n", strings.TrimSpace(doc.Narrative))
	}
	b.WriteString(reportEnd + "\n")
	return []byte(b.String())
}

func (r *TextRenderer) renderPersona(p *artifact.Persona, meta Meta) []byte {
	var b strings.Builder
	b.WriteString(reportStart + "\n")
	b.WriteString(header(meta, "PERSONA"))
	b.WriteString("\n[DEMOGRAPHICS]\n")
	fmt.Fprintf(&b, "ADDRESS: %s\n", p.Address)
	fmt.Fprintf(&b, "TELECOM: %s\n", p.Telecom)
	fmt.Fprintf(&b, "MARITAL_STATUS: %s\n", p.MaritalStatus)
	fmt.Fprintf(&b, "LANGUAGE: %s\n", p.Language)
	b.WriteString("\n[CARE_TEAM]\n")
	fmt.Fprintf(&b, "GENERAL_PRACTITIONER: %s\n", p.Provider.GeneralPractitioner)
	fmt.Fprintf(&b, "MANAGING_ORGANIZATION: %s\n", p.Provider.ManagingOrganization)
	if strings.TrimSpace(p.BioNarrative) != "" {
		fmt.Fprintf(&b, "\n[CLINICAL_TEXT]\n%s\n", strings.TrimSpace(p.BioNarrative))
	}
	b.WriteString(reportEnd + "\n")
	return []byte(b.String())
}

func (r *TextRenderer) renderSummary(sum *artifact.Summary, meta Meta) []byte {
	var b strings.Builder
	b.WriteString(reportStart + "\n")
	b.WriteString(header(meta, "SUMMARY"))
	b.WriteString("\n[PROCEDURE]\n" + sum.Procedure + "\n")
	b.WriteString("\n[OUTCOME]\n" + sum.Outcome + "\n")
	if strings.TrimSpace(sum.Rationale) != "" {
		b.WriteString("\n[RATIONALE]\n" + strings.TrimSpace(sum.Rationale) + "\n")
	}
	if len(sum.Timeline) > 0 {
		b.WriteString("\n[TIMELINE]\n")
		for _, entry := range sum.Timeline {
			fmt.Fprintf(&b, "%s  %s\n", entry.Date, entry.Title)
			for _, detail := range entry.Details {
				fmt.Fprintf(&b, "  - %s\n", detail)
			}
		}
	}
	b.WriteString(reportEnd + "\n")
	return []byte(b.String())
}
