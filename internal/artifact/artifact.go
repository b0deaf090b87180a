// Package artifact defines the artifact model shared by the scanner, the
// generation workflow, the validation loop, and the persistence writer.
package artifact

import (
	"sort"
	"strings"
	"time"
	"unicode"
)

// Kind enumerates the artifact kinds the workflow can produce.
type Kind string

const (
	KindPersona  Kind = "persona"
	KindDocument Kind = "document"
	KindSummary  Kind = "summary"
)

// IsValid reports whether k is a known kind.
func (k Kind) IsValid() bool {
	switch k {
	case KindPersona, KindDocument, KindSummary:
		return true
	}
	return false
}

// NormalizedTitle is the canonical form of a document title. It is the
// equality key for duplicate detection, so it must be stable and idempotent:
// normalizing a normalized title yields the same value.
type NormalizedTitle string

// NormalizeTitle canonicalizes a raw document title: case-folded, with runs
// of whitespace and punctuation collapsed to a single underscore. Stored
// filenames and requested titles go through the same function so that
// "CT Scan", "ct-scan" and "CT_Scan" all collide.
func NormalizeTitle(raw string) NormalizedTitle {
	var b strings.Builder
	b.Grow(len(raw))
	pendingSep := false
	for _, r := range strings.ToLower(strings.TrimSpace(raw)) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('_')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	return NormalizedTitle(b.String())
}

// String returns the string form of the normalized title.
func (t NormalizedTitle) String() string {
	return string(t)
}

// DocumentRecord describes one document already present for a patient.
type DocumentRecord struct {
	Title    NormalizedTitle
	Seq      int
	Filename string
	Fallback bool
}

// Inventory is the per-patient view of artifacts already produced. It is
// rebuilt fresh on every invocation and mutated in memory only after a
// durable write confirms.
type Inventory struct {
	HasPersona bool
	HasSummary bool
	Documents  map[NormalizedTitle]DocumentRecord
	MaxSeq     int
}

// NewInventory returns an empty inventory.
func NewInventory() *Inventory {
	return &Inventory{Documents: make(map[NormalizedTitle]DocumentRecord)}
}

// HasDocument reports whether a document under the given normalized title
// already exists.
func (inv *Inventory) HasDocument(title NormalizedTitle) bool {
	_, ok := inv.Documents[title]
	return ok
}

// AddDocument records a freshly committed document.
func (inv *Inventory) AddDocument(rec DocumentRecord) {
	if inv.Documents == nil {
		inv.Documents = make(map[NormalizedTitle]DocumentRecord)
	}
	inv.Documents[rec.Title] = rec
	if rec.Seq > inv.MaxSeq {
		inv.MaxSeq = rec.Seq
	}
}

// Titles returns the normalized titles on file, sorted for stable prompts.
func (inv *Inventory) Titles() []NormalizedTitle {
	titles := make([]NormalizedTitle, 0, len(inv.Documents))
	for title := range inv.Documents {
		titles = append(titles, title)
	}
	sort.Slice(titles, func(i, j int) bool { return titles[i] < titles[j] })
	return titles
}

// Raw is the collaborator output before validation, tagged by kind. Exactly
// one payload pointer is set for a well-formed value.
type Raw struct {
	Kind     Kind
	Persona  *Persona
	Document *Document
	Summary  *Summary
}

// Title returns the raw title associated with the artifact, empty for kinds
// without one.
func (r *Raw) Title() string {
	if r.Document != nil {
		return r.Document.Title
	}
	return ""
}

// Generated pairs a raw artifact with provenance. Created per collaborator
// call and handed to the validation loop.
type Generated struct {
	Raw
	GeneratedAt time.Time
	Attempt     int
}

// Final is an artifact that finished the validation loop, either accepted or
// saved with the fallback marker after exhausting the repair budget.
type Final struct {
	Raw
	GeneratedAt time.Time
	Attempt     int
	Fallback    bool
	Seq         int // document sequence number, 0 for persona/summary
}

// Persona is the structured patient identity payload.
type Persona struct {
	FirstName      string `json:"first_name"`
	LastName       string `json:"last_name"`
	Gender         string `json:"gender"`
	DOB            string `json:"dob"`
	Address        string `json:"address"`
	Telecom        string `json:"telecom"`
	MaritalStatus  string `json:"marital_status"`
	Language       string `json:"language"`
	SourceUniverse string `json:"source_universe"`
	Provider       struct {
		GeneralPractitioner  string `json:"general_practitioner"`
		ManagingOrganization string `json:"managing_organization"`
	} `json:"provider"`
	BioNarrative string `json:"bio_narrative"`
}

// DisplayName returns the "First Last" form used for uniqueness checks.
func (p *Persona) DisplayName() string {
	return strings.TrimSpace(p.FirstName + " " + p.LastName)
}

// Section is one named clinical section of a document body. Sections are
// ordered; the renderer emits them in the order the generator produced them.
type Section struct {
	Name string `json:"name"`
	Body string `json:"body"`
}

// Document is a structured clinical report payload.
type Document struct {
	Title       string    `json:"title"`
	DocType     string    `json:"doc_type"` // CONSULT, IMAGING, LAB, DISCHARGE, ER_VISIT
	ServiceDate string    `json:"service_date"`
	Facility    string    `json:"facility"`
	Provider    string    `json:"provider"`
	Sections    []Section `json:"sections"`
	Narrative   string    `json:"narrative"`
}

// TimelineEntry is one dated event on a clinical summary.
type TimelineEntry struct {
	Date    string   `json:"date"`
	Title   string   `json:"title"`
	Details []string `json:"details"`
}

// Summary is the clinical summary payload covering a patient's generated record.
type Summary struct {
	Procedure string          `json:"procedure"`
	Outcome   string          `json:"outcome"`
	Rationale string          `json:"rationale"`
	Timeline  []TimelineEntry `json:"timeline"`
}
