// Package validation applies structural acceptance rules to generated
// artifacts and drives the bounded repair loop. Verdicts judge artifacts,
// they never mutate them.
package validation

import (
	"strings"
	"time"

	"chartforge/internal/artifact"
)

// RuleID names a structural acceptance rule. The violated list is fed back
// to the repair collaborator as context.
type RuleID string

const (
	RuleBodyPresent     RuleID = "body_present"
	RuleRequiredFields  RuleID = "required_fields"
	RuleDatesConsistent RuleID = "dates_consistent"
	RuleTitleMatch      RuleID = "title_match"
	RuleNoForbiddenText RuleID = "no_forbidden_text"
)

// Verdict is the pure output of validating one artifact.
type Verdict struct {
	Accepted bool
	Violated []RuleID
}

// Expectation pins what the workflow asked the collaborator for.
type Expectation struct {
	Kind  artifact.Kind
	Title artifact.NormalizedTitle // documents only
}

// Config tunes individual rules.
type Config struct {
	// AllowMarkdownBold disables the markdown-bold check in narratives.
	AllowMarkdownBold bool
}

// Validator applies the structural rules.
type Validator struct {
	cfg Config
}

// NewValidator constructs a validator.
func NewValidator(cfg Config) *Validator {
	return &Validator{cfg: cfg}
}

const dateLayout = "2006-01-02"

// Validate judges one generated artifact against the expectation.
func (v *Validator) Validate(gen *artifact.Generated, want Expectation) Verdict {
	var violated []RuleID
	add := func(rule RuleID) {
		for _, existing := range violated {
			if existing == rule {
				return
			}
		}
		violated = append(violated, rule)
	}

	if gen.Kind != want.Kind {
		add(RuleTitleMatch)
	}

	switch gen.Kind {
	case artifact.KindPersona:
		v.validatePersona(gen, add)
	case artifact.KindDocument:
		v.validateDocument(gen, want, add)
	case artifact.KindSummary:
		v.validateSummary(gen, add)
	default:
		add(RuleRequiredFields)
	}

	return Verdict{Accepted: len(violated) == 0, Violated: violated}
}

func (v *Validator) validatePersona(gen *artifact.Generated, add func(RuleID)) {
	p := gen.Persona
	if p == nil {
		add(RuleRequiredFields)
		add(RuleBodyPresent)
		return
	}
	if p.FirstName == "" || p.LastName == "" || p.Gender == "" || p.DOB == "" {
		add(RuleRequiredFields)
	}
	if strings.TrimSpace(p.BioNarrative) == "" {
		add(RuleBodyPresent)
	}
	if dob, err := time.Parse(dateLayout, p.DOB); err != nil || !dob.Before(gen.GeneratedAt) {
		add(RuleDatesConsistent)
	}
	v.checkForbidden(p.BioNarrative, add)
}

func (v *Validator) validateDocument(gen *artifact.Generated, want Expectation, add func(RuleID)) {
	doc := gen.Document
	if doc == nil {
		add(RuleRequiredFields)
		add(RuleBodyPresent)
		return
	}
	if doc.Title == "" || doc.DocType == "" || doc.ServiceDate == "" || doc.Provider == "" || doc.Facility == "" {
		add(RuleRequiredFields)
	}
	if want.Title != "" && artifact.NormalizeTitle(doc.Title) != want.Title {
		add(RuleTitleMatch)
	}

	hasBody := strings.TrimSpace(doc.Narrative) != ""
	for _, section := range doc.Sections {
		if strings.TrimSpace(section.Body) != "" {
			hasBody = true
		}
		v.checkForbidden(section.Body, add)
	}
	if !hasBody {
		add(RuleBodyPresent)
	}

	// Historical evidence is dated in the past relative to generation.
	if svc, err := time.Parse(dateLayout, doc.ServiceDate); err != nil || svc.After(gen.GeneratedAt) {
		add(RuleDatesConsistent)
	}
	v.checkForbidden(doc.Narrative, add)
}

func (v *Validator) validateSummary(gen *artifact.Generated, add func(RuleID)) {
	sum := gen.Summary
	if sum == nil {
		add(RuleRequiredFields)
		add(RuleBodyPresent)
		return
	}
	if sum.Procedure == "" || sum.Outcome == "" {
		add(RuleRequiredFields)
	}
	if strings.TrimSpace(sum.Rationale) == "" && len(sum.Timeline) == 0 {
		add(RuleBodyPresent)
	}
	for _, entry := range sum.Timeline {
		if _, err := time.Parse(dateLayout, entry.Date); err != nil {
			add(RuleDatesConsistent)
		}
	}
	v.checkForbidden(sum.Rationale, add)
}

func (v *Validator) checkForbidden(text string, add func(RuleID)) {
	if strings.Contains(text, `"""`) || strings.Contains(text, "Redacted") {
		add(RuleNoForbiddenText)
	}
	if !v.cfg.AllowMarkdownBold && strings.Contains(text, "**") {
		add(RuleNoForbiddenText)
	}
}

// RuleStrings converts rule IDs to plain strings for prompts and index rows.
func RuleStrings(rules []RuleID) []string {
	out := make([]string, len(rules))
	for i, rule := range rules {
		out[i] = string(rule)
	}
	return out
}
