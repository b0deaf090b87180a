// Package llm implements the generation and repair collaborators on top of
// an llm-sdk language model with JSON-structured output.
package llm

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"strings"
	"time"

	llmsdk "github.com/hoangvvo/llm-sdk/sdk-go"
	"github.com/hoangvvo/llm-sdk/sdk-go/google"
	"github.com/hoangvvo/llm-sdk/sdk-go/openai"

	"chartforge/internal/artifact"
	"chartforge/internal/generate"
	"chartforge/internal/validation"
)

// Fictional universes personas are drawn from. Rotating the universe per
// call keeps the corpus diverse without tracking per-universe state.
var characterUniverses = []string{
	"Seinfeld", "The Office", "Parks and Rec", "Star Wars", "Marvel",
	"Harry Potter", "Friends", "Lord of the Rings", "Breaking Bad",
	"Game of Thrones", "Succession", "The Sopranos", "Grey's Anatomy",
	"House MD", "Scrubs", "2 Broke Girls", "The Big Bang Theory",
	"Brooklyn 99", "Superstore",
}

// Prompts cap the exclusion list to keep token usage bounded.
const maxExcludedNames = 50

// ModelConfig selects the provider and model.
type ModelConfig struct {
	Provider string // "openai" or "google"
	Model    string // optional override
	APIKey   string
	TestMode bool // lightweight models for cheap smoke runs
}

// NewModel builds the language model for the configured provider.
func NewModel(cfg ModelConfig) (llmsdk.LanguageModel, error) {
	switch cfg.Provider {
	case "openai":
		model := cfg.Model
		if model == "" {
			model = "gpt-4o"
			if cfg.TestMode {
				model = "gpt-4o-mini"
			}
		}
		return openai.NewOpenAIModel(model, openai.OpenAIModelOptions{APIKey: cfg.APIKey}), nil
	case "google":
		model := cfg.Model
		if model == "" {
			model = "gemini-2.5-pro"
			if cfg.TestMode {
				model = "gemini-2.5-flash"
			}
		}
		return google.NewGoogleModel(model, google.GoogleModelOptions{APIKey: cfg.APIKey}), nil
	}
	return nil, fmt.Errorf("unsupported LLM provider %q (must be openai or google)", cfg.Provider)
}

// Client implements generate.Generator and generate.Repairer.
type Client struct {
	model  llmsdk.LanguageModel
	logger *slog.Logger
	pick   func(n int) int
	now    func() time.Time
}

// Option configures a Client.
type Option func(*Client)

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithUniversePicker sets the universe selection function, for tests.
func WithUniversePicker(pick func(n int) int) Option {
	return func(c *Client) {
		if pick != nil {
			c.pick = pick
		}
	}
}

// WithClock sets the time source, for tests.
func WithClock(now func() time.Time) Option {
	return func(c *Client) {
		if now != nil {
			c.now = now
		}
	}
}

// New constructs an LLM-backed collaborator.
func New(model llmsdk.LanguageModel, opts ...Option) (*Client, error) {
	if model == nil {
		return nil, fmt.Errorf("language model is required")
	}
	c := &Client{
		model:  model,
		logger: slog.Default(),
		pick:   rand.Intn,
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

const systemPrompt = `You are a senior healthcare data architect generating realistic synthetic
clinical records for test environments.

Rules:
1. Output must look like an authentic hospital EHR export. No meta-commentary,
   no "synthetic data" banners, no "[Redacted]", no "John Doe" placeholders.
2. Use realistic medical detail: ICD-10 and CPT codes, provider names,
   facilities, labs, vitals, chronologically consistent dates.
3. All dates use YYYY-MM-DD.
4. Clinical evidence documents only; never approval letters or denial notices.
5. Respond with a single JSON object matching the requested schema exactly.
   No prose outside the JSON.`

func (c *Client) Generate(ctx context.Context, kind artifact.Kind, req generate.Request) (*artifact.Raw, error) {
	prompt, schemaName := c.buildPrompt(kind, req)

	text, err := c.complete(ctx, prompt, schemaName)
	if err != nil {
		return nil, err
	}

	raw, err := decode(kind, text)
	if err != nil {
		return nil, fmt.Errorf("malformed %s response: %w", kind, err)
	}
	return raw, nil
}

func (c *Client) Repair(ctx context.Context, raw *artifact.Raw, violated []validation.RuleID) (*artifact.Raw, error) {
	previous, err := encode(raw)
	if err != nil {
		return nil, err
	}

	var b strings.Builder
	b.WriteString("The following clinical artifact failed structural validation.\n\n")
	fmt.Fprintf(&b, "Violated rules: %s\n\n", strings.Join(validation.RuleStrings(violated), ", "))
	fmt.Fprintf(&b, "Artifact kind: %s\n\nPrevious JSON:\n%s\n\n", raw.Kind, previous)
	b.WriteString("Produce a corrected JSON object with the same schema that satisfies every rule. ")
	b.WriteString("Preserve all valid content; fix only what the rules require.")

	text, err := c.complete(ctx, b.String(), string(raw.Kind)+"_repair")
	if err != nil {
		return nil, err
	}

	repaired, err := decode(raw.Kind, text)
	if err != nil {
		return nil, fmt.Errorf("malformed repair response: %w", err)
	}
	return repaired, nil
}

func (c *Client) complete(ctx context.Context, prompt, schemaName string) (string, error) {
	system := systemPrompt
	temperature := 0.7

	response, err := c.model.Generate(ctx, &llmsdk.LanguageModelInput{
		SystemPrompt:   &system,
		Messages:       []llmsdk.Message{llmsdk.NewUserMessage(llmsdk.NewTextPart(prompt))},
		ResponseFormat: llmsdk.NewResponseFormatJSON(schemaName, nil, nil),
		Temperature:    &temperature,
	})
	if err != nil {
		return "", err
	}

	for _, part := range response.Content {
		if part.TextPart != nil && strings.TrimSpace(part.TextPart.Text) != "" {
			return part.TextPart.Text, nil
		}
	}
	return "", fmt.Errorf("model returned no text content")
}

func (c *Client) buildPrompt(kind artifact.Kind, req generate.Request) (prompt, schemaName string) {
	var b strings.Builder

	switch kind {
	case artifact.KindPersona:
		schemaName = "patient_persona"
		b.WriteString("Generate a complete patient persona JSON object with fields: ")
		b.WriteString("first_name, last_name, gender, dob, address, telecom, marital_status, ")
		b.WriteString("language, source_universe, provider{general_practitioner, managing_organization}, ")
		b.WriteString("bio_narrative (rich multi-paragraph plain text, no markdown).\n\n")
		c.writeIdentityBlock(&b, req)

	case artifact.KindDocument:
		schemaName = "clinical_document"
		b.WriteString("Generate one extensive clinical document JSON object with fields: ")
		b.WriteString("title, doc_type (CONSULT|IMAGING|LAB|DISCHARGE|ER_VISIT), service_date, ")
		b.WriteString("facility, provider, sections (array of {name, body}), narrative.\n\n")
		fmt.Fprintf(&b, "Required title: %q. The title must be descriptive, never numbered variants.\n", req.Title)
		fmt.Fprintf(&b, "Service date must be in the past relative to %s.\n", c.now().Format("2006-01-02"))
		if len(req.ExistingTitles) > 0 {
			b.WriteString("Documents already on file (do not duplicate their content): ")
			for i, title := range req.ExistingTitles {
				if i > 0 {
					b.WriteString(", ")
				}
				b.WriteString(title.String())
			}
			b.WriteString(".\n")
		}
		c.writeIdentityLock(&b, req)

	case artifact.KindSummary:
		schemaName = "clinical_summary"
		b.WriteString("Generate a clinical summary JSON object with fields: ")
		b.WriteString("procedure, outcome, rationale, timeline (array of {date, title, details}).\n\n")
		c.writeIdentityLock(&b, req)
	}

	fmt.Fprintf(&b, "\nPatient ID: %s\n", req.PatientKey)
	if req.Feedback != "" {
		fmt.Fprintf(&b, "\nOperator instructions for this run (must be incorporated):\n> %s\n", req.Feedback)
	}
	return b.String(), schemaName
}

// writeIdentityBlock emits either the identity lock for existing patients or
// the diversity rules for new personas.
func (c *Client) writeIdentityBlock(b *strings.Builder, req generate.Request) {
	if req.Identity != nil {
		fmt.Fprintf(b, "STRICT IDENTITY LOCK (existing patient, do not change):\n")
		fmt.Fprintf(b, "- Name: %s\n- Gender: %s\n- DOB: %s\n- Address: %s\n",
			req.Identity.DisplayName(), req.Identity.Gender, req.Identity.DOB, req.Identity.Address)
		return
	}

	if req.OverrideName != "" {
		// Explicit operator intent wins over every diversity rule.
		fmt.Fprintf(b, "REQUIRED CHARACTER: use the name %q verbatim, ignoring all other naming rules.\n", req.OverrideName)
		return
	}

	universe := characterUniverses[c.pick(len(characterUniverses))]
	fmt.Fprintf(b, "Identity generation rules:\n")
	fmt.Fprintf(b, "- Select a unique fictional character from the universe of %s.\n", universe)
	fmt.Fprintf(b, "- Set source_universe to %q.\n", universe)
	b.WriteString("- Randomize gender across runs; generate DOB, address and telecom fitting the character.\n")

	if len(req.Exclusions) > 0 {
		excluded := req.Exclusions
		if len(excluded) > maxExcludedNames {
			excluded = excluded[:maxExcludedNames]
		}
		fmt.Fprintf(b, "- USED NAMES (avoid all of these): %s.\n", strings.Join(excluded, ", "))
	}
}

// writeIdentityLock pins document and summary content to an already
// generated persona.
func (c *Client) writeIdentityLock(b *strings.Builder, req generate.Request) {
	if req.Identity == nil {
		return
	}
	fmt.Fprintf(b, "Patient identity (immutable): %s, gender %s, DOB %s, provider %s (%s).\n",
		req.Identity.DisplayName(), req.Identity.Gender, req.Identity.DOB,
		req.Identity.Provider.GeneralPractitioner, req.Identity.Provider.ManagingOrganization)
}

func decode(kind artifact.Kind, text string) (*artifact.Raw, error) {
	payload := strings.TrimSpace(text)
	raw := &artifact.Raw{Kind: kind}
	switch kind {
	case artifact.KindPersona:
		raw.Persona = &artifact.Persona{}
		return raw, json.Unmarshal([]byte(payload), raw.Persona)
	case artifact.KindDocument:
		raw.Document = &artifact.Document{}
		return raw, json.Unmarshal([]byte(payload), raw.Document)
	case artifact.KindSummary:
		raw.Summary = &artifact.Summary{}
		return raw, json.Unmarshal([]byte(payload), raw.Summary)
	}
	return nil, fmt.Errorf("unknown artifact kind %q", kind)
}

func encode(raw *artifact.Raw) (string, error) {
	var payload any
	switch raw.Kind {
	case artifact.KindPersona:
		payload = raw.Persona
	case artifact.KindDocument:
		payload = raw.Document
	case artifact.KindSummary:
		payload = raw.Summary
	default:
		return "", fmt.Errorf("unknown artifact kind %q", raw.Kind)
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	return string(encoded), nil
}
