package httptransport

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/suite"

	"chartforge/internal/artifact"
	"chartforge/internal/docstore/memory"
	"chartforge/internal/generate"
	"chartforge/internal/history"
	historymemory "chartforge/internal/history/store/memory"
	"chartforge/internal/inventory"
	"chartforge/internal/persist"
	"chartforge/internal/purge"
	"chartforge/internal/registry"
	registrymemory "chartforge/internal/registry/store/memory"
	"chartforge/internal/render"
	"chartforge/internal/validation"
	"chartforge/internal/workflow"
)

// ============================================================================
// Justification for unit tests:
// Handler tests validate HTTP concerns only: request parsing, routing, the
// error-to-status mapping, and auth gating on destructive endpoints. The
// workflow semantics behind them are covered by the workflow and purge
// suites; here the stack is real in-memory components with a canned
// generation collaborator.
// ============================================================================

const testSigningSecret = "handler-test-secret"

// cannedGenerator returns well-formed artifacts for any request.
type cannedGenerator struct{}

func (cannedGenerator) Generate(_ context.Context, kind artifact.Kind, req generate.Request) (*artifact.Raw, error) {
	switch kind {
	case artifact.KindPersona:
		return &artifact.Raw{Kind: kind, Persona: &artifact.Persona{
			FirstName: "Cosmo", LastName: "Kramer",
			Gender: "male", DOB: "1957-03-14",
			BioNarrative:   "Longtime patient with documented history.",
			SourceUniverse: "Seinfeld",
		}}, nil
	case artifact.KindDocument:
		return &artifact.Raw{Kind: kind, Document: &artifact.Document{
			Title: req.Title, DocType: "CONSULT", ServiceDate: "2025-04-01",
			Facility: "Mercy General", Provider: "Dr. Benes",
			Sections: []artifact.Section{{Name: "Findings", Body: "Stable."}},
		}}, nil
	case artifact.KindSummary:
		return &artifact.Raw{Kind: kind, Summary: &artifact.Summary{
			Procedure: "Lumbar fusion", Outcome: "approved",
			Rationale: "Conservative therapy exhausted.",
		}}, nil
	}
	return nil, fmt.Errorf("unexpected kind %q", kind)
}

type HandlerSuite struct {
	suite.Suite

	store  *memory.Store
	router http.Handler
}

func (s *HandlerSuite) SetupTest() {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	s.store = memory.New()
	index := memory.NewIndex()

	reg, err := registry.New(registrymemory.New())
	s.Require().NoError(err)

	scanner, err := inventory.New(s.store)
	s.Require().NoError(err)

	loop, err := validation.NewLoop(validation.NewValidator(validation.Config{}))
	s.Require().NoError(err)

	writer, err := persist.New(s.store, index, render.NewText())
	s.Require().NoError(err)

	wf, err := workflow.New(scanner, reg, cannedGenerator{}, loop, writer)
	s.Require().NoError(err)

	purger, err := purge.New(s.store, index, reg)
	s.Require().NoError(err)

	histSvc, err := history.New(historymemory.New())
	s.Require().NoError(err)

	validator, err := NewHMACValidator(testSigningSecret)
	s.Require().NoError(err)

	handler, err := New(wf, purger, scanner,
		WithLogger(logger),
		WithHistory(histSvc),
		WithAuth(RequireAuth(validator, logger)),
	)
	s.Require().NoError(err)

	r := chi.NewRouter()
	handler.Register(r)
	s.router = r
}

func TestHandlerSuite(t *testing.T) {
	suite.Run(t, new(HandlerSuite))
}

func (s *HandlerSuite) do(method, path string, body any, headers ...string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		s.Require().NoError(err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for i := 0; i+1 < len(headers); i += 2 {
		req.Header.Set(headers[i], headers[i+1])
	}
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *HandlerSuite) bearer() string {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": "ops-user",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	signed, err := token.SignedString([]byte(testSigningSecret))
	s.Require().NoError(err)
	return "Bearer " + signed
}

// ============================================================================
// POST /patients/{id}/generate
// ============================================================================

func (s *HandlerSuite) TestGenerate_FullRun() {
	rec := s.do(http.MethodPost, "/patients/210/generate", GenerateRequest{
		DocumentTitles: []string{"MRI Lumbar Spine"},
	})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	var resp OutcomeResponse
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(&resp))
	s.Equal("210", resp.PatientKey)
	s.NotEmpty(resp.RunID)
	s.Require().Len(resp.Results, 3)
	for _, r := range resp.Results {
		s.Equal("accepted", r.Disposition)
	}
}

func (s *HandlerSuite) TestGenerate_InvalidJSON() {
	req := httptest.NewRequest(http.MethodPost, "/patients/210/generate",
		bytes.NewReader([]byte("not valid json")))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestGenerate_UnknownKindRejected() {
	rec := s.do(http.MethodPost, "/patients/210/generate", GenerateRequest{
		Kinds: []string{"radiology_report"},
	})
	s.Equal(http.StatusBadRequest, rec.Code)

	var resp map[string]string
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(&resp))
	s.Equal("bad_request", resp["error"])
}

// ============================================================================
// POST /patients/generate (batch)
// ============================================================================

func (s *HandlerSuite) TestBatch_PreservesInputOrder() {
	rec := s.do(http.MethodPost, "/patients/generate", BatchRequest{
		PatientKeys: []string{"301", "302"},
		GenerateRequest: GenerateRequest{
			DocumentTitles: []string{"Cardiology Consult"},
		},
	})
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	var resp BatchResponse
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(&resp))
	s.Require().Len(resp.Patients, 2)
	s.Equal("301", resp.Patients[0].PatientKey)
	s.Equal("302", resp.Patients[1].PatientKey)
	s.Zero(resp.Failed)
}

func (s *HandlerSuite) TestBatch_RequiresPatientKeys() {
	rec := s.do(http.MethodPost, "/patients/generate", BatchRequest{})
	s.Equal(http.StatusBadRequest, rec.Code)
}

// ============================================================================
// GET /patients/{id}/inventory
// ============================================================================

func (s *HandlerSuite) TestInventory_ReflectsGeneratedFiles() {
	rec := s.do(http.MethodPost, "/patients/210/generate", GenerateRequest{
		DocumentTitles: []string{"MRI Lumbar Spine"},
	})
	s.Require().Equal(http.StatusOK, rec.Code)

	rec = s.do(http.MethodGet, "/patients/210/inventory", nil)
	s.Require().Equal(http.StatusOK, rec.Code)

	var resp InventoryResponse
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(&resp))
	s.True(resp.HasPersona)
	s.True(resp.HasSummary)
	s.Require().Len(resp.Documents, 1)
	s.Equal("mri_lumbar_spine", resp.Documents[0].Title)
	s.Equal(1, resp.Documents[0].Seq)
}

func (s *HandlerSuite) TestInventory_EmptyPatient() {
	rec := s.do(http.MethodGet, "/patients/999/inventory", nil)
	s.Require().Equal(http.StatusOK, rec.Code)

	var resp InventoryResponse
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(&resp))
	s.False(resp.HasPersona)
	s.Empty(resp.Documents)
}

// ============================================================================
// GET /patients/{id}/history
// ============================================================================

func (s *HandlerSuite) TestHistory_EmptyIsAnArrayNotNull() {
	rec := s.do(http.MethodGet, "/patients/210/history", nil)
	s.Require().Equal(http.StatusOK, rec.Code)
	s.Equal("[]\n", rec.Body.String())
}

// ============================================================================
// Auth gating on destructive endpoints
// ============================================================================

func (s *HandlerSuite) TestPurge_MissingTokenRejected() {
	rec := s.do(http.MethodDelete, "/purge/all", nil)
	s.Equal(http.StatusUnauthorized, rec.Code)
}

func (s *HandlerSuite) TestPurge_MalformedTokenRejected() {
	rec := s.do(http.MethodDelete, "/purge/all", nil,
		"Authorization", "Bearer not-a-jwt")
	s.Equal(http.StatusUnauthorized, rec.Code)
}

func (s *HandlerSuite) TestPurge_WrongSecretRejected() {
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "ops"})
	signed, err := token.SignedString([]byte("some-other-secret"))
	s.Require().NoError(err)

	rec := s.do(http.MethodDelete, "/purge/all", nil,
		"Authorization", "Bearer "+signed)
	s.Equal(http.StatusUnauthorized, rec.Code)
}

func (s *HandlerSuite) TestPurge_ValidTokenRemovesEverything() {
	rec := s.do(http.MethodPost, "/patients/210/generate", GenerateRequest{
		DocumentTitles: []string{"MRI Lumbar Spine"},
	})
	s.Require().Equal(http.StatusOK, rec.Code)

	rec = s.do(http.MethodDelete, "/purge/all", nil, "Authorization", s.bearer())
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	var report purge.Report
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(&report))
	s.Equal(3, report.Files)

	patients, err := s.store.ListPatients(context.Background())
	s.Require().NoError(err)
	s.Empty(patients)
}

func (s *HandlerSuite) TestPurge_UnknownScopeRejected() {
	rec := s.do(http.MethodDelete, "/purge/half", nil, "Authorization", s.bearer())
	s.Equal(http.StatusBadRequest, rec.Code)
}

func (s *HandlerSuite) TestPurgePatient_RequiresToken() {
	rec := s.do(http.MethodDelete, "/patients/210", nil)
	s.Equal(http.StatusUnauthorized, rec.Code)
}

func (s *HandlerSuite) TestPurgePatient_RemovesOnlyThatPatient() {
	for _, key := range []string{"210", "211"} {
		rec := s.do(http.MethodPost, "/patients/"+key+"/generate", GenerateRequest{
			DocumentTitles: []string{"MRI Lumbar Spine"},
		})
		s.Require().Equal(http.StatusOK, rec.Code)
	}

	rec := s.do(http.MethodDelete, "/patients/210", nil, "Authorization", s.bearer())
	s.Require().Equal(http.StatusOK, rec.Code, rec.Body.String())

	rec = s.do(http.MethodGet, "/patients/210/inventory", nil)
	var gone InventoryResponse
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(&gone))
	s.False(gone.HasPersona)

	rec = s.do(http.MethodGet, "/patients/211/inventory", nil)
	var kept InventoryResponse
	s.Require().NoError(json.NewDecoder(rec.Body).Decode(&kept))
	s.True(kept.HasPersona)
}
