package httptransport

import (
	"time"

	"chartforge/internal/artifact"
	"chartforge/internal/workflow"
	"chartforge/pkg/domain"
)

// ArtifactResultResponse is one artifact's slot in a run response.
type ArtifactResultResponse struct {
	Kind        string   `json:"kind"`
	Title       string   `json:"title,omitempty"`
	Disposition string   `json:"disposition"`
	Filename    string   `json:"filename,omitempty"`
	Reason      string   `json:"reason,omitempty"`
	Violated    []string `json:"violated_rules,omitempty"`
}

// OutcomeResponse is the body returned by the generate endpoints.
type OutcomeResponse struct {
	RunID      string                   `json:"run_id"`
	PatientKey string                   `json:"patient_key"`
	StartedAt  time.Time                `json:"started_at"`
	FinishedAt time.Time                `json:"finished_at"`
	Results    []ArtifactResultResponse `json:"results"`
}

func fromOutcome(outcome *workflow.Outcome) OutcomeResponse {
	results := make([]ArtifactResultResponse, len(outcome.Results))
	for i, r := range outcome.Results {
		results[i] = ArtifactResultResponse{
			Kind:        string(r.Kind),
			Title:       string(r.Title),
			Disposition: string(r.Disposition),
			Filename:    r.Filename,
			Reason:      r.Reason,
			Violated:    r.Violated,
		}
	}
	return OutcomeResponse{
		RunID:      string(outcome.RunID),
		PatientKey: outcome.PatientKey.String(),
		StartedAt:  outcome.StartedAt,
		FinishedAt: outcome.FinishedAt,
		Results:    results,
	}
}

// BatchPatientResponse is one patient's slot in a batch response.
type BatchPatientResponse struct {
	PatientKey string           `json:"patient_key"`
	Skipped    bool             `json:"skipped,omitempty"`
	Error      string           `json:"error,omitempty"`
	Outcome    *OutcomeResponse `json:"outcome,omitempty"`
}

// BatchResponse is the body of POST /patients/generate.
type BatchResponse struct {
	Patients []BatchPatientResponse `json:"patients"`
	Failed   int                    `json:"failed"`
}

func fromBatchOutcome(outcome *workflow.BatchOutcome) BatchResponse {
	patients := make([]BatchPatientResponse, len(outcome.Results))
	for i, r := range outcome.Results {
		entry := BatchPatientResponse{
			PatientKey: r.PatientKey.String(),
			Skipped:    r.Skipped,
		}
		if r.Err != nil {
			entry.Error = r.Err.Error()
		}
		if r.Outcome != nil {
			converted := fromOutcome(r.Outcome)
			entry.Outcome = &converted
		}
		patients[i] = entry
	}
	return BatchResponse{Patients: patients, Failed: outcome.Failed()}
}

// InventoryDocumentResponse is one document row in an inventory response.
type InventoryDocumentResponse struct {
	Title    string `json:"title"`
	Seq      int    `json:"seq"`
	Filename string `json:"filename"`
	Fallback bool   `json:"fallback,omitempty"`
}

// InventoryResponse is the body of GET /patients/{id}/inventory.
type InventoryResponse struct {
	PatientKey string                      `json:"patient_key"`
	HasPersona bool                        `json:"has_persona"`
	HasSummary bool                        `json:"has_summary"`
	Documents  []InventoryDocumentResponse `json:"documents"`
}

func fromInventory(key domain.PatientKey, inv *artifact.Inventory) InventoryResponse {
	docs := make([]InventoryDocumentResponse, 0, len(inv.Documents))
	for _, title := range inv.Titles() {
		rec := inv.Documents[title]
		docs = append(docs, InventoryDocumentResponse{
			Title:    string(rec.Title),
			Seq:      rec.Seq,
			Filename: rec.Filename,
			Fallback: rec.Fallback,
		})
	}
	return InventoryResponse{
		PatientKey: key.String(),
		HasPersona: inv.HasPersona,
		HasSummary: inv.HasSummary,
		Documents:  docs,
	}
}
