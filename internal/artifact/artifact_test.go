package artifact

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeTitle(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want NormalizedTitle
	}{
		{"spaces collapse to underscore", "CT Scan", "ct_scan"},
		{"mixed separators", "Cardiology - Consult", "cardiology_consult"},
		{"legacy hyphenated filename title", "Echo-Report", "echo_report"},
		{"run of punctuation", "Lab__Report!!", "lab_report"},
		{"leading and trailing noise", "  MRI Brain  ", "mri_brain"},
		{"already normalized", "discharge_summary", "discharge_summary"},
		{"empty", "", ""},
		{"only punctuation", "---", ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, NormalizeTitle(tc.raw))
		})
	}
}

func TestNormalizeTitleIdempotent(t *testing.T) {
	raws := []string{
		"CT Scan", "Echo-Report", "  Lab  Report ", "X-RAY (Chest)",
		"cardiology_consult", "", "Имя Файла", "a--b__c  d",
	}
	for _, raw := range raws {
		once := NormalizeTitle(raw)
		assert.Equal(t, once, NormalizeTitle(once.String()), "normalize must be idempotent for %q", raw)
	}
}

func TestInventoryDocuments(t *testing.T) {
	inv := NewInventory()
	assert.False(t, inv.HasDocument("ct_scan"))

	inv.AddDocument(DocumentRecord{Title: "ct_scan", Seq: 3, Filename: "DOC-210-003-CT_Scan.txt"})
	assert.True(t, inv.HasDocument("ct_scan"))
	assert.Equal(t, 3, inv.MaxSeq)

	// Lower sequence numbers never lower the max.
	inv.AddDocument(DocumentRecord{Title: "lab_report", Seq: 1})
	assert.Equal(t, 3, inv.MaxSeq)
}

func TestPersonaDisplayName(t *testing.T) {
	p := &Persona{FirstName: "Leslie", LastName: "Knope"}
	assert.Equal(t, "Leslie Knope", p.DisplayName())

	empty := &Persona{}
	assert.Equal(t, "", empty.DisplayName())
}

func TestKindIsValid(t *testing.T) {
	assert.True(t, KindPersona.IsValid())
	assert.True(t, KindDocument.IsValid())
	assert.True(t, KindSummary.IsValid())
	assert.False(t, Kind("sql").IsValid())
}
