package prompts

import (
	"reflect"
	"strings"
	"testing"

	"pest-diagnosis-service/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBuildTextDiagnosisPrompt(t *testing.T) {
	p := BuildTextDiagnosisPrompt("lá vàng, có đốm nâu", "lúa")

	assert.Equal(t, KindTextDiagnosis, p.Kind)
	assert.Contains(t, p.Text, "'lá vàng, có đốm nâu'")
	assert.Contains(t, p.Text, "'lúa'")
	assert.Contains(t, p.Text, NoInformation)
	assert.Contains(t, p.Text, "giảm dần")
	require.NotNil(t, p.Schema)
	assert.Equal(t, TypeObject, p.Schema.Type)
	assert.ElementsMatch(t, []string{"cropType", "cropSymptom", "possiblePestsOrDiseases", "additionalInfo"}, p.Schema.Required)
}

func TestBuildersAreDeterministic(t *testing.T) {
	treatment := models.Treatment{
		Method:              "Phun thuốc",
		RecommendedProducts: []string{"Actara", "Regent"},
		ApplicationTiming:   "Sáng sớm",
		Dosage:              "10ml/bình 16 lít",
		SafetyNotes:         "Đeo khẩu trang",
	}

	assert.Equal(t, BuildTextDiagnosisPrompt("héo rũ", "cà chua"), BuildTextDiagnosisPrompt("héo rũ", "cà chua"))
	assert.Equal(t, BuildImageDiagnosisPrompt("ngô"), BuildImageDiagnosisPrompt("ngô"))
	assert.Equal(t,
		BuildImplementationPlanPrompt("Rầy nâu", "lúa", treatment, "2024-06-01"),
		BuildImplementationPlanPrompt("Rầy nâu", "lúa", treatment, "2024-06-01"),
	)
}

func TestBuildImageDiagnosisPrompt(t *testing.T) {
	p := BuildImageDiagnosisPrompt("cà phê")

	assert.Equal(t, KindImageDiagnosis, p.Kind)
	assert.Nil(t, p.Schema)
	assert.Contains(t, p.Text, "'cà phê'")
	assert.Contains(t, p.Text, InvalidImageMessage)
	assert.True(t, strings.Contains(InvalidImageMessage, InvalidImageMarker))
}

func TestBuildImplementationPlanPrompt(t *testing.T) {
	t.Run("full treatment", func(t *testing.T) {
		p := BuildImplementationPlanPrompt("Rầy nâu", "lúa", models.Treatment{
			Method:              "Phun thuốc",
			RecommendedProducts: []string{"Actara", "Regent"},
			ApplicationTiming:   "Sáng sớm",
			Dosage:              "10ml/bình",
			SafetyNotes:         "Đeo khẩu trang",
		}, "2024-06-01")

		assert.Equal(t, KindImplementationPlan, p.Kind)
		assert.Contains(t, p.Text, "'Rầy nâu'")
		assert.Contains(t, p.Text, "bắt đầu từ ngày 2024-06-01")
		assert.Contains(t, p.Text, "Actara, Regent")
		require.NotNil(t, p.Schema)
		assert.Contains(t, p.Schema.Required, "steps")
	})

	t.Run("empty treatment falls back to sentinel", func(t *testing.T) {
		p := BuildImplementationPlanPrompt("Sâu cuốn lá", "lúa", models.Treatment{}, "2024-06-01")
		assert.Contains(t, p.Text, "Phương pháp: "+NoInformation)
		assert.Contains(t, p.Text, "Sản phẩm khuyến nghị: "+NoInformation)
	})
}

// Every required name in a schema must be a JSON field of the model it describes,
// and every non-omitempty model field must be required.
func TestSchemasMatchModels(t *testing.T) {
	cases := []struct {
		name   string
		schema *Schema
		model  any
	}{
		{"treatment", TreatmentSchema(), models.Treatment{}},
		{"candidate", CandidateSchema(), models.PestOrDisease{}},
		{"diagnosis", DiagnosisSchema(), models.DiagnosisResult{}},
		{"step", StepSchema(), models.ImplementationStep{}},
		{"plan", PlanSchema(), models.ImplementationPlan{}},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var mandatory, all []string
			typ := reflect.TypeOf(tc.model)
			for i := 0; i < typ.NumField(); i++ {
				tag := typ.Field(i).Tag.Get("json")
				name, opts, _ := strings.Cut(tag, ",")
				all = append(all, name)
				if !strings.Contains(opts, "omitempty") {
					mandatory = append(mandatory, name)
				}
			}

			assert.ElementsMatch(t, mandatory, tc.schema.Required)
			assert.ElementsMatch(t, all, tc.schema.PropertyOrdering)
			for _, name := range all {
				assert.Contains(t, tc.schema.Properties, name)
			}
		})
	}
}
