package parser

import (
	"errors"
	"strconv"
	"testing"

	"pest-diagnosis-service/prompts"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const validDiagnosis = `{
	"cropType": "lúa",
	"cropSymptom": "lá vàng",
	"possiblePestsOrDiseases": [
		{
			"name": "Bệnh đạo ôn",
			"cause": "Nấm Pyricularia oryzae",
			"impact": "Cháy lá",
			"probability": 0.7,
			"treatment": {
				"method": "Phun thuốc",
				"recommendedProducts": ["Tricyclazole"],
				"applicationTiming": "Sáng sớm",
				"dosage": "Không có thông tin",
				"safetyNotes": "Đeo khẩu trang"
			}
		}
	],
	"additionalInfo": "Không có thông tin"
}`

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{"plain object", `{"a":1}`, `{"a":1}`},
		{"json fence", "```json\n{\"a\":1}\n```", `{"a":1}`},
		{"bare fence", "```\n{\"a\":1}\n```", `{"a":1}`},
		{"prose around object", "Here you go: {\"a\":1} hope it helps", `{"a":1}`},
		{"no object", "just text", "just text"},
		{"whitespace", "  \n ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ExtractJSON(tt.input))
		})
	}
}

func TestParseDiagnosis(t *testing.T) {
	res, err := ParseDiagnosis("```json\n" + validDiagnosis + "\n```")
	require.NoError(t, err)

	assert.Equal(t, "lúa", res.CropType)
	assert.Equal(t, "lá vàng", res.CropSymptom)
	require.Len(t, res.PossiblePestsOrDiseases, 1)
	c := res.PossiblePestsOrDiseases[0]
	assert.Equal(t, "Bệnh đạo ôn", c.Name)
	assert.Equal(t, 0.7, c.Probability)
	assert.Equal(t, []string{"Tricyclazole"}, c.Treatment.RecommendedProducts)
	assert.Equal(t, prompts.NoInformation, res.AdditionalInfo)
}

func TestParseDiagnosisEmptyCandidates(t *testing.T) {
	res, err := ParseDiagnosis(`{"cropType":"lúa","cropSymptom":"x","possiblePestsOrDiseases":[],"additionalInfo":"y"}`)
	require.NoError(t, err)
	assert.NotNil(t, res.PossiblePestsOrDiseases)
	assert.Empty(t, res.PossiblePestsOrDiseases)
}

func TestParseDiagnosisMalformed(t *testing.T) {
	tests := []struct {
		name     string
		response string
	}{
		{"empty", ""},
		{"not json", "Tôi không chắc chắn"},
		{"truncated", `{"cropType": "lúa", "cropSymptom": `},
		{"missing candidates", `{"cropType":"lúa","cropSymptom":"x","additionalInfo":"y"}`},
		{"null required field", `{"cropType":null,"cropSymptom":"x","possiblePestsOrDiseases":[],"additionalInfo":"y"}`},
		{"wrong type", `{"cropType":"lúa","cropSymptom":"x","possiblePestsOrDiseases":{},"additionalInfo":"y"}`},
		{"probability as string", `{"cropType":"lúa","cropSymptom":"x","additionalInfo":"y","possiblePestsOrDiseases":[
			{"name":"a","cause":"b","impact":"c","probability":"high","treatment":{"method":"m","recommendedProducts":[],"applicationTiming":"t","dosage":"d","safetyNotes":"s"}}]}`},
		{"probability above one", `{"cropType":"lúa","cropSymptom":"x","additionalInfo":"y","possiblePestsOrDiseases":[
			{"name":"a","cause":"b","impact":"c","probability":1.5,"treatment":{"method":"m","recommendedProducts":[],"applicationTiming":"t","dosage":"d","safetyNotes":"s"}}]}`},
		{"missing treatment field", `{"cropType":"lúa","cropSymptom":"x","additionalInfo":"y","possiblePestsOrDiseases":[
			{"name":"a","cause":"b","impact":"c","probability":0.5,"treatment":{"method":"m"}}]}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := ParseDiagnosis(tt.response)
			assert.Nil(t, res)
			var me *MalformedResponseError
			require.True(t, errors.As(err, &me), "expected MalformedResponseError, got %v", err)
			assert.Equal(t, prompts.KindTextDiagnosis, me.Kind)
		})
	}
}

func TestInterpretImageResponse(t *testing.T) {
	tests := []struct {
		name        string
		raw         string
		markers     []string
		wantText    string
		wantInvalid bool
		wantSymptom string
	}{
		{"valid description", "  lá vàng, có đốm nâu \n", nil, "lá vàng, có đốm nâu", false, ""},
		{"exact invalid message", prompts.InvalidImageMessage, nil, "", true, prompts.InvalidImageMessage},
		{"marker inside sentence", "Xin lỗi, hình ảnh KHÔNG HỢP LỆ cho cây lúa.", nil, "", true, "Xin lỗi, hình ảnh KHÔNG HỢP LỆ cho cây lúa."},
		{"blank", "   ", nil, "", true, prompts.InvalidImageMessage},
		{"custom marker", "The image is Invalid", []string{"invalid"}, "", true, "The image is Invalid"},
		{"blank markers fall through", "lá khô", []string{" ", ""}, "lá khô", false, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			text, res := InterpretImageResponse(tt.raw, "lúa", tt.markers)
			assert.Equal(t, tt.wantText, text)
			if !tt.wantInvalid {
				assert.Nil(t, res)
				return
			}
			require.NotNil(t, res)
			assert.True(t, res.IsInvalidInput())
			assert.Equal(t, "lúa", res.CropType)
			assert.Equal(t, tt.wantSymptom, res.CropSymptom)
			assert.NotNil(t, res.PossiblePestsOrDiseases)
			assert.Empty(t, res.PossiblePestsOrDiseases)
			assert.Equal(t, prompts.NoInformation, res.AdditionalInfo)
		})
	}
}

func planJSON(steps string) string {
	return `{"cropType":"lúa","pestName":"Rầy nâu","planStartDate":"2024-06-01","planEndDate":"2024-06-03",
		"totalDuration":3,"generalNotes":"n","successIndicators":["ok"],"steps":[` + steps + `]}`
}

func step(day int, date string) string {
	return `{"day":` + strconv.Itoa(day) + `,"date":"` + date + `","title":"t","description":"d","tasks":["a"],"materials":[]}`
}

func TestParseImplementationPlan(t *testing.T) {
	raw := planJSON(step(2, "2024-06-02") + "," + step(1, "2024-06-01") + "," +
		`{"day":3,"date":"2024-06-03","title":"t","description":"d","tasks":[],"materials":[],"notes":"ghi chú","isUrgent":true}`)

	plan, err := ParseImplementationPlan(raw)
	require.NoError(t, err)

	require.Len(t, plan.Steps, 3)
	for i, s := range plan.Steps {
		assert.Equal(t, i+1, s.Day)
	}
	assert.Equal(t, "2024-06-01", plan.Steps[0].Date)
	assert.Equal(t, "ghi chú", plan.Steps[2].Notes)
	assert.True(t, plan.Steps[2].IsUrgent)
	assert.False(t, plan.Steps[0].IsUrgent)
	assert.Equal(t, 3, plan.TotalDuration)
}

func TestParseImplementationPlanMalformed(t *testing.T) {
	tests := []struct {
		name string
		raw  string
	}{
		{"no steps", planJSON("")},
		{"gap in days", planJSON(step(1, "2024-06-01") + "," + step(3, "2024-06-03"))},
		{"duplicate day", planJSON(step(1, "2024-06-01") + "," + step(1, "2024-06-01"))},
		{"starts at zero", planJSON(step(0, "2024-06-01"))},
		{"bad date", planJSON(step(1, "01/06/2024"))},
		{"fractional day", planJSON(`{"day":1.5,"date":"2024-06-01","title":"t","description":"d","tasks":[],"materials":[]}`)},
		{"missing steps", `{"cropType":"lúa","pestName":"x","planStartDate":"2024-06-01","planEndDate":"2024-06-01","totalDuration":1,"generalNotes":"n","successIndicators":[]}`},
		{"not json", "Kế hoạch: phun thuốc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			plan, err := ParseImplementationPlan(tt.raw)
			assert.Nil(t, plan)
			var me *MalformedResponseError
			require.True(t, errors.As(err, &me), "expected MalformedResponseError, got %v", err)
			assert.Equal(t, prompts.KindImplementationPlan, me.Kind)
		})
	}
}
