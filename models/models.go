package models

// Analysis modes accepted in DiagnosisRequest.AnalysisType.
const (
	AnalysisTypeText  = "text"
	AnalysisTypeImage = "image"
)

// DiagnosisRequest is the body of the analyze endpoints.
// Symptoms is authoritative for text mode, ImageBase64 (+ ImageMimeType) for image mode.
type DiagnosisRequest struct {
	CropType      string `json:"cropType"`
	AnalysisType  string `json:"analysisType,omitempty"`
	Symptoms      string `json:"symptoms,omitempty"`
	ImageBase64   string `json:"imageBase64,omitempty"`
	ImageMimeType string `json:"imageMimeType,omitempty"`
}

// Treatment describes how to handle one pest or disease.
// Unknown values carry the "no information" sentinel rather than being omitted.
type Treatment struct {
	Method              string   `json:"method"`
	RecommendedProducts []string `json:"recommendedProducts"`
	ApplicationTiming   string   `json:"applicationTiming"`
	Dosage              string   `json:"dosage"`
	SafetyNotes         string   `json:"safetyNotes"`
}

// PestOrDisease is one diagnosis candidate.
type PestOrDisease struct {
	Name        string    `json:"name"`
	Cause       string    `json:"cause"`
	Impact      string    `json:"impact"`
	Treatment   Treatment `json:"treatment"`
	Probability float64   `json:"probability"`
}

// DiagnosisResult is returned by both analyze paths.
// An image that does not match the crop yields an empty candidate list with the
// explanation in CropSymptom.
type DiagnosisResult struct {
	CropType                string          `json:"cropType"`
	CropSymptom             string          `json:"cropSymptom"`
	PossiblePestsOrDiseases []PestOrDisease `json:"possiblePestsOrDiseases"`
	AdditionalInfo          string          `json:"additionalInfo"`
}

// IsInvalidInput reports whether the result is the "image does not match" outcome.
func (r *DiagnosisResult) IsInvalidInput() bool {
	return r != nil && len(r.PossiblePestsOrDiseases) == 0
}

// ImplementationPlanRequest asks for a day-by-day plan treating one candidate.
type ImplementationPlanRequest struct {
	PestOrDisease *PestOrDisease `json:"pestOrDisease"`
	CropType      string         `json:"cropType"`
	CurrentDate   string         `json:"currentDate"`
}

// ImplementationStep is a single day of an ImplementationPlan.
type ImplementationStep struct {
	Day         int      `json:"day"`
	Date        string   `json:"date"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Tasks       []string `json:"tasks"`
	Materials   []string `json:"materials"`
	Notes       string   `json:"notes,omitempty"`
	IsUrgent    bool     `json:"isUrgent,omitempty"`
}

// ImplementationPlan is the treatment schedule generated for a pest or disease.
// Steps are ordered by Day starting at 1 with no gaps.
type ImplementationPlan struct {
	CropType          string               `json:"cropType"`
	PestName          string               `json:"pestName"`
	PlanStartDate     string               `json:"planStartDate"`
	PlanEndDate       string               `json:"planEndDate"`
	TotalDuration     int                  `json:"totalDuration"`
	Steps             []ImplementationStep `json:"steps"`
	GeneralNotes      string               `json:"generalNotes"`
	SuccessIndicators []string             `json:"successIndicators"`
}
