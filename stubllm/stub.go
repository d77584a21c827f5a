package stubllm

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"pest-diagnosis-service/llm"
	"pest-diagnosis-service/models"
	"pest-diagnosis-service/prompts"
)

// InvalidImageToken makes the stub treat an image as unrelated to the crop.
const InvalidImageToken = "INVALID"

// StubSymptoms is the description returned for every valid image.
const StubSymptoms = "lá vàng, có đốm nâu"

var (
	quotedPair = regexp.MustCompile(`'([^']*)' trên cây '([^']*)'`)
	isoDate    = regexp.MustCompile(`\d{4}-\d{2}-\d{2}`)
	pestName   = regexp.MustCompile(`xử lý '([^']*)' trên cây '([^']*)'`)
)

// Client is a deterministic, no-network generation backend intended for CI and local runs.
// It returns schema-valid JSON so the parser and orchestrator run end to end.
type Client struct{}

func NewClient() *Client { return &Client{} }

func (c *Client) SourceName() string { return "Stub" }

func (c *Client) Generate(ctx context.Context, req llm.Request) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &llm.TransportError{Op: "stub.generate", Err: err}
	}

	switch req.Kind {
	case prompts.KindImageDiagnosis:
		if req.Image != nil && bytes.Contains(req.Image.Data, []byte(InvalidImageToken)) {
			return prompts.InvalidImageMessage, nil
		}
		return StubSymptoms, nil
	case prompts.KindImplementationPlan:
		return c.plan(req.Prompt)
	default:
		return c.diagnosis(req.Prompt)
	}
}

func (c *Client) diagnosis(prompt string) (string, error) {
	symptoms, crop := "", ""
	if m := quotedPair.FindStringSubmatch(prompt); m != nil {
		symptoms, crop = m[1], m[2]
	}

	sum := sha256.Sum256([]byte(prompt))
	short := hex.EncodeToString(sum[:4])

	treatment := models.Treatment{
		Method:              "Phun thuốc theo khuyến cáo",
		RecommendedProducts: []string{"Stub-" + short},
		ApplicationTiming:   "Sáng sớm hoặc chiều mát",
		Dosage:              prompts.NoInformation,
		SafetyNotes:         "Mang đồ bảo hộ khi phun",
	}
	out := models.DiagnosisResult{
		CropType:    crop,
		CropSymptom: symptoms,
		PossiblePestsOrDiseases: []models.PestOrDisease{
			{Name: "Bệnh đốm nâu (" + short + ")", Cause: "Nấm", Impact: "Giảm năng suất", Treatment: treatment, Probability: 0.6},
			{Name: "Thiếu dinh dưỡng", Cause: "Thiếu đạm", Impact: "Cây còi cọc", Treatment: treatment, Probability: 0.3},
			{Name: "Rầy nâu", Cause: "Côn trùng", Impact: "Cháy rầy", Treatment: treatment, Probability: 0.1},
		},
		AdditionalInfo: prompts.NoInformation,
	}

	b, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (c *Client) plan(prompt string) (string, error) {
	start := time.Now().UTC()
	if d := isoDate.FindString(prompt); d != "" {
		if t, err := time.Parse(prompts.DateLayout, d); err == nil {
			start = t
		}
	}
	pest, crop := "", ""
	if m := pestName.FindStringSubmatch(prompt); m != nil {
		pest, crop = m[1], m[2]
	}

	phases := []struct{ title, task string }{
		{"Chuẩn bị", "Chuẩn bị thuốc và dụng cụ"},
		{"Xử lý", "Phun thuốc toàn ruộng"},
		{"Theo dõi", "Kiểm tra mức độ sâu bệnh"},
		{"Đánh giá", "Đánh giá hiệu quả xử lý"},
	}
	steps := make([]models.ImplementationStep, 0, len(phases))
	for i, ph := range phases {
		steps = append(steps, models.ImplementationStep{
			Day:         i + 1,
			Date:        start.AddDate(0, 0, i).Format(prompts.DateLayout),
			Title:       ph.title,
			Description: fmt.Sprintf("%s cho %s", ph.title, pest),
			Tasks:       []string{ph.task},
			Materials:   []string{},
			IsUrgent:    i == 1,
		})
	}

	out := models.ImplementationPlan{
		CropType:          crop,
		PestName:          pest,
		PlanStartDate:     steps[0].Date,
		PlanEndDate:       steps[len(steps)-1].Date,
		TotalDuration:     len(steps),
		Steps:             steps,
		GeneralNotes:      prompts.NoInformation,
		SuccessIndicators: []string{"Không còn triệu chứng mới"},
	}

	b, err := json.Marshal(out)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
