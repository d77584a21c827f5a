package service

import (
	"context"
	"errors"
	"reflect"
	"strings"
	"time"

	"pest-diagnosis-service/events"
	"pest-diagnosis-service/imaging"
	"pest-diagnosis-service/llm"
	"pest-diagnosis-service/metrics"
	"pest-diagnosis-service/models"
	"pest-diagnosis-service/parser"
	"pest-diagnosis-service/prompts"

	"github.com/apex/log"
	"github.com/go-playground/validator/v10"
)

const (
	DefaultMaxImageBytes     = 10 << 20
	DefaultMaxImageDimension = 1024
	DefaultMaxImagePixels    = 40_000_000

	publishTimeout = 5 * time.Second
)

// Options tunes the orchestrator. Zero values fall back to the defaults.
type Options struct {
	InvalidImageMarkers []string
	NormalizeCandidates bool
	MaxImageBytes       int
	MaxImageDimension   int
	MaxImagePixels      int
	Publisher           events.Publisher
}

func DefaultOptions() Options {
	return Options{
		InvalidImageMarkers: parser.DefaultInvalidMarkers,
		NormalizeCandidates: true,
		MaxImageBytes:       DefaultMaxImageBytes,
		MaxImageDimension:   DefaultMaxImageDimension,
		MaxImagePixels:      DefaultMaxImagePixels,
		Publisher:           events.NopPublisher{},
	}
}

// Service sequences prompt building, generation and interpretation for each operation.
// It holds no per-request state and is safe for concurrent use.
type Service struct {
	client   llm.Client
	opts     Options
	validate *validator.Validate
}

func New(client llm.Client, opts Options) *Service {
	if opts.MaxImageBytes <= 0 {
		opts.MaxImageBytes = DefaultMaxImageBytes
	}
	if opts.MaxImageDimension <= 0 {
		opts.MaxImageDimension = DefaultMaxImageDimension
	}
	if opts.MaxImagePixels <= 0 {
		opts.MaxImagePixels = DefaultMaxImagePixels
	}
	if len(opts.InvalidImageMarkers) == 0 {
		opts.InvalidImageMarkers = parser.DefaultInvalidMarkers
	}
	if opts.Publisher == nil {
		opts.Publisher = events.NopPublisher{}
	}

	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "-" {
			return ""
		}
		return name
	})

	return &Service{client: client, opts: opts, validate: v}
}

type textInput struct {
	CropType string `json:"cropType" validate:"required"`
	Symptoms string `json:"symptoms" validate:"required"`
}

type imageInput struct {
	CropType    string `json:"cropType" validate:"required"`
	ImageBase64 string `json:"imageBase64" validate:"required"`
}

type planInput struct {
	PestOrDisease struct {
		Name string `json:"name" validate:"required"`
	} `json:"pestOrDisease"`
	CropType    string `json:"cropType" validate:"required"`
	CurrentDate string `json:"currentDate" validate:"required,datetime=2006-01-02"`
}

type modeInput struct {
	AnalysisType string `json:"analysisType" validate:"omitempty,oneof=text image"`
}

func (s *Service) check(in any) error {
	if err := s.validate.Struct(in); err != nil {
		return fromValidator(err)
	}
	return nil
}

// AnalyzeByText diagnoses a crop from a symptom description.
func (s *Service) AnalyzeByText(ctx context.Context, req models.DiagnosisRequest) (*models.DiagnosisResult, error) {
	const op = "analyze_text"

	in := textInput{CropType: strings.TrimSpace(req.CropType), Symptoms: strings.TrimSpace(req.Symptoms)}
	if err := s.check(in); err != nil {
		return nil, s.finish(ctx, op, nil, err)
	}

	result, err := s.diagnoseText(ctx, in.CropType, in.Symptoms)
	return result, s.finish(ctx, op, result, err)
}

// AnalyzeByImage asks the backend to describe the photo, then chains the description into
// text diagnosis. An image the backend rejects ends with an invalid-input result.
func (s *Service) AnalyzeByImage(ctx context.Context, req models.DiagnosisRequest) (*models.DiagnosisResult, error) {
	const op = "analyze_image"

	in := imageInput{CropType: strings.TrimSpace(req.CropType), ImageBase64: strings.TrimSpace(req.ImageBase64)}
	if err := s.check(in); err != nil {
		return nil, s.finish(ctx, op, nil, err)
	}
	img, err := s.prepareImage(in.ImageBase64, req.ImageMimeType)
	if err != nil {
		return nil, s.finish(ctx, op, nil, err)
	}

	raw, err := s.generate(ctx, prompts.BuildImageDiagnosisPrompt(in.CropType), img)
	if err != nil {
		return nil, s.finish(ctx, op, nil, err)
	}

	symptoms, invalid := parser.InterpretImageResponse(raw, in.CropType, s.opts.InvalidImageMarkers)
	if invalid != nil {
		log.WithFields(log.Fields{"op": op, "crop_type": in.CropType}).Info("pest.analyze.image.invalid_input")
		return invalid, s.finish(ctx, op, invalid, nil)
	}

	log.WithFields(log.Fields{"op": op, "crop_type": in.CropType, "symptoms_len": len(symptoms)}).Debug("pest.analyze.image.chaining")
	result, err := s.diagnoseText(ctx, in.CropType, symptoms)
	return result, s.finish(ctx, op, result, err)
}

// Analyze dispatches on AnalysisType; an empty type means text.
func (s *Service) Analyze(ctx context.Context, req models.DiagnosisRequest) (*models.DiagnosisResult, error) {
	mode := strings.ToLower(strings.TrimSpace(req.AnalysisType))
	if err := s.check(modeInput{AnalysisType: mode}); err != nil {
		return nil, s.finish(ctx, "analyze", nil, err)
	}
	if mode == models.AnalysisTypeImage {
		return s.AnalyzeByImage(ctx, req)
	}
	return s.AnalyzeByText(ctx, req)
}

// GeneratePlan produces a day-by-day treatment plan starting at CurrentDate.
func (s *Service) GeneratePlan(ctx context.Context, req models.ImplementationPlanRequest) (*models.ImplementationPlan, error) {
	const op = "generate_plan"

	var in planInput
	var treatment models.Treatment
	if req.PestOrDisease != nil {
		in.PestOrDisease.Name = strings.TrimSpace(req.PestOrDisease.Name)
		treatment = req.PestOrDisease.Treatment
	}
	in.CropType = strings.TrimSpace(req.CropType)
	in.CurrentDate = strings.TrimSpace(req.CurrentDate)
	if err := s.check(in); err != nil {
		return nil, s.finish(ctx, op, nil, err)
	}
	start, _ := time.Parse(prompts.DateLayout, in.CurrentDate)

	p := prompts.BuildImplementationPlanPrompt(in.PestOrDisease.Name, in.CropType, treatment, in.CurrentDate)
	raw, err := s.generate(ctx, p, nil)
	if err != nil {
		return nil, s.finish(ctx, op, nil, err)
	}

	plan, err := parser.ParseImplementationPlan(raw)
	if err != nil {
		return nil, s.finish(ctx, op, nil, err)
	}
	alignPlan(plan, start)
	plan.CropType = in.CropType
	if strings.TrimSpace(plan.PestName) == "" {
		plan.PestName = in.PestOrDisease.Name
	}

	return plan, s.finish(ctx, op, plan, nil)
}

func (s *Service) diagnoseText(ctx context.Context, cropType, symptoms string) (*models.DiagnosisResult, error) {
	raw, err := s.generate(ctx, prompts.BuildTextDiagnosisPrompt(symptoms, cropType), nil)
	if err != nil {
		return nil, err
	}

	result, err := parser.ParseDiagnosis(raw)
	if err != nil {
		return nil, err
	}
	result.CropType = cropType
	if s.opts.NormalizeCandidates {
		result.PossiblePestsOrDiseases = NormalizeCandidates(result.PossiblePestsOrDiseases)
	}
	return result, nil
}

func (s *Service) prepareImage(encoded, mimeType string) (*llm.InlineImage, error) {
	ve := &ValidationError{}

	data, declared, err := imaging.DecodeBase64(encoded)
	if err != nil {
		ve.add("imageBase64", "base64", "imageBase64 must be valid base64 image data")
		return nil, ve
	}
	if len(data) > s.opts.MaxImageBytes {
		ve.add("imageBase64", "max_size", "image exceeds the maximum allowed size")
	} else if err := imaging.CheckPixels(data, s.opts.MaxImagePixels); err != nil {
		ve.add("imageBase64", "max_pixels", "image exceeds the maximum allowed pixel count")
	}

	mimeType = imaging.NormalizeMimeType(mimeType)
	if mimeType == "" {
		mimeType = declared
	}
	if mimeType == "" {
		mimeType = imaging.DetectMimeType(data)
	}
	if !imaging.IsSupported(mimeType) {
		ve.add("imageMimeType", "mime_type", "unsupported image type: "+mimeType)
	}
	if err := ve.orNil(); err != nil {
		return nil, err
	}

	data, mimeType = imaging.Prepare(data, mimeType, s.opts.MaxImageDimension, s.opts.MaxImagePixels)
	metrics.ImageBytes.Observe(float64(len(data)))
	return &llm.InlineImage{MimeType: mimeType, Data: data}, nil
}

func (s *Service) generate(ctx context.Context, p prompts.Prompt, img *llm.InlineImage) (string, error) {
	start := time.Now()
	raw, err := s.client.Generate(ctx, llm.NewRequest(p, img))
	metrics.GenerationDurationSeconds.WithLabelValues(string(p.Kind), s.client.SourceName()).Observe(time.Since(start).Seconds())
	return raw, err
}

// finish records metrics for a completed operation and publishes successful results.
// It returns err unchanged.
func (s *Service) finish(ctx context.Context, op string, result any, err error) error {
	label := outcome(err)
	if d, ok := result.(*models.DiagnosisResult); ok && err == nil && d.IsInvalidInput() {
		label = "invalid_input"
	}
	metrics.OperationsTotal.WithLabelValues(op, label).Inc()

	if err != nil {
		var ve *ValidationError
		if !errors.As(err, &ve) {
			log.WithFields(log.Fields{"op": op, "result": label}).WithError(err).Warn("pest.operation.failed")
		}
		return err
	}

	routingKey := events.DiagnosisCompleted
	if _, ok := result.(*models.ImplementationPlan); ok {
		routingKey = events.PlanCompleted
	}
	pubCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	if pubErr := s.opts.Publisher.Publish(pubCtx, routingKey, result); pubErr != nil {
		metrics.EventPublishErrorsTotal.Inc()
		log.WithFields(log.Fields{"op": op, "routing_key": routingKey}).WithError(pubErr).Warn("pest.event.publish_failed")
	}
	return nil
}
