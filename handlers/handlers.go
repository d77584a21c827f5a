package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"pest-diagnosis-service/middleware"
	"pest-diagnosis-service/models"
	"pest-diagnosis-service/service"
	"pest-diagnosis-service/version"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
)

const (
	analyzeFailedMessage = "Không thể phân tích sâu bệnh lúc này. Vui lòng thử lại sau."
	planFailedMessage    = "Không thể tạo kế hoạch xử lý lúc này. Vui lòng thử lại sau."
)

// Diagnoser is the orchestrator surface the handlers need.
type Diagnoser interface {
	AnalyzeByText(ctx context.Context, req models.DiagnosisRequest) (*models.DiagnosisResult, error)
	AnalyzeByImage(ctx context.Context, req models.DiagnosisRequest) (*models.DiagnosisResult, error)
	Analyze(ctx context.Context, req models.DiagnosisRequest) (*models.DiagnosisResult, error)
	GeneratePlan(ctx context.Context, req models.ImplementationPlanRequest) (*models.ImplementationPlan, error)
}

// Handlers represents the HTTP handlers
type Handlers struct {
	svc          Diagnoser
	source       string
	timeout      time.Duration
	maxBodyBytes int64
}

// NewHandlers creates the HTTP handlers. A non-positive timeout or body limit disables it.
func NewHandlers(svc Diagnoser, source string, timeout time.Duration, maxBodyBytes int64) *Handlers {
	return &Handlers{svc: svc, source: source, timeout: timeout, maxBodyBytes: maxBodyBytes}
}

// HealthCheck handles health check requests
func (h *Handlers) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "healthy",
		"service": version.ServiceName,
		"llm":     h.source,
	})
}

// Version returns build information
func (h *Handlers) Version(c *gin.Context) {
	c.JSON(http.StatusOK, version.Get(h.source))
}

// AnalyzeText handles POST /api/pest/analyze/text
func (h *Handlers) AnalyzeText(c *gin.Context) {
	h.diagnose(c, "analyze_text", h.svc.AnalyzeByText)
}

// AnalyzeImage handles POST /api/pest/analyze/image
func (h *Handlers) AnalyzeImage(c *gin.Context) {
	h.diagnose(c, "analyze_image", h.svc.AnalyzeByImage)
}

// Analyze handles POST /api/pest/analyze, dispatching on analysisType
func (h *Handlers) Analyze(c *gin.Context) {
	h.diagnose(c, "analyze", h.svc.Analyze)
}

// GeneratePlan handles POST /api/pest/plan
func (h *Handlers) GeneratePlan(c *gin.Context) {
	var req models.ImplementationPlanRequest
	if !h.bind(c, &req) {
		return
	}

	ctx, cancel := h.context(c)
	defer cancel()

	plan, err := h.svc.GeneratePlan(ctx, req)
	if err != nil {
		h.fail(c, "generate_plan", err, planFailedMessage)
		return
	}
	c.JSON(http.StatusOK, plan)
}

func (h *Handlers) diagnose(c *gin.Context, op string, run func(context.Context, models.DiagnosisRequest) (*models.DiagnosisResult, error)) {
	var req models.DiagnosisRequest
	if !h.bind(c, &req) {
		return
	}

	ctx, cancel := h.context(c)
	defer cancel()

	result, err := run(ctx, req)
	if err != nil {
		h.fail(c, op, err, analyzeFailedMessage)
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *Handlers) bind(c *gin.Context, v any) bool {
	if h.maxBodyBytes > 0 {
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, h.maxBodyBytes)
	}
	err := c.ShouldBindJSON(v)
	if err == nil {
		return true
	}

	var (
		tooLarge *http.MaxBytesError
		typeErr  *json.UnmarshalTypeError
	)
	switch {
	case errors.As(err, &tooLarge):
		badBody(c, http.StatusRequestEntityTooLarge, "Request too large",
			service.Issue{Field: "body", Rule: "max_size", Message: fmt.Sprintf("request body exceeds %d bytes", tooLarge.Limit)})
	case errors.As(err, &typeErr) && typeErr.Field != "":
		badBody(c, http.StatusBadRequest, "Invalid request format",
			service.Issue{Field: typeErr.Field, Rule: "type", Message: fmt.Sprintf("%s must be a %s", typeErr.Field, typeErr.Type)})
	default:
		badBody(c, http.StatusBadRequest, "Invalid request format",
			service.Issue{Field: "body", Rule: "json", Message: "request body must be a valid JSON object"})
	}
	return false
}

// badBody answers a request whose body could not be read, in the validation error shape.
func badBody(c *gin.Context, status int, title string, issue service.Issue) {
	c.JSON(status, gin.H{
		"error":   title,
		"message": issue.Message,
		"issues":  []service.Issue{issue},
	})
}

func (h *Handlers) context(c *gin.Context) (context.Context, context.CancelFunc) {
	if h.timeout <= 0 {
		return context.WithCancel(c.Request.Context())
	}
	return context.WithTimeout(c.Request.Context(), h.timeout)
}

// fail maps an operation error to the response. Backend details are logged, never returned.
func (h *Handlers) fail(c *gin.Context, op string, err error, message string) {
	var ve *service.ValidationError
	if errors.As(err, &ve) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error":   "Validation error",
			"message": ve.Message(),
			"issues":  ve.Issues,
		})
		return
	}

	log.WithFields(log.Fields{
		"op":         op,
		"request_id": middleware.GetRequestID(c),
	}).WithError(err).Error("pest.request.failed")
	c.JSON(http.StatusInternalServerError, gin.H{
		"error":   "Internal server error",
		"message": message,
	})
}
