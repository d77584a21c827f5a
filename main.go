package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"pest-diagnosis-service/config"
	"pest-diagnosis-service/events"
	"pest-diagnosis-service/gemini"
	"pest-diagnosis-service/handlers"
	"pest-diagnosis-service/llm"
	"pest-diagnosis-service/metrics"
	"pest-diagnosis-service/middleware"
	"pest-diagnosis-service/service"
	"pest-diagnosis-service/stubllm"
	"pest-diagnosis-service/version"

	"github.com/apex/log"
	jsonhandler "github.com/apex/log/handlers/json"
	"github.com/apex/log/handlers/text"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	EndPointHealth       = "/health"
	EndPointVersion      = "/version"
	EndPointMetrics      = "/metrics"
	EndPointAnalyze      = "/api/pest/analyze"
	EndPointAnalyzeText  = "/api/pest/analyze/text"
	EndPointAnalyzeImage = "/api/pest/analyze/image"
	EndPointPlan         = "/api/pest/plan"

	brokerConnectTimeout = 10 * time.Second
)

var errMissingAPIKey = errors.New("GEMINI_API_KEY environment variable is required when LLM_PROVIDER=gemini")

func main() {
	cfg := config.Load()
	setupLogging(cfg.LogLevel)

	client, err := newClient(cfg)
	if err != nil {
		log.WithError(err).Fatal("startup.llm_client")
	}

	publisher := newPublisher(cfg)
	defer publisher.Close()

	metrics.Register()

	svc := service.New(client, service.Options{
		InvalidImageMarkers: cfg.InvalidImageMarkers,
		NormalizeCandidates: cfg.NormalizeCandidates,
		MaxImageBytes:       cfg.MaxImageBytes,
		MaxImageDimension:   cfg.MaxImageDimension,
		MaxImagePixels:      cfg.MaxImagePixels,
		Publisher:           publisher,
	})
	// Base64 inflates by 4/3; leave headroom for the rest of the JSON body.
	maxBody := int64(cfg.MaxImageBytes)*4/3 + 64<<10
	h := handlers.NewHandlers(svc, client.SourceName(), cfg.RequestTimeout, maxBody)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.Logger())
	router.Use(middleware.CORS(cfg.AllowedOrigins))
	router.Use(gzip.Gzip(gzip.DefaultCompression))

	router.GET(EndPointHealth, h.HealthCheck)
	router.GET(EndPointVersion, h.Version)
	router.GET(EndPointMetrics, gin.WrapH(promhttp.Handler()))

	api := router.Group("/")
	api.Use(middleware.RateLimitMiddleware(cfg.RateLimitPerMinute, time.Minute))
	{
		api.POST(EndPointAnalyze, h.Analyze)
		api.POST(EndPointAnalyzeText, h.AnalyzeText)
		api.POST(EndPointAnalyzeImage, h.AnalyzeImage)
		api.POST(EndPointPlan, h.GeneratePlan)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		log.WithFields(log.Fields{
			"port":       cfg.Port,
			"llm":        client.SourceName(),
			"rate_limit": cfg.RateLimitPerMinute,
			"version":    version.BuildVersion,
		}).Info("server.starting")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.WithError(err).Fatal("server.listen")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("server.shutting_down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("server.forced_shutdown")
	}
	log.Info("server.exited")
}

func setupLogging(level string) {
	if strings.EqualFold(level, "debug") {
		gin.SetMode(gin.DebugMode)
		log.SetHandler(text.New(os.Stderr))
	} else {
		gin.SetMode(gin.ReleaseMode)
		log.SetHandler(jsonhandler.New(os.Stderr))
	}
	lvl, err := log.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = log.InfoLevel
	}
	log.SetLevel(lvl)
}

func newClient(cfg *config.Config) (llm.Client, error) {
	switch cfg.LLMProvider {
	case config.ProviderStub:
		log.Warn("startup.using_stub_llm")
		return stubllm.NewClient(), nil
	case config.ProviderGemini:
		if cfg.GeminiAPIKey == "" {
			return nil, errMissingAPIKey
		}
		return gemini.NewClient(gemini.Config{
			APIURL:          cfg.GeminiAPIURL,
			APIKey:          cfg.GeminiAPIKey,
			Model:           cfg.GeminiModel,
			Timeout:         cfg.GeminiTimeout,
			MaxRetries:      cfg.GeminiMaxRetries,
			BreakerFailures: cfg.GeminiBreakerFailures,
			BreakerOpenFor:  cfg.GeminiBreakerOpenFor,
		}), nil
	default:
		return nil, fmt.Errorf("unknown LLM_PROVIDER %q (want gemini or stub)", cfg.LLMProvider)
	}
}

func newPublisher(cfg *config.Config) events.Publisher {
	if cfg.AMQPURL == "" {
		return events.NopPublisher{}
	}
	ctx, cancel := context.WithTimeout(context.Background(), brokerConnectTimeout)
	defer cancel()
	p, err := events.NewAMQPPublisher(ctx, cfg.AMQPURL, cfg.AMQPExchange)
	if err != nil {
		log.WithError(err).Warn("startup.events_disabled")
		return events.NopPublisher{}
	}
	return p
}
