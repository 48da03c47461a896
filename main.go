package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"medseal/config"
	"medseal/models"
	"medseal/providers/bedrock"
	"medseal/providers/pubmed"
	"medseal/services"
	"medseal/storage"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

var (
	papersFetchedCounter      prometheus.Counter
	paperCacheHitCounter      prometheus.Counter
	summariesGeneratedCounter prometheus.Counter
	summaryFailureCounter     prometheus.Counter
	fingerprintsCounter       prometheus.Counter
	verificationsCounter      *prometheus.CounterVec
)

func init() {
	papersFetchedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "papers_fetched_total",
			Help: "Total number of papers fetched from PubMed.",
		},
	)
	paperCacheHitCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "paper_cache_hits_total",
			Help: "Total number of paper requests answered from the local store.",
		},
	)
	summariesGeneratedCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "summaries_generated_total",
			Help: "Total number of summary records generated.",
		},
	)
	summaryFailureCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "summary_generation_failures_total",
			Help: "Total number of summary requests where every level failed.",
		},
	)
	fingerprintsCounter = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "fingerprints_created_total",
			Help: "Total number of fingerprints registered.",
		},
	)
	verificationsCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "verifications_total",
			Help: "Total number of verification lookups by result.",
		},
		[]string{"result"},
	)
	prometheus.MustRegister(
		papersFetchedCounter,
		paperCacheHitCounter,
		summariesGeneratedCounter,
		summaryFailureCounter,
		fingerprintsCounter,
		verificationsCounter,
	)
}

// corsMiddleware setzt die Browser-Header auf jede Antwort; Preflights werden
// direkt beantwortet.
func corsMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Header("Access-Control-Allow-Origin", "*")
		c.Header("Access-Control-Allow-Methods", "GET,POST,PUT,DELETE,OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Content-Type,X-Amz-Date,Authorization,X-Api-Key,X-Amz-Security-Token")
		c.Header("Access-Control-Allow-Credentials", "true")
		c.Header("Access-Control-Max-Age", "600")
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}
		c.Next()
	}
}

func main() {
	logging, err := zap.NewProduction()
	if err != nil {
		log.Fatalf("can't initialize zap logger: %v", err)
	}
	defer logging.Sync()

	cfg, err := config.Load()
	if err != nil {
		logging.Fatal("Config load error", zap.Error(err))
	}

	// Setup Database Connection
	db, err := gorm.Open(postgres.Open(cfg.DSN()), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		logging.Fatal("Failed to connect to database", zap.Error(err))
	}
	logging.Info("Successfully connected to database.")

	// Auto-Migration
	logging.Info("Running database auto-migration...")
	if err := db.AutoMigrate(&models.PaperRecord{}, &models.SummaryRecord{}, &models.VerificationRecord{}); err != nil {
		logging.Fatal("Auto-migration failed", zap.Error(err))
	}

	store := storage.NewStore(db, logging)

	// Setup Providers
	provider := pubmed.NewFetcher(cfg, logging)
	generator, err := bedrock.NewClient(context.Background(), cfg, logging)
	if err != nil {
		logging.Fatal("Bedrock client creation failed", zap.Error(err))
	}

	// Setup Services
	fetchService := services.NewFetchService(cfg, store, provider, logging)
	summaryService := services.NewSummaryService(store, store, generator, logging, cfg.BedrockModelID)
	fingerprintService := services.NewFingerprintService(store, logging, cfg.APIBaseURL)

	// Setup Router
	router := gin.Default()
	router.Use(gin.Recovery())
	router.Use(corsMiddleware())
	router.GET("/metrics", gin.WrapH(promhttp.Handler()))
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": "medseal"})
	})

	// Setup Routes
	setupPaperRoutes(router, fetchService, logging)
	setupSummaryRoutes(router, summaryService, logging)
	setupFingerprintRoutes(router, fingerprintService, logging)
	setupVerifyRoutes(router, fingerprintService, logging)

	// Setup Cron
	if cfg.ExportEnabled() {
		s3Client, err := storage.NewS3Client(cfg)
		if err != nil {
			logging.Fatal("S3 client creation failed", zap.Error(err))
		}
		exportService := services.NewExportService(cfg, store, s3Client, logging)

		cronScheduler := cron.New()
		cronScheduler.AddFunc(cfg.ExportCron, func() {
			logging.Info("Running scheduled registry export...")
			if err := exportService.Run(context.Background()); err != nil {
				logging.Error("Registry export failed", zap.Error(err))
			}
		})
		cronScheduler.Start()
		logging.Info("Registry export scheduled", zap.String("cron", cfg.ExportCron))
	} else {
		logging.Info("Registry export disabled (no S3 target configured).")
	}

	logging.Info("Starting server", zap.String("port", cfg.HTTPPort))
	srv := &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadTimeout:       30 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	if err := srv.ListenAndServe(); err != nil {
		logging.Fatal("Failed to run server", zap.Error(err))
	}
}

func setupPaperRoutes(router *gin.Engine, svc *services.FetchService, log *zap.Logger) {
	router.POST("/fetch-pubmed", func(c *gin.Context) {
		var req struct {
			PMID string `json:"pmid"`
		}
		// Ein leerer Body zählt als leere Anfrage, nicht als ungültiges JSON.
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON", "message": "Request body must be valid JSON"})
			return
		}

		rec, cached, err := svc.FetchOrGet(c.Request.Context(), req.PMID)
		if err != nil {
			switch {
			case errors.Is(err, services.ErrMissingPMID):
				c.JSON(http.StatusBadRequest, gin.H{"error": "PMID is required", "message": "Please provide a valid PubMed ID"})
			case errors.Is(err, pubmed.ErrInvalidID):
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid PMID format", "message": "PMID should contain only numbers (1-20 digits)"})
			case pubmed.IsUpstream(err):
				var apiErr *pubmed.APIError
				errors.As(err, &apiErr)
				c.JSON(http.StatusBadGateway, gin.H{
					"error":   "PubMed API error",
					"message": fmt.Sprintf("PubMed returned error %d: %s", apiErr.StatusCode, http.StatusText(apiErr.StatusCode)),
				})
			default:
				log.Error("Paper fetch failed", zap.String("pmid", req.PMID), zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error", "message": "An unexpected error occurred"})
			}
			return
		}

		if cached {
			paperCacheHitCounter.Inc()
			c.JSON(http.StatusOK, gin.H{"pmid": rec.PMID, "cached": true, "data": rec})
			return
		}
		papersFetchedCounter.Inc()
		c.JSON(http.StatusOK, gin.H{"pmid": rec.PMID, "cached": false, "data": rec, "message": "Paper fetched successfully"})
	})
}

func setupSummaryRoutes(router *gin.Engine, svc *services.SummaryService, log *zap.Logger) {
	router.POST("/generate-summary", func(c *gin.Context) {
		var req struct {
			PMID       string `json:"pmid"`
			Type       string `json:"type"`
			Regenerate bool   `json:"regenerate"`
		}
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON", "message": "Request body must be valid JSON"})
			return
		}

		rec, cached, err := svc.Summarize(c.Request.Context(), req.PMID, req.Type, req.Regenerate)
		if err != nil {
			switch {
			case errors.Is(err, services.ErrMissingPMID):
				c.JSON(http.StatusBadRequest, gin.H{"error": "PMID required", "message": "Please provide a PubMed ID"})
			case errors.Is(err, services.ErrInvalidSummaryType):
				c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid summary type", "message": "Type must be one of: short, medium, long, all"})
			case errors.Is(err, services.ErrPaperNotFound):
				c.JSON(http.StatusNotFound, gin.H{"error": "Paper not found", "message": fmt.Sprintf("No paper found with PMID %s. Please fetch it first.", req.PMID)})
			case errors.Is(err, services.ErrGenerationUnavailable):
				summaryFailureCounter.Inc()
				c.JSON(http.StatusBadGateway, gin.H{"error": "Summary generation failed", "message": "AI service temporarily unavailable"})
			default:
				log.Error("Summary generation failed", zap.String("pmid", req.PMID), zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error", "message": "An unexpected error occurred"})
			}
			return
		}

		// Frische Antworten enthalten nur die angeforderten Stufen,
		// Cache-Antworten immer alle drei.
		var summaries gin.H
		if cached || rec.SummaryType == "" || rec.SummaryType == "all" {
			summaries = gin.H{"short": rec.Short, "medium": rec.Medium, "long": rec.Long}
		} else {
			summaries = gin.H{rec.SummaryType: rec.LevelText(rec.SummaryType)}
		}

		if !cached {
			summariesGeneratedCounter.Inc()
		}
		c.JSON(http.StatusOK, gin.H{
			"summaryId":  rec.SummaryID,
			"pmid":       rec.PMID,
			"summaries":  summaries,
			"created_at": rec.CreatedAt,
			"cached":     cached,
			"model":      rec.Model,
		})
	})
}

func setupFingerprintRoutes(router *gin.Engine, svc *services.FingerprintService, log *zap.Logger) {
	router.POST("/create-hash", func(c *gin.Context) {
		var req struct {
			PMID         string `json:"pmid"`
			SummaryID    string `json:"summaryId"`
			Summary      string `json:"summary"`
			Title        string `json:"title"`
			DOI          string `json:"doi"`
			PubDate      string `json:"pubdate"`
			SecretKey    string `json:"secretKey"`
			StoreOnChain *bool  `json:"storeOnChain"`
		}
		if err := c.ShouldBindJSON(&req); err != nil && !errors.Is(err, io.EOF) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid JSON", "message": "Request body must be valid JSON"})
			return
		}

		// storeOnChain ist standardmäßig aktiv.
		attach := true
		if req.StoreOnChain != nil {
			attach = *req.StoreOnChain
		}

		result, err := svc.Create(c.Request.Context(), services.CreateInput{
			PMID:          req.PMID,
			SummaryID:     req.SummaryID,
			Summary:       req.Summary,
			Title:         req.Title,
			DOI:           req.DOI,
			PubDate:       req.PubDate,
			SecretKey:     req.SecretKey,
			AttachReceipt: attach,
		})
		if err != nil {
			var missing *services.MissingFieldError
			if errors.As(err, &missing) {
				c.JSON(http.StatusBadRequest, gin.H{
					"error":          "Missing required fields",
					"missing_fields": missing.Fields,
					"message":        "Please provide: " + strings.Join(missing.Fields, ", "),
				})
				return
			}
			log.Error("Fingerprint creation failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error", "message": "An unexpected error occurred while creating hash"})
			return
		}

		fingerprintsCounter.Inc()

		resp := gin.H{
			"hash":             result.Digest,
			"pmid":             result.Record.PMID,
			"summaryId":        result.Record.SummaryID,
			"created_at":       result.Record.CreatedAt,
			"verification_url": svc.VerificationURL(result.Digest),
			"api_url":          svc.APIURL(result.Digest),
		}
		if result.Record.Receipt != nil {
			resp["blockchain"] = result.Record.Receipt
		}
		if !result.Stored {
			resp["stored"] = false
			resp["warning"] = "Hash generated but could not be persisted; verification may not find it"
		}
		c.JSON(http.StatusOK, resp)
	})
}

func setupVerifyRoutes(router *gin.Engine, svc *services.FingerprintService, log *zap.Logger) {
	verify := func(c *gin.Context) {
		// Pfadsegment gewinnt, Query-Parameter ist der Fallback.
		raw := c.Param("hash")
		if raw == "" {
			raw = c.Query("hash")
		}

		result, err := svc.Verify(c.Request.Context(), raw)
		if err != nil {
			switch {
			case errors.Is(err, services.ErrMissingDigest):
				verificationsCounter.WithLabelValues("invalid").Inc()
				c.JSON(http.StatusBadRequest, gin.H{"verified": false, "error": "Hash required"})
			case errors.Is(err, services.ErrInvalidDigest):
				verificationsCounter.WithLabelValues("invalid").Inc()
				c.JSON(http.StatusBadRequest, gin.H{"verified": false, "error": "Invalid hash format"})
			default:
				log.Error("Verification lookup failed", zap.Error(err))
				c.JSON(http.StatusInternalServerError, gin.H{"verified": false, "error": "Verification failed", "message": "An error occurred during verification"})
			}
			return
		}

		if !result.Verified {
			verificationsCounter.WithLabelValues("not_found").Inc()
			c.JSON(http.StatusNotFound, gin.H{"verified": false, "message": "Hash not found in registry"})
			return
		}

		verificationsCounter.WithLabelValues("verified").Inc()
		rec := result.Record
		resp := gin.H{
			"verified":           true,
			"hash":               result.Digest,
			"pmid":               rec.PMID,
			"summaryId":          rec.SummaryID,
			"paper_title":        rec.PaperTitle,
			"created_at":         rec.CreatedAt,
			"verification_count": rec.VerificationCount,
			"last_verified":      rec.LastVerified,
			"timestamp":          time.Now().Unix(),
			"metadata": gin.H{
				"has_secret":     rec.SecretKeyUsed,
				"store_on_chain": rec.ReceiptAttached,
			},
		}
		if rec.Receipt != nil {
			resp["blockchain"] = rec.Receipt
		}
		c.JSON(http.StatusOK, resp)
	}

	router.GET("/verify/:hash", verify)
	router.GET("/verify", verify)
}
