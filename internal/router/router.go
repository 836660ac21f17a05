// internal/router/router.go
package router

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"

	"github.com/javajoker/healthfirst-backend/internal/config"
	"github.com/javajoker/healthfirst-backend/internal/handlers"
	"github.com/javajoker/healthfirst-backend/internal/i18n"
	"github.com/javajoker/healthfirst-backend/internal/middleware"
	"github.com/javajoker/healthfirst-backend/internal/models"
	"github.com/javajoker/healthfirst-backend/internal/repository"
	"github.com/javajoker/healthfirst-backend/internal/services"
	"github.com/javajoker/healthfirst-backend/internal/utils"
)

// Initialize wires services and routes. ctx bounds background workers
// started for the router's lifetime.
func Initialize(ctx context.Context, db *gorm.DB, cfg *config.Config, log *logrus.Logger) (*gin.Engine, error) {
	store := repository.NewGormStore(db)
	translator := i18n.Default()
	if translator == nil {
		return nil, fmt.Errorf("i18n is not initialized")
	}

	// Initialize services
	documentService := services.NewDocumentService(cfg.Certificate)
	storageService, err := services.NewStorageService(cfg.AWS)
	if err != nil {
		return nil, err
	}
	scoringClient := services.NewMLScoringClient(cfg.Scoring)
	scorer, err := services.NewScorer(ctx, cfg.Scoring, scoringClient)
	if err != nil {
		return nil, err
	}

	reconciler := services.NewCertificateReconciler(documentService, services.ConversionPolicy{
		OnCreate:         cfg.Certificate.ConvertImagesOnCreate,
		OnUpdate:         cfg.Certificate.ConvertImagesOnUpdate,
		OnAddCertificate: cfg.Certificate.ConvertImagesOnAdd,
	}, cfg.Certificate.MaxSizeMB*1024*1024)
	notificationService := services.NewNotificationService(store, translator, cfg)
	datasetService := services.NewDatasetService(store, documentService)
	licenseService := services.NewLicenseService(store, reconciler, notificationService, datasetService,
		cfg.Certificate.GenericComment, services.WithArchiver(storageService))
	certificateService := services.NewCertificateService(store, documentService, storageService, documentService)
	analysisService := services.NewAnalysisService(store, documentService, scorer, cfg.Scoring.ScoredGroups, cfg.Scoring.CodedGroup)
	anomalyService := services.NewAnomalyService(scoringClient)

	// Initialize handlers
	licenseHandler := handlers.NewLicenseHandler(licenseService, services.NewExportService(translator))
	certificateHandler := handlers.NewCertificateHandler(certificateService)
	analysisHandler := handlers.NewAnalysisHandler(analysisService, anomalyService)

	utils.SetJWTSecret(cfg.JWT.SecretKey)
	utils.SetJWTIssuer(cfg.JWT.Issuer)

	generalLimiter, uploadLimiter := middleware.DefaultLimiters()
	go generalLimiter.Cleanup(ctx)
	go uploadLimiter.Cleanup(ctx)

	r := gin.New()

	// Global middleware
	r.Use(gin.Recovery())
	r.Use(middleware.RequestLogger(log))
	r.Use(middleware.CORS(cfg.Frontend))
	r.Use(middleware.I18nMiddleware())
	r.Use(generalLimiter.Middleware())
	r.Use(middleware.AuditLogMiddleware(store))

	r.GET("/health", func(c *gin.Context) {
		status, code := "healthy", http.StatusOK
		if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			status, code = "degraded", http.StatusServiceUnavailable
		}
		c.JSON(code, gin.H{
			"status":  status,
			"version": "1.0.0",
		})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	evaluators := middleware.RoleRequired(models.UserRoleSupervisor, models.UserRoleAdmin)

	v1 := r.Group("/v1")
	v1.Use(middleware.AuthRequired())
	{
		licenses := v1.Group("/licenses")
		{
			licenses.POST("", uploadLimiter.Middleware(), licenseHandler.CreateLicense)
			licenses.POST("/search", licenseHandler.SearchLicenses)
			licenses.POST("/export", licenseHandler.ExportLicenses)
			licenses.POST("/analyze", uploadLimiter.Middleware(), analysisHandler.AnalyzeCertificate)
			licenses.GET("/:id", licenseHandler.GetLicense)
			licenses.PUT("/:id", uploadLimiter.Middleware(), licenseHandler.UpdateLicense)
			licenses.PUT("/:id/certificate", uploadLimiter.Middleware(), licenseHandler.AddCertificate)
			licenses.PUT("/:id/evaluate", evaluators, licenseHandler.EvaluateLicense)
			licenses.DELETE("/:id", licenseHandler.DeleteLicense)
		}

		v1.GET("/license-types", licenseHandler.ListLicenseTypes)

		certificates := v1.Group("/certificates")
		{
			certificates.GET("/code", certificateHandler.IssueCode)
			certificates.GET("/:id/download", certificateHandler.Download)
		}

		anomalies := v1.Group("/anomalies", evaluators)
		{
			anomalies.GET("/supervisors", analysisHandler.SupervisorAnomalies)
			anomalies.GET("/employees", analysisHandler.EmployeeAnomalies)
		}
	}

	return r, nil
}
