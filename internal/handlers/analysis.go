// internal/handlers/analysis.go
package handlers

import (
	"context"

	"github.com/gin-gonic/gin"

	"github.com/javajoker/healthfirst-backend/internal/services"
	"github.com/javajoker/healthfirst-backend/internal/utils"
)

type CertificateAnalyzer interface {
	AnalyzeCertificate(ctx context.Context, req *services.AnalyzeCertificateRequest) (*services.CertificateAnalysis, error)
}

type AnomalyReports interface {
	SupervisorAnomalies(ctx context.Context, query *services.AnomalyQuery) (*services.AnomalyPage, error)
	EmployeeAnomalies(ctx context.Context, query *services.AnomalyQuery) (*services.AnomalyPage, error)
}

// AnalysisHandler fronts the scoring collaborators.
type AnalysisHandler struct {
	analyzer  CertificateAnalyzer
	anomalies AnomalyReports
}

func NewAnalysisHandler(analyzer CertificateAnalyzer, anomalies AnomalyReports) *AnalysisHandler {
	return &AnalysisHandler{analyzer: analyzer, anomalies: anomalies}
}

// POST /licenses/analyze
func (h *AnalysisHandler) AnalyzeCertificate(c *gin.Context) {
	var req services.AnalyzeCertificateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "", err.Error())
		return
	}

	analysis, err := h.analyzer.AnalyzeCertificate(c.Request.Context(), &req)
	if err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, analysis)
}

// GET /anomalies/supervisors
func (h *AnalysisHandler) SupervisorAnomalies(c *gin.Context) {
	query, ok := bindAnomalyQuery(c, "evaluator_id")
	if !ok {
		return
	}

	page, err := h.anomalies.SupervisorAnomalies(c.Request.Context(), query)
	if err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, page)
}

// GET /anomalies/employees
func (h *AnalysisHandler) EmployeeAnomalies(c *gin.Context) {
	query, ok := bindAnomalyQuery(c, "employee_id")
	if !ok {
		return
	}

	page, err := h.anomalies.EmployeeAnomalies(c.Request.Context(), query)
	if err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}
	utils.SuccessResponse(c, page)
}

func bindAnomalyQuery(c *gin.Context, subjectParam string) (*services.AnomalyQuery, bool) {
	var query services.AnomalyQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		utils.BadRequestResponse(c, "", err.Error())
		return nil, false
	}
	query.SubjectID = c.Query(subjectParam)
	return &query, true
}
