// internal/handlers/license.go
package handlers

import (
	"bytes"
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/javajoker/healthfirst-backend/internal/i18n"
	"github.com/javajoker/healthfirst-backend/internal/models"
	"github.com/javajoker/healthfirst-backend/internal/services"
	"github.com/javajoker/healthfirst-backend/internal/utils"
)

// LicenseOperations is the slice of the license service the handler drives.
type LicenseOperations interface {
	CreateLicense(ctx context.Context, req *services.CreateLicenseRequest) (*models.License, error)
	UpdateLicense(ctx context.Context, id uuid.UUID, req *services.UpdateLicenseRequest) (*models.License, error)
	AddCertificate(ctx context.Context, id uuid.UUID, req *services.AddCertificateRequest) (*models.License, error)
	EvaluateLicense(ctx context.Context, id, evaluatorID uuid.UUID, req *services.EvaluateLicenseRequest) (*services.EvaluationResult, error)
	DeleteLicense(ctx context.Context, id uuid.UUID) error
	GetLicense(ctx context.Context, id uuid.UUID) (*models.License, error)
	SearchLicenses(ctx context.Context, req *services.LicenseSearchRequest) (*utils.PaginationResult, error)
	ExportLicenses(ctx context.Context, req *services.LicenseSearchRequest) ([]models.License, error)
	ListLicenseTypes(ctx context.Context) ([]models.LicenseType, error)
}

type LicenseHandler struct {
	licenseService LicenseOperations
	exportService  *services.ExportService
}

func NewLicenseHandler(licenseService LicenseOperations, exportService *services.ExportService) *LicenseHandler {
	return &LicenseHandler{
		licenseService: licenseService,
		exportService:  exportService,
	}
}

// POST /licenses
func (h *LicenseHandler) CreateLicense(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	userID, ok := utils.GetUserIDFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	var req services.CreateLicenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "", err.Error())
		return
	}
	if req.UserID == uuid.Nil {
		req.UserID = userID
	}
	if !canAccess(c, req.UserID, models.UserRoleAdmin) {
		return
	}

	license, err := h.licenseService.CreateLicense(c.Request.Context(), &req)
	if err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}

	utils.CreatedResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyLicenseCreated),
		"license": license,
	})
}

// PUT /licenses/:id
func (h *LicenseHandler) UpdateLicense(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	id, ok := licenseIDParam(c)
	if !ok {
		return
	}

	if _, ok := h.authorizeLicense(c, id, models.UserRoleAdmin); !ok {
		return
	}

	var req services.UpdateLicenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "", err.Error())
		return
	}

	license, err := h.licenseService.UpdateLicense(c.Request.Context(), id, &req)
	if err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyLicenseUpdated),
		"license": license,
	})
}

// PUT /licenses/:id/certificate
func (h *LicenseHandler) AddCertificate(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	id, ok := licenseIDParam(c)
	if !ok {
		return
	}

	if _, ok := h.authorizeLicense(c, id, models.UserRoleAdmin); !ok {
		return
	}

	var req services.AddCertificateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "", err.Error())
		return
	}

	license, err := h.licenseService.AddCertificate(c.Request.Context(), id, &req)
	if err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyLicenseCertificateAdded),
		"license": license,
	})
}

// PUT /licenses/:id/evaluate
func (h *LicenseHandler) EvaluateLicense(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	id, ok := licenseIDParam(c)
	if !ok {
		return
	}
	evaluatorID, ok := utils.GetUserIDFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return
	}

	var req services.EvaluateLicenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "", err.Error())
		return
	}

	result, err := h.licenseService.EvaluateLicense(c.Request.Context(), id, evaluatorID, &req)
	if err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message":   i18n.T(lang, i18n.KeyLicenseEvaluated),
		"license":   result.License,
		"evaluator": result.Evaluator,
	})
}

// DELETE /licenses/:id
func (h *LicenseHandler) DeleteLicense(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	id, ok := licenseIDParam(c)
	if !ok {
		return
	}

	if _, ok := h.authorizeLicense(c, id, models.UserRoleAdmin); !ok {
		return
	}

	if err := h.licenseService.DeleteLicense(c.Request.Context(), id); err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"message": i18n.T(lang, i18n.KeyLicenseDeleted),
	})
}

// GET /licenses/:id
func (h *LicenseHandler) GetLicense(c *gin.Context) {
	id, ok := licenseIDParam(c)
	if !ok {
		return
	}

	license, ok := h.authorizeLicense(c, id, models.UserRoleSupervisor, models.UserRoleAdmin)
	if !ok {
		return
	}

	utils.SuccessResponse(c, gin.H{
		"license": license,
	})
}

// POST /licenses/search
func (h *LicenseHandler) SearchLicenses(c *gin.Context) {
	req, ok := bindSearch(c)
	if !ok {
		return
	}

	result, err := h.licenseService.SearchLicenses(c.Request.Context(), req)
	if err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}

	utils.PaginatedResponse(c, *result)
}

// POST /licenses/export?format=csv|xlsx
func (h *LicenseHandler) ExportLicenses(c *gin.Context) {
	lang := utils.GetLangFromContext(c)
	format := c.DefaultQuery("format", "csv")
	if format != "csv" && format != "xlsx" {
		utils.BadRequestResponse(c, "format must be csv or xlsx", nil)
		return
	}

	req, ok := bindSearch(c)
	if !ok {
		return
	}

	licenses, err := h.licenseService.ExportLicenses(c.Request.Context(), req)
	if err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}

	var buf bytes.Buffer
	contentType := "text/csv; charset=utf-8"
	if format == "xlsx" {
		err = h.exportService.WriteXLSX(&buf, lang, licenses)
		contentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	} else {
		err = h.exportService.WriteCSV(&buf, lang, licenses)
	}
	if err != nil {
		c.Error(err)
		utils.InternalErrorResponse(c, "")
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="licenses.%s"`, format))
	c.Data(http.StatusOK, contentType, buf.Bytes())
}

// GET /license-types
func (h *LicenseHandler) ListLicenseTypes(c *gin.Context) {
	types, err := h.licenseService.ListLicenseTypes(c.Request.Context())
	if err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}

	utils.SuccessResponse(c, gin.H{
		"license_types": types,
	})
}

// bindSearch reads a search body. The requester defaults to the caller, and
// only admins may search on behalf of someone else.
func bindSearch(c *gin.Context) (*services.LicenseSearchRequest, bool) {
	userID, ok := utils.GetUserIDFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return nil, false
	}

	var req services.LicenseSearchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.BadRequestResponse(c, "", err.Error())
		return nil, false
	}

	if req.UserID == uuid.Nil {
		req.UserID = userID
	}
	if !canAccess(c, req.UserID, models.UserRoleAdmin) {
		return nil, false
	}
	return &req, true
}

func licenseIDParam(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid license ID", nil)
		return uuid.Nil, false
	}
	return id, true
}

// authorizeLicense loads the license and checks the caller may act on it.
func (h *LicenseHandler) authorizeLicense(c *gin.Context, id uuid.UUID, roles ...models.UserRole) (*models.License, bool) {
	license, err := h.licenseService.GetLicense(c.Request.Context(), id)
	if err != nil {
		utils.ServiceErrorResponse(c, err)
		return nil, false
	}
	return license, canAccess(c, license.UserID, roles...)
}

// canAccess admits the owner and the given roles; anyone else gets a 403.
func canAccess(c *gin.Context, ownerID uuid.UUID, roles ...models.UserRole) bool {
	userID, ok := utils.GetUserIDFromContext(c)
	if !ok {
		utils.UnauthorizedResponse(c, "")
		return false
	}
	if userID == ownerID {
		return true
	}

	role, _ := utils.GetUserRoleFromContext(c)
	for _, allowed := range roles {
		if role == string(allowed) {
			return true
		}
	}
	utils.ForbiddenResponse(c, "")
	return false
}
