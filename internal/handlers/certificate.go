// internal/handlers/certificate.go
package handlers

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/javajoker/healthfirst-backend/internal/models"
	"github.com/javajoker/healthfirst-backend/internal/services"
	"github.com/javajoker/healthfirst-backend/internal/utils"
)

type CertificateOperations interface {
	IssueCode(ctx context.Context) (*services.IssuedForm, error)
	Owner(ctx context.Context, id uuid.UUID) (uuid.UUID, error)
	Download(ctx context.Context, id uuid.UUID) (*services.CertificateDownload, error)
}

type CertificateHandler struct {
	certificateService CertificateOperations
}

func NewCertificateHandler(certificateService CertificateOperations) *CertificateHandler {
	return &CertificateHandler{certificateService: certificateService}
}

// GET /certificates/code
func (h *CertificateHandler) IssueCode(c *gin.Context) {
	form, err := h.certificateService.IssueCode(c.Request.Context())
	if err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}

	c.Header("X-Certificate-Code", form.Code)
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="%s.pdf"`, form.Code))
	c.Data(http.StatusOK, "application/pdf", form.PDF)
}

// GET /certificates/:id/download
func (h *CertificateHandler) Download(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		utils.BadRequestResponse(c, "Invalid certificate ID", nil)
		return
	}

	owner, err := h.certificateService.Owner(c.Request.Context(), id)
	if err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}
	if !canAccess(c, owner, models.UserRoleSupervisor, models.UserRoleAdmin) {
		return
	}

	download, err := h.certificateService.Download(c.Request.Context(), id)
	if err != nil {
		utils.ServiceErrorResponse(c, err)
		return
	}
	if download.URL != "" {
		utils.SuccessResponse(c, gin.H{"url": download.URL})
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf(`inline; filename="%s"`, id))
	c.Data(http.StatusOK, download.Document.MIMEType, download.Document.Data)
}
