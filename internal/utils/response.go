// internal/utils/response.go
package utils

import (
	"errors"
	"net/http"

	"github.com/javajoker/healthfirst-backend/internal/i18n"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type APIResponse struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   *APIError   `json:"error,omitempty"`
	Meta    interface{} `json:"meta,omitempty"`
}

type APIError struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// CodedError is implemented by service errors that carry a stable code.
type CodedError interface {
	error
	ErrorCode() string
	PublicMessage() string
}

type errorMapping struct {
	status int
	key    string
}

var errorMappings = map[string]errorMapping{
	"NOT_FOUND":                      {http.StatusNotFound, i18n.KeyResourceNotFound},
	"VALIDATION_ERROR":               {http.StatusBadRequest, i18n.KeyValidationInvalid},
	"MALFORMED_DOCUMENT":             {http.StatusBadRequest, i18n.KeyCertificateMalformed},
	"UNSUPPORTED_FILE_TYPE":          {http.StatusUnsupportedMediaType, i18n.KeyCertificateUnsupported},
	"UNKNOWN_CERTIFICATE_CODE":       {http.StatusBadRequest, i18n.KeyCertificateUnknownCode},
	"CERTIFICATE_ALREADY_USED":       {http.StatusConflict, i18n.KeyCertificateAlreadyUsed},
	"CODE_MISMATCH":                  {http.StatusConflict, i18n.KeyCertificateCodeMismatch},
	"NO_CURRENT_CERTIFICATE":         {http.StatusConflict, i18n.KeyCertificateNoCurrent},
	"IMMEDIATE_CERTIFICATE_REQUIRED": {http.StatusBadRequest, i18n.KeyLicenseImmediateCert},
	"INVALID_EVALUATION_STATE":       {http.StatusConflict, i18n.KeyLicenseInvalidState},
}

func SuccessResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
	})
}

func SuccessResponseWithMeta(c *gin.Context, data interface{}, meta interface{}) {
	c.JSON(http.StatusOK, APIResponse{
		Success: true,
		Data:    data,
		Meta:    meta,
	})
}

func CreatedResponse(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, APIResponse{
		Success: true,
		Data:    data,
	})
}

func ErrorResponse(c *gin.Context, statusCode int, code, message string, details interface{}) {
	c.JSON(statusCode, APIResponse{
		Success: false,
		Error: &APIError{
			Code:    code,
			Message: message,
			Details: details,
		},
	})
}

// ServiceErrorResponse renders a service error. Client errors keep their
// detail text; anything unclassified becomes a generic 500.
func ServiceErrorResponse(c *gin.Context, err error) {
	if fieldErrors := GetValidationErrors(err); len(fieldErrors) > 0 {
		ValidationErrorResponse(c, fieldErrors)
		return
	}

	var coded CodedError
	if errors.As(err, &coded) {
		if mapping, ok := errorMappings[coded.ErrorCode()]; ok {
			lang := GetLangFromContext(c)
			ErrorResponse(c, mapping.status, coded.ErrorCode(), i18n.T(lang, mapping.key), coded.PublicMessage())
			return
		}
	}
	c.Error(err)
	InternalErrorResponse(c, "")
}

func BadRequestResponse(c *gin.Context, message string, details interface{}) {
	lang := GetLangFromContext(c)
	if message == "" {
		message = i18n.T(lang, i18n.KeyValidationInvalid)
	}
	ErrorResponse(c, http.StatusBadRequest, "BAD_REQUEST", message, details)
}

func UnauthorizedResponse(c *gin.Context, message string) {
	lang := GetLangFromContext(c)
	if message == "" {
		message = i18n.T(lang, i18n.KeyAuthRequired)
	}
	ErrorResponse(c, http.StatusUnauthorized, "UNAUTHORIZED", message, nil)
}

func ForbiddenResponse(c *gin.Context, message string) {
	lang := GetLangFromContext(c)
	if message == "" {
		message = i18n.T(lang, i18n.KeyAuthForbidden)
	}
	ErrorResponse(c, http.StatusForbidden, "FORBIDDEN", message, nil)
}

func InternalErrorResponse(c *gin.Context, message string) {
	if message == "" {
		message = i18n.T(GetLangFromContext(c), i18n.KeyInternalError)
	}
	ErrorResponse(c, http.StatusInternalServerError, "INTERNAL_ERROR", message, nil)
}

func ValidationErrorResponse(c *gin.Context, validationErrors []ValidationError) {
	lang := GetLangFromContext(c)
	message := i18n.T(lang, i18n.KeyValidationInvalid)
	ErrorResponse(c, http.StatusBadRequest, "VALIDATION_ERROR", message, validationErrors)
}

func PaginatedResponse(c *gin.Context, result PaginationResult) {
	SetPaginationHeaders(c, result)
	SuccessResponseWithMeta(c, result.Data, gin.H{
		"pagination": gin.H{
			"page":        result.Page,
			"limit":       result.Limit,
			"total":       result.Total,
			"total_pages": result.TotalPages,
		},
	})
}

func GetLangFromContext(c *gin.Context) string {
	if lang, exists := c.Get("lang"); exists {
		if langStr, ok := lang.(string); ok {
			return langStr
		}
	}
	return i18n.DefaultLanguage()
}

func GetUserIDFromContext(c *gin.Context) (uuid.UUID, bool) {
	if userID, exists := c.Get("user_id"); exists {
		if userIDStr, ok := userID.(string); ok {
			if id, err := uuid.Parse(userIDStr); err == nil {
				return id, true
			}
		}
	}
	return uuid.Nil, false
}

func GetUserRoleFromContext(c *gin.Context) (string, bool) {
	if role, exists := c.Get("role"); exists {
		if roleStr, ok := role.(string); ok {
			return roleStr, true
		}
	}
	return "", false
}
