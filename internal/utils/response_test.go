package utils

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type codedError struct {
	code string
	msg  string
}

func (e codedError) Error() string         { return e.code + ": " + e.msg }
func (e codedError) ErrorCode() string     { return e.code }
func (e codedError) PublicMessage() string { return e.msg }

func renderServiceError(t *testing.T, err error) (int, APIResponse) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)

	ServiceErrorResponse(c, err)

	var resp APIResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return w.Code, resp
}

func TestServiceErrorResponseMapsCodes(t *testing.T) {
	code, resp := renderServiceError(t, fmt.Errorf("wrapped: %w", codedError{"CERTIFICATE_ALREADY_USED", "code 42 is taken"}))

	assert.Equal(t, http.StatusConflict, code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "CERTIFICATE_ALREADY_USED", resp.Error.Code)
	assert.Equal(t, "code 42 is taken", resp.Error.Details)
}

func TestServiceErrorResponseFieldErrors(t *testing.T) {
	err := ValidateStruct(&datedRequest{StartDate: "2025-02-30"})
	code, resp := renderServiceError(t, codedError{"VALIDATION_ERROR", "invalid"}.wrap(err))

	assert.Equal(t, http.StatusBadRequest, code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "VALIDATION_ERROR", resp.Error.Code)
	details, ok := resp.Error.Details.([]interface{})
	require.True(t, ok)
	assert.Len(t, details, 1)
}

func TestServiceErrorResponseHidesInternalErrors(t *testing.T) {
	code, resp := renderServiceError(t, errors.New("pq: connection refused"))

	assert.Equal(t, http.StatusInternalServerError, code)
	require.NotNil(t, resp.Error)
	assert.Equal(t, "INTERNAL_ERROR", resp.Error.Code)
	assert.Nil(t, resp.Error.Details)
	assert.NotContains(t, resp.Error.Message, "connection refused")
}

type wrappedCoded struct {
	codedError
	err error
}

func (e codedError) wrap(err error) error { return wrappedCoded{e, err} }

func (e wrappedCoded) Unwrap() error { return e.err }
