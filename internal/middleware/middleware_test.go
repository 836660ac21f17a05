package middleware

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/time/rate"

	"github.com/javajoker/healthfirst-backend/internal/i18n"
	"github.com/javajoker/healthfirst-backend/internal/logger"
	"github.com/javajoker/healthfirst-backend/internal/models"
	"github.com/javajoker/healthfirst-backend/internal/utils"
)

func init() {
	gin.SetMode(gin.TestMode)
	i18n.Initialize("./missing-locales", "es")
	utils.SetJWTSecret("middleware-secret")
}

func bearer(t *testing.T, role models.UserRole) (string, uuid.UUID) {
	t.Helper()
	userID := uuid.New()
	token, err := utils.GenerateJWT(userID, "agomez", string(role), time.Hour)
	require.NoError(t, err)
	return "Bearer " + token, userID
}

func TestAuthRequired(t *testing.T) {
	r := gin.New()
	r.Use(I18nMiddleware())
	r.GET("/me", AuthRequired(), func(c *gin.Context) {
		id, _ := utils.GetUserIDFromContext(c)
		role, _ := utils.GetUserRoleFromContext(c)
		c.String(http.StatusOK, id.String()+" "+role)
	})

	header, userID := bearer(t, models.UserRoleAnalyst)
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", header)
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, userID.String()+" analyst", w.Body.String())

	for _, auth := range []string{"", "Token abc", "Bearer nope"} {
		w = httptest.NewRecorder()
		req = httptest.NewRequest(http.MethodGet, "/me", nil)
		if auth != "" {
			req.Header.Set("Authorization", auth)
		}
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusUnauthorized, w.Code, auth)
	}
}

func TestRoleRequired(t *testing.T) {
	r := gin.New()
	r.PUT("/evaluate", AuthRequired(), RoleRequired(models.UserRoleSupervisor, models.UserRoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusNoContent)
	})

	cases := map[models.UserRole]int{
		models.UserRoleSupervisor: http.StatusNoContent,
		models.UserRoleAdmin:      http.StatusNoContent,
		models.UserRoleEmployee:   http.StatusForbidden,
		models.UserRoleAnalyst:    http.StatusForbidden,
	}
	for role, want := range cases {
		header, _ := bearer(t, role)
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodPut, "/evaluate", nil)
		req.Header.Set("Authorization", header)
		r.ServeHTTP(w, req)
		assert.Equal(t, want, w.Code, role)
	}
}

func TestI18nMiddleware(t *testing.T) {
	r := gin.New()
	r.Use(I18nMiddleware())
	r.GET("/lang", func(c *gin.Context) {
		c.String(http.StatusOK, utils.GetLangFromContext(c))
	})

	cases := map[string]string{
		"":                        "es",
		"en-US,en;q=0.9":          "en",
		"es-AR,es;q=0.9,en;q=0.8": "es",
		"fr-FR":                   "es",
	}
	for header, want := range cases {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, "/lang", nil)
		req.Header.Set("Accept-Language", header)
		r.ServeHTTP(w, req)
		assert.Equal(t, want, w.Body.String(), header)
	}
}

func TestRequestLoggerAttachesEntry(t *testing.T) {
	log, hook := test.NewNullLogger()
	r := gin.New()
	r.Use(RequestLogger(log))
	r.GET("/ping", func(c *gin.Context) {
		logger.FromContext(c.Request.Context()).Info("inside handler")
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set("X-Request-ID", "req-1")
	r.ServeHTTP(w, req)

	assert.Equal(t, "req-1", w.Header().Get("X-Request-ID"))
	require.Len(t, hook.AllEntries(), 2)
	assert.Equal(t, "req-1", hook.AllEntries()[0].Data["request_id"])
	last := hook.LastEntry()
	assert.Equal(t, logrus.InfoLevel, last.Level)
	assert.Equal(t, http.StatusOK, last.Data["status"])
}

type recordingAuditWriter struct {
	mu      sync.Mutex
	entries []*models.AuditLog
	done    chan struct{}
}

func (w *recordingAuditWriter) CreateAuditLog(ctx context.Context, entry *models.AuditLog) error {
	w.mu.Lock()
	w.entries = append(w.entries, entry)
	w.mu.Unlock()
	close(w.done)
	return nil
}

func TestAuditLogRedactsDocuments(t *testing.T) {
	writer := &recordingAuditWriter{done: make(chan struct{})}
	licenseID := uuid.New()

	r := gin.New()
	r.Use(AuditLogMiddleware(writer))
	r.PUT("/v1/licenses/:id", func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	body := `{"information": "reposo", "certificate": {"file": "JVBERi0xLjQ=", "validation": true}}`
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPut, "/v1/licenses/"+licenseID.String(), strings.NewReader(body))
	r.ServeHTTP(w, req)

	select {
	case <-writer.done:
	case <-time.After(2 * time.Second):
		t.Fatal("audit log was not written")
	}

	writer.mu.Lock()
	defer writer.mu.Unlock()
	require.Len(t, writer.entries, 1)
	entry := writer.entries[0]
	assert.Equal(t, "PUT /v1/licenses/:id", entry.Action)
	assert.Equal(t, "licenses", entry.ResourceType)
	assert.Equal(t, licenseID, *entry.ResourceID)
	assert.Equal(t, http.StatusOK, entry.StatusCode)
	assert.Equal(t, "reposo", entry.NewValues["information"])
	assert.Equal(t, "[redacted]", entry.NewValues["certificate"].(map[string]interface{})["file"])
}

func TestRateLimiter(t *testing.T) {
	limiter := NewRateLimiter(rate.Every(time.Hour), 2)
	r := gin.New()
	r.Use(limiter.Middleware())
	r.GET("/", func(c *gin.Context) { c.Status(http.StatusOK) })

	codes := make([]int, 0, 3)
	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
		codes = append(codes, w.Code)
	}
	assert.Equal(t, []int{http.StatusOK, http.StatusOK, http.StatusTooManyRequests}, codes)
}
