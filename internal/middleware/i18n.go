// internal/middleware/i18n.go
package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/javajoker/healthfirst-backend/internal/i18n"
)

func I18nMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		lang := i18n.DefaultLanguage()

		// Handle cases like "es-AR,es;q=0.9,en;q=0.8"
		if header := c.GetHeader("Accept-Language"); header != "" {
			first := strings.TrimSpace(strings.Split(strings.Split(header, ",")[0], ";")[0])
			switch strings.ToLower(first) {
			case "en", "en-us", "en-gb":
				lang = "en"
			case "es", "es-ar", "es-es", "es-419":
				lang = "es"
			}
		}

		c.Set("lang", lang)
		c.Next()
	}
}
