package security

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"

	apperrors "github.com/ZanzyTHEbar/usagepulse/internal/errors"
)

// SecurityConfig holds security configuration
type SecurityConfig struct {
	MaxValueLength   int           `json:"max_value_length"`
	MaxValuesPerKey  int           `json:"max_values_per_key"`
	AllowedOrigins   []string      `json:"allowed_origins"`
	RequestTimeout   time.Duration `json:"request_timeout"`
	EnableHSTS       bool          `json:"enable_hsts"`
	CSPReportURI     string        `json:"csp_report_uri"`
	CORSMaxAge       time.Duration `json:"cors_max_age"`
	AllowCredentials bool          `json:"allow_credentials"`
}

// DefaultSecurityConfig returns secure defaults
func DefaultSecurityConfig() SecurityConfig {
	return SecurityConfig{
		MaxValueLength:  100,
		MaxValuesPerKey: 64,
		AllowedOrigins:  []string{"http://localhost:3000", "http://localhost:5173"},
		RequestTimeout:  30 * time.Second,
		CORSMaxAge:      12 * time.Hour,
	}
}

// SecurityMiddleware validates query input and bounds request lifetimes.
type SecurityMiddleware struct {
	config SecurityConfig
}

// NewSecurityMiddleware creates a new security middleware instance
func NewSecurityMiddleware(config SecurityConfig) *SecurityMiddleware {
	def := DefaultSecurityConfig()
	if config.MaxValueLength <= 0 {
		config.MaxValueLength = def.MaxValueLength
	}
	if config.MaxValuesPerKey <= 0 {
		config.MaxValuesPerKey = def.MaxValuesPerKey
	}
	if config.RequestTimeout <= 0 {
		config.RequestTimeout = def.RequestTimeout
	}
	return &SecurityMiddleware{config: config}
}

var suspiciousPatterns = []string{
	"<script", "</script>", "javascript:", "union select", "drop table", "/*", "*/", "\x00",
}

// ValidateInput checks one query value: bounded length, valid UTF-8 and no
// markup or injection fragments. Filter values are matched literally against
// the dataset, so nothing here is ever interpolated; the check keeps junk out
// of logs and cache keys.
func (sm *SecurityMiddleware) ValidateInput(input string) error {
	if len(input) > sm.config.MaxValueLength {
		return fmt.Errorf("value exceeds maximum length of %d characters", sm.config.MaxValueLength)
	}
	if !utf8.ValidString(input) {
		return fmt.Errorf("value contains invalid UTF-8 encoding")
	}

	lower := strings.ToLower(input)
	for _, pattern := range suspiciousPatterns {
		if strings.Contains(lower, pattern) {
			return fmt.Errorf("value contains suspicious patterns")
		}
	}
	return nil
}

// ValidateQuery rejects requests whose query parameters fail ValidateInput or
// repeat a key more than MaxValuesPerKey times.
func (sm *SecurityMiddleware) ValidateQuery(c *gin.Context) {
	fields := map[string]string{}
	for key, values := range c.Request.URL.Query() {
		if len(values) > sm.config.MaxValuesPerKey {
			fields[key] = fmt.Sprintf("at most %d values allowed", sm.config.MaxValuesPerKey)
			continue
		}
		for _, v := range values {
			if err := sm.ValidateInput(v); err != nil {
				fields[key] = err.Error()
				break
			}
		}
	}

	if len(fields) > 0 {
		apperrors.Respond(c, apperrors.NewValidationErrorWithMap(fields))
		return
	}
	c.Next()
}

// ValidateContentType validates request content type
func (sm *SecurityMiddleware) ValidateContentType(c *gin.Context) {
	contentType := strings.ToLower(c.GetHeader("Content-Type"))
	if contentType == "" || strings.Contains(contentType, "application/json") {
		c.Next()
		return
	}

	c.AbortWithStatusJSON(http.StatusUnsupportedMediaType, gin.H{
		"error": "unsupported content type",
	})
}

// RequestTimeout bounds every request with the configured deadline. Pipeline
// stages observe the context between steps.
func (sm *SecurityMiddleware) RequestTimeout(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), sm.config.RequestTimeout)
	defer cancel()

	c.Request = c.Request.WithContext(ctx)
	c.Header("X-Timeout", strconv.Itoa(int(sm.config.RequestTimeout.Seconds())))

	c.Next()
}

// CORS returns the cross-origin middleware for the configured origins.
func (sm *SecurityMiddleware) CORS() gin.HandlerFunc {
	cfg := cors.Config{
		AllowMethods:     []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Accept-Encoding", "X-Request-ID", "Cache-Control"},
		ExposeHeaders:    []string{"X-Request-ID", "X-Trace-ID", "X-Cache", "X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: sm.config.AllowCredentials,
		MaxAge:           sm.config.CORSMaxAge,
	}

	origins := sm.config.AllowedOrigins
	if len(origins) == 1 && origins[0] == "*" {
		cfg.AllowAllOrigins = true
		cfg.AllowCredentials = false
	} else {
		cfg.AllowOrigins = origins
	}
	return cors.New(cfg)
}
