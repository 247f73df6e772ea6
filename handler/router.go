package handler

import (
	"embed"
	"fmt"
	"html/template"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/higpup01-design/proofok/middleware"
)

//go:embed templates/*.html
var templateFS embed.FS

// RouterOptions configures NewRouter
type RouterOptions struct {
	RateLimit  int
	RateWindow time.Duration
	// TrustedProxies may set the client IP through X-Forwarded-For; nil trusts none
	TrustedProxies []string
}

// NewRouter builds the HTTP surface: middleware chain, pages and JSON API
func NewRouter(h *ProofHandler, opts RouterOptions) (*gin.Engine, error) {
	router := gin.New()

	if err := router.SetTrustedProxies(opts.TrustedProxies); err != nil {
		return nil, fmt.Errorf("trusted proxies: %w", err)
	}

	router.SetHTMLTemplate(template.Must(template.ParseFS(templateFS, "templates/*.html")))

	router.Use(middleware.RequestID())
	router.Use(middleware.Recovery())
	router.Use(middleware.RequestLogger())
	router.Use(middleware.CORS())
	router.Use(middleware.NoStore())

	limit := middleware.RateLimit(middleware.NewRateLimiter(opts.RateLimit, opts.RateWindow))

	router.GET("/", Index)
	router.GET("/healthz", Healthz)
	router.GET("/routes", func(c *gin.Context) {
		Routes(c, router)
	})

	router.GET("/proof/:token", h.ProofPage)
	router.GET("/p/:token/:filename", h.ServeFile)
	router.POST("/respond/:token", limit, h.RespondForm)

	api := router.Group("/api")
	{
		api.POST("/upload", limit, h.Upload)
		api.POST("/respond/:token", limit, h.RespondAPI)
	}

	return router, nil
}

// Index is the plain-text landing page
func Index(c *gin.Context) {
	c.String(http.StatusOK, "ProofOK is running. Version: %s", Version)
}

// Healthz reports liveness with the server clock
func Healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"ok":      true,
		"version": Version,
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// Routes lists the registered method and path pairs
func Routes(c *gin.Context, router *gin.Engine) {
	routes := make([]string, 0)
	for _, r := range router.Routes() {
		routes = append(routes, r.Method+" "+r.Path)
	}
	c.JSON(http.StatusOK, gin.H{"routes": routes})
}
