package httptransport

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/ErlanBelekov/backend-skeleton/internal/apidoc"
	"github.com/ErlanBelekov/backend-skeleton/internal/auth"
	"github.com/ErlanBelekov/backend-skeleton/internal/transport/http/handler"
	"github.com/ErlanBelekov/backend-skeleton/internal/transport/http/middleware"
	"github.com/gin-contrib/cors"
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"

	sloggin "github.com/samber/slog-gin"
)

const apiDocsPath = "/v3/api-docs"

type RouterDeps struct {
	Logger        *slog.Logger
	AuthHandler   *handler.AuthHandler
	HealthHandler *handler.HealthHandler
	Verifier      *auth.TokenIssuer
	APIInfo       apidoc.Info

	AuthRateLimit      int64
	CORSAllowedOrigins []string
}

// route is one entry of the table that drives both gin registration and
// the generated API document.
type route struct {
	method   string
	path     string
	summary  string
	tag      string
	secured  bool
	limited  bool
	handlers []gin.HandlerFunc
}

func routes(d RouterDeps) []route {
	ah, hh := d.AuthHandler, d.HealthHandler
	return []route{
		{http.MethodPost, "/api/auth/login", "Exchange username and password for an access token", "auth", false, true, []gin.HandlerFunc{ah.Login}},
		{http.MethodPost, "/api/auth/register", "Create an account and send a verification email", "auth", false, true, []gin.HandlerFunc{ah.Register}},
		{http.MethodGet, "/api/auth/verify-email", "Confirm an email address with a verification token", "auth", false, true, []gin.HandlerFunc{ah.VerifyEmail}},
		{http.MethodPost, "/api/auth/forgot-password", "Email a password reset link", "auth", false, true, []gin.HandlerFunc{ah.ForgotPassword}},
		{http.MethodPost, "/api/auth/reset-password", "Set a new password with a reset token", "auth", false, true, []gin.HandlerFunc{ah.ResetPassword}},
		{http.MethodGet, "/api/auth/me", "Current user", "auth", true, false, []gin.HandlerFunc{ah.Me}},
		{http.MethodPost, "/api/auth/resend-verification", "Send a fresh verification email", "auth", true, true, []gin.HandlerFunc{ah.ResendVerification}},
		{http.MethodGet, "/health/live", "Liveness probe", "ops", false, false, []gin.HandlerFunc{hh.Live}},
		{http.MethodGet, "/health/ready", "Readiness probe", "ops", false, false, []gin.HandlerFunc{hh.Ready}},
	}
}

func NewRouter(d RouterDeps) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Security())
	r.Use(sloggin.NewWithConfig(d.Logger, sloggin.Config{
		DefaultLevel:     slog.LevelInfo,
		ClientErrorLevel: slog.LevelWarn,
		ServerErrorLevel: slog.LevelError,
		Filters:          []sloggin.Filter{sloggin.IgnorePathPrefix("/health")},
	}))
	r.Use(middleware.Metrics())
	r.Use(cors.New(cors.Config{
		AllowOrigins:  d.CORSAllowedOrigins,
		AllowMethods:  []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowHeaders:  []string{"Content-Type", "Authorization", "X-Request-ID"},
		ExposeHeaders: []string{"Content-Length", "X-Request-ID"},
		MaxAge:        12 * time.Hour,
	}))
	r.Use(gzip.Gzip(gzip.DefaultCompression))

	authMW := middleware.Auth(d.Verifier)
	// One limiter shared by every rate-limited route so the budget is per
	// client across the auth surface.
	limitMW := middleware.RateLimit(d.AuthRateLimit, time.Minute)

	table := routes(d)
	docRoutes := make([]apidoc.Route, 0, len(table)+1)
	for _, rt := range table {
		chain := make([]gin.HandlerFunc, 0, len(rt.handlers)+2)
		if rt.limited {
			chain = append(chain, limitMW)
		}
		if rt.secured {
			chain = append(chain, authMW)
		}
		chain = append(chain, rt.handlers...)
		r.Handle(rt.method, rt.path, chain...)

		docRoutes = append(docRoutes, apidoc.Route{
			Method:  rt.method,
			Path:    rt.path,
			Summary: rt.summary,
			Tag:     rt.tag,
			Secured: rt.secured,
		})
	}

	docRoutes = append(docRoutes, apidoc.Route{Method: http.MethodGet, Path: apiDocsPath, Summary: "OpenAPI document", Tag: "docs"})
	doc := apidoc.Build(d.APIInfo, docRoutes)
	r.GET(apiDocsPath, func(c *gin.Context) {
		c.JSON(http.StatusOK, doc)
	})

	return r
}
