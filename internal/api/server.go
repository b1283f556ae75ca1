package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"visitordesk/internal/auth"
	"visitordesk/internal/backend"
	"visitordesk/internal/desk"
	"visitordesk/internal/journal"
	"visitordesk/internal/logging"
	"visitordesk/internal/registration"
	"visitordesk/internal/session"
	"visitordesk/internal/verify"
	"visitordesk/internal/visitor"
)

// Upstream is the part of the visitor backend the console proxies.
type Upstream interface {
	Login(ctx context.Context, portal backend.Portal, creds backend.Credentials) (backend.LoginResult, error)
	RegisterVisitorAccount(ctx context.Context, acct backend.VisitorAccount) error
	ListUsers(ctx context.Context) ([]backend.User, error)
	CreateUser(ctx context.Context, u backend.User) (backend.User, error)
	UpdateUser(ctx context.Context, id string, u backend.User) (backend.User, error)
	DeleteUser(ctx context.Context, id string) error
	ToggleUserStatus(ctx context.Context, id string) (backend.User, error)
	AuditTrail(ctx context.Context, office string) (json.RawMessage, error)
	GetAppointment(ctx context.Context, contact string) (visitor.Record, error)
	SubmitFeedback(ctx context.Context, contact, feedback string) (visitor.Record, error)
}

// TokenConfig controls the console's own JWTs.
type TokenConfig struct {
	SigningKey string
	Issuer     string
	AccessTTL  time.Duration
	RefreshTTL time.Duration
}

// Server holds the HTTP handlers of the desk gateway.
type Server struct {
	Tokens TokenConfig
	// Upstream returns a backend client authenticated with token.
	Upstream func(token string) Upstream
	Sessions session.Store
	Desk     *desk.Service
	Wizard   *registration.Wizard
	Journal  journal.Journal
	Log      *logrus.Logger
}

func (s *Server) logger() *logrus.Logger {
	if s.Log != nil {
		return s.Log
	}
	return logging.Logger()
}

// Register mounts every route under /v1.
func (s *Server) Register(r gin.IRouter) {
	v1 := r.Group("/v1")

	v1.POST("/auth/login", s.login)
	v1.POST("/auth/refresh", s.refresh)

	v1.POST("/registrations", s.startRegistration)
	v1.GET("/registrations/:id", s.getRegistration)
	v1.PUT("/registrations/:id/identity", s.submitIdentity)
	v1.PUT("/registrations/:id/id-image", s.attachIDImage)
	v1.PUT("/registrations/:id/appointment", s.submitAppointment)
	v1.POST("/registrations/:id/back", s.registrationBack)
	v1.POST("/registrations/:id/confirm", s.confirmRegistration)
	v1.GET("/calendar/next-available", s.nextAvailable)
	v1.GET("/qr.png", s.qrImage)

	v1.POST("/visitor-accounts", s.registerVisitorAccount)
	v1.POST("/visitor-auth/login", s.visitorLogin)
	v1.GET("/appointments/:contact", s.getAppointment)
	v1.PATCH("/appointments/:contact/feedback", s.submitFeedback)

	console := v1.Group("", auth.ConsoleAuth(s.Tokens.SigningKey, s.Tokens.Issuer, s.Sessions))
	console.GET("/auth/me", s.me)
	console.POST("/auth/logout", s.logout)

	pages := console.Group("/pages/:page", s.pageAccess)
	pages.GET("/visitors", s.listVisitors)
	pages.GET("/stats", s.stats)
	pages.GET("/notices", s.listNotices)
	pages.DELETE("/notices/:notice", s.dismissNotice)
	pages.POST("/qr-lookup", s.qrLookup)
	pages.POST("/visitors/:id/accept", s.decide(true))
	pages.POST("/visitors/:id/decline", s.decide(false))
	pages.POST("/visitors/:id/start-processing", s.startProcessing)
	pages.POST("/visitors/:id/office-processed", s.markProcessed)
	pages.POST("/visitors/:id/time-in", s.timeIn)
	pages.POST("/visitors/:id/time-out", s.timeOut)
	pages.POST("/visitors/:id/notify", s.notify)
	pages.PATCH("/visitors/:id", auth.RequireRole(auth.RoleAdmin), s.editVisitor)
	pages.DELETE("/visitors/:id", auth.RequireRole(auth.RoleAdmin), s.deleteVisitor)

	admin := console.Group("/admin", auth.RequireRole(auth.RoleAdmin))
	admin.GET("/users", s.listUsers)
	admin.POST("/users", s.createUser)
	admin.PUT("/users/:id", s.updateUser)
	admin.DELETE("/users/:id", s.deleteUser)
	admin.PUT("/users/:id/toggle-status", s.toggleUser)
	admin.GET("/audit-trail", s.auditTrail)
	admin.GET("/journal", s.listJournal)
}

// fail writes err as {"error": ...} with the status its kind maps to.
func (s *Server) fail(c *gin.Context, err error) {
	status, body := s.classify(err)
	if status >= http.StatusInternalServerError {
		logging.LogError(s.logger(), "api", c.FullPath(), "request failed", logrus.Fields{"method": c.Request.Method}, err)
	}
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, body)
}

func (s *Server) classify(err error) (int, gin.H) {
	var verr *registration.ValidationError
	var apiErr *backend.APIError
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest, gin.H{"error": verr.Error(), "fields": verr.Fields}
	case errors.Is(err, desk.ErrInvalid):
		return http.StatusBadRequest, gin.H{"error": err.Error()}
	case errors.Is(err, registration.ErrDuplicate), errors.Is(err, desk.ErrBusy):
		return http.StatusConflict, gin.H{"error": err.Error()}
	case visitor.IsTransitionError(err), errors.Is(err, visitor.ErrInvariant), errors.Is(err, registration.ErrWrongStep):
		return http.StatusConflict, gin.H{"error": err.Error()}
	case verify.IsGateError(err):
		return http.StatusForbidden, gin.H{"error": err.Error()}
	case errors.Is(err, desk.ErrOtherOffice):
		return http.StatusForbidden, gin.H{"error": err.Error()}
	case errors.Is(err, desk.ErrNotFound), errors.Is(err, desk.ErrUnknownPage),
		errors.Is(err, registration.ErrDraftNotFound), errors.Is(err, backend.ErrNotFound):
		return http.StatusNotFound, gin.H{"error": err.Error()}
	case errors.Is(err, backend.ErrUnauthorized):
		return http.StatusUnauthorized, gin.H{"error": "upstream rejected the credentials"}
	case errors.As(err, &apiErr):
		return http.StatusBadGateway, gin.H{"error": apiErr.Message}
	}
	return http.StatusBadGateway, gin.H{"error": "upstream request failed"}
}

func queryInt(c *gin.Context, key string, fallback int) int {
	if v := c.Query(key); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			return parsed
		}
	}
	return fallback
}
