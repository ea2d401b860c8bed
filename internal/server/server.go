package server

import (
	"context"
	"errors"
	"net/http"
	"reflect"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/orgsync/internal/authorization"
	"github.com/smallbiznis/orgsync/internal/config"
	invitationdomain "github.com/smallbiznis/orgsync/internal/invitation/domain"
	"github.com/smallbiznis/orgsync/internal/observability"
	obslogger "github.com/smallbiznis/orgsync/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/orgsync/internal/observability/metrics"
	obstracing "github.com/smallbiznis/orgsync/internal/observability/tracing"
	organizationdomain "github.com/smallbiznis/orgsync/internal/organization/domain"
	"github.com/smallbiznis/orgsync/internal/ratelimit"
	userdomain "github.com/smallbiznis/orgsync/internal/user/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module provides the engine and the server. Deployables pick which route
// groups to register and then invoke RunHTTP.
var Module = fx.Module("http.server",
	authorization.Module,
	ratelimit.Module,
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	registerValidatorTagNames()

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

// registerValidatorTagNames reports binding failures by json field name.
func registerValidatorTagNames() {
	v, ok := binding.Validator.Engine().(*validator.Validate)
	if !ok {
		return
	}
	v.RegisterTagNameFunc(func(field reflect.StructField) string {
		for _, tag := range []string{"json", "form", "uri"} {
			name := strings.SplitN(field.Tag.Get(tag), ",", 2)[0]
			if name != "" && name != "-" {
				return name
			}
		}
		return field.Name
	})
}

// RunHTTP serves the engine for the lifetime of the app.
func RunHTTP(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server stopped", zap.Error(err))
				}
			}()
			log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	authzSvc        authorization.Service
	invitationSvc   invitationdomain.Service
	userSvc         userdomain.Service
	organizationSvc organizationdomain.Service
	limiter         ratelimit.Limiter
	rateLimitPolicy *config.RateLimitPolicyHolder
	obsMetrics      *obsmetrics.Metrics
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	AuthzSvc        authorization.Service
	InvitationSvc   invitationdomain.Service      `optional:"true"`
	UserSvc         userdomain.Service            `optional:"true"`
	OrganizationSvc organizationdomain.Service    `optional:"true"`
	Limiter         ratelimit.Limiter             `optional:"true"`
	RateLimitPolicy *config.RateLimitPolicyHolder `optional:"true"`
	ObsMetrics      *obsmetrics.Metrics           `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	return &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		authzSvc:        p.AuthzSvc,
		invitationSvc:   p.InvitationSvc,
		userSvc:         p.UserSvc,
		organizationSvc: p.OrganizationSvc,
		limiter:         p.Limiter,
		rateLimitPolicy: p.RateLimitPolicy,
		obsMetrics:      p.ObsMetrics,
	}
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

// RegisterRoutes registers every route group whose service is wired in.
func (s *Server) RegisterRoutes() {
	if s.invitationSvc != nil {
		s.RegisterInvitationRoutes()
	}
	if s.userSvc != nil {
		s.RegisterUserRoutes()
	}
	if s.organizationSvc != nil {
		s.RegisterOrganizationRoutes()
	}
}

func (s *Server) api() *gin.RouterGroup {
	return s.engine.Group("/api", IdentityRequired())
}

func (s *Server) RegisterInvitationRoutes() {
	invitations := s.api().Group("/invitations")

	invitations.POST("", s.RateLimit(ruleInvitationWrite), s.authorizeAction(authorization.ObjectInvitation, authorization.ActionCreate), s.CreateInvitation)
	invitations.PUT("/:id/accept", s.RateLimit(ruleInvitationWrite), s.AcceptInvitation)
	invitations.PUT("/:id/reject", s.RateLimit(ruleInvitationWrite), s.RejectInvitation)
	invitations.GET("/:id", s.RateLimit(ruleDefault), s.authorizeAction(authorization.ObjectInvitation, authorization.ActionView), s.GetInvitation)
	invitations.GET("/user/:userId", s.RateLimit(ruleDefault), s.authorizeAction(authorization.ObjectInvitation, authorization.ActionView), s.ListUserInvitations)
	invitations.GET("/organization/:orgId", s.RateLimit(ruleDefault), s.authorizeAction(authorization.ObjectInvitation, authorization.ActionView), s.ListOrganizationInvitations)
}

func (s *Server) RegisterUserRoutes() {
	users := s.api().Group("/users")

	users.POST("", s.RateLimit(ruleDirectoryWrite), s.authorizeAction(authorization.ObjectUser, authorization.ActionCreate), s.CreateUser)
	users.GET("/search", s.RateLimit(ruleDefault), s.authorizeAction(authorization.ObjectUser, authorization.ActionSearch), s.SearchUsers)
	users.GET("/email/:email", s.RateLimit(ruleDefault), s.authorizeAction(authorization.ObjectUser, authorization.ActionSearch), s.GetUserByEmail)
	users.GET("/:id", s.RateLimit(ruleDefault), s.authorizeOwner(authorization.ObjectUser, authorization.ActionView, "id"), s.GetUser)
	users.GET("/:id/organizations", s.RateLimit(ruleDefault), s.authorizeOwner(authorization.ObjectUser, authorization.ActionListMembers, "id"), s.ListUserOrganizations)
	users.PUT("/:id/status", s.RateLimit(ruleDirectoryWrite), s.authorizeOwner(authorization.ObjectUser, authorization.ActionUpdate, "id"), s.UpdateUserStatus)
	users.DELETE("/:id", s.RateLimit(ruleDirectoryWrite), s.authorizeOwner(authorization.ObjectUser, authorization.ActionDelete, "id"), s.DeleteUser)
}

func (s *Server) RegisterOrganizationRoutes() {
	orgs := s.api().Group("/organizations")

	orgs.POST("", s.RateLimit(ruleDirectoryWrite), s.authorizeAction(authorization.ObjectOrganization, authorization.ActionCreate), s.CreateOrganization)
	orgs.GET("/search", s.RateLimit(ruleDefault), s.authorizeAction(authorization.ObjectOrganization, authorization.ActionSearch), s.SearchOrganizations)
	orgs.GET("/registry/:registryNumber", s.RateLimit(ruleDefault), s.authorizeAction(authorization.ObjectOrganization, authorization.ActionView), s.GetOrganizationByRegistry)
	orgs.GET("/:id", s.RateLimit(ruleDefault), s.authorizeAction(authorization.ObjectOrganization, authorization.ActionView), s.GetOrganization)
	orgs.GET("/:id/users", s.RateLimit(ruleDefault), s.authorizeAction(authorization.ObjectOrganization, authorization.ActionListMembers), s.ListOrganizationUsers)
	orgs.PUT("/:id/status", s.RateLimit(ruleDirectoryWrite), s.authorizeAction(authorization.ObjectOrganization, authorization.ActionUpdate), s.UpdateOrganizationStatus)
	orgs.DELETE("/:id", s.RateLimit(ruleDirectoryWrite), s.authorizeAction(authorization.ObjectOrganization, authorization.ActionDelete), s.DeleteOrganization)
}
