package server

import (
	"math"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/orgsync/internal/observability/logger"
	"go.uber.org/zap"
)

const (
	ruleDefault         = "default"
	ruleInvitationWrite = "invitation.write"
	ruleDirectoryWrite  = "directory.write"

	rateLimitReasonRule = "rule-rate"
)

// RateLimit admits requests against the named policy rule, keyed by the
// calling user or, before identity is known, the client address.
func (s *Server) RateLimit(ruleName string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if s.limiter == nil || s.rateLimitPolicy == nil {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		rule := s.rateLimitPolicy.Get().Rule(ruleName)
		key := rule.Name + ":" + rateLimitSubject(c)

		decision, err := s.limiter.Allow(ctx, key, rule)
		if err != nil {
			logger.FromContext(ctx).Warn("rate limit check failed",
				zap.String("rule", rule.Name),
				zap.Error(err),
			)
			AbortWithError(c, ErrServiceUnavailable)
			return
		}

		c.Header("X-RateLimit-Limit", strconv.Itoa(decision.Limit))
		c.Header("X-RateLimit-Remaining", strconv.Itoa(decision.Remaining))
		if !decision.Allowed {
			retry := int(math.Ceil(decision.RetryAfter.Seconds()))
			if retry < 1 {
				retry = 1
			}
			logger.FromContext(ctx).Warn("rate limit exceeded",
				zap.String("rule", rule.Name),
				zap.String("endpoint", normalizeRateLimitEndpoint(c)),
			)
			s.obsMetrics.RecordRateLimitDenied(ctx, rule.Name, rateLimitReasonRule)
			c.Header("Retry-After", strconv.Itoa(retry))
			AbortWithError(c, ErrRateLimited)
			return
		}

		s.obsMetrics.RecordRateLimitAllowed(ctx, rule.Name)
		c.Next()
	}
}

func rateLimitSubject(c *gin.Context) string {
	if actor, ok := actorFromContext(c); ok {
		return "user:" + actor.UserID
	}
	return "ip:" + c.ClientIP()
}

func normalizeRateLimitEndpoint(c *gin.Context) string {
	endpoint := strings.TrimSpace(c.FullPath())
	if endpoint == "" {
		endpoint = strings.TrimSpace(c.Request.URL.Path)
	}
	if endpoint == "" {
		endpoint = "unknown"
	}
	return endpoint
}
