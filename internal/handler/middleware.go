package handler

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/pickupper/backend/internal/logutil"
	"github.com/pickupper/backend/internal/model"
	"github.com/pickupper/backend/internal/obs"
)

const (
	principalKey    = "principal"
	requestIDKey    = "request_id"
	requestIDHeader = "X-Request-ID"
	bearerPrefix    = "Bearer "
)

type principalCtxKey struct{}

// Authorizer resolves bearer secrets to principals.
type Authorizer interface {
	Authenticate(ctx context.Context, accessSecret string) (*model.Principal, error)
	ResolvePermission(ctx context.Context, accessSecret string) (*model.Principal, error)
}

// Requirement is the minimum a request needs to pass the gate.
type Requirement int

const (
	RequireAuthenticated Requirement = iota
	RequireSupervisor
	RequireAdmin
)

func (r Requirement) String() string {
	switch r {
	case RequireSupervisor:
		return "Supervisor"
	case RequireAdmin:
		return "Admin"
	default:
		return "Authenticated"
	}
}

func (r Requirement) minTier() model.PermissionLevel {
	switch r {
	case RequireSupervisor:
		return model.PermissionSupervisor
	case RequireAdmin:
		return model.PermissionAdmin
	default:
		return model.PermissionUser
	}
}

// Gate admits requests carrying a live access token that meets req.
// Authenticated skips the role lookup; tiered requirements resolve the owner's current tier.
func Gate(authz Authorizer, req Requirement) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		log := logutil.GetOrDefault(ctx).With().Str("requirement", req.String()).Logger()

		secret, ok := bearerToken(c.GetHeader("Authorization"))
		if !ok {
			obs.GateDecision(req.String(), obs.OutcomeNoCredential)
			log.Debug().Msg("no bearer credential")
			writeError(c, model.ErrUnauthorized)
			return
		}

		var (
			p   *model.Principal
			err error
		)
		if req == RequireAuthenticated {
			p, err = authz.Authenticate(ctx, secret)
		} else {
			p, err = authz.ResolvePermission(ctx, secret)
		}
		if err != nil {
			if model.CodeOf(err) == model.CodeUnauthorized {
				obs.GateDecision(req.String(), obs.OutcomeUnauthorized)
				log.Debug().Msg("bearer credential rejected")
			} else {
				obs.GateDecision(req.String(), obs.OutcomeInternalError)
			}
			writeError(c, err)
			return
		}

		if p.Tier < req.minTier() {
			obs.GateDecision(req.String(), obs.OutcomeInsufficient)
			log.Debug().Str("user_id", p.UserID).Str("tier", p.Tier.String()).Msg("permission tier too low")
			writeError(c, model.ErrUnauthorized)
			return
		}

		obs.GateDecision(req.String(), obs.OutcomeAllowed)
		c.Set(principalKey, p)
		c.Request = c.Request.WithContext(context.WithValue(ctx, principalCtxKey{}, p))
		c.Next()
	}
}

func bearerToken(header string) (string, bool) {
	header = strings.TrimSpace(header)
	if len(header) < len(bearerPrefix) || !strings.EqualFold(header[:len(bearerPrefix)], bearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(header[len(bearerPrefix):])
	return token, token != ""
}

// GetPrincipal returns the principal the gate attached, or nil on ungated routes.
func GetPrincipal(c *gin.Context) *model.Principal {
	if value, ok := c.Get(principalKey); ok {
		if p, ok := value.(*model.Principal); ok {
			return p
		}
	}
	return nil
}

func PrincipalFromContext(ctx context.Context) (*model.Principal, bool) {
	p, ok := ctx.Value(principalCtxKey{}).(*model.Principal)
	return p, ok
}

// RequestID tags every request with an id and a logger carrying it.
func RequestID(base zerolog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if !validRequestID(id) {
			id = ulid.Make().String()
		}
		c.Set(requestIDKey, id)
		c.Header(requestIDHeader, id)

		logger := base.With().Str("request_id", id).Logger()
		c.Request = c.Request.WithContext(logutil.WithLogger(c.Request.Context(), logger))
		c.Next()
	}
}

// validRequestID accepts ULIDs and other short ids made of [A-Za-z0-9._:-].
func validRequestID(id string) bool {
	if id == "" || len(id) > 64 {
		return false
	}
	for i := 0; i < len(id); i++ {
		switch ch := id[i]; {
		case ch >= 'a' && ch <= 'z', ch >= 'A' && ch <= 'Z', ch >= '0' && ch <= '9':
		case ch == '-', ch == '_', ch == '.', ch == ':':
		default:
			return false
		}
	}
	return true
}

// Logging records method, route, status and duration of each request.
func Logging() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		elapsed := time.Since(start)

		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		status := c.Writer.Status()
		obs.ObserveRequest(c.Request.Method, route, strconv.Itoa(status), elapsed.Seconds())

		log := logutil.GetOrDefault(c.Request.Context())
		event := log.Info()
		if status >= http.StatusInternalServerError {
			event = log.Warn()
		}
		event.
			Str("method", c.Request.Method).
			Str("route", route).
			Int("status", status).
			Dur("duration", elapsed).
			Str("client_ip", c.ClientIP()).
			Msg("request")
	}
}

// RateLimit is a token bucket per client IP. Idle buckets are dropped after ttl.
func RateLimit(perSecond float64, burst int) gin.HandlerFunc {
	type bucket struct {
		lim  *rate.Limiter
		seen time.Time
	}
	const ttl = 5 * time.Minute
	var (
		mu        sync.Mutex
		buckets   = make(map[string]*bucket)
		lastSweep = time.Now()
	)

	return func(c *gin.Context) {
		now := time.Now()
		ip := c.ClientIP()
		if ip == "" {
			ip = "unknown"
		}

		mu.Lock()
		if now.Sub(lastSweep) > time.Minute {
			for k, b := range buckets {
				if now.Sub(b.seen) > ttl {
					delete(buckets, k)
				}
			}
			lastSweep = now
		}
		b, ok := buckets[ip]
		if !ok {
			b = &bucket{lim: rate.NewLimiter(rate.Limit(perSecond), burst)}
			buckets[ip] = b
		}
		b.seen = now
		allowed := b.lim.AllowN(now, 1)
		mu.Unlock()

		if !allowed {
			writeError(c, model.NewError(model.CodeTooManyRequests, "", nil))
			return
		}
		c.Next()
	}
}

func CORSMiddleware(allowedOrigins []string) gin.HandlerFunc {
	originMap := make(map[string]struct{}, len(allowedOrigins))
	for _, origin := range allowedOrigins {
		trimmed := strings.TrimSpace(origin)
		if trimmed == "" {
			continue
		}
		originMap[trimmed] = struct{}{}
	}

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")
		if origin != "" {
			if _, ok := originMap[origin]; ok {
				c.Header("Access-Control-Allow-Origin", origin)
				c.Header("Vary", "Origin")
				c.Header("Access-Control-Allow-Headers", "Authorization, Content-Type, X-Request-ID")
				c.Header("Access-Control-Allow-Methods", "GET, POST, PUT, OPTIONS")
				c.Header("Access-Control-Expose-Headers", requestIDHeader)
			}
		}

		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Next()
	}
}
