package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/raine/carhunt/internal/storage"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	requestIDKey = "requestID"
	userKey      = "user"
)

// RequestID adds a unique request ID to the context and response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader("X-Request-ID")
		if id == "" {
			id = uuid.New().String()
		}
		c.Set(requestIDKey, id)
		c.Header("X-Request-ID", id)
		c.Next()
	}
}

func requestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// Logger logs every request once it has completed.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		status := c.Writer.Status()
		var event *zerolog.Event
		switch {
		case status >= 500:
			event = log.Error()
		case status >= 400:
			event = log.Warn()
		default:
			event = log.Info()
		}

		event.
			Str("requestID", requestID(c)).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", status).
			Dur("latency", time.Since(start)).
			Int("bodySize", c.Writer.Size()).
			Msg("request")
	}
}

// Recovery turns panics into an internal error response.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				log.Error().
					Interface("panic", r).
					Str("requestID", requestID(c)).
					Str("method", c.Request.Method).
					Str("path", c.Request.URL.Path).
					Msg("panic recovered")
				c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse("internal error"))
			}
		}()
		c.Next()
	}
}

// claims are the token claims issued by the auth provider.
type claims struct {
	Email   string `json:"email"`
	Name    string `json:"name"`
	Picture string `json:"picture"`
	Role    string `json:"role"`
	jwt.RegisteredClaims
}

func (s *Server) parseToken(header string) (*claims, bool) {
	scheme, token, ok := strings.Cut(header, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") || token == "" {
		return nil, false
	}

	var cl claims
	parsed, err := jwt.ParseWithClaims(token, &cl, func(t *jwt.Token) (any, error) {
		return []byte(s.cfg.AuthJWTSecret), nil
	}, jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}))
	if err != nil || !parsed.Valid || cl.Subject == "" {
		if err != nil {
			log.Debug().Err(err).Msg("rejected token")
		}
		return nil, false
	}
	return &cl, true
}

// checkUser creates or refreshes the stored user behind the token.
func (s *Server) checkUser(c *gin.Context, cl *claims) (*storage.User, error) {
	role := storage.RoleUser
	if s.cfg.IsAdminEmail(cl.Email) || strings.EqualFold(cl.Role, storage.RoleAdmin) {
		role = storage.RoleAdmin
	}
	return s.users.UpsertUser(c.Request.Context(), &storage.User{
		AuthSubject: cl.Subject,
		Email:       strings.ToLower(cl.Email),
		Name:        cl.Name,
		ImageURL:    cl.Picture,
		Role:        role,
	})
}

// Authenticate resolves the bearer token to a user. When required is false,
// requests without a valid token continue anonymously.
func (s *Server) Authenticate(required bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		if header == "" {
			if required {
				c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("authorization header required"))
				return
			}
			c.Next()
			return
		}

		cl, ok := s.parseToken(header)
		if !ok {
			if required {
				c.AbortWithStatusJSON(http.StatusUnauthorized, errorResponse("invalid token"))
				return
			}
			c.Next()
			return
		}

		user, err := s.checkUser(c, cl)
		if err != nil {
			log.Error().Err(err).Str("requestID", requestID(c)).Msg("failed to load user")
			c.AbortWithStatusJSON(http.StatusInternalServerError, errorResponse("internal error"))
			return
		}
		c.Set(userKey, user)
		c.Next()
	}
}

// RequireAdmin must run after Authenticate(true).
func RequireAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		if user := currentUser(c); user == nil || !user.IsAdmin() {
			c.AbortWithStatusJSON(http.StatusForbidden, errorResponse("admin access required"))
			return
		}
		c.Next()
	}
}

func currentUser(c *gin.Context) *storage.User {
	v, ok := c.Get(userKey)
	if !ok {
		return nil
	}
	user, _ := v.(*storage.User)
	return user
}

func currentUserID(c *gin.Context) string {
	if user := currentUser(c); user != nil {
		return user.ID
	}
	return ""
}
