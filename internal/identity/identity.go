package identity

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"exchange-service/internal/apperr"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// Roles an authenticated actor can hold
const (
	RoleBuyer  = "buyer"
	RoleSeller = "seller"
	// RoleSystem is used by inbound lifecycle events, never issued to users
	RoleSystem = "system"
)

// Identity is the authenticated actor as supplied by the identity collaborator.
// Sellers act on behalf of OrgID; buyers are identified by ID.
type Identity struct {
	ID    string `json:"id"`
	OrgID string `json:"org_id,omitempty"`
	Role  string `json:"role"`
}

// System is the actor for events that arrive from other backends
var System = Identity{ID: "system", Role: RoleSystem}

func (i Identity) IsBuyer() bool  { return i.Role == RoleBuyer }
func (i Identity) IsSeller() bool { return i.Role == RoleSeller }
func (i Identity) IsSystem() bool { return i.Role == RoleSystem }

// RequireBuyer declines unless the actor is a buyer
func (i Identity) RequireBuyer() error {
	if !i.IsBuyer() || i.ID == "" {
		return apperr.Authorization("buyer identity required")
	}
	return nil
}

// RequireSeller declines unless the actor is a seller acting for an organization
func (i Identity) RequireSeller() error {
	if !i.IsSeller() || i.OrgID == "" {
		return apperr.Authorization("seller organization identity required")
	}
	return nil
}

// Claims is the JWT payload. Subject carries the actor id.
type Claims struct {
	jwt.RegisteredClaims
	OrgID string `json:"org_id,omitempty"`
	Role  string `json:"role"`
}

// TokenVerifier validates HS256 bearer tokens
type TokenVerifier struct {
	secret []byte
	ttl    time.Duration
}

func NewTokenVerifier(secret string, ttl time.Duration) *TokenVerifier {
	return &TokenVerifier{secret: []byte(secret), ttl: ttl}
}

// Issue signs a token for id. Used by tooling and tests; sessions are issued elsewhere.
func (v *TokenVerifier) Issue(id Identity) (string, error) {
	now := time.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.ID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(v.ttl)),
		},
		OrgID: id.OrgID,
		Role:  id.Role,
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

// Verify parses tokenString and returns the identity it carries
func (v *TokenVerifier) Verify(tokenString string) (Identity, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return Identity{}, fmt.Errorf("failed to parse token: %w", err)
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return Identity{}, errors.New("invalid or expired token")
	}

	id := Identity{ID: claims.Subject, OrgID: claims.OrgID, Role: claims.Role}
	switch id.Role {
	case RoleBuyer, RoleSeller:
	default:
		return Identity{}, fmt.Errorf("unsupported role %q", id.Role)
	}
	if id.ID == "" {
		return Identity{}, errors.New("token has no subject")
	}
	return id, nil
}

type ctxKey struct{}

// WithIdentity stores id in ctx
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, ctxKey{}, id)
}

// FromContext returns the identity stored by WithIdentity
func FromContext(ctx context.Context) (Identity, bool) {
	id, ok := ctx.Value(ctxKey{}).(Identity)
	return id, ok
}

const ginKey = "identity"

// RequireIdentity authenticates the bearer token and stores the identity on
// both the gin context and the request context.
func RequireIdentity(v *TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := bearerToken(c)
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"details": "missing or invalid token",
			})
			return
		}
		id, err := v.Verify(tokenString)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"details": err.Error(),
			})
			return
		}
		c.Set(ginKey, id)
		c.Request = c.Request.WithContext(WithIdentity(c.Request.Context(), id))
		c.Next()
	}
}

// FromGin returns the identity set by RequireIdentity
func FromGin(c *gin.Context) Identity {
	if v, ok := c.Get(ginKey); ok {
		if id, ok := v.(Identity); ok {
			return id
		}
	}
	return Identity{}
}

func bearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if len(header) > 7 && strings.EqualFold(header[:7], "Bearer ") {
		return strings.TrimSpace(header[7:])
	}
	return ""
}
