package echoapi

import (
	"time"

	"github.com/dgrijalva/jwt-go"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/pkg/errors"

	"github.com/trezcool/somesha/core"
	"github.com/trezcool/somesha/core/member"
)

const (
	contextTokenKey  = "userToken"
	contextActorKey  = "actor"
	contextSchoolKey = "school"
)

// Claims represents the session claims issued by the identity provider.
type Claims struct {
	jwt.StandardClaims
	Email        string `json:"email,omitempty"`
	Name         string `json:"name,omitempty"`
	OrgID        string `json:"org_id,omitempty"`
	OrgRole      string `json:"org_role,omitempty"`
	OrgSlug      string `json:"org_slug,omitempty"`
	PlatformRole string `json:"platform_role,omitempty"`
}

// valid checks the issuer and audience when configured.
func (c Claims) valid(conf core.ServerConfig) error {
	if conf.JWTIssuer != "" && !c.VerifyIssuer(conf.JWTIssuer, true) {
		return errors.New("invalid issuer")
	}
	if conf.JWTAudience != "" && !c.VerifyAudience(conf.JWTAudience, true) {
		return errors.New("invalid audience")
	}
	return nil
}

func (c Claims) Principal() member.Principal {
	return member.Principal{
		UserID:       c.Subject,
		Email:        c.Email,
		Name:         c.Name,
		OrgID:        c.OrgID,
		OrgSlug:      c.OrgSlug,
		OrgRole:      c.OrgRole,
		PlatformRole: c.PlatformRole,
	}
}

// NewClaims describes `p` in session claims valid for `ttl`.
func NewClaims(conf core.ServerConfig, p member.Principal, ttl time.Duration) *Claims {
	now := time.Now()
	return &Claims{
		StandardClaims: jwt.StandardClaims{
			Issuer:    conf.JWTIssuer,
			Audience:  conf.JWTAudience,
			Subject:   p.UserID,
			ExpiresAt: now.Add(ttl).Unix(),
			IssuedAt:  now.Unix(),
		},
		Email:        p.Email,
		Name:         p.Name,
		OrgID:        p.OrgID,
		OrgRole:      p.OrgRole,
		OrgSlug:      p.OrgSlug,
		PlatformRole: p.PlatformRole,
	}
}

// GenerateToken generates a signed JWT token string representing the Claims.
func GenerateToken(conf core.ServerConfig, claims *Claims) (string, error) {
	token := jwt.NewWithClaims(jwt.GetSigningMethod(middleware.AlgorithmHS256), claims)
	ss, err := token.SignedString([]byte(conf.JWTSecret))
	if err != nil {
		return "", errors.Wrap(err, "signing token")
	}
	return ss, nil
}

func newJWTConfig(conf core.ServerConfig) middleware.JWTConfig {
	return middleware.JWTConfig{
		SigningKey:    []byte(conf.JWTSecret),
		SigningMethod: middleware.AlgorithmHS256,
		ContextKey:    contextTokenKey,
		Claims:        new(Claims),
		SuccessHandler: func(ctx echo.Context) {
			if claims, err := getContextClaims(ctx); err == nil {
				if err = claims.valid(conf); err != nil {
					ctx.Set(contextTokenKey, nil)
				}
			}
		},
	}
}

// authMiddleware checks the session token, then its issuer and audience.
func authMiddleware(conf core.ServerConfig) echo.MiddlewareFunc {
	jwtMiddleware := middleware.JWTWithConfig(newJWTConfig(conf))
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return jwtMiddleware(func(ctx echo.Context) error {
			if _, err := getContextClaims(ctx); err != nil {
				return err
			}
			return next(ctx)
		})
	}
}

func getContextClaims(ctx echo.Context) (Claims, error) {
	if token, ok := ctx.Get(contextTokenKey).(*jwt.Token); ok {
		if claims, ok := token.Claims.(*Claims); ok {
			return *claims, nil
		}
	}
	return Claims{}, errUnauthorized
}

func getPrincipal(ctx echo.Context) (member.Principal, error) {
	claims, err := getContextClaims(ctx)
	if err != nil {
		return member.Principal{}, err
	}
	return claims.Principal(), nil
}
