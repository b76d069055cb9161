package jwttoken

import (
	"errors"
	"slices"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	dErrors "alumni/pkg/domain-errors"
	authmw "alumni/pkg/platform/middleware/auth"
)

// RoleRestore grants access to the restore endpoint.
const RoleRestore = "audit:restore"

// Claims represents the JWT claims carried by admin access tokens.
// Subject holds the admin id; Label is the display identity written to the ledger.
type Claims struct {
	Label          string   `json:"label"`
	Roles          []string `json:"roles,omitempty"`
	Infrastructure bool     `json:"infra,omitempty"`
	jwt.RegisteredClaims
}

// JWTService handles JWT creation and validation
type JWTService struct {
	signingKey []byte
	issuer     string
	audience   string
}

func NewJWTService(signingKey string, issuer string, audience string) *JWTService {
	return &JWTService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		audience:   audience,
	}
}

// GenerateAccessToken signs a token for the given admin. Used by the dev token
// command and tests; production tokens come from the admin login service.
func (s *JWTService) GenerateAccessToken(subject, label string, roles []string, expiresIn time.Duration) (string, error) {
	now := time.Now()
	newToken := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		Label: label,
		Roles: roles,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Audience:  []string{s.audience},
			ID:        uuid.NewString(),
		},
	})

	signedToken, err := newToken.SignedString(s.signingKey)
	if err != nil {
		return "", err
	}
	return signedToken, nil
}

func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if !parsed.Valid {
		return nil, ErrTokenInvalid
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || claims.Subject == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}

var (
	ErrTokenInvalid = dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	ErrTokenExpired = dErrors.New(dErrors.CodeUnauthorized, "token has expired")
)

// Adapter exposes JWTService to the auth middleware.
type Adapter struct {
	service *JWTService
}

func NewAdapter(service *JWTService) *Adapter {
	return &Adapter{service: service}
}

func (a *Adapter) ValidateToken(tokenString string) (*authmw.JWTClaims, error) {
	claims, err := a.service.ValidateToken(tokenString)
	if err != nil {
		return nil, err
	}
	label := claims.Label
	if label == "" {
		label = claims.Subject
	}
	return &authmw.JWTClaims{
		Subject:        claims.Subject,
		Label:          label,
		Elevated:       slices.Contains(claims.Roles, RoleRestore),
		Infrastructure: claims.Infrastructure,
	}, nil
}
