package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"admissions/internal/identity/models"
	id "admissions/pkg/domain"
	authmw "admissions/pkg/platform/middleware/auth"

	dErrors "admissions/pkg/domain-errors"
)

// Claims represents the JWT claims for portal access tokens.
type Claims struct {
	UserID string `json:"user_id"`
	Role   string `json:"role"`
	jwt.RegisteredClaims
}

// JWTService handles JWT creation and validation.
type JWTService struct {
	signingKey []byte
	issuer     string
	now        func() time.Time
}

func NewJWTService(signingKey string, issuer string) *JWTService {
	return &JWTService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		now:        time.Now,
	}
}

func (s *JWTService) GenerateAccessToken(userID id.UserID, role models.Role, expiresIn time.Duration) (string, error) {
	now := s.now()
	newToken := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		UserID: userID.String(),
		Role:   string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Subject:   userID.String(),
			ID:        uuid.NewString(),
		},
	})

	return newToken.SignedString(s.signingKey)
}

func (s *JWTService) ValidateToken(tokenString string) (*Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	}, jwt.WithIssuer(s.issuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	if !models.Role(claims.Role).IsValid() {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}

	return claims, nil
}

// VerifyCaller turns a bearer token into the caller identity.
func (s *JWTService) VerifyCaller(tokenString string) (models.Caller, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return models.Caller{}, err
	}
	userID, err := id.ParseUserID(claims.UserID)
	if err != nil {
		return models.Caller{}, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	return models.Caller{UserID: userID, Role: models.Role(claims.Role)}, nil
}

// Middleware adapts the service to the HTTP auth middleware.
func (s *JWTService) Middleware() authmw.JWTValidator {
	return middlewareValidator{s}
}

type middlewareValidator struct {
	s *JWTService
}

func (m middlewareValidator) ValidateToken(tokenString string) (*authmw.JWTClaims, error) {
	caller, err := m.s.VerifyCaller(tokenString)
	if err != nil {
		return nil, err
	}
	return &authmw.JWTClaims{UserID: caller.UserID.String(), Role: string(caller.Role)}, nil
}
