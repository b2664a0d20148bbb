package service

import (
	"crypto/subtle"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/noah-isme/school-site-api/internal/models"
	appErrors "github.com/noah-isme/school-site-api/pkg/errors"
)

const defaultTokenIssuer = "school-site-api"

// AdminAuthConfig defines the single admin credential and session settings.
type AdminAuthConfig struct {
	Username     string
	PasswordHash string
	Secret       string
	Expiry       time.Duration
	Issuer       string
}

// AdminAuthService issues and validates admin session tokens.
type AdminAuthService struct {
	validator *validator.Validate
	logger    *zap.Logger
	config    AdminAuthConfig
	now       func() time.Time
}

// NewAdminAuthService constructs an AdminAuthService instance.
func NewAdminAuthService(config AdminAuthConfig, validate *validator.Validate, logger *zap.Logger) *AdminAuthService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if validate == nil {
		validate = validator.New()
	}
	if config.Expiry <= 0 {
		config.Expiry = 24 * time.Hour
	}
	if config.Issuer == "" {
		config.Issuer = defaultTokenIssuer
	}
	return &AdminAuthService{validator: validate, logger: logger, config: config, now: time.Now}
}

// Login checks the admin credentials and returns a signed session token.
func (s *AdminAuthService) Login(req models.LoginRequest) (*models.LoginResponse, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.WithDetails(appErrors.ErrValidation, "invalid login payload", validationDetails(err))
	}
	if s.config.PasswordHash == "" || s.config.Secret == "" {
		s.logger.Warn("admin login attempted without configured credentials")
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "admin login is not configured")
	}

	usernameOK := subtle.ConstantTimeCompare([]byte(strings.TrimSpace(req.Username)), []byte(s.config.Username)) == 1
	passwordErr := bcrypt.CompareHashAndPassword([]byte(s.config.PasswordHash), []byte(req.Password))
	if !usernameOK || passwordErr != nil {
		s.logger.Info("admin login rejected", zap.String("username", req.Username), zap.String("ip", req.IP))
		return nil, appErrors.Clone(appErrors.ErrInvalidCredentials, "")
	}

	token, expiresAt, err := s.generateToken(s.config.Username)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create access token")
	}
	s.logger.Info("admin logged in", zap.String("username", s.config.Username), zap.String("ip", req.IP))

	return &models.LoginResponse{
		AccessToken: token,
		TokenType:   "Bearer",
		ExpiresIn:   int64(s.config.Expiry.Seconds()),
		ExpiresAt:   expiresAt,
		Username:    s.config.Username,
	}, nil
}

// ValidateToken parses and validates an access token returning the claims.
func (s *AdminAuthService) ValidateToken(tokenString string) (*models.AdminClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &models.AdminClaims{}, func(token *jwt.Token) (interface{}, error) {
		if token.Method != jwt.SigningMethodHS256 {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.config.Secret), nil
	}, jwt.WithIssuer(s.config.Issuer), jwt.WithTimeFunc(s.now))
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrUnauthorized.Code, appErrors.ErrUnauthorized.Status, "invalid token")
	}

	claims, ok := token.Claims.(*models.AdminClaims)
	if !ok || !token.Valid || claims.Role != models.AdminRole {
		return nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid token claims")
	}
	return claims, nil
}

func (s *AdminAuthService) generateToken(username string) (string, time.Time, error) {
	issuedAt := s.now().UTC()
	expiresAt := issuedAt.Add(s.config.Expiry)
	claims := &models.AdminClaims{
		Username: username,
		Role:     models.AdminRole,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    s.config.Issuer,
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(expiresAt),
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			NotBefore: jwt.NewNumericDate(issuedAt),
		},
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(s.config.Secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return signed, expiresAt, nil
}
