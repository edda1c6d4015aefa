package biz

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/fx"
	"golang.org/x/crypto/bcrypt"

	"github.com/looplj/memvault/internal/log"
)

// AuthConfig carries the shared-secret material for both planes: the
// HS256 signing secret and the bcrypt hash of the admin password.
type AuthConfig struct {
	SecretKey         string        `conf:"secret_key" yaml:"secret_key" json:"secret_key"`
	AdminPasswordHash string        `conf:"admin_password_hash" yaml:"admin_password_hash" json:"admin_password_hash"`
	AdminTokenTTL     time.Duration `conf:"admin_token_ttl" yaml:"admin_token_ttl" json:"admin_token_ttl"`
	AgentTokenTTL     time.Duration `conf:"agent_token_ttl" yaml:"agent_token_ttl" json:"agent_token_ttl"`
}

type AuthServiceParams struct {
	fx.In

	Config        AuthConfig
	TenantService *TenantService
}

func NewAuthService(params AuthServiceParams) *AuthService {
	cfg := params.Config
	if cfg.AdminTokenTTL == 0 {
		cfg.AdminTokenTTL = 24 * time.Hour
	}

	if cfg.AgentTokenTTL == 0 {
		cfg.AgentTokenTTL = 7 * 24 * time.Hour
	}

	return &AuthService{
		config:        cfg,
		TenantService: params.TenantService,
	}
}

type AuthService struct {
	config        AuthConfig
	TenantService *TenantService
}

// HashPassword hashes a password using bcrypt.
func HashPassword(password string) (string, error) {
	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}

	return hex.EncodeToString(hashedPassword), nil
}

// VerifyPassword verifies a password against a hex-encoded bcrypt hash.
func VerifyPassword(hashedPassword, password string) error {
	decodedHashedPassword, err := hex.DecodeString(hashedPassword)
	if err != nil {
		return fmt.Errorf("failed to decode hashed password: %w", err)
	}

	return bcrypt.CompareHashAndPassword(decodedHashedPassword, []byte(password))
}

// GenerateSecretKey generates a random HS256 signing secret.
func GenerateSecretKey() (string, error) {
	bytes := make([]byte, 32)

	if _, err := rand.Read(bytes); err != nil {
		return "", fmt.Errorf("failed to generate random bytes: %w", err)
	}

	return hex.EncodeToString(bytes), nil
}

// AuthenticateAdmin checks the admin password and mints an admin JWT.
func (s *AuthService) AuthenticateAdmin(ctx context.Context, password string) (string, error) {
	if s.config.AdminPasswordHash == "" {
		return "", fmt.Errorf("admin password is not configured: %w", ErrInvalidPassword)
	}

	if err := VerifyPassword(s.config.AdminPasswordHash, password); err != nil {
		log.Warn(ctx, "admin sign-in rejected")

		return "", fmt.Errorf("invalid password: %w", ErrInvalidPassword)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"role": "admin",
		"exp":  time.Now().Add(s.config.AdminTokenTTL).Unix(),
	})

	signed, err := token.SignedString([]byte(s.config.SecretKey))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, nil
}

// VerifyAdminToken validates an admin JWT.
func (s *AuthService) VerifyAdminToken(ctx context.Context, tokenString string) error {
	claims, err := s.parseClaims(tokenString)
	if err != nil {
		return err
	}

	if role, _ := claims["role"].(string); role != "admin" {
		return fmt.Errorf("not an admin token: %w", ErrInvalidToken)
	}

	return nil
}

// MintAgentToken issues a data-plane bearer token bound to a tenant and
// user scope. The token authenticates structural access only; content
// access still requires the key header.
func (s *AuthService) MintAgentToken(ctx context.Context, tenantID int, userID string) (string, error) {
	tenant, err := s.TenantService.Get(ctx, tenantID)
	if err != nil {
		return "", fmt.Errorf("unknown tenant: %w", err)
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"role":      "agent",
		"tenant_id": tenant.ID,
		"user_id":   userID,
		"exp":       time.Now().Add(s.config.AgentTokenTTL).Unix(),
	})

	signed, err := token.SignedString([]byte(s.config.SecretKey))
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}

	return signed, nil
}

// AuthenticateAgentToken validates an agent token and returns its tenant
// and user binding.
func (s *AuthService) AuthenticateAgentToken(ctx context.Context, tokenString string) (tenantID int, userID string, err error) {
	claims, err := s.parseClaims(tokenString)
	if err != nil {
		return 0, "", err
	}

	if role, _ := claims["role"].(string); role != "agent" {
		return 0, "", fmt.Errorf("not an agent token: %w", ErrInvalidToken)
	}

	rawTenant, ok := claims["tenant_id"].(float64)
	if !ok || rawTenant <= 0 {
		return 0, "", fmt.Errorf("token missing tenant binding: %w", ErrInvalidToken)
	}

	userID, _ = claims["user_id"].(string)

	return int(rawTenant), userID, nil
}

func (s *AuthService) parseClaims(tokenString string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}

		return []byte(s.config.SecretKey), nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to parse token: %w", ErrInvalidToken)
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	return claims, nil
}
