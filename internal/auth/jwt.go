package auth

import (
	"fmt"
	"time"

	"crm-auth/internal/config"

	"github.com/golang-jwt/jwt/v4"
)

// 令牌类型
const (
	TokenTypeAccess  = "access"
	TokenTypeRefresh = "refresh"
)

// Claims 令牌负载
// tenant_id 作为 claim 携带，后续请求无需查目录即可重建租户上下文
type Claims struct {
	TenantID  string `json:"tenant_id"`
	TokenType string `json:"token_type"`
	jwt.RegisteredClaims
}

// JwtService HMAC 签名的令牌签发/校验
type JwtService struct {
	secret     []byte
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func NewJwtService(cfg config.JWTConfig) *JwtService {
	return &JwtService{
		secret:     []byte(cfg.Secret),
		accessTTL:  cfg.AccessTokenTTL,
		refreshTTL: cfg.RefreshTokenTTL,
	}
}

// AccessTokenTTL 访问令牌有效期（响应里的 expires_in）
func (s *JwtService) AccessTokenTTL() time.Duration {
	return s.accessTTL
}

// GenerateAccessToken 为 principal 签发访问令牌
func (s *JwtService) GenerateAccessToken(subject, tenantID string) (string, error) {
	return s.generate(subject, tenantID, TokenTypeAccess, s.accessTTL)
}

// GenerateRefreshToken 为 principal 签发刷新令牌
func (s *JwtService) GenerateRefreshToken(subject, tenantID string) (string, error) {
	return s.generate(subject, tenantID, TokenTypeRefresh, s.refreshTTL)
}

func (s *JwtService) generate(subject, tenantID, tokenType string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		TenantID:  tenantID,
		TokenType: tokenType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// Parse 校验签名和有效期并返回 claims
func (s *JwtService) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("invalid token: %w", err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("invalid token")
	}
	return claims, nil
}

// ExtractSubject 从令牌取出 principal 标识（email）
func (s *JwtService) ExtractSubject(tokenString string) (string, error) {
	claims, err := s.Parse(tokenString)
	if err != nil {
		return "", err
	}
	return claims.Subject, nil
}

// ExtractTenantID 从令牌取出 tenant_id claim
func (s *JwtService) ExtractTenantID(tokenString string) (string, error) {
	claims, err := s.Parse(tokenString)
	if err != nil {
		return "", err
	}
	return claims.TenantID, nil
}

// IsTokenValid 校验令牌是否属于指定 principal 且未过期
func (s *JwtService) IsTokenValid(tokenString, subject string) bool {
	claims, err := s.Parse(tokenString)
	if err != nil {
		return false
	}
	return claims.Subject == subject
}
