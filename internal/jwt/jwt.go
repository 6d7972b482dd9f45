package jwt

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/jonboulle/clockwork"
)

const issuer = "im-chat"

var (
	ErrTokenInvalid = errors.New("token is invalid")
	ErrTokenExpired = errors.New("token has expired")
)

// Claims 会话 Token 声明，Subject 为参与者 ID
type Claims struct {
	jwt.RegisteredClaims
}

// ParticipantID 返回参与者 ID
func (c *Claims) ParticipantID() string {
	return c.Subject
}

// Token 签发结果
type Token struct {
	Value     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

// Signer 签发和校验 HS256 会话 Token
type Signer struct {
	secretKey []byte
	ttl       time.Duration
	clock     clockwork.Clock
	parser    *jwt.Parser
}

// NewSigner 创建签名器，c 为 nil 时使用系统时钟
func NewSigner(secretKey string, ttl time.Duration, c clockwork.Clock) *Signer {
	if c == nil {
		c = clockwork.NewRealClock()
	}
	return &Signer{
		secretKey: []byte(secretKey),
		ttl:       ttl,
		clock:     c,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithIssuer(issuer),
			jwt.WithExpirationRequired(),
			jwt.WithTimeFunc(c.Now),
		),
	}
}

// Issue 为参与者签发 Token
func (s *Signer) Issue(participantID string) (Token, error) {
	if participantID == "" {
		return Token{}, ErrTokenInvalid
	}
	now := s.clock.Now()
	expiresAt := now.Add(s.ttl)

	claims := &Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   participantID,
			Issuer:    issuer,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
	}

	value, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secretKey)
	if err != nil {
		return Token{}, err
	}
	return Token{Value: value, ExpiresAt: expiresAt}, nil
}

// Verify 校验 Token 并返回声明
func (s *Signer) Verify(value string) (*Claims, error) {
	claims := &Claims{}
	token, err := s.parser.ParseWithClaims(value, claims, func(*jwt.Token) (any, error) {
		return s.secretKey, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrTokenExpired
		}
		return nil, ErrTokenInvalid
	}
	if !token.Valid || claims.Subject == "" {
		return nil, ErrTokenInvalid
	}
	return claims, nil
}
