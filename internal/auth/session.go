package auth

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

var (
	ErrInvalidToken = errors.New("invalid token")
	ErrExpiredToken = errors.New("token has expired")
)

// UserMetadata is the profile data the identity provider collects at signup.
type UserMetadata struct {
	FullName string `json:"full_name,omitempty"`
	Company  string `json:"company,omitempty"`
}

// Identity is an authenticated identity-provider account. It may not have a
// local User row yet. ExpiresAt is the token's exp claim, zero when the token
// carries none.
type Identity struct {
	ID        uuid.UUID
	Email     string
	Metadata  UserMetadata
	ExpiresAt time.Time
}

type SessionClaims struct {
	Email        string       `json:"email"`
	UserMetadata UserMetadata `json:"user_metadata"`
	jwt.RegisteredClaims
}

// SessionVerifier validates HS256 access tokens issued by the hosted identity
// provider with its shared JWT secret.
type SessionVerifier struct {
	secret   []byte
	audience string
	expiry   time.Duration
}

func NewSessionVerifier(secret, audience string, expiry time.Duration) *SessionVerifier {
	return &SessionVerifier{
		secret:   []byte(secret),
		audience: audience,
		expiry:   expiry,
	}
}

// IssueToken mints a token in the identity provider's format. Production
// tokens come from the provider; this is for local seeding and tests.
func (v *SessionVerifier) IssueToken(id Identity) (string, error) {
	now := time.Now()
	claims := SessionClaims{
		Email:        id.Email,
		UserMetadata: id.Metadata,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   id.ID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(v.expiry)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	if v.audience != "" {
		claims.Audience = jwt.ClaimStrings{v.audience}
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

func (v *SessionVerifier) Verify(tokenString string) (*Identity, error) {
	opts := []jwt.ParserOption{jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()})}
	if v.audience != "" {
		opts = append(opts, jwt.WithAudience(v.audience))
	}

	token, err := jwt.ParseWithClaims(tokenString, &SessionClaims{}, func(token *jwt.Token) (interface{}, error) {
		return v.secret, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredToken
		}
		return nil, ErrInvalidToken
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		return nil, ErrInvalidToken
	}

	id, err := uuid.Parse(claims.Subject)
	if err != nil {
		return nil, ErrInvalidToken
	}

	identity := &Identity{
		ID:       id,
		Email:    claims.Email,
		Metadata: claims.UserMetadata,
	}
	if claims.ExpiresAt != nil {
		identity.ExpiresAt = claims.ExpiresAt.Time
	}
	return identity, nil
}
