// Package auth issues and validates the signed, time-bound tokens used by
// onePass: access and refresh tokens for sessions, and single-purpose
// tokens carried in email links for verification and password reset.
//
// Validation depends only on the signature, the expiry and the kind claim.
// Nothing is stored server-side, so a token stays valid until it expires.
package auth

import (
	"errors"
	"fmt"
	"strings"

	"github.com/dmitrijs2005/onepass/internal/common"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// Claims is the JWT payload. Email duplicates the subject for clients that
// read the "email" claim directly.
type Claims struct {
	jwt.RegisteredClaims
	Email string `json:"email"`
	Kind  string `json:"kind"`
}

// TokenPair is returned by login and refresh.
type TokenPair struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

// TokenService signs and verifies tokens of every Kind. It holds only
// read-only state and is safe for concurrent use.
type TokenService struct {
	keys   Keys
	method *jwt.SigningMethodHMAC
	clock  Clock
}

// NewTokenService validates keys and builds a TokenService. A nil clock
// means the system clock.
func NewTokenService(keys Keys, clock Clock) (*TokenService, error) {
	method, err := signingMethod(keys.Algorithm)
	if err != nil {
		return nil, err
	}
	if err := keys.validate(); err != nil {
		return nil, err
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &TokenService{keys: keys, method: method, clock: clock}, nil
}

// Issue mints a token of kind for email, valid from now for the kind's TTL.
func (s *TokenService) Issue(kind Kind, email string) (string, error) {
	key, err := s.keys.forKind(kind)
	if err != nil {
		return "", err
	}
	if strings.TrimSpace(email) == "" {
		return "", fmt.Errorf("%w: token subject is empty", common.ErrValidation)
	}

	now := s.clock.Now()
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(key.TTL)),
			ID:        uuid.NewString(),
		},
		Email: email,
		Kind:  kind.String(),
	}

	signed, err := jwt.NewWithClaims(s.method, claims).SignedString(key.Secret)
	if err != nil {
		return "", fmt.Errorf("sign %s token: %w", kind, err)
	}

	tokensIssued.WithLabelValues(kind.String()).Inc()
	return signed, nil
}

// IssuePair mints an access token and a refresh token for email.
func (s *TokenService) IssuePair(email string) (*TokenPair, error) {
	access, err := s.Issue(KindAccess, email)
	if err != nil {
		return nil, err
	}
	refresh, err := s.Issue(KindRefresh, email)
	if err != nil {
		return nil, err
	}
	return &TokenPair{AccessToken: access, RefreshToken: refresh, TokenType: common.TokenTypeBearer}, nil
}

// Validate checks raw against the key of the expected kind and returns the
// email it was issued for. Expired tokens yield common.ErrExpiredToken;
// every other failure yields common.ErrInvalidToken.
func (s *TokenService) Validate(raw string, expected Kind) (string, error) {
	key, err := s.keys.forKind(expected)
	if err != nil {
		return "", err
	}

	claims := &Claims{}
	_, err = jwt.ParseWithClaims(raw, claims,
		func(t *jwt.Token) (any, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
			}
			return key.Secret, nil
		},
		jwt.WithValidMethods([]string{s.method.Alg()}),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(s.clock.Now),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			tokenRejections.WithLabelValues(expected.String(), "expired").Inc()
			return "", common.ErrExpiredToken
		}
		tokenRejections.WithLabelValues(expected.String(), "invalid").Inc()
		return "", fmt.Errorf("%w: %v", common.ErrInvalidToken, err)
	}

	if claims.Kind != expected.String() {
		tokenRejections.WithLabelValues(expected.String(), "kind").Inc()
		return "", fmt.Errorf("%w: kind %q, want %q", common.ErrInvalidToken, claims.Kind, expected)
	}

	email := claims.Email
	if email == "" {
		email = claims.Subject
	}
	if email == "" {
		tokenRejections.WithLabelValues(expected.String(), "subject").Inc()
		return "", fmt.Errorf("%w: missing subject", common.ErrInvalidToken)
	}

	return email, nil
}
