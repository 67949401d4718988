package auth

import (
	"errors"
	"fmt"
	"time"

	"github.com/dmitrijs2005/onepass/internal/server/config"
	"github.com/golang-jwt/jwt/v5"
)

// ErrUnknownKind is returned for a Kind outside the four defined ones.
var ErrUnknownKind = errors.New("unknown token kind")

// KindKey is the signing secret and lifetime of one token kind.
type KindKey struct {
	Secret []byte
	TTL    time.Duration
}

// Keys is the full key set injected into TokenService at startup.
type Keys struct {
	Algorithm         string
	Access            KindKey
	Refresh           KindKey
	EmailVerification KindKey
	PasswordReset     KindKey
}

// KeysFromConfig extracts the token key set from server configuration.
func KeysFromConfig(cfg *config.Config) Keys {
	return Keys{
		Algorithm: cfg.Algorithm,
		Access: KindKey{
			Secret: []byte(cfg.AccessTokenSecretKey),
			TTL:    cfg.AccessTokenValidityDuration,
		},
		Refresh: KindKey{
			Secret: []byte(cfg.RefreshTokenSecretKey),
			TTL:    cfg.RefreshTokenValidityDuration,
		},
		EmailVerification: KindKey{
			Secret: []byte(cfg.EmailVerificationTokenSecretKey),
			TTL:    cfg.EmailVerificationTokenValidityDuration,
		},
		PasswordReset: KindKey{
			Secret: []byte(cfg.PasswordResetTokenSecretKey),
			TTL:    cfg.PasswordResetTokenValidityDuration,
		},
	}
}

func (k Keys) forKind(kind Kind) (KindKey, error) {
	switch kind {
	case KindAccess:
		return k.Access, nil
	case KindRefresh:
		return k.Refresh, nil
	case KindEmailVerification:
		return k.EmailVerification, nil
	case KindPasswordReset:
		return k.PasswordReset, nil
	default:
		return KindKey{}, fmt.Errorf("%w: %s", ErrUnknownKind, kind)
	}
}

func signingMethod(alg string) (*jwt.SigningMethodHMAC, error) {
	switch alg {
	case "", jwt.SigningMethodHS256.Alg():
		return jwt.SigningMethodHS256, nil
	case jwt.SigningMethodHS384.Alg():
		return jwt.SigningMethodHS384, nil
	case jwt.SigningMethodHS512.Alg():
		return jwt.SigningMethodHS512, nil
	default:
		return nil, fmt.Errorf("unsupported signing algorithm %q", alg)
	}
}

func (k Keys) validate() error {
	seen := make(map[string]Kind, len(Kinds))
	for _, kind := range Kinds {
		key, _ := k.forKind(kind)
		if len(key.Secret) == 0 {
			return fmt.Errorf("%s token secret is empty", kind)
		}
		if key.TTL <= 0 {
			return fmt.Errorf("%s token lifetime must be positive", kind)
		}
		if other, dup := seen[string(key.Secret)]; dup {
			return fmt.Errorf("%s and %s tokens share a secret", other, kind)
		}
		seen[string(key.Secret)] = kind
	}
	return nil
}
