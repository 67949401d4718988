package common

const (
	// AuthorizationHeaderName carries the bearer access token on protected routes.
	AuthorizationHeaderName = "Authorization"

	// TokenTypeBearer is reported to clients alongside every issued token pair.
	TokenTypeBearer = "bearer"

	// DSNMemory selects the in-process store instead of PostgreSQL.
	DSNMemory = "memory"
)
