package auth

import "fmt"

// Kind identifies the purpose of a token. Every kind is signed with its own
// key and carries its own lifetime, so a token minted for one purpose never
// validates for another.
type Kind int

const (
	KindAccess Kind = iota + 1
	KindRefresh
	KindEmailVerification
	KindPasswordReset
)

// Kinds lists every kind in a stable order.
var Kinds = []Kind{KindAccess, KindRefresh, KindEmailVerification, KindPasswordReset}

func (k Kind) String() string {
	switch k {
	case KindAccess:
		return "access"
	case KindRefresh:
		return "refresh"
	case KindEmailVerification:
		return "email_verification"
	case KindPasswordReset:
		return "password_reset"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}
