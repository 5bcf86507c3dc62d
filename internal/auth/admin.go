package auth

import (
	"crypto/subtle"
	"errors"

	"golang.org/x/crypto/bcrypt"
)

var ErrBadAdminSecret = errors.New("admin secret rejected")

// AdminGate checks the shared admin secret against its bcrypt hash. The
// service only ever holds the hash; the plaintext lives with the operators.
type AdminGate struct {
	hash []byte
}

func NewAdminGate(bcryptHash string) *AdminGate {
	return &AdminGate{hash: []byte(bcryptHash)}
}

func (g *AdminGate) Check(secret string) error {
	if len(g.hash) == 0 {
		return ErrBadAdminSecret
	}
	if err := bcrypt.CompareHashAndPassword(g.hash, []byte(secret)); err != nil {
		return ErrBadAdminSecret
	}
	return nil
}

// CheckServiceToken compares the integrations bearer token in constant time.
func CheckServiceToken(expected, got string) error {
	if expected == "" || subtle.ConstantTimeCompare([]byte(expected), []byte(got)) != 1 {
		return ErrBadAdminSecret
	}
	return nil
}
