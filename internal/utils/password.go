package utils

import (
	"errors"

	"golang.org/x/crypto/bcrypt"
)

// ErrNoAdminSecret means neither a hash nor a plain admin password was set.
var ErrNoAdminSecret = errors.New("no admin password configured")

// HashPassword returns the bcrypt hash of plain at the given cost.
func HashPassword(plain string, cost int) (string, error) {
	b, err := bcrypt.GenerateFromPassword([]byte(plain), cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// AdminPasswordHash picks the hash the login handler checks against.  A
// configured bcrypt hash wins and must parse; otherwise plain is hashed
// once at startup.
func AdminPasswordHash(hash, plain string, cost int) (string, error) {
	if hash != "" {
		if _, err := bcrypt.Cost([]byte(hash)); err != nil {
			return "", err
		}
		return hash, nil
	}
	if plain == "" {
		return "", ErrNoAdminSecret
	}
	return HashPassword(plain, cost)
}

// VerifyPassword reports whether plain matches hash.
func VerifyPassword(hash, plain string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}
