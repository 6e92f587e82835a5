// Package identity implements password hashing/verification and the
// public-user projection (spec §4.2, C2). Hashing uses bcrypt, the same
// golang.org/x/crypto tree the teacher's go.mod already carries, with the
// concrete bcrypt call site grounded in ClaraVerse's apikey_service.go.
package identity

import (
	"golang.org/x/crypto/bcrypt"

	"github.com/boardwalkbbs/server/internal/bbserr"
	"github.com/boardwalkbbs/server/internal/bbs/domain"
)

// MinCost is the lowest bcrypt cost spec §4.2 permits ("cost parameter >=
// 10").
const MinCost = 10

// HashPassword returns an adaptive salted hash of plain. bcrypt embeds its
// own random salt, so callers never manage one.
func HashPassword(plain string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(plain), MinCost)
	if err != nil {
		return "", bbserr.Internal("failed to hash password", err)
	}
	return string(hash), nil
}

// VerifyPassword reports whether plain matches hash. bcrypt.CompareHashAndPassword
// is constant-time with respect to its inputs, satisfying the "string-equal
// compares are forbidden" rule in spec §9.
func VerifyPassword(plain, hash string) bool {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(plain)) == nil
}

// PublicView projects a User to the client-safe shape; never includes
// PasswordHash.
func PublicView(u domain.User) domain.PublicView {
	return u.Public()
}
