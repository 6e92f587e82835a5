package store

import (
	"strings"

	"github.com/boardwalkbbs/server/internal/bbserr"
)

// NormalizeLower lowercases usernames/emails, matching spec §3's
// normalization rule applied "inside these calls."
func NormalizeLower(s string) string { return strings.ToLower(strings.TrimSpace(s)) }

// StoreFaultWrap lifts a driver-level error into the StoreFault taxonomy
// kind (spec §7), for Store implementations that talk to a real database.
func StoreFaultWrap(err error) error {
	if err == nil {
		return nil
	}
	return bbserr.StoreFault("persistence layer error", err)
}
