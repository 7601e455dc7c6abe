package tokens

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"strings"
	"time"

	"pulse/internal/models"
)

const (
	DefaultResetTTL      = time.Hour
	DefaultInvitationTTL = 7 * 24 * time.Hour
)

// New generates a single-use token. The raw value goes out of band to the
// recipient; only the sha256 hash is persisted.
func New() (raw string, hash string, err error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", "", err
	}
	raw = hex.EncodeToString(b)
	return raw, Hash(raw), nil
}

// Hash returns the hex-encoded sha256 digest stored in place of the raw token.
func Hash(raw string) string {
	h := sha256.Sum256([]byte(raw))
	return hex.EncodeToString(h[:])
}

// VerifyReset checks a fetched reset token without mutating it. A nil
// return means the token is redeemable right now.
func VerifyReset(t *models.PasswordResetToken, now time.Time) error {
	if t == nil {
		return ErrNotFound
	}
	if t.IsUsed() {
		return ErrAlreadyUsed
	}
	if t.IsExpired(now) {
		return ErrExpired
	}
	return nil
}

// VerifyInvitation checks a fetched invitation against the email the
// caller claims to hold it for.
func VerifyInvitation(inv *models.Invitation, email string, now time.Time) error {
	if inv == nil {
		return ErrNotFound
	}
	if inv.IsUsed() {
		return ErrAlreadyUsed
	}
	if inv.IsExpired(now) {
		return ErrExpired
	}
	if subtle.ConstantTimeCompare(
		[]byte(strings.ToLower(inv.Email)),
		[]byte(strings.ToLower(email)),
	) != 1 {
		return ErrIdentityMismatch
	}
	return nil
}
