package auth

import (
	"crypto/rand"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"

	"golang.org/x/crypto/pbkdf2"
)

// KDF parameters. Changing any of these invalidates every stored credential,
// so they are fixed constants rather than configuration.
const (
	kdfIterations = 1000
	kdfKeyLen     = 64
	saltBytes     = 16
)

// NewSalt returns a fresh hex-encoded random salt.
func NewSalt() (string, error) {
	buf := make([]byte, saltBytes)
	if _, err := rand.Read(buf); err != nil {
		return "", Implementation("generate salt").WithCause(err)
	}
	return hex.EncodeToString(buf), nil
}

// DeriveKey stretches password with the given hex salt. The salt participates
// as its encoded form, matching the stored credential format.
func DeriveKey(password, salt string) string {
	key := pbkdf2.Key([]byte(password), []byte(salt), kdfIterations, kdfKeyLen, sha512.New)
	return hex.EncodeToString(key)
}

// SetPassword derives and installs a new credential on the subject, rotating
// the salt. Anything derived from the previous salt stops verifying.
func SetPassword(s *Subject, password string) error {
	if password == "" {
		return BadRequest("password is required")
	}
	salt, err := NewSalt()
	if err != nil {
		return err
	}
	s.Salt = salt
	s.HashedPassword = DeriveKey(password, salt)
	return nil
}

// VerifyPassword checks a candidate password against the subject's stored
// credential. A subject with no credential material or no activation
// timestamp never verifies, regardless of the candidate. The digest
// comparison is constant-time.
func VerifyPassword(s *Subject, password string) bool {
	if s == nil || s.HashedPassword == "" || s.Salt == "" || s.ActiveAt == nil {
		return false
	}
	derived := DeriveKey(password, s.Salt)
	return subtle.ConstantTimeCompare([]byte(derived), []byte(s.HashedPassword)) == 1
}
