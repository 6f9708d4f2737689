// internal/auth/hasher.go
//
// Password hashing.
//
// Context
// -------
// New hashes are argon2id in PHC string form:
//
//	$argon2id$v=19$m=65536,t=3,p=1$<salt>$<key>
//
// Salt and key are unpadded standard base64.  The cost parameters travel
// with the hash, so raising them later only affects new hashes and
// Verify reports when a stored hash is below the current policy.
//
// Legacy accounts carry an unsalted SHA-256 hex digest.  Verify accepts
// those once and reports needsRehash so the caller can upgrade the row
// right after a successful login.
package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"

	"golang.org/x/crypto/argon2"
)

// Argon2Params is the cost policy for new hashes.
type Argon2Params struct {
	Time    uint32
	Memory  uint32 // KiB
	Threads uint8
	KeyLen  uint32
	SaltLen uint32
}

// DefaultArgon2 is 64 MiB, three passes, one lane.
var DefaultArgon2 = Argon2Params{Time: 3, Memory: 64 * 1024, Threads: 1, KeyLen: 32, SaltLen: 16}

var errMalformedHash = errors.New("auth: malformed password hash")

// Hasher produces and checks password hashes.
type Hasher struct {
	P Argon2Params
}

// Hash returns a PHC-encoded argon2id hash.
func (h Hasher) Hash(password string) (string, error) {
	salt := make([]byte, h.P.SaltLen)
	if _, err := rand.Read(salt); err != nil {
		return "", err
	}
	key := argon2.IDKey([]byte(password), salt, h.P.Time, h.P.Memory, h.P.Threads, h.P.KeyLen)
	return fmt.Sprintf("$argon2id$v=%d$m=%d,t=%d,p=%d$%s$%s",
		argon2.Version, h.P.Memory, h.P.Time, h.P.Threads,
		b64.EncodeToString(salt), b64.EncodeToString(key)), nil
}

// Verify checks password against encoded.  needsRehash is only meaningful
// when ok is true.
func (h Hasher) Verify(encoded, password string) (ok, needsRehash bool, err error) {
	if isLegacySHA256(encoded) {
		sum := sha256.Sum256([]byte(password))
		want, _ := hex.DecodeString(strings.ToLower(encoded))
		return subtle.ConstantTimeCompare(sum[:], want) == 1, true, nil
	}

	p, salt, key, err := decodePHC(encoded)
	if err != nil {
		return false, false, err
	}
	got := argon2.IDKey([]byte(password), salt, p.Time, p.Memory, p.Threads, uint32(len(key)))
	if subtle.ConstantTimeCompare(got, key) != 1 {
		return false, false, nil
	}
	stale := p.Time != h.P.Time || p.Memory != h.P.Memory ||
		p.Threads != h.P.Threads || uint32(len(key)) != h.P.KeyLen
	return true, stale, nil
}

var b64 = base64.RawStdEncoding

func isLegacySHA256(s string) bool {
	if len(s) != sha256.Size*2 {
		return false
	}
	_, err := hex.DecodeString(s)
	return err == nil
}

func decodePHC(s string) (Argon2Params, []byte, []byte, error) {
	var p Argon2Params
	// "", "argon2id", "v=19", "m=..,t=..,p=..", salt, key
	parts := strings.Split(s, "$")
	if len(parts) != 6 || parts[1] != "argon2id" {
		return p, nil, nil, errMalformedHash
	}
	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil || version != argon2.Version {
		return p, nil, nil, errMalformedHash
	}
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &p.Memory, &p.Time, &p.Threads); err != nil {
		return p, nil, nil, errMalformedHash
	}
	salt, err := b64.DecodeString(parts[4])
	if err != nil {
		return p, nil, nil, errMalformedHash
	}
	key, err := b64.DecodeString(parts[5])
	if err != nil || len(key) == 0 {
		return p, nil, nil, errMalformedHash
	}
	p.SaltLen, p.KeyLen = uint32(len(salt)), uint32(len(key))
	return p, salt, key, nil
}
