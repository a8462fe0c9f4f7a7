// Package crypto holds the primitives the security core builds on: password
// based encryption for data at rest, digests, HMAC, signed tokens and secure
// random generation.
//
// Decisions never surface as errors. Decrypt and VerifySecureToken fail closed
// and report the outcome in their result value; only RNG failures are errors.
package crypto

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"math/big"
	"strings"

	"golang.org/x/crypto/pbkdf2"
)

const (
	// KeySize is the AES-256 key length.
	KeySize = 32
	// SaltSize is the per-payload PBKDF2 salt length.
	SaltSize = 16
	// IVSize is the AES-GCM nonce length.
	IVSize = 12
	// DefaultIterations is the PBKDF2 work factor used when none is configured.
	DefaultIterations = 100_000

	backupCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	backupCodeLength   = 12
	backupCodeGroup    = 4
)

// EncryptedPayload is the serialisable output of Encrypt. All byte fields are
// standard base64.
type EncryptedPayload struct {
	Ciphertext string `json:"ciphertext"`
	IV         string `json:"iv"`
	Salt       string `json:"salt"`
	// Iterations records the work factor used so payloads stay readable
	// after the configured default changes. Zero means DefaultIterations.
	Iterations int `json:"iterations,omitempty"`
}

// DecryptResult reports the outcome of Decrypt. Plaintext is empty unless
// Success is true.
type DecryptResult struct {
	Plaintext string
	Success   bool
}

// DeriveKey stretches password into a KeySize key with PBKDF2-HMAC-SHA256.
func DeriveKey(password string, salt []byte, iterations int) []byte {
	if iterations <= 0 {
		iterations = DefaultIterations
	}
	return pbkdf2.Key([]byte(password), salt, iterations, KeySize, sha256.New)
}

// Encrypt seals plaintext with a key derived from password, using a fresh
// salt and IV on every call.
func Encrypt(plaintext, password string) (*EncryptedPayload, error) {
	return EncryptWithIterations(plaintext, password, DefaultIterations)
}

// EncryptWithIterations is Encrypt with an explicit PBKDF2 work factor.
func EncryptWithIterations(plaintext, password string, iterations int) (*EncryptedPayload, error) {
	if iterations <= 0 {
		iterations = DefaultIterations
	}
	salt := make([]byte, SaltSize)
	if _, err := io.ReadFull(rand.Reader, salt); err != nil {
		return nil, fmt.Errorf("generate salt: %w", err)
	}
	iv := make([]byte, IVSize)
	if _, err := io.ReadFull(rand.Reader, iv); err != nil {
		return nil, fmt.Errorf("generate iv: %w", err)
	}

	key := DeriveKey(password, salt, iterations)
	defer zero(key)

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}
	sealed := gcm.Seal(nil, iv, []byte(plaintext), nil)

	return &EncryptedPayload{
		Ciphertext: base64.StdEncoding.EncodeToString(sealed),
		IV:         base64.StdEncoding.EncodeToString(iv),
		Salt:       base64.StdEncoding.EncodeToString(salt),
		Iterations: iterations,
	}, nil
}

// Decrypt opens payload with a key derived from password. A wrong password,
// a tampered or malformed payload, or an empty plaintext all produce
// Success=false.
func Decrypt(payload *EncryptedPayload, password string) DecryptResult {
	if payload == nil {
		return DecryptResult{}
	}
	sealed, err := base64.StdEncoding.DecodeString(payload.Ciphertext)
	if err != nil {
		return DecryptResult{}
	}
	iv, err := base64.StdEncoding.DecodeString(payload.IV)
	if err != nil || len(iv) != IVSize {
		return DecryptResult{}
	}
	salt, err := base64.StdEncoding.DecodeString(payload.Salt)
	if err != nil || len(salt) == 0 {
		return DecryptResult{}
	}

	key := DeriveKey(password, salt, payload.Iterations)
	defer zero(key)

	gcm, err := newGCM(key)
	if err != nil {
		return DecryptResult{}
	}
	plain, err := gcm.Open(nil, iv, sealed, nil)
	if err != nil || len(plain) == 0 {
		return DecryptResult{}
	}
	return DecryptResult{Plaintext: string(plain), Success: true}
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("create gcm: %w", err)
	}
	return gcm, nil
}

// zero wipes key material once it is no longer needed.
func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// CreateHash returns the hex SHA-256 digest of salt+text. It is for
// integrity checks and fingerprinting, not for passwords.
func CreateHash(text string, salt ...string) string {
	h := sha256.New()
	for _, s := range salt {
		h.Write([]byte(s))
	}
	h.Write([]byte(text))
	return hex.EncodeToString(h.Sum(nil))
}

// CreateHMAC returns the hex HMAC-SHA256 of text under secret.
func CreateHMAC(text, secret string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(text))
	return hex.EncodeToString(mac.Sum(nil))
}

// SecureCompare reports whether a and b are equal in constant time.
func SecureCompare(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(a), []byte(b)) == 1
}

// GenerateSecureRandom returns n random bytes, hex encoded.
func GenerateSecureRandom(n int) (string, error) {
	if n <= 0 {
		return "", fmt.Errorf("random length must be positive, got %d", n)
	}
	b := make([]byte, n)
	if _, err := io.ReadFull(rand.Reader, b); err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return hex.EncodeToString(b), nil
}

// GenerateNumericCode returns a uniformly distributed code of the given
// number of decimal digits, leading zeros preserved.
func GenerateNumericCode(digits int) (string, error) {
	if digits <= 0 || digits > 18 {
		return "", fmt.Errorf("digits out of range: %d", digits)
	}
	limit := new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(digits)), nil)
	n, err := rand.Int(rand.Reader, limit)
	if err != nil {
		return "", fmt.Errorf("read random: %w", err)
	}
	return fmt.Sprintf("%0*d", digits, n), nil
}

// GenerateBackupCode returns a 60-bit code formatted as XXXX-XXXX-XXXX from
// an alphabet without look-alike characters.
func GenerateBackupCode() (string, error) {
	var b strings.Builder
	alphabetSize := big.NewInt(int64(len(backupCodeAlphabet)))
	for i := 0; i < backupCodeLength; i++ {
		if i > 0 && i%backupCodeGroup == 0 {
			b.WriteByte('-')
		}
		n, err := rand.Int(rand.Reader, alphabetSize)
		if err != nil {
			return "", fmt.Errorf("read random: %w", err)
		}
		b.WriteByte(backupCodeAlphabet[n.Int64()])
	}
	return b.String(), nil
}

// NormalizeBackupCode upper-cases code and strips separators so user input
// like "abcd efgh-jkmn" matches the issued form.
func NormalizeBackupCode(code string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(code) {
		if r == '-' || r == ' ' || r == '\t' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
