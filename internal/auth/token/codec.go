// Package token builds and validates opaque session tokens.
//
// A token is produced in two steps: the session claims are serialized and
// signed as an HS256 JWT, then the signed string's raw bytes are encrypted
// with AES-256-CBC (PKCS#7 padding) under a deployment-fixed key and IV. The
// signature proves integrity and origin; the encryption keeps claim contents
// (user id, email) unreadable by the client and makes the token an opaque
// binary blob. Validation reverses the pipeline.
//
// The exp claim is a relative TTL in seconds, not an absolute timestamp.
// Absolute expiry is reconstructed as iat+exp at check time; the codec never
// checks expiry itself (see Claims.ExpiredAt callers in the authenticator).
package token

import (
	"bytes"
	"crypto/aes"
	"crypto/cipher"
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

var (
	// ErrDecrypt covers undecryptable input: wrong key material, corrupted
	// ciphertext, or bad padding. Callers cannot tell these apart.
	ErrDecrypt = errors.New("token decryption failed")
	// ErrInvalidSignature means the decrypted JWT failed signature checks.
	ErrInvalidSignature = errors.New("token signature invalid")
	// ErrMalformed means the decrypted bytes are not a parseable JWT.
	ErrMalformed = errors.New("token claims malformed")
)

// Claims is the signed session payload.
//
// ExpiresIn is a duration in seconds relative to IssuedAt, never an absolute
// timestamp; tokens that cross a clock adjustment keep their original
// lifetime. Audience carries the user id as a string, Subject the email (or
// empty).
type Claims struct {
	Issuer    string `json:"iss"`
	Subject   string `json:"sub"`
	Audience  string `json:"aud"`
	IssuedAt  int64  `json:"iat"`
	ExpiresIn int64  `json:"exp"`
}

// ExpiresAt returns the absolute expiry in unix seconds.
func (c Claims) ExpiresAt() int64 { return c.IssuedAt + c.ExpiresIn }

// ExpiredAt reports whether the token is expired at the given instant. A
// token is expired exactly at its boundary second.
func (c Claims) ExpiredAt(now time.Time) bool { return now.Unix() >= c.ExpiresAt() }

// jwt.Claims implementation. GetExpirationTime returns nil because exp is
// relative; letting the parser read it as absolute would reject every token
// as decades expired.
func (c Claims) GetExpirationTime() (*jwt.NumericDate, error) { return nil, nil }
func (c Claims) GetIssuedAt() (*jwt.NumericDate, error)       { return nil, nil }
func (c Claims) GetNotBefore() (*jwt.NumericDate, error)      { return nil, nil }
func (c Claims) GetIssuer() (string, error)                   { return c.Issuer, nil }
func (c Claims) GetSubject() (string, error)                  { return c.Subject, nil }
func (c Claims) GetAudience() (jwt.ClaimStrings, error) {
	return jwt.ClaimStrings{c.Audience}, nil
}

// Codec owns the signing secret and cipher material. It is constructed once
// at startup and safe for concurrent use; key material is never logged.
type Codec struct {
	secret []byte
	key    [32]byte
	iv     [16]byte
	ttl    time.Duration
	issuer string
	now    func() time.Time
}

// Option configures a Codec.
type Option func(*Codec)

// WithClock overrides the codec clock. Tests use this to pin iat.
func WithClock(now func() time.Time) Option {
	return func(c *Codec) {
		if now != nil {
			c.now = now
		}
	}
}

// New constructs a Codec. ttl is the lifetime stamped into every issued
// token; issuer is the fixed service name.
func New(secret []byte, key [32]byte, iv [16]byte, ttl time.Duration, issuer string, opts ...Option) *Codec {
	c := &Codec{
		secret: secret,
		key:    key,
		iv:     iv,
		ttl:    ttl,
		issuer: issuer,
		now:    time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

// Issue builds, signs, and encrypts a session token for the given user.
// email may be empty (SSO users have none).
func (c *Codec) Issue(userID string, email string) ([]byte, error) {
	claims := Claims{
		Issuer:    c.issuer,
		Subject:   email,
		Audience:  userID,
		IssuedAt:  c.now().Unix(),
		ExpiresIn: int64(c.ttl / time.Second),
	}

	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return nil, err
	}

	return c.encrypt([]byte(signed)), nil
}

// Validate decrypts and signature-checks an opaque token and returns its
// claims. Expiry is NOT checked here: exp is relative and the authenticator
// recomputes absolute expiry against its own clock.
func (c *Codec) Validate(opaque []byte) (*Claims, error) {
	plain, err := c.decrypt(opaque)
	if err != nil {
		return nil, err
	}

	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(string(plain), claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return c.secret, nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		if errors.Is(err, jwt.ErrTokenSignatureInvalid) || errors.Is(err, jwt.ErrTokenUnverifiable) {
			return nil, ErrInvalidSignature
		}
		return nil, ErrMalformed
	}
	if !parsed.Valid {
		return nil, ErrInvalidSignature
	}

	return claims, nil
}

func (c *Codec) encrypt(plain []byte) []byte {
	block, err := aes.NewCipher(c.key[:])
	if err != nil {
		// Key length is fixed at construction; NewCipher cannot fail here.
		panic(err)
	}
	padded := pkcs7Pad(plain, aes.BlockSize)
	out := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, c.iv[:]).CryptBlocks(out, padded)
	return out
}

func (c *Codec) decrypt(in []byte) ([]byte, error) {
	if len(in) == 0 || len(in)%aes.BlockSize != 0 {
		return nil, ErrDecrypt
	}
	block, err := aes.NewCipher(c.key[:])
	if err != nil {
		panic(err)
	}
	out := make([]byte, len(in))
	cipher.NewCBCDecrypter(block, c.iv[:]).CryptBlocks(out, in)
	return pkcs7Unpad(out, aes.BlockSize)
}

func pkcs7Pad(b []byte, blockSize int) []byte {
	n := blockSize - len(b)%blockSize
	return append(b, bytes.Repeat([]byte{byte(n)}, n)...)
}

func pkcs7Unpad(b []byte, blockSize int) ([]byte, error) {
	if len(b) == 0 || len(b)%blockSize != 0 {
		return nil, ErrDecrypt
	}
	n := int(b[len(b)-1])
	if n == 0 || n > blockSize || n > len(b) {
		return nil, ErrDecrypt
	}
	for _, pad := range b[len(b)-n:] {
		if int(pad) != n {
			return nil, ErrDecrypt
		}
	}
	return b[:len(b)-n], nil
}
