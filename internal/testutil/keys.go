package testutil

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

// KeyPair is an RSA key with its base64 DER encodings, as they appear in
// JWT_PRIVATE_KEY and JWT_PUBLIC_KEY.
type KeyPair struct {
	Private      *rsa.PrivateKey
	PrivateB64   string
	PublicB64    string
	PKCS1Private string
}

var (
	keyOnce sync.Once
	keys    [2]KeyPair
	keyErr  error
)

// RSAKeys returns two distinct 2048-bit key pairs, generated once per test
// binary.
func RSAKeys(t testing.TB) (KeyPair, KeyPair) {
	t.Helper()
	keyOnce.Do(func() {
		for i := range keys {
			keys[i], keyErr = newKeyPair(2048)
			if keyErr != nil {
				return
			}
		}
	})
	require.NoError(t, keyErr, "generate RSA fixtures")
	return keys[0], keys[1]
}

// RSAKey returns the first fixture key pair.
func RSAKey(t testing.TB) KeyPair {
	t.Helper()
	kp, _ := RSAKeys(t)
	return kp
}

// WeakRSAKey returns a fresh 1024-bit key pair for rejection tests.
func WeakRSAKey(t testing.TB) KeyPair {
	t.Helper()
	kp, err := newKeyPair(1024)
	require.NoError(t, err)
	return kp
}

func newKeyPair(bits int) (KeyPair, error) {
	key, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return KeyPair{}, err
	}
	priv, err := x509.MarshalPKCS8PrivateKey(key)
	if err != nil {
		return KeyPair{}, err
	}
	pub, err := x509.MarshalPKIXPublicKey(&key.PublicKey)
	if err != nil {
		return KeyPair{}, err
	}
	return KeyPair{
		Private:      key,
		PrivateB64:   base64.StdEncoding.EncodeToString(priv),
		PublicB64:    base64.StdEncoding.EncodeToString(pub),
		PKCS1Private: base64.StdEncoding.EncodeToString(x509.MarshalPKCS1PrivateKey(key)),
	}, nil
}

// SignRS256 signs claims with key, setting the kid header when kid is
// non-empty.
func SignRS256(t testing.TB, key *rsa.PrivateKey, kid string, claims jwt.MapClaims) string {
	t.Helper()
	tok := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	if kid != "" {
		tok.Header["kid"] = kid
	}
	s, err := tok.SignedString(key)
	require.NoError(t, err)
	return s
}

// Claims returns a standard claim set for sub and roles that expires after
// ttl from now.
func Claims(sub string, roles []string, now time.Time, ttl time.Duration) jwt.MapClaims {
	return jwt.MapClaims{
		"sub":   sub,
		"roles": roles,
		"iat":   now.Unix(),
		"exp":   now.Add(ttl).Unix(),
	}
}

// FlipSignatureByte returns token with one byte of its decoded signature
// inverted. The header and payload are untouched.
func FlipSignatureByte(t testing.TB, token string) string {
	t.Helper()
	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	require.NoError(t, err)
	sig[len(sig)/2] ^= 0xFF
	parts[2] = base64.RawURLEncoding.EncodeToString(sig)
	return strings.Join(parts, ".")
}
