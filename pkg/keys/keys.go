// Package keys loads the auth service's RSA signing key pair and publishes
// its public half as a JSON Web Key Set.
//
// Key material arrives base64-encoded DER: PKCS#8 (or PKCS#1) for the
// private key and PKIX (or PKCS#1) for the public key. PEM blocks are
// accepted too. Any decoding failure is a KEY_001 error, which the auth
// service treats as fatal at startup.
package keys

import (
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"errors"
	"math/big"
	"strings"

	"github.com/bytebites/bytebites-core/pkg/config"
	sserr "github.com/bytebites/bytebites-core/pkg/errors"
)

// MinRSABits is the smallest accepted modulus.
const MinRSABits = 2048

// Config is the key material surface. PublicKey is optional; when set it
// must match PrivateKey. KeyID defaults to the RFC 7638 thumbprint.
type Config struct {
	PrivateKey config.Secret `env:"JWT_PRIVATE_KEY" yaml:"private_key" json:"-" required:"true"`
	PublicKey  string        `env:"JWT_PUBLIC_KEY" yaml:"public_key" json:"public_key,omitempty"`
	KeyID      string        `env:"JWT_KEY_ID" yaml:"key_id" json:"key_id,omitempty"`
}

// Provider holds one signing key pair for the life of the process.
//
// The auth service builds a Provider once at startup and shares it between
// two consumers:
//   - the token issuer, which signs with [Provider.SigningKey] and stamps
//     [Provider.KeyID] into every token header
//   - the JWKS handler, which serves [Provider.PublicKeySet]
//
// The published set is computed at construction and never contains private
// parameters. A Provider is read-only after construction and safe for
// concurrent use. Rotation means starting a new process with new material.
type Provider struct {
	private *rsa.PrivateKey
	kid     string
	set     KeySet
}

// NewProvider decodes cfg into a Provider.
func NewProvider(cfg Config) (*Provider, error) {
	priv, err := ParsePrivateKey(cfg.PrivateKey.Value())
	if err != nil {
		return nil, err
	}
	if cfg.PublicKey != "" {
		pub, err := ParsePublicKey(cfg.PublicKey)
		if err != nil {
			return nil, err
		}
		if !pub.Equal(&priv.PublicKey) {
			return nil, sserr.KeyLoad(nil, "keys: public key does not match private key")
		}
	}
	return FromKey(priv, cfg.KeyID)
}

// FromKey wraps an already parsed key. An empty kid selects the thumbprint.
func FromKey(priv *rsa.PrivateKey, kid string) (*Provider, error) {
	if priv == nil {
		return nil, sserr.KeyLoad(nil, "keys: private key is nil")
	}
	if err := checkSize(&priv.PublicKey); err != nil {
		return nil, err
	}
	if kid == "" {
		kid = Thumbprint(&priv.PublicKey)
	}
	return &Provider{
		private: priv,
		kid:     kid,
		set:     KeySet{Keys: []JSONWebKey{NewJSONWebKey(&priv.PublicKey, kid)}},
	}, nil
}

// SigningKey returns the private key. Only the token issuer calls it.
func (p *Provider) SigningKey() *rsa.PrivateKey { return p.private }

// PublicKey returns the public half.
func (p *Provider) PublicKey() *rsa.PublicKey { return &p.private.PublicKey }

// KeyID returns the key identifier placed in token headers.
func (p *Provider) KeyID() string { return p.kid }

// PublicKeySet returns the published key set. The caller gets its own copy.
func (p *Provider) PublicKeySet() KeySet {
	return KeySet{Keys: append([]JSONWebKey(nil), p.set.Keys...)}
}

// ParsePrivateKey decodes a base64 or PEM RSA private key.
func ParsePrivateKey(s string) (*rsa.PrivateKey, error) {
	der, err := decodeDER(s)
	if err != nil {
		return nil, sserr.KeyLoad(err, "keys: private key encoding is invalid")
	}
	var key *rsa.PrivateKey
	if parsed, err := x509.ParsePKCS8PrivateKey(der); err == nil {
		var ok bool
		if key, ok = parsed.(*rsa.PrivateKey); !ok {
			return nil, sserr.KeyLoad(nil, "keys: private key is not RSA")
		}
	} else if key, err = x509.ParsePKCS1PrivateKey(der); err != nil {
		return nil, sserr.KeyLoad(err, "keys: private key is neither PKCS#8 nor PKCS#1")
	}
	if err := key.Validate(); err != nil {
		return nil, sserr.KeyLoad(err, "keys: private key failed validation")
	}
	if err := checkSize(&key.PublicKey); err != nil {
		return nil, err
	}
	return key, nil
}

// ParsePublicKey decodes a base64 or PEM RSA public key.
func ParsePublicKey(s string) (*rsa.PublicKey, error) {
	der, err := decodeDER(s)
	if err != nil {
		return nil, sserr.KeyLoad(err, "keys: public key encoding is invalid")
	}
	var key *rsa.PublicKey
	if parsed, err := x509.ParsePKIXPublicKey(der); err == nil {
		var ok bool
		if key, ok = parsed.(*rsa.PublicKey); !ok {
			return nil, sserr.KeyLoad(nil, "keys: public key is not RSA")
		}
	} else if key, err = x509.ParsePKCS1PublicKey(der); err != nil {
		return nil, sserr.KeyLoad(err, "keys: public key is neither PKIX nor PKCS#1")
	}
	if err := checkSize(key); err != nil {
		return nil, err
	}
	return key, nil
}

// decodeDER accepts a PEM block or standard/URL base64, padded or not.
// Whitespace inside the base64 is ignored.
func decodeDER(s string) ([]byte, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, errors.New("empty key")
	}
	if strings.HasPrefix(s, "-----BEGIN") {
		block, _ := pem.Decode([]byte(s))
		if block == nil {
			return nil, errors.New("malformed PEM block")
		}
		return block.Bytes, nil
	}
	s = strings.Join(strings.Fields(s), "")
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding, base64.RawStdEncoding, base64.URLEncoding, base64.RawURLEncoding,
	} {
		if der, err := enc.DecodeString(s); err == nil {
			return der, nil
		}
	}
	return nil, errors.New("not valid base64")
}

func checkSize(pub *rsa.PublicKey) error {
	if bits := pub.N.BitLen(); bits < MinRSABits {
		return sserr.KeyLoad(nil, "keys: RSA key is too small").
			WithDetail("bits", bits).WithDetail("min_bits", MinRSABits)
	}
	return nil
}

// Thumbprint returns the RFC 7638 SHA-256 thumbprint of pub, base64url
// encoded without padding.
func Thumbprint(pub *rsa.PublicKey) string {
	// Members in lexicographic order, no whitespace.
	doc, _ := json.Marshal(struct {
		E   string `json:"e"`
		Kty string `json:"kty"`
		N   string `json:"n"`
	}{E: encodeInt(big.NewInt(int64(pub.E))), Kty: "RSA", N: encodeInt(pub.N)})
	sum := sha256.Sum256(doc)
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func encodeInt(n *big.Int) string {
	return base64.RawURLEncoding.EncodeToString(n.Bytes())
}
