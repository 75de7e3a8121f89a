package keys

import (
	"crypto/rsa"
	"encoding/base64"
	"encoding/json"
	"errors"
	"math/big"
	"net/http"
	"strconv"
	"time"
)

// JWKSPath is where the auth service publishes its key set.
const JWKSPath = "/.well-known/jwks.json"

// JSONWebKey is an RSA public key in JWK form.
type JSONWebKey struct {
	Kty string `json:"kty"`
	Use string `json:"use,omitempty"`
	Kid string `json:"kid,omitempty"`
	Alg string `json:"alg,omitempty"`
	N   string `json:"n"`
	E   string `json:"e"`
}

// KeySet is a JWK Set document.
type KeySet struct {
	Keys []JSONWebKey `json:"keys"`
}

// NewJSONWebKey describes pub as an RS256 signing key.
func NewJSONWebKey(pub *rsa.PublicKey, kid string) JSONWebKey {
	return JSONWebKey{
		Kty: "RSA",
		Use: "sig",
		Kid: kid,
		Alg: "RS256",
		N:   encodeInt(pub.N),
		E:   encodeInt(big.NewInt(int64(pub.E))),
	}
}

// Find returns the key with the given kid.
func (s KeySet) Find(kid string) (JSONWebKey, bool) {
	for _, k := range s.Keys {
		if k.Kid == kid {
			return k, true
		}
	}
	return JSONWebKey{}, false
}

// RSAPublicKey decodes the key. Non-RSA keys, keys not meant for
// signatures, malformed parameters and moduli under [MinRSABits] are
// rejected.
func (k JSONWebKey) RSAPublicKey() (*rsa.PublicKey, error) {
	if k.Kty != "RSA" {
		return nil, errors.New("keys: jwk is not RSA")
	}
	if k.Use != "" && k.Use != "sig" {
		return nil, errors.New("keys: jwk use is not sig")
	}
	if k.N == "" || k.E == "" {
		return nil, errors.New("keys: jwk is missing n or e")
	}
	nb, err := base64.RawURLEncoding.DecodeString(k.N)
	if err != nil {
		return nil, errors.New("keys: jwk modulus is not base64url")
	}
	eb, err := base64.RawURLEncoding.DecodeString(k.E)
	if err != nil {
		return nil, errors.New("keys: jwk exponent is not base64url")
	}
	e := new(big.Int).SetBytes(eb)
	if !e.IsInt64() || e.Int64() < 3 || e.Int64() > int64(^uint32(0)>>1) {
		return nil, errors.New("keys: jwk exponent is out of range")
	}
	pub := &rsa.PublicKey{N: new(big.Int).SetBytes(nb), E: int(e.Int64())}
	if pub.N.BitLen() < MinRSABits {
		return nil, errors.New("keys: jwk modulus is too small")
	}
	return pub, nil
}

// Handler serves the provider's key set on GET and HEAD. The document is
// encoded once.
func Handler(p *Provider, maxAge time.Duration) (http.Handler, error) {
	body, err := json.Marshal(p.PublicKeySet())
	if err != nil {
		return nil, err
	}
	cacheControl := "public, max-age=" + strconv.Itoa(int(maxAge.Seconds()))
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, http.StatusText(http.StatusMethodNotAllowed), http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("Cache-Control", cacheControl)
		w.WriteHeader(http.StatusOK)
		if r.Method == http.MethodGet {
			_, _ = w.Write(body)
		}
	}), nil
}
