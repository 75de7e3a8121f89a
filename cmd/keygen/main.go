// Command keygen creates an RSA signing key pair for the auth service and
// prints it in the form the services read it:
//
//	$ keygen
//	JWT_PRIVATE_KEY=MIIEv...
//	JWT_PUBLIC_KEY=MIIBI...
//	JWT_KEY_ID=3q2-7w...
//
// The public key goes to gateways running the static validator; gateways
// in JWKS mode fetch it from the auth service instead.
package main

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"github.com/bytebites/bytebites-core/pkg/config"
	sserr "github.com/bytebites/bytebites-core/pkg/errors"
	"github.com/bytebites/bytebites-core/pkg/keys"
)

// Material is one generated key pair.
type Material struct {
	PrivateKey string `json:"private_key"`
	PublicKey  string `json:"public_key"`
	KeyID      string `json:"key_id"`
}

func main() {
	if err := run(os.Args[1:], os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "keygen: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, out io.Writer) error {
	fs := pflag.NewFlagSet("keygen", pflag.ContinueOnError)
	bits := fs.Int("bits", keys.MinRSABits, "RSA modulus size")
	kid := fs.String("kid", "", "key identifier (default: RFC 7638 thumbprint)")
	format := fs.String("format", "env", "output format: env or json")
	prefix := fs.String("prefix", "", "prefix for env output, e.g. AUTH_")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *format != "env" && *format != "json" {
		return sserr.Newf(sserr.CodeValidationFormat, "unknown format %q", *format)
	}

	m, err := generate(*bits, *kid)
	if err != nil {
		return err
	}
	if *format == "json" {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(m)
	}
	_, err = fmt.Fprintf(out, "%[1]sJWT_PRIVATE_KEY=%[2]s\n%[1]sJWT_PUBLIC_KEY=%[3]s\n%[1]sJWT_KEY_ID=%[4]s\n",
		*prefix, m.PrivateKey, m.PublicKey, m.KeyID)
	return err
}

// generate creates a key pair and loads it back through keys.NewProvider,
// so anything printed is accepted by the auth service.
func generate(bits int, kid string) (*Material, error) {
	if bits < keys.MinRSABits {
		return nil, sserr.Newf(sserr.CodeValidation, "bits must be at least %d", keys.MinRSABits)
	}
	priv, err := rsa.GenerateKey(rand.Reader, bits)
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeInternal, "generate key")
	}
	der, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeInternal, "encode private key")
	}
	pub, err := x509.MarshalPKIXPublicKey(&priv.PublicKey)
	if err != nil {
		return nil, sserr.Wrap(err, sserr.CodeInternal, "encode public key")
	}

	m := &Material{
		PrivateKey: base64.StdEncoding.EncodeToString(der),
		PublicKey:  base64.StdEncoding.EncodeToString(pub),
	}
	p, err := keys.NewProvider(keys.Config{
		PrivateKey: config.Secret(m.PrivateKey),
		PublicKey:  m.PublicKey,
		KeyID:      kid,
	})
	if err != nil {
		return nil, err
	}
	m.KeyID = p.KeyID()
	return m, nil
}
