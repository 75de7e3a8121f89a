package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	sserr "github.com/bytebites/bytebites-core/pkg/errors"
)

type secret string

type keyConfig struct {
	PrivateKey secret `env:"PRIVATE_KEY" yaml:"private_key" json:"private_key" required:"true"`
	KeyID      string `env:"KEY_ID" yaml:"key_id" json:"key_id"`
}

type serviceConfig struct {
	Addr          string        `env:"ADDR" envDefault:":8080" yaml:"addr" json:"addr"`
	ExpirationMS  int64         `env:"EXPIRATION_MS" envDefault:"86400000" yaml:"expiration_ms" json:"expiration_ms"`
	Debug         bool          `env:"DEBUG" yaml:"debug" json:"debug"`
	FetchTimeout  time.Duration `env:"FETCH_TIMEOUT" envDefault:"5s" yaml:"fetch_timeout" json:"fetch_timeout"`
	OpenEndpoints []string      `env:"OPEN_ENDPOINTS" envDefault:"/auth/register,/auth/login" yaml:"open_endpoints" json:"open_endpoints"`
	Keys          keyConfig     `env:"JWT" yaml:"keys" json:"keys"`
}

type portConfig struct {
	Port int `env:"PORT" envDefault:"8080"`
}

func (c *portConfig) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return errors.New("port out of range")
	}
	return nil
}

func envMap(m map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := m[k]
		return v, ok
	}
}

func writeFile(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))
	return path
}

func TestLoad_DefaultsThenEnv(t *testing.T) {
	t.Parallel()
	var cfg serviceConfig
	err := New().WithEnvPrefix("auth").WithLookup(envMap(map[string]string{
		"AUTH_JWT_PRIVATE_KEY": "MIIE",
		"AUTH_OPEN_ENDPOINTS":  " /a , ,/b ",
		"AUTH_DEBUG":           "true",
	})).Load(&cfg)

	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Addr)
	assert.Equal(t, int64(86400000), cfg.ExpirationMS)
	assert.Equal(t, 5*time.Second, cfg.FetchTimeout)
	assert.True(t, cfg.Debug)
	assert.Equal(t, []string{"/a", "/b"}, cfg.OpenEndpoints)
	assert.Equal(t, secret("MIIE"), cfg.Keys.PrivateKey)
}

func TestLoad_FileLayers(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		file string
		body string
	}{
		{
			name: "yaml",
			file: "auth.yaml",
			body: "addr: \":9000\"\nfetch_timeout: 2s\nkeys:\n  private_key: from-file\n  key_id: k1\n",
		},
		{
			name: "json",
			file: "auth.json",
			body: `{"addr":":9000","fetch_timeout":2000000000,"keys":{"private_key":"from-file","key_id":"k1"}}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			path := writeFile(t, tt.file, tt.body)

			var cfg serviceConfig
			err := New().WithFile(path).WithLookup(envMap(map[string]string{
				"JWT_KEY_ID": "from-env",
			})).Load(&cfg)

			require.NoError(t, err)
			assert.Equal(t, ":9000", cfg.Addr)
			assert.Equal(t, 2*time.Second, cfg.FetchTimeout)
			assert.Equal(t, secret("from-file"), cfg.Keys.PrivateKey)
			assert.Equal(t, "from-env", cfg.Keys.KeyID, "env wins over file")
			assert.Equal(t, int64(86400000), cfg.ExpirationMS, "default survives")
		})
	}
}

func TestLoad_MissingFileIsSkipped(t *testing.T) {
	t.Parallel()
	var cfg portConfig
	err := New().WithFile(filepath.Join(t.TempDir(), "absent.yaml")).
		WithLookup(envMap(nil)).Load(&cfg)

	require.NoError(t, err)
	assert.Equal(t, 8080, cfg.Port)
}

func TestLoad_Errors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		cfg  any
		l    func(t *testing.T) *Loader
		code sserr.Code
	}{
		{
			name: "nil pointer",
			cfg:  (*portConfig)(nil),
			l:    func(*testing.T) *Loader { return New() },
			code: sserr.CodeInternalConfiguration,
		},
		{
			name: "non struct",
			cfg:  new(string),
			l:    func(*testing.T) *Loader { return New() },
			code: sserr.CodeInternalConfiguration,
		},
		{
			name: "traversal",
			cfg:  &portConfig{},
			l:    func(*testing.T) *Loader { return New().WithFile("../etc/app.yaml") },
			code: sserr.CodeInternalConfiguration,
		},
		{
			name: "unsupported extension",
			cfg:  &portConfig{},
			l: func(t *testing.T) *Loader {
				return New().WithFile(writeFile(t, "app.toml", "port = 1"))
			},
			code: sserr.CodeInternalConfiguration,
		},
		{
			name: "bad yaml",
			cfg:  &portConfig{},
			l: func(t *testing.T) *Loader {
				return New().WithFile(writeFile(t, "app.yaml", "port: [unclosed"))
			},
			code: sserr.CodeInternalConfiguration,
		},
		{
			name: "bad int from env",
			cfg:  &portConfig{},
			l: func(*testing.T) *Loader {
				return New().WithLookup(envMap(map[string]string{"PORT": "eighty"}))
			},
			code: sserr.CodeInternalConfiguration,
		},
		{
			name: "bad duration from env",
			cfg:  &serviceConfig{},
			l: func(*testing.T) *Loader {
				return New().WithLookup(envMap(map[string]string{
					"FETCH_TIMEOUT":   "soon",
					"JWT_PRIVATE_KEY": "k",
				}))
			},
			code: sserr.CodeInternalConfiguration,
		},
		{
			name: "required missing",
			cfg:  &serviceConfig{},
			l:    func(*testing.T) *Loader { return New().WithLookup(envMap(nil)) },
			code: sserr.CodeValidationRequired,
		},
		{
			name: "validator plain error",
			cfg:  &portConfig{},
			l: func(*testing.T) *Loader {
				return New().WithLookup(envMap(map[string]string{"PORT": "70000"}))
			},
			code: sserr.CodeValidation,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			err := tt.l(t).Load(tt.cfg)
			require.Error(t, err)
			assert.Equal(t, tt.code, sserr.GetCode(err), err.Error())
		})
	}
}

func TestLoad_RequiredNamesNestedPath(t *testing.T) {
	t.Parallel()
	var cfg serviceConfig
	err := New().WithLookup(envMap(nil)).Load(&cfg)

	require.Error(t, err)
	assert.Contains(t, err.Error(), "Keys.PrivateKey")
}

func TestWithFlags(t *testing.T) {
	t.Parallel()
	path := writeFile(t, "orders.yaml", "port: 9100\n")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse([]string{"--config", path}))

	var cfg portConfig
	require.NoError(t, New().WithFlags(fs).WithLookup(envMap(nil)).Load(&cfg))
	assert.Equal(t, 9100, cfg.Port)
}

func TestWithFlags_UnsetLeavesLoader(t *testing.T) {
	t.Parallel()
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	RegisterFlags(fs)
	require.NoError(t, fs.Parse(nil))

	l := New().WithFile("keep.yaml").WithFlags(fs)
	assert.Equal(t, "keep.yaml", l.filePath)
}

func TestMustLoad(t *testing.T) {
	t.Parallel()
	assert.NotPanics(t, func() {
		cfg := MustLoad[portConfig](New().WithLookup(envMap(nil)))
		assert.Equal(t, 8080, cfg.Port)
	})
	assert.Panics(t, func() {
		MustLoad[portConfig](New().WithLookup(envMap(map[string]string{"PORT": "0"})))
	})
}
