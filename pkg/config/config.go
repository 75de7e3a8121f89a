// Package config loads service configuration from struct tags, an optional
// YAML or JSON file, and environment variables. Later layers win:
//
//	envDefault tag  <  config file  <  environment
//
// Three struct tags drive the loader:
//
//   - `env:"NAME"` maps the field to an environment variable (prefixed by
//     [Loader.WithEnvPrefix]; nested struct tags extend the prefix)
//   - `envDefault:"value"` applies when the field is still zero
//   - `required:"true"` rejects a field that is zero after all layers
//
// File decoding uses the `yaml` and `json` tags.
//
//	type GatewayConfig struct {
//	    Addr          string   `env:"ADDR" envDefault:":8080" yaml:"addr"`
//	    OpenEndpoints []string `env:"OPEN_ENDPOINTS" envDefault:"/auth/login" yaml:"open_endpoints"`
//	}
//
//	cfg := config.MustLoad[GatewayConfig](config.New().WithEnvPrefix("GATEWAY"))
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"gopkg.in/yaml.v3"

	sserr "github.com/bytebites/bytebites-core/pkg/errors"
)

// FileFlag is the flag name registered by [RegisterFlags].
const FileFlag = "config"

var durationType = reflect.TypeOf(time.Duration(0))

// Loader resolves configuration layers into a struct. It is not safe for
// concurrent use.
type Loader struct {
	envPrefix string
	filePath  string
	lookupEnv func(string) (string, bool)
}

// New returns a Loader that reads the process environment only.
func New() *Loader {
	return &Loader{lookupEnv: os.LookupEnv}
}

// WithEnvPrefix prefixes every env tag with prefix and an underscore. The
// prefix is upper-cased.
func (l *Loader) WithEnvPrefix(prefix string) *Loader {
	l.envPrefix = strings.ToUpper(prefix)
	return l
}

// WithFile sets a .yaml, .yml or .json file to load. A missing file is
// skipped.
func (l *Loader) WithFile(path string) *Loader {
	l.filePath = path
	return l
}

// WithLookup replaces the environment lookup. Tests use it to avoid
// touching the process environment.
func (l *Loader) WithLookup(lookup func(string) (string, bool)) *Loader {
	l.lookupEnv = lookup
	return l
}

// RegisterFlags adds the --config flag to fs.
func RegisterFlags(fs *pflag.FlagSet) {
	fs.String(FileFlag, "", "path to a YAML or JSON config file")
}

// WithFlags reads the --config flag from a parsed flag set. An unset flag
// leaves the loader unchanged.
func (l *Loader) WithFlags(fs *pflag.FlagSet) *Loader {
	if path, err := fs.GetString(FileFlag); err == nil && path != "" {
		l.filePath = path
	}
	return l
}

// Load fills cfg, which must be a non-nil pointer to a struct, and then
// validates it. Load failures carry [sserr.CodeInternalConfiguration];
// validation failures carry a VAL_xxx code.
func (l *Loader) Load(cfg any) error {
	rv := reflect.ValueOf(cfg)
	if rv.Kind() != reflect.Pointer || rv.IsNil() || rv.Elem().Kind() != reflect.Struct {
		return sserr.New(sserr.CodeInternalConfiguration,
			"config: Load requires a non-nil pointer to a struct")
	}
	rv = rv.Elem()

	if err := walk(rv, "", l.applyDefault); err != nil {
		return err
	}
	if err := l.loadFile(cfg); err != nil {
		return err
	}
	if err := walk(rv, l.envPrefix, l.applyEnv); err != nil {
		return err
	}
	return validate(cfg, rv)
}

// MustLoad loads a T or panics. Use it in main.
func MustLoad[T any](loader *Loader) T {
	var cfg T
	if err := loader.Load(&cfg); err != nil {
		panic(fmt.Sprintf("config: MustLoad failed: %v", err))
	}
	return cfg
}

func (l *Loader) loadFile(cfg any) error {
	if l.filePath == "" {
		return nil
	}
	if strings.Contains(l.filePath, "..") {
		return sserr.New(sserr.CodeInternalConfiguration,
			"config: file path must not contain \"..\"")
	}

	data, err := os.ReadFile(l.filePath)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		return sserr.Wrapf(err, sserr.CodeInternalConfiguration, "config: read %q", l.filePath)
	}

	switch ext := strings.ToLower(filepath.Ext(l.filePath)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, cfg)
	case ".json":
		err = json.Unmarshal(data, cfg)
	default:
		return sserr.Newf(sserr.CodeInternalConfiguration,
			"config: unsupported file extension %q", ext)
	}
	if err != nil {
		return sserr.Wrapf(err, sserr.CodeInternalConfiguration, "config: parse %q", l.filePath)
	}
	return nil
}

// visitFunc is called for every settable leaf field. prefix is the
// accumulated env prefix for the field's struct.
type visitFunc func(field reflect.Value, sf reflect.StructField, prefix string) error

// walk visits leaf fields depth-first. A nested struct's env tag is appended
// to the prefix of its children.
func walk(rv reflect.Value, prefix string, visit visitFunc) error {
	rt := rv.Type()
	for i := range rt.NumField() {
		field, sf := rv.Field(i), rt.Field(i)
		if !field.CanSet() {
			continue
		}
		if field.Kind() == reflect.Struct && sf.Type != durationType {
			if err := walk(field, joinEnv(prefix, sf.Tag.Get("env")), visit); err != nil {
				return err
			}
			continue
		}
		if err := visit(field, sf, prefix); err != nil {
			return err
		}
	}
	return nil
}

func joinEnv(prefix, name string) string {
	switch {
	case name == "":
		return prefix
	case prefix == "":
		return name
	default:
		return prefix + "_" + name
	}
}

func (l *Loader) applyDefault(field reflect.Value, sf reflect.StructField, _ string) error {
	def, ok := sf.Tag.Lookup("envDefault")
	if !ok || !field.IsZero() {
		return nil
	}
	if err := setField(field, def); err != nil {
		return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
			"config: default for field %q", sf.Name)
	}
	return nil
}

func (l *Loader) applyEnv(field reflect.Value, sf reflect.StructField, prefix string) error {
	name := sf.Tag.Get("env")
	if name == "" {
		return nil
	}
	key := joinEnv(prefix, name)
	val, ok := l.lookupEnv(key)
	if !ok {
		return nil
	}
	if err := setField(field, val); err != nil {
		return sserr.Wrapf(err, sserr.CodeInternalConfiguration,
			"config: field %q from %s", sf.Name, key)
	}
	return nil
}

// setField parses value into field. Supported kinds are string (including
// named string types such as secrets), bool, signed ints, time.Duration and
// []string (comma separated, trimmed, empty items dropped).
func setField(field reflect.Value, value string) error {
	if field.Type() == durationType {
		d, err := time.ParseDuration(value)
		if err != nil {
			return fmt.Errorf("parse duration %q: %w", value, err)
		}
		field.SetInt(int64(d))
		return nil
	}

	switch field.Kind() {
	case reflect.String:
		field.SetString(value)
	case reflect.Bool:
		b, err := strconv.ParseBool(value)
		if err != nil {
			return fmt.Errorf("parse bool %q: %w", value, err)
		}
		field.SetBool(b)
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, err := strconv.ParseInt(value, 10, field.Type().Bits())
		if err != nil {
			return fmt.Errorf("parse integer %q: %w", value, err)
		}
		field.SetInt(n)
	case reflect.Slice:
		if field.Type().Elem().Kind() != reflect.String {
			return fmt.Errorf("unsupported slice element type %s", field.Type().Elem().Kind())
		}
		var parts []string
		for _, p := range strings.Split(value, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		slice := reflect.MakeSlice(field.Type(), len(parts), len(parts))
		for i, p := range parts {
			slice.Index(i).SetString(p)
		}
		field.Set(slice)
	default:
		return fmt.Errorf("unsupported field type %s", field.Kind())
	}
	return nil
}
