package main

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bytebites/bytebites-core/internal/testutil"
	sserr "github.com/bytebites/bytebites-core/pkg/errors"
	"github.com/bytebites/bytebites-core/pkg/gateway"
	"github.com/bytebites/bytebites-core/pkg/validator"
)

func env(vars map[string]string) func(string) (string, bool) {
	return func(k string) (string, bool) {
		v, ok := vars[k]
		return v, ok
	}
}

func TestLoadConfig_Defaults(t *testing.T) {
	t.Parallel()
	cfg, err := loadConfig(nil, env(map[string]string{
		"GATEWAY_JWKS_URI": "http://auth:8081/.well-known/jwks.json",
	}))
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Server.Addr)
	assert.Equal(t, ":9090", cfg.AdminAddr)
	assert.Equal(t, validator.ModeJWKS, cfg.Validator.Mode)
	assert.Equal(t, gateway.DefaultOpenEndpoints, cfg.Gateway.OpenEndpoints)
	assert.Len(t, cfg.Gateway.Routes, 4)
}

func TestLoadConfig_Rejects(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		vars map[string]string
	}{
		{name: "no key source", vars: map[string]string{}},
		{
			name: "both strategies configured",
			vars: map[string]string{
				"GATEWAY_JWKS_URI":           "http://auth:8081/.well-known/jwks.json",
				"GATEWAY_STATIC_HMAC_SECRET": "c2VjcmV0",
			},
		},
		{
			name: "bad route",
			vars: map[string]string{
				"GATEWAY_JWKS_URI": "http://auth:8081/.well-known/jwks.json",
				"GATEWAY_ROUTES":   "/api/orders",
			},
		},
		{
			name: "bad admin address",
			vars: map[string]string{
				"GATEWAY_JWKS_URI":   "http://auth:8081/.well-known/jwks.json",
				"GATEWAY_ADMIN_ADDR": "metrics",
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := loadConfig(nil, env(tt.vars))
			require.Error(t, err)
			assert.True(t, sserr.IsValidation(err), "got %v", err)
		})
	}
}

func TestKeyWarmer_FailureIsLoggedNotFatal(t *testing.T) {
	t.Parallel()
	jwks := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer jwks.Close()

	v, err := validator.New(validator.Config{
		Mode: validator.ModeJWKS, JWKSURI: jwks.URL,
		CacheTTL: time.Minute, MinRefreshInterval: time.Second, FetchTimeout: time.Second,
	})
	require.NoError(t, err)

	var buf bytes.Buffer
	w := keyWarmer{v: v, logger: slog.New(slog.NewJSONHandler(&buf, nil))}
	require.NoError(t, w.Start(context.Background()))

	var entry map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &entry))
	assert.Equal(t, "WARN", entry["level"])
	assert.NotEmpty(t, entry["code"])

	// Requests are still rejected while keys are missing.
	_, err = v.Validate(context.Background(), testutil.SignRS256(t, testutil.RSAKey(t).Private, "k1",
		testutil.Claims("alice@example.com", []string{"CUSTOMER"}, time.Now(), time.Hour)))
	assert.True(t, sserr.IsTokenRejection(err))
}
