package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sirosfoundation/go-nfe/pkg/document"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

const minimalConfig = `
emitter:
  stateCode: "33"
  cnpj: "14200166000187"
signing:
  mode: file-pem
  pem:
    keyFile: /etc/nfe/emitter.key
    certFile: /etc/nfe/emitter.crt
`

func TestLoadAppliesDefaults(t *testing.T) {
	cfg, err := Load(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, "homologation", cfg.Emitter.Environment)
	assert.Equal(t, document.Homologation, cfg.Environment())
	assert.Equal(t, 30*time.Second, cfg.Transport.Timeout)
	assert.Equal(t, "epec", cfg.Contingency.Mode)
	assert.Equal(t, 5*time.Minute, cfg.Contingency.ReconcileInterval)
	assert.Equal(t, 5*time.Minute, cfg.Contingency.AvailabilityTTL)
	assert.Equal(t, 5, cfg.Contingency.RetryCeiling)
	assert.Equal(t, "memory", cfg.Storage.Type)
	assert.Equal(t, "nfe", cfg.Storage.MongoDB.Database)
}

func TestLoadExpandsEnvironment(t *testing.T) {
	t.Setenv("TEST_PFX_PASSWORD", "s3cret")

	cfg, err := Load(writeConfig(t, `
emitter:
  environment: production
  stateCode: "35"
  cnpj: "14200166000187"
signing:
  mode: file-pfx
  pfx:
    path: /etc/nfe/emitter.pfx
    password: ${TEST_PFX_PASSWORD}
`))
	require.NoError(t, err)

	assert.Equal(t, "s3cret", cfg.Signing.PFX.Password)
	assert.Equal(t, document.Production, cfg.Environment())
}

func TestLoadFullConfig(t *testing.T) {
	cfg, err := Load(writeConfig(t, `
emitter:
  environment: homologation
  stateCode: "33"
  cnpj: "14200166000187"
transport:
  timeout: 10s
  endpointOverrides:
    "33/NFeStatusServico4": https://proxy.internal/status
contingency:
  mode: offline
  reconcileInterval: 30s
  retryCeiling: 8
  recoverableCodes: [539]
signing:
  mode: pkcs11
  pkcs11:
    modulePath: /usr/lib/opensc-pkcs11.so
    slotLabel: emitter
    pin: "1234"
    keyLabel: nfe-signing
storage:
  type: mongodb
  mongodb:
    uri: mongodb://localhost:27017
`))
	require.NoError(t, err)

	assert.Equal(t, 10*time.Second, cfg.Transport.Timeout)
	assert.Equal(t, "https://proxy.internal/status", cfg.Transport.EndpointOverrides["33/NFeStatusServico4"])
	assert.Equal(t, "offline", cfg.Contingency.Mode)
	assert.Equal(t, 8, cfg.Contingency.RetryCeiling)
	assert.Equal(t, []int{539}, cfg.Contingency.RecoverableCodes)
	assert.Equal(t, "nfe-signing", cfg.Signing.PKCS11.KeyLabel)
	assert.Equal(t, "mongodb://localhost:27017", cfg.Storage.MongoDB.URI)
}

func TestLoadValidation(t *testing.T) {
	cases := []struct {
		name    string
		content string
		want    string
	}{
		{
			"bad environment",
			`
emitter:
  environment: staging
  stateCode: "33"
  cnpj: "14200166000187"
signing:
  mode: file-pem
  pem: {keyFile: a, certFile: b}
`,
			"emitter.environment",
		},
		{
			"bad state code",
			`
emitter:
  stateCode: "3"
  cnpj: "14200166000187"
signing:
  mode: file-pem
  pem: {keyFile: a, certFile: b}
`,
			"emitter.stateCode",
		},
		{
			"pem without files",
			`
emitter:
  stateCode: "33"
  cnpj: "14200166000187"
signing:
  mode: file-pem
`,
			"signing.pem",
		},
		{
			"pkcs11 without module",
			`
emitter:
  stateCode: "33"
  cnpj: "14200166000187"
signing:
  mode: pkcs11
`,
			"signing.pkcs11.modulePath",
		},
		{
			"mongodb without uri",
			`
emitter:
  stateCode: "33"
  cnpj: "14200166000187"
signing:
  mode: file-pem
  pem: {keyFile: a, certFile: b}
storage:
  type: mongodb
`,
			"storage.mongodb.uri",
		},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			_, err := Load(writeConfig(t, c.content))
			require.Error(t, err)
			assert.Contains(t, err.Error(), c.want)
		})
	}
}

func TestLoadMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}
