// Package config handles configuration loading for the emitter.
//
// Configuration is loaded from a YAML file with support for
// environment variable expansion (${VAR} or $VAR syntax). This keeps
// certificate passwords and database credentials out of the file
// itself.
//
// # Configuration Sections
//
//   - emitter: issuer identity and target environment
//   - transport: authority endpoints and timeouts
//   - contingency: outage mode and reconciliation tuning
//   - signing: certificate storage (file-pem, file-pfx, or pkcs11)
//   - storage: submission record persistence (memory or mongodb)
//
// # Example Configuration
//
//	emitter:
//	  environment: homologation
//	  stateCode: "33"
//	  cnpj: "14200166000187"
//
//	signing:
//	  mode: file-pfx
//	  pfx:
//	    path: /etc/nfe/emitter.pfx
//	    password: ${PFX_PASSWORD}
//
//	storage:
//	  type: mongodb
//	  mongodb:
//	    uri: ${MONGODB_URI}
//	    database: nfe
//
// See [Load] for loading configuration from a file.
package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/sirosfoundation/go-nfe/pkg/document"
)

// Config is the root configuration structure
type Config struct {
	Emitter     EmitterConfig     `yaml:"emitter"`
	Transport   TransportConfig   `yaml:"transport"`
	Contingency ContingencyConfig `yaml:"contingency"`
	Signing     SigningConfig     `yaml:"signing"`
	Storage     StorageConfig     `yaml:"storage"`
}

// EmitterConfig identifies the issuer and target environment
type EmitterConfig struct {
	// Environment is "production" or "homologation"
	Environment string `yaml:"environment"`
	// StateCode is the issuer's two-digit state code
	StateCode string `yaml:"stateCode"`
	// CNPJ is the issuer's 14-digit registration
	CNPJ string `yaml:"cnpj"`
}

// TransportConfig holds authority transport settings
type TransportConfig struct {
	Timeout time.Duration `yaml:"timeout"`
	// EndpointOverrides maps "stateCode/service" to a full URL,
	// taking precedence over the built-in authority table
	EndpointOverrides map[string]string `yaml:"endpointOverrides"`
	MinTLSVersion     string            `yaml:"minTlsVersion"` // "1.2" or "1.3"
}

// ContingencyConfig holds outage handling settings
type ContingencyConfig struct {
	// Mode is "epec" or "offline"
	Mode              string        `yaml:"mode"`
	ReconcileInterval time.Duration `yaml:"reconcileInterval"`
	RetryCeiling      int           `yaml:"retryCeiling"`
	AvailabilityTTL   time.Duration `yaml:"availabilityTtl"`
	// RecoverableCodes are extra authority status codes treated as
	// recoverable rejections; affected documents settle as rejected
	// and may be resubmitted manually
	RecoverableCodes []int `yaml:"recoverableCodes"`
}

// SigningConfig holds certificate storage settings
type SigningConfig struct {
	// Mode determines where the signing certificate lives
	// - "file-pem": PEM key and certificate pair (development)
	// - "file-pfx": PKCS#12 bundle, the usual A1 distribution form
	// - "pkcs11": hardware token or smart card (A3)
	Mode string `yaml:"mode"`

	PEM    PEMConfig    `yaml:"pem"`
	PFX    PFXConfig    `yaml:"pfx"`
	PKCS11 PKCS11Config `yaml:"pkcs11"`

	// CheckRevocation enables an OCSP probe at startup
	CheckRevocation bool `yaml:"checkRevocation"`
}

// PEMConfig holds PEM key pair settings
type PEMConfig struct {
	KeyFile  string `yaml:"keyFile"`
	CertFile string `yaml:"certFile"`
}

// PFXConfig holds PKCS#12 bundle settings
type PFXConfig struct {
	Path string `yaml:"path"`
	// Password may be an env var reference like ${PFX_PASSWORD}
	Password string `yaml:"password"`
}

// PKCS11Config holds hardware token settings
type PKCS11Config struct {
	// Path to the PKCS#11 library (.so/.dylib/.dll)
	ModulePath string `yaml:"modulePath"`
	SlotLabel  string `yaml:"slotLabel"`
	SlotID     *int   `yaml:"slotId"`
	// PIN for authentication (can be env var reference like ${HSM_PIN})
	PIN      string `yaml:"pin"`
	KeyLabel string `yaml:"keyLabel"`
}

// StorageConfig holds record persistence settings
type StorageConfig struct {
	// Type is "memory" or "mongodb"
	Type    string        `yaml:"type"`
	MongoDB MongoDBConfig `yaml:"mongodb"`
}

// MongoDBConfig holds MongoDB connection settings
type MongoDBConfig struct {
	URI      string `yaml:"uri"`
	Database string `yaml:"database"`
}

// Load reads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables
	expanded := os.ExpandEnv(string(data))

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	cfg.applyDefaults()

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return &cfg, nil
}

// Environment maps the configured environment name to its code.
func (c *Config) Environment() document.Environment {
	if c.Emitter.Environment == "production" {
		return document.Production
	}
	return document.Homologation
}

func (c *Config) applyDefaults() {
	if c.Emitter.Environment == "" {
		c.Emitter.Environment = "homologation"
	}
	if c.Transport.Timeout == 0 {
		c.Transport.Timeout = 30 * time.Second
	}
	if c.Transport.MinTLSVersion == "" {
		c.Transport.MinTLSVersion = "1.2"
	}
	if c.Contingency.Mode == "" {
		c.Contingency.Mode = "epec"
	}
	if c.Contingency.ReconcileInterval == 0 {
		c.Contingency.ReconcileInterval = 5 * time.Minute
	}
	if c.Contingency.RetryCeiling == 0 {
		c.Contingency.RetryCeiling = 5
	}
	if c.Contingency.AvailabilityTTL == 0 {
		c.Contingency.AvailabilityTTL = 5 * time.Minute
	}
	if c.Signing.Mode == "" {
		c.Signing.Mode = "file-pem" // Default to PEM for development
	}
	if c.Storage.Type == "" {
		c.Storage.Type = "memory"
	}
	if c.Storage.MongoDB.Database == "" {
		c.Storage.MongoDB.Database = "nfe"
	}
}

func (c *Config) validate() error {
	switch c.Emitter.Environment {
	case "production", "homologation":
	default:
		return fmt.Errorf("emitter.environment must be 'production' or 'homologation', got '%s'", c.Emitter.Environment)
	}
	if len(c.Emitter.StateCode) != 2 {
		return fmt.Errorf("emitter.stateCode must be two digits, got '%s'", c.Emitter.StateCode)
	}
	if len(c.Emitter.CNPJ) != 14 {
		return fmt.Errorf("emitter.cnpj must be 14 digits, got '%s'", c.Emitter.CNPJ)
	}

	switch c.Contingency.Mode {
	case "epec", "offline":
	default:
		return fmt.Errorf("contingency.mode must be 'epec' or 'offline', got '%s'", c.Contingency.Mode)
	}

	switch c.Signing.Mode {
	case "file-pem":
		if c.Signing.PEM.KeyFile == "" || c.Signing.PEM.CertFile == "" {
			return fmt.Errorf("signing.pem.keyFile and signing.pem.certFile are required when mode is 'file-pem'")
		}
	case "file-pfx":
		if c.Signing.PFX.Path == "" {
			return fmt.Errorf("signing.pfx.path is required when mode is 'file-pfx'")
		}
	case "pkcs11":
		if c.Signing.PKCS11.ModulePath == "" {
			return fmt.Errorf("signing.pkcs11.modulePath is required when mode is 'pkcs11'")
		}
	default:
		return fmt.Errorf("signing.mode must be 'file-pem', 'file-pfx', or 'pkcs11', got '%s'", c.Signing.Mode)
	}

	switch c.Storage.Type {
	case "memory":
	case "mongodb":
		if c.Storage.MongoDB.URI == "" {
			return fmt.Errorf("storage.mongodb.uri is required when type is 'mongodb'")
		}
	default:
		return fmt.Errorf("storage.type must be 'memory' or 'mongodb', got '%s'", c.Storage.Type)
	}

	return nil
}
