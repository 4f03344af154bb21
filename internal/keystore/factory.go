package keystore

import (
	"fmt"

	"github.com/sirosfoundation/go-nfe/internal/config"
	"github.com/sirosfoundation/go-nfe/pkg/security"
)

// Capability is a closable signing capability. Both file and PKCS#11
// backends satisfy it.
type Capability interface {
	security.SigningCapability
	Close() error
}

// NewCapability creates the signing capability selected by the
// configuration.
func NewCapability(cfg *config.SigningConfig) (Capability, error) {
	switch cfg.Mode {
	case "file-pem":
		return LoadPEM(cfg.PEM.KeyFile, cfg.PEM.CertFile)
	case "file-pfx":
		return LoadPFX(cfg.PFX.Path, cfg.PFX.Password)
	case "pkcs11":
		return NewPKCS11Capability(&PKCS11Config{
			ModulePath: cfg.PKCS11.ModulePath,
			SlotLabel:  cfg.PKCS11.SlotLabel,
			SlotID:     cfg.PKCS11.SlotID,
			PIN:        cfg.PKCS11.PIN,
			KeyLabel:   cfg.PKCS11.KeyLabel,
		})
	default:
		return nil, fmt.Errorf("unknown signing mode: %s", cfg.Mode)
	}
}
