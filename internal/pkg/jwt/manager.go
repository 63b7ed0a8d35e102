// internal/pkg/jwt/manager.go
package jwt

import (
	"fmt"
	"time"
)

type Config struct {
	Secret   string
	Issuer   string
	Audience string
	TTL      time.Duration
}

type Manager struct {
	Generator *Generator
	Verifier  *Verifier
}

// Build constructs the token manager from configuration. An empty signing
// secret is a configuration error: the service must refuse to issue or
// verify tokens rather than operate insecurely.
func Build(cfg Config) (*Manager, error) {
	if cfg.Secret == "" {
		return nil, fmt.Errorf("jwt signing secret is not configured")
	}
	if cfg.TTL <= 0 {
		cfg.TTL = 24 * time.Hour
	}

	secret := []byte(cfg.Secret)
	gen := NewGenerator(secret, cfg.Issuer, cfg.Audience, cfg.TTL)
	ver := NewVerifier(secret, cfg.Issuer, cfg.Audience)

	return &Manager{
		Generator: gen,
		Verifier:  ver,
	}, nil
}
