package app

import (
	"errors"
	"fmt"

	"github.com/Anix003/aura-seer/cmd/internal/auth"
)

// minJWTSecretBytes is the minimum HS256 secret length under the strong-secret policy.
const minJWTSecretBytes = 32

// ValidateSecurityConfig enforces the startup security policy. It fails fast
// rather than serving with a weak token secret.
func ValidateSecurityConfig(cfg Config, authCfg auth.Config) error {
	if !cfg.RequireStrongSecret {
		return nil
	}

	switch authCfg.Mode {
	case auth.ModeJWT, "":
		// Measured in bytes: the secret is used as raw key material.
		if n := len(authCfg.JWTSecret); n < minJWTSecretBytes {
			return fmt.Errorf("security policy: AURA_REQUIRE_STRONG_SECRET=true but AURA_JWT_SECRET is %d bytes (min %d)", n, minJWTSecretBytes)
		}
	case auth.ModePaseto:
		if authCfg.PasetoV4PublicKeyHex == "" && authCfg.PasetoV4SecretKeyHex == "" {
			return errors.New("security policy: paseto mode requires a v4 public or secret key")
		}
	}
	return nil
}
