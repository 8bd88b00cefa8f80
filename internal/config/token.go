package config

import (
	"fmt"

	"github.com/google/uuid"
)

const tokenAccount = "api_token"

// GetAPIToken returns the shared bearer token for the local HTTP API,
// generating and persisting a fresh one on first use. The daemon and
// the CLI both read the same token, so a CLI on the same machine is
// authorized automatically.
func GetAPIToken(kc Keychain) (string, error) {
	if tok, err := kc.Get(keychainService, tokenAccount); err == nil && tok != "" {
		return tok, nil
	}

	tok := uuid.NewString()
	if err := kc.Set(keychainService, tokenAccount, tok); err != nil {
		return "", fmt.Errorf("persisting API token: %w", err)
	}
	return tok, nil
}
