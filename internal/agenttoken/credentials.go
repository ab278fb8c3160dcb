// Package agenttoken implements the Agent Token Service (C4):
// client-credential minting/verification for agent-to-agent calls.
package agenttoken

import (
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// ClientCredential is one registered client_id/client_secret pair and
// the upstream agents it is allowed to address.
type ClientCredential struct {
	ClientID       string   `json:"clientId"`
	ClientSecret   string   `json:"clientSecret"`
	AllowedTargets []string `json:"allowedTargets"`
}

// CredentialStore resolves a client_id/client_secret pair to the
// targets it's allowed to reach. Generalizes the corpus's
// environment-variable credential provider to a fixed registry of
// agent-to-agent clients (spec §4.4 "Mint").
type CredentialStore struct {
	byClientID map[string]ClientCredential
}

// NewCredentialStore builds a store from an explicit list, typically
// produced by loading env vars and/or a secrets file.
func NewCredentialStore(creds []ClientCredential) *CredentialStore {
	byClientID := make(map[string]ClientCredential, len(creds))
	for _, c := range creds {
		byClientID[c.ClientID] = c
	}
	return &CredentialStore{byClientID: byClientID}
}

// LoadCredentialStore builds a store from the environment
// (PLOINKY_AGENT_CLIENT_ID / PLOINKY_AGENT_CLIENT_SECRET /
// PLOINKY_AGENT_ALLOWED_TARGETS, comma-separated) merged with an
// optional JSON credentials file (a []ClientCredential array).
func LoadCredentialStore(credentialsFile string) (*CredentialStore, error) {
	var creds []ClientCredential

	if id := os.Getenv("PLOINKY_AGENT_CLIENT_ID"); id != "" {
		creds = append(creds, ClientCredential{
			ClientID:       id,
			ClientSecret:   os.Getenv("PLOINKY_AGENT_CLIENT_SECRET"),
			AllowedTargets: splitCSV(os.Getenv("PLOINKY_AGENT_ALLOWED_TARGETS")),
		})
	}

	if credentialsFile != "" {
		data, err := os.ReadFile(credentialsFile)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("agenttoken: read credentials file: %w", err)
			}
		} else {
			var fileCreds []ClientCredential
			if err := json.Unmarshal(data, &fileCreds); err != nil {
				return nil, fmt.Errorf("agenttoken: parse credentials file: %w", err)
			}
			creds = append(creds, fileCreds...)
		}
	}

	return NewCredentialStore(creds), nil
}

func splitCSV(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(s, ",") {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// Verify checks clientID/clientSecret using a constant-time comparison
// (spec §4.4: "compared constant-time against a configured list") and
// returns the allowed targets on success.
func (s *CredentialStore) Verify(clientID, clientSecret string) ([]string, bool) {
	cred, ok := s.byClientID[clientID]
	if !ok {
		return nil, false
	}
	if subtle.ConstantTimeCompare([]byte(cred.ClientSecret), []byte(clientSecret)) != 1 {
		return nil, false
	}
	return cred.AllowedTargets, true
}
