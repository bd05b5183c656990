package types

import "fmt"

// ProviderConfig selects the chat-completion backend for a turn. It is chosen
// per operator or defaulted from configuration.
type ProviderConfig struct {
	Provider   string `json:"provider"`
	Model      string `json:"model"`
	Credential string `json:"-"`
}

// String renders the config with the credential masked so it is safe to log.
func (c ProviderConfig) String() string {
	return fmt.Sprintf("%s/%s (key %s)", c.Provider, c.Model, MaskCredential(c.Credential))
}

// MaskCredential hides all but the last four characters of a credential.
func MaskCredential(key string) string {
	if key == "" {
		return "<unset>"
	}
	if len(key) <= 8 {
		return "****"
	}
	return "****" + key[len(key)-4:]
}
