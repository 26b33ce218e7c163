package config

import "github.com/pelletier/go-toml/v2"

const redactedValue = "********"

// Redacted returns a copy with credentials masked. Empty secrets stay empty
// so the output still shows which ones are unset.
func (c Config) Redacted() Config {
	for _, secret := range []*string{
		&c.Paths.APIToken,
		&c.Browser.Password,
		&c.Transcription.DeepgramAPIKey,
		&c.LLM.APIKey,
		&c.Archive.AccessKeyID,
		&c.Archive.SecretAccessKey,
	} {
		if *secret != "" {
			*secret = redactedValue
		}
	}
	return c
}

// MarshalRedacted renders the effective configuration as TOML with secrets
// masked.
func (c *Config) MarshalRedacted() ([]byte, error) {
	return toml.Marshal(c.Redacted())
}
