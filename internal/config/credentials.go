package config

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/caarlos0/env/v9"
	"github.com/hashicorp/go-multierror"
)

// Credentials are read from the environment only, never from the config
// file. The backend and speech credentials are mandatory; transport
// credentials are checked against the enabled channels.
type Credentials struct {
	DifyAPIKey string `env:"DIFY_API_KEY,required,notEmpty"`
	DifyAPIURL string `env:"DIFY_API_URL,required,notEmpty"`
	LovoAPIKey string `env:"GENNY_LOVO_API_KEY,required,notEmpty"`
	LovoAPIURL string `env:"GENNY_LOVO_API_URL,required,notEmpty"`

	WhatsAppAccessToken   string `env:"WHATSAPP_ACCESS_TOKEN"`
	WhatsAppVerifyToken   string `env:"WHATSAPP_VERIFY_TOKEN"`
	WhatsAppAppSecret     string `env:"WHATSAPP_APP_SECRET"`
	WhatsAppPhoneNumberID string `env:"WHATSAPP_PHONE_NUMBER_ID"`

	TelegramBotToken string `env:"TELEGRAM_BOT_TOKEN"`
}

// ErrMissingCredentials wraps every credential failure so callers can exit
// with a startup error.
var ErrMissingCredentials = errors.New("missing credentials")

// LoadCredentials reads credentials from the process environment.
func LoadCredentials() (Credentials, error) {
	return parseCredentials(env.Options{})
}

// LoadCredentialsFrom reads credentials from the given variables instead of
// the process environment.
func LoadCredentialsFrom(environ map[string]string) (Credentials, error) {
	return parseCredentials(env.Options{Environment: environ})
}

func parseCredentials(opts env.Options) (Credentials, error) {
	var c Credentials
	if err := env.ParseWithOptions(&c, opts); err != nil {
		return Credentials{}, fmt.Errorf("%w: %w", ErrMissingCredentials, err)
	}
	return c, nil
}

// ValidateFor checks the transport credentials required by cfg.
func (c Credentials) ValidateFor(cfg *Config) error {
	var result *multierror.Error
	if cfg.Channels.WhatsApp.Enabled {
		if c.WhatsAppAccessToken == "" {
			result = multierror.Append(result, errors.New("WHATSAPP_ACCESS_TOKEN is required when whatsapp is enabled"))
		}
		if c.WhatsAppVerifyToken == "" {
			result = multierror.Append(result, errors.New("WHATSAPP_VERIFY_TOKEN is required when whatsapp is enabled"))
		}
		if c.PhoneNumberID(cfg) == "" {
			result = multierror.Append(result, errors.New("channels.whatsapp.phoneNumberId or WHATSAPP_PHONE_NUMBER_ID is required when whatsapp is enabled"))
		}
	}
	if cfg.Channels.Telegram.Enabled && c.TelegramBotToken == "" {
		result = multierror.Append(result, errors.New("TELEGRAM_BOT_TOKEN is required when telegram is enabled"))
	}
	if err := result.ErrorOrNil(); err != nil {
		return fmt.Errorf("%w: %w", ErrMissingCredentials, err)
	}
	return nil
}

// PhoneNumberID prefers the config file value over the environment.
func (c Credentials) PhoneNumberID(cfg *Config) string {
	if cfg.Channels.WhatsApp.PhoneNumberID != "" {
		return cfg.Channels.WhatsApp.PhoneNumberID
	}
	return c.WhatsAppPhoneNumberID
}

var credentialVars = []string{
	"DIFY_API_KEY",
	"DIFY_API_URL",
	"GENNY_LOVO_API_KEY",
	"GENNY_LOVO_API_URL",
	"WHATSAPP_ACCESS_TOKEN",
	"WHATSAPP_VERIFY_TOKEN",
	"WHATSAPP_APP_SECRET",
	"WHATSAPP_PHONE_NUMBER_ID",
	"TELEGRAM_BOT_TOKEN",
}

// CredentialStatus reports which credential variables are set in environ,
// without requiring any of them. Values are never returned.
func CredentialStatus(environ map[string]string) map[string]bool {
	out := make(map[string]bool, len(credentialVars))
	for _, k := range credentialVars {
		out[k] = environ[k] != ""
	}
	return out
}

// Environ returns the process environment as a map.
func Environ() map[string]string {
	out := make(map[string]string)
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			out[k] = v
		}
	}
	return out
}
