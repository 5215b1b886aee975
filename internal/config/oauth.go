package config

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type QFEnv string

const (
	EnvPrelive    QFEnv = "prelive"
	EnvProduction QFEnv = "production"
)

type baseURLs struct {
	auth string
	api  string
}

var envURLs = map[QFEnv]baseURLs{
	EnvPrelive: {
		auth: "https://prelive-oauth2.quran.foundation",
		api:  "https://apis-prelive.quran.foundation",
	},
	EnvProduction: {
		auth: "https://oauth2.quran.foundation",
		api:  "https://apis.quran.foundation",
	},
}

// ClientAuthMode selects how the client authenticates at the token endpoint.
type ClientAuthMode int

const (
	// ClientAuthBody sends client_id in the form body (public client).
	ClientAuthBody ClientAuthMode = iota
	// ClientAuthBasic sends client_id:client_secret as HTTP Basic credentials.
	ClientAuthBasic
)

func (m ClientAuthMode) String() string {
	if m == ClientAuthBasic {
		return "basic"
	}
	return "body"
}

type OAuthConfig struct {
	Env           QFEnv
	ClientID      string
	ClientSecret  string
	CookieSecret  string
	RedirectURI   string
	AuthBaseURL   string
	APIBaseURL    string
	Scopes        []string
	TokenTimeout  time.Duration
	VerifyIDToken bool
	ClientAuth    ClientAuthMode
}

func (c OAuthConfig) AuthorizeURL() string {
	return strings.TrimRight(c.AuthBaseURL, "/") + "/oauth2/auth"
}

func (c OAuthConfig) TokenURL() string {
	return strings.TrimRight(c.AuthBaseURL, "/") + "/oauth2/token"
}

type oauthEnv struct {
	Env           string        `env:"QF_ENV" envDefault:"prelive"`
	ClientID      string        `env:"QF_CLIENT_ID,required,notEmpty"`
	ClientSecret  string        `env:"QF_CLIENT_SECRET"`
	CookieSecret  string        `env:"QF_OAUTH_COOKIE_SECRET,required,notEmpty"`
	RedirectURI   string        `env:"QF_OAUTH_REDIRECT_URI,required,notEmpty"`
	AuthBaseURL   string        `env:"QF_AUTH_BASE_URL"`
	APIBaseURL    string        `env:"QF_API_BASE_URL"`
	Scopes        []string      `env:"QF_OAUTH_SCOPES" envSeparator:" " envDefault:"offline_access user collection openid"`
	TokenTimeout  time.Duration `env:"QF_TOKEN_TIMEOUT" envDefault:"15s"`
	VerifyIDToken bool          `env:"QF_VERIFY_ID_TOKEN"`
}

// LoadOAuth reads the OAuth client settings from the process environment.
func LoadOAuth() (*OAuthConfig, error) {
	var raw oauthEnv
	if err := env.Parse(&raw); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	qfEnv := EnvPrelive
	if strings.EqualFold(strings.TrimSpace(raw.Env), string(EnvProduction)) {
		qfEnv = EnvProduction
	}

	urls := envURLs[qfEnv]
	if v := strings.TrimSpace(raw.AuthBaseURL); v != "" {
		urls.auth = v
	}
	if v := strings.TrimSpace(raw.APIBaseURL); v != "" {
		urls.api = v
	}

	cfg := &OAuthConfig{
		Env:           qfEnv,
		ClientID:      strings.TrimSpace(raw.ClientID),
		ClientSecret:  strings.TrimSpace(raw.ClientSecret),
		CookieSecret:  strings.TrimSpace(raw.CookieSecret),
		RedirectURI:   strings.TrimSpace(raw.RedirectURI),
		AuthBaseURL:   urls.auth,
		APIBaseURL:    urls.api,
		Scopes:        trimFields(raw.Scopes),
		TokenTimeout:  raw.TokenTimeout,
		VerifyIDToken: raw.VerifyIDToken,
		ClientAuth:    ClientAuthBody,
	}
	if cfg.ClientSecret != "" {
		cfg.ClientAuth = ClientAuthBasic
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// LoadDotEnv loads the given dotenv files into the environment, skipping
// files that do not exist. Variables already set are left untouched.
func LoadDotEnv(files ...string) error {
	for _, file := range files {
		if err := godotenv.Load(file); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return fmt.Errorf("failed to load %s: %w", file, err)
		}
	}
	return nil
}

func trimFields(values []string) []string {
	result := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			result = append(result, v)
		}
	}
	return result
}
