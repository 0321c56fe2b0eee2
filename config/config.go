// Copyright (c) HashiCorp, Inc.
// SPDX-License-Identifier: MPL-2.0

// Package config loads the session settings from the environment and from
// dotenv files, and builds the oidc, store and authz values from them.
package config

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	env "github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/oauthlab/authsession/authz"
	"github.com/oauthlab/authsession/jwt"
	"github.com/oauthlab/authsession/oidc"
)

// DefaultEnvPrefix is prepended to every variable name.
const DefaultEnvPrefix = "AUTHSESSION_"

// ErrInvalidSettings is returned when the loaded settings can't be used.
var ErrInvalidSettings = errors.New("invalid settings")

// Settings is the environment-driven configuration.  Every variable is
// prefixed (see DefaultEnvPrefix), so Authority is read from
// AUTHSESSION_AUTHORITY.
type Settings struct {
	// Authority is the issuer URL used for discovery.
	Authority string `env:"AUTHORITY,required"`
	// ClientID is the registered public client id.
	ClientID string `env:"CLIENT_ID,required"`
	// ClientSecret is only needed by confidential clients.
	ClientSecret string `env:"CLIENT_SECRET"`

	RedirectURL           string `env:"REDIRECT_URL" envDefault:"http://127.0.0.1:8250/callback"`
	SilentRedirectURL     string `env:"SILENT_REDIRECT_URL"`
	PostLogoutRedirectURL string `env:"POST_LOGOUT_REDIRECT_URL"`

	// Scope is space delimited.
	Scope string `env:"SCOPE" envDefault:"openid profile email api.read api.write"`

	AutomaticSilentRenew     bool          `env:"AUTOMATIC_SILENT_RENEW" envDefault:"true"`
	SilentRequestTimeout     time.Duration `env:"SILENT_REQUEST_TIMEOUT" envDefault:"30s"`
	RenewLeadTime            time.Duration `env:"RENEW_LEAD_TIME" envDefault:"60s"`
	RevocationURL            string        `env:"REVOCATION_URL"`
	EndSessionURL            string        `env:"END_SESSION_URL"`
	LoadUserInfo             bool          `env:"LOAD_USER_INFO" envDefault:"true"`
	ValidateSubOnSilentRenew bool          `env:"VALIDATE_SUB_ON_SILENT_RENEW" envDefault:"true"`
	SigningAlgs              []string      `env:"SIGNING_ALGS" envDefault:"RS256" envSeparator:","`
	Audiences                []string      `env:"AUDIENCES" envSeparator:","`

	// ProviderCA is a PEM encoded CA certificate.  ProviderCAFile is read
	// when ProviderCA is empty.
	ProviderCA     string `env:"PROVIDER_CA"`
	ProviderCAFile string `env:"PROVIDER_CA_FILE"`

	Store StoreSettings `envPrefix:"STORE_"`
	Roles RoleSettings  `envPrefix:"ROLE_"`
}

// StoreSettings selects and configures the token store backends.
type StoreSettings struct {
	// Backend is one of memory, file or redis.
	Backend string `env:"BACKEND" envDefault:"file"`
	// Dir defaults to authsession under the user's config directory.
	Dir string `env:"DIR"`
	// EncryptionKey is a base64 encoded 32 byte key encrypting file values.
	EncryptionKey string        `env:"ENCRYPTION_KEY"`
	KeyPrefix     string        `env:"KEY_PREFIX"`
	SafetyMargin  time.Duration `env:"SAFETY_MARGIN" envDefault:"30s"`
	// RedisURL is a redis:// or rediss:// URL.
	RedisURL string `env:"REDIS_URL"`
}

// RoleSettings configures role extraction and comparison.
type RoleSettings struct {
	Prefix          string   `env:"PREFIX" envDefault:"ROLE_"`
	CaseInsensitive bool     `env:"CASE_INSENSITIVE" envDefault:"true"`
	TokenClaims     []string `env:"TOKEN_CLAIMS" envDefault:"roles,authorities,role" envSeparator:","`
	ProfileClaims   []string `env:"PROFILE_CLAIMS" envDefault:"role,roles" envSeparator:","`
	// JWKSURL, when set, turns on signature verification of access tokens
	// before their roles are trusted.
	JWKSURL string `env:"JWKS_URL"`
	// VerifyWithIssuer verifies access tokens with the keys published in the
	// authority's discovery document.  JWKSURL wins when both are set.
	VerifyWithIssuer bool `env:"VERIFY_WITH_ISSUER"`
}

// Load reads the dotenv files and the environment into Settings.  Variables
// already in the environment win over the files.
//
// Supported options: WithEnvFiles, WithEnvironment, WithPrefix
func Load(opt ...Option) (*Settings, error) {
	const op = "config.Load"
	opts := getOpts(opt...)

	environ := map[string]string{}
	for _, f := range opts.withEnvFiles {
		vals, err := godotenv.Read(f)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			return nil, fmt.Errorf("%s: load %s: %w", op, f, err)
		}
		for k, v := range vals {
			environ[k] = v
		}
	}
	process := opts.withEnvironment
	if process == nil {
		process = processEnv()
	}
	for k, v := range process {
		environ[k] = v
	}

	var s Settings
	if err := env.ParseWithOptions(&s, env.Options{
		Prefix:      opts.withPrefix,
		Environment: environ,
	}); err != nil {
		return nil, fmt.Errorf("%s: %w: %w", op, ErrInvalidSettings, err)
	}
	s.sanitize()
	if err := s.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return &s, nil
}

func processEnv() map[string]string {
	m := map[string]string{}
	for _, kv := range os.Environ() {
		if k, v, ok := strings.Cut(kv, "="); ok {
			m[k] = v
		}
	}
	return m
}

func (s *Settings) sanitize() {
	s.Store.Backend = strings.ToLower(strings.TrimSpace(s.Store.Backend))
	s.SigningAlgs = trimAll(s.SigningAlgs)
	s.Audiences = trimAll(s.Audiences)
	s.Roles.TokenClaims = trimAll(s.Roles.TokenClaims)
	s.Roles.ProfileClaims = trimAll(s.Roles.ProfileClaims)
}

// Validate checks the settings which can be checked without I/O.
func (s *Settings) Validate() error {
	const op = "Settings.Validate"
	switch s.Store.Backend {
	case BackendMemory, BackendFile:
	case BackendRedis:
		if s.Store.RedisURL == "" {
			return fmt.Errorf("%s: redis backend needs a redis url: %w", op, ErrInvalidSettings)
		}
	default:
		return fmt.Errorf("%s: unknown store backend %q: %w", op, s.Store.Backend, ErrInvalidSettings)
	}
	if s.Store.EncryptionKey != "" {
		if _, err := s.encryptionKey(); err != nil {
			return fmt.Errorf("%s: %w", op, err)
		}
	}
	if s.Store.SafetyMargin < 0 {
		return fmt.Errorf("%s: safety margin is negative: %w", op, ErrInvalidSettings)
	}
	return nil
}

// Scopes splits Scope on whitespace.
func (s *Settings) Scopes() []string {
	return strings.Fields(s.Scope)
}

// CA returns the provider CA PEM, reading ProviderCAFile if needed.
func (s *Settings) CA() (string, error) {
	const op = "Settings.CA"
	if s.ProviderCA != "" || s.ProviderCAFile == "" {
		return s.ProviderCA, nil
	}
	b, err := os.ReadFile(filepath.Clean(s.ProviderCAFile))
	if err != nil {
		return "", fmt.Errorf("%s: %w", op, err)
	}
	return string(b), nil
}

// OIDCConfig builds the oidc.Config.
func (s *Settings) OIDCConfig() (*oidc.Config, error) {
	const op = "Settings.OIDCConfig"
	ca, err := s.CA()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	algs := make([]oidc.Alg, 0, len(s.SigningAlgs))
	for _, a := range s.SigningAlgs {
		algs = append(algs, oidc.Alg(a))
	}
	c, err := oidc.NewConfig(s.Authority, s.ClientID, s.RedirectURL,
		oidc.WithClientSecret(oidc.ClientSecret(s.ClientSecret)),
		oidc.WithScopes(s.Scopes()...),
		oidc.WithAudiences(s.Audiences...),
		oidc.WithProviderCA(ca),
		oidc.WithSupportedSigningAlgs(algs...),
		oidc.WithSilentRedirectUrl(s.SilentRedirectURL),
		oidc.WithPostLogoutRedirectUrl(s.PostLogoutRedirectURL),
		oidc.WithAutomaticSilentRenew(s.AutomaticSilentRenew),
		oidc.WithSilentRequestTimeout(s.SilentRequestTimeout),
		oidc.WithRenewLeadTime(s.RenewLeadTime),
		oidc.WithRevocationUrl(s.RevocationURL),
		oidc.WithEndSessionUrl(s.EndSessionURL),
		oidc.WithLoadUserInfo(s.LoadUserInfo),
		oidc.WithValidateSubOnSilentRenew(s.ValidateSubOnSilentRenew),
	)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return c, nil
}

// Normalizer builds the role normalizer.
func (s *Settings) Normalizer() *authz.Normalizer {
	return authz.NewNormalizer(
		authz.WithPrefix(s.Roles.Prefix),
		authz.WithCaseInsensitive(s.Roles.CaseInsensitive),
	)
}

// ClaimsExtractor builds the role claims extractor.  With a JWKS URL, or
// with VerifyWithIssuer, the key set is fetched through the provider CA and
// ctx bounds the key set's lifetime.
func (s *Settings) ClaimsExtractor(ctx context.Context) (*authz.ClaimsExtractor, error) {
	const op = "Settings.ClaimsExtractor"
	opts := []authz.Option{
		authz.WithTokenRoleClaims(s.Roles.TokenClaims...),
		authz.WithProfileRoleClaims(s.Roles.ProfileClaims...),
	}
	if s.Roles.JWKSURL == "" && !s.Roles.VerifyWithIssuer {
		return authz.NewClaimsExtractor(opts...), nil
	}
	ca, err := s.CA()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	var ks jwt.KeySet
	switch {
	case s.Roles.JWKSURL != "":
		ks, err = jwt.NewJSONWebKeySet(ctx, s.Roles.JWKSURL, ca)
	default:
		ks, err = jwt.NewOIDCDiscoveryKeySet(ctx, s.Authority, ca)
	}
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	opts = append(opts, authz.WithKeySet(ks))
	return authz.NewClaimsExtractor(opts...), nil
}

func (s *Settings) encryptionKey() ([]byte, error) {
	const op = "Settings.encryptionKey"
	if s.Store.EncryptionKey == "" {
		return nil, nil
	}
	k, err := base64.StdEncoding.DecodeString(s.Store.EncryptionKey)
	if err != nil {
		return nil, fmt.Errorf("%s: encryption key is not base64: %w", op, ErrInvalidSettings)
	}
	if len(k) != 32 {
		return nil, fmt.Errorf("%s: encryption key must be 32 bytes: %w", op, ErrInvalidSettings)
	}
	return k, nil
}

func trimAll(in []string) []string {
	out := in[:0]
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}
