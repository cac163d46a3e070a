package config

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/kelseyhightower/envconfig"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Redis    RedisConfig
	Chain    ChainConfig
	Auth     AuthConfig
	Session  SessionConfig
}

type ServerConfig struct {
	Host         string        `envconfig:"SERVER_HOST" default:"0.0.0.0"`
	Port         int           `envconfig:"SERVER_PORT" default:"8080"`
	ReadTimeout  time.Duration `envconfig:"SERVER_READ_TIMEOUT" default:"10s"`
	WriteTimeout time.Duration `envconfig:"SERVER_WRITE_TIMEOUT" default:"30s"`
	Environment  string        `envconfig:"ENVIRONMENT" default:"development"`
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type DatabaseConfig struct {
	Host            string        `envconfig:"DB_HOST" default:"localhost"`
	Port            int           `envconfig:"DB_PORT" default:"3306"`
	User            string        `envconfig:"DB_USER" default:"app"`
	Password        string        `envconfig:"DB_PASSWORD" default:"apppassword"`
	Name            string        `envconfig:"DB_NAME" default:"siwe_login"`
	MaxOpenConns    int           `envconfig:"DB_MAX_OPEN_CONNS" default:"25"`
	MaxIdleConns    int           `envconfig:"DB_MAX_IDLE_CONNS" default:"5"`
	ConnMaxLifetime time.Duration `envconfig:"DB_CONN_MAX_LIFETIME" default:"5m"`
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("%s:%s@tcp(%s:%d)/%s?charset=utf8mb4&parseTime=True&loc=UTC",
		d.User, d.Password, d.Host, d.Port, d.Name)
}

type RedisConfig struct {
	Host     string `envconfig:"REDIS_HOST" default:"localhost"`
	Port     int    `envconfig:"REDIS_PORT" default:"6379"`
	Password string `envconfig:"REDIS_PASSWORD" default:""`
	DB       int    `envconfig:"REDIS_DB" default:"0"`
}

func (r RedisConfig) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

type ChainConfig struct {
	RPCURL      string        `envconfig:"CHAIN_RPC_URL" default:""`
	Network     string        `envconfig:"CHAIN_NETWORK" default:"mainnet"`
	CallTimeout time.Duration `envconfig:"CHAIN_CALL_TIMEOUT" default:"8s"`
}

// AuthConfig is the authorization-policy surface of the login pipeline.
type AuthConfig struct {
	// NonceSecret keys the nonce MAC. Required in production.
	NonceSecret string `envconfig:"AUTH_NONCE_SECRET" default:"insecure-dev-secret"`

	// NonceLifespan is in seconds on the wire for parity with the
	// setting this replaces; 6000 is the historical default.
	NonceLifespan time.Duration `envconfig:"AUTH_NONCE_LIFESPAN" default:"6000s"`

	DefaultRole              string `envconfig:"AUTH_DEFAULT_ROLE" default:"subscriber"`
	SetRoleOnLogin           bool   `envconfig:"AUTH_SET_ROLE_ON_LOGIN" default:"true"`
	DisableRoleUpdates       bool   `envconfig:"AUTH_DISABLE_ROLE_UPDATES_ON_LOGIN" default:"false"`
	DisableOverwriteUserMeta bool   `envconfig:"AUTH_DISABLE_OVERWRITE_USER_META" default:"false"`

	UsersCanRegister         bool `envconfig:"AUTH_USERS_CAN_REGISTER" default:"false"`
	OverrideUsersCanRegister bool `envconfig:"AUTH_OVERRIDE_USERS_CAN_REGISTER" default:"false"`

	// RoleOverrides pins specific addresses to roles, e.g.
	// "0xabc...=editor,0xdef...=author".
	RoleOverrides string `envconfig:"AUTH_ROLE_OVERRIDES" default:""`

	// Token gate: ERC-20/721 contract plus the minimum balance needed
	// to log in at all. Empty contract disables the gate.
	RequiredTokenContract string `envconfig:"AUTH_REQUIRED_TOKEN_CONTRACT" default:""`
	RequiredTokenQuantity int64  `envconfig:"AUTH_REQUIRED_TOKEN_QUANTITY" default:"1"`

	// ERC-1155 role mapping: contract plus an ordered "role=tokenID"
	// list, e.g. "editor=1,admin=2". Later entries outrank earlier
	// ones when an address holds several of the mapped tokens.
	ERC1155Contract string `envconfig:"AUTH_ERC1155_CONTRACT" default:""`
	RoleMappings    string `envconfig:"AUTH_ROLE_MAPPINGS" default:""`

	// RedirectURL, when set, is returned instead of a completed login
	// for addresses that hold none of the mapped ERC-1155 tokens.
	RedirectURL string `envconfig:"AUTH_REDIRECT_URL" default:""`

	// AttributeMappings copies submitted attributes (e.g. ENS text
	// records) into user fields: "attrKey=metaKey" entries, with an
	// optional "!" suffix meaning never overwrite a non-empty value,
	// e.g. "com.twitter=twitter,email=email!".
	AttributeMappings string `envconfig:"AUTH_ATTRIBUTE_MAPPINGS" default:""`
}

type SessionConfig struct {
	Secret string        `envconfig:"SESSION_SECRET" default:"insecure-dev-secret"`
	TTL    time.Duration `envconfig:"SESSION_TTL" default:"336h"`
}

// RoleOverride pins one address to a role.
type RoleOverride struct {
	Address string
	Role    string
}

// RoleMapping binds a role to an ERC-1155 token ID. Order matters:
// the resolver checks every entry and the last held token wins, so
// callers list roles from least to most privileged.
type RoleMapping struct {
	Role    string
	TokenID *big.Int
}

// AttributeMapping routes a submitted attribute into a user field.
type AttributeMapping struct {
	AttributeKey string
	MetaKey      string
	NoOverwrite  bool
}

// ParseRoleOverrides parses the RoleOverrides option. Entries that are
// not "address=role" pairs are skipped, mirroring the forgiving
// parsing of the settings screen this replaces.
func (a AuthConfig) ParseRoleOverrides() []RoleOverride {
	var overrides []RoleOverride
	for _, entry := range splitEntries(a.RoleOverrides) {
		address, role, ok := strings.Cut(entry, "=")
		if !ok || address == "" || role == "" {
			continue
		}
		overrides = append(overrides, RoleOverride{
			Address: strings.TrimSpace(address),
			Role:    strings.TrimSpace(role),
		})
	}
	return overrides
}

// ParseRoleMappings parses the RoleMappings option, preserving order.
// Entries with a non-numeric token ID are skipped.
func (a AuthConfig) ParseRoleMappings() []RoleMapping {
	var mappings []RoleMapping
	for _, entry := range splitEntries(a.RoleMappings) {
		role, id, ok := strings.Cut(entry, "=")
		if !ok || role == "" {
			continue
		}
		tokenID, ok := new(big.Int).SetString(strings.TrimSpace(id), 10)
		if !ok {
			continue
		}
		mappings = append(mappings, RoleMapping{
			Role:    strings.TrimSpace(role),
			TokenID: tokenID,
		})
	}
	return mappings
}

// ParseAttributeMappings parses the AttributeMappings option.
func (a AuthConfig) ParseAttributeMappings() []AttributeMapping {
	var mappings []AttributeMapping
	for _, entry := range splitEntries(a.AttributeMappings) {
		attrKey, metaKey, ok := strings.Cut(entry, "=")
		if !ok || attrKey == "" || metaKey == "" {
			continue
		}
		metaKey = strings.TrimSpace(metaKey)
		noOverwrite := strings.HasSuffix(metaKey, "!")
		mappings = append(mappings, AttributeMapping{
			AttributeKey: strings.TrimSpace(attrKey),
			MetaKey:      strings.TrimSuffix(metaKey, "!"),
			NoOverwrite:  noOverwrite,
		})
	}
	return mappings
}

func splitEntries(raw string) []string {
	var entries []string
	for _, entry := range strings.Split(raw, ",") {
		entry = strings.TrimSpace(entry)
		if entry != "" {
			entries = append(entries, entry)
		}
	}
	return entries
}

func Load() (*Config, error) {
	var cfg Config
	if err := envconfig.Process("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}
	return &cfg, nil
}
