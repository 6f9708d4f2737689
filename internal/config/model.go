// internal/config/model.go
//
// Typed configuration model for siteconf.
//
// Context
// -------
// These structs define the shape of the tree that loader.go builds from
// three overlay layers:
//
//   - optional `.env`                            dotenv values,
//   - `conf/siteconf.yaml`                       primary static file,
//   - `SITECONF_`-prefixed environment overrides, highest precedence.
//
// Any string value that begins with `vault:` is resolved through the Vault
// client before unmarshalling, so the model never stores Vault URIs.
//
// Notes
// -----
//   - Struct tags use `koanf:"…"`.  Koanf ignores `yaml` tags.
//   - The `Paths` block is filled at runtime; YAML must not try to set it.
//   - Durations are parsed by koanf's mapstructure hook ("168h", "30m").
package config

import "time"

//
// HTTP section
//

// HTTP holds web-server tunables.
type HTTP struct {
	ListenAddr string `koanf:"listen_addr" validate:"required,hostname_port"`
	ForceHTTPS bool   `koanf:"force_https"`

	// Dev relaxes the Secure cookie flag and enables console log tee.
	Dev bool `koanf:"dev"`

	// LocalhostAlias lets a dev instance answer "localhost" as if it were
	// a real tenant hostname.
	LocalhostAlias string `koanf:"localhost_alias"`

	// AuthRatePerMinute limits auth endpoints per client IP.  0 disables.
	AuthRatePerMinute int `koanf:"auth_rate_per_minute" validate:"gte=0"`
}

//
// Database section
//

// Database selects the metadata store driver.  "memory" keeps everything
// in process, which is only useful for local development.
type Database struct {
	Driver   string `koanf:"driver"   validate:"required,oneof=mysql pgx memory"`
	DSN      string `koanf:"dsn"      validate:"required_unless=Driver memory"`
	MaxOpen  int    `koanf:"max_open" validate:"gte=0"`
	MaxIdle  int    `koanf:"max_idle" validate:"gte=0"`
}

//
// Object store section
//

// ObjectStore configures the fragment and asset bucket.
type ObjectStore struct {
	Driver    string `koanf:"driver"     validate:"required,oneof=s3 memory"`
	Endpoint  string `koanf:"endpoint"   validate:"required_if=Driver s3"`
	AccessKey string `koanf:"access_key" validate:"required_if=Driver s3"`
	SecretKey string `koanf:"secret_key" validate:"required_if=Driver s3"`
	Region    string `koanf:"region"`
	Bucket    string `koanf:"bucket"     validate:"required_if=Driver s3"`
	UseSSL    bool   `koanf:"use_ssl"`
}

//
// Auth section
//

// Auth holds session, reset, and invitation tunables.
type Auth struct {
	SessionTTL     time.Duration `koanf:"session_ttl"     validate:"gt=0"`
	ResetTTL       time.Duration `koanf:"reset_ttl"       validate:"gt=0"`
	CookieName     string        `koanf:"cookie_name"     validate:"required"`
	InvitationMode string        `koanf:"invitation_mode" validate:"oneof=code table"`
	ResetLinkBase  string        `koanf:"reset_link_base" validate:"required,url"`

	// HostCacheTTL is how long a hostname mapping is trusted.  Zero disables
	// caching and every anonymous request reads the domains table.
	HostCacheTTL  time.Duration `koanf:"host_cache_ttl"  validate:"gte=0"`
	HostCacheSize int           `koanf:"host_cache_size" validate:"gte=0"`

	// JanitorInterval controls how often expired sessions and reset tokens
	// are purged.  Zero disables the job.
	JanitorInterval time.Duration `koanf:"janitor_interval" validate:"gte=0"`
}

//
// Mail section
//

// Mail configures the outbound mail collaborator.  An empty Endpoint
// selects the log-only mailer.
type Mail struct {
	Endpoint string        `koanf:"endpoint" validate:"omitempty,url"`
	APIKey   string        `koanf:"api_key"`
	From     string        `koanf:"from"     validate:"required,email"`
	Timeout  time.Duration `koanf:"timeout"`
	Retries  int           `koanf:"retries"  validate:"gte=0"`
}

//
// Misc sections
//

// GeoIP points at an optional GeoLite2 City database.
type GeoIP struct {
	Path string `koanf:"path"`
}

// CORS lists editor origins allowed to call the API with credentials.
type CORS struct {
	Origins []string `koanf:"origins"`
}

// Vault controls resolution of `vault:` values.
type Vault struct {
	// CacheTTL is how long a resolved secret is reused within one Load.
	CacheTTL time.Duration `koanf:"cache_ttl"`
}

// Paths is resolved at runtime, never set in YAML or env.
type Paths struct {
	Root string // SITECONF_ROOT or discovered parent
}

//
// Root aggregate
//

// Config is the immutable aggregate returned by Load() and cached in an
// atomic.Pointer for lock-free reads.
type Config struct {
	HTTP        HTTP        `koanf:"http"`
	Database    Database    `koanf:"database"`
	ObjectStore ObjectStore `koanf:"objectstore"`
	Auth        Auth        `koanf:"auth"`
	Mail        Mail        `koanf:"mail"`
	GeoIP       GeoIP       `koanf:"geoip"`
	CORS        CORS        `koanf:"cors"`
	Vault       Vault       `koanf:"vault"`
	Paths       Paths       `koanf:"-"`
}

// defaults are loaded before the YAML file so operators only set what
// differs.
var defaults = map[string]any{
	"http.listen_addr":          ":8080",
	"http.auth_rate_per_minute": 20,
	"database.driver":           "mysql",
	"database.max_open":         15,
	"database.max_idle":         5,
	"objectstore.driver":        "s3",
	"auth.session_ttl":          "168h",
	"auth.reset_ttl":            "1h",
	"auth.cookie_name":          "siteconf_session",
	"auth.invitation_mode":      "code",
	"auth.reset_link_base":      "http://localhost:8080/reset-password",
	"auth.host_cache_ttl":       "5m",
	"auth.host_cache_size":      1000,
	"auth.janitor_interval":     "15m",
	"mail.from":                 "no-reply@siteconf.example",
	"mail.timeout":              "10s",
	"mail.retries":              3,
	"vault.cache_ttl":           "5m",
}
