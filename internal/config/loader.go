// internal/config/loader.go
//
// Configuration loader and hot-reloader.
//
/*
Context
--------
`Load()` builds one immutable `Config` from four layers (highest
precedence last):

  1. Built-in defaults (model.go).
  2. Optional `conf/.env`, exported into the process environment.
  3. `conf/siteconf.yaml`, skipped when absent so container deployments
     can run from env alone.
  4. Environment variables prefixed `SITECONF_`, where `__` maps to "."
     (e.g., `SITECONF_AUTH__SESSION_TTL → auth.session_ttl`).

After merging, every string leaf of the form `vault:<mount>/<path>#<key>`
is swapped for the secret it names, then the tree is unmarshalled,
validated, and cached in an `atomic.Pointer` for lock-free reads.

Instrumentation
---------------
  - DEBUG spans: root discovery, YAML read, vault lookups.
  - ERROR spans: YAML parse, unmarshal, validation failures.
  - INFO span: final "config loaded" with key highlights.
  - Logs use the global sugared logger (`zap.S()`) so early boot issues
    surface even before the file logger is installed.
*/
package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"time"

	"github.com/joho/godotenv"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	koanf "github.com/knadh/koanf/v2"
	"go.uber.org/zap"

	"github.com/yanizio/siteconf/internal/vault"
)

const (
	envPrefix   = "SITECONF_"
	vaultPrefix = "vault:"
	fileName    = "siteconf.yaml"
)

var current atomic.Pointer[Config]

// SecretSource resolves one key of a KV secret.  *vault.Client satisfies
// it; tests swap in a map.
type SecretSource interface {
	GetKV(ctx context.Context, secretPath, key string, ttl time.Duration) (string, error)
}

// newSecretSource is only called when at least one vault: value exists.
var newSecretSource = func(ctx context.Context) (SecretSource, error) {
	return vault.New(ctx, zap.S().Infof)
}

/*──────────────────────────── root discovery ───────────────────────────────*/

// rootDir resolves SITECONF_ROOT or climbs directories until
// conf/siteconf.yaml is found.  Falls back to the executable heuristic for
// the production layout (<root>/bin/siteconf).
func rootDir() string {
	if r := os.Getenv(envPrefix + "ROOT"); r != "" {
		return r
	}

	wd, _ := os.Getwd()
	for dir := wd; ; {
		if _, err := os.Stat(filepath.Join(dir, "conf", fileName)); err == nil {
			return dir
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	exe, _ := os.Executable()
	if filepath.Base(filepath.Dir(exe)) == "bin" {
		return filepath.Dir(filepath.Dir(exe))
	}
	return wd
}

/*─────────────────────────────── loader ───────────────────────────────────*/

// Load reads defaults, .env, YAML, env overrides, resolves vault values,
// validates, and caches Config.
func Load(ctx context.Context) (*Config, error) {
	root := rootDir()
	zap.S().Debugw("config root resolved", "root", root)

	// .env (optional, no error if missing)
	_ = godotenv.Load(filepath.Join(root, "conf", ".env"))

	k := koanf.New(".")
	for key, val := range defaults {
		if err := k.Set(key, val); err != nil {
			return nil, err
		}
	}

	yamlPath := filepath.Join(root, "conf", fileName)
	if _, err := os.Stat(yamlPath); err == nil {
		if err := k.Load(file.Provider(yamlPath), yaml.Parser()); err != nil {
			zap.S().Errorw("config yaml load failed", "file", yamlPath, "err", err)
			return nil, err
		}
		zap.S().Debugw("config yaml loaded", "file", yamlPath)
	} else {
		zap.S().Debugw("config yaml absent, using env only", "file", yamlPath)
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		zap.S().Errorw("config env overlay failed", "err", err)
		return nil, err
	}

	if err := resolveSecrets(ctx, k); err != nil {
		zap.S().Errorw("config vault resolution failed", "err", err)
		return nil, err
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		zap.S().Errorw("config unmarshal failed", "err", err)
		return nil, err
	}

	cfg.Paths.Root = root
	if err := validateStruct(&cfg); err != nil {
		zap.S().Errorw("config validation failed", "err", err)
		return nil, err
	}

	current.Store(&cfg)
	zap.S().Infow("config loaded",
		"listen_addr", cfg.HTTP.ListenAddr,
		"db_driver", cfg.Database.Driver,
		"objectstore", cfg.ObjectStore.Driver,
		"invitation_mode", cfg.Auth.InvitationMode,
		"root", cfg.Paths.Root,
	)
	return &cfg, nil
}

// envKey maps SITECONF_AUTH__SESSION_TTL to auth.session_ttl.
func envKey(s string) string {
	s = strings.TrimPrefix(s, envPrefix)
	return strings.ToLower(strings.ReplaceAll(s, "__", "."))
}

/*──────────────────────────── vault values ────────────────────────────────*/

func resolveSecrets(ctx context.Context, k *koanf.Koanf) error {
	refs := map[string]string{}
	for key, val := range k.All() {
		if s, ok := val.(string); ok && strings.HasPrefix(s, vaultPrefix) {
			refs[key] = strings.TrimPrefix(s, vaultPrefix)
		}
	}
	if len(refs) == 0 {
		return nil
	}

	src, err := newSecretSource(ctx)
	if err != nil {
		return fmt.Errorf("vault client: %w", err)
	}
	ttl := k.Duration("vault.cache_ttl")
	for key, ref := range refs {
		path, field, err := splitRef(ref)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		secret, err := src.GetKV(ctx, path, field, ttl)
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		if err := k.Set(key, secret); err != nil {
			return err
		}
		zap.S().Debugw("config value resolved from vault", "key", key, "path", path)
	}
	return nil
}

// splitRef parses "secret/siteconf/db#password".
func splitRef(ref string) (path, field string, err error) {
	i := strings.LastIndexByte(ref, '#')
	if i <= 0 || i == len(ref)-1 {
		return "", "", errors.New(`vault reference must look like "mount/path#key"`)
	}
	return ref[:i], ref[i+1:], nil
}

/*──────────────────────────── helpers ─────────────────────────────────────*/

// Get returns the configuration stored by the last successful Load.
func Get() *Config { return current.Load() }
