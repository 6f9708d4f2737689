// internal/vault/vault.go
//
// Vault client wrapper for configuration secrets.
//
// Context
// -------
//   - Concurrency-safe wrapper around the HashiCorp Vault Go SDK.
//   - KV-v2 reads with a per-key TTL cache, plus background token renewal
//     for long-running processes that call Reload.
//   - Only the config loader talks to Vault.  Components receive plain
//     strings and never know where a value came from.
//
// Public workflow
// ---------------
//  1. cli, err := vault.New(ctx, zap.S().Infof)
//  2. pw,  err := cli.GetKV(ctx, "secret/siteconf/db", "dsn", 5*time.Minute)
package vault

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	vault "github.com/hashicorp/vault/api"
)

/*──────────────────────────── client ──────────────────────────────────────*/

// Client is safe for concurrent use.  The zero value is invalid.
type Client struct {
	api   *vault.Client
	logFn func(string, ...any)
	now   func() time.Time

	mu    sync.RWMutex
	cache map[string]cached // "path#key" → value + expiry
}

type cached struct {
	val string
	exp time.Time
}

// New reads VAULT_ADDR and VAULT_TOKEN from the environment and starts the
// renewal loop, which stops when ctx is cancelled.
func New(ctx context.Context, logFn func(string, ...any)) (*Client, error) {
	if logFn == nil {
		logFn = func(string, ...any) {}
	}

	cfg := vault.DefaultConfig()
	if err := cfg.ReadEnvironment(); err != nil {
		return nil, fmt.Errorf("vault env cfg: %w", err)
	}
	api, err := vault.NewClient(cfg)
	if err != nil {
		return nil, fmt.Errorf("vault api: %w", err)
	}

	c := newClient(api, logFn)
	go c.renewLoop(ctx)
	return c, nil
}

func newClient(api *vault.Client, logFn func(string, ...any)) *Client {
	return &Client{api: api, logFn: logFn, now: time.Now, cache: make(map[string]cached)}
}

// GetKV fetches one key from a KV-v2 secret.  secretPath starts with the
// mount ("secret/siteconf/db").  When ttl > 0 the value is cached.
func (c *Client) GetKV(ctx context.Context, secretPath, key string, ttl time.Duration) (string, error) {
	if secretPath == "" || key == "" {
		return "", errors.New("vault: secret path and key must be non-empty")
	}
	canonical := secretPath + "#" + key

	if val, ok := c.lookup(canonical); ok {
		return val, nil
	}

	mount, rel := splitMount(secretPath)
	sec, err := c.api.KVv2(mount).Get(ctx, rel)
	if err != nil {
		return "", fmt.Errorf("vault get %s: %w", secretPath, err)
	}
	val, err := field(sec.Data, secretPath, key)
	if err != nil {
		return "", err
	}

	if ttl > 0 {
		c.mu.Lock()
		c.cache[canonical] = cached{val: val, exp: c.now().Add(ttl)}
		c.mu.Unlock()
	}
	return val, nil
}

func (c *Client) lookup(canonical string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	cv, ok := c.cache[canonical]
	if !ok || !c.now().Before(cv.exp) {
		return "", false
	}
	return cv.val, true
}

/*──────────────────────────── token renewal ───────────────────────────────*/

func (c *Client) renewLoop(ctx context.Context) {
	for ctx.Err() == nil {
		wait := c.watchOnce(ctx)
		backoff(ctx, wait)
	}
}

// watchOnce renews the token until the watcher gives up and returns how
// long to wait before probing again.
func (c *Client) watchOnce(ctx context.Context) time.Duration {
	sec, err := c.api.Auth().Token().RenewSelfWithContext(ctx, 0)
	if err != nil {
		c.logFn("vault: token renew self failed: %v", err)
		return 30 * time.Second
	}
	if sec == nil || sec.Auth == nil || !sec.Auth.Renewable {
		c.logFn("vault: token is not renewable, sleeping 1h")
		return time.Hour
	}

	w, err := c.api.NewLifetimeWatcher(&vault.LifetimeWatcherInput{Secret: sec})
	if err != nil {
		c.logFn("vault: watcher init error: %v", err)
		return 30 * time.Second
	}
	go w.Start()
	defer w.Stop()

	for {
		select {
		case <-ctx.Done():
			return 0
		case err := <-w.DoneCh():
			if err != nil {
				c.logFn("vault: token renewal stopped: %v", err)
			}
			return 15 * time.Second
		case ev := <-w.RenewCh():
			if ev != nil && ev.Secret != nil && ev.Secret.Auth != nil {
				c.logFn("vault: token renewed, ttl=%ds", ev.Secret.Auth.LeaseDuration)
			}
		}
	}
}

/*──────────────────────────── helpers ─────────────────────────────────────*/

func field(data map[string]any, secretPath, key string) (string, error) {
	raw, ok := data[key]
	if !ok {
		return "", fmt.Errorf("vault: key %q not found in secret %q", key, secretPath)
	}
	s, ok := raw.(string)
	if !ok {
		return "", fmt.Errorf("vault: value at %s#%s is not a string", secretPath, key)
	}
	return s, nil
}

func splitMount(p string) (mount, rel string) {
	mount, rel, _ = strings.Cut(p, "/")
	return mount, rel
}

func backoff(ctx context.Context, d time.Duration) {
	if d <= 0 {
		return
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}
