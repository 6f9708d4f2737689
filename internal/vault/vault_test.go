package vault

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitMount(t *testing.T) {
	m, r := splitMount("secret/siteconf/db")
	assert.Equal(t, "secret", m)
	assert.Equal(t, "siteconf/db", r)

	m, r = splitMount("secret")
	assert.Equal(t, "secret", m)
	assert.Empty(t, r)
}

func TestField(t *testing.T) {
	data := map[string]any{"dsn": "x", "port": 3306}

	v, err := field(data, "secret/db", "dsn")
	require.NoError(t, err)
	assert.Equal(t, "x", v)

	_, err = field(data, "secret/db", "missing")
	assert.ErrorContains(t, err, "not found")

	_, err = field(data, "secret/db", "port")
	assert.ErrorContains(t, err, "not a string")
}

func TestGetKV_ServesFromCache(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	c := newClient(nil, nil)
	c.now = func() time.Time { return now }
	c.cache["secret/db#dsn"] = cached{val: "cached-dsn", exp: now.Add(time.Minute)}

	// api is nil, so a cache miss would panic.
	v, err := c.GetKV(context.Background(), "secret/db", "dsn", time.Minute)
	require.NoError(t, err)
	assert.Equal(t, "cached-dsn", v)

	_, err = c.GetKV(context.Background(), "", "dsn", 0)
	assert.Error(t, err)
}
