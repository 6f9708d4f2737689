// internal/requestinfo/requestinfo.go
//
// Client fingerprint for audit logging.
//
/*
Context
--------
Auth events (signup, login, reset) are logged with who asked: client IP,
coarse geolocation, and a parsed user-agent.  Enricher collects those once
per request and stores a *RequestInfo in the request context.

The GeoLite2 database is optional.  Without it Geo carries only the IP,
so development machines need no MaxMind download.

Notes
-----
  - RealIP middleware runs first, so RemoteAddr already holds the client
    address when this package reads it.
  - Structs are inert values and safe to log or JSON-encode.
*/
package requestinfo

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	surfer "github.com/avct/uasurfer"
	"github.com/oschwald/geoip2-golang"
	"go.uber.org/zap"
)

/*──────────────────────────── types ───────────────────────────────────────*/

// UA holds the parsed user-agent properties.
type UA struct {
	Browser   string `json:"browser"`
	Version   string `json:"version"`
	OS        string `json:"os"`
	OSVersion string `json:"osVersion"`
	Device    string `json:"device"` // Desktop, Mobile, Tablet, Other
	IsBot     bool   `json:"isBot"`
}

// Geo holds best-effort IP geolocation.
type Geo struct {
	IP         string `json:"ip"`
	CountryISO string `json:"country,omitempty"`
	City       string `json:"city,omitempty"`
}

// RequestInfo is what auth handlers log.
type RequestInfo struct {
	UA        UA        `json:"ua"`
	Geo       Geo       `json:"geo"`
	Timestamp time.Time `json:"ts"`
}

// Fields renders info as zap fields.  A nil receiver yields none.
func (ri *RequestInfo) Fields() []zap.Field {
	if ri == nil {
		return nil
	}
	return []zap.Field{
		zap.String("ip", ri.Geo.IP),
		zap.String("country", ri.Geo.CountryISO),
		zap.String("browser", ri.UA.Browser),
		zap.String("os", ri.UA.OS),
		zap.String("device", ri.UA.Device),
		zap.Bool("bot", ri.UA.IsBot),
	}
}

/*──────────────────────────── enricher ────────────────────────────────────*/

// Enricher builds RequestInfo values.  Safe for concurrent use.
type Enricher struct {
	geo *geoip2.Reader // nil when no database is configured
	now func() time.Time
}

// New opens the GeoLite2 City database at geoPath when non-empty.
func New(geoPath string) (*Enricher, error) {
	e := &Enricher{now: time.Now}
	if geoPath == "" {
		return e, nil
	}
	r, err := geoip2.Open(geoPath)
	if err != nil {
		return nil, fmt.Errorf("requestinfo: open geoip db: %w", err)
	}
	e.geo = r
	return e, nil
}

// Close releases the GeoIP reader.
func (e *Enricher) Close() error {
	if e.geo == nil {
		return nil
	}
	return e.geo.Close()
}

// Middleware attaches *RequestInfo to every request.
func (e *Enricher) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		info := e.Build(r)
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, info)))
	})
}

// Build parses r without touching its context.
func (e *Enricher) Build(r *http.Request) *RequestInfo {
	return &RequestInfo{
		UA:        parseUA(r.UserAgent()),
		Geo:       e.lookupGeo(clientIP(r)),
		Timestamp: e.now().UTC(),
	}
}

func (e *Enricher) lookupGeo(ip net.IP) Geo {
	if ip == nil {
		return Geo{}
	}
	g := Geo{IP: ip.String()}
	if e.geo == nil {
		return g
	}
	rec, err := e.geo.City(ip)
	if err != nil {
		return g
	}
	g.CountryISO = rec.Country.IsoCode
	g.City = rec.City.Names["en"]
	return g
}

type ctxKey struct{}

// FromContext returns the value stored by Middleware, or nil.
func FromContext(ctx context.Context) *RequestInfo {
	v, _ := ctx.Value(ctxKey{}).(*RequestInfo)
	return v
}

/*──────────────────────────── helpers ─────────────────────────────────────*/

func clientIP(r *http.Request) net.IP {
	if host, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
		return net.ParseIP(host)
	}
	return net.ParseIP(strings.TrimSpace(r.RemoteAddr))
}

func parseUA(raw string) UA {
	if raw == "" {
		return UA{Device: "Other"}
	}
	ua := surfer.Parse(raw)
	out := UA{
		Browser:   strings.TrimPrefix(ua.Browser.Name.String(), "Browser"),
		Version:   versionString(ua.Browser.Version),
		OS:        strings.TrimPrefix(ua.OS.Name.String(), "OS"),
		OSVersion: versionString(ua.OS.Version),
		IsBot:     ua.IsBot(),
	}
	switch ua.DeviceType {
	case surfer.DeviceComputer:
		out.Device = "Desktop"
	case surfer.DeviceTablet:
		out.Device = "Tablet"
	case surfer.DevicePhone, surfer.DeviceWearable:
		out.Device = "Mobile"
	default:
		out.Device = "Other"
	}
	return out
}

// versionString trims trailing zero components: 17.0.0 → "17".
func versionString(v surfer.Version) string {
	parts := []int{v.Major, v.Minor, v.Patch}
	for len(parts) > 0 && parts[len(parts)-1] == 0 {
		parts = parts[:len(parts)-1]
	}
	s := make([]string, len(parts))
	for i, p := range parts {
		s[i] = strconv.Itoa(p)
	}
	return strings.Join(s, ".")
}
