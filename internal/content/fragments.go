// Package content is the tenant configuration engine: the read path that
// composes fragments and assets into one document, and the write path that
// persists an edited bundle with per-key results.
package content

// Fragment names.  Composition reads exactly this list, in this order, and
// saves accept nothing else.
const (
	CombinedData = "combined_data"
	Colors       = "colors"
	Services     = "services"
	AboutPage    = "about_page"
	Showcase     = "showcase"
)

// Fragments is the fixed, known fragment list.
var Fragments = []string{CombinedData, Colors, Services, AboutPage, Showcase}

var known = func() map[string]bool {
	m := make(map[string]bool, len(Fragments))
	for _, f := range Fragments {
		m[f] = true
	}
	return m
}()

// Known reports whether name is a fragment.
func Known(name string) bool { return known[name] }

// FragmentKey is the object-store key of one fragment.
func FragmentKey(tenantID, name string) string { return tenantID + "/" + name }
