package resolver

import (
	_ "embed"
	"fmt"
	"net/url"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

// ProductRef is the canonical reference a product URL resolves to.
type ProductRef struct {
	ItemID      string `json:"item_id"`
	Marketplace string `json:"marketplace"`
}

// UnresolvableError reports which element of the reference could not be
// extracted from the input URL.
type UnresolvableError struct {
	URL     string
	Missing string // "identifier" or "marketplace"
}

func (e *UnresolvableError) Error() string {
	return fmt.Sprintf("could not resolve %s from url %q: supply a direct product page link (e.g. https://www.amazon.com/dp/ASIN)", e.Missing, e.URL)
}

//go:embed marketplaces.yaml
var marketplacesYAML []byte

type marketplaceTable struct {
	Suffixes []string          `yaml:"suffixes"`
	Aliases  map[string]string `yaml:"aliases"`
}

var marketplaces marketplaceTable

func init() {
	if err := yaml.Unmarshal(marketplacesYAML, &marketplaces); err != nil {
		panic(fmt.Errorf("resolver: bad marketplaces.yaml: %w", err))
	}
	// Longest suffix first so co.uk wins over uk-style partial matches.
	sort.Slice(marketplaces.Suffixes, func(i, j int) bool {
		return len(marketplaces.Suffixes[i]) > len(marketplaces.Suffixes[j])
	})
}

var (
	itemIDPattern = regexp.MustCompile(`^[A-Za-z0-9]{10}$`)
	hostPattern   = regexp.MustCompile(`(?i)(?:https?://)?(?:[^/@\s]+@)?([a-z0-9][a-z0-9.-]*\.[a-z]{2,})`)
	// Last-resort scan: a 10-char token directly after a known product path marker.
	rawIDPattern = regexp.MustCompile(`(?i)/(?:dp|gp/product|product)/([A-Za-z0-9]{10})(?:[/?#&]|$)`)
)

// Path markers whose following segment holds the item identifier.
var pathMarkers = []string{"dp", "product"}

// Resolve parses a marketplace product URL into its ProductRef. It fails with
// an UnresolvableError when no valid identifier or no recognized marketplace
// suffix can be found; it never substitutes a placeholder.
func Resolve(raw string) (ProductRef, error) {
	raw = strings.TrimSpace(raw)

	var host, path string
	var query url.Values
	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		host = u.Host
		path = u.Path
		query = u.Query()
	} else if u, err := url.Parse("https://" + raw); err == nil && u.Host != "" && strings.Contains(u.Host, ".") {
		host = u.Host
		path = u.Path
		query = u.Query()
	} else if m := hostPattern.FindStringSubmatch(raw); m != nil {
		host = m[1]
	}
	host = strings.ToLower(strings.TrimPrefix(host, "www."))
	if i := strings.IndexByte(host, ':'); i >= 0 {
		host = host[:i]
	}

	itemID := extractItemID(path, query, raw)
	marketplace := extractMarketplace(host)

	if itemID == "" {
		return ProductRef{}, &UnresolvableError{URL: raw, Missing: "identifier"}
	}
	if marketplace == "" {
		return ProductRef{}, &UnresolvableError{URL: raw, Missing: "marketplace"}
	}
	return ProductRef{ItemID: itemID, Marketplace: marketplace}, nil
}

// extractItemID tries, in priority order: explicit query parameter, known
// path shapes, then a raw scan of the whole input. Review and creation
// deep-links often carry the real identifier only in the query string, so the
// query parameter wins even when the path holds a candidate too.
func extractItemID(path string, query url.Values, raw string) string {
	if query != nil {
		for _, key := range []string{"asin", "ASIN"} {
			if id := validItemID(query.Get(key)); id != "" {
				return id
			}
		}
	}

	segments := strings.Split(strings.Trim(path, "/"), "/")
	for i, seg := range segments {
		if i+1 >= len(segments) {
			break
		}
		for _, marker := range pathMarkers {
			if strings.EqualFold(seg, marker) {
				if id := validItemID(segments[i+1]); id != "" {
					return id
				}
			}
		}
		// /gp/product/<id> shape
		if strings.EqualFold(seg, "gp") && i+2 < len(segments) && strings.EqualFold(segments[i+1], "product") {
			if id := validItemID(segments[i+2]); id != "" {
				return id
			}
		}
	}

	if m := rawIDPattern.FindStringSubmatch(raw); m != nil {
		return validItemID(m[1])
	}
	return ""
}

// validItemID reports the normalized identifier, or empty when the candidate
// does not match the strict 10-character alphanumeric shape.
func validItemID(candidate string) string {
	if itemIDPattern.MatchString(candidate) {
		return strings.ToUpper(candidate)
	}
	return ""
}

// extractMarketplace matches the hostname against the suffix allow-list
// first, then falls back to splitting on the root domain token.
func extractMarketplace(host string) string {
	if host == "" {
		return ""
	}
	for _, suffix := range marketplaces.Suffixes {
		root := "amazon." + suffix
		if host == root || strings.HasSuffix(host, "."+root) {
			return suffix
		}
	}
	idx := strings.LastIndex(host, "amazon.")
	if idx < 0 || (idx > 0 && host[idx-1] != '.') {
		return ""
	}
	code := host[idx+len("amazon."):]
	if code == "" {
		return ""
	}
	if canonical, ok := marketplaces.Aliases[code]; ok {
		return canonical
	}
	return code
}
