package product

import (
	"context"
	"encoding/json"
	"errors"
	"net/url"
	"strings"

	"reviewforge/internal/core/resolver"
	"reviewforge/internal/logger"
	"reviewforge/internal/platform/apify"
)

const (
	maxNameLen        = 300
	maxDescriptionLen = 2000
)

// SentinelName is the fixed product name lenient fetches fall back to when
// no source yields usable data. The composer treats it as "no name resolved".
const SentinelName = "Amazon Product"

// Info is the normalized product metadata consumed by the composer.
type Info struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
	ImageURL    string `json:"image_url,omitempty"`
}

// Sentinel is the lenient-mode fallback Info.
func Sentinel() Info { return Info{Name: SentinelName} }

type Service struct {
	apify    *apify.Client
	actor    string
	fallback *PageSource
	log      *logger.Logger
}

// NewService creates the product fetcher. fallback may be nil to disable the
// direct-page secondary source.
func NewService(client *apify.Client, actor string, fallback *PageSource) *Service {
	return &Service{apify: client, actor: actor, fallback: fallback, log: logger.New("ProductService")}
}

// Fetch resolves product metadata through the provider, falling back to the
// direct page source when the provider path fails. Strict: any total failure
// is returned as an error. A record that decodes but carries no title is not
// a failure; it comes back with an empty Name so the caller can rescue the
// name elsewhere.
func (s *Service) Fetch(ctx context.Context, ref resolver.ProductRef) (Info, error) {
	info, err := s.fetchFromSources(ctx, ref)
	if err != nil {
		return Info{}, err
	}
	return info, nil
}

// FetchLenient absorbs provider-level failures and returns the sentinel Info
// instead. A missing provider secret still fails: configuration problems are
// never silently papered over.
func (s *Service) FetchLenient(ctx context.Context, ref resolver.ProductRef) (Info, error) {
	info, err := s.fetchFromSources(ctx, ref)
	if err != nil {
		var cfgErr *apify.ConfigError
		if errors.As(err, &cfgErr) {
			return Info{}, err
		}
		s.log.LogWarnf("product fetch failed for %s, using sentinel: %v", ref.ItemID, err)
		return Sentinel(), nil
	}
	return info, nil
}

func (s *Service) fetchFromSources(ctx context.Context, ref resolver.ProductRef) (Info, error) {
	info, primaryErr := s.fetchFromActor(ctx, ref)
	if primaryErr == nil {
		if info.Name == "" && s.fallback != nil {
			s.log.LogWarnf("provider record for %s has no title, trying page source", ref.ItemID)
			if pageInfo, err := s.fallback.Fetch(ctx, ref); err == nil && pageInfo.Name != "" {
				return pageInfo, nil
			}
		}
		return info, nil
	}
	var cfgErr *apify.ConfigError
	if errors.As(primaryErr, &cfgErr) {
		return Info{}, primaryErr
	}

	if s.fallback != nil {
		s.log.LogWarnf("provider fetch failed for %s (%v), trying page source", ref.ItemID, primaryErr)
		if info, err := s.fallback.Fetch(ctx, ref); err == nil && info.Name != "" {
			return info, nil
		}
	}
	return Info{}, primaryErr
}

type actorInput struct {
	Asins        []string `json:"asins"`
	AmazonDomain string   `json:"amazonDomain"`
	MaxItems     int      `json:"maxItemsPerStartUrl"`
}

// productRecord reads the provider payload defensively: the provider is known
// to name the same logical attribute inconsistently across actor versions.
type productRecord struct {
	Title        string `json:"title"`
	Name         string `json:"name"`
	ProductTitle string `json:"productTitle"`

	Description        string   `json:"description"`
	ProductDescription string   `json:"productDescription"`
	Features           []string `json:"features"`
	About              []string `json:"aboutThisItem"`

	Image     json.RawMessage `json:"image"`
	MainImage json.RawMessage `json:"mainImage"`
	ImageURL  json.RawMessage `json:"imageUrl"`
	Images    json.RawMessage `json:"images"`
}

func (s *Service) fetchFromActor(ctx context.Context, ref resolver.ProductRef) (Info, error) {
	items, err := s.apify.RunActor(ctx, s.actor, actorInput{
		Asins:        []string{ref.ItemID},
		AmazonDomain: "amazon." + ref.Marketplace,
		MaxItems:     1,
	})
	if err != nil {
		return Info{}, err
	}
	if len(items) == 0 {
		return Info{}, &apify.ProviderError{Actor: s.actor, Detail: "empty result set"}
	}

	var rec productRecord
	if err := json.Unmarshal(items[0], &rec); err != nil {
		return Info{}, &apify.ProviderError{Actor: s.actor, Detail: "malformed product record"}
	}

	// A record without a title is still a partial success: description and
	// image are kept, and callers may rescue the name from another source.
	return Info{
		Name:        truncate(firstNonEmpty(rec.Title, rec.Name, rec.ProductTitle), maxNameLen),
		Description: truncate(buildDescription(rec), maxDescriptionLen),
		ImageURL:    extractImageURL(rec.Image, rec.MainImage, rec.ImageURL, rec.Images),
	}, nil
}

// buildDescription concatenates the free-text description with the feature
// bullets, skipping bullets the description already contains; when both are
// empty it falls back to the "about" block.
func buildDescription(rec productRecord) string {
	base := strings.TrimSpace(firstNonEmpty(rec.Description, rec.ProductDescription))

	var bullets []string
	for _, f := range rec.Features {
		f = strings.TrimSpace(f)
		if f == "" || strings.Contains(base, f) {
			continue
		}
		bullets = append(bullets, "- "+f)
	}

	switch {
	case base != "" && len(bullets) > 0:
		return base + "\n\n" + strings.Join(bullets, "\n")
	case len(bullets) > 0:
		return strings.Join(bullets, "\n")
	case base != "":
		return base
	}

	var about []string
	for _, a := range rec.About {
		if a = strings.TrimSpace(a); a != "" {
			about = append(about, a)
		}
	}
	return strings.Join(about, "\n")
}

// imageShape covers the object form of an image attribute.
type imageShape struct {
	ImageURL string `json:"imageUrl"`
	URL      string `json:"url"`
	Link     string `json:"link"`
}

// extractImageURL tries each raw candidate as a bare string, an object, or a
// list of either; the first value that parses as an http(s) URL wins.
// Invalid candidates are dropped, never propagated.
func extractImageURL(candidates ...json.RawMessage) string {
	for _, raw := range candidates {
		if u := imageFromRaw(raw); u != "" {
			return u
		}
	}
	return ""
}

func imageFromRaw(raw json.RawMessage) string {
	if len(raw) == 0 {
		return ""
	}

	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return validImageURL(s)
	}

	var obj imageShape
	if err := json.Unmarshal(raw, &obj); err == nil {
		if u := validImageURL(firstNonEmpty(obj.ImageURL, obj.URL, obj.Link)); u != "" {
			return u
		}
	}

	var list []json.RawMessage
	if err := json.Unmarshal(raw, &list); err == nil {
		for _, item := range list {
			if u := imageFromRaw(item); u != "" {
				return u
			}
		}
	}
	return ""
}

func validImageURL(candidate string) string {
	candidate = strings.TrimSpace(candidate)
	if candidate == "" {
		return ""
	}
	u, err := url.Parse(candidate)
	if err != nil || u.Host == "" || (u.Scheme != "http" && u.Scheme != "https") {
		return ""
	}
	return candidate
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	return ""
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := []rune(s)
	if len(cut) <= max {
		return s
	}
	return string(cut[:max])
}
