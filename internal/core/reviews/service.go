package reviews

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"reviewforge/internal/core/resolver"
	"reviewforge/internal/logger"
	"reviewforge/internal/platform/apify"
)

const maxSnippetLen = 500

// Corpus is the harvested review material for one product. An empty Snippets
// slice is a valid outcome: products with no reviews yet, or a thin provider
// page, simply contribute nothing to the prompt.
type Corpus struct {
	Snippets []string
	// AlternateTitle is the product title as seen by the reviews actor. The
	// composer uses it as a name-of-last-resort when the product source
	// yields nothing usable.
	AlternateTitle string
}

type Service struct {
	apify *apify.Client
	actor string
	log   *logger.Logger
}

func NewService(client *apify.Client, actor string) *Service {
	return &Service{apify: client, actor: actor, log: logger.New("ReviewsService")}
}

type actorInput struct {
	Asin       string `json:"asin"`
	DomainCode string `json:"domainCode"`
	SortBy     string `json:"sortBy"`
	MaxPages   int    `json:"maxPages"`
}

// reviewRecord reads the provider payload defensively across actor versions.
type reviewRecord struct {
	ReviewDescription string `json:"reviewDescription"`
	Text              string `json:"text"`
	Review            string `json:"review"`

	ProductTitle string `json:"productTitle"`
	Product      string `json:"product"`
}

// Fetch pulls a single page of reviews sorted by recency. Strict: provider
// failures are returned as errors. An empty page is not a failure.
func (s *Service) Fetch(ctx context.Context, ref resolver.ProductRef) (Corpus, error) {
	items, err := s.apify.RunActor(ctx, s.actor, actorInput{
		Asin:       ref.ItemID,
		DomainCode: ref.Marketplace,
		SortBy:     "recent",
		MaxPages:   1,
	})
	if err != nil {
		return Corpus{}, err
	}

	var corpus Corpus
	for _, raw := range items {
		var rec reviewRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			continue
		}
		if corpus.AlternateTitle == "" {
			corpus.AlternateTitle = strings.TrimSpace(firstNonEmpty(rec.ProductTitle, rec.Product))
		}
		text := strings.TrimSpace(firstNonEmpty(rec.ReviewDescription, rec.Text, rec.Review))
		if text == "" {
			continue
		}
		corpus.Snippets = append(corpus.Snippets, truncate(text))
	}
	return corpus, nil
}

// FetchLenient absorbs every provider failure and returns an empty corpus in
// its place; review material is always optional. Configuration errors are
// absorbed too because a deployment without the provider secret should still
// compose reviews, just ungrounded ones.
func (s *Service) FetchLenient(ctx context.Context, ref resolver.ProductRef) Corpus {
	corpus, err := s.Fetch(ctx, ref)
	if err != nil {
		var cfgErr *apify.ConfigError
		if !errors.As(err, &cfgErr) {
			s.log.LogWarnf("review fetch failed for %s, continuing without snippets: %v", ref.ItemID, err)
		}
		return Corpus{}
	}
	return corpus
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func truncate(s string) string {
	if len(s) <= maxSnippetLen {
		return s
	}
	cut := []rune(s)
	if len(cut) <= maxSnippetLen {
		return s
	}
	return string(cut[:maxSnippetLen])
}
