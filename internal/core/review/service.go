package review

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/google/uuid"

	"reviewforge/internal/core/product"
	"reviewforge/internal/core/resolver"
	"reviewforge/internal/core/reviews"
	"reviewforge/internal/logger"
	"reviewforge/internal/platform/apify"
	"reviewforge/internal/platform/eino"
	rds "reviewforge/internal/platform/redis"
	"reviewforge/internal/types"
	"reviewforge/prompts"
)

// ProductFetcher yields normalized product metadata for a resolved reference.
type ProductFetcher interface {
	Fetch(ctx context.Context, ref resolver.ProductRef) (product.Info, error)
}

// ReviewFetcher yields existing-review material; it never fails, only thins.
type ReviewFetcher interface {
	FetchLenient(ctx context.Context, ref resolver.ProductRef) reviews.Corpus
}

// Completer runs the chat model over formatted prompt messages.
type Completer interface {
	Generate(ctx context.Context, messages []*schema.Message) (*schema.Message, error)
}

type Service struct {
	products   ProductFetcher
	reviews    ReviewFetcher
	llm        Completer
	redis      *rds.Service
	sessionTTL time.Duration
	log        *logger.Logger
}

func NewService(products ProductFetcher, revs ReviewFetcher, llm Completer, redis *rds.Service, sessionTTL time.Duration) *Service {
	return &Service{
		products:   products,
		reviews:    revs,
		llm:        llm,
		redis:      redis,
		sessionTTL: sessionTTL,
		log:        logger.New("ReviewService"),
	}
}

// session carries everything needed to re-render the prompt during
// refinement. Stored in redis under the review ID.
type session struct {
	ProductName string   `json:"product_name"`
	Description string   `json:"description"`
	Rating      int      `json:"rating"`
	Feedback    string   `json:"feedback"`
	Voice       string   `json:"voice"`
	Snippets    []string `json:"snippets"`
	ImageURL    string   `json:"image_url"`
}

func sessionKey(id string) string { return "review:session:" + id }

// Compose runs the full pipeline: resolve the link, gather product and review
// material concurrently, generate, validate, and persist a refinement session.
func (s *Service) Compose(ctx context.Context, in types.UserInput) (*types.ComposedReview, error) {
	if in.Rating < 0 || in.Rating > 5 {
		return nil, newError(KindBadInput, "rating must be between 1 and 5", nil)
	}

	ref, err := resolver.Resolve(in.ProductLink)
	if err != nil {
		var unres *resolver.UnresolvableError
		if errors.As(err, &unres) {
			return nil, newError(KindBadLink, badLinkMessage(unres), err)
		}
		return nil, newError(KindBadLink, "product link could not be resolved", err)
	}

	var (
		info    product.Info
		infoErr error
		corpus  reviews.Corpus
	)
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		info, infoErr = s.products.Fetch(ctx, ref)
	}()
	if !in.SkipReviews {
		wg.Add(1)
		go func() {
			defer wg.Done()
			corpus = s.reviews.FetchLenient(ctx, ref)
		}()
	}
	wg.Wait()

	if infoErr != nil {
		var cfgErr *apify.ConfigError
		if errors.As(infoErr, &cfgErr) {
			return nil, newError(KindMissingConfig, "product provider is not configured", infoErr)
		}
		return nil, newError(KindProductFetch, "could not fetch product information", infoErr)
	}

	name := info.Name
	if name == "" || name == product.SentinelName {
		name = corpus.AlternateTitle
	}
	if name == "" {
		return nil, newError(KindProductFetch, "could not determine product name", nil)
	}

	sess := session{
		ProductName: name,
		Description: info.Description,
		Rating:      in.Rating,
		Feedback:    strings.TrimSpace(in.Feedback),
		Voice:       strings.TrimSpace(in.Voice),
		Snippets:    corpus.Snippets,
		ImageURL:    info.ImageURL,
	}

	draft, err := s.generate(ctx, sess)
	if err != nil {
		return nil, err
	}

	id := uuid.New().String()
	if err := s.redis.CacheSet(ctx, sessionKey(id), sess, s.sessionTTL); err != nil {
		s.log.LogWarnf("failed to persist review session %s: %v", id, err)
	}

	return &types.ComposedReview{
		ID:          id,
		Title:       draft.Title,
		Body:        draft.Body,
		ProductName: name,
		ImageURL:    info.ImageURL,
	}, nil
}

// Refine folds an additional customer comment into an existing session and
// regenerates the review under the same ID.
func (s *Service) Refine(ctx context.Context, id, comment string) (*types.ComposedReview, error) {
	comment = strings.TrimSpace(comment)
	if comment == "" {
		return nil, newError(KindBadInput, "refinement comment is empty", nil)
	}

	var sess session
	if err := s.redis.CacheGet(ctx, sessionKey(id), &sess); err != nil {
		return nil, newError(KindSessionNotFound, fmt.Sprintf("no active review session for %s", id), err)
	}

	if sess.Feedback == "" {
		sess.Feedback = comment
	} else {
		sess.Feedback = sess.Feedback + "\n\nAdditional comments from the customer (supplementary):\n" + comment
	}

	draft, err := s.generate(ctx, sess)
	if err != nil {
		return nil, err
	}

	if err := s.redis.CacheSet(ctx, sessionKey(id), sess, s.sessionTTL); err != nil {
		s.log.LogWarnf("failed to persist review session %s: %v", id, err)
	}

	return &types.ComposedReview{
		ID:          id,
		Title:       draft.Title,
		Body:        draft.Body,
		ProductName: sess.ProductName,
		ImageURL:    sess.ImageURL,
	}, nil
}

// Discard drops a refinement session before its TTL expires. Further refines
// against the ID fail with KindSessionNotFound.
func (s *Service) Discard(ctx context.Context, id string) error {
	var sess session
	if err := s.redis.CacheGet(ctx, sessionKey(id), &sess); err != nil {
		return newError(KindSessionNotFound, fmt.Sprintf("no active review session for %s", id), err)
	}
	return s.redis.CacheDel(ctx, sessionKey(id))
}

type draft struct {
	Title string `json:"title"`
	Body  string `json:"body"`
}

// generate formats the prompt and runs the completion, retrying once when the
// model returns something that is not the two-field object.
func (s *Service) generate(ctx context.Context, sess session) (draft, error) {
	messages, err := prompts.Compose.Format(ctx, prompts.ComposeInput{
		ProductName: sess.ProductName,
		Description: sess.Description,
		Rating:      sess.Rating,
		Feedback:    sess.Feedback,
		Voice:       sess.Voice,
		Snippets:    sess.Snippets,
	}.Vars())
	if err != nil {
		return draft{}, newError(KindGeneration, "failed to format prompt", err)
	}

	var lastSchemaErr error
	for attempt := 0; attempt < 2; attempt++ {
		out, err := s.llm.Generate(ctx, messages)
		if err != nil {
			if errors.Is(err, eino.ErrAPIKeyMissing) {
				return draft{}, newError(KindMissingConfig, "completion provider is not configured", err)
			}
			return draft{}, newError(KindGeneration, "completion request failed", err)
		}

		d, err := parseCompletion(out.Content)
		if err == nil {
			return d, nil
		}
		lastSchemaErr = err
		s.log.LogWarnf("completion rejected (attempt %d): %v", attempt+1, err)
	}
	return draft{}, newError(KindGeneration, "completion did not produce a valid review", lastSchemaErr)
}

var placeholderPattern = regexp.MustCompile(`\[(?:[A-Za-z][A-Za-z0-9 _'-]*)\]`)

// parseCompletion strips markdown fencing and surrounding prose, then
// enforces the two-field schema: both fields present, non-empty, and free of
// bracketed placeholders.
func parseCompletion(content string) (draft, error) {
	cleaned := strings.TrimSpace(content)
	cleaned = strings.TrimPrefix(cleaned, "```json")
	cleaned = strings.TrimPrefix(cleaned, "```")
	cleaned = strings.TrimSuffix(cleaned, "```")
	cleaned = strings.TrimSpace(cleaned)

	start := strings.Index(cleaned, "{")
	end := strings.LastIndex(cleaned, "}")
	if start == -1 || end == -1 || end <= start {
		return draft{}, &SchemaError{Detail: "no JSON object in completion"}
	}
	cleaned = cleaned[start : end+1]

	var d draft
	if err := json.Unmarshal([]byte(cleaned), &d); err != nil {
		return draft{}, &SchemaError{Detail: fmt.Sprintf("unmarshal: %v", err)}
	}

	d.Title = strings.TrimSpace(d.Title)
	d.Body = strings.TrimSpace(d.Body)
	if d.Title == "" {
		return draft{}, &SchemaError{Detail: "title is empty"}
	}
	if d.Body == "" {
		return draft{}, &SchemaError{Detail: "body is empty"}
	}
	if placeholderPattern.MatchString(d.Title) || placeholderPattern.MatchString(d.Body) {
		return draft{}, &SchemaError{Detail: "contains bracketed placeholder"}
	}
	return d, nil
}

func badLinkMessage(err *resolver.UnresolvableError) string {
	if err.Missing == "marketplace" {
		return "the link does not point at a recognized marketplace"
	}
	return "the link does not contain a product identifier"
}
