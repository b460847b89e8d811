package review

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"reviewforge/internal/core/product"
	"reviewforge/internal/core/resolver"
	"reviewforge/internal/core/reviews"
	"reviewforge/internal/platform/apify"
	"reviewforge/internal/platform/eino"
	rds "reviewforge/internal/platform/redis"
	"reviewforge/internal/types"
)

const testLink = "https://www.amazon.com/dp/B0CX23V2ZK"

type fakeProducts struct {
	info product.Info
	err  error
}

func (f *fakeProducts) Fetch(ctx context.Context, ref resolver.ProductRef) (product.Info, error) {
	return f.info, f.err
}

type fakeReviews struct {
	corpus reviews.Corpus
	called bool
}

func (f *fakeReviews) FetchLenient(ctx context.Context, ref resolver.ProductRef) reviews.Corpus {
	f.called = true
	return f.corpus
}

type fakeLLM struct {
	responses []string
	err       error
	prompts   [][]*schema.Message
}

func (f *fakeLLM) Generate(ctx context.Context, messages []*schema.Message) (*schema.Message, error) {
	f.prompts = append(f.prompts, messages)
	if f.err != nil {
		return nil, f.err
	}
	content := f.responses[0]
	if len(f.responses) > 1 {
		f.responses = f.responses[1:]
	}
	return &schema.Message{Role: schema.Assistant, Content: content}, nil
}

func testRedis(t *testing.T) *rds.Service {
	t.Helper()
	mr := miniredis.RunT(t)
	svc, err := rds.New(rds.Options{Addr: mr.Addr()})
	require.NoError(t, err)
	t.Cleanup(func() { _ = svc.Close() })
	return svc
}

func newTestService(t *testing.T, p ProductFetcher, r ReviewFetcher, llm Completer) *Service {
	t.Helper()
	return NewService(p, r, llm, testRedis(t), 30*time.Minute)
}

const validCompletion = `{"title": "Great little kettle", "body": "It boils fast and packs small."}`

func TestCompose_HappyPath(t *testing.T) {
	prods := &fakeProducts{info: product.Info{
		Name:        "Travel Kettle",
		Description: "Compact 0.6L kettle.",
		ImageURL:    "https://img.example.com/kettle.jpg",
	}}
	revs := &fakeReviews{corpus: reviews.Corpus{Snippets: []string{"Boils fast."}}}
	llm := &fakeLLM{responses: []string{validCompletion}}
	svc := newTestService(t, prods, revs, llm)

	review, err := svc.Compose(context.Background(), types.UserInput{
		ProductLink: testLink,
		Rating:      5,
		Feedback:    "love it",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, review.ID)
	assert.Equal(t, "Great little kettle", review.Title)
	assert.Equal(t, "It boils fast and packs small.", review.Body)
	assert.Equal(t, "Travel Kettle", review.ProductName)
	assert.Equal(t, "https://img.example.com/kettle.jpg", review.ImageURL)
	assert.True(t, revs.called)

	require.Len(t, llm.prompts, 1)
	user := llm.prompts[0][1].Content
	assert.Contains(t, user, "Travel Kettle")
	assert.Contains(t, user, "- Boils fast.")
	assert.Contains(t, user, "5 out of 5 stars")
}

func TestCompose_InputValidation(t *testing.T) {
	tests := []struct {
		name string
		in   types.UserInput
	}{
		{"rating out of range", types.UserInput{ProductLink: testLink, Rating: 7}},
		{"negative rating", types.UserInput{ProductLink: testLink, Rating: -1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(t, &fakeProducts{}, &fakeReviews{}, &fakeLLM{})
			_, err := svc.Compose(context.Background(), tt.in)
			var compErr *CompositionError
			require.True(t, errors.As(err, &compErr))
			assert.Equal(t, KindBadInput, compErr.Kind)
		})
	}
}

func TestCompose_SucceedsWithLinkAlone(t *testing.T) {
	prods := &fakeProducts{info: product.Info{Name: "Travel Kettle"}}
	llm := &fakeLLM{responses: []string{validCompletion}}
	svc := newTestService(t, prods, &fakeReviews{}, llm)

	review, err := svc.Compose(context.Background(), types.UserInput{ProductLink: testLink})
	require.NoError(t, err)
	assert.NotEmpty(t, review.Title)

	user := llm.prompts[0][1].Content
	assert.Contains(t, user, "# Customer Rating\nnot provided")
	assert.Contains(t, user, "# Customer Feedback\nnot provided")
}

func TestCompose_BadLink(t *testing.T) {
	svc := newTestService(t, &fakeProducts{}, &fakeReviews{}, &fakeLLM{})
	_, err := svc.Compose(context.Background(), types.UserInput{
		ProductLink: "https://www.amazon.com/gp/help/customer",
		Rating:      4,
	})
	var compErr *CompositionError
	require.True(t, errors.As(err, &compErr))
	assert.Equal(t, KindBadLink, compErr.Kind)
}

func TestCompose_ProductFailureIsFatal(t *testing.T) {
	tests := []struct {
		name string
		err  error
		kind Kind
	}{
		{"provider failure", &apify.ProviderError{Actor: "acme~product", Status: 502}, KindProductFetch},
		{"missing secret", &apify.ConfigError{Env: "APIFY_TOKEN"}, KindMissingConfig},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := newTestService(t, &fakeProducts{err: tt.err}, &fakeReviews{}, &fakeLLM{responses: []string{validCompletion}})
			_, err := svc.Compose(context.Background(), types.UserInput{ProductLink: testLink, Rating: 4})
			var compErr *CompositionError
			require.True(t, errors.As(err, &compErr))
			assert.Equal(t, tt.kind, compErr.Kind)
		})
	}
}

func TestCompose_SentinelNameFallsBackToReviewTitle(t *testing.T) {
	prods := &fakeProducts{info: product.Info{Name: product.SentinelName}}
	revs := &fakeReviews{corpus: reviews.Corpus{AlternateTitle: "Travel Kettle"}}
	llm := &fakeLLM{responses: []string{validCompletion}}
	svc := newTestService(t, prods, revs, llm)

	review, err := svc.Compose(context.Background(), types.UserInput{ProductLink: testLink, Rating: 4})
	require.NoError(t, err)
	assert.Equal(t, "Travel Kettle", review.ProductName)
}

func TestCompose_AlternateTitleRescueWithWiredFetchers(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case strings.Contains(r.URL.Path, "product-actor"):
			_, _ = w.Write([]byte(`[{"description": "a nice gadget"}]`))
		case strings.Contains(r.URL.Path, "review-actor"):
			_, _ = w.Write([]byte(`[{"productTitle": "Gadget Pro 3000", "text": "Love it."}]`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := apify.New(apify.Options{Token: "secret", BaseURL: srv.URL})
	prods := product.NewService(client, "product-actor", nil)
	revs := reviews.NewService(client, "review-actor")
	llm := &fakeLLM{responses: []string{validCompletion}}
	svc := NewService(prods, revs, llm, testRedis(t), 30*time.Minute)

	review, err := svc.Compose(context.Background(), types.UserInput{ProductLink: testLink, Rating: 5})
	require.NoError(t, err)
	assert.Equal(t, "Gadget Pro 3000", review.ProductName)

	require.Len(t, llm.prompts, 1)
	user := llm.prompts[0][1].Content
	assert.Contains(t, user, "Gadget Pro 3000")
	assert.Contains(t, user, "a nice gadget")
	assert.Contains(t, user, "- Love it.")
}

func TestCompose_NoNameAnywhereFails(t *testing.T) {
	prods := &fakeProducts{info: product.Info{Name: product.SentinelName}}
	svc := newTestService(t, prods, &fakeReviews{}, &fakeLLM{responses: []string{validCompletion}})

	_, err := svc.Compose(context.Background(), types.UserInput{ProductLink: testLink, Rating: 4})
	var compErr *CompositionError
	require.True(t, errors.As(err, &compErr))
	assert.Equal(t, KindProductFetch, compErr.Kind)
}

func TestCompose_SkipReviews(t *testing.T) {
	prods := &fakeProducts{info: product.Info{Name: "Travel Kettle"}}
	revs := &fakeReviews{}
	llm := &fakeLLM{responses: []string{validCompletion}}
	svc := newTestService(t, prods, revs, llm)

	_, err := svc.Compose(context.Background(), types.UserInput{ProductLink: testLink, Rating: 4, SkipReviews: true})
	require.NoError(t, err)
	assert.False(t, revs.called)
}

func TestCompose_MissingCompletionKey(t *testing.T) {
	prods := &fakeProducts{info: product.Info{Name: "Travel Kettle"}}
	llm := &fakeLLM{err: eino.ErrAPIKeyMissing}
	svc := newTestService(t, prods, &fakeReviews{}, llm)

	_, err := svc.Compose(context.Background(), types.UserInput{ProductLink: testLink, Rating: 4})
	var compErr *CompositionError
	require.True(t, errors.As(err, &compErr))
	assert.Equal(t, KindMissingConfig, compErr.Kind)
}

func TestCompose_RetriesOnceOnSchemaViolation(t *testing.T) {
	prods := &fakeProducts{info: product.Info{Name: "Travel Kettle"}}
	llm := &fakeLLM{responses: []string{"I cannot produce JSON, sorry.", validCompletion}}
	svc := newTestService(t, prods, &fakeReviews{}, llm)

	review, err := svc.Compose(context.Background(), types.UserInput{ProductLink: testLink, Rating: 4})
	require.NoError(t, err)
	assert.Equal(t, "Great little kettle", review.Title)
	assert.Len(t, llm.prompts, 2)
}

func TestCompose_PersistentSchemaViolationFails(t *testing.T) {
	prods := &fakeProducts{info: product.Info{Name: "Travel Kettle"}}
	llm := &fakeLLM{responses: []string{`{"title": "", "body": "x"}`}}
	svc := newTestService(t, prods, &fakeReviews{}, llm)

	_, err := svc.Compose(context.Background(), types.UserInput{ProductLink: testLink, Rating: 4})
	var compErr *CompositionError
	require.True(t, errors.As(err, &compErr))
	assert.Equal(t, KindGeneration, compErr.Kind)
	var schemaErr *SchemaError
	assert.True(t, errors.As(err, &schemaErr))
}

func TestRefine_AppendsCommentAndKeepsID(t *testing.T) {
	prods := &fakeProducts{info: product.Info{Name: "Travel Kettle"}}
	llm := &fakeLLM{responses: []string{validCompletion}}
	svc := newTestService(t, prods, &fakeReviews{}, llm)

	first, err := svc.Compose(context.Background(), types.UserInput{
		ProductLink: testLink,
		Rating:      4,
		Feedback:    "heats quickly",
	})
	require.NoError(t, err)

	refined, err := svc.Refine(context.Background(), first.ID, "mention the short cord")
	require.NoError(t, err)
	assert.Equal(t, first.ID, refined.ID)
	assert.Equal(t, "Travel Kettle", refined.ProductName)

	require.Len(t, llm.prompts, 2)
	user := llm.prompts[1][1].Content
	assert.Contains(t, user, "heats quickly")
	assert.Contains(t, user, "Additional comments from the customer")
	assert.Contains(t, user, "mention the short cord")
}

func TestRefine_UnknownSession(t *testing.T) {
	svc := newTestService(t, &fakeProducts{}, &fakeReviews{}, &fakeLLM{})
	_, err := svc.Refine(context.Background(), "no-such-id", "anything")
	var compErr *CompositionError
	require.True(t, errors.As(err, &compErr))
	assert.Equal(t, KindSessionNotFound, compErr.Kind)
}

func TestDiscard_EndsSession(t *testing.T) {
	prods := &fakeProducts{info: product.Info{Name: "Travel Kettle"}}
	llm := &fakeLLM{responses: []string{validCompletion}}
	svc := newTestService(t, prods, &fakeReviews{}, llm)

	first, err := svc.Compose(context.Background(), types.UserInput{ProductLink: testLink, Rating: 4})
	require.NoError(t, err)

	require.NoError(t, svc.Discard(context.Background(), first.ID))

	var compErr *CompositionError
	_, err = svc.Refine(context.Background(), first.ID, "more detail")
	require.True(t, errors.As(err, &compErr))
	assert.Equal(t, KindSessionNotFound, compErr.Kind)

	err = svc.Discard(context.Background(), first.ID)
	require.True(t, errors.As(err, &compErr))
	assert.Equal(t, KindSessionNotFound, compErr.Kind)
}

func TestRefine_EmptyComment(t *testing.T) {
	svc := newTestService(t, &fakeProducts{}, &fakeReviews{}, &fakeLLM{})
	_, err := svc.Refine(context.Background(), "some-id", "   ")
	var compErr *CompositionError
	require.True(t, errors.As(err, &compErr))
	assert.Equal(t, KindBadInput, compErr.Kind)
}

func TestParseCompletion(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    draft
		wantErr bool
	}{
		{"plain object", validCompletion, draft{Title: "Great little kettle", Body: "It boils fast and packs small."}, false},
		{"fenced json", "```json\n" + validCompletion + "\n```", draft{Title: "Great little kettle", Body: "It boils fast and packs small."}, false},
		{"prose wrapped", "Here is the review:\n" + validCompletion + "\nHope this helps!", draft{Title: "Great little kettle", Body: "It boils fast and packs small."}, false},
		{"extra fields tolerated", `{"title": "T", "body": "B", "rating": 5}`, draft{Title: "T", Body: "B"}, false},
		{"no object", "sorry, cannot help", draft{}, true},
		{"missing body", `{"title": "T"}`, draft{}, true},
		{"whitespace body", `{"title": "T", "body": "   "}`, draft{}, true},
		{"placeholder in body", `{"title": "T", "body": "Perfect gift for [name]"}`, draft{}, true},
		{"placeholder in title", `{"title": "[insert title]", "body": "B"}`, draft{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseCompletion(tt.content)
			if tt.wantErr {
				var schemaErr *SchemaError
				require.True(t, errors.As(err, &schemaErr))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseCompletion_BodyWithBracesSurvivesBoundaryTrim(t *testing.T) {
	got, err := parseCompletion(`{"title": "T", "body": "Settings {advanced} worked well"}`)
	require.NoError(t, err)
	assert.True(t, strings.Contains(got.Body, "{advanced}"))
}
