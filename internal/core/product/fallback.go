package product

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	html2markdown "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/PuerkitoBio/goquery"

	"reviewforge/internal/core/resolver"
	"reviewforge/internal/logger"
)

// PageSource is the secondary product-info source: a plain GET of the product
// page itself, parsed directly. Used only when the provider path fails.
type PageSource struct {
	http *http.Client
	// baseURL overrides the marketplace host; tests point it at a local server.
	baseURL string
	log     *logger.Logger
}

type PageSourceOptions struct {
	Timeout time.Duration
	BaseURL string
}

func NewPageSource(opts PageSourceOptions) *PageSource {
	if opts.Timeout <= 0 {
		opts.Timeout = 20 * time.Second
	}
	return &PageSource{
		http:    &http.Client{Timeout: opts.Timeout},
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		log:     logger.New("ProductPage"),
	}
}

func (p *PageSource) productURL(ref resolver.ProductRef) string {
	if p.baseURL != "" {
		return fmt.Sprintf("%s/dp/%s", p.baseURL, ref.ItemID)
	}
	return fmt.Sprintf("https://www.amazon.%s/dp/%s", ref.Marketplace, ref.ItemID)
}

// Fetch retrieves and parses the product page.
func (p *PageSource) Fetch(ctx context.Context, ref resolver.ProductRef) (Info, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.productURL(ref), nil)
	if err != nil {
		return Info{}, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36")
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")

	resp, err := p.http.Do(req)
	if err != nil {
		return Info{}, fmt.Errorf("product page request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return Info{}, fmt.Errorf("product page returned status %d", resp.StatusCode)
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return Info{}, fmt.Errorf("parse product page: %w", err)
	}
	if isBotChallenge(doc) {
		return Info{}, fmt.Errorf("marketplace requested captcha verification")
	}

	name := strings.TrimSpace(doc.Find("#productTitle").First().Text())
	if name == "" {
		name, _ = doc.Find(`meta[property="og:title"]`).Attr("content")
		name = strings.TrimSpace(name)
	}
	if name == "" {
		return Info{}, fmt.Errorf("product page has no title")
	}

	return Info{
		Name:        truncate(name, maxNameLen),
		Description: truncate(pageDescription(doc), maxDescriptionLen),
		ImageURL:    pageImage(doc),
	}, nil
}

func pageDescription(doc *goquery.Document) string {
	var bullets []string
	doc.Find("#feature-bullets li .a-list-item").Each(func(_ int, sel *goquery.Selection) {
		if t := strings.TrimSpace(sel.Text()); t != "" {
			bullets = append(bullets, "- "+t)
		}
	})

	var body string
	if sel := doc.Find("#productDescription").First(); sel.Length() > 0 {
		if h, err := sel.Html(); err == nil {
			conv := html2markdown.NewConverter("", true, nil)
			if md, err := conv.ConvertString(h); err == nil {
				body = strings.TrimSpace(md)
			}
		}
	}

	switch {
	case body != "" && len(bullets) > 0:
		return body + "\n\n" + strings.Join(bullets, "\n")
	case len(bullets) > 0:
		return strings.Join(bullets, "\n")
	}
	return body
}

func pageImage(doc *goquery.Document) string {
	if src, ok := doc.Find("#landingImage").Attr("data-old-hires"); ok {
		if u := validImageURL(src); u != "" {
			return u
		}
	}
	if src, ok := doc.Find("#landingImage").Attr("src"); ok {
		if u := validImageURL(src); u != "" {
			return u
		}
	}
	if content, ok := doc.Find(`meta[property="og:image"]`).Attr("content"); ok {
		return validImageURL(content)
	}
	return ""
}

func isBotChallenge(doc *goquery.Document) bool {
	title := strings.ToLower(doc.Find("title").Text())
	return strings.Contains(title, "robot check") ||
		doc.Find(`form[action*="validateCaptcha"]`).Length() > 0
}
