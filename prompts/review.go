package prompts

import (
	"fmt"
	"strings"

	"github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

// Bounds applied to the prompt payload so its size stays predictable.
const (
	MaxSnippets   = 10
	MaxSnippetLen = 400
)

// Compose is the review-writing template. The rules below are the contract
// the model must follow; the composer validates the output against the
// two-field schema and rejects anything else.
var Compose = prompt.FromMessages(
	schema.FString,
	schema.SystemMessage(`# Your Role
You are writing an authentic marketplace customer review on behalf of a real shopper.

# Output Contract
Return ONLY a single JSON object with exactly two string fields:
{{"title": "...", "body": "..."}}
No surrounding prose. No markdown fencing. No extra fields.

# Writing Rules
1. **Voice**: Write strictly in the first person, as the purchaser of the product. Requested voice: {voice}.
2. **Length**: Proportional to the richness of the customer's feedback. Detailed feedback yields multiple paragraphs; sparse or absent feedback yields a short, concise review.
3. **Tone by rating**: 4-5 stars favors the positives. 1-2 stars focuses on specific shortcomings. 3 stars, or written feedback with no rating, stays balanced. A rating with no written feedback means you infer the sentiment from the number alone. When neither is provided, write a brief, generally positive review.
4. **Grounding**: NEVER invent specific personal scenarios, named relationships, or gift-giving stories unless the customer's feedback explicitly supplied them.
5. **Naming**: Do not repeat the literal product name excessively; refer to it naturally.
6. **No placeholders**: Never emit bracketed fill-ins such as [name] or [insert detail].

**IMPORTANT**: Return ONLY the JSON object. No explanations, no markdown formatting, no additional text.`),

	schema.UserMessage(`# Product
{product_name}

# Product Description
{product_description}

# Customer Rating
{rating}

# Customer Feedback
{feedback}

# Existing Customer Reviews (grounding material only, do not copy)
{customer_reviews}

Write the review now. Return only the JSON object with "title" and "body".`),
)

// ComposeInput holds everything the compose template needs.
type ComposeInput struct {
	ProductName string
	Description string
	Rating      int // 0 means not provided
	Feedback    string
	Voice       string
	Snippets    []string
}

// Vars renders the input into template variables, applying the snippet cap
// and per-snippet truncation.
func (in ComposeInput) Vars() map[string]any {
	rating := "not provided"
	if in.Rating > 0 {
		rating = fmt.Sprintf("%d out of 5 stars", in.Rating)
	}

	feedback := strings.TrimSpace(in.Feedback)
	if feedback == "" {
		feedback = "not provided"
	}

	description := strings.TrimSpace(in.Description)
	if description == "" {
		description = "not provided"
	}

	voice := strings.TrimSpace(in.Voice)
	if voice == "" {
		voice = "natural everyday customer"
	}

	return map[string]any{
		"product_name":        in.ProductName,
		"product_description": description,
		"rating":              rating,
		"feedback":            feedback,
		"voice":               voice,
		"customer_reviews":    snippetBlock(in.Snippets),
	}
}

func snippetBlock(snippets []string) string {
	var lines []string
	for _, s := range snippets {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if len(s) > MaxSnippetLen {
			if r := []rune(s); len(r) > MaxSnippetLen {
				s = string(r[:MaxSnippetLen]) + "..."
			}
		}
		lines = append(lines, "- "+s)
		if len(lines) == MaxSnippets {
			break
		}
	}
	if len(lines) == 0 {
		return "none available"
	}
	return strings.Join(lines, "\n")
}
