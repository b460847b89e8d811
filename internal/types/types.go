package types

// UserInput is the caller-supplied request for one composition.
type UserInput struct {
	ProductLink string `json:"product_link"`
	Rating      int    `json:"rating,omitempty"` // 1..5, 0 means not provided
	Feedback    string `json:"feedback,omitempty"`
	Voice       string `json:"voice,omitempty"`
	SkipReviews bool   `json:"skip_reviews,omitempty"`
}

// ComposedReview is the terminal artifact of a composition. Title and Body
// are always non-empty, de-fenced model output.
type ComposedReview struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Body        string `json:"body"`
	ProductName string `json:"product_name"`
	ImageURL    string `json:"image_url,omitempty"`
}
