package review

import "fmt"

// Kind classifies composition failures so the HTTP layer can map each to a
// status code without string matching.
type Kind string

const (
	// KindBadLink covers product links whose identifier or marketplace
	// cannot be resolved.
	KindBadLink Kind = "bad_link"
	// KindBadInput covers invalid request fields other than the link.
	KindBadInput Kind = "bad_input"
	// KindMissingConfig covers absent provider or completion secrets.
	KindMissingConfig Kind = "missing_config"
	// KindProductFetch covers total product-info failure; this is fatal
	// because a review composed about an unknown product is worthless.
	KindProductFetch Kind = "product_fetch_failed"
	// KindGeneration covers completion failures, including output that
	// does not satisfy the schema after retrying.
	KindGeneration Kind = "generation_failed"
	// KindSessionNotFound covers refinement against an expired or unknown
	// review session.
	KindSessionNotFound Kind = "session_not_found"
)

// CompositionError is the single error type the composer returns. The cause
// chain is preserved for logging; callers branch on Kind.
type CompositionError struct {
	Kind    Kind
	Message string
	cause   error
}

func (e *CompositionError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *CompositionError) Unwrap() error { return e.cause }

func newError(kind Kind, message string, cause error) *CompositionError {
	return &CompositionError{Kind: kind, Message: message, cause: cause}
}

// SchemaError reports a completion that could not be coerced into the
// two-field review object.
type SchemaError struct {
	Detail string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("completion violates review schema: %s", e.Detail)
}
