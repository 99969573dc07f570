package provider

import (
	"encoding/json"
	"net/http"
	"strings"
)

type Classification int

const (
	Unknown Classification = iota
	RateLimited
	QuotaExhausted
	Permanent
)

func (c Classification) String() string {
	switch c {
	case RateLimited:
		return "rate_limited"
	case QuotaExhausted:
		return "quota_exhausted"
	case Permanent:
		return "permanent"
	default:
		return "unknown"
	}
}

// RawResponse is whatever a provider returned for a failed call.
type RawResponse struct {
	StatusCode int
	// Status is the upstream status string, for example RESOURCE_EXHAUSTED.
	Status  string
	Message string
	Details []string
	Body    []byte
}

var quotaPhrases = []string{
	"limit: 0",
	"daily quota",
	"exceeded your current quota",
	"quota exceeded",
}

var rateLimitPhrases = []string{
	"resource exhausted",
	"resource_exhausted",
}

var permanentStatuses = []string{
	"invalid_argument",
	"permission_denied",
	"unauthenticated",
	"not_found",
}

// Classify maps a failed provider response onto the retry taxonomy. Quota phrases are checked
// before the status code because providers report quota exhaustion with a 429 too.
func Classify(r RawResponse) Classification {
	texts := r.texts()

	if containsAny(texts, quotaPhrases) {
		return QuotaExhausted
	}
	if r.StatusCode == http.StatusTooManyRequests || containsAny(texts, rateLimitPhrases) {
		return RateLimited
	}
	switch r.StatusCode {
	case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden,
		http.StatusNotFound, http.StatusUnprocessableEntity:
		return Permanent
	}
	if containsAny([]string{strings.ToLower(r.Status)}, permanentStatuses) || containsAny(texts, permanentStatuses) {
		return Permanent
	}
	return Unknown
}

// texts lowercases every string the response carries, including the ones nested in a JSON body.
func (r RawResponse) texts() []string {
	out := []string{strings.ToLower(r.Status), strings.ToLower(r.Message)}
	for _, d := range r.Details {
		out = append(out, strings.ToLower(d))
	}
	if len(r.Body) == 0 {
		return out
	}

	var decoded any
	if err := json.Unmarshal(r.Body, &decoded); err != nil {
		return append(out, strings.ToLower(string(r.Body)))
	}
	collectStrings(decoded, func(s string) {
		out = append(out, strings.ToLower(s))
	})
	return out
}

func collectStrings(v any, emit func(string)) {
	switch t := v.(type) {
	case string:
		emit(t)
	case []any:
		for _, item := range t {
			collectStrings(item, emit)
		}
	case map[string]any:
		for _, item := range t {
			collectStrings(item, emit)
		}
	}
}

func containsAny(texts []string, needles []string) bool {
	for _, text := range texts {
		if text == "" {
			continue
		}
		for _, needle := range needles {
			if strings.Contains(text, needle) {
				return true
			}
		}
	}
	return false
}
