package errors

import (
	"errors"
	"strings"
)

// Classifier maps arbitrary errors onto the closed category taxonomy using
// status-code and substring heuristics. The substrings are policy, not
// contract; callers may override them per deployment.
type Classifier struct {
	AuthSubstrings       []string
	ValidationSubstrings []string
	RateLimitSubstrings  []string
	ConnectionSubstrings []string
	DataSubstrings       []string
}

// DefaultClassifier returns the classifier with the stock heuristics.
func DefaultClassifier() *Classifier {
	return &Classifier{
		AuthSubstrings:       []string{"unauthorized", "authentication", "token expired", "invalid_grant", "forbidden"},
		ValidationSubstrings: []string{"validation", "invalid", "required field", "bad request"},
		RateLimitSubstrings:  []string{"rate limit", "throttle", "too many requests"},
		ConnectionSubstrings: []string{"network", "timeout", "connection refused", "connection reset", "unavailable", "circuit open"},
		DataSubstrings:       []string{"not found", "duplicate", "already exists", "stale object"},
	}
}

// Classify is a pure function from an error to its category.
func (c *Classifier) Classify(err error) Category {
	if err == nil {
		return CategoryUnknown
	}

	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr.Category
	}

	var remoteErr *RemoteError
	if errors.As(err, &remoteErr) {
		switch {
		case remoteErr.StatusCode == 401 || remoteErr.StatusCode == 403:
			return CategoryAuth
		case remoteErr.StatusCode == 429:
			return CategoryRateLimit
		case remoteErr.StatusCode == 400:
			return CategoryValidation
		case remoteErr.StatusCode >= 500:
			return CategoryConnection
		}
	}

	if IsCircuitOpen(err) {
		return CategoryConnection
	}

	msg := strings.ToLower(err.Error())
	for _, s := range c.AuthSubstrings {
		if strings.Contains(msg, s) {
			return CategoryAuth
		}
	}
	for _, s := range c.RateLimitSubstrings {
		if strings.Contains(msg, s) {
			return CategoryRateLimit
		}
	}
	for _, s := range c.ConnectionSubstrings {
		if strings.Contains(msg, s) {
			return CategoryConnection
		}
	}
	for _, s := range c.DataSubstrings {
		if strings.Contains(msg, s) {
			return CategoryData
		}
	}
	for _, s := range c.ValidationSubstrings {
		if strings.Contains(msg, s) {
			return CategoryValidation
		}
	}

	return CategoryUnknown
}

var defaultClassifier = DefaultClassifier()

// Classify classifies err with the default heuristics.
func Classify(err error) Category {
	return defaultClassifier.Classify(err)
}
