package tasksource

import (
	"errors"
	"fmt"
	"net/http"
)

var (
	// ErrNotFound is returned when an issue or task cannot be found.
	ErrNotFound = errors.New("not found")

	// ErrInvalidConfig is returned when client configuration is invalid.
	ErrInvalidConfig = errors.New("invalid source configuration")

	// ErrRateLimited is returned when the remote API throttles us.
	ErrRateLimited = errors.New("rate limited")
)

// APIError is a non-success HTTP response from a remote API.
type APIError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s API returned status %d: %s", e.Service, e.StatusCode, e.Body)
}

// Unwrap maps well-known statuses onto the package sentinels.
func (e *APIError) Unwrap() error {
	switch e.StatusCode {
	case http.StatusNotFound:
		return ErrNotFound
	case http.StatusTooManyRequests:
		return ErrRateLimited
	}
	return nil
}

// GraphQLError is an error reported in a GraphQL response body.
type GraphQLError struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

func (e *GraphQLError) Error() string {
	if e.Type != "" {
		return fmt.Sprintf("GitHub GraphQL error (%s): %s", e.Type, e.Message)
	}
	return "GitHub GraphQL error: " + e.Message
}

func (e *GraphQLError) Unwrap() error {
	switch e.Type {
	case "NOT_FOUND":
		return ErrNotFound
	case "RATE_LIMITED":
		return ErrRateLimited
	}
	return nil
}

// isStatus reports whether err carries an APIError with the given status.
func isStatus(err error, status int) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == status
}
