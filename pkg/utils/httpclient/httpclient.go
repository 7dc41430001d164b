package httpclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

var (
	ErrUnexpectedStatusCode = errors.New("unexpected status code")
)

const errorBodyLimit = 512

// StatusError reports a response whose status code did not match the
// expected one. It carries the code so callers can branch on it.
type StatusError struct {
	API        string
	StatusCode int
	Status     string
	Body       string
}

func (e *StatusError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("%s: %v %s", e.API, ErrUnexpectedStatusCode, e.Status)
	}

	return fmt.Sprintf("%s: %v %s: %s", e.API, ErrUnexpectedStatusCode, e.Status, e.Body)
}

func (e *StatusError) Unwrap() error {
	return ErrUnexpectedStatusCode
}

// DecodeResponse decodes the HTTP response body into the provided type T.
// A mismatched status code yields a *StatusError holding the code and a
// snippet of the response body.
func DecodeResponse[T any](
	ctx context.Context,
	apiName string,
	resp *http.Response,
	expectedStatus int,
) (*T, error) {
	if resp.StatusCode != expectedStatus {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, errorBodyLimit))

		return nil, &StatusError{
			API:        apiName,
			StatusCode: resp.StatusCode,
			Status:     resp.Status,
			Body:       strings.TrimSpace(string(snippet)),
		}
	}

	var result T

	err := json.NewDecoder(resp.Body).Decode(&result)
	if err != nil {
		return nil, fmt.Errorf("invalid response from %s: %w", apiName, err)
	}

	return &result, nil
}
