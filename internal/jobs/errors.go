package jobs

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	// ErrEmptySelection is returned when an enrichment is started without companies
	ErrEmptySelection = errors.New("select at least one company")

	// ErrMissingID is returned when a required path identifier is empty
	ErrMissingID = errors.New("identifier is required")

	// ErrInvalidResponse wraps bodies that do not match the expected schema
	ErrInvalidResponse = errors.New("invalid job api response")
)

// StatusError is a non-2xx reply from the job API
type StatusError struct {
	Method     string
	Path       string
	StatusCode int
	Message    string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("job api %s %s: %d: %s", e.Method, e.Path, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("job api %s %s: %d %s", e.Method, e.Path, e.StatusCode, http.StatusText(e.StatusCode))
}

// HTTPStatus returns the status the job API answered with
func (e *StatusError) HTTPStatus() int {
	return e.StatusCode
}

// IsNotFound reports whether err is a 404 from the job API
func IsNotFound(err error) bool {
	var se *StatusError
	return errors.As(err, &se) && se.StatusCode == http.StatusNotFound
}

// errorMessage extracts a readable message from an error body.
// JSON bodies with an error or message member are unwrapped; anything else is trimmed text.
func errorMessage(body []byte) string {
	var payload struct {
		Error   string `json:"error"`
		Message string `json:"message"`
		Detail  string `json:"detail"`
	}
	if json.Unmarshal(body, &payload) == nil {
		for _, s := range []string{payload.Message, payload.Error, payload.Detail} {
			if s != "" {
				return s
			}
		}
	}
	msg := strings.TrimSpace(string(body))
	if len(msg) > 200 {
		msg = msg[:200]
	}
	return msg
}
