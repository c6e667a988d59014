package togglekit

import (
	"errors"
	"fmt"
)

// ErrEval is the generic evaluation failure used on the non-detail path,
// where building a descriptive message would be wasted work.
var ErrEval = errors.New("evaluation error")

// ErrPrerequisiteDepthOverflow reports a prerequisite chain deeper than the
// configured maximum. Cycles among prerequisites also surface as this.
var ErrPrerequisiteDepthOverflow = errors.New("prerequisite depth overflow")

// EvalDetailError carries the diagnostic message for a detail-mode
// evaluation failure.
type EvalDetailError struct {
	Message string
}

func (e *EvalDetailError) Error() string {
	return "evaluation error: " + e.Message
}

// PrerequisiteNotExistError reports a prerequisite referencing a toggle key
// absent from the repository.
type PrerequisiteNotExistError struct {
	Key string
}

func (e *PrerequisiteNotExistError) Error() string {
	return fmt.Sprintf("prerequisite not exist: %s", e.Key)
}

// JSONError reports a malformed repository payload. Body is kept verbatim so
// the offending document can be logged.
type JSONError struct {
	Body string
	Err  error
}

func (e *JSONError) Error() string {
	return fmt.Sprintf("invalid json: %s error: %v", e.Body, e.Err)
}

func (e *JSONError) Unwrap() error { return e.Err }

// URLError reports a misconfigured endpoint.
type URLError struct {
	URL string
	Err error
}

func (e *URLError) Error() string {
	return fmt.Sprintf("invalid url: %s error: %v", e.URL, e.Err)
}

func (e *URLError) Unwrap() error { return e.Err }

// HTTPError reports a transport failure or a non-2xx response from the
// toggles endpoint.
type HTTPError struct {
	StatusCode int
	Err        error
}

func (e *HTTPError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("http error: %v", e.Err)
	}
	return fmt.Sprintf("http error: status %d", e.StatusCode)
}

func (e *HTTPError) Unwrap() error { return e.Err }
