package turn

import (
	"errors"

	"google.golang.org/genai"
)

// BadRequestError is a 400 from the model API.
type BadRequestError struct {
	Message string
	Err     error
}

func (e *BadRequestError) Error() string { return e.Message }
func (e *BadRequestError) Unwrap() error { return e.Err }

// UnauthorizedError is a 401 from the model API. Turn.Run returns it
// instead of folding it into an ErrorEvent.
type UnauthorizedError struct {
	Message string
	Err     error
}

func (e *UnauthorizedError) Error() string { return e.Message }
func (e *UnauthorizedError) Unwrap() error { return e.Err }

// ForbiddenError is a 403 from the model API.
type ForbiddenError struct {
	Message string
	Err     error
}

func (e *ForbiddenError) Error() string { return e.Message }
func (e *ForbiddenError) Unwrap() error { return e.Err }

// apiError extracts a genai.APIError from err's chain.
func apiError(err error) (genai.APIError, bool) {
	var v genai.APIError
	if errors.As(err, &v) {
		return v, true
	}
	var p *genai.APIError
	if errors.As(err, &p) && p != nil {
		return *p, true
	}
	return genai.APIError{}, false
}

// Classify maps model API failures with a code and message to typed errors:
// 400 to *BadRequestError, 401 to *UnauthorizedError and 403 to
// *ForbiddenError. Any other error is returned unchanged.
func Classify(err error) error {
	apiErr, ok := apiError(err)
	if !ok || apiErr.Message == "" || apiErr.Code == 0 {
		return err
	}
	switch apiErr.Code {
	case 400:
		return &BadRequestError{Message: apiErr.Message, Err: err}
	case 401:
		return &UnauthorizedError{Message: apiErr.Message, Err: err}
	case 403:
		return &ForbiddenError{Message: apiErr.Message, Err: err}
	}
	return err
}

// statusOf returns the HTTP status carried by err, if any.
func statusOf(err error) *int {
	if apiErr, ok := apiError(err); ok && apiErr.Code != 0 {
		code := apiErr.Code
		return &code
	}
	return nil
}
