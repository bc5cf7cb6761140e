package apierr

import (
	stderrors "errors"
	"strconv"
)

// Response is the JSON error structure returned to clients.
type Response struct {
	Error     Body   `json:"error"`
	RequestID string `json:"request_id"`
}

// Body contains the error details sent to clients.
type Body struct {
	Message string `json:"message"`
	Type    Type   `json:"type"`
	Code    string `json:"code"`
}

// ToResponse converts an Error to its client-facing JSON shape. The code
// field carries the HTTP status as a string.
func (e *Error) ToResponse() Response {
	return Response{
		Error: Body{
			Message: e.Message,
			Type:    e.Type,
			Code:    strconv.Itoa(e.HTTPStatus),
		},
		RequestID: e.RequestID,
	}
}

// As converts err to an *Error if possible.
func As(err error) (*Error, bool) {
	var apiErr *Error
	if stderrors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// From classifies an arbitrary error. Errors that are already classified
// pass through; anything else becomes a server_error.
func From(err error) *Error {
	if apiErr, ok := As(err); ok {
		return apiErr
	}
	return ServerError(err)
}
