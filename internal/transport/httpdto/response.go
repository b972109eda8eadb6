package httpdto

import salon_errors "salon-chat/pkg/errors"

type Response[T any] struct {
	Success bool   `json:"success"`
	Data    T      `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
	Code    string `json:"code,omitempty"`
}

func NewSuccessResponse[T any](data T) Response[T] {
	return Response[T]{
		Success: true,
		Data:    data,
	}
}

func NewErrorResponse(err string, code string) Response[any] {
	return Response[any]{
		Success: false,
		Error:   err,
		Code:    code,
	}
}

// FromError renders err with its stable kind as the code.
func FromError(err error) Response[any] {
	return NewErrorResponse(salon_errors.Reason(err), string(salon_errors.KindOf(err)))
}
