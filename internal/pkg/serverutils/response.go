package serverutils

import (
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
)

type ApiResponse[T any] struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Data    T      `json:"data,omitempty"`
}

func SuccessResponse[T any](message string, data T) ApiResponse[T] {
	return ApiResponse[T]{
		Success: true,
		Message: message,
		Data:    data,
	}
}

var validate = validator.New()

// ValidateRequest runs struct-tag validation on a request DTO and converts
// validator errors into a client-visible 400 ApiError.
func ValidateRequest(req interface{}) error {
	err := validate.Struct(req)
	if err == nil {
		return nil
	}

	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return NewApiError(400, "Invalid request body")
	}

	var messages []string
	for _, fe := range validationErrors {
		messages = append(messages, fmt.Sprintf("field '%s' failed on '%s'", fe.Field(), fe.Tag()))
	}
	return NewApiError(400, strings.Join(messages, "; "))
}
