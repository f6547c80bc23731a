package httputil

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"

	"github.com/go-playground/validator/v10"

	"ecoaction/internal/apperror"
	"ecoaction/internal/model"
)

// Error codes returned in the "code" field of error responses
const (
	ErrCodeValidation   = "VALIDATION_ERROR"
	ErrCodeUnauthorized = "UNAUTHORIZED"
	ErrCodeForbidden    = "FORBIDDEN"
	ErrCodeNotFound     = "NOT_FOUND"
	ErrCodeConflict     = "CONFLICT"
	ErrCodeRateLimited  = "RATE_LIMITED"
	ErrCodeDelivery     = "DELIVERY_FAILED"
	ErrCodeUnavailable  = "UNAVAILABLE"
	ErrCodeInternal     = "INTERNAL_ERROR"
)

const maxJSONBodyBytes = 1 << 20

var validate = validator.New()

// ErrorResponse is the body of every error response:
// {"error": "Human readable message", "code": "ERROR_CODE"}
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Field string `json:"field,omitempty"`
}

// MessageResponse is a success body with only a message.
type MessageResponse struct {
	Message string `json:"message"`
}

// WriteJSON writes a JSON response with the given status code
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	if data != nil {
		if err := json.NewEncoder(w).Encode(data); err != nil {
			slog.Warn("failed to encode response", slog.Any("error", err))
		}
	}
}

// WriteMessage writes {"message": message} with status 200.
func WriteMessage(w http.ResponseWriter, message string) {
	WriteJSON(w, http.StatusOK, MessageResponse{Message: message})
}

func WriteError(w http.ResponseWriter, status int, code string, message string) {
	WriteJSON(w, status, ErrorResponse{Error: message, Code: code})
}

// WriteBadRequest writes a 400 Bad Request error
func WriteBadRequest(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusBadRequest, ErrCodeValidation, message)
}

// WriteUnauthorized writes a 401 Unauthorized error
func WriteUnauthorized(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusUnauthorized, ErrCodeUnauthorized, message)
}

// WriteInternalError writes a 500 Internal Server Error
func WriteInternalError(w http.ResponseWriter, message string) {
	WriteError(w, http.StatusInternalServerError, ErrCodeInternal, message)
}

// WriteAppError maps err onto a status code and error body. Errors that are
// not AppErrors are logged and answered with a generic 500.
func WriteAppError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, model.ErrFileTooLarge):
		WriteError(w, http.StatusBadRequest, model.CodeFileTooLarge, "file is too large")
		return
	case errors.Is(err, model.ErrInvalidImageType):
		WriteError(w, http.StatusBadRequest, model.CodeInvalidImageType, "unsupported image type")
		return
	}

	var appErr *apperror.AppError
	if !errors.As(err, &appErr) {
		slog.ErrorContext(r.Context(), "unhandled error",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
		WriteInternalError(w, "internal server error")
		return
	}

	status, code := statusFor(appErr.Err)
	message := appErr.Message
	if status >= http.StatusInternalServerError {
		slog.ErrorContext(r.Context(), "request failed",
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.Any("error", err),
		)
	}

	WriteJSON(w, status, ErrorResponse{Error: message, Code: code, Field: appErr.Field})
}

func statusFor(kind error) (int, string) {
	switch kind {
	case apperror.ErrValidation:
		return http.StatusBadRequest, ErrCodeValidation
	case apperror.ErrUnauthorized:
		return http.StatusUnauthorized, ErrCodeUnauthorized
	case apperror.ErrForbidden:
		return http.StatusForbidden, ErrCodeForbidden
	case apperror.ErrNotFound:
		return http.StatusNotFound, ErrCodeNotFound
	case apperror.ErrConflict:
		return http.StatusConflict, ErrCodeConflict
	case apperror.ErrRateLimited:
		return http.StatusTooManyRequests, ErrCodeRateLimited
	case apperror.ErrDelivery:
		return http.StatusInternalServerError, ErrCodeDelivery
	case apperror.ErrUnavailable:
		return http.StatusServiceUnavailable, ErrCodeUnavailable
	default:
		return http.StatusInternalServerError, ErrCodeInternal
	}
}

// DecodeJSON reads a JSON body into dst and runs its validate tags.
// Failures come back as validation AppErrors.
func DecodeJSON(r *http.Request, dst interface{}) error {
	dec := json.NewDecoder(http.MaxBytesReader(nil, r.Body, maxJSONBodyBytes))
	if err := dec.Decode(dst); err != nil {
		return apperror.ValidationFailed("", "invalid request body")
	}
	return Validate(dst)
}

// Validate runs the validate tags on v.
func Validate(v interface{}) error {
	err := validate.Struct(v)
	if err == nil {
		return nil
	}

	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		field := toSnake(fe.Field())
		return apperror.ValidationFailed(field, validationMessage(field, fe))
	}
	return apperror.ValidationFailed("", "invalid request")
}

func validationMessage(field string, fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "email":
		return fmt.Sprintf("%s must be a valid email address", field)
	case "len":
		return fmt.Sprintf("%s must be exactly %s characters", field, fe.Param())
	case "numeric":
		return fmt.Sprintf("%s must contain only digits", field)
	case "max":
		return fmt.Sprintf("%s must be at most %s", field, fe.Param())
	case "gte", "gt":
		return fmt.Sprintf("%s must be %s %s", field, map[string]string{"gte": "at least", "gt": "greater than"}[fe.Tag()], fe.Param())
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, fe.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}

// toSnake converts a Go field name such as FriendID to friend_id.
func toSnake(name string) string {
	var b strings.Builder
	runes := []rune(name)
	for i, r := range runes {
		upper := r >= 'A' && r <= 'Z'
		if upper && i > 0 {
			prevLower := runes[i-1] >= 'a' && runes[i-1] <= 'z'
			nextLower := i+1 < len(runes) && runes[i+1] >= 'a' && runes[i+1] <= 'z'
			if prevLower || nextLower {
				b.WriteByte('_')
			}
		}
		if upper {
			r += 'a' - 'A'
		}
		b.WriteRune(r)
	}
	return b.String()
}
