package apirouter

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/hookline/hookline/internal/idgen"
	"github.com/hookline/hookline/internal/logging"
	"github.com/hookline/hookline/internal/models"
	"github.com/hookline/hookline/internal/store"
)

// ErrorResponse is the wire shape of every API error:
// {"error": "...", "messages": ["..."]}.
type ErrorResponse struct {
	Err      error    `json:"-"`
	Code     int      `json:"-"`
	Message  string   `json:"error"`
	Messages []string `json:"messages,omitempty"`
}

func (e ErrorResponse) Error() string {
	return e.Message
}

func NewErrValidation(messages ...string) ErrorResponse {
	return ErrorResponse{
		Code:     http.StatusBadRequest,
		Message:  "validation error",
		Messages: messages,
	}
}

func NewErrNotFound(entity string) ErrorResponse {
	return ErrorResponse{
		Code:    http.StatusNotFound,
		Message: entity + " not found",
	}
}

func NewErrInternalServer(err error) ErrorResponse {
	return ErrorResponse{
		Err:     err,
		Code:    http.StatusInternalServerError,
		Message: "internal server error",
	}
}

func ErrorHandlerMiddleware(logger *logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		err := c.Errors.Last()
		if err == nil {
			return
		}

		var errorResponse ErrorResponse
		if errors.As(err.Err, &errorResponse) {
			if errorResponse.Code > 499 {
				logger.Ctx(c.Request.Context()).Error("internal server error", zap.Error(errorResponse.Err))
			}
			c.JSON(errorResponse.Code, errorResponse)
			return
		}

		if isInvalidJSON(err) {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Code:    http.StatusBadRequest,
				Message: "invalid JSON",
			})
			return
		}

		var validationErrors validator.ValidationErrors
		if errors.As(err.Err, &validationErrors) {
			var messages []string
			for _, fieldErr := range validationErrors {
				messages = append(messages, formatValidationError(fieldErr))
			}
			c.JSON(http.StatusBadRequest, NewErrValidation(messages...))
			return
		}

		if isDomainValidation(err.Err) {
			c.JSON(http.StatusBadRequest, NewErrValidation(err.Err.Error()))
			return
		}

		logger.Ctx(c.Request.Context()).Error("unhandled request error", zap.Error(err.Err))
		c.JSON(http.StatusInternalServerError, NewErrInternalServer(err.Err))
	}
}

func isInvalidJSON(err *gin.Error) bool {
	var syntaxError *json.SyntaxError
	var unmarshalTypeError *json.UnmarshalTypeError
	return errors.Is(err.Err, io.EOF) ||
		errors.Is(err.Err, io.ErrUnexpectedEOF) ||
		errors.As(err.Err, &syntaxError) ||
		errors.As(err.Err, &unmarshalTypeError)
}

func isDomainValidation(err error) bool {
	return errors.Is(err, models.ErrInvalidTopic) ||
		errors.Is(err, models.ErrTopicsRequired) ||
		errors.Is(err, models.ErrInvalidEndpointURL) ||
		errors.Is(err, models.ErrInvalidPayload) ||
		errors.Is(err, models.ErrApplicationNameRequired)
}

func formatValidationError(fieldErr validator.FieldError) string {
	switch fieldErr.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", fieldErr.Field())
	case "min":
		return fmt.Sprintf("%s must have at least %s items", fieldErr.Field(), fieldErr.Param())
	default:
		return fmt.Sprintf("%s is invalid", fieldErr.Field())
	}
}

// notFoundOnLookupError maps a malformed or unknown id to 404 so the API
// does not leak the distinction between "never existed" and "wrong format".
func notFoundOnLookupError(c *gin.Context, entity string, err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, idgen.ErrInvalidID) || errors.Is(err, store.ErrNotFound) {
		c.Error(NewErrNotFound(entity))
		return true
	}
	c.Error(NewErrInternalServer(err))
	return true
}
