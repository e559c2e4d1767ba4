package server

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/rescale/notebook-filetree/internal/commands"
	"github.com/rescale/notebook-filetree/internal/contents"
	"github.com/rescale/notebook-filetree/internal/tree"
	"github.com/rescale/notebook-filetree/internal/upload"
)

// APIError is the JSON body of every failed request.
type APIError struct {
	Status  int    `json:"-"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func newBadRequest(message string, cause error) *APIError {
	if cause != nil {
		message = fmt.Sprintf("%s: %v", message, cause)
	}
	return &APIError{Status: http.StatusBadRequest, Code: "BAD_REQUEST", Message: message}
}

// toAPIError maps engine errors onto HTTP statuses.
func toAPIError(err error) *APIError {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr
	}
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		return &APIError{Status: httpErr.Code, Code: "HTTP_ERROR", Message: fmt.Sprintf("%v", httpErr.Message)}
	}

	status, code := http.StatusInternalServerError, "INTERNAL_ERROR"
	switch {
	case errors.Is(err, commands.ErrUnknownCommand):
		status, code = http.StatusNotFound, "UNKNOWN_COMMAND"
	case errors.Is(err, contents.ErrNotFound), errors.Is(err, tree.ErrRowNotFound):
		status, code = http.StatusNotFound, "NOT_FOUND"
	case errors.Is(err, commands.ErrMissingArgument),
		errors.Is(err, commands.ErrNoDestination),
		errors.Is(err, commands.ErrNoRoute),
		errors.Is(err, tree.ErrInvalidName):
		status, code = http.StatusBadRequest, "BAD_REQUEST"
	case errors.Is(err, contents.ErrForbidden), errors.Is(err, tree.ErrReadOnly):
		status, code = http.StatusForbidden, "FORBIDDEN"
	case errors.Is(err, contents.ErrConflict):
		status, code = http.StatusConflict, "CONFLICT"
	case errors.Is(err, upload.ErrFileTooLarge):
		status, code = http.StatusRequestEntityTooLarge, "FILE_TOO_LARGE"
	case errors.Is(err, tree.ErrStaleFetch):
		status, code = http.StatusServiceUnavailable, "STALE"
	}
	return &APIError{Status: status, Code: code, Message: err.Error()}
}

func (s *Server) errorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	apiErr := toAPIError(err)
	c.Response().Header().Del(echo.HeaderContentDisposition)
	if apiErr.Status >= http.StatusInternalServerError {
		s.logger.Error().Err(err).Str("path", c.Request().URL.Path).Msg("Request failed")
	}
	if err := c.JSON(apiErr.Status, apiErr); err != nil {
		s.logger.Warn().Err(err).Msg("Failed to write error response")
	}
}
