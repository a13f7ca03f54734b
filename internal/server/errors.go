package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"brigadas-analytics/internal/database"
	"brigadas-analytics/internal/services/hierarchy"
	"brigadas-analytics/internal/services/profiles"
)

// ErrorResponse is the body of every non-2xx response
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

// classify maps an error to its HTTP status and machine-readable code
func classify(err error) (int, string) {
	var (
		verr *hierarchy.ValidationError
		berr *hierarchy.BuildError
		gerr *hierarchy.GatewayError
	)
	switch {
	case errors.As(err, &verr), errors.Is(err, hierarchy.ErrInvalidFilter):
		return http.StatusBadRequest, "INVALID_FILTER"
	case errors.Is(err, hierarchy.ErrInvalidBand):
		return http.StatusBadRequest, "INVALID_BAND"
	case errors.Is(err, hierarchy.ErrUnsupportedFormat):
		return http.StatusBadRequest, "UNSUPPORTED_FORMAT"
	case errors.Is(err, profiles.ErrInvalidRequest):
		return http.StatusBadRequest, "INVALID_REQUEST"
	case errors.Is(err, database.ErrNotFound), errors.Is(err, gorm.ErrRecordNotFound):
		return http.StatusNotFound, "NOT_FOUND"
	case errors.As(err, &berr):
		return http.StatusBadGateway, "MALFORMED_DATA"
	case errors.As(err, &gerr):
		return http.StatusServiceUnavailable, "GATEWAY_UNAVAILABLE"
	default:
		return http.StatusInternalServerError, "INTERNAL"
	}
}

func (h *Handlers) fail(c *gin.Context, err error) {
	status, code := classify(err)
	if status >= http.StatusInternalServerError {
		h.Logger.Error("Request failed", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.AbortWithStatusJSON(status, ErrorResponse{Error: err.Error(), Code: code})
}

func badRequest(c *gin.Context, code string, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request", Code: code, Details: err.Error()})
}
