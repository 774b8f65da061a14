package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	alertdomain "github.com/smallbiznis/opspulse/internal/alert/domain"
	exportdomain "github.com/smallbiznis/opspulse/internal/export/domain"
	snapshotdomain "github.com/smallbiznis/opspulse/internal/snapshot/domain"
	thresholddomain "github.com/smallbiznis/opspulse/internal/threshold/domain"
	"github.com/smallbiznis/opspulse/pkg/db"
	"github.com/smallbiznis/opspulse/pkg/db/pagination"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
)

// fieldErrors maps domain sentinels to the request field they reject. The
// sentinel text doubles as the client-facing code.
var fieldErrors = []struct {
	err     error
	field   string
	message string
}{
	{ErrInvalidRequest, "request", "invalid request"},
	{pagination.ErrInvalidPageToken, "page_token", "invalid page token"},

	{snapshotdomain.ErrInvalidDate, "date", "date must be YYYY-MM-DD"},
	{snapshotdomain.ErrInvalidRange, "to", "to must not precede from"},

	{thresholddomain.ErrInvalidMetricKey, "metric_key", "unknown metric"},
	{thresholddomain.ErrInvalidWarning, "warning", "warning must be a non-negative number"},
	{thresholddomain.ErrInvalidCritical, "critical", "critical must be a non-negative number"},
	{thresholddomain.ErrInvalidOrder, "warning", "warning must be below critical"},

	{alertdomain.ErrInvalidMetricType, "metric_type", "unknown metric type"},
	{alertdomain.ErrInvalidAffectedItem, "affected_item", "affected_item is required"},
	{alertdomain.ErrInvalidValue, "value", "value must be a finite number"},
	{alertdomain.ErrInvalidSeverity, "severity", "severity must be WARNING or CRITICAL"},
	{alertdomain.ErrInvalidRange, "to", "to must not precede from"},

	{exportdomain.ErrInvalidReportType, "report_type", "unsupported report type"},
	{exportdomain.ErrInvalidFormat, "format", "format must be csv, xlsx or pdf"},
	{exportdomain.ErrInvalidDate, "date", "dates must be YYYY-MM-DD"},
	{exportdomain.ErrInvalidRange, "date_to", "date_to must not precede date_from"},
	{exportdomain.ErrRangeTooLarge, "date_to", "date range exceeds the allowed maximum"},
	{exportdomain.ErrInvalidJobID, "job_id", "invalid job id"},
}

var notFoundErrors = []error{
	ErrNotFound,
	snapshotdomain.ErrNotFound,
	thresholddomain.ErrNotFound,
}

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		last := c.Errors.Last()
		if last == nil || c.Writer.Written() {
			return
		}
		status, payload := mapError(last.Err)
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{Errors: []ValidationError{{Field: field, Code: code, Message: message}}}
}

func mapError(err error) (int, errorPayload) {
	var vErrs *ValidationErrors
	if errors.As(err, &vErrs) && vErrs != nil {
		return http.StatusBadRequest, validationPayload(vErrs.Errors...)
	}
	for _, fe := range fieldErrors {
		if errors.Is(err, fe.err) {
			return http.StatusBadRequest, validationPayload(ValidationError{
				Field:   fe.field,
				Code:    fe.err.Error(),
				Message: fe.message,
			})
		}
	}
	for _, target := range notFoundErrors {
		if errors.Is(err, target) || db.IsNotFound(err) {
			return http.StatusNotFound, errorPayload{Type: "not_found", Message: "not found"}
		}
	}

	switch {
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{Type: "rate_limited", Message: "too many requests"}
	case errors.Is(err, ErrServiceUnavailable):
		return http.StatusServiceUnavailable, errorPayload{Type: "service_unavailable", Message: "service unavailable"}
	default:
		return http.StatusInternalServerError, errorPayload{Type: "internal_error", Message: "internal server error"}
	}
}

func validationPayload(errs ...ValidationError) errorPayload {
	return errorPayload{Type: "validation_error", Message: "validation error", Errors: errs}
}

// classifyErrorForLog feeds the request logger the same taxonomy the client sees.
func classifyErrorForLog(err error) (string, string) {
	if err == nil {
		return "", ""
	}
	_, payload := mapError(err)
	if len(payload.Errors) > 0 {
		return payload.Type, payload.Errors[0].Code
	}
	return payload.Type, payload.Type
}
