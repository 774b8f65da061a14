package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	alertdomain "github.com/smallbiznis/opspulse/internal/alert/domain"
)

type evaluateMetricRequest struct {
	MetricType   string   `json:"metric_type"`
	AffectedItem string   `json:"affected_item"`
	Value        *float64 `json:"value"`
}

func (s *Server) EvaluateMetric(c *gin.Context) {
	var req evaluateMetricRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.Value == nil {
		AbortWithError(c, alertdomain.ErrInvalidValue)
		return
	}

	resp, err := s.alertSvc.EvaluateMetric(c.Request.Context(), alertdomain.EvaluateRequest{
		MetricType:   strings.TrimSpace(req.MetricType),
		AffectedItem: strings.TrimSpace(req.AffectedItem),
		Value:        *req.Value,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status := http.StatusOK
	if resp.Raised() {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"data": resp})
}

func (s *Server) ListAlerts(c *gin.Context) {
	var query alertdomain.ListRequest
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.alertSvc.List(c.Request.Context(), query)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, resp)
}
