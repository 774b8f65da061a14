package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	thresholddomain "github.com/smallbiznis/opspulse/internal/threshold/domain"
)

const defaultThresholdHistoryLimit = 50

type updateThresholdRequest struct {
	Warning  *float64 `json:"warning"`
	Critical *float64 `json:"critical"`
	Actor    string   `json:"actor"`
}

func (s *Server) UpdateThreshold(c *gin.Context) {
	var req updateThresholdRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.Warning == nil {
		AbortWithError(c, newValidationError("warning", "invalid_warning_threshold", "warning is required"))
		return
	}
	if req.Critical == nil {
		AbortWithError(c, newValidationError("critical", "invalid_critical_threshold", "critical is required"))
		return
	}

	actor := strings.TrimSpace(req.Actor)
	if actor == "" {
		actor = strings.TrimSpace(c.GetHeader(HeaderActor))
	}

	resp, err := s.thresholdSvc.UpdateThreshold(c.Request.Context(), thresholddomain.UpdateRequest{
		MetricKey: c.Param("metric"),
		Warning:   *req.Warning,
		Critical:  *req.Critical,
		Actor:     actor,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetThreshold(c *gin.Context) {
	current, err := s.thresholdSvc.Current(c.Request.Context(), c.Param("metric"))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if current == nil {
		AbortWithError(c, thresholddomain.ErrNotFound)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": thresholddomain.ToResponse(current)})
}

func (s *Server) ListThresholdHistory(c *gin.Context) {
	limit, err := queryLimit(c, "limit", defaultThresholdHistoryLimit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	resp, err := s.thresholdSvc.History(c.Request.Context(), c.Param("metric"), limit)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListThresholds(c *gin.Context) {
	resp, err := s.thresholdSvc.ListCurrent(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
