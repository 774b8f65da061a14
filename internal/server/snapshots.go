package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	snapshotdomain "github.com/smallbiznis/opspulse/internal/snapshot/domain"
)

func (s *Server) ListSnapshots(c *gin.Context) {
	var query snapshotdomain.ListRequest
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.snapshotSvc.List(c.Request.Context(), snapshotdomain.ListRequest{
		From:  strings.TrimSpace(query.From),
		To:    strings.TrimSpace(query.To),
		Limit: query.Limit,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) GetSnapshot(c *gin.Context) {
	resp, err := s.snapshotSvc.GetByDate(c.Request.Context(), strings.TrimSpace(c.Param("date")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// ComputeSnapshot recomputes one day on demand. Recomputing overwrites the
// stored row for that date.
func (s *Server) ComputeSnapshot(c *gin.Context) {
	resp, err := s.snapshotSvc.ComputeAndPersistDailySnapshot(c.Request.Context(), strings.TrimSpace(c.Param("date")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
