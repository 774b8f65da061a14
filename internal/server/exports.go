package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"
	exportdomain "github.com/smallbiznis/opspulse/internal/export/domain"
	obslogger "github.com/smallbiznis/opspulse/internal/observability/logger"
)

const (
	HeaderIdempotencyKey = "Idempotency-Key"
	// HeaderActor identifies the caller when the request body does not.
	HeaderActor = "X-Actor"
)

type submitExportRequest struct {
	ReportType  string `json:"report_type"`
	DateFrom    string `json:"date_from"`
	DateTo      string `json:"date_to"`
	Format      string `json:"format"`
	RequestedBy string `json:"requested_by"`
}

// SubmitExport queues a report export. A repeated Idempotency-Key inside the
// dedup window returns the original job with 200 instead of 202.
func (s *Server) SubmitExport(c *gin.Context) {
	var req submitExportRequest
	if err := c.ShouldBindBodyWith(&req, binding.JSON); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	wait, err := queryFlag(c, "wait")
	if err != nil {
		AbortWithError(c, err)
		return
	}

	submit := exportdomain.SubmitRequest{
		ReportType:  strings.TrimSpace(req.ReportType),
		From:        strings.TrimSpace(req.DateFrom),
		To:          strings.TrimSpace(req.DateTo),
		Format:      strings.TrimSpace(req.Format),
		RequestedBy: requesterFromRequest(c, req.RequestedBy),
	}
	key := strings.TrimSpace(c.GetHeader(HeaderIdempotencyKey))

	ctx := c.Request.Context()
	var resp *exportdomain.SubmitResult
	if wait {
		resp, err = s.exportSvc.SubmitAndWait(ctx, submit, key)
	} else {
		resp, err = s.exportSvc.Submit(ctx, submit, key)
	}
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status := http.StatusAccepted
	if resp.Duplicate || (resp.Status != nil && resp.Status.Status.Terminal()) {
		status = http.StatusOK
	}
	c.Set(obslogger.ExportJobIDKey, resp.JobID)
	c.JSON(status, gin.H{"data": resp})
}

func (s *Server) GetExportStatus(c *gin.Context) {
	resp, err := s.exportSvc.Status(c.Request.Context(), strings.TrimSpace(c.Param("id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Set(obslogger.ExportJobIDKey, resp.JobID)
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func requesterFromRequest(c *gin.Context, fromBody string) string {
	if v := strings.TrimSpace(fromBody); v != "" {
		return v
	}
	return strings.TrimSpace(c.GetHeader(HeaderActor))
}
