package server

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	alertdomain "github.com/smallbiznis/opspulse/internal/alert/domain"
	"github.com/smallbiznis/opspulse/internal/notification"
)

const (
	alertStreamHeartbeat = 15 * time.Second
	alertStreamRetry     = 2000
)

// StreamAlerts relays raised alerts as server-sent events. metric_type narrows
// the stream to one topic; the hub's backlog for that topic is replayed first.
func (s *Server) StreamAlerts(c *gin.Context) {
	flusher, canFlush := c.Writer.(http.Flusher)
	if s.alertHub == nil || !canFlush {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}

	topic := strings.ToLower(strings.TrimSpace(c.Query("metric_type")))
	if topic == "" {
		topic = notification.TopicAll
	}
	sub, backlog, err := s.alertHub.Subscribe(topic)
	if err != nil {
		AbortWithError(c, ErrServiceUnavailable)
		return
	}
	defer sub.Close()

	h := c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	h.Set("X-Accel-Buffering", "no")
	c.Status(http.StatusOK)

	out := &eventWriter{w: c.Writer, f: flusher}
	out.printf("retry: %d\n\n", alertStreamRetry)
	for _, event := range backlog {
		out.alert(event)
	}
	if !out.flush() {
		return
	}

	heartbeat := time.NewTicker(alertStreamHeartbeat)
	defer heartbeat.Stop()
	done := c.Request.Context().Done()
	for {
		select {
		case <-done:
			return
		case event := <-sub.Events():
			out.alert(event)
		case <-heartbeat.C:
			out.printf(": heartbeat\n\n")
		}
		if !out.flush() {
			return
		}
	}
}

// eventWriter keeps the first write error and turns later writes into no-ops.
type eventWriter struct {
	w   gin.ResponseWriter
	f   http.Flusher
	err error
}

func (e *eventWriter) printf(format string, args ...any) {
	if e.err == nil {
		_, e.err = fmt.Fprintf(e.w, format, args...)
	}
}

func (e *eventWriter) alert(event alertdomain.Event) {
	data, err := json.Marshal(event)
	if err != nil {
		e.err = err
		return
	}
	e.printf("id: %s\nevent: alert\ndata: %s\n\n", event.Alert.ID, data)
}

func (e *eventWriter) flush() bool {
	if e.err != nil {
		return false
	}
	e.f.Flush()
	return true
}
