package upstream

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/smallbiznis/opspulse/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPClientDecodesPartialRecords(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer secret", r.Header.Get("Authorization"))
		switch r.URL.Path {
		case "/api/sessions":
			assert.Equal(t, "closed", r.URL.Query().Get("status"))
			assert.Equal(t, "2024-05-01T00:00:00Z", r.URL.Query().Get("from"))
			_, _ = w.Write([]byte(`{"data":[
				{"id":1,"table_id":"T1","status":"CLOSED","total":"125.50","closed_at":"2024-05-01T13:00:00Z"},
				{"id":"s2","table_id":7,"status":"open","total":"n/a"}
			]}`))
		case "/api/orders":
			_, _ = w.Write([]byte(`{"data":[
				{"id":"o1","table_id":"T1","service_time_ms":90000},
				{"id":"o2","created_at":"2024-05-01 12:00:00","served_at":"2024-05-01T12:15:00Z"}
			]}`))
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	client := NewHTTPClient(config.Config{Upstream: config.UpstreamConfig{
		BaseURL:  srv.URL,
		APIToken: "secret",
		Timeout:  time.Second,
	}})
	from := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	to := from.Add(24 * time.Hour)

	sessions, err := client.ClosedSessions(context.Background(), from, to)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "1", sessions[0].ID)
	require.NotNil(t, sessions[0].Total)
	assert.Equal(t, "125.5", sessions[0].Total.String())
	require.NotNil(t, sessions[0].ClosedAt)
	assert.Equal(t, "7", sessions[1].TableID)
	assert.Nil(t, sessions[1].Total)
	assert.Nil(t, sessions[1].ClosedAt)

	orders, err := client.Orders(context.Background(), from, to)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	require.NotNil(t, orders[0].ServiceTimeMs)
	assert.Equal(t, 90000.0, *orders[0].ServiceTimeMs)
	require.NotNil(t, orders[1].CreatedAt)
	require.NotNil(t, orders[1].ServedAt)
	assert.Equal(t, 15*time.Minute, orders[1].ServedAt.Sub(*orders[1].CreatedAt))

	_, err = client.LiveMetrics(context.Background())
	var httpErr *HTTPError
	require.ErrorAs(t, err, &httpErr)
	assert.Equal(t, http.StatusNotFound, httpErr.StatusCode)
	assert.False(t, httpErr.Retryable())
}

func TestRecordsTolerateLooselyTypedFields(t *testing.T) {
	var sessions []Session
	err := json.Unmarshal([]byte(`[
		{"id":"s1","status":42,"total":10,"closed_at":1714568400},
		{"id":"s2","status":"closed","total":"20","opened_at":{"at":"now"},"closed_at":"2024-05-01T13:00:00Z"}
	]`), &sessions)
	require.NoError(t, err)
	require.Len(t, sessions, 2)
	assert.Equal(t, "", sessions[0].Status)
	require.NotNil(t, sessions[0].ClosedAt)
	assert.Equal(t, time.Date(2024, 5, 1, 13, 0, 0, 0, time.UTC), *sessions[0].ClosedAt)
	assert.Equal(t, "closed", sessions[1].Status)
	assert.Nil(t, sessions[1].OpenedAt)
	require.NotNil(t, sessions[1].ClosedAt)

	var orders []Order
	err = json.Unmarshal([]byte(`[
		{"id":"o1","created_at":1714564800000,"served_at":1714565700000},
		{"id":"o2","created_at":true,"completed_at":"2024-05-01T12:30:00Z"}
	]`), &orders)
	require.NoError(t, err)
	require.Len(t, orders, 2)
	require.NotNil(t, orders[0].CreatedAt)
	require.NotNil(t, orders[0].ServedAt)
	assert.Equal(t, 15*time.Minute, orders[0].ServedAt.Sub(*orders[0].CreatedAt))
	assert.Nil(t, orders[1].CreatedAt)
	require.NotNil(t, orders[1].CompletedAt)
}
