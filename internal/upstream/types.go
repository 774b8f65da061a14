package upstream

import (
	"encoding/json"
	"math"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/smallbiznis/opspulse/internal/stats"
)

// Session is a table session as reported by the point-of-sale service.
// Every field is optional; missing values decode to their zero value or nil.
type Session struct {
	ID       string
	TableID  string
	Status   string
	Total    *decimal.Decimal
	OpenedAt *time.Time
	ClosedAt *time.Time
}

// Order is a kitchen order. Service duration may be reported explicitly or
// derived from its timestamps.
type Order struct {
	ID            string
	TableID       string
	ServiceTimeMs *float64
	CreatedAt     *time.Time
	ServedAt      *time.Time
	CompletedAt   *time.Time
}

// LiveMetric is a current reading evaluated against thresholds.
type LiveMetric struct {
	MetricType   string  `json:"metric_type"`
	AffectedItem string  `json:"affected_item"`
	Value        float64 `json:"value"`
}

type rawSession struct {
	ID       any `json:"id"`
	TableID  any `json:"table_id"`
	Status   any `json:"status"`
	Total    any `json:"total"`
	OpenedAt any `json:"opened_at"`
	ClosedAt any `json:"closed_at"`
}

func (s *Session) UnmarshalJSON(b []byte) error {
	var raw rawSession
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*s = Session{
		ID:       idString(raw.ID),
		TableID:  idString(raw.TableID),
		Status:   statusString(raw.Status),
		OpenedAt: parseTime(raw.OpenedAt),
		ClosedAt: parseTime(raw.ClosedAt),
	}
	if v, ok := stats.ToFloat(raw.Total); ok {
		d := decimal.NewFromFloat(v)
		s.Total = &d
	}
	return nil
}

type rawOrder struct {
	ID            any `json:"id"`
	TableID       any `json:"table_id"`
	ServiceTimeMs any `json:"service_time_ms"`
	CreatedAt     any `json:"created_at"`
	ServedAt      any `json:"served_at"`
	CompletedAt   any `json:"completed_at"`
}

func (o *Order) UnmarshalJSON(b []byte) error {
	var raw rawOrder
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	*o = Order{
		ID:          idString(raw.ID),
		TableID:     idString(raw.TableID),
		CreatedAt:   parseTime(raw.CreatedAt),
		ServedAt:    parseTime(raw.ServedAt),
		CompletedAt: parseTime(raw.CompletedAt),
	}
	if v, ok := stats.ToFloat(raw.ServiceTimeMs); ok {
		o.ServiceTimeMs = &v
	}
	return nil
}

func idString(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(x)
	case float64:
		return decimal.NewFromFloat(x).String()
	default:
		b, _ := json.Marshal(x)
		return strings.Trim(string(b), `"`)
	}
}

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
}

// statusString keeps string statuses only. Other JSON types decode as unknown.
func statusString(v any) string {
	s, ok := v.(string)
	if !ok {
		return ""
	}
	return strings.TrimSpace(s)
}

// epochMillisCutoff separates epoch seconds from epoch milliseconds.
const epochMillisCutoff = 1e12

// parseTime accepts timestamp strings in the known layouts and numeric unix
// epochs in seconds or milliseconds. Anything else is nil.
func parseTime(v any) *time.Time {
	switch x := v.(type) {
	case string:
		x = strings.TrimSpace(x)
		if x == "" {
			return nil
		}
		for _, layout := range timeLayouts {
			if t, err := time.Parse(layout, x); err == nil {
				t = t.UTC()
				return &t
			}
		}
		return nil
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) || x <= 0 {
			return nil
		}
		var t time.Time
		if x >= epochMillisCutoff {
			t = time.UnixMilli(int64(x)).UTC()
		} else {
			sec, frac := math.Modf(x)
			t = time.Unix(int64(sec), int64(frac*1e9)).UTC()
		}
		return &t
	default:
		return nil
	}
}
