package service

import (
	"sort"
	"strings"

	"github.com/shopspring/decimal"
	snapshotdomain "github.com/smallbiznis/opspulse/internal/snapshot/domain"
	"github.com/smallbiznis/opspulse/internal/stats"
	"github.com/smallbiznis/opspulse/internal/upstream"
)

const kpiScale = 4

var closedStatuses = map[string]struct{}{
	"closed":    {},
	"paid":      {},
	"completed": {},
	"finished":  {},
}

type ComputeOptions struct {
	K        float64
	Strategy stats.Strategy
}

// Computation is the reduced KPI set for one day, before persistence.
type Computation struct {
	TotalRevenue      decimal.Decimal
	TotalOrders       int64
	AvgServiceMinutes decimal.Decimal
	RotationIndex     decimal.Decimal
	AvgTicket         decimal.Decimal
	AlertsGenerated   int64
	Status            snapshotdomain.Status
	Metadata          snapshotdomain.Metadata
}

// Compute reduces raw sessions and orders into the daily KPIs. It is pure:
// callers supply already time-filtered records.
func Compute(sessions []upstream.Session, orders []upstream.Order, opts ComputeOptions) Computation {
	closed := make([]upstream.Session, 0, len(sessions))
	for _, s := range sessions {
		if s.ClosedAt == nil {
			continue
		}
		if _, ok := closedStatuses[strings.ToLower(strings.TrimSpace(s.Status))]; !ok {
			continue
		}
		closed = append(closed, s)
	}

	totals := make([]any, 0, len(closed))
	for _, s := range closed {
		totals = append(totals, s.Total)
	}
	revenue := stats.Normalize(totals)

	durations := make([]float64, 0, len(orders))
	skipped := 0
	for _, o := range orders {
		ms, ok := serviceDurationMs(o)
		if !ok {
			skipped++
			continue
		}
		durations = append(durations, ms)
	}

	tables := distinctTables(sessions, orders)

	revenueResult := stats.DetectAndAdjustOutliers(revenue, opts.K, opts.Strategy)
	durationResult := stats.DetectAndAdjustOutliers(durations, opts.K, opts.Strategy)

	c := Computation{
		Status: snapshotdomain.StatusOK,
		Metadata: snapshotdomain.Metadata{
			Revenue:        revenueResult,
			ServiceTime:    durationResult,
			DistinctTables: tables,
			Sources: snapshotdomain.SourceCounts{
				Sessions:          len(sessions),
				ClosedSessions:    len(closed),
				RevenueSamples:    len(revenue),
				Orders:            len(orders),
				DurationSamples:   len(durations),
				SkippedNoDuration: skipped,
			},
		},
	}

	if len(revenue) == 0 && len(durations) == 0 {
		c.Status = snapshotdomain.StatusNoData
		c.TotalRevenue = decimal.Zero
		c.AvgServiceMinutes = decimal.Zero
		c.RotationIndex = decimal.Zero
		c.AvgTicket = decimal.Zero
		return c
	}

	totalRevenue := decimal.NewFromFloat(stats.Sum(revenueResult.Processed))
	orderCount := int64(len(revenueResult.Processed))

	avgTicket := decimal.Zero
	if orderCount > 0 {
		avgTicket = totalRevenue.Div(decimal.NewFromInt(orderCount))
	}

	tableCount := len(tables)
	if tableCount < 1 {
		tableCount = 1
	}
	activity := len(closed)
	if len(orders) > activity {
		activity = len(orders)
	}

	c.TotalRevenue = totalRevenue.Round(kpiScale)
	c.TotalOrders = orderCount
	c.AvgServiceMinutes = decimal.NewFromFloat(stats.Median(durationResult.Processed) / 60000).Round(kpiScale)
	c.AvgTicket = avgTicket.Round(kpiScale)
	c.RotationIndex = decimal.NewFromInt(int64(activity)).Div(decimal.NewFromInt(int64(tableCount))).Round(kpiScale)
	c.AlertsGenerated = int64(revenueResult.Outliers + durationResult.Outliers)
	return c
}

// serviceDurationMs prefers the explicit metric, then served-created, then
// completed-created. Negative durations are unusable.
func serviceDurationMs(o upstream.Order) (float64, bool) {
	if o.ServiceTimeMs != nil {
		if *o.ServiceTimeMs < 0 {
			return 0, false
		}
		return *o.ServiceTimeMs, true
	}
	if o.CreatedAt == nil {
		return 0, false
	}
	end := o.ServedAt
	if end == nil {
		end = o.CompletedAt
	}
	if end == nil {
		return 0, false
	}
	d := end.Sub(*o.CreatedAt)
	if d < 0 {
		return 0, false
	}
	return float64(d.Milliseconds()), true
}

func distinctTables(sessions []upstream.Session, orders []upstream.Order) []string {
	seen := make(map[string]struct{})
	for _, s := range sessions {
		if id := strings.TrimSpace(s.TableID); id != "" {
			seen[id] = struct{}{}
		}
	}
	for _, o := range orders {
		if id := strings.TrimSpace(o.TableID); id != "" {
			seen[id] = struct{}{}
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
