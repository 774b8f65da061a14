package pushmetrics

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/prometheus/prompb"
	"google.golang.org/protobuf/proto"
	"google.golang.org/protobuf/protoadapt"
)

// RemoteWritePusher converts counters and gauges into one remote_write
// request. Histograms and summaries stay on the pull path.
type RemoteWritePusher struct {
	endpoint       string
	authToken      string
	externalLabels []prompb.Label
	httpClient     *http.Client
	now            func() time.Time
}

func NewRemoteWritePusher(endpoint, authToken string, externalLabels map[string]string) *RemoteWritePusher {
	external := make([]prompb.Label, 0, len(externalLabels))
	for name, value := range externalLabels {
		if value = strings.TrimSpace(value); value != "" {
			external = append(external, prompb.Label{Name: name, Value: value})
		}
	}
	return &RemoteWritePusher{
		endpoint:       endpoint,
		authToken:      strings.TrimSpace(authToken),
		externalLabels: external,
		httpClient:     &http.Client{Timeout: pushTimeout},
		now:            time.Now,
	}
}

func (p *RemoteWritePusher) Push(ctx context.Context, registry *prometheus.Registry) error {
	if p == nil || registry == nil {
		return nil
	}
	families, err := registry.Gather()
	if err != nil {
		return err
	}
	series := p.series(families, p.now().UnixMilli())
	if len(series) == 0 {
		return nil
	}

	raw, err := proto.Marshal(protoadapt.MessageV2Of(&prompb.WriteRequest{Timeseries: series}))
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.endpoint, bytes.NewReader(snappy.Encode(nil, raw)))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/x-protobuf")
	req.Header.Set("Content-Encoding", "snappy")
	req.Header.Set("X-Prometheus-Remote-Write-Version", "0.1.0")
	if p.authToken != "" {
		req.Header.Set("Authorization", "Bearer "+p.authToken)
	}

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)
	if resp.StatusCode/100 != 2 {
		return fmt.Errorf("remote write returned %s", resp.Status)
	}
	return nil
}

func (p *RemoteWritePusher) series(families []*dto.MetricFamily, ts int64) []prompb.TimeSeries {
	var out []prompb.TimeSeries
	for _, family := range families {
		for _, m := range family.GetMetric() {
			var value float64
			switch family.GetType() {
			case dto.MetricType_COUNTER:
				value = m.GetCounter().GetValue()
			case dto.MetricType_GAUGE:
				value = m.GetGauge().GetValue()
			default:
				continue
			}

			labels := make([]prompb.Label, 0, len(m.GetLabel())+len(p.externalLabels)+1)
			labels = append(labels, prompb.Label{Name: "__name__", Value: family.GetName()})
			for _, l := range m.GetLabel() {
				labels = append(labels, prompb.Label{Name: l.GetName(), Value: l.GetValue()})
			}
			for _, ext := range p.externalLabels {
				if !hasLabel(labels, ext.Name) {
					labels = append(labels, ext)
				}
			}
			slices.SortFunc(labels, func(a, b prompb.Label) int { return strings.Compare(a.Name, b.Name) })

			out = append(out, prompb.TimeSeries{
				Labels:  labels,
				Samples: []prompb.Sample{{Value: value, Timestamp: ts}},
			})
		}
	}
	return out
}

func hasLabel(labels []prompb.Label, name string) bool {
	return slices.ContainsFunc(labels, func(l prompb.Label) bool { return l.Name == name })
}
