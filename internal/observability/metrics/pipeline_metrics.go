package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

const (
	ErrorTypeDeadlineExceeded = "deadline_exceeded"
	ErrorTypeDB               = "db"
	ErrorTypeBusinessRule     = "business_rule"
	ErrorTypeUnknown          = "unknown"
)

const (
	JobReasonDeadlineExceeded     = "deadline_exceeded"
	JobReasonDBLockTimeout        = "db_lock_timeout"
	JobReasonSerializationFailure = "serialization_failure"
	JobReasonUniqueViolation      = "unique_violation"
	JobReasonPanic                = "panic"
	JobReasonUnknown              = "unknown"
)

// PipelineMetrics captures queue and scheduler health signals.
type PipelineMetrics struct {
	jobRuns        *prometheus.CounterVec
	jobDuration    *prometheus.HistogramVec
	jobTimeouts    *prometheus.CounterVec
	jobErrors      *prometheus.CounterVec
	jobDeadLetters *prometheus.CounterVec
	jobRetries     *prometheus.CounterVec
	claimLag       prometheus.Observer
	enqueued       *prometheus.CounterVec
	timersRunning  prometheus.Gauge
	leasesReaped   prometheus.Counter
}

var (
	pipelineMetricsOnce sync.Once
	pipelineMetrics     *PipelineMetrics
)

// Pipeline returns the singleton pipeline metrics registry.
func Pipeline() *PipelineMetrics {
	return PipelineWithConfig(Config{})
}

// PipelineWithConfig returns the singleton pipeline metrics registry using config labels.
func PipelineWithConfig(cfg Config) *PipelineMetrics {
	pipelineMetricsOnce.Do(func() {
		pipelineMetrics = newPipelineMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return pipelineMetrics
}

// ResetPipelineMetricsForTest resets the pipeline metrics singleton for tests.
func ResetPipelineMetricsForTest() {
	pipelineMetricsOnce = sync.Once{}
	pipelineMetrics = nil
}

func newPipelineMetrics(registerer prometheus.Registerer, cfg Config) *PipelineMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}

	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "opspulse"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	jobRuns := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "opspulse_queue_job_runs_total",
		Help:        "Queue job executions by queue name.",
		ConstLabels: constLabels,
	}, []string{"queue"})
	jobDuration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:        "opspulse_queue_job_duration_seconds",
		Help:        "Queue job latency by queue name.",
		Buckets:     []float64{0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20, 30, 60, 120, 300},
		ConstLabels: constLabels,
	}, []string{"queue"})
	jobTimeouts := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "opspulse_queue_job_timeouts_total",
		Help:        "Queue jobs that exceeded their execution timeout.",
		ConstLabels: constLabels,
	}, []string{"queue"})
	jobErrors := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "opspulse_queue_job_errors_total",
		Help:        "Queue job errors by low-cardinality reason.",
		ConstLabels: constLabels,
	}, []string{"queue", "reason"})
	jobDeadLetters := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "opspulse_queue_job_dead_letters_total",
		Help:        "Queue jobs that exhausted their attempts.",
		ConstLabels: constLabels,
	}, []string{"queue"})
	jobRetries := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "opspulse_queue_job_retries_total",
		Help:        "Queue jobs rescheduled after a failed attempt.",
		ConstLabels: constLabels,
	}, []string{"queue"})
	claimLag := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name:        "opspulse_queue_claim_lag_seconds",
		Help:        "Delay between a job becoming visible and a worker claiming it.",
		Buckets:     []float64{0.01, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60, 120, 300},
		ConstLabels: constLabels,
	})
	enqueued := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name:        "opspulse_scheduler_enqueued_total",
		Help:        "Jobs enqueued by the scheduler by origin.",
		ConstLabels: constLabels,
	}, []string{"queue", "origin"})
	timersRunning := prometheus.NewGauge(prometheus.GaugeOpts{
		Name:        "opspulse_scheduler_timers_running",
		Help:        "Recurring timers currently registered.",
		ConstLabels: constLabels,
	})
	leasesReaped := prometheus.NewCounter(prometheus.CounterOpts{
		Name:        "opspulse_queue_leases_reaped_total",
		Help:        "Expired job leases returned to the queue or dead-lettered.",
		ConstLabels: constLabels,
	})

	registerer.MustRegister(
		jobRuns,
		jobDuration,
		jobTimeouts,
		jobErrors,
		jobDeadLetters,
		jobRetries,
		claimLag,
		enqueued,
		timersRunning,
		leasesReaped,
	)

	return &PipelineMetrics{
		jobRuns:        jobRuns,
		jobDuration:    jobDuration,
		jobTimeouts:    jobTimeouts,
		jobErrors:      jobErrors,
		jobDeadLetters: jobDeadLetters,
		jobRetries:     jobRetries,
		claimLag:       claimLag,
		enqueued:       enqueued,
		timersRunning:  timersRunning,
		leasesReaped:   leasesReaped,
	}
}

// IncJobRun increments the run counter for a queue.
func (m *PipelineMetrics) IncJobRun(queue string) {
	if m == nil || m.jobRuns == nil {
		return
	}
	m.jobRuns.WithLabelValues(queue).Inc()
}

// ObserveJobDuration records job latency in seconds.
func (m *PipelineMetrics) ObserveJobDuration(queue string, duration time.Duration) {
	if m == nil || m.jobDuration == nil {
		return
	}
	m.jobDuration.WithLabelValues(queue).Observe(duration.Seconds())
}

// IncJobTimeout increments the timeout counter for a queue.
func (m *PipelineMetrics) IncJobTimeout(queue string) {
	if m == nil || m.jobTimeouts == nil {
		return
	}
	m.jobTimeouts.WithLabelValues(queue).Inc()
}

// IncJobError increments the job error counter with classification.
func (m *PipelineMetrics) IncJobError(queue string, err error) {
	if m == nil || err == nil || m.jobErrors == nil {
		return
	}
	m.jobErrors.WithLabelValues(queue, ClassifyJobReason(err)).Inc()
}

// IncJobPanic records a recovered handler panic.
func (m *PipelineMetrics) IncJobPanic(queue string) {
	if m == nil || m.jobErrors == nil {
		return
	}
	m.jobErrors.WithLabelValues(queue, JobReasonPanic).Inc()
}

func (m *PipelineMetrics) IncJobDeadLetter(queue string) {
	if m == nil || m.jobDeadLetters == nil {
		return
	}
	m.jobDeadLetters.WithLabelValues(queue).Inc()
}

func (m *PipelineMetrics) IncJobRetry(queue string) {
	if m == nil || m.jobRetries == nil {
		return
	}
	m.jobRetries.WithLabelValues(queue).Inc()
}

// ObserveClaimLag records the time a visible job waited before being claimed.
func (m *PipelineMetrics) ObserveClaimLag(duration time.Duration) {
	if m == nil || m.claimLag == nil {
		return
	}
	if duration < 0 {
		duration = 0
	}
	m.claimLag.Observe(duration.Seconds())
}

// IncEnqueued counts scheduler enqueues; origin is "timer" or "submit".
func (m *PipelineMetrics) IncEnqueued(queue, origin string) {
	if m == nil || m.enqueued == nil {
		return
	}
	m.enqueued.WithLabelValues(queue, origin).Inc()
}

func (m *PipelineMetrics) SetTimersRunning(n int) {
	if m == nil || m.timersRunning == nil {
		return
	}
	m.timersRunning.Set(float64(n))
}

func (m *PipelineMetrics) AddLeasesReaped(n int64) {
	if m == nil || m.leasesReaped == nil || n <= 0 {
		return
	}
	m.leasesReaped.Add(float64(n))
}

// ClassifyErrorType returns a low-cardinality error type for logging.
func ClassifyErrorType(err error) string {
	if err == nil {
		return ErrorTypeUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return ErrorTypeDeadlineExceeded
	}
	if isDBError(err) {
		return ErrorTypeDB
	}
	return ErrorTypeBusinessRule
}

// ClassifyJobReason maps job errors to low-cardinality reasons.
func ClassifyJobReason(err error) string {
	if err == nil {
		return JobReasonUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return JobReasonDeadlineExceeded
	}
	if isDBLockTimeout(err) {
		return JobReasonDBLockTimeout
	}
	if isSerializationFailure(err) {
		return JobReasonSerializationFailure
	}
	if isUniqueViolation(err) {
		return JobReasonUniqueViolation
	}
	return JobReasonUnknown
}

func isDBLockTimeout(err error) bool {
	return hasPGCode(err, "55P03")
}

func isSerializationFailure(err error) bool {
	return hasPGCode(err, "40001")
}

func isUniqueViolation(err error) bool {
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	return hasPGCode(err, "23505")
}

func hasPGCode(err error, code string) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == code
	}
	return false
}

func isDBError(err error) bool {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return false
	}
	if errors.Is(err, gorm.ErrInvalidDB) ||
		errors.Is(err, gorm.ErrInvalidTransaction) ||
		errors.Is(err, gorm.ErrInvalidField) ||
		errors.Is(err, gorm.ErrInvalidData) ||
		errors.Is(err, gorm.ErrMissingWhereClause) ||
		errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr)
}
