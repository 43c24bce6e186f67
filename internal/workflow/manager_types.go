package workflow

import (
	"strconv"
	"time"

	"direktori/internal/config"
	"direktori/internal/queue"
	"direktori/internal/retry"
	"direktori/internal/telemetry"
)

const (
	defaultPoolName      = "worker"
	defaultSweepSchedule = "@every 5m"
	// reconcileTimeout bounds the single store update after a submit.
	reconcileTimeout = 30 * time.Second
)

// Options configures a Manager. Zero durations disable the matching feature.
type Options struct {
	PoolName string
	Workers  int
	Retry    retry.Policy
	// ErrorRetryInterval is the pause after a failed Claim.
	ErrorRetryInterval time.Duration
	HeartbeatInterval  time.Duration
	StaleClaimTimeout  time.Duration
	StaleSweepSchedule string
	// DrainTimeout bounds an in-flight item after cancellation. Zero waits
	// for the item however long it takes.
	DrainTimeout time.Duration
	Metrics      *telemetry.Metrics
}

// OptionsFromConfig maps the [workflow] section onto Options.
func OptionsFromConfig(cfg *config.Config) Options {
	wf := cfg.Workflow
	return Options{
		PoolName: wf.PoolName,
		Workers:  wf.Workers,
		Retry: retry.Policy{
			MaxAttempts: wf.SubmitAttempts,
			Delay:       time.Duration(wf.SubmitRetryDelay) * time.Second,
			Retryable:   retry.InfraOnly,
		},
		ErrorRetryInterval: time.Duration(wf.ErrorRetryInterval) * time.Second,
		HeartbeatInterval:  time.Duration(wf.HeartbeatInterval) * time.Second,
		StaleClaimTimeout:  time.Duration(wf.StaleClaimTimeout) * time.Second,
		StaleSweepSchedule: wf.StaleSweepSchedule,
		DrainTimeout:       time.Duration(wf.DrainTimeout) * time.Second,
	}
}

func (o Options) withDefaults() Options {
	if o.PoolName == "" {
		o.PoolName = defaultPoolName
	}
	if o.Workers <= 0 {
		o.Workers = 1
	}
	if o.Retry.MaxAttempts <= 0 {
		o.Retry = retry.Default()
	}
	if o.StaleSweepSchedule == "" {
		o.StaleSweepSchedule = defaultSweepSchedule
	}
	if o.Metrics == nil {
		o.Metrics = telemetry.Noop()
	}
	return o
}

// WorkerID formats the identity recorded in assigned_to. index is 1-based.
func WorkerID(pool string, index int) string {
	return pool + ":" + strconv.Itoa(index)
}

// RunSummary reports what one Run did.
type RunSummary struct {
	RunID     string
	Workers   int
	Processed int
	// Completed counts items whose outcome needs no further processing.
	Completed int
	ByStatus  map[queue.Status]int
	ByOutcome map[string]int
	// ClaimErrors counts Claim calls that failed for reasons other than an
	// empty queue.
	ClaimErrors     int
	ReconcileErrors int
	// SubmitterErrors counts workers that never started because their
	// Submitter could not be created.
	SubmitterErrors int
	StaleReclaimed  int64
	Interrupted     bool
	StartedAt       time.Time
	Duration        time.Duration
}

// WorkerState is a point-in-time view of one worker.
type WorkerState struct {
	ID          string
	Phase       string
	CurrentKey  string
	Processed   int
	LastOutcome string
}

// Worker phases reported by Status.
const (
	PhaseStarting   = "starting"
	PhaseClaiming   = "claiming"
	PhaseSubmitting = "submitting"
	PhaseWaiting    = "waiting"
	PhaseExited     = "exited"
)

type workerResult struct {
	processed       int
	completed       int
	byStatus        map[queue.Status]int
	byOutcome       map[string]int
	claimErrors     int
	reconcileErrors int
	startErr        error
	interrupted     bool
}

func newWorkerResult() *workerResult {
	return &workerResult{
		byStatus:  make(map[queue.Status]int),
		byOutcome: make(map[string]int),
	}
}
