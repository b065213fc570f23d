package runner

import (
	"errors"
	"fmt"
	"slices"
	"time"
)

var (
	ErrNoStages       = errors.New("no stages configured")
	ErrInvalidStage   = errors.New("invalid stage")
	ErrDuplicateStage = errors.New("duplicate stage name")
	ErrInvalidConfig  = errors.New("invalid config")
)

// Operation is the kind of call a stage issues against the target.
type Operation string

const (
	OpRead  Operation = "read"
	OpWrite Operation = "write"
)

// ParseOperation accepts "read" or "write".
func ParseOperation(s string) (Operation, error) {
	switch Operation(s) {
	case OpRead, OpWrite:
		return Operation(s), nil
	}
	return "", fmt.Errorf("unknown operation %q (want read or write)", s)
}

// StageSpec describes one time-boxed batch of identical workers.
type StageSpec struct {
	Name        string
	Operation   Operation
	Workers     int
	Iterations  int // per worker
	MaxDuration time.Duration
	StartOffset time.Duration

	// Optional per-stage overrides; zero values fall back to Config.
	AcceptedStatus []int
	Timeout        time.Duration
	ReadLimit      int
	ReadAll        bool

	// Group ties stages into one combined report row.
	Group string
}

// Target is the request volume the stage aims for.
func (s StageSpec) Target() int {
	return s.Workers * s.Iterations
}

// Window returns the planned [start, end) offsets of the stage.
func (s StageSpec) Window() (time.Duration, time.Duration) {
	return s.StartOffset, s.StartOffset + s.MaxDuration
}

func (s StageSpec) Validate() error {
	switch {
	case s.Name == "":
		return fmt.Errorf("%w: name is required", ErrInvalidStage)
	case s.Operation != OpRead && s.Operation != OpWrite:
		return fmt.Errorf("%w %q: unknown operation %q", ErrInvalidStage, s.Name, s.Operation)
	case s.Workers <= 0:
		return fmt.Errorf("%w %q: workers must be positive", ErrInvalidStage, s.Name)
	case s.Iterations <= 0:
		return fmt.Errorf("%w %q: iterations must be positive", ErrInvalidStage, s.Name)
	case s.MaxDuration <= 0:
		return fmt.Errorf("%w %q: max duration must be positive", ErrInvalidStage, s.Name)
	case s.StartOffset < 0:
		return fmt.Errorf("%w %q: start offset must not be negative", ErrInvalidStage, s.Name)
	case s.Timeout < 0:
		return fmt.Errorf("%w %q: timeout must not be negative", ErrInvalidStage, s.Name)
	case s.ReadLimit < 0:
		return fmt.Errorf("%w %q: read limit must not be negative", ErrInvalidStage, s.Name)
	}
	if code, ok := badStatus(s.AcceptedStatus); !ok {
		return fmt.Errorf("%w %q: status %d out of range", ErrInvalidStage, s.Name, code)
	}
	return nil
}

func badStatus(codes []int) (int, bool) {
	for _, code := range codes {
		if code < 100 || code > 599 {
			return code, false
		}
	}
	return 0, true
}

// ValidateStages checks every spec and rejects empty plans and duplicate names.
func ValidateStages(specs []StageSpec) error {
	if len(specs) == 0 {
		return ErrNoStages
	}
	seen := make(map[string]bool, len(specs))
	for _, s := range specs {
		if err := s.Validate(); err != nil {
			return err
		}
		if seen[s.Name] {
			return fmt.Errorf("%w: %q", ErrDuplicateStage, s.Name)
		}
		seen[s.Name] = true
	}
	return nil
}

type Config struct {
	BaseURL string

	// Timeout is the default per-call budget.
	Timeout time.Duration
	// RunTimeout bounds the whole run; zero means no bound beyond the stages' own.
	RunTimeout time.Duration

	AcceptRead  []int
	AcceptWrite []int
	ReadLimit   int

	Stages []StageSpec
}

// Validate checks the run-wide settings and then every stage.
func (c Config) Validate() error {
	switch {
	case c.Timeout <= 0:
		return fmt.Errorf("%w: timeout must be positive, got %s", ErrInvalidConfig, c.Timeout)
	case c.RunTimeout < 0:
		return fmt.Errorf("%w: run timeout must not be negative, got %s", ErrInvalidConfig, c.RunTimeout)
	case c.ReadLimit < 0:
		return fmt.Errorf("%w: read limit must not be negative", ErrInvalidConfig)
	case len(c.AcceptRead) == 0:
		return fmt.Errorf("%w: read whitelist is empty", ErrInvalidConfig)
	case len(c.AcceptWrite) == 0:
		return fmt.Errorf("%w: write whitelist is empty", ErrInvalidConfig)
	}
	if code, ok := badStatus(slices.Concat(c.AcceptRead, c.AcceptWrite)); !ok {
		return fmt.Errorf("%w: accepted status %d out of range", ErrInvalidConfig, code)
	}
	return ValidateStages(c.Stages)
}

// DefaultConfig matches the stock read/write plans: reads must return
// 200, writes may also answer 500 when the upstream fetch was a duplicate.
func DefaultConfig() Config {
	return Config{
		BaseURL:     "http://localhost:8080",
		Timeout:     5 * time.Second,
		AcceptRead:  []int{200},
		AcceptWrite: []int{200, 201, 500},
		ReadLimit:   10,
	}
}

// RequestFor resolves the per-call parameters of a stage against the defaults.
func (c Config) RequestFor(s StageSpec) Request {
	req := Request{
		Stage:     s.Name,
		Operation: s.Operation,
		Timeout:   c.Timeout,
		ReadLimit: c.ReadLimit,
		ReadAll:   s.ReadAll,
	}
	if s.Timeout > 0 {
		req.Timeout = s.Timeout
	}
	if s.ReadLimit > 0 {
		req.ReadLimit = s.ReadLimit
	}

	switch {
	case len(s.AcceptedStatus) > 0:
		req.Accept = slices.Clone(s.AcceptedStatus)
	case s.Operation == OpWrite:
		req.Accept = slices.Clone(c.AcceptWrite)
	default:
		req.Accept = slices.Clone(c.AcceptRead)
	}
	return req
}

// Request is what a worker hands to the invoker on every iteration.
type Request struct {
	Stage     string
	Operation Operation
	Timeout   time.Duration
	Accept    []int
	ReadLimit int
	ReadAll   bool
}

// Accepts reports whether status is on the request's whitelist.
func (r Request) Accepts(status int) bool {
	return slices.Contains(r.Accept, status)
}

// Class is the classification of one outcome.
type Class int

const (
	Completed Class = iota
	Failed
)

func (c Class) String() string {
	if c == Completed {
		return "completed"
	}
	return "failed"
}

// Outcome is the result of one invocation attempt.
type Outcome struct {
	Stage   string
	SentAt  time.Time
	Elapsed time.Duration
	Class   Class
	Status  int
	Err     error
}

// StageTiming is what the scheduler observed about a stage.
type StageTiming struct {
	Started  time.Time
	Offset   time.Duration // actual start relative to run start
	Observed time.Duration
	TimedOut bool
	// Interrupted is set when the run ended (timeout or cancel) before the stage did.
	Interrupted bool
	// Skipped is set when the run ended before the stage's start offset.
	Skipped bool
}

// Result is what Scheduler.Run returns once every stage has finished.
type Result struct {
	RunID   string
	Started time.Time
	Wall    time.Duration
	Specs   []StageSpec
	Timings map[string]StageTiming
}
