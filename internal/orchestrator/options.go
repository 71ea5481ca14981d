package orchestrator

import (
	"time"

	"github.com/calibrae/testflow/internal/validate"
)

// DefaultMaxConcurrentTasks bounds how many tasks of one execution group run
// at once when no override is configured.
const DefaultMaxConcurrentTasks = 3

// DefaultTaskTimeout is the per-task execution deadline for tasks that do
// not declare their own.
const DefaultTaskTimeout = 5 * time.Minute

// Option configures an Orchestrator. Use With* functions to create Options.
type Option func(*orchestratorOptions)

// orchestratorOptions holds all optional configuration.
type orchestratorOptions struct {
	maxConcurrent int
	taskTimeout   time.Duration
	validator     *validate.Validator
	logger        *DebugLogger
	emitter       *EventEmitter
	pause         *PauseController
	poller        func()
}

// WithMaxConcurrentTasks sets the maximum number of tasks that run
// concurrently within one execution group.
func WithMaxConcurrentTasks(n int) Option {
	return func(o *orchestratorOptions) { o.maxConcurrent = n }
}

// WithTaskTimeout sets the default per-task execution deadline.
func WithTaskTimeout(d time.Duration) Option {
	return func(o *orchestratorOptions) { o.taskTimeout = d }
}

// WithValidator sets the result validator. Without one, results are accepted
// on execution status alone.
func WithValidator(v *validate.Validator) Option {
	return func(o *orchestratorOptions) { o.validator = v }
}

// WithLogger sets the debug logger.
func WithLogger(l *DebugLogger) Option {
	return func(o *orchestratorOptions) { o.logger = l }
}

// WithEmitter sets the event emitter subscribers consume.
func WithEmitter(e *EventEmitter) Option {
	return func(o *orchestratorOptions) { o.emitter = e }
}

// WithPauseController sets an externally shared pause controller, letting a
// signal watcher drive pause/resume/stop.
func WithPauseController(p *PauseController) Option {
	return func(o *orchestratorOptions) { o.pause = p }
}

// WithSignalPoller installs a callback invoked at every between-groups
// suspension point, before run control is checked. The signal watcher uses
// it to re-read its signal files even when filesystem notification is
// unavailable.
func WithSignalPoller(poll func()) Option {
	return func(o *orchestratorOptions) { o.poller = poll }
}
