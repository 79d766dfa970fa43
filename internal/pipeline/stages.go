package pipeline

import "context"

// StageName is a strongly-typed identifier for a launch stage. All canonical
// stages are declared as constants here for compile-time safety.
type StageName string

// Canonical stage names, in execution order.
const (
	StageFlushCache    StageName = "flush_neighbor_cache"
	StageConfigureEnv  StageName = "configure_environment"
	StageResolveBinary StageName = "resolve_binary"
	StageLaunchEngine  StageName = "launch_engine"
)

// State is a node in the launch state machine. Transitions are recorded on
// the report in the order they occur.
type State string

const (
	StateStart         State = "START"
	StateCacheFlushed  State = "CACHE_FLUSHED"
	StateEnvConfigured State = "ENV_CONFIGURED"
	StateBuildResolved State = "BUILD_RESOLVED"
	StateLaunched      State = "LAUNCHED"
	StateSuccess       State = "SUCCESS"
	StateFailure       State = "FAILURE"
)

// Stage is the executing function of a single launch stage. A stage records
// its own success transition on the run's report; the runner owns the
// terminal SUCCESS/FAILURE transition.
type Stage func(ctx context.Context, rs *runState) error

// StageDef pairs a stage name with its executing function.
type StageDef struct {
	Name StageName
	Fn   Stage
}
