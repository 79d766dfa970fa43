package pipeline

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"git.home.luguber.info/inful/proxyrunner/internal/gitmeta"
)

// Outcome is the typed enumeration of final run result states.
type Outcome string

const (
	OutcomeSuccess  Outcome = "success"
	OutcomeFailure  Outcome = "failure"
	OutcomeCanceled Outcome = "canceled"
)

// LaunchReport captures everything about a single launch attempt: identity,
// what was built and run, how long each stage took, and how it ended.
type LaunchReport struct {
	SchemaVersion  int
	RunID          string
	Trigger        string // run | initial | source_change | schedule
	Target         string
	BuildMode      string
	EngineArg      string
	Artifact       string
	ArtifactDigest string
	Source         *gitmeta.Stamp // nil outside a repository
	Start          time.Time
	End            time.Time
	StageDurations map[string]time.Duration
	Transitions    []State
	Outcome        Outcome
	ChildExit      *int    // set once the engine process has run
	Errors         []error // fatal errors aborting the run (at most one today)
}

func newLaunchReport(trigger, target, mode, arg string) *LaunchReport {
	return &LaunchReport{
		SchemaVersion:  1,
		RunID:          uuid.NewString(),
		Trigger:        trigger,
		Target:         target,
		BuildMode:      mode,
		EngineArg:      arg,
		Start:          time.Now(),
		StageDurations: make(map[string]time.Duration),
		Transitions:    []State{StateStart},
	}
}

// transition appends a state to the recorded sequence.
func (r *LaunchReport) transition(s State) {
	r.Transitions = append(r.Transitions, s)
}

// CurrentState returns the most recently recorded state.
func (r *LaunchReport) CurrentState() State {
	if len(r.Transitions) == 0 {
		return StateStart
	}
	return r.Transitions[len(r.Transitions)-1]
}

func (r *LaunchReport) fail(err error) {
	r.Errors = append(r.Errors, err)
}

func (r *LaunchReport) finish() { r.End = time.Now() }

// deriveOutcome sets Outcome from recorded errors and appends the terminal
// state transition.
func (r *LaunchReport) deriveOutcome() {
	for _, e := range r.Errors {
		if errors.Is(e, context.Canceled) || errors.Is(e, context.DeadlineExceeded) {
			r.Outcome = OutcomeCanceled
			r.transition(StateFailure)
			return
		}
	}
	if len(r.Errors) > 0 {
		r.Outcome = OutcomeFailure
		r.transition(StateFailure)
		return
	}
	r.Outcome = OutcomeSuccess
	r.transition(StateSuccess)
}

// Summary returns a human-readable single-line summary.
func (r *LaunchReport) Summary() string {
	dur := r.End.Sub(r.Start)
	s := fmt.Sprintf("run=%s target=%s outcome=%s duration=%s stages=%d errors=%d",
		r.RunID, r.Target, r.Outcome, dur.Truncate(time.Millisecond), len(r.StageDurations), len(r.Errors))
	if r.Artifact != "" {
		s += " artifact=" + r.Artifact
	}
	if r.ChildExit != nil {
		s += fmt.Sprintf(" child_exit=%d", *r.ChildExit)
	}
	return s
}

// Persist writes the report atomically into the provided directory. It
// writes two files:
//
//	launch-report.json  (machine readable)
//	launch-report.txt   (human summary)
//
// Best effort; errors are returned for caller logging but do not change run
// outcome.
func (r *LaunchReport) Persist(dir string) error {
	if r.End.IsZero() {
		r.finish()
		r.deriveOutcome()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("ensure report dir: %w", err)
	}
	jb, err := json.MarshalIndent(r.sanitizedCopy(), "", "  ")
	if err != nil {
		return fmt.Errorf("marshal report json: %w", err)
	}
	jsonPath := filepath.Join(dir, "launch-report.json")
	tmpJSON := jsonPath + ".tmp"
	if err := os.WriteFile(tmpJSON, jb, 0o644); err != nil {
		return fmt.Errorf("write temp report json: %w", err)
	}
	if err := os.Rename(tmpJSON, jsonPath); err != nil {
		return fmt.Errorf("atomic rename json: %w", err)
	}
	summaryPath := filepath.Join(dir, "launch-report.txt")
	tmpTxt := summaryPath + ".tmp"
	if err := os.WriteFile(tmpTxt, []byte(r.Summary()+"\n"), 0o644); err != nil {
		return fmt.Errorf("write temp report summary: %w", err)
	}
	if err := os.Rename(tmpTxt, summaryPath); err != nil {
		return fmt.Errorf("atomic rename summary: %w", err)
	}
	return nil
}

// MarshalJSON serializes the report in the same sanitized shape Persist
// writes, so the watch-mode status endpoint and the report file agree.
func (r *LaunchReport) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.sanitizedCopy())
}

// sanitizedCopy returns a JSON-friendly mirror with error fields converted
// to strings and maps guaranteed non-nil.
func (r *LaunchReport) sanitizedCopy() *launchReportSerializable {
	durations := r.StageDurations
	if durations == nil {
		durations = map[string]time.Duration{}
	}
	s := &launchReportSerializable{
		SchemaVersion:  r.SchemaVersion,
		RunID:          r.RunID,
		Trigger:        r.Trigger,
		Target:         r.Target,
		BuildMode:      r.BuildMode,
		EngineArg:      r.EngineArg,
		Artifact:       r.Artifact,
		ArtifactDigest: r.ArtifactDigest,
		Source:         r.Source,
		Start:          r.Start,
		End:            r.End,
		StageDurations: durations,
		Transitions:    r.Transitions,
		Outcome:        string(r.Outcome),
		ChildExit:      r.ChildExit,
		Errors:         make([]string, len(r.Errors)),
	}
	for i, e := range r.Errors {
		s.Errors[i] = e.Error()
	}
	return s
}

// launchReportSerializable mirrors LaunchReport but with string errors for
// JSON output.
type launchReportSerializable struct {
	SchemaVersion  int                      `json:"schema_version"`
	RunID          string                   `json:"run_id"`
	Trigger        string                   `json:"trigger"`
	Target         string                   `json:"target"`
	BuildMode      string                   `json:"build_mode,omitempty"`
	EngineArg      string                   `json:"engine_arg,omitempty"`
	Artifact       string                   `json:"artifact,omitempty"`
	ArtifactDigest string                   `json:"artifact_digest,omitempty"`
	Source         *gitmeta.Stamp           `json:"source,omitempty"`
	Start          time.Time                `json:"start"`
	End            time.Time                `json:"end"`
	StageDurations map[string]time.Duration `json:"stage_durations"`
	Transitions    []State                  `json:"transitions"`
	Outcome        string                   `json:"outcome"`
	ChildExit      *int                     `json:"child_exit,omitempty"`
	Errors         []string                 `json:"errors"`
}
