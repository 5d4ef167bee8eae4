package ports

import (
	"gofactor/domain/core"
)

// EventKind classifies the structured progress events the pipeline emits.
type EventKind string

const (
	EventRunStarted       EventKind = "run_started"
	EventGroupPartitioned EventKind = "group_partitioned"
	EventGroupEmpty       EventKind = "group_empty"
	EventAdequacyComputed EventKind = "adequacy_computed"
	EventExtractionDone   EventKind = "extraction_done"
	EventRotationDiverged EventKind = "rotation_diverged"
	EventUnitFailed       EventKind = "unit_failed"
	EventBootstrapDone    EventKind = "bootstrap_done"
	EventRunFinished      EventKind = "run_finished"
)

// ProgressEvent is one structured diagnostic event. Rendering (console
// colors, log lines, SSE) is the sink's concern, never the core's.
type ProgressEvent struct {
	Kind    EventKind
	RunID   core.RunID
	Group   core.GroupKey
	Pair    core.PairKey
	Message string
	Fields  map[string]float64
}

// ProgressSink receives pipeline progress events. Implementations must be
// safe for concurrent use; the per-group analyses publish in parallel.
type ProgressSink interface {
	Publish(event ProgressEvent)
}
