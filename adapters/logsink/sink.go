package logsink

import (
	"fmt"
	"sort"
	"strings"

	"gofactor/domain/core"
	"gofactor/internal"
	"gofactor/ports"
)

// Sink renders pipeline progress events as log lines. It is the default
// ProgressSink for CLI and server runs; the logger is safe for concurrent
// publishers.
type Sink struct {
	logger *internal.Logger
}

// New creates a sink writing through the given logger.
func New(logger *internal.Logger) *Sink {
	return &Sink{logger: logger.For("Pipeline")}
}

// Publish logs one event. Failures and divergences surface as warnings so
// they stand out in otherwise routine run logs.
func (s *Sink) Publish(event ports.ProgressEvent) {
	line := formatEvent(event)
	switch event.Kind {
	case ports.EventUnitFailed, ports.EventRotationDiverged, ports.EventGroupEmpty:
		s.logger.Warn("%s", line)
	default:
		s.logger.Info("%s", line)
	}
}

// formatEvent renders kind, scope and numeric fields in a stable order.
func formatEvent(event ports.ProgressEvent) string {
	parts := []string{string(event.Kind)}
	if event.RunID != "" {
		parts = append(parts, "run="+event.RunID.String())
	}
	if event.Group != "" {
		parts = append(parts, "group="+event.Group.String())
	}
	if event.Pair != (core.PairKey{}) {
		parts = append(parts, "pair="+event.Pair.String())
	}
	if event.Message != "" {
		parts = append(parts, event.Message)
	}
	if len(event.Fields) > 0 {
		keys := make([]string, 0, len(event.Fields))
		for key := range event.Fields {
			keys = append(keys, key)
		}
		sort.Strings(keys)
		for _, key := range keys {
			parts = append(parts, fmt.Sprintf("%s=%.4g", key, event.Fields[key]))
		}
	}
	return strings.Join(parts, " ")
}
