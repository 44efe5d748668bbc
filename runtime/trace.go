package runtime

import (
	"encoding/json"
	"time"
)

// TraceStatus classifies one trace entry.
type TraceStatus string

const (
	TraceStatusSuccess TraceStatus = "success"
	TraceStatusError   TraceStatus = "error"
)

// TraceEntry records one monitored operation dispatch. An entry is appended
// for every SendInput call regardless of outcome.
type TraceEntry struct {
	Operation  string      `json:"operation"`
	StartTime  time.Time   `json:"start_time"`
	EndTime    time.Time   `json:"end_time"`
	InputSize  int         `json:"input_size"`
	OutputSize int         `json:"output_size"`
	Status     TraceStatus `json:"status"`
	Error      string      `json:"error,omitempty"`
}

// payloadSize measures a value by its JSON encoding; unencodable values
// count as zero.
func payloadSize(v any) int {
	if v == nil {
		return 0
	}
	b, err := json.Marshal(v)
	if err != nil {
		return 0
	}
	return len(b)
}
