package process

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// AuditAction describes what happened in an audit entry.
type AuditAction struct {
	Type        string `json:"type"`
	Description string `json:"description"`
	Automated   bool   `json:"automated"`
}

// AuditDetails carries the before/after context of an audit entry.
type AuditDetails struct {
	Before   map[string]any `json:"before,omitempty"`
	After    map[string]any `json:"after,omitempty"`
	Metadata map[string]any `json:"metadata,omitempty"`
}

// AuditImpact classifies the blast radius of an audited action.
type AuditImpact struct {
	Scope      string   `json:"scope"`
	Severity   string   `json:"severity"`
	Categories []string `json:"categories,omitempty"`
}

// AuditEntry is the durable record of one state-changing action. Entries
// are derived 1:1 from history events and never mutated after creation.
type AuditEntry struct {
	ID        string       `json:"id"`
	Timestamp time.Time    `json:"timestamp"`
	ProcessID string       `json:"process_id"`
	StepID    string       `json:"step_id,omitempty"`
	UserID    string       `json:"user_id,omitempty"`
	Action    AuditAction  `json:"action"`
	Details   AuditDetails `json:"details"`
	Impact    AuditImpact  `json:"impact"`
}

// deriveAuditEntry maps one history event onto its audit record.
func deriveAuditEntry(processID, userID string, ev Event) AuditEntry {
	entry := AuditEntry{
		ID:        uuid.NewString(),
		Timestamp: ev.Timestamp,
		ProcessID: processID,
		StepID:    ev.StepID,
		UserID:    userID,
		Details: AuditDetails{
			Metadata: ev.Details,
		},
	}

	switch ev.Type {
	case EventStatusChange:
		entry.Action = AuditAction{
			Type:        string(EventStatusChange),
			Description: fmt.Sprintf("status changed from %s to %s", ev.From, ev.To),
			Automated:   true,
		}
		entry.Details.Before = map[string]any{"status": string(ev.From)}
		entry.Details.After = map[string]any{"status": string(ev.To)}
		entry.Impact = AuditImpact{
			Scope:      "process",
			Severity:   statusChangeSeverity(ev.To),
			Categories: []string{"lifecycle"},
		}

	case EventStepNavigation:
		from, _ := ev.Details["from_step"].(string)
		entry.Action = AuditAction{
			Type:        string(EventStepNavigation),
			Description: fmt.Sprintf("navigated from %q to %q: %s", from, ev.StepID, ev.Reason),
			Automated:   false,
		}
		entry.Details.Before = map[string]any{"step": from}
		entry.Details.After = map[string]any{"step": ev.StepID}
		entry.Impact = AuditImpact{
			Scope:      "step",
			Severity:   "low",
			Categories: []string{"navigation"},
		}

	case EventException:
		if skipped, _ := ev.Details["skipped"].(bool); skipped {
			entry.Action = AuditAction{
				Type:        "step_skip",
				Description: fmt.Sprintf("step %q skipped: %s", ev.StepID, ev.Reason),
				Automated:   false,
			}
			entry.Impact = AuditImpact{
				Scope:      "step",
				Severity:   "medium",
				Categories: []string{"override"},
			}
		} else {
			entry.Action = AuditAction{
				Type:        string(EventException),
				Description: fmt.Sprintf("step %q raised an exception: %s", ev.StepID, ev.Reason),
				Automated:   true,
			}
			entry.Impact = AuditImpact{
				Scope:      "step",
				Severity:   "high",
				Categories: []string{"failure"},
			}
		}

	case EventStepData:
		entry.Action = AuditAction{
			Type:        string(EventStepData),
			Description: fmt.Sprintf("step %q recorded output data", ev.StepID),
			Automated:   true,
		}
		entry.Impact = AuditImpact{
			Scope:      "step",
			Severity:   "low",
			Categories: []string{"data"},
		}

	default:
		entry.Action = AuditAction{
			Type:        string(ev.Type),
			Description: ev.Reason,
			Automated:   true,
		}
		entry.Impact = AuditImpact{Scope: "process", Severity: "low"}
	}

	return entry
}

func statusChangeSeverity(to Status) string {
	switch to {
	case StatusFailed:
		return "high"
	case StatusCancelled:
		return "medium"
	default:
		return "low"
	}
}
