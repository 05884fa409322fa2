package enums

import "fmt"

// RunStatus describes the allowed values for the `status` column in etl_run_log.
type RunStatus string

const (
	RunStatusInProgress RunStatus = "in_progress"
	RunStatusSuccess    RunStatus = "success"
	RunStatusFailed     RunStatus = "failed"
)

var validRunStatuses = []RunStatus{
	RunStatusInProgress,
	RunStatusSuccess,
	RunStatusFailed,
}

// IsValid reports whether the value matches the canonical run status enum.
func (s RunStatus) IsValid() bool {
	for _, candidate := range validRunStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseRunStatus converts the raw string to RunStatus.
func ParseRunStatus(value string) (RunStatus, error) {
	for _, candidate := range validRunStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid run status %q", value)
}
