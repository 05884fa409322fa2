package enums

import "fmt"

// RowOutcome is what a load stage did with one staging row.
type RowOutcome string

const (
	RowOutcomeInserted  RowOutcome = "inserted"
	RowOutcomeUpdated   RowOutcome = "updated"
	RowOutcomeUnchanged RowOutcome = "unchanged"
	RowOutcomeSkipped   RowOutcome = "skipped"
	RowOutcomeFailed    RowOutcome = "failed"
)

var validRowOutcomes = []RowOutcome{
	RowOutcomeInserted,
	RowOutcomeUpdated,
	RowOutcomeUnchanged,
	RowOutcomeSkipped,
	RowOutcomeFailed,
}

// IsValid reports whether the value matches the canonical row outcome enum.
func (o RowOutcome) IsValid() bool {
	for _, candidate := range validRowOutcomes {
		if candidate == o {
			return true
		}
	}
	return false
}

// ParseRowOutcome converts the raw string to RowOutcome.
func ParseRowOutcome(value string) (RowOutcome, error) {
	for _, candidate := range validRowOutcomes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid row outcome %q", value)
}
