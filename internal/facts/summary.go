package facts

import (
	"context"
	"fmt"

	"gorm.io/gorm"

	"github.com/angelmondragon/shopdw/pkg/enums"
)

// Summary counts what one append pass did. Unresolved counts null
// references by dimension; those rows are still inserted.
type Summary struct {
	Read             int
	Inserted         int64
	SkippedEmpty     int
	SkippedDuplicate int
	SkippedExisting  int
	Unresolved       map[string]int
}

// Skipped is every staging row not written.
func (s Summary) Skipped() int {
	return s.SkippedEmpty + s.SkippedDuplicate + s.SkippedExisting
}

// Counts keys the summary by row outcome.
func (s Summary) Counts() map[enums.RowOutcome]int {
	return map[enums.RowOutcome]int{
		enums.RowOutcomeInserted: int(s.Inserted),
		enums.RowOutcomeSkipped:  s.Skipped(),
	}
}

func (s *Summary) unresolved(ref string) {
	if s.Unresolved == nil {
		s.Unresolved = map[string]int{}
	}
	s.Unresolved[ref]++
}

// existingKeys returns the subset of keys already present in table.column,
// querying in chunks of size chunk.
func existingKeys(ctx context.Context, tx *gorm.DB, table, column string, keys []string, chunk int) (map[string]struct{}, error) {
	found := make(map[string]struct{}, len(keys))
	if chunk <= 0 {
		chunk = len(keys)
	}
	for start := 0; start < len(keys); start += chunk {
		end := start + chunk
		if end > len(keys) {
			end = len(keys)
		}
		var present []string
		err := tx.WithContext(ctx).
			Table(table).
			Where(column+" IN ?", keys[start:end]).
			Pluck(column, &present).Error
		if err != nil {
			return nil, fmt.Errorf("lookup existing %s: %w", table, err)
		}
		for _, k := range present {
			found[k] = struct{}{}
		}
	}
	return found, nil
}
