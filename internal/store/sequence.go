package store

import (
	"context"
	"fmt"
)

// Code sequences and their prefixes.
const (
	SeqRoster        = "roster_code"
	SeqQuestionnaire = "form_id"

	PrefixRoster        = "N"
	PrefixQuestionnaire = "S"
)

// NextCode allocates the next code of a named sequence, e.g. "N00001". The
// counter row is locked until q's transaction ends, so concurrent callers
// never receive the same code.
func NextCode(ctx context.Context, q Querier, name, prefix string) (string, error) {
	var n int64
	if err := q.QueryRow(ctx, SQL("next-sequence-value"), name).Scan(&n); err != nil {
		return "", MapError(fmt.Errorf("next %s: %w", name, err))
	}
	return FormatCode(prefix, n), nil
}

func FormatCode(prefix string, n int64) string {
	return fmt.Sprintf("%s%05d", prefix, n)
}
