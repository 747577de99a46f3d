package ledger

import (
	"math"
	"strconv"
	"strings"

	"cloud.google.com/go/civil"
)

// DuplicateScore estimates how likely the candidate duplicates an
// existing row, 0-100. Per row: provider match (trimmed,
// case-insensitive) +30, amount within 0.01 +30, service date exact +40
// or within 30 days +20. The maximum across all rows wins; an empty
// ledger scores 0. Advisory only - a high score never blocks archival.
// Pure function, no mutation.
func DuplicateScore(l *Ledger, e Entry) int {
	best := 0

	for _, row := range l.rows {
		score := 0

		rowProvider := strings.TrimSpace(l.cell(row, "Vendor/Provider"))
		if strings.EqualFold(rowProvider, strings.TrimSpace(e.Provider)) {
			score += 30
		}

		// Unparsable amounts in existing rows are scored as 0, never
		// raised.
		rowAmount := 0.0
		if v, err := strconv.ParseFloat(strings.TrimSpace(l.cell(row, "Amount")), 64); err == nil {
			rowAmount = v
		}
		if math.Abs(rowAmount-e.Amount) < 0.01 {
			score += 30
		}

		// Service date only; payment date is never used as a stand-in.
		if e.ServiceDate != nil {
			if s := strings.TrimSpace(l.cell(row, "Service Date")); s != "" {
				if rowDate, err := civil.ParseDate(s); err == nil {
					switch {
					case rowDate == *e.ServiceDate:
						score += 40
					case abs(rowDate.DaysSince(*e.ServiceDate)) <= 30:
						score += 20
					}
				}
			}
		}

		if score > best {
			best = score
		}
	}

	return best
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
