package contextpack

import (
	"fmt"
	"strings"
)

// truncateToBudget cuts body at the last newline at or before limit and
// appends a notice. Bodies already within budget are returned unchanged.
func truncateToBudget(body string, limit int) string {
	if limit <= 0 || len(body) <= limit {
		return body
	}
	cut := strings.LastIndexByte(body[:limit], '\n')
	if cut <= 0 {
		cut = limit
	}
	return body[:cut] + fmt.Sprintf("\n\n_(truncated to %d chars)_", cut)
}
