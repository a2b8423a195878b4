package echoapi

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/cheti/core"
)

var orderingParam = "ordering"

// Ordering binds `?ordering=-issued_number,participant_id`.
// Repeated params are read in order; a field named twice keeps its first direction.
type Ordering struct {
	Orderings []core.DBOrdering
}

func (ord *Ordering) Bind(ctx echo.Context) {
	ord.Orderings = parseOrderings(ctx.QueryParams()[orderingParam])
}

// parseOrderings lower-cases field names, the form core.FilterOrderings looks up,
// and drops blank entries.
func parseOrderings(values []string) []core.DBOrdering {
	var orderings []core.DBOrdering
	seen := make(map[string]bool)
	for _, val := range values {
		for _, field := range strings.Split(val, ",") {
			field = strings.TrimSpace(field)
			descending := strings.HasPrefix(field, "-")
			field = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(field, "-")))
			if field == "" || seen[field] {
				continue
			}
			seen[field] = true
			orderings = append(orderings, core.DBOrdering{Field: field, Ascending: !descending})
		}
	}
	return orderings
}
