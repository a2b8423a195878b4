package core

import "strings"

type DBOrdering struct {
	Field     string
	Ascending bool
}

func (ord DBOrdering) String() string {
	direction := "DESC"
	if ord.Ascending {
		direction = "ASC"
	}
	return ord.Field + " " + direction
}

// FilterOrderings drops the orderings whose field is not in `allowed` ({field: column}),
// and maps the remaining fields to their column names.
func FilterOrderings(orderings []DBOrdering, allowed map[string]string) []DBOrdering {
	filtered := make([]DBOrdering, 0, len(orderings))
	for _, ord := range orderings {
		col, ok := allowed[strings.ToLower(ord.Field)]
		if !ok {
			continue
		}
		filtered = append(filtered, DBOrdering{Field: col, Ascending: ord.Ascending})
	}
	return filtered
}

// OrderByClause joins orderings into a SQL ORDER BY list, falling back to `dflt`.
func OrderByClause(orderings []DBOrdering, dflt string) string {
	if len(orderings) == 0 {
		return dflt
	}
	list := make([]string, 0, len(orderings))
	for _, ord := range orderings {
		list = append(list, ord.String())
	}
	return strings.Join(list, ", ")
}
