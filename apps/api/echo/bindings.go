package echoapi

import (
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/trezcool/somesha/core"
)

const orderingParam = "ordering"

// parseOrdering reads list orderings such as `?ordering=-createdAt,name` (or repeated `ordering` params).
// A "-" prefix sorts descending, "+" or none ascending. The first occurrence of a field wins.
// Fields are not checked here: repositories ignore the ones they cannot sort on.
func parseOrdering(ctx echo.Context) []core.DBOrdering {
	var (
		orderings []core.DBOrdering
		seen      = make(map[string]bool)
	)
	for _, val := range ctx.QueryParams()[orderingParam] {
		for _, field := range strings.Split(val, ",") {
			field = strings.TrimSpace(field)
			descending := strings.HasPrefix(field, "-")
			field = strings.TrimLeft(field, "+-")
			if field == "" || seen[field] {
				continue
			}
			seen[field] = true
			orderings = append(orderings, core.DBOrdering{Field: field, Ascending: !descending})
		}
	}
	return orderings
}
