package api

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// Query parameters with fixed meaning; every other parameter on the list
// route is a column filter.
const (
	paramPage          = "page"
	paramSortBy        = "sort_by"
	paramSortDirection = "sort_direction"
	paramGroupBy       = "group_by"
	paramFilterColumn  = "filter_column"
	paramFilterValue   = "filter_value"
)

type listParams struct {
	filters       map[string]string
	sortBy        string
	sortDirection string
	page          int
}

func parseListParams(q url.Values) (listParams, error) {
	p := listParams{
		filters:       make(map[string]string),
		sortBy:        q.Get(paramSortBy),
		sortDirection: q.Get(paramSortDirection),
		page:          1,
	}

	if raw := strings.TrimSpace(q.Get(paramPage)); raw != "" {
		page, err := strconv.Atoi(raw)
		if err != nil {
			return listParams{}, fmt.Errorf("page must be an integer, got %q", raw)
		}
		p.page = page
	}

	for name, values := range q {
		switch name {
		case paramPage, paramSortBy, paramSortDirection:
			continue
		}
		for _, v := range values {
			if v != "" {
				p.filters[name] = v
				break
			}
		}
	}
	return p, nil
}

type summaryParams struct {
	groupBy      []string
	filterColumn string
	filterValue  string
}

// parseSummaryParams accepts group_by repeated, comma separated, or both.
func parseSummaryParams(q url.Values) summaryParams {
	var groupBy []string
	for _, raw := range q[paramGroupBy] {
		for _, name := range strings.Split(raw, ",") {
			if name = strings.TrimSpace(name); name != "" {
				groupBy = append(groupBy, name)
			}
		}
	}
	return summaryParams{
		groupBy:      groupBy,
		filterColumn: q.Get(paramFilterColumn),
		filterValue:  q.Get(paramFilterValue),
	}
}
