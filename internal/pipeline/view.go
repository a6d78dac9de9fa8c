package pipeline

import (
	"strings"

	"partners/internal"
	"partners/internal/util"
)

// StatusAll disables the status filter.
const StatusAll = "all"

const DefaultPageSize = 50

type ViewParams struct {
	Status   string
	Query    string
	Page     int
	PageSize int
}

type ViewResult struct {
	Items        []internal.ResultRecord
	TotalMatched int
	TotalPages   int
}

// View derives one page of the snapshot: status filter, then search, then
// pagination, always in snapshot order. Nothing is cached between calls.
// A nil snapshot yields an empty result. A page outside [1, TotalPages]
// yields no items; callers clamp with ClampPage before asking again.
func View(snap *internal.Snapshot, params ViewParams) ViewResult {
	matched := Filter(snap, params.Status, params.Query)

	pageSize := params.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	result := ViewResult{
		Items:        []internal.ResultRecord{},
		TotalMatched: len(matched),
		TotalPages:   totalPages(len(matched), pageSize),
	}
	if params.Page < 1 || params.Page > result.TotalPages {
		return result
	}

	start := (params.Page - 1) * pageSize
	end := start + pageSize
	if end > len(matched) {
		end = len(matched)
	}
	result.Items = matched[start:end]
	return result
}

// Filter returns every record passing the status filter and the search query,
// unpaginated. The returned slice is freshly allocated.
func Filter(snap *internal.Snapshot, status, query string) []internal.ResultRecord {
	out := []internal.ResultRecord{}
	if snap == nil {
		return out
	}

	status = strings.TrimSpace(status)
	if status == "" {
		status = StatusAll
	}
	needle := strings.ToLower(strings.TrimSpace(query))

	for _, rec := range snap.Records {
		if status != StatusAll && string(rec.Status) != status {
			continue
		}
		if needle != "" && !matchesQuery(rec, needle) {
			continue
		}
		out = append(out, rec)
	}
	return out
}

func matchesQuery(rec internal.ResultRecord, needle string) bool {
	return util.ContainsFold(rec.InstitutionName(), needle) ||
		util.ContainsFold(rec.Acronym(), needle) ||
		util.ContainsFold(rec.ID, needle)
}

func totalPages(matched, pageSize int) int {
	if matched == 0 {
		return 0
	}
	return (matched + pageSize - 1) / pageSize
}

// ClampPage pulls page back into [1, totalPages]; with no pages it returns 1.
func ClampPage(page, totalPages int) int {
	if totalPages < 1 || page < 1 {
		return 1
	}
	if page > totalPages {
		return totalPages
	}
	return page
}
