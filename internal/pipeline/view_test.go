package pipeline

import (
	"reflect"
	"strconv"
	"testing"
	"time"

	"partners/internal"
)

func rec(id, name, acronym string, status internal.Status) internal.ResultRecord {
	return internal.ResultRecord{
		ID:     id,
		Status: status,
		Fields: internal.NewOriginalFields(name, acronym, "", "", "", id),
	}
}

func sampleSnapshot() *internal.Snapshot {
	records := []internal.ResultRecord{
		rec("1", "Acme Corp", "ACME", internal.StatusDuplicate),
		rec("2", "Beta Labs", "BL", internal.StatusNoMatch),
		rec("3", "Wageningen University", "WUR", internal.StatusPotentialDuplicate),
		rec("4", "Acme Foundation", "", internal.StatusNoMatch),
		rec("5", "Gamma Institute", "GI", internal.StatusDuplicate),
	}
	return internal.NewSnapshot("a1", "a1.xlsx", time.Unix(0, 0), records, internal.ProgressSummary{})
}

func ids(records []internal.ResultRecord) []string {
	out := make([]string, 0, len(records))
	for _, r := range records {
		out = append(out, r.ID)
	}
	return out
}

func TestViewFiltersAndSearches(t *testing.T) {
	snap := sampleSnapshot()
	cases := []struct {
		name   string
		params ViewParams
		want   []string
	}{
		{"all", ViewParams{Page: 1}, []string{"1", "2", "3", "4", "5"}},
		{"status", ViewParams{Status: "duplicate", Page: 1}, []string{"1", "5"}},
		{"query", ViewParams{Query: "acme", Page: 1}, []string{"1", "4"}},
		{"status and query", ViewParams{Status: "no_match", Query: "acme", Page: 1}, []string{"4"}},
		{"acronym", ViewParams{Query: "wur", Page: 1}, []string{"3"}},
		{"id", ViewParams{Query: "5", Page: 1}, []string{"5"}},
		{"case insensitive", ViewParams{Query: "wagen", Page: 1}, []string{"3"}},
		{"padded query", ViewParams{Query: "  BETA ", Page: 1}, []string{"2"}},
		{"unknown status", ViewParams{Status: "pending", Page: 1}, []string{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := View(snap, tc.params)
			if !reflect.DeepEqual(ids(got.Items), tc.want) {
				t.Fatalf("items=%v want %v", ids(got.Items), tc.want)
			}
			if got.TotalMatched != len(tc.want) {
				t.Fatalf("totalMatched=%d", got.TotalMatched)
			}
		})
	}
}

func TestViewEmptyStore(t *testing.T) {
	got := View(nil, ViewParams{Status: "duplicate", Query: "x", Page: 1, PageSize: 10})
	if got.TotalMatched != 0 || got.TotalPages != 0 || len(got.Items) != 0 {
		t.Fatalf("got=%+v", got)
	}
	if got.Items == nil {
		t.Fatal("items should be empty, not nil")
	}
}

func TestViewIsIdempotent(t *testing.T) {
	snap := sampleSnapshot()
	params := ViewParams{Query: "a", Page: 2, PageSize: 2}
	first := View(snap, params)
	second := View(snap, params)
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("first=%+v second=%+v", first, second)
	}
}

func TestPagesPartitionFilteredSet(t *testing.T) {
	records := make([]internal.ResultRecord, 0, 23)
	for i := 1; i <= 23; i++ {
		status := internal.StatusNoMatch
		if i%3 == 0 {
			status = internal.StatusDuplicate
		}
		records = append(records, rec(strconv.Itoa(i), "Institute "+strconv.Itoa(i), "", status))
	}
	snap := internal.NewSnapshot("p", "p.xlsx", time.Unix(0, 0), records, internal.ProgressSummary{})

	for _, status := range []string{"", "no_match", "duplicate"} {
		for _, size := range []int{1, 4, 5, 23, 50} {
			want := ids(Filter(snap, status, "institute"))
			first := View(snap, ViewParams{Status: status, Query: "institute", Page: 1, PageSize: size})

			var got []string
			for page := 1; page <= first.TotalPages; page++ {
				got = append(got, ids(View(snap, ViewParams{Status: status, Query: "institute", Page: page, PageSize: size}).Items)...)
			}
			if !reflect.DeepEqual(got, want) {
				t.Fatalf("status=%q size=%d pages=%v want %v", status, size, got, want)
			}
			if wantPages := (len(want) + size - 1) / size; first.TotalPages != wantPages {
				t.Fatalf("status=%q size=%d totalPages=%d want %d", status, size, first.TotalPages, wantPages)
			}
		}
	}
}

func TestViewOutOfRangePage(t *testing.T) {
	snap := sampleSnapshot()
	for _, page := range []int{0, -1, 3} {
		got := View(snap, ViewParams{Page: page, PageSize: 3})
		if len(got.Items) != 0 {
			t.Fatalf("page=%d items=%v", page, ids(got.Items))
		}
		if got.TotalMatched != 5 || got.TotalPages != 2 {
			t.Fatalf("page=%d got=%+v", page, got)
		}
	}
	if p := ClampPage(3, 2); p != 2 {
		t.Fatalf("clamp high=%d", p)
	}
	if p := ClampPage(0, 2); p != 1 {
		t.Fatalf("clamp low=%d", p)
	}
	if p := ClampPage(4, 0); p != 1 {
		t.Fatalf("clamp empty=%d", p)
	}
}

func TestViewDefaultPageSize(t *testing.T) {
	records := make([]internal.ResultRecord, 0, DefaultPageSize+1)
	for i := 0; i <= DefaultPageSize; i++ {
		records = append(records, rec(strconv.Itoa(i), "X", "", internal.StatusNoMatch))
	}
	snap := internal.NewSnapshot("d", "d.xlsx", time.Unix(0, 0), records, internal.ProgressSummary{})
	got := View(snap, ViewParams{Page: 1})
	if len(got.Items) != DefaultPageSize || got.TotalPages != 2 {
		t.Fatalf("items=%d pages=%d", len(got.Items), got.TotalPages)
	}
}

func TestViewToleratesMalformedRecords(t *testing.T) {
	records := []internal.ResultRecord{
		{ID: "short", Status: internal.StatusNoMatch, Fields: internal.OriginalFields{"Delta"}},
		{ID: "none", Status: internal.StatusNoMatch},
		rec("ok", "Delta Works", "DW", internal.StatusNoMatch),
	}
	snap := internal.NewSnapshot("m", "m.xlsx", time.Unix(0, 0), records, internal.ProgressSummary{})

	got := View(snap, ViewParams{Query: "delta", Page: 1})
	if !reflect.DeepEqual(ids(got.Items), []string{"short", "ok"}) {
		t.Fatalf("items=%v", ids(got.Items))
	}
	got = View(snap, ViewParams{Query: "dw", Page: 1})
	if !reflect.DeepEqual(ids(got.Items), []string{"ok"}) {
		t.Fatalf("items=%v", ids(got.Items))
	}
}
