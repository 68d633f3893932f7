package ledger_test

import (
	"math"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/backoffice/ledger"
)

func seq(n int) []int {
	out := make([]int, n)
	for i := range out {
		out[i] = i + 1
	}
	return out
}

// =============================================================================
// WINDOW TESTS
// =============================================================================

func TestWindow_Pages(t *testing.T) {
	items := seq(25)

	assert.Equal(t, seq(10), ledger.Window(items, 1, 10))
	assert.Equal(t, []int{21, 22, 23, 24, 25}, ledger.Window(items, 3, 10))
}

func TestWindow_OutOfRangeIsEmpty(t *testing.T) {
	items := seq(25)

	for _, page := range []int{0, -1, 4, 100} {
		got := ledger.Window(items, page, 10)
		assert.NotNil(t, got, "page %d", page)
		assert.Empty(t, got, "page %d", page)
	}
	assert.Empty(t, ledger.Window(items, 1, 0))
	assert.Empty(t, ledger.Window([]int{}, 1, 10))
}

func TestWindow_ReturnsCopy(t *testing.T) {
	// GIVEN: A window over a slice
	items := seq(5)
	got := ledger.Window(items, 1, 3)

	// WHEN: The window is modified
	got[0] = 99

	// THEN: The source is untouched
	assert.Equal(t, 1, items[0])
}

// =============================================================================
// PAGINATE TESTS
// =============================================================================

func TestPaginate_Totals(t *testing.T) {
	page := ledger.Paginate(seq(25), ledger.PageRequest{CurrentPage: 2, Range: 10})

	assert.Equal(t, 2, page.CurrentPage)
	assert.Equal(t, 3, page.TotalPages)
	assert.Equal(t, 10, page.Range)
	assert.Equal(t, 25, page.Size)
	assert.Equal(t, []int{11, 12, 13, 14, 15, 16, 17, 18, 19, 20}, page.Items)
}

func TestPaginate_ExactMultiple(t *testing.T) {
	page := ledger.Paginate(seq(20), ledger.PageRequest{CurrentPage: 1, Range: 10})
	assert.Equal(t, 2, page.TotalPages)
}

func TestPaginate_Empty(t *testing.T) {
	page := ledger.Paginate([]int{}, ledger.PageRequest{})

	assert.Equal(t, 0, page.TotalPages)
	assert.Equal(t, 0, page.Size)
	assert.NotNil(t, page.Items)
	assert.Empty(t, page.Items)
}

func TestPaginate_Defaults(t *testing.T) {
	// GIVEN: A request without page or range (or with invalid values)
	for _, req := range []ledger.PageRequest{{}, {CurrentPage: -3, Range: 0}} {
		page := ledger.Paginate(seq(15), req)

		// THEN: Page 1 of 10 items is returned
		assert.Equal(t, ledger.DefaultPage, page.CurrentPage)
		assert.Equal(t, ledger.DefaultRange, page.Range)
		assert.Equal(t, seq(10), page.Items)
	}
}

func TestPaginate_PastLastPage(t *testing.T) {
	page := ledger.Paginate(seq(5), ledger.PageRequest{CurrentPage: 3, Range: 2})
	assert.Equal(t, []int{5}, page.Items)

	page = ledger.Paginate(seq(5), ledger.PageRequest{CurrentPage: 4, Range: 2})
	assert.Equal(t, 3, page.TotalPages)
	assert.Empty(t, page.Items)
}

func TestPaginate_HugeValuesDoNotOverflow(t *testing.T) {
	tests := []struct {
		name       string
		req        ledger.PageRequest
		totalPages int
		items      []int
	}{
		{"huge page", ledger.PageRequest{CurrentPage: 1e18, Range: 10}, 1, []int{}},
		{"max page", ledger.PageRequest{CurrentPage: math.MaxInt, Range: 2}, 2, []int{}},
		{"max range", ledger.PageRequest{CurrentPage: 1, Range: math.MaxInt}, 1, []int{1, 2, 3}},
		{"max page and range", ledger.PageRequest{CurrentPage: math.MaxInt, Range: math.MaxInt}, 1, []int{}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var page ledger.Page[int]
			require.NotPanics(t, func() { page = ledger.Paginate(seq(3), tt.req) })

			assert.Equal(t, tt.totalPages, page.TotalPages)
			assert.Equal(t, tt.items, page.Items)
		})
	}
}

func TestWindow_HugePageIsEmpty(t *testing.T) {
	assert.Empty(t, ledger.Window(seq(3), 1e18, 10))
	assert.Empty(t, ledger.Window(seq(3), 2, math.MaxInt))
	assert.Equal(t, seq(3), ledger.Window(seq(3), 1, math.MaxInt))
}

// =============================================================================
// HISTORY PIPELINE TESTS
// =============================================================================

type stamped struct {
	name string
	at   time.Time
}

func stampedAt(s stamped) time.Time { return s.at }

func TestHistory_NewestFirstWithStableTies(t *testing.T) {
	// GIVEN: Items at 100, 100, 50 and 75 (minutes past the base time)
	base := testStart
	items := []stamped{
		{"a", base.Add(100 * time.Minute)},
		{"b", base.Add(100 * time.Minute)},
		{"c", base.Add(50 * time.Minute)},
		{"d", base.Add(75 * time.Minute)},
	}

	// WHEN: Running the pipeline over a range covering all of them
	page := ledger.History(items, stampedAt, base, base.Add(time.Hour*24), ledger.PageRequest{})

	// THEN: Newest first, equal timestamps keep their input order
	names := make([]string, len(page.Items))
	for i, it := range page.Items {
		names[i] = it.name
	}
	assert.Equal(t, []string{"a", "b", "d", "c"}, names)
	assert.Equal(t, "a", items[0].name, "input must not be reordered")
	assert.Equal(t, "c", items[2].name, "input must not be reordered")
}

func TestHistory_InclusiveDateFilter(t *testing.T) {
	// GIVEN: Items on three consecutive days
	day := func(d int) time.Time { return time.Date(2024, time.May, d, 0, 0, 0, 0, time.UTC) }
	items := []stamped{{"1", day(1)}, {"2", day(2)}, {"3", day(3)}}

	// WHEN: Filtering on exactly [day 2, day 3]
	page := ledger.History(items, stampedAt, day(2), day(3), ledger.PageRequest{})

	// THEN: Both bounds are included and the envelope carries them
	require.Len(t, page.Items, 2)
	assert.Equal(t, "3", page.Items[0].name)
	assert.Equal(t, "2", page.Items[1].name)
	assert.Equal(t, 2, page.Size)
	require.NotNil(t, page.DateInit)
	require.NotNil(t, page.DateEnd)
	assert.True(t, page.DateInit.Equal(day(2)))
	assert.True(t, page.DateEnd.Equal(day(3)))
}

func TestHistory_FilterBeforePaginate(t *testing.T) {
	// GIVEN: 12 items, 5 of which fall in the range
	var items []stamped
	for i := 0; i < 12; i++ {
		items = append(items, stamped{name: string(rune('a' + i)), at: testStart.Add(time.Duration(i) * time.Hour)})
	}

	// WHEN: Requesting page 2 of size 3 within hours 2..6
	page := ledger.History(items, stampedAt, testStart.Add(2*time.Hour), testStart.Add(6*time.Hour),
		ledger.PageRequest{CurrentPage: 2, Range: 3})

	// THEN: Totals describe the filtered set
	assert.Equal(t, 5, page.Size)
	assert.Equal(t, 2, page.TotalPages)
	require.Len(t, page.Items, 2)
	assert.Equal(t, "d", page.Items[0].name)
	assert.Equal(t, "c", page.Items[1].name)
}
