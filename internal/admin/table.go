// Package admin builds the administrator's user table: debounced search,
// sorting and spreadsheet export.
package admin

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"

	"github.com/p-n-ai/pai-academy/internal/catalog"
	"github.com/p-n-ai/pai-academy/internal/enrollment"
	"github.com/p-n-ai/pai-academy/internal/platform/clock"
)

// DefaultDebounce is the quiet period before a search term is applied.
const DefaultDebounce = 300 * time.Millisecond

// SortKey selects the ordering column.
type SortKey string

const (
	SortByName     SortKey = "name"
	SortByProgress SortKey = "progress"
)

// Direction is the ordering direction.
type Direction string

const (
	Ascending  Direction = "ascending"
	Descending Direction = "descending"
)

// Sort is the active ordering.
type Sort struct {
	Key       SortKey   `json:"key"`
	Direction Direction `json:"direction"`
}

// ParseSort validates a key and direction, defaulting to name ascending.
func ParseSort(key, dir string) (Sort, error) {
	s := Sort{Key: SortByName, Direction: Ascending}
	switch SortKey(key) {
	case "":
	case SortByName, SortByProgress:
		s.Key = SortKey(key)
	default:
		return Sort{}, fmt.Errorf("invalid sort key %q", key)
	}
	switch dir {
	case "", "asc", string(Ascending):
	case "desc", string(Descending):
		s.Direction = Descending
	default:
		return Sort{}, fmt.Errorf("invalid sort direction %q", dir)
	}
	return s, nil
}

// Toggle returns the ordering after clicking the key's column header:
// a second click on an ascending column flips it, anything else sorts ascending.
func (s Sort) Toggle(key SortKey) Sort {
	if s.Key == key && s.Direction == Ascending {
		return Sort{Key: key, Direction: Descending}
	}
	return Sort{Key: key, Direction: Ascending}
}

// CourseProgress is one enrollment as shown in the table.
type CourseProgress struct {
	CourseID string `json:"courseId"`
	Title    string `json:"title"`
	Progress int    `json:"progress"`
}

// Row is one user line of the table.
type Row struct {
	UserID   string           `json:"userId"`
	Name     string           `json:"name"`
	Email    string           `json:"email"`
	Avatar   string           `json:"avatar,omitempty"`
	Courses  []CourseProgress `json:"courses"`
	Progress int              `json:"overallProgress"`
}

// Table assembles rows from catalog users and the enrollment ledger.
type Table struct {
	catalog *catalog.Catalog
	ledger  enrollment.Ledger

	mu       sync.Mutex
	collator *collate.Collator
}

// NewTable creates a table. Ledger enrollments override the catalog seed.
func NewTable(cat *catalog.Catalog, ledger enrollment.Ledger) *Table {
	return &Table{
		catalog:  cat,
		ledger:   ledger,
		collator: collate.New(language.English, collate.IgnoreCase),
	}
}

// Rows returns users matching query, ordered by sort.
func (t *Table) Rows(ctx context.Context, query string, sort Sort) ([]Row, error) {
	titles := make(map[string]string)
	for _, c := range t.catalog.Courses() {
		titles[c.ID] = c.Title
	}

	var rows []Row
	for _, u := range t.catalog.Users() {
		enrollments, err := t.ledger.List(ctx, u.ID)
		if err != nil {
			return nil, fmt.Errorf("listing enrollments for %s: %w", u.ID, err)
		}
		if len(enrollments) == 0 {
			enrollments = u.Enrollments
		}
		row := Row{
			UserID:   u.ID,
			Name:     u.Name,
			Email:    u.Email,
			Avatar:   u.Avatar,
			Courses:  make([]CourseProgress, 0, len(enrollments)),
			Progress: enrollment.OverallProgress(enrollments),
		}
		for _, e := range enrollments {
			title, ok := titles[e.CourseID]
			if !ok {
				title = "Unknown Course"
			}
			row.Courses = append(row.Courses, CourseProgress{CourseID: e.CourseID, Title: title, Progress: e.Progress})
		}
		rows = append(rows, row)
	}

	rows = Filter(rows, query)
	t.sort(rows, sort)
	return rows, nil
}

// Filter keeps rows whose name or email contains query, ignoring case.
func Filter(rows []Row, query string) []Row {
	fold := cases.Fold()
	q := fold.String(strings.TrimSpace(query))
	if q == "" {
		return rows
	}
	out := rows[:0:0]
	for _, r := range rows {
		if strings.Contains(fold.String(r.Name), q) || strings.Contains(fold.String(r.Email), q) {
			out = append(out, r)
		}
	}
	return out
}

func (t *Table) sort(rows []Row, s Sort) {
	t.mu.Lock()
	defer t.mu.Unlock()

	slices.SortStableFunc(rows, func(a, b Row) int {
		var c int
		if s.Key == SortByProgress {
			c = a.Progress - b.Progress
		} else {
			c = t.collator.CompareString(a.Name, b.Name)
		}
		if s.Direction == Descending {
			return -c
		}
		return c
	})
}

// Dashboard is one administrator's table view with a debounced search box.
type Dashboard struct {
	table     *Table
	debouncer *Debouncer[string]

	mu    sync.RWMutex
	query string
	sort  Sort
}

// NewDashboard creates a view sorted by name ascending.
func NewDashboard(table *Table, clk clock.Clock, window time.Duration) *Dashboard {
	d := &Dashboard{
		table: table,
		sort:  Sort{Key: SortByName, Direction: Ascending},
	}
	d.debouncer = NewDebouncer(clk, window, func(q string) {
		d.mu.Lock()
		d.query = q
		d.mu.Unlock()
	})
	return d
}

// Type records a keystroke. The search term changes only after the quiet window.
func (d *Dashboard) Type(input string) {
	d.debouncer.Push(input)
}

// Query returns the applied search term.
func (d *Dashboard) Query() string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.query
}

// Pending reports whether a keystroke has not yet been applied.
func (d *Dashboard) Pending() bool {
	return d.debouncer.Pending()
}

// ToggleSort clicks the column header for key.
func (d *Dashboard) ToggleSort(key SortKey) Sort {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.sort = d.sort.Toggle(key)
	return d.sort
}

// Sort returns the current ordering.
func (d *Dashboard) Sort() Sort {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.sort
}

// Rows returns the table for the applied search term and ordering.
func (d *Dashboard) Rows(ctx context.Context) ([]Row, error) {
	d.mu.RLock()
	q, s := d.query, d.sort
	d.mu.RUnlock()
	return d.table.Rows(ctx, q, s)
}

// Close cancels a pending search.
func (d *Dashboard) Close() {
	d.debouncer.Close()
}
