package api

import (
	"net/http"

	"github.com/p-n-ai/pai-academy/internal/admin"
)

const xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

func (s *Server) handleAdminUsers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sort, err := admin.ParseSort(q.Get("sort"), q.Get("dir"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rows, err := s.table.Rows(r.Context(), q.Get("q"), sort)
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, nonNil(rows))
}

func (s *Server) handleAdminExport(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	sort, err := admin.ParseSort(q.Get("sort"), q.Get("dir"))
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	rows, err := s.table.Rows(r.Context(), q.Get("q"), sort)
	if err != nil {
		fail(w, r, err)
		return
	}
	data, err := admin.ExportXLSX(rows)
	if err != nil {
		fail(w, r, err)
		return
	}
	w.Header().Set("Content-Type", xlsxContentType)
	w.Header().Set("Content-Disposition", `attachment; filename="users.xlsx"`)
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

// dashboardView is an administrator's live table.
type dashboardView struct {
	Query   string      `json:"query"`
	Pending bool        `json:"pending"`
	Sort    admin.Sort  `json:"sort"`
	Rows    []admin.Row `json:"rows"`
}

// dashboard returns the caller's table view, creating it on first use.
func (s *Server) dashboard(userID string) *admin.Dashboard {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.dashboards[userID]
	if !ok {
		d = admin.NewDashboard(s.table, s.clock, s.debounce)
		s.dashboards[userID] = d
	}
	return d
}

func (s *Server) writeDashboard(w http.ResponseWriter, r *http.Request, d *admin.Dashboard) {
	rows, err := d.Rows(r.Context())
	if err != nil {
		fail(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, dashboardView{
		Query:   d.Query(),
		Pending: d.Pending(),
		Sort:    d.Sort(),
		Rows:    nonNil(rows),
	})
}

func (s *Server) handleDashboard(w http.ResponseWriter, r *http.Request) {
	id, ok := s.user(w, r)
	if !ok {
		return
	}
	s.writeDashboard(w, r, s.dashboard(id.UserID))
}

// handleDashboardSearch records a keystroke. The rows change once the
// debounce window passes without another keystroke.
func (s *Server) handleDashboardSearch(w http.ResponseWriter, r *http.Request) {
	id, ok := s.user(w, r)
	if !ok {
		return
	}
	var req struct {
		Query string `json:"query"`
	}
	if !decode(w, r, &req) {
		return
	}
	d := s.dashboard(id.UserID)
	d.Type(req.Query)
	s.writeDashboard(w, r, d)
}

func (s *Server) handleDashboardSort(w http.ResponseWriter, r *http.Request) {
	id, ok := s.user(w, r)
	if !ok {
		return
	}
	var req struct {
		Key string `json:"key"`
	}
	if !decode(w, r, &req) {
		return
	}
	key := admin.SortKey(req.Key)
	if key != admin.SortByName && key != admin.SortByProgress {
		writeError(w, http.StatusBadRequest, "invalid sort key")
		return
	}
	d := s.dashboard(id.UserID)
	d.ToggleSort(key)
	s.writeDashboard(w, r, d)
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
