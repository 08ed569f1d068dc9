package server

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"

	"github.com/sells-group/netmerge/internal/model"
	"github.com/sells-group/netmerge/internal/store"
)

func (s *Server) registerRunRoutes(r chi.Router) {
	r.Route("/runs", func(r chi.Router) {
		r.Get("/", s.handleListRuns)
		r.Get("/{runID}", s.handleGetRun)
		r.Get("/{runID}/records", s.handleListRecords)
	})
}

func runFilterOf(r *http.Request) (store.RunFilter, error) {
	q := r.URL.Query()
	status, ok := model.ParseRunStatus(q.Get("status"))
	if !ok {
		return store.RunFilter{}, eris.Wrapf(errBadInput, "server: unknown status %q", q.Get("status"))
	}
	filter := store.RunFilter{Status: status, Network: q.Get("network")}
	for name, dst := range map[string]*int{"limit": &filter.Limit, "offset": &filter.Offset} {
		raw := q.Get(name)
		if raw == "" {
			continue
		}
		n, err := strconv.Atoi(raw)
		if err != nil || n < 0 {
			return store.RunFilter{}, eris.Wrapf(errBadInput, "server: %s must be a non-negative integer", name)
		}
		*dst = n
	}
	return filter, nil
}

func (s *Server) handleListRuns(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, r, errNoStore)
		return
	}
	filter, err := runFilterOf(r)
	if err != nil {
		writeError(w, r, err)
		return
	}
	runs, err := s.store.ListRuns(r.Context(), filter)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if runs == nil {
		runs = []model.Run{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(runs), "runs": runs})
}

func (s *Server) handleGetRun(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, r, errNoStore)
		return
	}
	run, err := s.store.GetRun(r.Context(), chi.URLParam(r, "runID"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, run)
}

func (s *Server) handleListRecords(w http.ResponseWriter, r *http.Request) {
	if s.store == nil {
		writeError(w, r, errNoStore)
		return
	}
	runID := chi.URLParam(r, "runID")
	if _, err := s.store.GetRun(r.Context(), runID); err != nil {
		writeError(w, r, err)
		return
	}
	records, err := s.store.ListMergeRecords(r.Context(), runID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	if records == nil {
		records = []model.MergeRecord{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"count": len(records), "records": records})
}
