package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rotisserie/eris"
	gogeojson "github.com/twpayne/go-geom/encoding/geojson"
	"go.uber.org/zap"

	"github.com/sells-group/netmerge/internal/consolidate"
	"github.com/sells-group/netmerge/internal/geojson"
	"github.com/sells-group/netmerge/internal/model"
	"github.com/sells-group/netmerge/internal/network"
	"github.com/sells-group/netmerge/internal/remap"
	"github.com/sells-group/netmerge/internal/review"
	"github.com/sells-group/netmerge/internal/store"
)

// networkRequest carries one input network as GeoJSON.
type networkRequest struct {
	Description *network.Description `json:"description,omitempty"`
	Nodes       json.RawMessage      `json:"nodes"`
	Spans       json.RawMessage      `json:"spans,omitempty"`
}

type sessionRequest struct {
	NetworkA networkRequest `json:"network_a"`
	NetworkB networkRequest `json:"network_b"`
}

type featureResponse struct {
	ID         string             `json:"id"`
	Name       string             `json:"name"`
	Properties network.Properties `json:"properties"`
}

type itemResponse struct {
	Kind          network.Kind       `json:"kind"`
	A             featureResponse    `json:"a"`
	B             featureResponse    `json:"b"`
	Confidence    float64            `json:"confidence"`
	DistanceKM    float64            `json:"distance_km,omitempty"`
	Scores        map[string]float64 `json:"scores"`
	SimilarFields []string           `json:"similar_fields"`
	Status        string             `json:"status"`
}

type stateResponse struct {
	RunID   string        `json:"run_id,omitempty"`
	Stage   string        `json:"stage"`
	Index   int           `json:"index"`
	Total   int           `json:"total"`
	Counts  review.Counts `json:"counts"`
	Current *itemResponse `json:"current,omitempty"`
}

type commandResponse struct {
	Applied bool          `json:"applied"`
	State   stateResponse `json:"state"`
}

type outputResponse struct {
	Description network.Description          `json:"description"`
	Nodes       *gogeojson.FeatureCollection `json:"nodes"`
	Spans       *gogeojson.FeatureCollection `json:"spans"`
}

type reasonsResponse struct {
	Reasons []*consolidate.Reason `json:"reasons"`
	Nodes   consolidate.Stats     `json:"nodes"`
	Spans   consolidate.Stats     `json:"spans"`
}

func (s *Server) registerSessionRoutes(r chi.Router) {
	r.Route("/session", func(r chi.Router) {
		r.Post("/", s.handleCreateSession)
		r.Get("/", s.handleGetSession)
		r.Delete("/", s.handleDeleteSession)
		r.Get("/items", s.handleListItems)
		r.Post("/next", s.handleMove(func(rs *review.Session) error { return rs.Next() }))
		r.Post("/prev", s.handleMove(func(rs *review.Session) error { return rs.Prev() }))
		r.Post("/reject", s.handleMove(func(rs *review.Session) error { return rs.Reject() }))
		r.Post("/consolidate", s.handleConsolidate)
		r.Post("/finish", s.handleFinish)
		r.Get("/output", s.handleOutput)
		r.Get("/reasons", s.handleReasons)
	})
}

func decodeNetwork(req networkRequest, fallback string) (*network.Network, error) {
	if len(req.Nodes) == 0 {
		return nil, eris.Wrapf(errBadInput, "server: %s has no nodes", fallback)
	}
	var spans io.Reader
	if len(req.Spans) > 0 && string(req.Spans) != "null" {
		spans = bytes.NewReader(req.Spans)
	}
	n, err := geojson.DecodeNetwork(bytes.NewReader(req.Nodes), spans, fallback)
	if err != nil {
		var invalid *network.InvalidFeatureError
		if errors.As(err, &invalid) {
			return nil, eris.Wrapf(err, "server: %s", fallback)
		}
		return nil, eris.Wrapf(errBadInput, "server: %s: %v", fallback, err)
	}
	if req.Description != nil {
		n.Description = *req.Description
	}
	return n, nil
}

func (s *Server) handleCreateSession(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, r, eris.Wrap(errBadInput, "server: invalid request body"))
		return
	}
	a, err := decodeNetwork(req.NetworkA, "network_a")
	if err != nil {
		writeError(w, r, err)
		return
	}
	b, err := decodeNetwork(req.NetworkB, "network_b")
	if err != nil {
		writeError(w, r, err)
		return
	}

	rs := review.NewSession(s.sessionOpts...)
	if err := rs.SelectNetworks(r.Context(), a, b); err != nil {
		writeError(w, r, err)
		return
	}

	var runID string
	if s.store != nil {
		run, err := s.store.CreateRun(r.Context(), model.RunInput{
			NetworkA: a.Description,
			NetworkB: b.Description,
			Settings: s.settings,
		})
		if err != nil {
			writeError(w, r, err)
			return
		}
		runID = run.ID
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.session, s.runID, s.recorded = rs, runID, false

	zap.L().Info("review session opened",
		zap.String("run_id", runID),
		zap.String("network_a", a.Description.ID),
		zap.String("network_b", b.Description.ID),
	)
	writeJSON(w, http.StatusCreated, s.state())
}

func (s *Server) handleGetSession(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		writeError(w, r, errNoSession)
		return
	}
	writeJSON(w, http.StatusOK, s.state())
}

func (s *Server) handleDeleteSession(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.session, s.runID, s.recorded = nil, "", false
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleListItems(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		writeError(w, r, errNoSession)
		return
	}
	items := s.session.Items()
	out := make([]itemResponse, 0, len(items))
	for _, it := range items {
		out = append(out, toItemResponse(it))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"stage": s.session.Stage().String(),
		"items": out,
	})
}

func (s *Server) handleMove(cmd func(*review.Session) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.session == nil {
			writeError(w, r, errNoSession)
			return
		}
		if err := cmd(s.session); err != nil {
			writeError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, s.state())
	}
}

// confirmOf reads the confirm query parameter that answers any
// confirmation the command raises. It defaults to false.
func confirmOf(r *http.Request) (review.Confirmer, error) {
	raw := r.URL.Query().Get("confirm")
	if raw == "" {
		return review.Always(false), nil
	}
	ok, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, eris.Wrapf(errBadInput, "server: confirm %q", raw)
	}
	return review.Always(ok), nil
}

func (s *Server) handleConsolidate(w http.ResponseWriter, r *http.Request) {
	confirm, err := confirmOf(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		writeError(w, r, errNoSession)
		return
	}
	applied, err := s.session.Consolidate(confirm)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, commandResponse{Applied: applied, State: s.state()})
}

func (s *Server) handleFinish(w http.ResponseWriter, r *http.Request) {
	confirm, err := confirmOf(r)
	if err != nil {
		writeError(w, r, err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		writeError(w, r, errNoSession)
		return
	}
	advanced, err := s.session.Finish(r.Context(), confirm)
	if err != nil {
		s.failRun(r, err)
		writeError(w, r, err)
		return
	}
	if err := s.record(r); err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, commandResponse{Applied: advanced, State: s.state()})
}

// record persists the output of a finished session once.
func (s *Server) record(r *http.Request) error {
	if s.store == nil || s.recorded || s.session.Stage() != review.Output {
		return nil
	}
	out, err := s.session.Output()
	if err != nil {
		return err
	}
	nodes, spans := s.session.Stats()
	if _, err := store.RecordOutput(r.Context(), s.store, s.runID, out, nodes, spans); err != nil {
		return err
	}
	s.recorded = true
	return nil
}

func (s *Server) failRun(r *http.Request, cause error) {
	if s.store == nil || !errors.Is(cause, remap.ErrIntegrity) {
		return
	}
	if err := s.store.FailRun(r.Context(), s.runID, cause.Error()); err != nil {
		zap.L().Warn("record failed run", zap.String("run_id", s.runID), zap.Error(err))
	}
}

func (s *Server) handleOutput(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		writeError(w, r, errNoSession)
		return
	}
	out, err := s.session.Output()
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, outputResponse{
		Description: out.Description,
		Nodes:       geojson.Encode(out.Nodes(), &out.Description),
		Spans:       geojson.Encode(out.Spans(), &out.Description),
	})
}

func (s *Server) handleReasons(w http.ResponseWriter, r *http.Request) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		writeError(w, r, errNoSession)
		return
	}
	nodes, spans := s.session.Stats()
	reasons := s.session.Reasons()
	if reasons == nil {
		reasons = []*consolidate.Reason{}
	}
	writeJSON(w, http.StatusOK, reasonsResponse{Reasons: reasons, Nodes: nodes, Spans: spans})
}

// state must be called with mu held.
func (s *Server) state() stateResponse {
	st := stateResponse{
		RunID:  s.runID,
		Stage:  s.session.Stage().String(),
		Index:  s.session.Index(),
		Total:  len(s.session.Items()),
		Counts: s.session.Counts(),
	}
	if it, err := s.session.Current(); err == nil {
		resp := toItemResponse(it)
		st.Current = &resp
	}
	return st
}

func toItemResponse(it review.Item) itemResponse {
	c := it.Comparison
	return itemResponse{
		Kind:          c.Kind(),
		A:             featureResponse{ID: c.A.ID, Name: c.A.Name(), Properties: c.A.Properties},
		B:             featureResponse{ID: c.B.ID, Name: c.B.Name(), Properties: c.B.Properties},
		Confidence:    c.Confidence,
		DistanceKM:    c.DistanceKM,
		Scores:        c.Scores,
		SimilarFields: c.HighScoringFields(),
		Status:        it.Status.String(),
	}
}
