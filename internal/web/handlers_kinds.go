package web

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/pharmaimport/internal/core"
)

type columnResponse struct {
	Field   string   `json:"field"`
	Header  string   `json:"header"`
	Aliases []string `json:"aliases"`
}

type kindResponse struct {
	Key            string           `json:"key"`
	Label          string           `json:"label"`
	RequiredParams []string         `json:"requiredParams"`
	Columns        []columnResponse `json:"columns"`
}

func toKindResponse(def core.Definition) kindResponse {
	cols := make([]columnResponse, len(def.Aliases))
	for i, a := range def.Aliases {
		cols[i] = columnResponse{Field: a.Field, Header: a.Canonical(), Aliases: a.Headers}
	}
	required := def.RequiredParams
	if required == nil {
		required = []string{}
	}
	return kindResponse{
		Key:            def.Key,
		Label:          def.Label,
		RequiredParams: required,
		Columns:        cols,
	}
}

// handleListKinds returns every registered import kind.
func (s *Server) handleListKinds(w http.ResponseWriter, r *http.Request) {
	defs := s.service.Kinds()
	out := make([]kindResponse, len(defs))
	for i, def := range defs {
		out[i] = toKindResponse(def)
	}
	writeJSON(w, out)
}

// handleTemplate downloads an empty template with example rows.
func (s *Server) handleTemplate(w http.ResponseWriter, r *http.Request) {
	def, err := core.Lookup(chi.URLParam(r, "kind"))
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	format, err := core.ParseTemplateFormat(r.URL.Query().Get("format"))
	if err != nil {
		respondError(w, r, err, http.StatusBadRequest)
		return
	}

	data, err := core.ExportTemplate(def, format)
	if err != nil {
		respondError(w, r, err, http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", format.ContentType())
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", core.TemplateFileName(def, format)))
	w.Header().Set("Content-Length", fmt.Sprint(len(data)))
	_, _ = w.Write(data)
}

// handleStatus reports upload slots and session count.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]any{
		"uploads":  s.service.UploadStatus(),
		"sessions": s.service.SessionCount(),
		"kinds":    core.KindCount(),
	})
}

// handleHistory lists recorded runs of a kind.
func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	limit := parseIntParam(r, "limit", core.DefaultHistoryLimit)
	runs, err := s.service.History(r.Context(), chi.URLParam(r, "kind"), limit)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	if runs == nil {
		runs = []core.ImportRun{}
	}
	writeJSON(w, runs)
}
