package web

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/JonMunkholm/pharmaimport/internal/core"
	"github.com/JonMunkholm/pharmaimport/internal/logging"
)

const (
	defaultPreviewLimit = 20

	// multipartOverhead allows for form boundaries around the file.
	multipartOverhead = 1 << 20
)

var errNoFile = errors.New("no file provided")

type createImportRequest struct {
	Kind string `json:"kind"`
}

// handleCreateImport starts a new session: {"kind": "doctors"}.
func (s *Server) handleCreateImport(w http.ResponseWriter, r *http.Request) {
	var req createImportRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err, http.StatusBadRequest)
		return
	}

	id, err := s.service.CreateSession(withClient(r.Context(), r), req.Kind)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	snap, err := s.service.Snapshot(id)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	w.Header().Set("Location", "/api/imports/"+id)
	writeJSONStatus(w, http.StatusCreated, snap)
}

// handleGetImport returns the session snapshot.
func (s *Server) handleGetImport(w http.ResponseWriter, r *http.Request) {
	snap, err := s.service.Snapshot(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	writeJSON(w, snap)
}

// handleSetParams replaces the shared parameters.
func (s *Server) handleSetParams(w http.ResponseWriter, r *http.Request) {
	var params core.SharedParams
	if err := decodeJSON(w, r, &params); err != nil {
		respondError(w, r, fmt.Errorf("invalid parameters: %w", err), http.StatusBadRequest)
		return
	}

	snap, err := s.service.SetParams(chi.URLParam(r, "id"), params)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	writeJSON(w, snap)
}

// handleFile parses the multipart "file" field into the session.
func (s *Server) handleFile(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	maxSize := core.MaxFileSize
	r.Body = http.MaxBytesReader(w, r.Body, maxSize+multipartOverhead)

	if err := r.ParseMultipartForm(maxSize); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			respondError(w, r, fmt.Errorf("file too large: limit is %d bytes", maxSize), http.StatusRequestEntityTooLarge)
			return
		}
		respondError(w, r, errNoFile, http.StatusBadRequest)
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respondError(w, r, errNoFile, http.StatusBadRequest)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		respondError(w, r, fmt.Errorf("read upload: %w", err), http.StatusBadRequest)
		return
	}

	snap, err := s.service.Parse(r.Context(), id, header.Filename, data)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	writeJSON(w, snap)
}

type previewResponse struct {
	Total   int                 `json:"total"`
	Records []core.MappedRecord `json:"records"`
}

// handlePreview returns the first mapped records.
func (s *Server) handlePreview(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	snap, err := s.service.Snapshot(id)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	records, err := s.service.Preview(id, parseIntParam(r, "limit", defaultPreviewLimit))
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	if records == nil {
		records = []core.MappedRecord{}
	}
	writeJSON(w, previewResponse{Total: snap.RowCount, Records: records})
}

// handleStartUpload starts the background upload and answers 202.
func (s *Server) handleStartUpload(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.service.StartUpload(withClient(r.Context(), r), id); err != nil {
		respondError(w, r, err, 0)
		return
	}
	snap, err := s.service.Snapshot(id)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	logging.WithFields(r.Context(), "session_id", id, "kind", snap.Kind).
		Info("upload accepted", "rows", snap.RowCount)
	w.Header().Set("Location", "/api/imports/"+id+"/progress")
	writeJSONStatus(w, http.StatusAccepted, snap)
}

// handleProgress streams progress as Server-Sent Events. The event id is the
// completion percentage; a reconnecting client passes lastEventId (or the
// Last-Event-ID header) to skip updates it already has.
func (s *Server) handleProgress(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	lastSeen := -1
	if v := r.Header.Get("Last-Event-ID"); v != "" {
		lastSeen = parseIntParamValue(v, -1)
	}
	if v := r.URL.Query().Get("lastEventId"); v != "" {
		lastSeen = parseIntParamValue(v, -1)
	}

	progressCh, err := s.service.SubscribeProgress(id)
	if err != nil {
		respondError(w, r, err, 0)
		return
	}

	flusher, ok := w.(http.Flusher)
	if !ok {
		respondError(w, r, errors.New("streaming not supported"), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	for {
		select {
		case p, ok := <-progressCh:
			if !ok {
				snap, err := s.service.Snapshot(id)
				data := []byte("{}")
				if err == nil {
					data, _ = json.Marshal(snap)
				}
				fmt.Fprintf(w, "event: complete\ndata: %s\n\n", data)
				flusher.Flush()
				return
			}

			if p.State == core.StateUploading && p.Percent <= lastSeen {
				continue
			}
			data, _ := json.Marshal(p)
			fmt.Fprintf(w, "id: %d\nevent: progress\ndata: %s\n\n", p.Percent, data)
			flusher.Flush()

		case <-r.Context().Done():
			return
		}
	}
}

func parseIntParamValue(v string, def int) int {
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

// handleRestart resets the session to Idle.
func (s *Server) handleRestart(w http.ResponseWriter, r *http.Request) {
	snap, err := s.service.Restart(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, r, err, 0)
		return
	}
	writeJSON(w, snap)
}

// handleCloseImport discards the session.
func (s *Server) handleCloseImport(w http.ResponseWriter, r *http.Request) {
	if err := s.service.Close(chi.URLParam(r, "id")); err != nil {
		respondError(w, r, err, 0)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
