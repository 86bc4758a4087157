package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/SteelMorgan/evtc-log-uploader/internal/domain"
	"github.com/SteelMorgan/evtc-log-uploader/internal/pipeline"
	"github.com/SteelMorgan/evtc-log-uploader/internal/settings"
)

// services maps URL segments to upload destinations
var services = map[string]domain.Service{
	"dps-report": domain.ServiceDPSReport,
	"wingman":    domain.ServiceWingman,
}

// LogsResponse is a page of log snapshots. Version is the cursor for ?since=.
type LogsResponse struct {
	Version uint64           `json:"version" msgpack:"version"`
	Logs    []domain.LogData `json:"logs" msgpack:"logs"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Warn().Err(err).Msg("Failed to write response")
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeEnqueueError maps pipeline refusals to HTTP statuses
func writeEnqueueError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pipeline.ErrUnknownLog):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, pipeline.ErrPrecondition):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, pipeline.ErrNotRunning):
		writeError(w, http.StatusServiceUnavailable, err.Error())
	default:
		writeError(w, http.StatusInternalServerError, err.Error())
	}
}

// logID returns the {id} parameter. Ids contain slashes, so clients escape them as %2F.
func logID(r *http.Request) (string, error) {
	return url.PathUnescape(chi.URLParam(r, "id"))
}

func (s *Server) logsSince(r *http.Request) (LogsResponse, error) {
	raw := r.URL.Query().Get("since")
	if raw == "" {
		logs, version := s.uploader.SnapshotsSince(0)
		return LogsResponse{Version: version, Logs: logs}, nil
	}

	since, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return LogsResponse{}, err
	}
	logs, version := s.uploader.SnapshotsSince(since)
	return LogsResponse{Version: version, Logs: logs}, nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	status := s.uploader.Status()
	status["status"] = "ok"
	writeJSON(w, http.StatusOK, status)
}

func (s *Server) handleListLogs(w http.ResponseWriter, r *http.Request) {
	resp, err := s.logsSince(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid since parameter")
		return
	}
	if resp.Logs == nil {
		resp.Logs = []domain.LogData{}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleListLogsMsgpack(w http.ResponseWriter, r *http.Request) {
	resp, err := s.logsSince(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid since parameter")
		return
	}

	data, err := msgpack.Marshal(resp)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to encode msgpack")
		return
	}

	w.Header().Set("Content-Type", "application/msgpack")
	w.WriteHeader(http.StatusOK)
	w.Write(data)
}

func (s *Server) handleGetLog(w http.ResponseWriter, r *http.Request) {
	id, err := logID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid log id")
		return
	}

	d, ok := s.uploader.Lookup(id)
	if !ok {
		writeError(w, http.StatusNotFound, pipeline.ErrUnknownLog.Error())
		return
	}
	writeJSON(w, http.StatusOK, d)
}

func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	id, err := logID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid log id")
		return
	}

	if err := s.uploader.EnqueueParse(id); err != nil {
		writeEnqueueError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{"id": id, "status": string(domain.ParseQueued)})
}

func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	id, err := logID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid log id")
		return
	}

	svc, ok := services[chi.URLParam(r, "service")]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown upload service")
		return
	}

	if err := s.uploader.EnqueueUpload(svc, id); err != nil {
		writeEnqueueError(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, map[string]string{
		"id":      id,
		"service": string(svc),
		"status":  string(domain.UploadQueued),
	})
}

func (s *Server) handleAutoUpload(w http.ResponseWriter, r *http.Request) {
	id, err := logID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid log id")
		return
	}
	if _, ok := s.uploader.Lookup(id); !ok {
		writeError(w, http.StatusNotFound, pipeline.ErrUnknownLog.Error())
		return
	}

	s.uploader.ProcessAutoUpload(id)
	d, _ := s.uploader.Lookup(id)
	writeJSON(w, http.StatusAccepted, d)
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	entries, err := s.uploader.History(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		writeJSON(w, http.StatusOK, []any{})
		return
	}
	writeJSON(w, http.StatusOK, entries)
}

// historyTarget resolves the {service} and {id} parameters of a ledger route
func historyTarget(w http.ResponseWriter, r *http.Request) (domain.Service, string, bool) {
	svc, ok := services[chi.URLParam(r, "service")]
	if !ok {
		writeError(w, http.StatusNotFound, "unknown upload service")
		return "", "", false
	}
	id, err := logID(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid log id")
		return "", "", false
	}
	return svc, id, true
}

func (s *Server) handleGetHistoryEntry(w http.ResponseWriter, r *http.Request) {
	svc, id, ok := historyTarget(w, r)
	if !ok {
		return
	}

	entry, found, err := s.uploader.HistoryEntry(r.Context(), svc, id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if !found {
		writeError(w, http.StatusNotFound, "no upload recorded")
		return
	}
	writeJSON(w, http.StatusOK, entry)
}

func (s *Server) handleForgetHistory(w http.ResponseWriter, r *http.Request) {
	svc, id, ok := historyTarget(w, r)
	if !ok {
		return
	}

	if err := s.uploader.ForgetHistory(r.Context(), svc, id); err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// tokenMask replaces the dps.report user token in responses
const tokenMask = "********"

func maskSettings(d settings.Data) settings.Data {
	if d.DPSReport.UserToken != "" {
		d.DPSReport.UserToken = tokenMask
	}
	return d
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, maskSettings(s.uploader.Settings().Read()))
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	var in settings.Data
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<20))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&in); err != nil {
		writeError(w, http.StatusBadRequest, "invalid settings: "+err.Error())
		return
	}

	store := s.uploader.Settings()
	err := store.Update(func(d *settings.Data) {
		token := d.DPSReport.UserToken
		*d = in
		if d.DPSReport.UserToken == "" || d.DPSReport.UserToken == tokenMask {
			d.DPSReport.UserToken = token
		}
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}

	writeJSON(w, http.StatusOK, maskSettings(store.Read()))
}
