package api

import (
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-pixels/internal/audit"
)

// handleListAudit returns audit entries, newest first.
//
// Query parameters:
//   - action: filter by action (device_created, device_removed, effects_cleared)
//   - device_id: filter by device
//   - limit: page size (default 50, max 200)
//   - offset: entries to skip
func (s *Server) handleListAudit(w http.ResponseWriter, r *http.Request) {
	s.listAudit(w, r, r.URL.Query().Get("device_id"))
}

// handleListDeviceAudit returns audit entries for one device. The device
// need not still exist.
func (s *Server) handleListDeviceAudit(w http.ResponseWriter, r *http.Request) {
	s.listAudit(w, r, chi.URLParam(r, "id"))
}

func (s *Server) listAudit(w http.ResponseWriter, r *http.Request, deviceID string) {
	if s.audit == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "audit trail is not enabled")
		return
	}

	q := r.URL.Query()
	limit, ok := queryInt(q.Get("limit"))
	if !ok {
		writeBadRequest(w, "limit must be a non-negative integer")
		return
	}
	offset, ok := queryInt(q.Get("offset"))
	if !ok {
		writeBadRequest(w, "offset must be a non-negative integer")
		return
	}

	result, err := s.audit.List(r.Context(), audit.Filter{
		Action:   q.Get("action"),
		DeviceID: deviceID,
		Limit:    limit,
		Offset:   offset,
	})
	if err != nil {
		s.logger.Error("listing audit entries failed", "error", err)
		writeInternalError(w, "failed to list audit entries")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// queryInt parses an optional non-negative integer parameter.
func queryInt(v string) (int, bool) {
	if v == "" {
		return 0, true
	}
	n, err := strconv.Atoi(v)
	if err != nil || n < 0 {
		return 0, false
	}
	return n, true
}
