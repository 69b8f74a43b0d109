package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-pixels/internal/device"
)

// ErrCodeOutput reports that a device's output rejected a frame.
const ErrCodeOutput = "output_error"

// DeviceView is the JSON form of a device.
type DeviceView struct {
	ID            string    `json:"id"`
	Type          string    `json:"type"`
	Name          string    `json:"name"`
	PixelCount    int       `json:"pixel_count"`
	RefreshRate   int       `json:"refresh_rate"`
	MaxBrightness float64   `json:"max_brightness"`
	CenterOffset  int       `json:"center_offset"`
	ForceRefresh  bool      `json:"force_refresh"`
	PreviewOnly   bool      `json:"preview_only"`
	Active        bool      `json:"active"`
	Stats         StatsView `json:"stats"`
}

// StatsView is the JSON form of device.Stats.
type StatsView struct {
	FramesFlushed   uint64     `json:"frames_flushed"`
	FramesPublished uint64     `json:"frames_published"`
	FlushErrors     uint64     `json:"flush_errors"`
	RenderErrors    uint64     `json:"render_errors"`
	MissedTicks     uint64     `json:"missed_ticks"`
	LastFrameAt     *time.Time `json:"last_frame_at,omitempty"`
}

// CreateDeviceRequest is the body of POST /devices.
type CreateDeviceRequest struct {
	ID     string         `json:"id"`
	Type   string         `json:"type"`
	Config map[string]any `json:"config"`
}

func newDeviceView(d *device.Device) DeviceView {
	cfg := d.Config()
	st := d.Stats()

	v := DeviceView{
		ID:            d.ID(),
		Type:          d.Type(),
		Name:          cfg.Name,
		PixelCount:    d.PixelCount(),
		RefreshRate:   cfg.RefreshRate,
		MaxBrightness: cfg.MaxBrightness,
		CenterOffset:  cfg.CenterOffset,
		ForceRefresh:  cfg.ForceRefresh,
		PreviewOnly:   cfg.PreviewOnly,
		Active:        st.Active,
		Stats: StatsView{
			FramesFlushed:   st.FramesFlushed,
			FramesPublished: st.FramesPublished,
			FlushErrors:     st.FlushErrors,
			RenderErrors:    st.RenderErrors,
			MissedTicks:     st.MissedTicks,
		},
	}
	if !st.LastFrameAt.IsZero() {
		last := st.LastFrameAt.UTC()
		v.Stats.LastFrameAt = &last
	}
	return v
}

// handleListDevices returns all devices in registration order.
//
// Query parameters:
//   - type: filter by device type
//   - active: "true" or "false"
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	typ := r.URL.Query().Get("type")
	active := r.URL.Query().Get("active")
	if active != "" && active != "true" && active != "false" {
		writeBadRequest(w, "active must be true or false")
		return
	}

	views := make([]DeviceView, 0)
	for _, d := range s.registry.List() {
		if typ != "" && d.Type() != typ {
			continue
		}
		if active != "" && d.IsActive() != (active == "true") {
			continue
		}
		views = append(views, newDeviceView(d))
	}

	writeJSON(w, http.StatusOK, map[string]any{"devices": views, "count": len(views)})
}

// handleGetDevice returns a single device by ID.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	d, ok := s.registry.Get(chi.URLParam(r, "id"))
	if !ok {
		writeNotFound(w, "device not found")
		return
	}
	writeJSON(w, http.StatusOK, newDeviceView(d))
}

// handleCreateDevice creates and stores a new device.
func (s *Server) handleCreateDevice(w http.ResponseWriter, r *http.Request) {
	var req CreateDeviceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.Type == "" {
		writeError(w, http.StatusBadRequest, ErrCodeValidation, "type is required")
		return
	}

	d, err := s.registry.CreateAndPersist(r.Context(), req.ID, req.Type, req.Config)
	if err != nil {
		switch {
		case errors.Is(err, device.ErrDeviceExists):
			writeError(w, http.StatusConflict, ErrCodeConflict, "device already exists")
		case errors.Is(err, device.ErrUnknownType):
			writeError(w, http.StatusBadRequest, ErrCodeValidation, "unknown device type: "+req.Type)
		case errors.Is(err, device.ErrInvalidConfig):
			writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
		default:
			s.logger.Error("creating device failed", "type", req.Type, "error", err)
			writeInternalError(w, "failed to create device")
		}
		return
	}

	writeJSON(w, http.StatusCreated, newDeviceView(d))
}

// handleDeleteDevice blanks and removes a device. The device is gone even if
// its output failed to close; that failure is only logged.
func (s *Server) handleDeleteDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := s.registry.Remove(r.Context(), id); err != nil {
		if errors.Is(err, device.ErrDeviceNotFound) {
			writeNotFound(w, "device not found")
			return
		}
		s.logger.Warn("device removed with errors", "device_id", id, "error", err)
	}

	w.WriteHeader(http.StatusNoContent)
}

// handleClearEffect stops a device and blanks its output.
func (s *Server) handleClearEffect(w http.ResponseWriter, r *http.Request) {
	d, ok := s.registry.Get(chi.URLParam(r, "id"))
	if !ok {
		writeNotFound(w, "device not found")
		return
	}

	if err := d.ClearEffect(); err != nil {
		s.logger.Warn("blanking device failed", "device_id", d.ID(), "error", err)
		writeError(w, http.StatusBadGateway, ErrCodeOutput, "device cleared but output rejected the blank frame")
		return
	}

	writeJSON(w, http.StatusOK, newDeviceView(d))
}

// handleListTypes returns the registered device type names.
func (s *Server) handleListTypes(w http.ResponseWriter, _ *http.Request) {
	names := s.types.Names()
	writeJSON(w, http.StatusOK, map[string]any{"types": names, "count": len(names)})
}
