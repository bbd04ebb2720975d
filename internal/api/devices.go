package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/vmsim/internal/vending"
)

// snapshotTimeout bounds how long a handler waits on a device actor.
const snapshotTimeout = 2 * time.Second

// handleListDevices returns a snapshot of every simulated device.
// Devices whose actor has stopped are omitted.
func (s *Server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), snapshotTimeout)
	defer cancel()

	devices := s.fleet.Devices()
	snapshots := make([]vending.Snapshot, 0, len(devices))
	for _, d := range devices {
		snap, err := d.Snapshot(ctx)
		if err != nil {
			s.logger.Warn("device snapshot failed",
				"device_no", d.DeviceNo(),
				"error", err,
			)
			continue
		}
		snapshots = append(snapshots, snap)
	}

	writeJSON(w, http.StatusOK, map[string]any{"devices": snapshots, "count": len(snapshots)})
}

// handleGetDevice returns one device snapshot.
func (s *Server) handleGetDevice(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	d, ok := s.fleet.Device(id)
	if !ok {
		writeNotFound(w, "device not found")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), snapshotTimeout)
	defer cancel()

	snap, err := d.Snapshot(ctx)
	if err != nil {
		s.writeDeviceError(w, id, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// handleInjectCommand queues a raw command payload on a device as if it
// had arrived on the device's command topic. The ack is published to the
// broker as usual; the response only confirms the command was queued.
func (s *Server) handleInjectCommand(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	d, ok := s.fleet.Device(id)
	if !ok {
		writeNotFound(w, "device not found")
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		writeBadRequest(w, "reading request body failed")
		return
	}

	// Only the envelope shape is checked here; the dispatcher applies the
	// same rules it uses for broker traffic.
	var probe struct {
		CmdID string `json:"cmd_id"`
	}
	if err := json.Unmarshal(body, &probe); err != nil {
		writeBadRequest(w, "body must be a JSON object")
		return
	}

	if err := d.Enqueue(r.Context(), body); err != nil {
		s.writeDeviceError(w, id, err)
		return
	}

	s.logger.Info("command injected",
		"device_no", id,
		"cmd_id", probe.CmdID,
		"request_id", r.Context().Value(ctxKeyRequestID),
	)
	writeJSON(w, http.StatusAccepted, map[string]any{
		"status":    "queued",
		"device_no": id,
		"cmd_id":    probe.CmdID,
	})
}

// writeDeviceError maps actor errors onto HTTP responses.
func (s *Server) writeDeviceError(w http.ResponseWriter, id string, err error) {
	switch {
	case errors.Is(err, vending.ErrDeviceStopped):
		writeUnavailable(w, "device is not running")
	case errors.Is(err, context.DeadlineExceeded), errors.Is(err, context.Canceled):
		writeUnavailable(w, "device did not respond")
	default:
		s.logger.Error("device request failed", "device_no", id, "error", err)
		writeInternalError(w, "device request failed")
	}
}
