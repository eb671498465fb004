package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-cloudbridge/internal/accessory"
)

// accessoryInfo describes an accessory in API responses.
type accessoryInfo struct {
	ID              string                         `json:"id"`
	Name            string                         `json:"name"`
	Kind            accessory.Kind                 `json:"kind"`
	DeviceID        string                         `json:"device_id"`
	Characteristics []accessory.CharacteristicInfo `json:"characteristics"`

	// State and Errors are only set on GET /accessories/{id}.
	State  map[string]any    `json:"state,omitempty"`
	Errors map[string]string `json:"errors,omitempty"`
}

// characteristicValue is the body of characteristic reads and writes.
type characteristicValue struct {
	AccessoryID    string `json:"accessory_id,omitempty"`
	Characteristic string `json:"characteristic,omitempty"`
	Value          any    `json:"value"`
}

func describe(acc accessory.Accessory) accessoryInfo {
	return accessoryInfo{
		ID:              acc.ID(),
		Name:            acc.Name(),
		Kind:            acc.Kind(),
		DeviceID:        acc.DeviceID(),
		Characteristics: acc.Characteristics(),
	}
}

// handleListAccessories returns every configured accessory.
func (s *Server) handleListAccessories(w http.ResponseWriter, _ *http.Request) {
	list := s.accessories.List()
	out := make([]accessoryInfo, 0, len(list))
	for _, acc := range list {
		out = append(out, describe(acc))
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"accessories": out,
		"count":       len(out),
	})
}

// handleGetAccessory returns one accessory with the current value of every
// readable characteristic. Characteristics that cannot be read are listed
// under errors; the response is still 200.
func (s *Server) handleGetAccessory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	acc, ok := s.accessories.Get(id)
	if !ok {
		writeNotFound(w, "accessory not found")
		return
	}

	info := describe(acc)
	info.State = make(map[string]any)
	for _, ch := range info.Characteristics {
		if !ch.Readable {
			continue
		}
		v, err := s.accessories.Read(r.Context(), id, ch.Name)
		if err != nil {
			if info.Errors == nil {
				info.Errors = make(map[string]string)
			}
			info.Errors[ch.Name] = err.Error()
			continue
		}
		info.State[ch.Name] = v
	}

	writeJSON(w, http.StatusOK, info)
}

// handleReadCharacteristic reads one characteristic.
func (s *Server) handleReadCharacteristic(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	name := chi.URLParam(r, "name")

	v, err := s.accessories.Read(r.Context(), id, name)
	if err != nil {
		s.writeAccessoryError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, characteristicValue{
		AccessoryID:    id,
		Characteristic: name,
		Value:          v,
	})
}

// handleWriteCharacteristic writes one characteristic.
//
// Request body: {"value": <any>}
func (s *Server) handleWriteCharacteristic(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	name := chi.URLParam(r, "name")

	var body characteristicValue
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if body.Value == nil {
		writeBadRequest(w, "value is required")
		return
	}

	if err := s.accessories.Write(r.Context(), sourceAPI, id, name, body.Value); err != nil {
		s.writeAccessoryError(w, err)
		return
	}

	// MQTT hosts see the new state without waiting for the next poll.
	if s.bridge != nil {
		if err := s.bridge.PublishAccessoryState(r.Context(), id); err != nil {
			s.logger.Debug("state publish after write failed", "accessory", id, "error", err)
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"status":         "ok",
		"accessory_id":   id,
		"characteristic": name,
	})
}

// writeAccessoryError maps registry errors to HTTP responses.
func (s *Server) writeAccessoryError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, accessory.ErrAccessoryNotFound),
		errors.Is(err, accessory.ErrUnknownCharacteristic):
		writeNotFound(w, err.Error())
	case errors.Is(err, accessory.ErrNotReadable),
		errors.Is(err, accessory.ErrNotWritable):
		writeError(w, http.StatusMethodNotAllowed, ErrCodeMethodNotAllow, err.Error())
	case errors.Is(err, accessory.ErrInvalidValue):
		writeError(w, http.StatusBadRequest, ErrCodeValidation, err.Error())
	case errors.Is(err, accessory.ErrCommunicationFailure):
		writeError(w, http.StatusBadGateway, ErrCodeUnavailable, err.Error())
	default:
		s.logger.Error("accessory operation failed", "error", err)
		writeInternalError(w, "accessory operation failed")
	}
}
