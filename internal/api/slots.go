package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/patrickwarner/embedpool/internal/logic/pool"
	"github.com/patrickwarner/embedpool/internal/middleware"
	"go.uber.org/zap"
)

// SlotText is the body of slot text requests and responses.
type SlotText struct {
	Slot string `json:"slot"`
	Text string `json:"text"`
	// Live is true when the text came from, or went to, an attached editor
	// rather than the persisted payload.
	Live bool `json:"live"`
}

// GetSlotTextHandler returns the current text of a slot.
func (s *Server) GetSlotTextHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "slot_text"
	name := mux.Vars(r)["name"]

	var (
		text string
		live bool
		err  error
	)
	if loopErr := s.onLoop(r.Context(), func() {
		text, live, err = s.Pool.SlotText(r.Context(), name)
	}); loopErr != nil {
		err = loopErr
	}

	status := s.slotStatus(r, err)
	if status != http.StatusOK {
		http.Error(w, http.StatusText(status), status)
		s.observe(endpoint, r.Method, status, start)
		return
	}
	writeJSON(w, http.StatusOK, SlotText{Slot: name, Text: text, Live: live})
	s.observe(endpoint, r.Method, http.StatusOK, start)
}

// SetSlotTextHandler replaces the text of a slot.
func (s *Server) SetSlotTextHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "slot_text"
	name := mux.Vars(r)["name"]

	var body SlotText
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		s.observe(endpoint, r.Method, http.StatusBadRequest, start)
		return
	}

	var (
		live bool
		err  error
	)
	if loopErr := s.onLoop(r.Context(), func() {
		live, err = s.Pool.SetSlotText(r.Context(), name, body.Text)
	}); loopErr != nil {
		err = loopErr
	}

	status := s.slotStatus(r, err)
	if status != http.StatusOK {
		http.Error(w, http.StatusText(status), status)
		s.observe(endpoint, r.Method, status, start)
		return
	}
	writeJSON(w, http.StatusOK, SlotText{Slot: name, Text: body.Text, Live: live})
	s.observe(endpoint, r.Method, http.StatusOK, start)
}

// ResetSlotHandler discards a slot's persisted edits.
func (s *Server) ResetSlotHandler(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	const endpoint = "slot_payload"
	name := mux.Vars(r)["name"]

	var err error
	if loopErr := s.onLoop(r.Context(), func() {
		err = s.Pool.ResetSlot(r.Context(), name)
	}); loopErr != nil {
		err = loopErr
	}

	status := s.slotStatus(r, err)
	if status != http.StatusOK {
		http.Error(w, http.StatusText(status), status)
		s.observe(endpoint, r.Method, status, start)
		return
	}
	w.WriteHeader(http.StatusNoContent)
	s.observe(endpoint, r.Method, http.StatusNoContent, start)
}

func (s *Server) slotStatus(r *http.Request, err error) int {
	switch {
	case err == nil:
		return http.StatusOK
	case errors.Is(err, pool.ErrUnknownSlot):
		return http.StatusNotFound
	default:
		middleware.LoggerFromRequest(r, s.Logger).Error("slot request failed",
			zap.String("slot", mux.Vars(r)["name"]), zap.Error(err))
		return http.StatusInternalServerError
	}
}
