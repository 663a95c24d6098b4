package api

import (
	"net/http"

	"github.com/nerrad567/intercom-access/internal/access"
)

// handleSetMasterPin handles POST /intercoms/{intercomId}/access/master-pin.
func (s *Server) handleSetMasterPin(w http.ResponseWriter, r *http.Request) {
	intercomID, err := pathID(r, "intercomId")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	var req setMasterPinRequest
	if !s.decode(w, r, &req) {
		return
	}

	res, err := s.access.SetMasterPin(r.Context(), principalFrom(r.Context()), intercomID, req.Pin)
	if err != nil {
		s.writeAccessError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleSetUserPin handles POST /intercoms/{intercomId}/access/users/{userId}/pin.
func (s *Server) handleSetUserPin(w http.ResponseWriter, r *http.Request) {
	intercomID, err := pathID(r, "intercomId")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	userID, err := pathID(r, "userId")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	var req setUserPinRequest
	if !s.decode(w, r, &req) {
		return
	}

	res, err := s.access.SetUserPin(r.Context(), principalFrom(r.Context()), intercomID, access.SetUserPinInput{
		UserID:    userID,
		Pin:       req.Pin,
		MasterPin: req.MasterPin,
	})
	if err != nil {
		s.writeAccessError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleChangeOwnPin serves both POST .../pin/self and PUT .../me/pin.
func (s *Server) handleChangeOwnPin(w http.ResponseWriter, r *http.Request) {
	intercomID, err := pathID(r, "intercomId")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	var req changePinRequest
	if !s.decode(w, r, &req) {
		return
	}

	res, err := s.access.ChangeOwnPin(r.Context(), principalFrom(r.Context()), intercomID, access.ChangePinInput{
		NewPin: req.NewPin,
		OldPin: req.OldPin,
	})
	if err != nil {
		s.writeAccessError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
