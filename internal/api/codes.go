package api

import (
	"net/http"

	"github.com/nerrad567/intercom-access/internal/access"
)

// handleCreateAccessCode handles POST /access-codes.
func (s *Server) handleCreateAccessCode(w http.ResponseWriter, r *http.Request) {
	var req createCodeRequest
	if !s.decode(w, r, &req) {
		return
	}

	c, err := s.access.CreateAccessCode(r.Context(), principalFrom(r.Context()), access.CreateCodeInput{
		BuildingID:  req.BuildingID,
		IntercomID:  req.IntercomID,
		TenantID:    req.TenantID,
		Code:        req.Code,
		CodeType:    req.CodeType,
		IsSingleUse: req.IsSingleUse,
		ValidFrom:   req.ValidFrom,
		ExpiresAt:   req.ExpiresAt,
	})
	if err != nil {
		s.writeAccessError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

// handleListAccessCodes handles GET /access-codes.
func (s *Server) handleListAccessCodes(w http.ResponseWriter, r *http.Request) {
	p := &queryParser{r: r}
	q := access.CodeQuery{
		BuildingID: p.id("buildingId"),
		IntercomID: p.id("intercomId"),
		Page:       p.number("page"),
		PageSize:   p.number("pageSize"),
	}
	if active := p.flag("activeOnly"); active != nil {
		q.ActiveOnly = *active
	}
	if p.err != nil {
		writeBadRequest(w, p.err.Error())
		return
	}

	page, err := s.access.ListAccessCodes(r.Context(), principalFrom(r.Context()), q)
	if err != nil {
		s.writeAccessError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, page)
}

// handleGetAccessCode handles GET /access-codes/{codeId}.
func (s *Server) handleGetAccessCode(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "codeId")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	c, err := s.access.GetAccessCode(r.Context(), principalFrom(r.Context()), id)
	if err != nil {
		s.writeAccessError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// handleUpdateAccessCode handles PUT /access-codes/{codeId}.
func (s *Server) handleUpdateAccessCode(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "codeId")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	var req updateCodeRequest
	if !s.decode(w, r, &req) {
		return
	}

	c, err := s.access.UpdateAccessCode(r.Context(), principalFrom(r.Context()), id, access.UpdateCodeInput{
		IntercomID:  req.IntercomID,
		Code:        req.Code,
		CodeType:    req.CodeType,
		IsSingleUse: req.IsSingleUse,
		ValidFrom:   req.ValidFrom,
		ExpiresAt:   req.ExpiresAt,
	})
	if err != nil {
		s.writeAccessError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// handleDeactivateAccessCode handles POST /access-codes/{codeId}/deactivate.
func (s *Server) handleDeactivateAccessCode(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "codeId")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	c, err := s.access.DeactivateAccessCode(r.Context(), principalFrom(r.Context()), id)
	if err != nil {
		s.writeAccessError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, c)
}

// handleDeleteAccessCode handles DELETE /access-codes/{codeId}.
func (s *Server) handleDeleteAccessCode(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "codeId")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	if err := s.access.DeleteAccessCode(r.Context(), principalFrom(r.Context()), id); err != nil {
		s.writeAccessError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
