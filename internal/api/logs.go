package api

import "net/http"

// handleIntercomLogs handles GET /intercoms/{intercomId}/access/logs.
func (s *Server) handleIntercomLogs(w http.ResponseWriter, r *http.Request) {
	intercomID, err := pathID(r, "intercomId")
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}
	f, err := logFilter(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	res, err := s.access.IntercomLogs(r.Context(), principalFrom(r.Context()), intercomID, f)
	if err != nil {
		s.writeAccessError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// handleQueryLogs handles GET /access-logs.
func (s *Server) handleQueryLogs(w http.ResponseWriter, r *http.Request) {
	f, err := logFilter(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return
	}

	res, err := s.access.QueryLogs(r.Context(), principalFrom(r.Context()), f)
	if err != nil {
		s.writeAccessError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}
