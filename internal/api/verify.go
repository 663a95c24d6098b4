package api

import (
	"encoding/json"
	"net/http"
	"unicode/utf8"

	"github.com/nerrad567/intercom-access/internal/access"
)

// handleVerify handles POST /intercoms/{intercomId}/access/verify.
//
// The response is always 200 with a decision. A malformed intercom id is
// verified against no intercom and a malformed body as an empty PIN, so
// both still get their ledger row.
func (s *Server) handleVerify(w http.ResponseWriter, r *http.Request) {
	intercomID, err := pathID(r, "intercomId")
	if err != nil {
		intercomID = 0
	}

	var req verifyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		req = verifyRequest{}
	}

	res, err := s.access.Verify(r.Context(), access.VerifyRequest{
		IntercomID: intercomID,
		Pin:        req.Pin,
		SourceIP:   s.clientIP(r),
		DeviceInfo: truncateUTF8(req.DeviceInfo, maxDeviceInfoLength),
	})
	if err != nil {
		s.logger.Error("verification failed",
			"intercom_id", intercomID,
			"request_id", r.Context().Value(ctxKeyRequestID),
			"error", err,
		)
	}
	writeJSON(w, http.StatusOK, res)
}

// truncateUTF8 cuts s to at most n bytes without splitting a rune.
func truncateUTF8(s string, n int) string {
	if len(s) <= n {
		return s
	}
	for n > 0 && !utf8.RuneStart(s[n]) {
		n--
	}
	return s[:n]
}
