package api

import (
	"encoding/json"
	"net/http"

	"github.com/ethereum/go-ethereum/common"

	"github.com/standardbounties/standardbounties/internal/bounty"
	"github.com/standardbounties/standardbounties/internal/logging"
)

// SetFeeRequest matches POST /v1/instances/{addr}/admin/fee
type SetFeeRequest struct {
	RateBps uint16 `json:"rate_bps"`
}

// SetFeeRecipientRequest matches POST /v1/instances/{addr}/admin/fee-recipient
type SetFeeRecipientRequest struct {
	Recipient string `json:"recipient"`
}

// handleAdminPath dispatches /v1/instances/{addr}/admin/... routes. The
// caller must be in the configured admin wallet list; the instance itself
// additionally enforces its owner check.
func (s *Server) handleAdminPath(w http.ResponseWriter, r *http.Request, in *bounty.Instance, rest []string) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	caller, err := s.callerAddress(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !s.isAdmin(caller) {
		logging.Warn("admin endpoint rejected",
			logging.Actor(caller),
			"path", r.URL.Path,
			logging.Component("api"))
		s.writeError(w, http.StatusForbidden, "not an admin wallet")
		return
	}
	if len(rest) == 0 {
		s.writeError(w, http.StatusNotFound, "not found")
		return
	}

	switch rest[0] {
	case "pause":
		err = in.Pause(caller)
	case "unpause":
		err = in.Unpause(caller)
	case "fee":
		var req SetFeeRequest
		if derr := json.NewDecoder(r.Body).Decode(&req); derr != nil {
			s.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		err = in.SetPlatformFeeRate(caller, req.RateBps)
	case "fee-recipient":
		var req SetFeeRecipientRequest
		if derr := json.NewDecoder(r.Body).Decode(&req); derr != nil {
			s.writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		if !common.IsHexAddress(req.Recipient) {
			s.writeError(w, http.StatusBadRequest, "invalid recipient address")
			return
		}
		err = in.SetFeeRecipient(caller, common.HexToAddress(req.Recipient))
	default:
		s.writeError(w, http.StatusNotFound, "not found")
		return
	}

	if err != nil {
		s.writeError(w, statusForError(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// handleEmergencyWithdraw handles POST /v1/instances/{addr}/bounties/{id}/emergency-withdraw
func (s *Server) handleEmergencyWithdraw(w http.ResponseWriter, r *http.Request, in *bounty.Instance, bountyID uint64) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	caller, err := s.callerAddress(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if !s.isAdmin(caller) {
		s.writeError(w, http.StatusForbidden, "not an admin wallet")
		return
	}

	if err := in.EmergencyWithdraw(caller, bountyID); err != nil {
		s.writeError(w, statusForError(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "withdrawn"})
}
