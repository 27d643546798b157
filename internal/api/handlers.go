package api

import (
	"encoding/json"
	"errors"
	"io"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"github.com/standardbounties/standardbounties/internal/assets"
	"github.com/standardbounties/standardbounties/internal/bounty"
	"github.com/standardbounties/standardbounties/internal/factory"
	"github.com/standardbounties/standardbounties/pkg/types"
)

// Request/Response types

// DeployInstanceRequest matches POST /v1/instances
type DeployInstanceRequest struct {
	Salt string `json:"salt,omitempty"` // 32-byte hex; omit for an auto-derived salt
}

// DeployInstanceResponse is the response for POST /v1/instances
type DeployInstanceResponse struct {
	Address string `json:"address"`
	Owner   string `json:"owner"`
}

// InstanceInfoResponse is the response for GET /v1/instances/{addr}
type InstanceInfoResponse struct {
	Address        string `json:"address"`
	Owner          string `json:"owner"`
	PlatformFeeBps uint16 `json:"platform_fee_bps"`
	FeeRecipient   string `json:"fee_recipient"`
	Paused         bool   `json:"paused"`
	BountyCount    uint64 `json:"bounty_count"`
}

// PredictResponse is the response for GET /v1/predict
type PredictResponse struct {
	Address string `json:"address"`
}

// InitializeBountyRequest matches POST /v1/instances/{addr}/bounties
type InitializeBountyRequest struct {
	Issuer   string    `json:"issuer,omitempty"` // defaults to the caller
	Arbiter  string    `json:"arbiter,omitempty"`
	Data     string    `json:"data"`
	Deadline time.Time `json:"deadline"`
}

// InitializeBountyResponse is the response for POST /v1/instances/{addr}/bounties
type InitializeBountyResponse struct {
	BountyID uint64 `json:"bounty_id"`
}

// FundRequest matches POST /v1/instances/{addr}/bounties/{id}/fund
type FundRequest struct {
	Token  string `json:"token,omitempty"` // empty means native currency
	Amount string `json:"amount"`          // decimal string
}

// FulfillRequest matches POST /v1/instances/{addr}/bounties/{id}/fulfillments
type FulfillRequest struct {
	Data string `json:"data"`
}

// FulfillResponse is the response for POST .../fulfillments
type FulfillResponse struct {
	FulfillmentID uint64 `json:"fulfillment_id"`
}

// UpdateFulfillmentRequest matches PUT .../fulfillments/{fid}
type UpdateFulfillmentRequest struct {
	Data string `json:"data"`
}

// AcceptRequest matches POST .../fulfillments/{fid}/accept
type AcceptRequest struct {
	Amount string `json:"amount"` // decimal string
}

// BalanceResponse matches GET /v1/balance
type BalanceResponse struct {
	Address string `json:"address"`
	Token   string `json:"token"`
	Balance string `json:"balance"`
}

// ApproveRequest matches POST /v1/approve
type ApproveRequest struct {
	Token   string `json:"token"`
	Spender string `json:"spender"`
	Amount  string `json:"amount"`
}

// handleInstances handles /v1/instances (deploy and list)
func (s *Server) handleInstances(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodPost:
		s.handleDeployInstance(w, r)
	case http.MethodGet:
		addrs := s.factory.Instances()
		out := make([]string, len(addrs))
		for i, a := range addrs {
			out[i] = a.Hex()
		}
		s.writeJSON(w, http.StatusOK, map[string]any{"instances": out, "count": len(out)})
	default:
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
	}
}

func (s *Server) handleDeployInstance(w http.ResponseWriter, r *http.Request) {
	caller, err := s.callerAddress(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// The body is optional; an empty body deploys with an auto-derived salt.
	var req DeployInstanceRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var in *bounty.Instance
	if req.Salt == "" {
		in, err = s.factory.DeployInstanceAuto(caller)
	} else {
		var salt [32]byte
		raw := common.FromHex(req.Salt)
		if len(raw) == 0 || len(raw) > 32 {
			s.writeError(w, http.StatusBadRequest, "salt must be 1-32 bytes of hex")
			return
		}
		copy(salt[32-len(raw):], raw)
		in, err = s.factory.DeployInstance(caller, salt)
	}
	if err != nil {
		s.writeError(w, statusForError(err), err.Error())
		return
	}

	s.writeJSON(w, http.StatusCreated, DeployInstanceResponse{
		Address: in.Address().Hex(),
		Owner:   in.Owner().Hex(),
	})
}

// handlePredict handles GET /v1/predict?owner=0x..&salt=0x..
func (s *Server) handlePredict(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	owner := r.URL.Query().Get("owner")
	if !common.IsHexAddress(owner) {
		s.writeError(w, http.StatusBadRequest, "invalid owner address")
		return
	}
	raw := common.FromHex(r.URL.Query().Get("salt"))
	if len(raw) == 0 || len(raw) > 32 {
		s.writeError(w, http.StatusBadRequest, "salt must be 1-32 bytes of hex")
		return
	}
	var salt [32]byte
	copy(salt[32-len(raw):], raw)

	addr := s.factory.PredictInstanceAddress(common.HexToAddress(owner), salt)
	s.writeJSON(w, http.StatusOK, PredictResponse{Address: addr.Hex()})
}

// handleInstancePath dispatches /v1/instances/{addr}/... routes
func (s *Server) handleInstancePath(w http.ResponseWriter, r *http.Request) {
	parts := splitPath(strings.TrimPrefix(r.URL.Path, "/v1/instances/"))
	if len(parts) == 0 || !common.IsHexAddress(parts[0]) {
		s.writeError(w, http.StatusBadRequest, "invalid instance address")
		return
	}

	in, err := s.factory.Instance(common.HexToAddress(parts[0]))
	if err != nil {
		s.writeError(w, http.StatusNotFound, err.Error())
		return
	}
	rest := parts[1:]

	switch {
	case len(rest) == 0:
		s.handleInstanceInfo(w, r, in)
	case rest[0] == "bounties":
		s.handleBountyPath(w, r, in, rest[1:])
	case rest[0] == "events":
		s.handleEvents(w, r, in)
	case rest[0] == "admin":
		s.handleAdminPath(w, r, in, rest[1:])
	default:
		s.writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *Server) handleInstanceInfo(w http.ResponseWriter, r *http.Request, in *bounty.Instance) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	s.writeJSON(w, http.StatusOK, InstanceInfoResponse{
		Address:        in.Address().Hex(),
		Owner:          in.Owner().Hex(),
		PlatformFeeBps: in.PlatformFeeRate(),
		FeeRecipient:   in.FeeRecipient().Hex(),
		Paused:         in.Paused(),
		BountyCount:    in.BountyCount(),
	})
}

// handleBountyPath dispatches bounty and fulfillment routes below an instance
func (s *Server) handleBountyPath(w http.ResponseWriter, r *http.Request, in *bounty.Instance, rest []string) {
	if len(rest) == 0 {
		switch r.Method {
		case http.MethodPost:
			s.handleInitializeBounty(w, r, in)
		case http.MethodGet:
			s.writeJSON(w, http.StatusOK, map[string]any{"count": in.BountyCount()})
		default:
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
		return
	}

	bountyID, err := strconv.ParseUint(rest[0], 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid bounty id")
		return
	}
	rest = rest[1:]

	if len(rest) == 0 {
		s.handleGetBounty(w, r, in, bountyID)
		return
	}

	switch rest[0] {
	case "fund":
		s.handleFund(w, r, in, bountyID)
	case "cancel":
		s.handleCancel(w, r, in, bountyID)
	case "emergency-withdraw":
		s.handleEmergencyWithdraw(w, r, in, bountyID)
	case "funders":
		s.handleFunders(w, r, in, bountyID)
	case "contribution":
		s.handleContribution(w, r, in, bountyID)
	case "fulfillments":
		s.handleFulfillmentPath(w, r, in, bountyID, rest[1:])
	default:
		s.writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *Server) handleFulfillmentPath(w http.ResponseWriter, r *http.Request, in *bounty.Instance, bountyID uint64, rest []string) {
	if len(rest) == 0 {
		if r.Method != http.MethodPost {
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
			return
		}
		s.handleFulfill(w, r, in, bountyID)
		return
	}

	fulfillmentID, err := strconv.ParseUint(rest[0], 10, 64)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid fulfillment id")
		return
	}
	rest = rest[1:]

	if len(rest) == 0 {
		switch r.Method {
		case http.MethodGet:
			s.handleGetFulfillment(w, r, in, bountyID, fulfillmentID)
		case http.MethodPut:
			s.handleUpdateFulfillment(w, r, in, bountyID, fulfillmentID)
		default:
			s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		}
		return
	}

	switch rest[0] {
	case "accept":
		s.handleAccept(w, r, in, bountyID, fulfillmentID)
	case "reject":
		s.handleReject(w, r, in, bountyID, fulfillmentID)
	default:
		s.writeError(w, http.StatusNotFound, "not found")
	}
}

func (s *Server) handleInitializeBounty(w http.ResponseWriter, r *http.Request, in *bounty.Instance) {
	caller, err := s.callerAddress(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req InitializeBountyRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	issuer := caller
	if req.Issuer != "" {
		if !common.IsHexAddress(req.Issuer) {
			s.writeError(w, http.StatusBadRequest, "invalid issuer address")
			return
		}
		issuer = common.HexToAddress(req.Issuer)
	}
	var arbiter common.Address
	if req.Arbiter != "" {
		if !common.IsHexAddress(req.Arbiter) {
			s.writeError(w, http.StatusBadRequest, "invalid arbiter address")
			return
		}
		arbiter = common.HexToAddress(req.Arbiter)
	}

	id, err := in.InitializeBounty(caller, issuer, arbiter, req.Data, req.Deadline)
	if err != nil {
		s.writeError(w, statusForError(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusCreated, InitializeBountyResponse{BountyID: id})
}

func (s *Server) handleGetBounty(w http.ResponseWriter, r *http.Request, in *bounty.Instance, bountyID uint64) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	b, err := in.GetBounty(bountyID)
	if err != nil {
		s.writeError(w, statusForError(err), err.Error())
		return
	}

	expired, _ := in.IsExpired(bountyID)
	fulfillable, _ := in.CanFulfill(bountyID)
	s.writeJSON(w, http.StatusOK, map[string]any{
		"bounty":      b,
		"state":       b.State.String(),
		"expired":     expired,
		"fulfillable": fulfillable,
	})
}

func (s *Server) handleFund(w http.ResponseWriter, r *http.Request, in *bounty.Instance, bountyID uint64) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	caller, err := s.callerAddress(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req FundRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	amount, ok := new(big.Int).SetString(req.Amount, 10)
	if !ok {
		s.writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}

	if req.Token == "" {
		err = in.FundWithNative(caller, bountyID, amount)
	} else {
		if !common.IsHexAddress(req.Token) {
			s.writeError(w, http.StatusBadRequest, "invalid token address")
			return
		}
		err = in.FundWithToken(caller, bountyID, common.HexToAddress(req.Token), amount)
	}
	if err != nil {
		s.writeError(w, statusForError(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "funded"})
}

func (s *Server) handleFulfill(w http.ResponseWriter, r *http.Request, in *bounty.Instance, bountyID uint64) {
	caller, err := s.callerAddress(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req FulfillRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	id, err := in.FulfillBounty(caller, bountyID, req.Data)
	if err != nil {
		s.writeError(w, statusForError(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusCreated, FulfillResponse{FulfillmentID: id})
}

func (s *Server) handleGetFulfillment(w http.ResponseWriter, r *http.Request, in *bounty.Instance, bountyID, fulfillmentID uint64) {
	f, err := in.GetFulfillment(bountyID, fulfillmentID)
	if err != nil {
		s.writeError(w, statusForError(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"fulfillment": f,
		"state":       f.State.String(),
	})
}

func (s *Server) handleUpdateFulfillment(w http.ResponseWriter, r *http.Request, in *bounty.Instance, bountyID, fulfillmentID uint64) {
	caller, err := s.callerAddress(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req UpdateFulfillmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	if err := in.UpdateFulfillment(caller, bountyID, fulfillmentID, req.Data); err != nil {
		s.writeError(w, statusForError(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *Server) handleAccept(w http.ResponseWriter, r *http.Request, in *bounty.Instance, bountyID, fulfillmentID uint64) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	caller, err := s.callerAddress(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req AcceptRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	amount, ok := new(big.Int).SetString(req.Amount, 10)
	if !ok {
		s.writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}

	if err := in.AcceptFulfillment(caller, bountyID, fulfillmentID, amount); err != nil {
		s.writeError(w, statusForError(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
}

func (s *Server) handleReject(w http.ResponseWriter, r *http.Request, in *bounty.Instance, bountyID, fulfillmentID uint64) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	caller, err := s.callerAddress(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := in.RejectFulfillment(caller, bountyID, fulfillmentID); err != nil {
		s.writeError(w, statusForError(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "rejected"})
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request, in *bounty.Instance, bountyID uint64) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	caller, err := s.callerAddress(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if err := in.CancelBounty(caller, bountyID); err != nil {
		s.writeError(w, statusForError(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

func (s *Server) handleFunders(w http.ResponseWriter, r *http.Request, in *bounty.Instance, bountyID uint64) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	funders, err := in.GetBountyFunders(bountyID)
	if err != nil {
		s.writeError(w, statusForError(err), err.Error())
		return
	}
	out := make([]string, len(funders))
	for i, f := range funders {
		out[i] = f.Hex()
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"funders": out})
}

func (s *Server) handleContribution(w http.ResponseWriter, r *http.Request, in *bounty.Instance, bountyID uint64) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	funder := r.URL.Query().Get("funder")
	if !common.IsHexAddress(funder) {
		s.writeError(w, http.StatusBadRequest, "invalid funder address")
		return
	}
	c, err := in.GetContribution(bountyID, common.HexToAddress(funder))
	if err != nil {
		s.writeError(w, statusForError(err), err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{
		"funder":       common.HexToAddress(funder).Hex(),
		"contribution": c.String(),
	})
}

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request, in *bounty.Instance) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	events := in.Events()
	s.writeJSON(w, http.StatusOK, map[string]any{"events": events, "count": len(events)})
}

// handleBalance handles GET /v1/balance?address=0x..&token=0x..
func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	addr := r.URL.Query().Get("address")
	if !common.IsHexAddress(addr) {
		s.writeError(w, http.StatusBadRequest, "invalid address")
		return
	}
	token := types.NativeToken
	if t := r.URL.Query().Get("token"); t != "" {
		if !common.IsHexAddress(t) {
			s.writeError(w, http.StatusBadRequest, "invalid token address")
			return
		}
		token = common.HexToAddress(t)
	}

	bal := s.bank.BalanceOf(token, common.HexToAddress(addr))
	s.writeJSON(w, http.StatusOK, BalanceResponse{
		Address: common.HexToAddress(addr).Hex(),
		Token:   token.Hex(),
		Balance: bal.String(),
	})
}

// handleApprove handles POST /v1/approve, granting a spender allowance over
// the caller's token balance.
func (s *Server) handleApprove(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		s.writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	caller, err := s.callerAddress(r)
	if err != nil {
		s.writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	var req ApproveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if !common.IsHexAddress(req.Token) || !common.IsHexAddress(req.Spender) {
		s.writeError(w, http.StatusBadRequest, "invalid token or spender address")
		return
	}
	amount, ok := new(big.Int).SetString(req.Amount, 10)
	if !ok || amount.Sign() < 0 {
		s.writeError(w, http.StatusBadRequest, "invalid amount")
		return
	}

	s.bank.Approve(common.HexToAddress(req.Token), caller, common.HexToAddress(req.Spender), amount)
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "approved"})
}

// writeJSON writes a JSON response
func (s *Server) writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes an error response
func (s *Server) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}

// splitPath splits a URL path remainder into non-empty segments
func splitPath(p string) []string {
	raw := strings.Split(p, "/")
	out := raw[:0]
	for _, seg := range raw {
		if seg != "" {
			out = append(out, seg)
		}
	}
	return out
}

// statusForError maps domain errors to HTTP status codes
func statusForError(err error) int {
	switch {
	case errors.Is(err, bounty.ErrUnauthorized):
		return http.StatusForbidden
	case errors.Is(err, bounty.ErrInvalidBounty),
		errors.Is(err, bounty.ErrInvalidFulfillment),
		errors.Is(err, factory.ErrUnknownInstance):
		return http.StatusNotFound
	case errors.Is(err, bounty.ErrInvalidState),
		errors.Is(err, bounty.ErrAlreadyProcessed),
		errors.Is(err, bounty.ErrDeadlinePassed),
		errors.Is(err, bounty.ErrCancelBeforeDeadline),
		errors.Is(err, bounty.ErrReentrantCall),
		errors.Is(err, factory.ErrInstanceExists):
		return http.StatusConflict
	case errors.Is(err, bounty.ErrPaused):
		return http.StatusServiceUnavailable
	case errors.Is(err, bounty.ErrInsufficientBalance),
		errors.Is(err, assets.ErrInsufficientFunds),
		errors.Is(err, assets.ErrInsufficientAllowance):
		return http.StatusPaymentRequired
	default:
		return http.StatusBadRequest
	}
}
