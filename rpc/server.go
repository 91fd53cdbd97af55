package rpc

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"bountyvault/native/escrow"
	"bountyvault/native/program"
)

// Server exposes the settlement state over a read-only HTTP surface. All
// mutations enter through host invocations; the HTTP routes only query.
type Server struct {
	escrow  *escrow.Engine
	program *program.Engine
}

// NewServer creates an HTTP query server over the two engines. Either engine
// may be nil, in which case its routes respond 404.
func NewServer(escrowEngine *escrow.Engine, programEngine *program.Engine) *Server {
	return &Server{escrow: escrowEngine, program: programEngine}
}

// Router builds the route tree served by the query server.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Route("/v1", func(sr chi.Router) {
		sr.Get("/escrow/vault", s.getEscrowVault)
		sr.Get("/escrow/bounties/{bountyID}", s.getEscrow)
		sr.Get("/escrow/bounties/{bountyID}/refunds", s.getRefunds)
		sr.Get("/escrow/bounties/{bountyID}/eligibility", s.getEligibility)
		sr.Get("/program", s.getProgram)
		sr.Get("/program/payouts", s.getPayouts)
		sr.Get("/program/vault", s.getProgramVault)
	})
	return r
}

type escrowResult struct {
	BountyID        uint64         `json:"bountyId"`
	Depositor       string         `json:"depositor"`
	Amount          string         `json:"amount"`
	RemainingAmount string         `json:"remainingAmount"`
	Status          string         `json:"status"`
	Deadline        uint64         `json:"deadline"`
	CreatedAt       uint64         `json:"createdAt"`
	Refunds         []refundResult `json:"refunds"`
}

type refundResult struct {
	Amount    string `json:"amount"`
	Mode      string `json:"mode"`
	Recipient string `json:"recipient"`
	Timestamp uint64 `json:"timestamp"`
}

type eligibilityResult struct {
	CanRefund      bool   `json:"canRefund"`
	DeadlinePassed bool   `json:"deadlinePassed"`
	Remaining      string `json:"remaining"`
	HasApproval    bool   `json:"hasApproval"`
}

type balanceResult struct {
	Vault   string `json:"vault"`
	Balance string `json:"balance"`
}

type programResult struct {
	ProgramID        string         `json:"programId"`
	AuthorizedKey    string         `json:"authorizedKey"`
	Token            string         `json:"token"`
	TotalFunds       string         `json:"totalFunds"`
	RemainingBalance string         `json:"remainingBalance"`
	Payouts          []payoutResult `json:"payouts"`
}

type payoutResult struct {
	Recipient string `json:"recipient"`
	Amount    string `json:"amount"`
	Timestamp uint64 `json:"timestamp"`
}

func newEscrowResult(e *escrow.Escrow) escrowResult {
	res := escrowResult{
		BountyID:        e.BountyID,
		Depositor:       hex.EncodeToString(e.Depositor[:]),
		Amount:          e.Amount.String(),
		RemainingAmount: e.RemainingAmount.String(),
		Status:          e.Status.String(),
		Deadline:        e.Deadline,
		CreatedAt:       e.CreatedAt,
		Refunds:         newRefundResults(e.RefundHistory),
	}
	return res
}

func newRefundResults(history []escrow.RefundRecord) []refundResult {
	refunds := make([]refundResult, 0, len(history))
	for _, rec := range history {
		refunds = append(refunds, refundResult{
			Amount:    rec.Amount.String(),
			Mode:      rec.Mode.String(),
			Recipient: hex.EncodeToString(rec.Recipient[:]),
			Timestamp: rec.Timestamp,
		})
	}
	return refunds
}

func (s *Server) getEscrow(w http.ResponseWriter, r *http.Request) {
	if s.escrow == nil {
		writeError(w, http.StatusNotFound, errors.New("escrow engine not configured"))
		return
	}
	id, ok := bountyID(w, r)
	if !ok {
		return
	}
	esc, err := s.escrow.EscrowInfo(id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newEscrowResult(esc))
}

func (s *Server) getRefunds(w http.ResponseWriter, r *http.Request) {
	if s.escrow == nil {
		writeError(w, http.StatusNotFound, errors.New("escrow engine not configured"))
		return
	}
	id, ok := bountyID(w, r)
	if !ok {
		return
	}
	history, err := s.escrow.RefundHistory(id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, newRefundResults(history))
}

func (s *Server) getEligibility(w http.ResponseWriter, r *http.Request) {
	if s.escrow == nil {
		writeError(w, http.StatusNotFound, errors.New("escrow engine not configured"))
		return
	}
	id, ok := bountyID(w, r)
	if !ok {
		return
	}
	elig, err := s.escrow.RefundEligibilityOf(id)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, eligibilityResult{
		CanRefund:      elig.CanRefund,
		DeadlinePassed: elig.DeadlinePassed,
		Remaining:      elig.Remaining.String(),
		HasApproval:    elig.Approval != nil,
	})
}

func (s *Server) getEscrowVault(w http.ResponseWriter, r *http.Request) {
	if s.escrow == nil {
		writeError(w, http.StatusNotFound, errors.New("escrow engine not configured"))
		return
	}
	bal, err := s.escrow.Balance()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	vault := escrow.VaultAddress()
	writeJSON(w, http.StatusOK, balanceResult{
		Vault:   hex.EncodeToString(vault[:]),
		Balance: bal.String(),
	})
}

func (s *Server) getProgram(w http.ResponseWriter, r *http.Request) {
	if s.program == nil {
		writeError(w, http.StatusNotFound, errors.New("program engine not configured"))
		return
	}
	p, err := s.program.ProgramInfo()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	payouts := make([]payoutResult, 0, len(p.PayoutHistory))
	for _, payout := range p.PayoutHistory {
		payouts = append(payouts, payoutResult{
			Recipient: hex.EncodeToString(payout.Recipient[:]),
			Amount:    payout.Amount.String(),
			Timestamp: payout.Timestamp,
		})
	}
	writeJSON(w, http.StatusOK, programResult{
		ProgramID:        p.ProgramID,
		AuthorizedKey:    hex.EncodeToString(p.AuthorizedKey[:]),
		Token:            hex.EncodeToString(p.Token[:]),
		TotalFunds:       p.TotalFunds.String(),
		RemainingBalance: p.RemainingBalance.String(),
		Payouts:          payouts,
	})
}

func (s *Server) getPayouts(w http.ResponseWriter, r *http.Request) {
	if s.program == nil {
		writeError(w, http.StatusNotFound, errors.New("program engine not configured"))
		return
	}
	history, err := s.program.PayoutHistory()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	payouts := make([]payoutResult, 0, len(history))
	for _, payout := range history {
		payouts = append(payouts, payoutResult{
			Recipient: hex.EncodeToString(payout.Recipient[:]),
			Amount:    payout.Amount.String(),
			Timestamp: payout.Timestamp,
		})
	}
	writeJSON(w, http.StatusOK, payouts)
}

func (s *Server) getProgramVault(w http.ResponseWriter, r *http.Request) {
	if s.program == nil {
		writeError(w, http.StatusNotFound, errors.New("program engine not configured"))
		return
	}
	bal, err := s.program.Balance()
	if err != nil {
		writeEngineError(w, err)
		return
	}
	vault := program.VaultAddress()
	writeJSON(w, http.StatusOK, balanceResult{
		Vault:   hex.EncodeToString(vault[:]),
		Balance: bal.String(),
	})
}

func bountyID(w http.ResponseWriter, r *http.Request) (uint64, bool) {
	raw := chi.URLParam(r, "bountyID")
	id, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("bountyID must be a decimal integer"))
		return 0, false
	}
	return id, true
}

func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, escrow.ErrBountyNotFound):
		writeError(w, http.StatusNotFound, err)
	case errors.Is(err, escrow.ErrNotInitialized), errors.Is(err, program.ErrNotInitialized):
		writeError(w, http.StatusServiceUnavailable, err)
	default:
		writeError(w, http.StatusInternalServerError, err)
	}
}

func writeJSON(w http.ResponseWriter, status int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
