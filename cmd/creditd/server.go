package main

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"log/slog"
	"math/big"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"creditline/core/events"
	"creditline/core/types"
	nativecommon "creditline/native/common"
	"creditline/native/credit"
	"creditline/observability/logging"
)

type server struct {
	engine *credit.Engine
	log    *slog.Logger
}

func newRouter(engine *credit.Engine, log *slog.Logger) http.Handler {
	s := &server{engine: engine, log: log}
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))

	r.Route("/v1/credits", func(r chi.Router) {
		r.Post("/", s.handleApprove)
		r.Route("/{hash}", func(r chi.Router) {
			r.Get("/due", s.handleDueInfo)
			r.Get("/next-refresh", s.handleNextRefresh)
			r.Post("/refresh", s.handleRefresh)
			r.Post("/drawdowns", s.handleDrawdown)
			r.Post("/payments", s.handlePayment)
			r.Post("/close", s.handleClose)
			r.Post("/default", s.handleDefault)
			r.Post("/extensions", s.handleExtend)
			r.Post("/yield", s.handleUpdateYield)
			r.Post("/limit", s.handleUpdateLimit)
			r.Post("/late-fee-waivers", s.handleWaiveLateFee)
		})
	})
	return r
}

// logEmitter forwards engine events into the structured log so operators can
// trail the billing lifecycle without a separate event bus. Attributes pass
// through the redaction allowlist so payer addresses never reach the log.
type logEmitter struct {
	log *slog.Logger
}

func newLogEmitter(log *slog.Logger) events.Emitter {
	return &logEmitter{log: log}
}

func (e *logEmitter) Emit(evt events.Event) {
	carrier, ok := evt.(interface{ Event() *types.Event })
	if !ok || carrier.Event() == nil {
		return
	}
	payload := carrier.Event()
	attrs := make([]any, 0, 1+len(payload.Attributes))
	attrs = append(attrs, slog.String("event", payload.Type))
	for k, v := range payload.Attributes {
		attrs = append(attrs, logging.MaskField(k, v))
	}
	e.log.Info("credit event", attrs...)
}

type approveRequest struct {
	Borrower            string `json:"borrower"`
	ReceivableID        uint64 `json:"receivableId"`
	CreditLimit         string `json:"creditLimit"`
	CommittedAmount     string `json:"committedAmount"`
	NumPeriods          uint32 `json:"numPeriods"`
	YieldBps            uint64 `json:"yieldBps"`
	Revolving           bool   `json:"revolving"`
	AdvanceRateBps      uint64 `json:"advanceRateBps"`
	DesignatedStartDate int64  `json:"designatedStartDate"`
}

type amountRequest struct {
	Payer         string `json:"payer"`
	Amount        string `json:"amount"`
	PrincipalOnly bool   `json:"principalOnly"`
}

type recordView struct {
	State             string `json:"state"`
	UnbilledPrincipal string `json:"unbilledPrincipal"`
	NextDueDate       int64  `json:"nextDueDate"`
	NextDue           string `json:"nextDue"`
	YieldDue          string `json:"yieldDue"`
	TotalPastDue      string `json:"totalPastDue"`
	MissedPeriods     uint32 `json:"missedPeriods"`
	RemainingPeriods  uint32 `json:"remainingPeriods"`
	LateFee           string `json:"lateFee"`
	YieldPastDue      string `json:"yieldPastDue"`
	PrincipalPastDue  string `json:"principalPastDue"`
}

func viewOf(cr *credit.CreditRecord, dd *credit.DueDetail) recordView {
	v := recordView{
		State:             cr.State.String(),
		UnbilledPrincipal: cr.UnbilledPrincipal.String(),
		NextDueDate:       cr.NextDueDate,
		NextDue:           cr.NextDue.String(),
		YieldDue:          cr.YieldDue.String(),
		TotalPastDue:      cr.TotalPastDue.String(),
		MissedPeriods:     cr.MissedPeriods,
		RemainingPeriods:  cr.RemainingPeriods,
	}
	if dd != nil {
		v.LateFee = dd.LateFee.String()
		v.YieldPastDue = dd.YieldPastDue.String()
		v.PrincipalPastDue = dd.PrincipalPastDue.String()
	}
	return v
}

func (s *server) handleApprove(w http.ResponseWriter, r *http.Request) {
	var req approveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	borrower, err := parseAddress(req.Borrower)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid borrower address")
		return
	}
	limit, ok := parseAmount(req.CreditLimit)
	if !ok {
		httpError(w, http.StatusBadRequest, "invalid credit limit")
		return
	}
	committed, ok := parseAmount(req.CommittedAmount)
	if !ok {
		httpError(w, http.StatusBadRequest, "invalid committed amount")
		return
	}
	hash, err := s.engine.Approve(borrower, req.ReceivableID, credit.ApprovalParams{
		CreditLimit:         limit,
		CommittedAmount:     committed,
		NumPeriods:          req.NumPeriods,
		YieldBps:            req.YieldBps,
		Revolving:           req.Revolving,
		AdvanceRateBps:      req.AdvanceRateBps,
		DesignatedStartDate: req.DesignatedStartDate,
	}, time.Now().Unix())
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"creditHash": hex.EncodeToString(hash[:])})
}

func (s *server) handleDueInfo(w http.ResponseWriter, r *http.Request) {
	hash, ok := s.parseHash(w, r)
	if !ok {
		return
	}
	cr, dd, err := s.engine.GetDueInfo(hash, time.Now().Unix())
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(cr, dd))
}

func (s *server) handleNextRefresh(w http.ResponseWriter, r *http.Request) {
	hash, ok := s.parseHash(w, r)
	if !ok {
		return
	}
	next, err := s.engine.GetNextBillRefreshDate(hash, time.Now().Unix())
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int64{"nextRefreshDate": next})
}

func (s *server) handleRefresh(w http.ResponseWriter, r *http.Request) {
	hash, ok := s.parseHash(w, r)
	if !ok {
		return
	}
	cr, dd, err := s.engine.RefreshBill(hash, time.Now().Unix())
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(cr, dd))
}

func (s *server) handleDrawdown(w http.ResponseWriter, r *http.Request) {
	hash, ok := s.parseHash(w, r)
	if !ok {
		return
	}
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	amount, okAmt := parseAmount(req.Amount)
	if !okAmt {
		httpError(w, http.StatusBadRequest, "invalid amount")
		return
	}
	cr, dd, err := s.engine.Drawdown(hash, amount, time.Now().Unix())
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(cr, dd))
}

func (s *server) handlePayment(w http.ResponseWriter, r *http.Request) {
	hash, ok := s.parseHash(w, r)
	if !ok {
		return
	}
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	payer, err := parseAddress(req.Payer)
	if err != nil {
		httpError(w, http.StatusBadRequest, "invalid payer address")
		return
	}
	amount, okAmt := parseAmount(req.Amount)
	if !okAmt {
		httpError(w, http.StatusBadRequest, "invalid amount")
		return
	}
	now := time.Now().Unix()
	if req.PrincipalOnly {
		applied, duePaid, unbilledPaid, cr, dd, err := s.engine.ApplyPrincipalPayment(hash, payer, amount, now)
		if err != nil {
			s.writeEngineError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{
			"applied":               applied.String(),
			"principalDuePaid":      duePaid.String(),
			"unbilledPrincipalPaid": unbilledPaid.String(),
			"record":                viewOf(cr, dd),
		})
		return
	}
	applied, breakdown, cr, dd, err := s.engine.ApplyPayment(hash, payer, amount, now)
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"applied": applied.String(),
		"breakdown": map[string]string{
			"yieldPastDuePaid":      breakdown.YieldPastDuePaid.String(),
			"lateFeePaid":           breakdown.LateFeePaid.String(),
			"principalPastDuePaid":  breakdown.PrincipalPastDuePaid.String(),
			"yieldDuePaid":          breakdown.YieldDuePaid.String(),
			"principalDuePaid":      breakdown.PrincipalDuePaid.String(),
			"unbilledPrincipalPaid": breakdown.UnbilledPrincipalPaid.String(),
		},
		"record": viewOf(cr, dd),
	})
}

func (s *server) handleClose(w http.ResponseWriter, r *http.Request) {
	hash, ok := s.parseHash(w, r)
	if !ok {
		return
	}
	if err := s.engine.Close(hash, time.Now().Unix()); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "closed"})
}

func (s *server) handleDefault(w http.ResponseWriter, r *http.Request) {
	hash, ok := s.parseHash(w, r)
	if !ok {
		return
	}
	principalLoss, yieldLoss, feeLoss, err := s.engine.TriggerDefault(hash, time.Now().Unix())
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"principalLoss": principalLoss.String(),
		"yieldLoss":     yieldLoss.String(),
		"feeLoss":       feeLoss.String(),
	})
}

func (s *server) handleExtend(w http.ResponseWriter, r *http.Request) {
	hash, ok := s.parseHash(w, r)
	if !ok {
		return
	}
	var req struct {
		Periods uint32 `json:"periods"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.engine.ExtendRemainingPeriods(hash, req.Periods, time.Now().Unix()); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "extended"})
}

func (s *server) handleUpdateYield(w http.ResponseWriter, r *http.Request) {
	hash, ok := s.parseHash(w, r)
	if !ok {
		return
	}
	var req struct {
		YieldBps uint64 `json:"yieldBps"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.engine.UpdateYield(hash, req.YieldBps, time.Now().Unix()); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *server) handleUpdateLimit(w http.ResponseWriter, r *http.Request) {
	hash, ok := s.parseHash(w, r)
	if !ok {
		return
	}
	var req struct {
		CreditLimit     string `json:"creditLimit"`
		CommittedAmount string `json:"committedAmount"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	limit, okLimit := parseAmount(req.CreditLimit)
	committed, okCommitted := parseAmount(req.CommittedAmount)
	if !okLimit || !okCommitted {
		httpError(w, http.StatusBadRequest, "invalid amount")
		return
	}
	if err := s.engine.UpdateLimitAndCommitment(hash, limit, committed, time.Now().Unix()); err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "updated"})
}

func (s *server) handleWaiveLateFee(w http.ResponseWriter, r *http.Request) {
	hash, ok := s.parseHash(w, r)
	if !ok {
		return
	}
	var req amountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		httpError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	amount, okAmt := parseAmount(req.Amount)
	if !okAmt {
		httpError(w, http.StatusBadRequest, "invalid amount")
		return
	}
	waived, err := s.engine.WaiveLateFee(hash, amount, time.Now().Unix())
	if err != nil {
		s.writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"waived": waived.String()})
}

func (s *server) parseHash(w http.ResponseWriter, r *http.Request) ([32]byte, bool) {
	var hash [32]byte
	raw, err := hex.DecodeString(chi.URLParam(r, "hash"))
	if err != nil || len(raw) != 32 {
		httpError(w, http.StatusBadRequest, "invalid credit hash")
		return hash, false
	}
	copy(hash[:], raw)
	return hash, true
}

func (s *server) writeEngineError(w http.ResponseWriter, err error) {
	status := http.StatusConflict
	switch {
	case errors.Is(err, credit.ErrCreditNotFound):
		status = http.StatusNotFound
	case errors.Is(err, credit.ErrInvalidAmount),
		errors.Is(err, credit.ErrZeroBorrower),
		errors.Is(err, credit.ErrInvalidCreditLimit),
		errors.Is(err, credit.ErrInvalidNumPeriods),
		errors.Is(err, credit.ErrCommittedExceedsLimit),
		errors.Is(err, credit.ErrCreditLimitTooHigh),
		errors.Is(err, credit.ErrStartDateInPast),
		errors.Is(err, credit.ErrStartDateRequiresTerm),
		errors.Is(err, credit.ErrCommitmentNeedsStart),
		errors.Is(err, credit.ErrInvalidPeriodDuration),
		errors.Is(err, credit.ErrInvalidExtensionPeriods):
		status = http.StatusBadRequest
	case errors.Is(err, nativecommon.ErrModulePaused):
		status = http.StatusServiceUnavailable
	case errors.Is(err, credit.ErrNilState), errors.Is(err, credit.ErrSettingsNotConfigured):
		status = http.StatusInternalServerError
	}
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed", "error", err)
	}
	httpError(w, status, err.Error())
}

func parseAddress(raw string) ([20]byte, error) {
	var addr [20]byte
	if len(raw) >= 2 && raw[:2] == "0x" {
		raw = raw[2:]
	}
	decoded, err := hex.DecodeString(raw)
	if err != nil {
		return addr, err
	}
	if len(decoded) != 20 {
		return addr, errors.New("address must be 20 bytes")
	}
	copy(addr[:], decoded)
	return addr, nil
}

// parseAmount accepts decimal strings; the empty string reads as zero so
// optional fields can be omitted.
func parseAmount(raw string) (*big.Int, bool) {
	if raw == "" {
		return big.NewInt(0), true
	}
	amount, ok := new(big.Int).SetString(raw, 10)
	if !ok || amount.Sign() < 0 {
		return nil, false
	}
	return amount, true
}

func httpError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}
