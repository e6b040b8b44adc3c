package http

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"

	assignmentapp "coaching-fees/internal/assignment/application"
	"coaching-fees/internal/audit"
	"coaching-fees/internal/auth"
	catalogapp "coaching-fees/internal/catalog/application"
	fees "coaching-fees/internal/fees/domain"
	ledgerapp "coaching-fees/internal/ledger/application"
	paymentsapp "coaching-fees/internal/payments/application"
	"coaching-fees/internal/reminders"
	settlementapp "coaching-fees/internal/settlement/application"
)

const prefix = "/api/v1/coachings/"

// Services bundles the application services behind the fee API.
type Services struct {
	Catalog     *catalogapp.Service
	Assignments *assignmentapp.Service
	Settlement  *settlementapp.Service
	Ledger      *ledgerapp.Service
	Payments    *paymentsapp.Service
	// Reminders is optional; without it the reminders route answers 503.
	Reminders *reminders.Service
	AuditLog  audit.Reader
}

// Handler serves /api/v1/coachings/{coachingId}/... fee endpoints.
type Handler struct {
	svc    Services
	differ audit.Differ
	clock  fees.Clock
	logger *zap.Logger
}

// Option configures a Handler.
type Option func(*Handler)

// WithClock overrides the clock used for derived record status.
func WithClock(clock fees.Clock) Option {
	return func(h *Handler) {
		if clock != nil {
			h.clock = clock
		}
	}
}

// WithCurrency sets the symbol used in rendered audit diffs and exports.
func WithCurrency(symbol string) Option {
	return func(h *Handler) { h.differ = audit.NewDiffer(symbol) }
}

// WithLogger sets the handler logger.
func WithLogger(logger *zap.Logger) Option {
	return func(h *Handler) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// NewHandler constructs a handler.
func NewHandler(svc Services, opts ...Option) (*Handler, error) {
	switch {
	case svc.Catalog == nil:
		return nil, errors.New("fees handler: nil catalog service")
	case svc.Assignments == nil:
		return nil, errors.New("fees handler: nil assignment service")
	case svc.Settlement == nil:
		return nil, errors.New("fees handler: nil settlement service")
	case svc.Ledger == nil:
		return nil, errors.New("fees handler: nil ledger service")
	case svc.Payments == nil:
		return nil, errors.New("fees handler: nil payments service")
	case svc.AuditLog == nil:
		return nil, errors.New("fees handler: nil audit reader")
	}
	h := &Handler{svc: svc, differ: audit.NewDiffer(""), clock: fees.SystemClock{}, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// ServeHTTP routes by path segment after the coaching id.
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if !strings.HasPrefix(r.URL.Path, prefix) {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, prefix), "/"), "/")
	if len(parts) < 2 || parts[0] == "" {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	coachingID := parts[0]
	if err := auth.EnsureCoaching(r.Context(), coachingID); err != nil {
		h.respondError(w, r, err)
		return
	}
	r = r.WithContext(audit.WithRequest(r.Context(), r))

	rest := parts[2:]
	switch parts[1] {
	case "fee-structures":
		h.routeStructures(w, r, coachingID, rest)
	case "assignments":
		h.routeAssignments(w, r, coachingID, rest)
	case "members":
		h.routeMembers(w, r, coachingID, rest)
	case "records":
		h.routeRecords(w, r, coachingID, rest)
	case "payments":
		if len(rest) == 2 && rest[1] == "refunds" && r.Method == http.MethodPost {
			h.handleRefund(w, r, coachingID, rest[0])
			return
		}
		w.WriteHeader(http.StatusNotFound)
	case "audit-logs", "audit-logs.csv":
		if len(rest) != 0 {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		if !allow(w, r, http.MethodGet) {
			return
		}
		if parts[1] == "audit-logs.csv" {
			h.handleAuditCSV(w, r, coachingID)
			return
		}
		h.handleAuditLogs(w, r, coachingID)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func allow(w http.ResponseWriter, r *http.Request, method string) bool {
	if r.Method != method {
		w.WriteHeader(http.StatusMethodNotAllowed)
		return false
	}
	return true
}

func (h *Handler) routeStructures(w http.ResponseWriter, r *http.Request, coachingID string, rest []string) {
	switch len(rest) {
	case 0:
		switch r.Method {
		case http.MethodGet:
			includeInactive, _ := strconv.ParseBool(r.URL.Query().Get("includeInactive"))
			list, err := h.svc.Catalog.List(r.Context(), coachingID, includeInactive)
			if err != nil {
				h.respondError(w, r, err)
				return
			}
			out := make([]structureResponse, 0, len(list))
			for _, s := range list {
				out = append(out, toStructure(s))
			}
			writeJSON(w, http.StatusOK, out)
		case http.MethodPost:
			var req structureRequest
			if err := decodeBody(r, &req); err != nil {
				h.respondError(w, r, err)
				return
			}
			created, err := h.svc.Catalog.Create(r.Context(), coachingID, req.input())
			if err != nil {
				h.respondError(w, r, err)
				return
			}
			writeJSON(w, http.StatusCreated, toStructure(created))
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	case 1:
		id := rest[0]
		switch r.Method {
		case http.MethodGet:
			s, err := h.svc.Catalog.Get(r.Context(), coachingID, id)
			if err != nil {
				h.respondError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, toStructure(s))
		case http.MethodPut:
			var req structureRequest
			if err := decodeBody(r, &req); err != nil {
				h.respondError(w, r, err)
				return
			}
			updated, err := h.svc.Catalog.Update(r.Context(), coachingID, id, req.input())
			if err != nil {
				h.respondError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, toStructure(updated))
		case http.MethodDelete:
			deactivated, err := h.svc.Catalog.Delete(r.Context(), coachingID, id)
			if err != nil {
				h.respondError(w, r, err)
				return
			}
			writeJSON(w, http.StatusOK, map[string]bool{"deleted": !deactivated, "deactivated": deactivated})
		default:
			w.WriteHeader(http.StatusMethodNotAllowed)
		}
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) routeAssignments(w http.ResponseWriter, r *http.Request, coachingID string, rest []string) {
	switch {
	case len(rest) == 0:
		if allow(w, r, http.MethodPost) {
			h.handleAssign(w, r, coachingID)
		}
	case len(rest) == 1 && rest[0] == "bulk":
		if allow(w, r, http.MethodPost) {
			h.handleBulkAssign(w, r, coachingID)
		}
	case len(rest) == 1:
		if allow(w, r, http.MethodPatch) {
			h.handleUpdateAssignment(w, r, coachingID, rest[0])
		}
	case len(rest) == 2 && rest[1] == "status":
		if allow(w, r, http.MethodPost) {
			h.handleAssignmentStatus(w, r, coachingID, rest[0])
		}
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handleAssign(w http.ResponseWriter, r *http.Request, coachingID string) {
	var req assignRequest
	if err := decodeBody(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	result, err := h.svc.Assignments.AssignFee(r.Context(), assignmentapp.AssignRequest{
		CoachingID:  coachingID,
		MemberID:    req.MemberID,
		StructureID: req.FeeStructureID,
		Overrides:   req.overrides(h.clock.Now()),
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	now := h.clock.Now()
	out := assignResponse{
		Assignment:  toAssignment(result.Assignment),
		Records:     toRecords(result.Records, now),
		WaivedTotal: result.WaivedTotal,
		Skipped:     result.Skipped,
	}
	if result.Superseded != nil {
		out.SupersededID = result.Superseded.ID
	}
	status := http.StatusCreated
	if result.Skipped {
		status = http.StatusOK
	}
	writeJSON(w, status, out)
}

func (h *Handler) handleBulkAssign(w http.ResponseWriter, r *http.Request, coachingID string) {
	var req bulkRequest
	if err := decodeBody(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	now := h.clock.Now()
	var perMember map[string]fees.PricingOverrides
	if len(req.MemberOverrides) > 0 {
		perMember = make(map[string]fees.PricingOverrides, len(req.MemberOverrides))
		for id, o := range req.MemberOverrides {
			perMember[id] = o.overrides(now)
		}
	}
	result, err := h.svc.Assignments.BulkAssign(r.Context(), assignmentapp.BulkRequest{
		CoachingID:      coachingID,
		StructureID:     req.FeeStructureID,
		MemberIDs:       req.MemberIDs,
		Overrides:       req.Overrides.overrides(now),
		MemberOverrides: perMember,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *Handler) handleUpdateAssignment(w http.ResponseWriter, r *http.Request, coachingID, assignmentID string) {
	var req assignmentPatchRequest
	if err := decodeBody(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	updated, err := h.svc.Assignments.UpdateAssignment(r.Context(), coachingID, assignmentID, req.patch())
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAssignment(updated))
}

func (h *Handler) handleAssignmentStatus(w http.ResponseWriter, r *http.Request, coachingID, assignmentID string) {
	var req statusRequest
	if err := decodeBody(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	updated, err := h.svc.Assignments.SetStatus(r.Context(), coachingID, assignmentID, req.Status)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toAssignment(updated))
}

func (h *Handler) routeMembers(w http.ResponseWriter, r *http.Request, coachingID string, rest []string) {
	if len(rest) < 2 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if !allow(w, r, http.MethodGet) {
		return
	}
	memberID := rest[0]
	switch strings.Join(rest[1:], "/") {
	case "assignment-preview":
		query := r.URL.Query()
		preview, err := h.svc.Settlement.Preview(r.Context(), settlementapp.Request{
			CoachingID:  coachingID,
			MemberID:    memberID,
			Concern:     query.Get("concern"),
			StructureID: query.Get("structureId"),
		})
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, preview)
	case "ledger":
		ledger, err := h.svc.Ledger.StudentLedger(r.Context(), coachingID, memberID)
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, ledger)
	case "ledger/export.pdf":
		h.handleLedgerExport(w, r, coachingID, memberID, formatPDF)
	case "ledger/export.xlsx":
		h.handleLedgerExport(w, r, coachingID, memberID, formatXLSX)
	case "profile":
		profile, err := h.svc.Ledger.MemberFeeProfile(r.Context(), coachingID, memberID)
		if err != nil {
			h.respondError(w, r, err)
			return
		}
		writeJSON(w, http.StatusOK, toProfile(profile, h.clock.Now()))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) routeRecords(w http.ResponseWriter, r *http.Request, coachingID string, rest []string) {
	if len(rest) != 2 {
		w.WriteHeader(http.StatusNotFound)
		return
	}
	if !allow(w, r, http.MethodPost) {
		return
	}
	recordID := rest[0]
	switch rest[1] {
	case "payments":
		h.handlePayment(w, r, coachingID, recordID)
	case "waive":
		h.handleWaive(w, r, coachingID, recordID)
	case "reminders":
		h.handleReminder(w, r, coachingID, recordID)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func (h *Handler) handlePayment(w http.ResponseWriter, r *http.Request, coachingID, recordID string) {
	var req paymentRequest
	if err := decodeBody(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	in := paymentsapp.PaymentRequest{
		CoachingID:     coachingID,
		RecordID:       recordID,
		Amount:         req.Amount,
		Mode:           req.Mode,
		TransactionRef: req.TransactionRef,
	}
	if req.PaidAt != nil {
		in.PaidAt = req.PaidAt.UTC()
	}
	payment, record, err := h.svc.Payments.RecordPayment(r.Context(), in)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, paymentResponse{
		ID:             payment.ID,
		RecordID:       payment.RecordID,
		Amount:         payment.Amount,
		Mode:           payment.Mode,
		TransactionRef: payment.TransactionRef,
		ReceiptNo:      payment.ReceiptNo,
		PaidAt:         payment.PaidAt,
		Record:         toRecord(record, h.clock.Now()),
	})
}

func (h *Handler) handleRefund(w http.ResponseWriter, r *http.Request, coachingID, paymentID string) {
	var req refundRequest
	if err := decodeBody(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	refund, record, err := h.svc.Payments.RecordRefund(r.Context(), paymentsapp.RefundRequest{
		CoachingID: coachingID,
		PaymentID:  paymentID,
		Amount:     req.Amount,
		Mode:       req.Mode,
		Reason:     req.Reason,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, refundResponse{
		ID:         refund.ID,
		PaymentID:  refund.PaymentID,
		Amount:     refund.Amount,
		Mode:       refund.Mode,
		Reason:     refund.Reason,
		RefundedAt: refund.RefundedAt,
		Record:     toRecord(record, h.clock.Now()),
	})
}

func (h *Handler) handleWaive(w http.ResponseWriter, r *http.Request, coachingID, recordID string) {
	var req waiveRequest
	if err := decodeBody(r, &req); err != nil {
		h.respondError(w, r, err)
		return
	}
	waiver, record, err := h.svc.Payments.WaiveRecord(r.Context(), coachingID, recordID, req.Reason)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, waiverResponse{
		ID:           waiver.ID,
		RecordID:     waiver.RecordID,
		WaivedAmount: waiver.WaivedAmount,
		Reason:       waiver.Reason,
		Record:       toRecord(record, h.clock.Now()),
	})
}

func (h *Handler) handleReminder(w http.ResponseWriter, r *http.Request, coachingID, recordID string) {
	if h.svc.Reminders == nil {
		http.Error(w, "reminders not configured", http.StatusServiceUnavailable)
		return
	}
	event, err := h.svc.Reminders.SendReminder(r.Context(), coachingID, recordID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, reminderResponse{
		RecordID:    event.RecordID,
		MemberID:    event.MemberID,
		Balance:     event.Balance,
		DaysOverdue: event.DaysOverdue,
		Queued:      true,
	})
}

type auditPage struct {
	Items []audit.Rendered `json:"items"`
	Total int              `json:"total"`
	Page  int              `json:"page"`
	Limit int              `json:"limit"`
}

func (h *Handler) auditQuery(r *http.Request, coachingID string) (audit.Query, error) {
	query := r.URL.Query()
	q := audit.Query{
		CoachingID: coachingID,
		EntityType: query.Get("entityType"),
		Event:      audit.Event(query.Get("event")),
		EntityID:   query.Get("entityId"),
		ActorID:    query.Get("actorId"),
		MemberID:   query.Get("memberId"),
	}
	var err error
	if q.From, err = parseTimeQuery(r, "from"); err != nil {
		return q, err
	}
	if q.To, err = parseTimeQuery(r, "to"); err != nil {
		return q, err
	}
	if q.Page, err = intQuery(r, "page"); err != nil {
		return q, err
	}
	if q.Limit, err = intQuery(r, "limit"); err != nil {
		return q, err
	}
	return q.Normalize()
}

func (h *Handler) handleAuditLogs(w http.ResponseWriter, r *http.Request, coachingID string) {
	q, err := h.auditQuery(r, coachingID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	entries, total, err := h.svc.AuditLog.List(r.Context(), q)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	items := make([]audit.Rendered, 0, len(entries))
	for _, e := range entries {
		items = append(items, h.differ.Render(e))
	}
	writeJSON(w, http.StatusOK, auditPage{Items: items, Total: total, Page: q.Page, Limit: q.Limit})
}

func intQuery(r *http.Request, key string) (int, error) {
	value := r.URL.Query().Get(key)
	if value == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(value)
	if err != nil {
		return 0, fees.Invalid(key, "must be an integer")
	}
	return n, nil
}

func dayStamp(t time.Time) string {
	return t.UTC().Format("20060102")
}
