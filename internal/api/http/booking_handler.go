package http

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/shopspring/decimal"

	"equiprent-backend/internal/domain"
	"equiprent-backend/internal/security"
	"equiprent-backend/internal/service"
	"equiprent-backend/internal/utils"
)

// BookingHandler exposes the booking service to the CRUD layer over JSON.
type BookingHandler struct {
	svc service.BookingService
}

func NewBookingHandler(svc service.BookingService) *BookingHandler {
	return &BookingHandler{svc: svc}
}

// RegisterRoutes mounts the engine API under /api/v1 behind token auth.
func RegisterRoutes(router *mux.Router, svc service.BookingService, tm security.TokenManager) {
	h := NewBookingHandler(svc)
	api := router.PathPrefix("/api/v1").Subrouter()
	api.Use(AuthMiddleware(tm))

	api.HandleFunc("/availability", h.CheckAvailability).Methods(http.MethodGet)
	api.HandleFunc("/quotes", h.Quote).Methods(http.MethodPost)
	api.HandleFunc("/commitments", h.Commit).Methods(http.MethodPost)
	api.HandleFunc("/commitments/{id}", h.Release).Methods(http.MethodDelete)
	api.HandleFunc("/commitments/{id}/extend", h.Extend).Methods(http.MethodPost)
	api.HandleFunc("/commitments/{id}/reschedule", h.Reschedule).Methods(http.MethodPost)
	api.HandleFunc("/bookings/{id}/status", h.SyncBookingStatus).Methods(http.MethodPut)
	api.HandleFunc("/items/{id}/utilization", h.Utilization).Methods(http.MethodGet)
}

// HealthHandler answers liveness probes.
func HealthHandler(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

type bookableRequest struct {
	Kind domain.BookableKind `json:"kind"`
	ID   int64               `json:"id"`
}

func (b bookableRequest) ref() domain.BookableRef {
	return domain.BookableRef{Kind: b.Kind, ID: b.ID}
}

type quoteRequest struct {
	Bookable            bookableRequest `json:"bookable"`
	Start               string          `json:"start"`
	End                 string          `json:"end"`
	Quantity            int             `json:"quantity"`
	LineDiscountPercent decimal.Decimal `json:"line_discount_percent"`
}

type commitRequest struct {
	quoteRequest
	BookingID      int64                `json:"booking_id"`
	BookingStatus  domain.BookingStatus `json:"booking_status"`
	IdempotencyKey string               `json:"idempotency_key"`
}

type commitResponse struct {
	CommitmentID domain.CommitmentID `json:"commitment_id"`
	State        domain.LineState    `json:"state"`
	Quote        *domain.PriceQuote  `json:"quote,omitempty"`
}

type extendRequest struct {
	NewEnd string `json:"new_end"`
}

type rescheduleRequest struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

type statusRequest struct {
	Status domain.BookingStatus `json:"status"`
}

func parseRange(start, end string) (domain.DateRange, error) {
	s, err := utils.ParseDate(start)
	if err != nil {
		return domain.DateRange{}, fmt.Errorf("start: %v", err)
	}
	e, err := utils.ParseDate(end)
	if err != nil {
		return domain.DateRange{}, fmt.Errorf("end: %v", err)
	}
	return domain.DateRange{Start: s, End: e}, nil
}

func decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func companyOf(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, ok := CompanyIDFromContext(r.Context())
	if !ok {
		writeJSON(w, http.StatusUnauthorized, errorBody{Error: "no tenant on request"})
	}
	return id, ok
}

func commitmentIDOf(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		badRequest(w, "invalid commitment id")
		return uuid.Nil, false
	}
	return id, true
}

func int64Var(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(mux.Vars(r)[name], 10, 64)
	if err != nil {
		badRequest(w, "invalid "+name)
		return 0, false
	}
	return id, true
}

func (h *BookingHandler) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	company, ok := companyOf(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	id, err := strconv.ParseInt(q.Get("id"), 10, 64)
	if err != nil {
		badRequest(w, "invalid id")
		return
	}
	qty, err := strconv.Atoi(q.Get("quantity"))
	if err != nil {
		badRequest(w, "invalid quantity")
		return
	}
	rng, err := parseRange(q.Get("start"), q.Get("end"))
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	ref := domain.BookableRef{Kind: domain.BookableKind(q.Get("kind")), ID: id}
	avail, err := h.svc.CheckAvailability(r.Context(), company, ref, rng, qty)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, avail)
}

func (h *BookingHandler) Quote(w http.ResponseWriter, r *http.Request) {
	company, ok := companyOf(w, r)
	if !ok {
		return
	}
	var req quoteRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	rng, err := parseRange(req.Start, req.End)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	quote, err := h.svc.Quote(r.Context(), company, req.Bookable.ref(), rng, req.Quantity, req.LineDiscountPercent)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

func (h *BookingHandler) Commit(w http.ResponseWriter, r *http.Request) {
	company, ok := companyOf(w, r)
	if !ok {
		return
	}
	var req commitRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	rng, err := parseRange(req.Start, req.End)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	line := &domain.LineItem{
		BookingID:           req.BookingID,
		BookingStatus:       req.BookingStatus,
		Bookable:            req.Bookable.ref(),
		Range:               rng,
		Quantity:            req.Quantity,
		LineDiscountPercent: req.LineDiscountPercent,
		IdempotencyKey:      req.IdempotencyKey,
		State:               domain.LineStateProposed,
	}
	id, err := h.svc.Commit(r.Context(), company, line)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, commitResponse{CommitmentID: id, State: line.State, Quote: line.Quote})
}

func (h *BookingHandler) Release(w http.ResponseWriter, r *http.Request) {
	company, ok := companyOf(w, r)
	if !ok {
		return
	}
	id, ok := commitmentIDOf(w, r)
	if !ok {
		return
	}
	if err := h.svc.Release(r.Context(), company, id); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *BookingHandler) Extend(w http.ResponseWriter, r *http.Request) {
	company, ok := companyOf(w, r)
	if !ok {
		return
	}
	id, ok := commitmentIDOf(w, r)
	if !ok {
		return
	}
	var req extendRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	newEnd, err := utils.ParseDate(req.NewEnd)
	if err != nil {
		badRequest(w, "new_end: "+err.Error())
		return
	}

	quote, err := h.svc.Extend(r.Context(), company, id, newEnd)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

func (h *BookingHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	company, ok := companyOf(w, r)
	if !ok {
		return
	}
	id, ok := commitmentIDOf(w, r)
	if !ok {
		return
	}
	var req rescheduleRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}
	rng, err := parseRange(req.Start, req.End)
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	quote, err := h.svc.Reschedule(r.Context(), company, id, rng)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, quote)
}

func (h *BookingHandler) SyncBookingStatus(w http.ResponseWriter, r *http.Request) {
	company, ok := companyOf(w, r)
	if !ok {
		return
	}
	bookingID, ok := int64Var(w, r, "id")
	if !ok {
		return
	}
	var req statusRequest
	if err := decode(r, &req); err != nil {
		badRequest(w, "invalid request body")
		return
	}

	if err := h.svc.SyncBookingStatus(r.Context(), company, bookingID, req.Status); err != nil {
		writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *BookingHandler) Utilization(w http.ResponseWriter, r *http.Request) {
	company, ok := companyOf(w, r)
	if !ok {
		return
	}
	itemID, ok := int64Var(w, r, "id")
	if !ok {
		return
	}
	q := r.URL.Query()
	rng, err := parseRange(q.Get("start"), q.Get("end"))
	if err != nil {
		badRequest(w, err.Error())
		return
	}

	u, err := h.svc.Utilization(r.Context(), company, itemID, rng)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, u)
}
