package orders

import (
	"log/slog"
	"net/http"

	"github.com/bytebites/bytebites-core/internal/httpio"
	"github.com/bytebites/bytebites-core/pkg/auth"
	"github.com/bytebites/bytebites-core/pkg/downstream"
	sserr "github.com/bytebites/bytebites-core/pkg/errors"
)

// Envelope wraps every order service response.
type Envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
	Status  int    `json:"status"`
	Code    string `json:"code,omitempty"`
	Data    any    `json:"data"`
}

// StatusUpdateRequest is the body of PUT /api/orders/{id}/status.
type StatusUpdateRequest struct {
	NewStatus string `json:"newStatus"`
}

func writeEnvelope(w http.ResponseWriter, status int, message string, data any) {
	httpio.WriteJSON(w, status, Envelope{Success: true, Message: message, Status: status, Data: data})
}

// WriteError writes err as a failed envelope. Errors without a code become
// INT_001 with a generic message.
func WriteError(w http.ResponseWriter, err error) {
	e, ok := sserr.AsError(err)
	if !ok {
		e = sserr.Internal("An unexpected error occurred")
	}
	status := e.HTTPStatus()
	httpio.WriteJSON(w, status, Envelope{Message: e.Message, Status: status, Code: string(e.Code)})
}

// NewHandler returns the order routes behind the downstream identity
// middleware.
func NewHandler(svc *Service, logger *slog.Logger) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	g := downstream.NewGuard(logger, WriteError)
	h := &handler{svc: svc, guard: g, logger: logger}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /api/orders", g.Require(h.place, auth.RoleCustomer))
	mux.HandleFunc("GET /api/orders/my-orders", g.Require(h.listMine, auth.RoleCustomer))
	mux.HandleFunc("GET /api/orders/restaurant/{restaurantId}", g.Require(h.listForRestaurant, auth.RoleRestaurantOwner, auth.RoleAdmin))
	mux.HandleFunc("GET /api/orders/{id}", g.Require(h.get, auth.RoleCustomer, auth.RoleRestaurantOwner, auth.RoleAdmin))
	mux.HandleFunc("PUT /api/orders/{id}/status", g.Require(h.updateStatus, auth.RoleRestaurantOwner, auth.RoleAdmin))
	mux.HandleFunc("DELETE /api/orders/{id}", g.Require(h.cancel, auth.RoleCustomer, auth.RoleAdmin))
	return downstream.Middleware(logger)(mux)
}

type handler struct {
	svc    *Service
	guard  *downstream.Guard
	logger *slog.Logger
}

// fail sends authorization failures through the guard so they are logged
// like route-level denials.
func (h *handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	if sserr.IsAuthorization(err) {
		h.guard.Deny(w, r, err)
		return
	}
	if sserr.IsServerError(err) || sserr.GetCode(err) == "" {
		h.logger.ErrorContext(r.Context(), "order request failed", "path", r.URL.Path, "error", err)
	}
	WriteError(w, err)
}

func identity(r *http.Request) auth.Identity {
	id, _ := auth.IdentityFromContext(r.Context())
	return id
}

func (h *handler) place(w http.ResponseWriter, r *http.Request) {
	var req PlaceOrderRequest
	if err := httpio.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	o, err := h.svc.Place(r.Context(), identity(r), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeEnvelope(w, http.StatusCreated, "Order created successfully", o.ID)
}

func (h *handler) get(w http.ResponseWriter, r *http.Request) {
	o, err := h.svc.Get(r.Context(), identity(r), r.PathValue("id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeEnvelope(w, http.StatusOK, "Order retrieved successfully", o)
}

func (h *handler) listMine(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListMine(r.Context(), identity(r))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeEnvelope(w, http.StatusOK, "Customer orders retrieved successfully", list)
}

func (h *handler) listForRestaurant(w http.ResponseWriter, r *http.Request) {
	list, err := h.svc.ListForRestaurant(r.Context(), identity(r), r.PathValue("restaurantId"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeEnvelope(w, http.StatusOK, "Orders retrieved for restaurant successfully", list)
}

func (h *handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	var req StatusUpdateRequest
	if err := httpio.DecodeJSON(r, &req); err != nil {
		h.fail(w, r, err)
		return
	}
	next, err := ParseStatus(req.NewStatus)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	o, err := h.svc.UpdateStatus(r.Context(), identity(r), r.PathValue("id"), next)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeEnvelope(w, http.StatusOK, "Order status updated successfully", o)
}

func (h *handler) cancel(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Cancel(r.Context(), identity(r), r.PathValue("id")); err != nil {
		h.fail(w, r, err)
		return
	}
	writeEnvelope(w, http.StatusOK, "Order cancelled successfully", nil)
}
