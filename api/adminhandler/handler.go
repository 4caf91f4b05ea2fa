package adminhandler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/device-activation-backend/activation"
	"github.com/ruteri/device-activation-backend/api"
	"github.com/ruteri/device-activation-backend/interfaces"
)

// Operations is the subset of activation.Orchestrator exposed to operators.
type Operations interface {
	Deactivate(ctx context.Context, req activation.DeactivateRequest) (*activation.DeactivationOutcome, error)
	MarkReady(ctx context.Context, req activation.ReadinessRequest) (*interfaces.FactoryRecord, error)
	RecordAssociation(ctx context.Context, req activation.AssociationRequest) (*interfaces.Association, error)
	UpdateAssociationTransaction(ctx context.Context, serialNumber string, status interfaces.TransactionStatus) error
	Status(ctx context.Context, serialNumber string) (*activation.DeviceStatus, error)
	RegisterFactoryRecord(ctx context.Context, record *interfaces.FactoryRecord) error
}

// EventDispatcher delivers the events returned by a deactivation.
type EventDispatcher interface {
	Dispatch(ctx context.Context, events []activation.Event)
}

// Handler serves the operator endpoints.
type Handler struct {
	ops        Operations
	dispatcher EventDispatcher
	log        *slog.Logger
}

func NewHandler(ops Operations, dispatcher EventDispatcher, log *slog.Logger) *Handler {
	return &Handler{ops: ops, dispatcher: dispatcher, log: log}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/api/admin", func(r chi.Router) {
		r.Post("/deactivate", h.HandleDeactivate)
		r.Post("/readiness", h.HandleReadiness)
		r.Post("/associations", h.HandleAssociation)
		r.Put("/associations/{serial}/transaction", h.HandleTransactionStatus)
		r.Get("/devices/{serial}", h.HandleDeviceStatus)
		r.Post("/factory-records", h.HandleFactoryRecord)
	})
}

// HandleDeactivate deactivates a device. Unknown serial numbers succeed with found=false.
//
// URL format: POST /api/admin/deactivate
func (h *Handler) HandleDeactivate(w http.ResponseWriter, r *http.Request) {
	var req api.DeactivateRequest
	if err := api.DecodeJSON(w, r, &req); err != nil {
		api.WriteError(w, err)
		return
	}

	outcome, err := h.ops.Deactivate(r.Context(), activation.DeactivateRequest{SerialNumber: req.SerialNumber, Actor: req.Actor})
	if err != nil {
		h.log.Error("Deactivation failed", "err", err, "serialNumber", req.SerialNumber)
		api.WriteError(w, err)
		return
	}

	if len(outcome.Events) > 0 && h.dispatcher != nil {
		h.dispatcher.Dispatch(context.WithoutCancel(r.Context()), outcome.Events)
	}

	h.writeJSON(w, http.StatusOK, api.DeactivateResponse{
		SerialNumber:      outcome.SerialNumber,
		Found:             outcome.Found,
		DeviceID:          outcome.DeviceID,
		ReadinessDisabled: outcome.ReadinessDisabled,
	})
}

// HandleReadiness records that a user may activate a device.
//
// URL format: POST /api/admin/readiness
func (h *Handler) HandleReadiness(w http.ResponseWriter, r *http.Request) {
	var req api.ReadinessRequest
	if err := api.DecodeJSON(w, r, &req); err != nil {
		api.WriteError(w, err)
		return
	}

	record, err := h.ops.MarkReady(r.Context(), activation.ReadinessRequest{
		SerialNumber:       req.SerialNumber,
		UserID:             req.UserID,
		AssociationPending: req.AssociationPending,
	})
	if err != nil {
		h.log.Warn("Readiness rejected", "err", err, "serialNumber", req.SerialNumber)
		api.WriteError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, api.NewFactoryRecord(record))
}

// HandleAssociation records a VIN association.
//
// URL format: POST /api/admin/associations
func (h *Handler) HandleAssociation(w http.ResponseWriter, r *http.Request) {
	var req api.AssociationRequest
	if err := api.DecodeJSON(w, r, &req); err != nil {
		api.WriteError(w, err)
		return
	}

	association, err := h.ops.RecordAssociation(r.Context(), activation.AssociationRequest{
		SerialNumber:      req.SerialNumber,
		VIN:               req.VIN,
		TransactionID:     req.TransactionID,
		TransactionStatus: interfaces.TransactionStatus(req.TransactionStatus),
	})
	if err != nil {
		h.log.Warn("Association rejected", "err", err, "serialNumber", req.SerialNumber)
		api.WriteError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, api.NewAssociationResponse(association))
}

// HandleTransactionStatus updates the provisioning transaction of an association.
//
// URL format: PUT /api/admin/associations/{serial}/transaction
func (h *Handler) HandleTransactionStatus(w http.ResponseWriter, r *http.Request) {
	var req api.TransactionStatusRequest
	if err := api.DecodeJSON(w, r, &req); err != nil {
		api.WriteError(w, err)
		return
	}

	serial := chi.URLParam(r, "serial")
	if err := h.ops.UpdateAssociationTransaction(r.Context(), serial, interfaces.TransactionStatus(req.Status)); err != nil {
		h.log.Warn("Transaction status update failed", "err", err, "serialNumber", serial)
		api.WriteError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// HandleDeviceStatus returns the factory record, identity, readiness and
// association of a device. Passcodes are never returned.
//
// URL format: GET /api/admin/devices/{serial}
func (h *Handler) HandleDeviceStatus(w http.ResponseWriter, r *http.Request) {
	status, err := h.ops.Status(r.Context(), chi.URLParam(r, "serial"))
	if err != nil {
		api.WriteError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, api.NewDeviceStatusResponse(status))
}

// HandleFactoryRecord imports an inventory entry.
//
// URL format: POST /api/admin/factory-records
func (h *Handler) HandleFactoryRecord(w http.ResponseWriter, r *http.Request) {
	var req api.FactoryRecord
	if err := api.DecodeJSON(w, r, &req); err != nil {
		api.WriteError(w, err)
		return
	}

	record, err := req.ToDomain()
	if err != nil {
		api.WriteError(w, err)
		return
	}

	if err := h.ops.RegisterFactoryRecord(r.Context(), record); err != nil {
		h.log.Error("Factory record import failed", "err", err, "serialNumber", req.SerialNumber)
		api.WriteError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, api.NewFactoryRecord(record))
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	if err := api.WriteJSON(w, status, v); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}
