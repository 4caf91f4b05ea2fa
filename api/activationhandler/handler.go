package activationhandler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/ruteri/device-activation-backend/activation"
	"github.com/ruteri/device-activation-backend/api"
)

// Activator is the subset of activation.Orchestrator used by the handler.
type Activator interface {
	Activate(ctx context.Context, cfg activation.Config, req activation.Request) (*activation.Outcome, error)
	ActivatePreSharedKey(ctx context.Context, cfg activation.Config, req activation.PSKRequest) (*activation.Outcome, error)
}

// EventDispatcher delivers the events returned by an activation.
type EventDispatcher interface {
	Dispatch(ctx context.Context, events []activation.Event)
}

// Handler serves the device-facing activation endpoints.
type Handler struct {
	activator  Activator
	dispatcher EventDispatcher
	cfg        activation.Config
	log        *slog.Logger
}

func NewHandler(activator Activator, dispatcher EventDispatcher, cfg activation.Config, log *slog.Logger) *Handler {
	return &Handler{
		activator:  activator,
		dispatcher: dispatcher,
		cfg:        cfg,
		log:        log,
	}
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Post("/api/v1/devices/activate", h.HandleActivate)
	r.Post("/api/v1/devices/psk/activate", h.HandleActivatePSK)
}

// HandleActivate processes a qualifier-based activation.
//
// URL format: POST /api/v1/devices/activate
//
// Request body: JSON, see api.ActivationRequest
//
// Response: JSON, see api.ActivationResponse. 200 when credentials were
// issued or rotated, 202 with provisionedAlive=true when the device connected
// without a completed association. Errors use api.ErrorResponse.
func (h *Handler) HandleActivate(w http.ResponseWriter, r *http.Request) {
	var req api.ActivationRequest
	if err := api.DecodeJSON(w, r, &req); err != nil {
		h.log.Warn("invalid activation request", "err", err)
		api.WriteError(w, err)
		return
	}

	outcome, err := h.activator.Activate(r.Context(), h.cfg, req.ToActivation())
	h.respond(w, r, outcome, err)
}

// HandleActivatePSK processes a pre-shared-key activation.
//
// URL format: POST /api/v1/devices/psk/activate
//
// Request body: JSON, see api.PSKActivationRequest
func (h *Handler) HandleActivatePSK(w http.ResponseWriter, r *http.Request) {
	var req api.PSKActivationRequest
	if err := api.DecodeJSON(w, r, &req); err != nil {
		h.log.Warn("invalid psk activation request", "err", err)
		api.WriteError(w, err)
		return
	}

	outcome, err := h.activator.ActivatePreSharedKey(r.Context(), h.cfg, req.ToActivation())
	h.respond(w, r, outcome, err)
}

func (h *Handler) respond(w http.ResponseWriter, r *http.Request, outcome *activation.Outcome, err error) {
	// Events are delivered even when the request failed, and even if the
	// client has gone away.
	if outcome != nil && len(outcome.Events) > 0 && h.dispatcher != nil {
		h.dispatcher.Dispatch(context.WithoutCancel(r.Context()), outcome.Events)
	}

	if err != nil {
		h.log.Info("activation failed", "err", err, "status", api.StatusForError(err))
		api.WriteError(w, err)
		return
	}

	status := http.StatusOK
	if outcome.Result.ProvisionedAlive() {
		status = http.StatusAccepted
	}
	if err := api.WriteJSON(w, status, api.NewActivationResponse(outcome.Result)); err != nil {
		h.log.Error("Failed to encode response", "err", err)
	}
}
