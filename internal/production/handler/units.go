package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/atelier/production-backend/internal/production/domain"
	"github.com/atelier/production-backend/internal/production/service"
	"github.com/atelier/production-backend/pkg/errors"
	"github.com/atelier/production-backend/pkg/httputil"
	"github.com/atelier/production-backend/pkg/logger"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// UnitHandler handles production unit endpoints
type UnitHandler struct {
	service *service.WorkflowService
	logger  *logger.Logger
}

// NewUnitHandler creates a new unit handler
func NewUnitHandler(svc *service.WorkflowService, log *logger.Logger) *UnitHandler {
	return &UnitHandler{
		service: svc,
		logger:  log,
	}
}

type createUnitRequest struct {
	ClientName string          `json:"client_name"`
	ProductRef string          `json:"product_ref" validate:"required,max=120"`
	Category   string          `json:"category" validate:"max=80"`
	Quantity   decimal.Decimal `json:"quantity" validate:"gte=0"`
	Unit       string          `json:"unit" validate:"max=20"`
	Workflow   string          `json:"workflow" validate:"omitempty,oneof=STANDARD NO_ASSEMBLY"`
	OrderType  string          `json:"order_type" validate:"omitempty,oneof=CLIENT STOCK"`
	Notes      *string         `json:"notes"`
	ReceivedAt *time.Time      `json:"received_at"`
}

type transitionRequest struct {
	Status string `json:"status" validate:"required"`
	Note   string `json:"note" validate:"max=500"`
}

type stageRequest struct {
	UnitIDs    []string `json:"unit_ids" validate:"required,min=1,dive,required"`
	FromStatus string   `json:"from_status" validate:"required"`
	ToStatus   string   `json:"to_status" validate:"required"`
}

type shipRequest struct {
	UnitIDs []string `json:"unit_ids" validate:"required,min=1,dive,required"`
}

// List lists units, oldest reception first
func (h *UnitHandler) List(w http.ResponseWriter, r *http.Request) {
	filter, err := unitFilterFromQuery(r)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	units, err := h.service.ListUnits(r.Context(), filter)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, units, &httputil.Meta{Total: len(units)})
}

// Get gets a unit by ID
func (h *UnitHandler) Get(w http.ResponseWriter, r *http.Request) {
	unit, err := h.service.GetUnit(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, unit)
}

// Create registers a unit at reception
func (h *UnitHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createUnitRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	unit := &domain.ProductionUnit{
		ClientName: req.ClientName,
		ProductRef: req.ProductRef,
		Category:   req.Category,
		Quantity:   req.Quantity,
		Unit:       req.Unit,
		Workflow:   domain.Workflow(req.Workflow),
		OrderType:  domain.OrderType(req.OrderType),
		Notes:      req.Notes,
	}
	if req.ReceivedAt != nil {
		unit.ReceivedAt = req.ReceivedAt.UTC()
	}

	if err := h.service.CreateUnit(r.Context(), unit, domain.OriginAPI, ""); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, unit)
}

// Transition moves one unit to its next status
func (h *UnitHandler) Transition(w http.ResponseWriter, r *http.Request) {
	var req transitionRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	target, err := parseStatus("status", req.Status)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	unit, err := h.service.Transition(r.Context(), chi.URLParam(r, "id"), target, domain.OriginAPI, req.Note)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, unit)
}

// Movements returns the unit's movement history, newest first
func (h *UnitHandler) Movements(w http.ResponseWriter, r *http.Request) {
	records, err := h.service.ListMovements(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, records, &httputil.Meta{Total: len(records)})
}

// StartStage bulk-moves the listed units from one status to the next
func (h *UnitHandler) StartStage(w http.ResponseWriter, r *http.Request) {
	var req stageRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	from, err := parseStatus("from_status", req.FromStatus)
	if err != nil {
		httputil.Error(w, err)
		return
	}
	to, err := parseStatus("to_status", req.ToStatus)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.service.StartStage(r.Context(), req.UnitIDs, from, to)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}

// Ship marks the listed units as shipped
func (h *UnitHandler) Ship(w http.ResponseWriter, r *http.Request) {
	var req shipRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	result, err := h.service.ShipUnits(r.Context(), req.UnitIDs)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, result)
}

// parseStatus accepts only the workflow statuses; LEGACY and free text are refused.
func parseStatus(field, raw string) (domain.Status, error) {
	status := domain.Status(strings.ToUpper(strings.TrimSpace(raw)))
	if !status.Valid() {
		return "", errors.Validation(map[string]string{field: "unknown status " + raw})
	}
	return status, nil
}

func unitFilterFromQuery(r *http.Request) (domain.UnitFilter, error) {
	q := r.URL.Query()
	filter := domain.UnitFilter{
		Client:   q.Get("client"),
		Category: q.Get("category"),
	}

	if raw := q.Get("status"); raw != "" {
		status := domain.Status(strings.ToUpper(strings.TrimSpace(raw)))
		if !status.Valid() && status != domain.StatusLegacy {
			return filter, errors.Validation(map[string]string{"status": "unknown status " + raw})
		}
		filter.Status = status
	}

	if raw := q.Get("exclude_shipped"); raw != "" {
		exclude, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, errors.BadRequest("exclude_shipped must be a boolean")
		}
		filter.ExcludeShipped = exclude
	}
	return filter, nil
}
