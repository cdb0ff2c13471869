package handler

import (
	"net/http"

	"github.com/atelier/production-backend/internal/production/domain"
	"github.com/atelier/production-backend/internal/production/service"
	"github.com/atelier/production-backend/pkg/errors"
	"github.com/atelier/production-backend/pkg/httputil"
	"github.com/atelier/production-backend/pkg/logger"
	"github.com/shopspring/decimal"
)

// StockHandler handles material batch endpoints
type StockHandler struct {
	service        *service.LedgerService
	maxImportBytes int64
	logger         *logger.Logger
}

// NewStockHandler creates a new stock handler. Uploaded sheets larger than
// maxImportBytes are refused.
func NewStockHandler(svc *service.LedgerService, maxImportBytes int64, log *logger.Logger) *StockHandler {
	return &StockHandler{
		service:        svc,
		maxImportBytes: maxImportBytes,
		logger:         log,
	}
}

type createBatchRequest struct {
	MaterialRef string          `json:"material_ref" validate:"required,max=120"`
	SellsyRef   *string         `json:"sellsy_ref"`
	Category    string          `json:"category" validate:"max=80"`
	Width       *string         `json:"width"`
	Quantity    decimal.Decimal `json:"quantity" validate:"gte=0"`
	Unit        string          `json:"unit" validate:"max=20"`
}

type allocateRequest struct {
	MaterialRef string          `json:"material_ref" validate:"required"`
	Quantity    decimal.Decimal `json:"quantity" validate:"gt=0"`
}

// List returns available stock grouped by material. The material_ref and
// category query parameters narrow the view.
func (h *StockHandler) List(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query()
	groups, err := h.service.ListMaterialStock(r.Context(), domain.StockFilter{
		MaterialRef: query.Get("material_ref"),
		Category:    query.Get("category"),
	})
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, groups, &httputil.Meta{Total: len(groups)})
}

// CreateBatch registers a received batch
func (h *StockHandler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	var req createBatchRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	batch := &domain.MaterialBatch{
		MaterialRef: req.MaterialRef,
		SellsyRef:   req.SellsyRef,
		Category:    req.Category,
		Width:       req.Width,
		Quantity:    req.Quantity,
		Unit:        req.Unit,
	}
	if err := h.service.ReceiveBatch(r.Context(), batch); err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.Created(w, batch)
}

// Allocate consumes stock of a material across its batches
func (h *StockHandler) Allocate(w http.ResponseWriter, r *http.Request) {
	var req allocateRequest
	if err := httputil.DecodeAndValidate(r, &req); err != nil {
		httputil.Error(w, err)
		return
	}

	alloc, err := h.service.AllocateMaterial(r.Context(), req.MaterialRef, req.Quantity)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	httputil.JSON(w, http.StatusOK, alloc)
}

// Import loads batches from an uploaded xlsx sheet (multipart field "file")
func (h *StockHandler) Import(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, h.maxImportBytes)
	if err := r.ParseMultipartForm(h.maxImportBytes); err != nil {
		httputil.Error(w, errors.BadRequest("upload must be a multipart form within the size limit"))
		return
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		httputil.Error(w, errors.Validation(map[string]string{"file": "this field is required"}))
		return
	}
	defer file.Close()

	result, err := h.service.ImportBatches(r.Context(), file)
	if err != nil {
		httputil.Error(w, err)
		return
	}

	h.logger.Info().
		Str("filename", header.Filename).
		Int("imported", result.Imported).
		Int("rejected", len(result.Errors)).
		Msg("stock sheet uploaded")

	httputil.JSON(w, http.StatusOK, result)
}
