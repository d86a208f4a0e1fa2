package inventory

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-erp/meridian/internal/ledger/shared"
	"github.com/meridian-erp/meridian/internal/platform/httpx"
	internalShared "github.com/meridian-erp/meridian/internal/shared"
)

// Handler exposes inventory endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs an inventory HTTP handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes attaches inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/receipts", h.receive)
	r.Post("/issues", h.issue)
	r.Post("/transfers", h.transfer)
	r.Post("/revaluations", h.revalue)
	r.Post("/production", h.produce)
	r.Get("/positions", h.positions)
	r.Get("/stock-card", h.stockCard)
}

type receiveRequest struct {
	Code        string  `json:"code"`
	WarehouseID int64   `json:"warehouse_id" validate:"required"`
	ProductID   int64   `json:"product_id" validate:"required"`
	Qty         float64 `json:"qty" validate:"required,gt=0"`
	UnitCost    float64 `json:"unit_cost" validate:"gte=0"`
	Note        string  `json:"note"`
	ActorID     int64   `json:"actor_id"`
	RefModule   string  `json:"ref_module"`
	RefID       string  `json:"ref_id"`
}

func (h *Handler) receive(w http.ResponseWriter, r *http.Request) {
	var req receiveRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.service.Receive(r.Context(), ReceiveInput{
		Code:        req.Code,
		WarehouseID: req.WarehouseID,
		ProductID:   req.ProductID,
		Qty:         req.Qty,
		UnitCost:    req.UnitCost,
		Note:        req.Note,
		ActorID:     req.ActorID,
		RefModule:   req.RefModule,
		RefID:       req.RefID,
	})
	if err != nil {
		h.respondMovementError(w, "receive", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

type issueRequest struct {
	Code        string  `json:"code"`
	WarehouseID int64   `json:"warehouse_id" validate:"required"`
	ProductID   int64   `json:"product_id" validate:"required"`
	Qty         float64 `json:"qty" validate:"required,gt=0"`
	Note        string  `json:"note"`
	ActorID     int64   `json:"actor_id"`
	RefModule   string  `json:"ref_module"`
	RefID       string  `json:"ref_id"`
}

func (h *Handler) issue(w http.ResponseWriter, r *http.Request) {
	var req issueRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.service.Issue(r.Context(), IssueInput{
		Code:        req.Code,
		WarehouseID: req.WarehouseID,
		ProductID:   req.ProductID,
		Qty:         req.Qty,
		Note:        req.Note,
		ActorID:     req.ActorID,
		RefModule:   req.RefModule,
		RefID:       req.RefID,
	})
	if err != nil {
		h.respondMovementError(w, "issue", err)
		return
	}
	// Negative balances ride along as a warning, not an error.
	httpx.JSON(w, http.StatusOK, result)
}

type transferRequest struct {
	Code         string  `json:"code"`
	ProductID    int64   `json:"product_id" validate:"required"`
	Qty          float64 `json:"qty" validate:"required,gt=0"`
	SrcWarehouse int64   `json:"src_warehouse" validate:"required"`
	DstWarehouse int64   `json:"dst_warehouse" validate:"required"`
	Note         string  `json:"note"`
	ActorID      int64   `json:"actor_id"`
	RefModule    string  `json:"ref_module"`
	RefID        string  `json:"ref_id"`
}

type transferResponse struct {
	Out MovementResult `json:"out"`
	In  MovementResult `json:"in"`
}

func (h *Handler) transfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if !h.decode(w, r, &req) {
		return
	}
	out, in, err := h.service.Transfer(r.Context(), TransferInput{
		Code:         req.Code,
		ProductID:    req.ProductID,
		Qty:          req.Qty,
		SrcWarehouse: req.SrcWarehouse,
		DstWarehouse: req.DstWarehouse,
		Note:         req.Note,
		ActorID:      req.ActorID,
		RefModule:    req.RefModule,
		RefID:        req.RefID,
	})
	if err != nil {
		h.respondMovementError(w, "transfer", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, transferResponse{Out: out, In: in})
}

type revalueRequest struct {
	Code            string  `json:"code"`
	WarehouseID     int64   `json:"warehouse_id" validate:"required"`
	ProductID       int64   `json:"product_id" validate:"required"`
	NewUnitCost     float64 `json:"new_unit_cost" validate:"gte=0"`
	ContraAccountID int64   `json:"contra_account_id" validate:"required"`
	Note            string  `json:"note"`
	ActorID         int64   `json:"actor_id"`
}

func (h *Handler) revalue(w http.ResponseWriter, r *http.Request) {
	var req revalueRequest
	if !h.decode(w, r, &req) {
		return
	}
	result, err := h.service.Revalue(r.Context(), RevalueInput{
		Code:            req.Code,
		WarehouseID:     req.WarehouseID,
		ProductID:       req.ProductID,
		NewUnitCost:     req.NewUnitCost,
		ContraAccountID: req.ContraAccountID,
		Note:            req.Note,
		ActorID:         req.ActorID,
	})
	if err != nil {
		h.respondMovementError(w, "revalue", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

type componentRequest struct {
	ProductID int64   `json:"product_id" validate:"required"`
	Qty       float64 `json:"qty" validate:"required,gt=0"`
}

type produceRequest struct {
	Code        string             `json:"code"`
	WarehouseID int64              `json:"warehouse_id" validate:"required"`
	ProductID   int64              `json:"product_id" validate:"required"`
	Qty         float64            `json:"qty" validate:"required,gt=0"`
	Components  []componentRequest `json:"components" validate:"required,min=1,dive"`
	Overhead    float64            `json:"overhead" validate:"gte=0"`
	Note        string             `json:"note"`
	ActorID     int64              `json:"actor_id"`
}

func (h *Handler) produce(w http.ResponseWriter, r *http.Request) {
	var req produceRequest
	if !h.decode(w, r, &req) {
		return
	}
	components := make([]ComponentInput, 0, len(req.Components))
	for _, c := range req.Components {
		components = append(components, ComponentInput{ProductID: c.ProductID, Qty: c.Qty})
	}
	result, err := h.service.Produce(r.Context(), ProduceInput{
		Code:        req.Code,
		WarehouseID: req.WarehouseID,
		ProductID:   req.ProductID,
		Qty:         req.Qty,
		Components:  components,
		Overhead:    req.Overhead,
		Note:        req.Note,
		ActorID:     req.ActorID,
	})
	if err != nil {
		h.respondMovementError(w, "produce", err)
		return
	}
	httpx.JSON(w, http.StatusCreated, result)
}

func (h *Handler) positions(w http.ResponseWriter, r *http.Request) {
	warehouseID, _ := strconv.ParseInt(r.URL.Query().Get("warehouse_id"), 10, 64)
	positions, err := h.service.Positions(r.Context(), warehouseID)
	if err != nil {
		h.logger.Error("list positions", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, positions)
}

func (h *Handler) stockCard(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	warehouseID, _ := strconv.ParseInt(q.Get("warehouse_id"), 10, 64)
	productID, _ := strconv.ParseInt(q.Get("product_id"), 10, 64)
	if warehouseID == 0 || productID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Filter", "warehouse_id and product_id are required")
		return
	}
	filter := StockCardFilter{WarehouseID: warehouseID, ProductID: productID}
	if raw := q.Get("from"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Date", err.Error())
			return
		}
		filter.From = t
	}
	if raw := q.Get("to"); raw != "" {
		t, err := time.Parse("2006-01-02", raw)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Date", err.Error())
			return
		}
		filter.To = t
	}
	if raw := q.Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			filter.Limit = n
		}
	}
	cards, err := h.service.StockCard(r.Context(), filter)
	if err != nil {
		h.logger.Error("stock card", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, cards)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dest any) bool {
	if err := httpx.DecodeJSON(r, dest); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return false
	}
	if err := h.validate.Struct(dest); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func (h *Handler) respondMovementError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrInvalidUnitCost),
		errors.Is(err, ErrZeroDelta), errors.Is(err, ErrMissingContraAccount),
		errors.Is(err, ErrSameWarehouse):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Movement", err.Error())
	case errors.Is(err, ErrNegativeStock):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Negative Stock", err.Error())
	case errors.Is(err, ErrZeroQuantityCost):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Cost Undefined", err.Error())
	case errors.Is(err, ErrPositionNotFound):
		httpx.Problem(w, http.StatusNotFound, "Position Not Found", err.Error())
	case errors.Is(err, shared.ErrMappingNotFound):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Missing Account Mapping", err.Error())
	case errors.Is(err, shared.ErrClosedPeriod):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Period Closed", err.Error())
	case errors.Is(err, internalShared.ErrIdempotencyConflict):
		httpx.Problem(w, http.StatusConflict, "Duplicate Movement", err.Error())
	default:
		h.logger.Error("inventory "+op, slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
