package closing

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-erp/meridian/internal/ledger/shared"
	"github.com/meridian-erp/meridian/internal/platform/httpx"
)

// Handler exposes period closing endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs a closing HTTP handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes attaches closing routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/year", h.closeYear)
}

type closeRequest struct {
	Year    int    `json:"year" validate:"required,min=1900,max=9999"`
	ActorID int64  `json:"actor_id"`
	Memo    string `json:"memo"`
}

func (h *Handler) closeYear(w http.ResponseWriter, r *http.Request) {
	var req closeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	result, err := h.service.CloseYear(r.Context(), CloseInput{Year: req.Year, ActorID: req.ActorID, Memo: req.Memo})
	if err != nil {
		switch {
		case errors.Is(err, shared.ErrYearAlreadyClosed):
			httpx.Problem(w, http.StatusConflict, "Year Already Closed", err.Error())
		case errors.Is(err, shared.ErrNothingToClose):
			httpx.Problem(w, http.StatusUnprocessableEntity, "Nothing To Close", err.Error())
		case errors.Is(err, shared.ErrMappingNotFound):
			httpx.Problem(w, http.StatusUnprocessableEntity, "Missing Account Mapping", err.Error())
		case errors.Is(err, shared.ErrClosedPeriod):
			httpx.Problem(w, http.StatusUnprocessableEntity, "Period Closed", err.Error())
		default:
			h.logger.Error("close year", slog.Int("year", req.Year), slog.Any("error", err))
			httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		}
		return
	}
	h.logger.Info("year closed",
		slog.Int("year", req.Year),
		slog.String("reference", result.Entry.Reference),
		slog.Float64("net_income", result.NetIncome))
	httpx.JSON(w, http.StatusCreated, result)
}
