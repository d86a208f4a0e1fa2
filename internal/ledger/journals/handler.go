package journals

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/meridian-erp/meridian/internal/ledger/shared"
	"github.com/meridian-erp/meridian/internal/platform/httpx"
)

const dateLayout = "2006-01-02"

// Handler exposes journal posting endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs a journals HTTP handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes attaches journal routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/{id}", h.get)
	r.Post("/", h.post)
	r.Post("/{id}/reverse", h.reverse)
}

type postLineRequest struct {
	AccountID    int64   `json:"account_id" validate:"required"`
	Debit        float64 `json:"debit" validate:"gte=0"`
	Credit       float64 `json:"credit" validate:"gte=0"`
	CostCenterID *int64  `json:"cost_center_id"`
	Memo         string  `json:"memo"`
}

type postRequest struct {
	Date         string            `json:"date" validate:"required"`
	Reference    string            `json:"reference" validate:"required"`
	Memo         string            `json:"memo"`
	SourceModule string            `json:"source_module" validate:"required"`
	SourceID     string            `json:"source_id"`
	PostedBy     int64             `json:"posted_by"`
	Lines        []postLineRequest `json:"lines" validate:"required,min=2,dive"`
}

type reverseRequest struct {
	Date    string `json:"date"`
	ActorID int64  `json:"actor_id"`
	Memo    string `json:"memo"`
}

type lineView struct {
	ID           int64   `json:"id"`
	AccountID    int64   `json:"account_id"`
	Debit        float64 `json:"debit"`
	Credit       float64 `json:"credit"`
	CostCenterID *int64  `json:"cost_center_id,omitempty"`
	Memo         string  `json:"memo,omitempty"`
}

type entryView struct {
	ID        int64      `json:"id"`
	Date      string     `json:"date"`
	Reference string     `json:"reference"`
	Memo      string     `json:"memo,omitempty"`
	Status    string     `json:"status"`
	Lines     []lineView `json:"lines,omitempty"`
}

func toEntryView(e JournalEntry) entryView {
	view := entryView{
		ID:        e.ID,
		Date:      e.Date.Format(dateLayout),
		Reference: e.Reference,
		Memo:      e.Memo,
		Status:    string(e.Status),
	}
	for _, line := range e.Lines {
		view.Lines = append(view.Lines, lineView{
			ID:           line.ID,
			AccountID:    line.AccountID,
			Debit:        line.Debit,
			Credit:       line.Credit,
			CostCenterID: line.CostCenterID,
			Memo:         line.Memo,
		})
	}
	return view
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	entries, err := h.service.List(r.Context(), limit)
	if err != nil {
		h.logger.Error("list journals", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	views := make([]entryView, 0, len(entries))
	for _, e := range entries {
		views = append(views, toEntryView(e))
	}
	httpx.JSON(w, http.StatusOK, views)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	entry, err := h.service.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, shared.ErrJournalNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
			return
		}
		h.logger.Error("get journal", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, toEntryView(entry))
}

func (h *Handler) post(w http.ResponseWriter, r *http.Request) {
	var req postRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	date, err := time.Parse(dateLayout, req.Date)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Date", err.Error())
		return
	}
	sourceID := uuid.New()
	if req.SourceID != "" {
		sourceID, err = uuid.Parse(req.SourceID)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Source ID", err.Error())
			return
		}
	}
	input := PostingInput{
		Date:         date,
		Reference:    req.Reference,
		Memo:         req.Memo,
		SourceModule: req.SourceModule,
		SourceID:     sourceID,
		PostedBy:     req.PostedBy,
	}
	for _, line := range req.Lines {
		input.Lines = append(input.Lines, PostingLineInput{
			AccountID:    line.AccountID,
			Debit:        line.Debit,
			Credit:       line.Credit,
			CostCenterID: line.CostCenterID,
			Memo:         line.Memo,
		})
	}
	entry, err := h.service.Post(r.Context(), input)
	if err != nil {
		h.respondPostingError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toEntryView(entry))
}

func (h *Handler) reverse(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	var req reverseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	var date time.Time
	if req.Date != "" {
		date, err = time.Parse(dateLayout, req.Date)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Date", err.Error())
			return
		}
	}
	entry, err := h.service.Reverse(r.Context(), ReverseInput{EntryID: id, Date: date, ActorID: req.ActorID, Memo: req.Memo})
	if err != nil {
		if errors.Is(err, shared.ErrJournalNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
			return
		}
		h.respondPostingError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toEntryView(entry))
}

func (h *Handler) respondPostingError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, shared.ErrUnbalanced),
		errors.Is(err, shared.ErrTooFewLines),
		errors.Is(err, shared.ErrMissingAccount),
		errors.Is(err, shared.ErrGroupAccountPosting):
		httpx.Problem(w, http.StatusBadRequest, "Invalid Entry", err.Error())
	case errors.Is(err, shared.ErrAccountNotFound):
		httpx.Problem(w, http.StatusNotFound, "Account Not Found", err.Error())
	case errors.Is(err, shared.ErrClosedPeriod):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Closed Period", err.Error())
	case errors.Is(err, shared.ErrDuplicateReference):
		httpx.Problem(w, http.StatusConflict, "Duplicate Reference", err.Error())
	case errors.Is(err, shared.ErrInvalidStatus):
		httpx.Problem(w, http.StatusConflict, "Invalid Status", err.Error())
	default:
		h.logger.Error("post journal", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
