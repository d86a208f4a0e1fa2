package accounts

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-erp/meridian/internal/ledger/shared"
	"github.com/meridian-erp/meridian/internal/platform/httpx"
)

// Handler exposes chart of accounts endpoints.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

// NewHandler constructs an accounts HTTP handler.
func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes attaches account routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Get("/tree", h.tree)
	r.Post("/", h.create)
	r.Delete("/{id}", h.remove)
}

type createRequest struct {
	Code     string  `json:"code" validate:"required"`
	Name     string  `json:"name" validate:"required"`
	Type     string  `json:"type" validate:"required,oneof=ASSET LIABILITY EQUITY REVENUE EXPENSE"`
	SubType  *string `json:"sub_type" validate:"omitempty,oneof=CURRENT NON_CURRENT"`
	IsGroup  bool    `json:"is_group"`
	ParentID *int64  `json:"parent_id"`
}

type accountView struct {
	ID       int64   `json:"id"`
	Code     string  `json:"code"`
	Name     string  `json:"name"`
	Type     string  `json:"type"`
	SubType  *string `json:"sub_type,omitempty"`
	IsGroup  bool    `json:"is_group"`
	ParentID *int64  `json:"parent_id,omitempty"`
	IsActive bool    `json:"is_active"`
}

type treeView struct {
	Account  accountView `json:"account"`
	Children []treeView  `json:"children,omitempty"`
}

func toAccountView(a Account) accountView {
	var sub *string
	if a.SubType != nil {
		s := string(*a.SubType)
		sub = &s
	}
	return accountView{
		ID:       a.ID,
		Code:     a.Code,
		Name:     a.Name,
		Type:     string(a.Type),
		SubType:  sub,
		IsGroup:  a.IsGroup,
		ParentID: a.ParentID,
		IsActive: a.IsActive,
	}
}

func toTreeView(nodes []*Node) []treeView {
	out := make([]treeView, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, treeView{Account: toAccountView(n.Account), Children: toTreeView(n.Children)})
	}
	return out
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	accounts, err := h.service.List(r.Context())
	if err != nil {
		h.logger.Error("list accounts", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	views := make([]accountView, 0, len(accounts))
	for _, a := range accounts {
		views = append(views, toAccountView(a))
	}
	httpx.JSON(w, http.StatusOK, views)
}

func (h *Handler) tree(w http.ResponseWriter, r *http.Request) {
	forest, err := h.service.Tree(r.Context())
	if err != nil {
		h.logger.Error("account tree", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, toTreeView(forest))
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Body", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	var sub *SubType
	if req.SubType != nil {
		s := SubType(*req.SubType)
		sub = &s
	}
	account, err := h.service.Create(r.Context(), CreateInput{
		Code:     req.Code,
		Name:     req.Name,
		Type:     AccountType(req.Type),
		SubType:  sub,
		IsGroup:  req.IsGroup,
		ParentID: req.ParentID,
	})
	if err != nil {
		switch {
		case errors.Is(err, ErrDuplicateCode):
			httpx.Problem(w, http.StatusConflict, "Duplicate Code", err.Error())
		case errors.Is(err, shared.ErrAccountNotFound):
			httpx.Problem(w, http.StatusNotFound, "Parent Not Found", err.Error())
		default:
			httpx.Problem(w, http.StatusBadRequest, "Invalid Account", err.Error())
		}
		return
	}
	httpx.JSON(w, http.StatusCreated, toAccountView(account))
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	if err := h.service.Remove(r.Context(), id); err != nil {
		if errors.Is(err, shared.ErrAccountNotFound) {
			httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
			return
		}
		h.logger.Error("remove account", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
