package balances

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/meridian-erp/meridian/internal/ledger/accounts"
	"github.com/meridian-erp/meridian/internal/ledger/shared"
	"github.com/meridian-erp/meridian/internal/platform/httpx"
)

const dateLayout = "2006-01-02"

// Handler exposes derived balance endpoints.
type Handler struct {
	logger  *slog.Logger
	service *Service
	cache   *Cache
	group   singleflight.Group
}

// NewHandler constructs a balances HTTP handler. cache may be nil.
func NewHandler(logger *slog.Logger, service *Service, cache *Cache) *Handler {
	return &Handler{logger: logger, service: service, cache: cache}
}

// MountRoutes attaches balance routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/accounts/{id}", h.accountBalance)
	r.Get("/tree", h.tree)
	r.Get("/trial-balance", h.trialBalance)
	r.Get("/trial-balance/export", h.exportTrialBalance)
}

type accountBalanceView struct {
	AccountID int64    `json:"account_id"`
	AsOf      *string  `json:"as_of,omitempty"`
	From      *string  `json:"from,omitempty"`
	To        *string  `json:"to,omitempty"`
	Balance   float64  `json:"balance"`
	Range     *float64 `json:"range_balance,omitempty"`
}

func (h *Handler) accountBalance(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid ID", err.Error())
		return
	}
	q := r.URL.Query()
	view := accountBalanceView{AccountID: id}

	if from, to := q.Get("from"), q.Get("to"); from != "" || to != "" {
		start, end, err := parseRange(from, to)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Invalid Range", err.Error())
			return
		}
		balance, err := h.service.BalanceInRange(r.Context(), id, start, end)
		if err != nil {
			h.respondBalanceError(w, err)
			return
		}
		f, t := start.Format(dateLayout), end.Format(dateLayout)
		view.From, view.To, view.Balance = &f, &t, balance
		httpx.JSON(w, http.StatusOK, view)
		return
	}

	asOf, err := parseAsOf(q.Get("as_of"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Date", err.Error())
		return
	}
	balance, err := h.service.BalanceAsOf(r.Context(), id, asOf)
	if err != nil {
		h.respondBalanceError(w, err)
		return
	}
	formatted := asOf.Format(dateLayout)
	view.AsOf, view.Balance = &formatted, balance
	httpx.JSON(w, http.StatusOK, view)
}

type balanceNodeView struct {
	ID       int64             `json:"id"`
	Code     string            `json:"code"`
	Name     string            `json:"name"`
	Type     string            `json:"type"`
	IsGroup  bool              `json:"is_group"`
	Balance  float64           `json:"balance"`
	Children []balanceNodeView `json:"children,omitempty"`
}

func (h *Handler) tree(w http.ResponseWriter, r *http.Request) {
	asOf, err := parseAsOf(r.URL.Query().Get("as_of"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Date", err.Error())
		return
	}
	key, err := h.cache.BuildKey(r.Context(), keyTree(asOf))
	if err != nil {
		h.logger.Warn("cache key", slog.Any("error", err))
	}
	var views []balanceNodeView
	err = h.cache.FetchJSON(r.Context(), key, &views, func(ctx context.Context) (interface{}, error) {
		value, err, _ := h.single(ctx, key, func(ctx context.Context) (interface{}, error) {
			forest, err := h.service.TreeBalances(ctx, asOf)
			if err != nil {
				return nil, err
			}
			return toBalanceViews(forest), nil
		})
		return value, err
	})
	if err != nil {
		h.logger.Error("balance tree", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, views)
}

func (h *Handler) trialBalance(w http.ResponseWriter, r *http.Request) {
	start, end, err := parseRange(r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Range", err.Error())
		return
	}
	tb, err := h.cachedTrialBalance(r.Context(), start, end)
	if err != nil {
		h.logger.Error("trial balance", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	httpx.JSON(w, http.StatusOK, tb)
}

func (h *Handler) exportTrialBalance(w http.ResponseWriter, r *http.Request) {
	start, end, err := parseRange(r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid Range", err.Error())
		return
	}
	var tb TrialBalance
	var integrityTotal float64
	g, ctx := errgroup.WithContext(r.Context())
	g.Go(func() error {
		var err error
		tb, err = h.cachedTrialBalance(ctx, start, end)
		return err
	})
	g.Go(func() error {
		forest, err := h.service.TreeBalances(ctx, end)
		if err != nil {
			return err
		}
		for _, node := range forest {
			integrityTotal += node.Balance
		}
		return nil
	})
	if err := g.Wait(); err != nil {
		h.logger.Error("trial balance export", slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}

	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition",
		"attachment; filename=trial-balance-"+start.Format(dateLayout)+"-"+end.Format(dateLayout)+".csv")
	if err := writeTrialBalanceCSV(w, tb, start, end); err != nil {
		h.logger.Error("trial balance csv", slog.Any("error", err))
	}
}

func (h *Handler) cachedTrialBalance(ctx context.Context, start, end time.Time) (TrialBalance, error) {
	key, err := h.cache.BuildKey(ctx, keyTrialBalance(start, end))
	if err != nil {
		h.logger.Warn("cache key", slog.Any("error", err))
	}
	var tb TrialBalance
	err = h.cache.FetchJSON(ctx, key, &tb, func(ctx context.Context) (interface{}, error) {
		value, err, _ := h.single(ctx, key, func(ctx context.Context) (interface{}, error) {
			return h.service.TrialBalance(ctx, start, end)
		})
		return value, err
	})
	return tb, err
}

// single collapses concurrent rebuilds of the same cache key into one query.
func (h *Handler) single(ctx context.Context, key string, fn func(context.Context) (interface{}, error)) (interface{}, error, bool) {
	resultChan := h.group.DoChan(key, func() (interface{}, error) {
		return fn(ctx)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err(), false
	case res := <-resultChan:
		return res.Val, res.Err, res.Shared
	}
}

func (h *Handler) respondBalanceError(w http.ResponseWriter, err error) {
	if errors.Is(err, shared.ErrAccountNotFound) {
		httpx.Problem(w, http.StatusNotFound, "Account Not Found", err.Error())
		return
	}
	h.logger.Error("account balance", slog.Any("error", err))
	httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
}

func toBalanceViews(nodes []*accounts.Node) []balanceNodeView {
	out := make([]balanceNodeView, 0, len(nodes))
	for _, n := range nodes {
		out = append(out, balanceNodeView{
			ID:       n.Account.ID,
			Code:     n.Account.Code,
			Name:     n.Account.Name,
			Type:     string(n.Account.Type),
			IsGroup:  n.Account.IsGroup,
			Balance:  n.Balance,
			Children: toBalanceViews(n.Children),
		})
	}
	return out
}

func parseAsOf(raw string) (time.Time, error) {
	if raw == "" {
		now := time.Now().UTC()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC), nil
	}
	return time.Parse(dateLayout, raw)
}

func parseRange(from, to string) (time.Time, time.Time, error) {
	start, err := time.Parse(dateLayout, from)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	end, err := time.Parse(dateLayout, to)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	if end.Before(start) {
		return time.Time{}, time.Time{}, errors.New("to must not precede from")
	}
	return start, end, nil
}
