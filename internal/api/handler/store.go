package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/jmerrifield20/fellows/internal/apierr"
	"github.com/jmerrifield20/fellows/internal/reporting"
	"github.com/jmerrifield20/fellows/internal/store"
	"go.uber.org/zap"
)

// storeSvc is the subset of store.Service used by StoreHandler.
type storeSvc interface {
	ListItems(ctx context.Context, accountID int64) ([]*store.Item, error)
	GetItem(ctx context.Context, accountID, itemID int64) (*store.Item, error)
	SearchItems(ctx context.Context, accountID int64, name string) ([]*store.Item, error)
	BuyItem(ctx context.Context, accountID int64, ref store.ItemRef) (*store.Purchase, error)
	ListTransactions(ctx context.Context, accountID int64) ([]*store.Transaction, error)
}

// StoreHandler serves the points store. Every route requires a token.
type StoreHandler struct {
	base
	store storeSvc
	auth  gin.HandlerFunc
}

// NewStoreHandler creates a StoreHandler.
func NewStoreHandler(svc storeSvc, auth gin.HandlerFunc, reporter reporting.Reporter, logger *zap.Logger) *StoreHandler {
	return &StoreHandler{base: newBase(reporter, logger), store: svc, auth: auth}
}

// Register registers StoreHandler routes on the given router group.
func (h *StoreHandler) Register(rg *gin.RouterGroup) {
	authed := rg.Group("", h.auth)
	authed.GET("/store", h.ListItems)
	authed.GET("/store/:id", h.GetItem)
	authed.GET("/store/:id/name", h.SearchItems)
	authed.POST("/buy", h.Buy)
	authed.GET("/transactions", h.ListTransactions)
}

// ListItems handles GET /store.
func (h *StoreHandler) ListItems(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	items, err := h.store.ListItems(c.Request.Context(), p.AccountID)
	if err != nil {
		h.fail(c, "list items", err)
		return
	}
	c.JSON(http.StatusOK, items)
}

// GetItem handles GET /store/:id.
func (h *StoreHandler) GetItem(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil {
		h.fail(c, "get item", apierr.ItemNotAvailable)
		return
	}
	item, err := h.store.GetItem(c.Request.Context(), p.AccountID, id)
	if err != nil {
		h.fail(c, "get item", err)
		return
	}
	c.JSON(http.StatusOK, item)
}

// SearchItems handles GET /store/:id/name, where :id is a name fragment.
func (h *StoreHandler) SearchItems(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	items, err := h.store.SearchItems(c.Request.Context(), p.AccountID, c.Param("id"))
	if err != nil {
		h.fail(c, "search items", err)
		return
	}
	c.JSON(http.StatusOK, items)
}

// Buy handles POST /buy with {"itemId": n} or {"itemName": "..."}.
func (h *StoreHandler) Buy(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	var ref store.ItemRef
	if !h.bind(c, "buy", &ref) {
		recordPurchase("invalid")
		return
	}

	purchase, err := h.store.BuyItem(c.Request.Context(), p.AccountID, ref)
	if err != nil {
		var ae *apierr.Error
		switch {
		case errors.As(err, &ae):
			recordPurchase(strconv.Itoa(ae.Code))
		default:
			recordPurchase("error")
		}
		h.fail(c, "buy", err)
		return
	}

	recordPurchase("success")
	success(c, http.StatusOK, "Successfully bought.", gin.H{
		"details": gin.H{"availablePoints": purchase.AvailablePoints},
	})
}

// ListTransactions handles GET /transactions.
func (h *StoreHandler) ListTransactions(c *gin.Context) {
	p, ok := principal(c)
	if !ok {
		return
	}
	txs, err := h.store.ListTransactions(c.Request.Context(), p.AccountID)
	if err != nil {
		h.fail(c, "list transactions", err)
		return
	}
	c.JSON(http.StatusOK, txs)
}
