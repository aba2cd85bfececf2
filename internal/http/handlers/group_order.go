package handlers

import (
	"errors"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"grouporder-services/internal/docstore"
	"grouporder-services/internal/grouporder"
	"grouporder-services/internal/middleware"
	"grouporder-services/pkg/response"

	"go.uber.org/zap"
)

const (
	groupCodeAlphabet = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	groupCodeLength   = 6
	groupCodeAttempts = 5
)

type GroupOrderSummary struct {
	ID              string    `json:"id"`
	Code            string    `json:"code"`
	OwnerID         string    `json:"ownerId"`
	Status          string    `json:"status"`
	NumPeople       int       `json:"numPeople"`
	OrderPlaced     bool      `json:"orderPlaced"`
	AllFinished     bool      `json:"allFinished"`
	ShowPricesToAll bool      `json:"showPricesToAll"`
	CreatedAt       time.Time `json:"createdAt"`
}

type GroupOrderDetail struct {
	GroupOrderSummary
	Participants []grouporder.Participant    `json:"participants"`
	SharedItems  []grouporder.SharedCartLine `json:"sharedItems"`
}

func summarize(o grouporder.GroupOrder) GroupOrderSummary {
	return GroupOrderSummary{
		ID:              o.ID,
		Code:            o.Code,
		OwnerID:         o.OwnerID,
		Status:          o.Status,
		NumPeople:       len(o.Participants),
		OrderPlaced:     o.OrderPlaced,
		AllFinished:     o.AllFinished,
		ShowPricesToAll: o.ShowPricesToAll,
		CreatedAt:       o.CreatedAt,
	}
}

func decodeGroupOrder(snap docstore.Snapshot) (grouporder.GroupOrder, error) {
	var o grouporder.GroupOrder
	if err := snap.Decode(&o); err != nil {
		return grouporder.GroupOrder{}, err
	}
	o.ID = snap.Key.ID
	return o, nil
}

var newGroupOrderCode = generateGroupOrderCode

func generateGroupOrderCode() string {
	var code strings.Builder
	for i := 0; i < groupCodeLength; i++ {
		code.WriteByte(groupCodeAlphabet[rand.Intn(len(groupCodeAlphabet))])
	}
	return code.String()
}

// GroupOrderCreate opens a new group order owned by the caller.
func (h *Handler) GroupOrderCreate(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	authCtx, ok := middleware.GetAuthContext(ctx)
	if !ok {
		response.Error(w, http.StatusUnauthorized, "UNAUTHORIZED", "Authorization token required")
		return
	}

	// The store rejects a taken code atomically, so a clash just means another draw.
	now := time.Now()
	var (
		id   string
		code string
	)
	for attempt := 0; attempt < groupCodeAttempts && id == ""; attempt++ {
		candidate := newGroupOrderCode()
		created, err := h.Store.Create(ctx, grouporder.Collection, grouporder.NewDocumentFields(candidate, authCtx.UserID, now))
		switch {
		case err == nil:
			id, code = created, candidate
		case errors.Is(err, docstore.ErrConflict):
			h.Logger.Debug("group order code taken", zap.String("code", candidate))
		default:
			h.Logger.Error("group order create failed", zap.Error(err))
			response.Error(w, http.StatusInternalServerError, "INTERNAL_ERROR", "Failed to create group order")
			return
		}
	}
	if id == "" {
		response.Error(w, http.StatusServiceUnavailable, "CODE_EXHAUSTED", "Could not allocate a session code")
		return
	}

	h.Logger.Info("group order created", zap.String("sessionId", id), zap.String("code", code), zap.String("ownerId", authCtx.UserID))
	response.Created(w, GroupOrderSummary{
		ID:          id,
		Code:        code,
		OwnerID:     authCtx.UserID,
		Status:      grouporder.StatusSelecting,
		AllFinished: true,
		CreatedAt:   now.UTC(),
	})
}

// GroupOrderByCode resolves a join code to its session.
func (h *Handler) GroupOrderByCode(w http.ResponseWriter, r *http.Request) {
	code := strings.ToUpper(readPathString(r, "code"))
	if code == "" {
		response.Error(w, http.StatusBadRequest, "VALIDATION_ERROR", "Session code is required")
		return
	}
	snap, err := h.Store.FindOne(r.Context(), grouporder.Collection, "code", code)
	if err != nil {
		h.writeStoreError(w, err, "group order")
		return
	}
	o, err := decodeGroupOrder(snap)
	if err != nil {
		h.writeStoreError(w, err, "group order")
		return
	}
	response.Success(w, summarize(o))
}

func (h *Handler) GroupOrderDetail(w http.ResponseWriter, r *http.Request) {
	snap, err := h.Store.Get(r.Context(), grouporder.Collection, readPathString(r, "id"))
	if err != nil {
		h.writeStoreError(w, err, "group order")
		return
	}
	o, err := decodeGroupOrder(snap)
	if err != nil {
		h.writeStoreError(w, err, "group order")
		return
	}
	response.Success(w, GroupOrderDetail{
		GroupOrderSummary: summarize(o),
		Participants:      o.Participants,
		SharedItems:       o.SharedItems,
	})
}

// GroupOrderTotals prices the stored document. Amounts are redacted unless the caller
// owns the session or the owner has shared prices.
func (h *Handler) GroupOrderTotals(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	snap, err := h.Store.Get(ctx, grouporder.Collection, readPathString(r, "id"))
	if err != nil {
		h.writeStoreError(w, err, "group order")
		return
	}
	o, err := decodeGroupOrder(snap)
	if err != nil {
		h.writeStoreError(w, err, "group order")
		return
	}

	isOwner := false
	if authCtx, ok := middleware.GetAuthContext(ctx); ok {
		isOwner = authCtx.UserID == o.OwnerID
	}
	totals := grouporder.ComputeTotals(o, h.Catalog)
	if !grouporder.PricesVisible(isOwner, o) {
		totals = totals.Redact()
	}
	response.Success(w, totals)
}

// GroupOrderReceipt returns the receipt link once the placed order was recorded.
func (h *Handler) GroupOrderReceipt(w http.ResponseWriter, r *http.Request) {
	if h.Receipts == nil {
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Receipts are not enabled")
		return
	}
	ctx := r.Context()
	id := readPathString(r, "id")
	url, err := h.Receipts.ReceiptURL(ctx, id)
	if err != nil {
		h.Logger.Debug("receipt lookup failed", zap.String("sessionId", id), zap.Error(err))
	}
	if err != nil || url == nil || *url == "" {
		response.Error(w, http.StatusNotFound, "NOT_FOUND", "Receipt not available yet")
		return
	}
	response.Success(w, map[string]any{"sessionId": id, "receiptUrl": *url})
}

// CatalogList returns the menu in load order.
func (h *Handler) CatalogList(w http.ResponseWriter, r *http.Request) {
	items := h.Catalog.Items()
	if items == nil {
		items = []grouporder.CatalogItem{}
	}
	response.Success(w, items)
}
