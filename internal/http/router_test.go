package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"grouporder-services/internal/auth"
	"grouporder-services/internal/config"
	"grouporder-services/internal/docstore"
	"grouporder-services/internal/grouporder"
	"grouporder-services/internal/http/handlers"
	"grouporder-services/internal/metrics"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSecret = "router-secret"

type fakeReceipts map[string]string

func (f fakeReceipts) ReceiptURL(ctx context.Context, sessionID string) (*string, error) {
	url, ok := f[sessionID]
	if !ok {
		return nil, nil
	}
	return &url, nil
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   string          `json:"error"`
}

func newTestRouter(t *testing.T, receipts handlers.ReceiptLookup) (http.Handler, *docstore.PebbleStore) {
	t.Helper()
	store, err := docstore.NewMemoryStore()
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	catalog := grouporder.NewStaticCatalog([]grouporder.CatalogItem{
		{ID: "X", Name: "Tacos", Price: 1000, Availability: grouporder.AvailabilityAvailable},
		{ID: "Y", Name: "Agua", Price: 350, Availability: grouporder.AvailabilityAvailable},
	})
	cfg := config.Config{Env: "test", JWTSecret: testSecret}
	h := &handlers.Handler{Store: store, Logger: zap.NewNop(), Config: cfg, Catalog: catalog, Receipts: receipts}
	return NewRouter(h, metrics.NewRegistry(), zap.NewNop(), cfg, nil), store
}

func do(t *testing.T, router http.Handler, method, path, userID string) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if userID != "" {
		token, err := auth.IssueAccessToken(testSecret, userID, time.Minute)
		require.NoError(t, err)
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var env envelope
	if strings.HasPrefix(rec.Header().Get("Content-Type"), "application/json") {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	}
	return rec, env
}

func TestHealthAndMetrics(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	rec, _ := do(t, router, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", rec.Body.String())
	assert.NotEmpty(t, rec.Header().Get("X-Request-Id"))

	rec, _ = do(t, router, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "grouporder_http_request_duration_seconds")
}

func TestGroupOrderCreateAndLookup(t *testing.T) {
	router, _ := newTestRouter(t, nil)

	rec, _ := do(t, router, http.MethodPost, "/api/group-orders", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, env := do(t, router, http.MethodPost, "/api/group-orders", "owner")
	require.Equal(t, http.StatusCreated, rec.Code)
	var created handlers.GroupOrderSummary
	require.NoError(t, json.Unmarshal(env.Data, &created))
	assert.Len(t, created.Code, 6)
	assert.NotContains(t, created.Code, "O")
	assert.NotContains(t, created.Code, "1")
	assert.Equal(t, "owner", created.OwnerID)
	assert.Equal(t, grouporder.StatusSelecting, created.Status)

	rec, env = do(t, router, http.MethodGet, "/api/group-orders/code/"+strings.ToLower(created.Code), "")
	require.Equal(t, http.StatusOK, rec.Code)
	var found handlers.GroupOrderSummary
	require.NoError(t, json.Unmarshal(env.Data, &found))
	assert.Equal(t, created.ID, found.ID)
	assert.Equal(t, 0, found.NumPeople)

	rec, env = do(t, router, http.MethodGet, "/api/group-orders/"+created.ID, "")
	require.Equal(t, http.StatusOK, rec.Code)
	var detail handlers.GroupOrderDetail
	require.NoError(t, json.Unmarshal(env.Data, &detail))
	assert.Equal(t, created.Code, detail.Code)
	assert.Empty(t, detail.Participants)
	assert.NotNil(t, detail.SharedItems)

	rec, env = do(t, router, http.MethodGet, "/api/group-orders/code/ZZZZZZ", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", env.Error)

	rec, _ = do(t, router, http.MethodGet, "/api/group-orders/missing-id", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestGroupOrderTotalsVisibility(t *testing.T) {
	router, store := newTestRouter(t, nil)
	ctx := context.Background()

	id, err := store.Create(ctx, grouporder.Collection, grouporder.NewDocumentFields("K7PQ2M", "owner", time.Now()))
	require.NoError(t, err)
	require.NoError(t, store.Update(ctx, grouporder.Collection, id, map[string]any{
		"participants": []grouporder.Participant{
			{PersonIndex: 0, Name: "Ana", Items: []grouporder.CartLine{{ID: "X", Quantity: 1}}},
		},
		"sharedItems": []grouporder.SharedCartLine{{ItemID: "Y", Quantity: 1, PersonIDs: []string{}}},
	}))

	rec, env := do(t, router, http.MethodGet, "/api/group-orders/"+id+"/totals", "owner")
	require.Equal(t, http.StatusOK, rec.Code)
	var totals grouporder.Totals
	require.NoError(t, json.Unmarshal(env.Data, &totals))
	assert.Equal(t, int64(1350), totals.GrandTotal)
	assert.False(t, totals.PricesHidden)

	rec, env = do(t, router, http.MethodGet, "/api/group-orders/"+id+"/totals", "guest")
	require.Equal(t, http.StatusOK, rec.Code)
	totals = grouporder.Totals{}
	require.NoError(t, json.Unmarshal(env.Data, &totals))
	assert.True(t, totals.PricesHidden)
	assert.Zero(t, totals.GrandTotal)
	require.Len(t, totals.Participants, 1)
	assert.Equal(t, "Tacos", totals.Participants[0].Lines[0].Name)

	require.NoError(t, store.Update(ctx, grouporder.Collection, id, map[string]any{"showPricesToAll": true}))
	_, env = do(t, router, http.MethodGet, "/api/group-orders/"+id+"/totals", "")
	totals = grouporder.Totals{}
	require.NoError(t, json.Unmarshal(env.Data, &totals))
	assert.False(t, totals.PricesHidden)
	assert.Equal(t, int64(1350), totals.GrandTotal)
}

func TestReceiptAndCatalog(t *testing.T) {
	router, _ := newTestRouter(t, fakeReceipts{"sess-1": "https://cdn.example/receipts/sess-1.pdf"})

	rec, env := do(t, router, http.MethodGet, "/api/group-orders/sess-1/receipt", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, string(env.Data), "receipts/sess-1.pdf")

	rec, _ = do(t, router, http.MethodGet, "/api/group-orders/sess-2/receipt", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, env = do(t, router, http.MethodGet, "/api/catalog", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var items []grouporder.CatalogItem
	require.NoError(t, json.Unmarshal(env.Data, &items))
	require.Len(t, items, 2)
	assert.Equal(t, "X", items[0].ID)
}
