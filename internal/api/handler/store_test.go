package handler_test

import (
	"context"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jmerrifield20/fellows/internal/api/handler"
	"github.com/jmerrifield20/fellows/internal/apierr"
	"github.com/jmerrifield20/fellows/internal/store"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubStore keeps one balance for account 1 and a fixed catalog.
type stubStore struct {
	mu      sync.Mutex
	balance int
	items   map[int64]*store.Item
	owned   map[int64]bool
	txs     []*store.Transaction
}

func newStubStore() *stubStore {
	return &stubStore{
		balance: 50,
		items: map[int64]*store.Item{
			1: {ID: 1, Name: "Notebook", Description: "Dotted", Points: 30, Active: true},
			2: {ID: 2, Name: "Hoodie", Description: "Navy", Points: 80, Active: true},
		},
		owned: map[int64]bool{},
	}
}

func (s *stubStore) view(it *store.Item) *store.Item {
	cp := *it
	cp.Purchased = s.owned[it.ID]
	return &cp
}

func (s *stubStore) ListItems(context.Context, int64) ([]*store.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return []*store.Item{s.view(s.items[1]), s.view(s.items[2])}, nil
}

func (s *stubStore) GetItem(_ context.Context, _ int64, id int64) (*store.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[id]
	if !ok {
		return nil, apierr.ItemNotAvailable
	}
	return s.view(it), nil
}

func (s *stubStore) SearchItems(_ context.Context, _ int64, name string) ([]*store.Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := []*store.Item{}
	for id := int64(1); id <= 2; id++ {
		if strings.Contains(strings.ToLower(s.items[id].Name), strings.ToLower(name)) {
			out = append(out, s.view(s.items[id]))
		}
	}
	return out, nil
}

func (s *stubStore) BuyItem(_ context.Context, accountID int64, ref store.ItemRef) (*store.Purchase, error) {
	if ref.ID == nil && ref.Name == nil {
		return nil, apierr.NonField("Either itemId or itemName field should be specified.")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	var it *store.Item
	for _, candidate := range s.items {
		if (ref.ID != nil && candidate.ID == *ref.ID) || (ref.Name != nil && strings.EqualFold(candidate.Name, *ref.Name)) {
			it = candidate
		}
	}
	if it == nil {
		return nil, apierr.ItemNotAvailable
	}
	if s.balance < it.Points {
		return nil, apierr.InsufficientPoints.WithDetails(map[string]any{
			"availablePoints": s.balance,
			"requiredPoints":  it.Points,
		})
	}
	if s.owned[it.ID] {
		return nil, apierr.ItemAlreadyOwned
	}
	s.balance -= it.Points
	s.owned[it.ID] = true
	id := it.ID
	tx := &store.Transaction{
		ID:        uuid.New(),
		AccountID: accountID,
		ItemID:    &id,
		ItemName:  it.Name,
		Points:    it.Points,
		Type:      store.TransactionBuy,
		Date:      time.Now().UTC(),
	}
	s.txs = append(s.txs, tx)
	return &store.Purchase{Transaction: tx, AvailablePoints: s.balance}, nil
}

func (s *stubStore) ListTransactions(context.Context, int64) ([]*store.Transaction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*store.Transaction{}, s.txs...), nil
}

func setupStore(t *testing.T) (*stubStore, http.Handler) {
	t.Helper()
	s := newStubStore()
	return s, newRouter(handler.NewStoreHandler(s, fakeAuth(), nil, zap.NewNop()))
}

func TestStore_RequiresToken(t *testing.T) {
	_, r := setupStore(t)

	for _, c := range []call{
		{method: http.MethodGet, path: "/api/store"},
		{method: http.MethodGet, path: "/api/store/1"},
		{method: http.MethodGet, path: "/api/store/note/name"},
		{method: http.MethodPost, path: "/api/buy", body: `{"itemId": 1}`},
		{method: http.MethodGet, path: "/api/transactions"},
	} {
		w := do(t, r, c)
		assert.Equal(t, http.StatusUnauthorized, w.Code, c.path)
	}
}

func TestBuy_Success(t *testing.T) {
	s, r := setupStore(t)

	w := do(t, r, call{method: http.MethodPost, path: "/api/buy", authed: true, body: `{"itemId": 1}`})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decodeObject(t, w)
	assert.Equal(t, "success", body["type"])
	assert.Equal(t, "Successfully bought.", body["message"])
	assert.Equal(t, map[string]any{"availablePoints": float64(20)}, body["details"])
	assert.Equal(t, 20, s.balance)
}

func TestBuy_ByName(t *testing.T) {
	_, r := setupStore(t)

	w := do(t, r, call{method: http.MethodPost, path: "/api/buy", authed: true, body: `{"itemName": "notebook"}`})

	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
}

func TestBuy_Failures(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		prepare    func(*stubStore)
		wantStatus int
		wantCode   int
	}{
		{"unknown item", `{"itemId": 42}`, nil, http.StatusNotFound, 201},
		{"insufficient", `{"itemId": 2}`, nil, http.StatusUnprocessableEntity, 202},
		{"already owned", `{"itemId": 1}`, func(s *stubStore) { s.owned[1] = true }, http.StatusUnprocessableEntity, 203},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			s, r := setupStore(t)
			if tc.prepare != nil {
				tc.prepare(s)
			}

			w := do(t, r, call{method: http.MethodPost, path: "/api/buy", authed: true, body: tc.body})

			require.Equal(t, tc.wantStatus, w.Code, w.Body.String())
			body := decodeObject(t, w)
			assert.Equal(t, "failure", body["type"])
			assert.EqualValues(t, tc.wantCode, body["errorCode"])
			assert.Equal(t, 50, s.balance)
		})
	}
}

func TestBuy_InsufficientDetails(t *testing.T) {
	_, r := setupStore(t)

	w := do(t, r, call{method: http.MethodPost, path: "/api/buy", authed: true, body: `{"itemId": 2}`})

	details, ok := decodeObject(t, w)["details"].(map[string]any)
	require.True(t, ok)
	assert.EqualValues(t, 50, details["availablePoints"])
	assert.EqualValues(t, 80, details["requiredPoints"])
}

func TestBuy_Validation(t *testing.T) {
	_, r := setupStore(t)

	w := do(t, r, call{method: http.MethodPost, path: "/api/buy", authed: true, body: `{}`})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, []any{"Either itemId or itemName field should be specified."}, decodeObject(t, w)["nonFieldErrors"])

	w = do(t, r, call{method: http.MethodPost, path: "/api/buy", authed: true, body: `{"itemId": "one"}`})
	require.Equal(t, http.StatusBadRequest, w.Code)
	assert.Contains(t, decodeObject(t, w), "itemId")
}

func TestStore_ListAndGet(t *testing.T) {
	s, r := setupStore(t)
	s.owned[2] = true

	w := do(t, r, call{method: http.MethodGet, path: "/api/store", authed: true})
	require.Equal(t, http.StatusOK, w.Code)
	list := decodeArray(t, w)
	require.Len(t, list, 2)
	assert.Equal(t, false, list[0]["purchased"])
	assert.Equal(t, true, list[1]["purchased"])
	assert.Equal(t, "Notebook", list[0]["name"])

	w = do(t, r, call{method: http.MethodGet, path: "/api/store/2", authed: true})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "Hoodie", decodeObject(t, w)["name"])

	w = do(t, r, call{method: http.MethodGet, path: "/api/store/99", authed: true})
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = do(t, r, call{method: http.MethodGet, path: "/api/store/abc", authed: true})
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestStore_SearchByName(t *testing.T) {
	_, r := setupStore(t)

	w := do(t, r, call{method: http.MethodGet, path: "/api/store/HOOD/name", authed: true})

	require.Equal(t, http.StatusOK, w.Code)
	list := decodeArray(t, w)
	require.Len(t, list, 1)
	assert.Equal(t, "Hoodie", list[0]["name"])
}

func TestTransactions_AfterBuy(t *testing.T) {
	_, r := setupStore(t)

	w := do(t, r, call{method: http.MethodGet, path: "/api/transactions", authed: true})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, decodeArray(t, w))

	do(t, r, call{method: http.MethodPost, path: "/api/buy", authed: true, body: `{"itemId": 1}`})

	w = do(t, r, call{method: http.MethodGet, path: "/api/transactions", authed: true})
	require.Equal(t, http.StatusOK, w.Code)
	list := decodeArray(t, w)
	require.Len(t, list, 1)
	assert.Equal(t, "BUY", list[0]["transactionType"])
	assert.EqualValues(t, 1, list[0]["item"])
	assert.EqualValues(t, 30, list[0]["points"])
	assert.NotContains(t, list[0], "accountId")
}
