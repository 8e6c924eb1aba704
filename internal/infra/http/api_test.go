package http

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/Spok95/stockdesk/internal/app/inventory"
	"github.com/Spok95/stockdesk/internal/app/ledger"
	"github.com/Spok95/stockdesk/internal/app/stocktaking"
	"github.com/Spok95/stockdesk/internal/domain/users"
	"github.com/Spok95/stockdesk/internal/infra/metrics"
	"github.com/Spok95/stockdesk/internal/infra/notify"
	"github.com/Spok95/stockdesk/internal/store/memory"
)

type nopNotifier struct{}

func (nopNotifier) Publish(notify.Notice) {}

type apiFixture struct {
	h       http.Handler
	st      *memory.Store
	admin   users.User
	manager users.User
	alice   users.User
}

func newAPIFixture(t *testing.T) *apiFixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	m := metrics.Nop()
	st := memory.New()
	led := ledger.New(st, log, m)
	st2 := stocktaking.NewEngine(st, nopNotifier{}, log, m)
	t.Cleanup(st2.Wait)

	f := &apiFixture{st: st}
	f.h = NewAPI(Deps{
		Ledger:      led,
		Inventory:   inventory.NewEngine(st, led, nopNotifier{}, log, m),
		Stocktaking: st2,
		Users:       st.Users(),
		Log:         log,
		Metrics:     m,
	})

	mk := func(name string, role users.Role) users.User {
		u, err := st.Users().Create(context.Background(), users.New{Username: name, RealName: name, Role: role})
		require.NoError(t, err)
		return *u
	}
	f.admin = mk("admin", users.RoleSystemAdmin)
	f.manager = mk("manager", users.RoleInventoryManager)
	f.alice = mk("alice", users.RoleRegular)
	return f
}

func (f *apiFixture) do(t *testing.T, as *users.User, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if as != nil {
		req.Header.Set(headerUserID, strconv.FormatInt(as.ID, 10))
	}
	w := httptest.NewRecorder()
	f.h.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func (f *apiFixture) material(t *testing.T, code string, stock float64) int64 {
	t.Helper()
	w := f.do(t, &f.manager, http.MethodPost, "/api/materials", gin.H{
		"material_code": code, "material_name": "Material " + code, "category": "metal",
		"unit": "kg", "current_stock": stock, "min_stock": 5,
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	return int64(decode(t, w)["id"].(float64))
}

func TestIdentify(t *testing.T) {
	f := newAPIFixture(t)

	w := f.do(t, nil, http.MethodGet, "/api/materials", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	_, err := uuid.Parse(w.Header().Get(headerRequestID))
	assert.NoError(t, err)

	ghost := users.User{ID: 999}
	w = f.do(t, &ghost, http.MethodGet, "/api/materials", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = f.do(t, &f.alice, http.MethodGet, "/api/materials", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRequestIDEchoed(t *testing.T) {
	f := newAPIFixture(t)
	id := uuid.NewString()
	req := httptest.NewRequest(http.MethodGet, "/api/materials", nil)
	req.Header.Set(headerRequestID, id)
	req.Header.Set(headerUserID, strconv.FormatInt(f.alice.ID, 10))
	w := httptest.NewRecorder()
	f.h.ServeHTTP(w, req)
	assert.Equal(t, id, w.Header().Get(headerRequestID))
}

func TestCreateUserRequiresAdmin(t *testing.T) {
	f := newAPIFixture(t)
	body := gin.H{"username": "carol", "real_name": "Carol", "role": "regular_user"}

	w := f.do(t, &f.manager, http.MethodPost, "/api/users", body)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, &f.admin, http.MethodPost, "/api/users", body)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	assert.Equal(t, "regular_user", decode(t, w)["role"])
}

func TestMaterialEndpoints(t *testing.T) {
	f := newAPIFixture(t)
	id := f.material(t, "M-1", 3)

	w := f.do(t, &f.alice, http.MethodGet, "/api/materials/"+strconv.FormatInt(id, 10), nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode(t, w)
	assert.Equal(t, 3.0, got["current_stock"])
	assert.Equal(t, true, got["is_low_stock"])

	w = f.do(t, &f.manager, http.MethodPatch, "/api/materials/"+strconv.FormatInt(id, 10), gin.H{"min_stock": 1, "current_stock": 100})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	got = decode(t, w)
	assert.Equal(t, 3.0, got["current_stock"])
	assert.Equal(t, false, got["is_low_stock"])

	w = f.do(t, &f.alice, http.MethodGet, "/api/materials?low_stock=true", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 0.0, decode(t, w)["meta"].(map[string]any)["total"])

	w = f.do(t, &f.alice, http.MethodGet, "/api/materials/999", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(t, &f.alice, http.MethodGet, "/api/materials/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestBindingErrors(t *testing.T) {
	f := newAPIFixture(t)
	id := f.material(t, "M-1", 10)

	cases := []struct {
		name string
		path string
		body any
	}{
		{"bad category", "/api/materials", gin.H{"material_code": "X", "material_name": "X", "category": "wood", "unit": "kg"}},
		{"negative stock", "/api/materials", gin.H{"material_code": "X", "material_name": "X", "category": "metal", "unit": "kg", "current_stock": -1}},
		{"bad type", "/api/transactions", gin.H{"transaction_type": "move", "material_id": id, "quantity": 1}},
		{"zero quantity", "/api/transactions", gin.H{"transaction_type": "in", "material_id": id, "quantity": 0}},
		{"no materials", "/api/stocktaking", gin.H{"task_name": "Q1", "material_ids": []int64{}}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			w := f.do(t, &f.manager, http.MethodPost, tc.path, tc.body)
			assert.Equal(t, http.StatusBadRequest, w.Code, w.Body.String())
		})
	}
}

func TestTransactionFlow(t *testing.T) {
	f := newAPIFixture(t)
	id := f.material(t, "M-1", 10)

	w := f.do(t, &f.alice, http.MethodPost, "/api/transactions", gin.H{
		"transaction_type": "out", "material_id": id, "quantity": 4, "unit_price": "2.50",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode(t, w)
	assert.Equal(t, "pending", created["status"])
	txPath := "/api/transactions/" + strconv.FormatInt(int64(created["id"].(float64)), 10)

	w = f.do(t, &f.alice, http.MethodPost, txPath+"/decision", gin.H{"action": "approve"})
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, &f.manager, http.MethodPost, txPath+"/decision", gin.H{"action": "approve", "remark": "ok"})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "approved", decode(t, w)["status"])

	w = f.do(t, &f.manager, http.MethodPost, txPath+"/decision", gin.H{"action": "reject"})
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(t, &f.alice, http.MethodGet, txPath, nil)
	require.Equal(t, http.StatusOK, w.Code)
	got := decode(t, w)
	assert.Equal(t, "10", got["total_amount"])

	w = f.do(t, &f.alice, http.MethodGet, "/api/materials/"+strconv.FormatInt(id, 10), nil)
	assert.Equal(t, 6.0, decode(t, w)["current_stock"])

	w = f.do(t, &f.alice, http.MethodGet, "/api/materials/"+strconv.FormatInt(id, 10)+"/history", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Len(t, decode(t, w)["data"], 2)

	w = f.do(t, &f.alice, http.MethodPost, "/api/transactions", gin.H{
		"transaction_type": "out", "material_id": id, "quantity": 50,
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code, w.Body.String())
}

func TestCancelTransaction(t *testing.T) {
	f := newAPIFixture(t)
	id := f.material(t, "M-1", 10)

	w := f.do(t, &f.alice, http.MethodPost, "/api/transactions", gin.H{"transaction_type": "in", "material_id": id, "quantity": 1})
	require.Equal(t, http.StatusCreated, w.Code)
	txPath := "/api/transactions/" + strconv.FormatInt(int64(decode(t, w)["id"].(float64)), 10)

	w = f.do(t, &f.manager, http.MethodPost, txPath+"/cancel", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, &f.alice, http.MethodPost, txPath+"/cancel", nil)
	assert.Equal(t, http.StatusNoContent, w.Code)

	w = f.do(t, &f.alice, http.MethodGet, "/api/transactions?status=cancelled", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1.0, decode(t, w)["meta"].(map[string]any)["total"])
}

func TestStocktakingFlow(t *testing.T) {
	f := newAPIFixture(t)
	a := f.material(t, "M-1", 10)
	b := f.material(t, "M-2", 20)

	w := f.do(t, &f.manager, http.MethodPost, "/api/stocktaking", gin.H{"task_name": "Q1", "material_ids": []int64{a, b}})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	created := decode(t, w)
	assert.Equal(t, 2.0, created["item_count"])
	taskPath := "/api/stocktaking/" + strconv.FormatInt(int64(created["id"].(float64)), 10)

	w = f.do(t, &f.alice, http.MethodGet, taskPath, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	w = f.do(t, &f.manager, http.MethodPost, taskPath+"/complete", gin.H{"update_stock": true})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, &f.manager, http.MethodGet, taskPath, nil)
	require.Equal(t, http.StatusOK, w.Code)
	items := decode(t, w)["items"].([]any)
	require.Len(t, items, 2)

	actual := map[float64]float64{float64(a): 12, float64(b): 15}
	for _, raw := range items {
		it := raw.(map[string]any)
		itemPath := taskPath + "/items/" + strconv.FormatInt(int64(it["id"].(float64)), 10)
		w = f.do(t, &f.manager, http.MethodPut, itemPath, gin.H{"actual_stock": actual[it["material_id"].(float64)]})
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	}

	w = f.do(t, &f.manager, http.MethodPut, taskPath+"/items/1", gin.H{})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(t, &f.manager, http.MethodPost, taskPath+"/complete", gin.H{"update_stock": true})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	rep := decode(t, w)
	assert.Equal(t, 1.0, rep["surplus_count"])
	assert.Equal(t, 1.0, rep["shortage_count"])
	assert.Equal(t, 2.0, rep["total_surplus"])
	assert.Equal(t, 5.0, rep["total_shortage"])

	w = f.do(t, &f.alice, http.MethodGet, "/api/materials/"+strconv.FormatInt(b, 10), nil)
	assert.Equal(t, 15.0, decode(t, w)["current_stock"])

	w = f.do(t, &f.manager, http.MethodPost, taskPath+"/cancel", nil)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = f.do(t, &f.manager, http.MethodGet, taskPath+"/report", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = f.do(t, &f.manager, http.MethodGet, taskPath+"/export", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "stocktaking_")
	wb, err := excelize.OpenReader(bytes.NewReader(w.Body.Bytes()))
	require.NoError(t, err)
	defer func() { _ = wb.Close() }()
	assert.Contains(t, wb.GetSheetList(), "Items")
}

func TestUnmatchedRoute(t *testing.T) {
	f := newAPIFixture(t)
	w := f.do(t, &f.alice, http.MethodGet, "/api/nowhere", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}
