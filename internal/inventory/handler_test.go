package inventory

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/require"
)

func newTestRouter(t *testing.T, cfg ServiceConfig) http.Handler {
	t.Helper()
	svc, _ := newTestService(cfg)
	handler := NewHandler(slog.New(slog.NewTextHandler(io.Discard, nil)), svc, nil)
	router := chi.NewRouter()
	handler.MountRoutes(router)
	return router
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, reader)
	if reader != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decodeBody[T any](t *testing.T, rr *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &out))
	return out
}

func TestPostMovementEndpoint(t *testing.T) {
	router := newTestRouter(t, ServiceConfig{})

	rr := doJSON(t, router, http.MethodPost, "/movements", map[string]any{
		"warehouse_id": 1,
		"item_id":      10,
		"kind":         "RECEIPT",
		"quantity":     "10",
		"unit_cost":    "100",
		"ref_type":     "PURCHASE",
		"ref_id":       "PO-1",
	})
	require.Equal(t, http.StatusCreated, rr.Code)

	resp := decodeBody[movementResponse](t, rr)
	require.Equal(t, "0", resp.StockBefore)
	require.Equal(t, "10", resp.StockAfter)
	require.Equal(t, "100", resp.AvgCost)
	require.NotEmpty(t, resp.MovementID)

	rr = doJSON(t, router, http.MethodGet, "/levels/1/10", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	level := decodeBody[levelRow](t, rr)
	require.Equal(t, "10", level.Physical)
	require.Equal(t, "1000", level.Value)
}

func TestPostMovementRejectsMissingFields(t *testing.T) {
	router := newTestRouter(t, ServiceConfig{})

	rr := doJSON(t, router, http.MethodPost, "/movements", map[string]any{
		"warehouse_id": 1,
		"kind":         "RECEIPT",
	})
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestPostMovementDuplicateReferenceConflict(t *testing.T) {
	router := newTestRouter(t, ServiceConfig{})
	body := map[string]any{
		"warehouse_id": 1,
		"item_id":      10,
		"kind":         "RECEIPT",
		"quantity":     "5",
		"unit_cost":    "40",
		"ref_type":     "PURCHASE",
		"ref_id":       "PO-7",
	}

	rr := doJSON(t, router, http.MethodPost, "/movements", body)
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = doJSON(t, router, http.MethodPost, "/movements", body)
	require.Equal(t, http.StatusConflict, rr.Code)
}

func TestPostMovementInsufficientStock(t *testing.T) {
	router := newTestRouter(t, ServiceConfig{})

	rr := doJSON(t, router, http.MethodPost, "/movements", map[string]any{
		"warehouse_id": 1,
		"item_id":      10,
		"kind":         "SALE",
		"quantity":     "3",
		"ref_type":     "INVOICE",
		"ref_id":       "INV-1",
	})
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)
}

func TestTransferEndpointRejectsSameWarehouse(t *testing.T) {
	router := newTestRouter(t, ServiceConfig{})

	rr := doJSON(t, router, http.MethodPost, "/transfers", map[string]any{
		"source_warehouse_id": 1,
		"dest_warehouse_id":   1,
		"item_id":             10,
		"quantity":            "5",
		"ref_type":            "TRANSFER",
		"ref_id":              "TR-1",
	})
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestTransferEndpointMovesStock(t *testing.T) {
	router := newTestRouter(t, ServiceConfig{})

	rr := doJSON(t, router, http.MethodPost, "/movements", map[string]any{
		"warehouse_id": 1,
		"item_id":      10,
		"kind":         "RECEIPT",
		"quantity":     "8",
		"unit_cost":    "50",
		"ref_type":     "PURCHASE",
		"ref_id":       "PO-1",
	})
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = doJSON(t, router, http.MethodPost, "/transfers", map[string]any{
		"source_warehouse_id": 1,
		"dest_warehouse_id":   2,
		"item_id":             10,
		"quantity":            "3",
		"ref_type":            "TRANSFER",
		"ref_id":              "TR-1",
	})
	require.Equal(t, http.StatusCreated, rr.Code)

	pair := decodeBody[map[string]movementResponse](t, rr)
	require.Equal(t, "5", pair["outbound"].StockAfter)
	require.Equal(t, "3", pair["inbound"].StockAfter)
	require.Equal(t, "50", pair["inbound"].AvgCost)
}

func TestReservationEndpointsLifecycle(t *testing.T) {
	router := newTestRouter(t, ServiceConfig{})

	rr := doJSON(t, router, http.MethodPost, "/movements", map[string]any{
		"warehouse_id": 1,
		"item_id":      10,
		"kind":         "RECEIPT",
		"quantity":     "10",
		"unit_cost":    "20",
		"ref_type":     "PURCHASE",
		"ref_id":       "PO-1",
	})
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = doJSON(t, router, http.MethodPost, "/reservations", map[string]any{
		"warehouse_id": 1,
		"item_id":      10,
		"quantity":     "6",
		"ref_type":     "ORDER",
		"ref_id":       "SO-1",
	})
	require.Equal(t, http.StatusCreated, rr.Code)
	created := decodeBody[reservationResponse](t, rr)
	require.Equal(t, "ACTIVE", created.Status)
	require.Equal(t, "6", created.Remaining)

	// Reserving past availability rejects the whole request.
	rr = doJSON(t, router, http.MethodPost, "/reservations", map[string]any{
		"warehouse_id": 1,
		"item_id":      10,
		"quantity":     "6",
		"ref_type":     "ORDER",
		"ref_id":       "SO-2",
	})
	require.Equal(t, http.StatusUnprocessableEntity, rr.Code)

	rr = doJSON(t, router, http.MethodPost, "/reservations/"+created.ID+"/fulfill", map[string]any{
		"quantity": "4",
	})
	require.Equal(t, http.StatusOK, rr.Code)
	fulfilled := decodeBody[reservationResponse](t, rr)
	require.Equal(t, "ACTIVE", fulfilled.Status)
	require.Equal(t, "2", fulfilled.Remaining)

	rr = doJSON(t, router, http.MethodPost, "/reservations/"+created.ID+"/release", map[string]any{
		"reason": "order cancelled",
	})
	require.Equal(t, http.StatusOK, rr.Code)
	released := decodeBody[reservationResponse](t, rr)
	require.Equal(t, "CANCELLED", released.Status)
	require.Equal(t, "order cancelled", released.ReleaseReason)

	rr = doJSON(t, router, http.MethodGet, "/reservations/"+created.ID, nil)
	require.Equal(t, http.StatusOK, rr.Code)
}

func TestReservationEndpointNotFound(t *testing.T) {
	router := newTestRouter(t, ServiceConfig{})

	rr := doJSON(t, router, http.MethodGet, "/reservations/6a6a2f7b-7b2c-4a7d-9a3e-111111111111", nil)
	require.Equal(t, http.StatusNotFound, rr.Code)

	rr = doJSON(t, router, http.MethodGet, "/reservations/not-a-uuid", nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestLevelEndpointReadsUnknownKeyAsZero(t *testing.T) {
	router := newTestRouter(t, ServiceConfig{})

	// A key with no movements is valid and reads as zero stock, not 404.
	rr := doJSON(t, router, http.MethodGet, "/levels/1/999", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	level := decodeBody[levelRow](t, rr)
	require.Equal(t, int64(1), level.WarehouseID)
	require.Equal(t, int64(999), level.ItemID)
	require.Equal(t, "0", level.Physical)
	require.Equal(t, "0", level.Reserved)
	require.Equal(t, "0", level.Available)
	require.Equal(t, "0", level.Value)
}

func TestCountEndpointAdjusts(t *testing.T) {
	router := newTestRouter(t, ServiceConfig{})

	rr := doJSON(t, router, http.MethodPost, "/movements", map[string]any{
		"warehouse_id": 1,
		"item_id":      10,
		"kind":         "RECEIPT",
		"quantity":     "10",
		"unit_cost":    "30",
		"ref_type":     "PURCHASE",
		"ref_id":       "PO-1",
	})
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = doJSON(t, router, http.MethodPost, "/counts", map[string]any{
		"warehouse_id": 1,
		"item_id":      10,
		"counted":      "7",
		"ref_type":     "STOCKTAKE",
		"ref_id":       "ST-1",
	})
	require.Equal(t, http.StatusOK, rr.Code)
	adjusted := decodeBody[movementResponse](t, rr)
	require.Equal(t, "10", adjusted.StockBefore)
	require.Equal(t, "7", adjusted.StockAfter)
}

func TestReconciliationEndpointClean(t *testing.T) {
	router := newTestRouter(t, ServiceConfig{})

	rr := doJSON(t, router, http.MethodPost, "/movements", map[string]any{
		"warehouse_id": 1,
		"item_id":      10,
		"kind":         "RECEIPT",
		"quantity":     "4",
		"unit_cost":    "25",
		"ref_type":     "PURCHASE",
		"ref_id":       "PO-1",
	})
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = doJSON(t, router, http.MethodGet, "/reconciliation?warehouse_id=1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	report := decodeBody[struct {
		Clean bool `json:"clean"`
	}](t, rr)
	require.True(t, report.Clean)

	rr = doJSON(t, router, http.MethodGet, "/reconciliation", nil)
	require.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestValuationEndpoint(t *testing.T) {
	router := newTestRouter(t, ServiceConfig{})

	rr := doJSON(t, router, http.MethodPost, "/movements", map[string]any{
		"warehouse_id": 1,
		"item_id":      10,
		"kind":         "RECEIPT",
		"quantity":     "6",
		"unit_cost":    "100",
		"ref_type":     "PURCHASE",
		"ref_id":       "PO-1",
	})
	require.Equal(t, http.StatusCreated, rr.Code)

	rr = doJSON(t, router, http.MethodGet, "/valuation?warehouse_id=1", nil)
	require.Equal(t, http.StatusOK, rr.Code)
	report := decodeBody[struct {
		TotalValue string `json:"total_value"`
	}](t, rr)
	require.Equal(t, "600", report.TotalValue)
}
