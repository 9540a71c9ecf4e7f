package inventory

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/observability"
	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
	"github.com/meridian-erp/meridian-erp/internal/shared"
)

// Handler wires the inventory JSON API.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	metrics   *observability.Metrics
	validator *validator.Validate
}

// NewHandler constructs inventory handler.
func NewHandler(logger *slog.Logger, service *Service, metrics *observability.Metrics) *Handler {
	return &Handler{logger: logger, service: service, metrics: metrics, validator: validator.New()}
}

// MountRoutes registers inventory routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/movements", h.handlePostMovement)
	r.Get("/movements", h.handleListMovements)
	r.Post("/transfers", h.handleTransfer)
	r.Post("/counts", h.handleCount)
	r.Get("/levels", h.handleListLevels)
	r.Get("/levels/{warehouseID}/{itemID}", h.handleGetLevel)
	r.Post("/reservations", h.handleReserve)
	r.Get("/reservations/{id}", h.handleGetReservation)
	r.Post("/reservations/{id}/fulfill", h.handleFulfill)
	r.Post("/reservations/{id}/release", h.handleRelease)
	r.Post("/allocations", h.handleAllocate)
	r.Get("/reconciliation", h.handleReconcile)
	r.Get("/valuation", h.handleValuation)
}

type movementRequest struct {
	WarehouseID int64  `json:"warehouse_id" validate:"required"`
	ItemID      int64  `json:"item_id" validate:"required"`
	Kind        string `json:"kind" validate:"required"`
	Quantity    string `json:"quantity" validate:"required"`
	UnitCost    string `json:"unit_cost"`
	RefType     string `json:"ref_type" validate:"required"`
	RefID       string `json:"ref_id" validate:"required"`
	RefNumber   string `json:"ref_number"`
	Note        string `json:"note"`
	ActorID     int64  `json:"actor_id"`

	BatchNumber string `json:"batch_number"`
	BatchExpiry string `json:"batch_expiry"`
	Consume     []struct {
		BatchID  string `json:"batch_id" validate:"required"`
		Quantity string `json:"quantity" validate:"required"`
	} `json:"consume"`
	AcknowledgeShortage bool `json:"acknowledge_shortage"`
}

type movementResponse struct {
	MovementID  string `json:"movement_id"`
	StockBefore string `json:"stock_before"`
	StockAfter  string `json:"stock_after"`
	UnitCost    string `json:"unit_cost"`
	AvgCost     string `json:"avg_cost"`
}

func toMovementResponse(result MovementResult) movementResponse {
	return movementResponse{
		MovementID:  result.MovementID.String(),
		StockBefore: result.StockBefore.String(),
		StockAfter:  result.StockAfter.String(),
		UnitCost:    result.UnitCost.String(),
		AvgCost:     result.AvgCost.String(),
	}
}

func (h *Handler) handlePostMovement(w http.ResponseWriter, r *http.Request) {
	var req movementRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", "request body is not valid JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", err.Error())
		return
	}
	input, err := h.movementInput(req)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", err.Error())
		return
	}
	result, err := h.service.ApplyMovement(r.Context(), input)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.metrics.ObserveMovement(string(input.Kind))
	httpx.JSON(w, http.StatusCreated, toMovementResponse(result))
}

func (h *Handler) movementInput(req movementRequest) (MovementInput, error) {
	quantity, err := decimal.NewFromString(req.Quantity)
	if err != nil {
		return MovementInput{}, errors.New("quantity is not a valid decimal")
	}
	unitCost := decimal.Zero
	if req.UnitCost != "" {
		if unitCost, err = decimal.NewFromString(req.UnitCost); err != nil {
			return MovementInput{}, errors.New("unit_cost is not a valid decimal")
		}
	}
	input := MovementInput{
		WarehouseID:         req.WarehouseID,
		ItemID:              req.ItemID,
		Kind:                MovementKind(req.Kind),
		Quantity:            quantity,
		UnitCost:            unitCost,
		Reference:           Reference{Type: req.RefType, ID: req.RefID, Number: req.RefNumber},
		ActorID:             req.ActorID,
		Note:                req.Note,
		BatchNumber:         req.BatchNumber,
		AcknowledgeShortage: req.AcknowledgeShortage,
	}
	if req.BatchExpiry != "" {
		expiry, err := time.Parse("2006-01-02", req.BatchExpiry)
		if err != nil {
			return MovementInput{}, errors.New("batch_expiry must be YYYY-MM-DD")
		}
		input.BatchExpiry = expiry
	}
	for _, c := range req.Consume {
		batchID, err := uuid.Parse(c.BatchID)
		if err != nil {
			return MovementInput{}, errors.New("consume batch_id is not a valid uuid")
		}
		qty, err := decimal.NewFromString(c.Quantity)
		if err != nil {
			return MovementInput{}, errors.New("consume quantity is not a valid decimal")
		}
		input.Consume = append(input.Consume, BatchConsumption{BatchID: batchID, Quantity: qty})
	}
	return input, nil
}

type movementRow struct {
	ID          string    `json:"id"`
	WarehouseID int64     `json:"warehouse_id"`
	ItemID      int64     `json:"item_id"`
	Kind        string    `json:"kind"`
	Quantity    string    `json:"quantity"`
	UnitCost    string    `json:"unit_cost"`
	RefType     string    `json:"ref_type"`
	RefID       string    `json:"ref_id"`
	RefNumber   string    `json:"ref_number,omitempty"`
	StockBefore string    `json:"stock_before"`
	StockAfter  string    `json:"stock_after"`
	Note        string    `json:"note,omitempty"`
	PostedAt    time.Time `json:"posted_at"`
}

func (h *Handler) handleListMovements(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	filter := MovementFilter{
		WarehouseID: queryInt64(q.Get("warehouse_id")),
		ItemID:      queryInt64(q.Get("item_id")),
		Kind:        MovementKind(q.Get("kind")),
		Limit:       int(queryInt64(q.Get("limit"))),
	}
	if filter.WarehouseID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", "warehouse_id is required")
		return
	}
	var err error
	if filter.From, err = queryDate(q.Get("from"), false); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", "from must be YYYY-MM-DD")
		return
	}
	if filter.To, err = queryDate(q.Get("to"), true); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", "to must be YYYY-MM-DD")
		return
	}
	movements, err := h.service.GetMovements(r.Context(), filter)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	rows := make([]movementRow, 0, len(movements))
	for _, m := range movements {
		rows = append(rows, movementRow{
			ID:          m.ID.String(),
			WarehouseID: m.WarehouseID,
			ItemID:      m.ItemID,
			Kind:        string(m.Kind),
			Quantity:    m.Quantity.String(),
			UnitCost:    m.UnitCost.String(),
			RefType:     m.Reference.Type,
			RefID:       m.Reference.ID,
			RefNumber:   m.Reference.Number,
			StockBefore: m.StockBefore.String(),
			StockAfter:  m.StockAfter.String(),
			Note:        m.Note,
			PostedAt:    m.PostedAt,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"movements": rows})
}

type transferRequest struct {
	SourceWarehouseID int64  `json:"source_warehouse_id" validate:"required"`
	DestWarehouseID   int64  `json:"dest_warehouse_id" validate:"required,nefield=SourceWarehouseID"`
	ItemID            int64  `json:"item_id" validate:"required"`
	Quantity          string `json:"quantity" validate:"required"`
	RefType           string `json:"ref_type" validate:"required"`
	RefID             string `json:"ref_id" validate:"required"`
	RefNumber         string `json:"ref_number"`
	Note              string `json:"note"`
	ActorID           int64  `json:"actor_id"`
}

func (h *Handler) handleTransfer(w http.ResponseWriter, r *http.Request) {
	var req transferRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", "request body is not valid JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", err.Error())
		return
	}
	quantity, err := decimal.NewFromString(req.Quantity)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", "quantity is not a valid decimal")
		return
	}
	out, in, err := h.service.Transfer(r.Context(), TransferInput{
		SrcWarehouse: req.SourceWarehouseID,
		DstWarehouse: req.DestWarehouseID,
		ItemID:       req.ItemID,
		Quantity:     quantity,
		Reference:    Reference{Type: req.RefType, ID: req.RefID, Number: req.RefNumber},
		ActorID:      req.ActorID,
		Note:         req.Note,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	h.metrics.ObserveMovement(string(KindTransferOut))
	h.metrics.ObserveMovement(string(KindTransferIn))
	httpx.JSON(w, http.StatusCreated, map[string]any{
		"outbound": toMovementResponse(out),
		"inbound":  toMovementResponse(in),
	})
}

type countRequest struct {
	WarehouseID int64  `json:"warehouse_id" validate:"required"`
	ItemID      int64  `json:"item_id" validate:"required"`
	Counted     string `json:"counted" validate:"required"`
	RefType     string `json:"ref_type" validate:"required"`
	RefID       string `json:"ref_id" validate:"required"`
	Note        string `json:"note"`
	ActorID     int64  `json:"actor_id"`
}

func (h *Handler) handleCount(w http.ResponseWriter, r *http.Request) {
	var req countRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", "request body is not valid JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", err.Error())
		return
	}
	counted, err := decimal.NewFromString(req.Counted)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", "counted is not a valid decimal")
		return
	}
	result, err := h.service.AdjustToCount(r.Context(), CountInput{
		WarehouseID:     req.WarehouseID,
		ItemID:          req.ItemID,
		CountedQuantity: counted,
		Reference:       Reference{Type: req.RefType, ID: req.RefID},
		ActorID:         req.ActorID,
		Note:            req.Note,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	if result.MovementID != uuid.Nil {
		kind := KindAdjustmentIn
		if result.StockAfter.LessThan(result.StockBefore) {
			kind = KindAdjustmentOut
		}
		h.metrics.ObserveMovement(string(kind))
	}
	httpx.JSON(w, http.StatusOK, toMovementResponse(result))
}

type levelRow struct {
	WarehouseID int64     `json:"warehouse_id"`
	ItemID      int64     `json:"item_id"`
	Physical    string    `json:"physical"`
	Reserved    string    `json:"reserved"`
	Available   string    `json:"available"`
	AvgCost     string    `json:"avg_cost"`
	Value       string    `json:"value"`
	UpdatedAt   time.Time `json:"updated_at"`
}

func toLevelRow(level StockLevel) levelRow {
	return levelRow{
		WarehouseID: level.WarehouseID,
		ItemID:      level.ItemID,
		Physical:    level.Physical.String(),
		Reserved:    level.Reserved.String(),
		Available:   level.Available().String(),
		AvgCost:     level.AvgCost.String(),
		Value:       level.Value().String(),
		UpdatedAt:   level.UpdatedAt,
	}
}

func (h *Handler) handleListLevels(w http.ResponseWriter, r *http.Request) {
	warehouseID := queryInt64(r.URL.Query().Get("warehouse_id"))
	if warehouseID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", "warehouse_id is required")
		return
	}
	levels, err := h.service.ListLevels(r.Context(), warehouseID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	rows := make([]levelRow, 0, len(levels))
	for _, level := range levels {
		rows = append(rows, toLevelRow(level))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"levels": rows})
}

func (h *Handler) handleGetLevel(w http.ResponseWriter, r *http.Request) {
	warehouseID := queryInt64(chi.URLParam(r, "warehouseID"))
	itemID := queryInt64(chi.URLParam(r, "itemID"))
	if warehouseID == 0 || itemID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", "warehouse and item ids are required")
		return
	}
	level, err := h.service.GetLevel(r.Context(), warehouseID, itemID)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toLevelRow(level))
}

type reserveRequest struct {
	WarehouseID int64  `json:"warehouse_id" validate:"required"`
	ItemID      int64  `json:"item_id" validate:"required"`
	Quantity    string `json:"quantity" validate:"required"`
	RefType     string `json:"ref_type" validate:"required"`
	RefID       string `json:"ref_id" validate:"required"`
	RefNumber   string `json:"ref_number"`
	ActorID     int64  `json:"actor_id"`
	TTLSeconds  int64  `json:"ttl_seconds" validate:"gte=0"`
}

type reservationResponse struct {
	ID            string    `json:"id"`
	WarehouseID   int64     `json:"warehouse_id"`
	ItemID        int64     `json:"item_id"`
	Reserved      string    `json:"reserved"`
	Fulfilled     string    `json:"fulfilled"`
	Remaining     string    `json:"remaining"`
	Status        string    `json:"status"`
	RefType       string    `json:"ref_type"`
	RefID         string    `json:"ref_id"`
	ReleaseReason string    `json:"release_reason,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	ExpiresAt     string    `json:"expires_at,omitempty"`
}

func toReservationResponse(res Reservation) reservationResponse {
	out := reservationResponse{
		ID:            res.ID.String(),
		WarehouseID:   res.WarehouseID,
		ItemID:        res.ItemID,
		Reserved:      res.Reserved.String(),
		Fulfilled:     res.Fulfilled.String(),
		Remaining:     res.Remaining().String(),
		Status:        string(res.Status),
		RefType:       res.Reference.Type,
		RefID:         res.Reference.ID,
		ReleaseReason: res.ReleaseReason,
		CreatedAt:     res.CreatedAt,
	}
	if !res.ExpiresAt.IsZero() {
		out.ExpiresAt = res.ExpiresAt.Format(time.RFC3339)
	}
	return out
}

func (h *Handler) handleReserve(w http.ResponseWriter, r *http.Request) {
	var req reserveRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", "request body is not valid JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", err.Error())
		return
	}
	quantity, err := decimal.NewFromString(req.Quantity)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", "quantity is not a valid decimal")
		return
	}
	res, err := h.service.Reserve(r.Context(), ReserveInput{
		WarehouseID: req.WarehouseID,
		ItemID:      req.ItemID,
		Quantity:    quantity,
		Reference:   Reference{Type: req.RefType, ID: req.RefID, Number: req.RefNumber},
		ActorID:     req.ActorID,
		TTL:         time.Duration(req.TTLSeconds) * time.Second,
	})
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toReservationResponse(res))
}

func (h *Handler) handleGetReservation(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", "reservation id is not a valid uuid")
		return
	}
	res, err := h.service.GetReservation(r.Context(), id)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toReservationResponse(res))
}

type fulfillRequest struct {
	Quantity string `json:"quantity" validate:"required"`
}

func (h *Handler) handleFulfill(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", "reservation id is not a valid uuid")
		return
	}
	var req fulfillRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", "request body is not valid JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", err.Error())
		return
	}
	quantity, err := decimal.NewFromString(req.Quantity)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", "quantity is not a valid decimal")
		return
	}
	res, err := h.service.Fulfill(r.Context(), id, quantity)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toReservationResponse(res))
}

type releaseRequest struct {
	Reason string `json:"reason"`
}

func (h *Handler) handleRelease(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", "reservation id is not a valid uuid")
		return
	}
	var req releaseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", "request body is not valid JSON")
		return
	}
	res, err := h.service.Release(r.Context(), id, req.Reason)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toReservationResponse(res))
}

type allocateRequest struct {
	WarehouseID  int64  `json:"warehouse_id" validate:"required"`
	ItemID       int64  `json:"item_id" validate:"required"`
	Quantity     string `json:"quantity" validate:"required"`
	AllowExpired bool   `json:"allow_expired"`
}

type allocationRow struct {
	BatchID     string `json:"batch_id"`
	BatchNumber string `json:"batch_number"`
	Quantity    string `json:"quantity"`
	UnitCost    string `json:"unit_cost"`
	ExpiresAt   string `json:"expires_at,omitempty"`
	IsExpired   bool   `json:"is_expired"`
}

func (h *Handler) handleAllocate(w http.ResponseWriter, r *http.Request) {
	var req allocateRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", "request body is not valid JSON")
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", err.Error())
		return
	}
	quantity, err := decimal.NewFromString(req.Quantity)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", "quantity is not a valid decimal")
		return
	}
	allocations, err := h.service.Allocate(r.Context(), req.WarehouseID, req.ItemID, quantity, req.AllowExpired)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	rows := make([]allocationRow, 0, len(allocations))
	for _, a := range allocations {
		row := allocationRow{
			BatchID:     a.BatchID.String(),
			BatchNumber: a.BatchNumber,
			Quantity:    a.Quantity.String(),
			UnitCost:    a.UnitCost.String(),
			IsExpired:   a.IsExpired,
		}
		if !a.ExpiresAt.IsZero() {
			row.ExpiresAt = a.ExpiresAt.Format("2006-01-02")
		}
		rows = append(rows, row)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"allocations": rows})
}

func (h *Handler) handleReconcile(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	warehouseID := queryInt64(q.Get("warehouse_id"))
	if warehouseID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", "warehouse_id is required")
		return
	}
	asOf, err := queryDate(q.Get("as_of"), true)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", "as_of must be YYYY-MM-DD")
		return
	}
	rows, err := h.service.Reconcile(r.Context(), warehouseID, queryInt64(q.Get("item_id")), asOf)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	type varianceJSON struct {
		ItemID     int64  `json:"item_id"`
		Calculated string `json:"calculated"`
		Recorded   string `json:"recorded"`
		Variance   string `json:"variance"`
	}
	out := make([]varianceJSON, 0, len(rows))
	clean := true
	for _, row := range rows {
		if !row.Variance.IsZero() {
			clean = false
		}
		out = append(out, varianceJSON{
			ItemID:     row.ItemID,
			Calculated: row.Calculated.String(),
			Recorded:   row.Recorded.String(),
			Variance:   row.Variance.String(),
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"clean": clean, "rows": out})
}

func (h *Handler) handleValuation(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	warehouseID := queryInt64(q.Get("warehouse_id"))
	if warehouseID == 0 {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", "warehouse_id is required")
		return
	}
	asOf, err := queryDate(q.Get("as_of"), true)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", "as_of must be YYYY-MM-DD")
		return
	}
	rows, err := h.service.Valuation(r.Context(), warehouseID, asOf)
	if err != nil {
		h.respondError(w, r, err)
		return
	}
	type valuationJSON struct {
		ItemID   int64  `json:"item_id"`
		Quantity string `json:"quantity"`
		Value    string `json:"value"`
	}
	out := make([]valuationJSON, 0, len(rows))
	total := decimal.Zero
	for _, row := range rows {
		total = total.Add(row.Value)
		out = append(out, valuationJSON{ItemID: row.ItemID, Quantity: row.Quantity.String(), Value: row.Value.String()})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"total_value": total.String(), "rows": out})
}

// respondError maps service errors to problem responses. Contention timeouts
// get a Retry-After so callers back off and retry instead of failing the
// document.
func (h *Handler) respondError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, shared.ErrLockTimeout):
		httpx.Retryable(w, "Stock busy", "another operation holds this stock key; retry shortly")
	case errors.Is(err, ErrDuplicateReference):
		httpx.Problem(w, http.StatusConflict, "Duplicate reference", "this reference was already posted for the stock key")
	case errors.Is(err, ErrInsufficientStock):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Insufficient stock", err.Error())
	case errors.Is(err, ErrInsufficientStockAcrossBatches):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Insufficient batch stock", err.Error())
	case errors.Is(err, ErrOverFulfillment):
		httpx.Problem(w, http.StatusConflict, "Over-fulfillment", err.Error())
	case errors.Is(err, ErrInvalidState):
		httpx.Problem(w, http.StatusConflict, "Invalid state", err.Error())
	case errors.Is(err, ErrReservationNotFound), errors.Is(err, ErrBatchNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not found", err.Error())
	case errors.Is(err, ErrInvalidQuantity), errors.Is(err, ErrInvalidUnitCost):
		httpx.Problem(w, http.StatusBadRequest, "Invalid request", err.Error())
	default:
		h.logger.Error("inventory request failed",
			slog.String("path", r.URL.Path),
			slog.Any("error", err))
		httpx.Problem(w, http.StatusInternalServerError, "Internal error", "unexpected failure")
	}
}

func queryInt64(raw string) int64 {
	if raw == "" {
		return 0
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0
	}
	return v
}

// queryDate parses a YYYY-MM-DD query value; endOfDay extends it to the last
// instant of that day so range filters are inclusive.
func queryDate(raw string, endOfDay bool) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		return time.Time{}, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, nil
}
