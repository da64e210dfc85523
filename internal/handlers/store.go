package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/dimitrije/starter-api/internal/middleware"
	"github.com/dimitrije/starter-api/internal/services"
	"github.com/dimitrije/starter-api/internal/sse"
	"github.com/dimitrije/starter-api/pkg/dto"
	"github.com/dimitrije/starter-api/pkg/session"
	"github.com/google/uuid"
	"github.com/m1z23r/drift/pkg/drift"
	"go.uber.org/zap"
)

// StoreHandler serves the per-subject user records. Every route except
// Ready is scoped to the :id parameter, which must match the credential.
type StoreHandler struct {
	records RecordServiceInterface
	hub     HubInterface
	log     *zap.Logger
}

func NewStoreHandler(records RecordServiceInterface, hub HubInterface, log *zap.Logger) *StoreHandler {
	return &StoreHandler{records: records, hub: hub, log: log}
}

func (h *StoreHandler) Ready(c *drift.Context) {
	_ = c.JSON(http.StatusOK, dto.StoreReadyResponse{
		Status:    dto.StatusSuccess,
		SubjectID: middleware.GetStoreSubject(c),
	})
}

func (h *StoreHandler) Get(c *drift.Context) {
	if !middleware.StoreSubjectMatches(c) {
		return
	}
	subject := c.Param("id")

	record, err := h.records.Get(c.Request.Context(), subject)
	if errors.Is(err, services.ErrNotFound) {
		_ = c.JSON(http.StatusOK, dto.RecordEnvelope{Status: dto.StatusSuccess})
		return
	}
	if err != nil {
		h.log.Error("get record failed", zap.String("subject", subject), zap.Error(err))
		respondError(c, http.StatusBadGateway, session.CodeStoreUnavailable, "failed to load record")
		return
	}

	_ = c.JSON(http.StatusOK, dto.RecordEnvelope{Status: dto.StatusSuccess, Data: recordResponse(record)})
}

func bindFields(c *drift.Context) (map[string]any, bool) {
	var fields map[string]any
	if err := c.BindJSON(&fields); err != nil {
		c.BadRequest("request body must be a JSON object")
		return nil, false
	}
	return fields, true
}

// Create inserts the record if absent. An existing record is returned
// unchanged with 200.
func (h *StoreHandler) Create(c *drift.Context) {
	if !middleware.StoreSubjectMatches(c) {
		return
	}
	subject := c.Param("id")

	fields, ok := bindFields(c)
	if !ok {
		return
	}

	record, created, err := h.records.Create(c.Request.Context(), subject, fields)
	if err != nil {
		h.writeError(c, subject, "create record failed", err)
		return
	}

	resp := recordResponse(record)
	status := http.StatusOK
	if created {
		status = http.StatusCreated
		h.hub.BroadcastRecordEvent(subject, dto.RecordEvent{Type: dto.RecordEventCreated, Data: resp})
	}

	_ = c.JSON(status, dto.RecordEnvelope{Status: dto.StatusSuccess, Data: resp})
}

func (h *StoreHandler) Update(c *drift.Context) {
	if !middleware.StoreSubjectMatches(c) {
		return
	}
	subject := c.Param("id")

	fields, ok := bindFields(c)
	if !ok {
		return
	}

	record, err := h.records.Update(c.Request.Context(), subject, fields)
	if err != nil {
		h.writeError(c, subject, "update record failed", err)
		return
	}

	resp := recordResponse(record)
	h.hub.BroadcastRecordEvent(subject, dto.RecordEvent{Type: dto.RecordEventUpdated, Data: resp})

	_ = c.JSON(http.StatusOK, dto.RecordEnvelope{Status: dto.StatusSuccess, Data: resp})
}

func (h *StoreHandler) writeError(c *drift.Context, subject, msg string, err error) {
	switch {
	case errors.Is(err, services.ErrReservedField):
		respondError(c, http.StatusBadRequest, session.CodeInvalidArgument, err.Error())
	case errors.Is(err, services.ErrNotFound):
		c.NotFound("record not found")
	default:
		h.log.Error(msg, zap.String("subject", subject), zap.Error(err))
		respondError(c, http.StatusBadGateway, session.CodeStoreUnavailable, "failed to write record")
	}
}

// Events streams record changes for the subject as server-sent events.
func (h *StoreHandler) Events(c *drift.Context) {
	if !middleware.StoreSubjectMatches(c) {
		return
	}
	subject := c.Param("id")

	sseCtx := c.SSE()

	clientID := uuid.New().String()
	client := &sse.Client{
		ID:      clientID,
		Subject: subject,
		Send:    make(chan []byte, 16),
	}

	if !h.hub.Register(client) {
		return
	}
	defer h.hub.Unregister(client)

	if err := sseCtx.SendJSON(map[string]string{
		"type":      "connected",
		"client_id": clientID,
	}, "system", ""); err != nil {
		return
	}

	done := c.Request.Context().Done()
	for {
		select {
		case msg, ok := <-client.Send:
			if !ok {
				return
			}
			if !json.Valid(msg) {
				continue
			}
			if err := sseCtx.Send(string(msg), "message", ""); err != nil {
				return
			}
		case <-done:
			return
		}
	}
}
