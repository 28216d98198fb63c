package handlers

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/eshaffer321/receipt-desk/internal/adapters/receiptapi"
	"github.com/eshaffer321/receipt-desk/internal/api/dto"
	"github.com/eshaffer321/receipt-desk/internal/application/receipts"
	"github.com/eshaffer321/receipt-desk/internal/infrastructure/storage"
)

// MaxImageSize bounds uploaded receipt photos.
const MaxImageSize = 10 << 20

var errImageTooLarge = fmt.Errorf("image is larger than %d MB", MaxImageSize>>20)

// ReceiptsHandler handles the partner upload pages.
type ReceiptsHandler struct {
	*Base
	receipts *receipts.Service
}

// NewReceiptsHandler creates a new receipts handler.
func NewReceiptsHandler(svc *receipts.Service, logger *slog.Logger) *ReceiptsHandler {
	return &ReceiptsHandler{
		Base:     NewBase(logger),
		receipts: svc,
	}
}

// Get handles GET /upload/:partner.
func (h *ReceiptsHandler) Get(c *gin.Context) {
	ws, err := h.receipts.Workspace(c.Request.Context(), State(c).ID, c.Param("partner"))
	h.respond(c, ws, err, "Failed to load the upload page.")
}

// Upload handles POST /upload/:partner/receipt with the photo in the
// multipart field "image".
func (h *ReceiptsHandler) Upload(c *gin.Context) {
	header, err := c.FormFile("image")
	if err != nil {
		h.WriteError(c, http.StatusBadRequest, dto.BadRequestError("Please select an image to upload."))
		return
	}

	img := receiptapi.Image{
		Filename:    header.Filename,
		ContentType: header.Header.Get("Content-Type"),
	}
	if !receipts.IsImage(img.ContentType) {
		h.Fail(c, receipts.ErrNotImage, "")
		return
	}
	if header.Size > MaxImageSize {
		h.WriteError(c, http.StatusBadRequest, dto.ValidationError(errImageTooLarge.Error()))
		return
	}

	f, err := header.Open()
	if err != nil {
		h.Fail(c, fmt.Errorf("failed to open upload: %w", err), "")
		return
	}
	defer f.Close()
	img.Data = io.LimitReader(f, MaxImageSize)

	ws, err := h.receipts.Upload(c.Request.Context(), State(c).ID, c.Param("partner"), img)
	h.respond(c, ws, err, "Error processing image. Please try again.")
}

// Edit handles POST /upload/:partner/edit.
func (h *ReceiptsHandler) Edit(c *gin.Context) {
	ws, err := h.receipts.BeginEdit(c.Request.Context(), State(c).ID, c.Param("partner"))
	h.respond(c, ws, err, "")
}

// UpdateDraft handles PATCH /upload/:partner/draft. The body is an object of
// field edits, applied in the order given.
func (h *ReceiptsHandler) UpdateDraft(c *gin.Context) {
	edits, ok := h.bindEdits(c)
	if !ok {
		return
	}
	ws, err := h.receipts.SetFields(c.Request.Context(), State(c).ID, c.Param("partner"), edits.Values, edits.Order)
	h.respond(c, ws, err, "")
}

// AddItem handles POST /upload/:partner/draft/items.
func (h *ReceiptsHandler) AddItem(c *gin.Context) {
	ws, err := h.receipts.AddItem(c.Request.Context(), State(c).ID, c.Param("partner"))
	if err != nil {
		h.Fail(c, err, "")
		return
	}
	h.WriteJSON(c, http.StatusCreated, ws)
}

// UpdateItem handles PATCH /upload/:partner/draft/items/:index.
func (h *ReceiptsHandler) UpdateItem(c *gin.Context) {
	index, ok := h.index(c)
	if !ok {
		return
	}
	edits, ok := h.bindEdits(c)
	if !ok {
		return
	}
	ws, err := h.receipts.ChangeItem(c.Request.Context(), State(c).ID, c.Param("partner"), index, edits.Values, edits.Order)
	h.respond(c, ws, err, "")
}

// RemoveItem handles DELETE /upload/:partner/draft/items/:index.
func (h *ReceiptsHandler) RemoveItem(c *gin.Context) {
	index, ok := h.index(c)
	if !ok {
		return
	}
	ws, err := h.receipts.RemoveItem(c.Request.Context(), State(c).ID, c.Param("partner"), index)
	h.respond(c, ws, err, "")
}

// Save handles POST /upload/:partner/save.
func (h *ReceiptsHandler) Save(c *gin.Context) {
	ws, err := h.receipts.Save(c.Request.Context(), State(c).ID, c.Param("partner"))
	h.respond(c, ws, err, "")
}

// Discard handles DELETE /upload/:partner/draft.
func (h *ReceiptsHandler) Discard(c *gin.Context) {
	ws, err := h.receipts.Discard(c.Request.Context(), State(c).ID, c.Param("partner"))
	h.respond(c, ws, err, "")
}

// Approve handles POST /upload/:partner/approve.
func (h *ReceiptsHandler) Approve(c *gin.Context) {
	st := State(c)
	slug := c.Param("partner")

	result, err := h.receipts.Approve(c.Request.Context(), st.ID, st.Username, slug)
	if err != nil {
		h.Fail(c, err, "Failed to approve order. Please try again.")
		return
	}

	ws, err := h.receipts.Workspace(c.Request.Context(), st.ID, slug)
	if err != nil {
		h.Fail(c, err, "")
		return
	}
	h.WriteJSON(c, http.StatusCreated, dto.ApprovedResponse{
		Message:    "Order approved successfully!",
		ApprovalID: result.ApprovalID,
		Response:   result.Response,
		Workspace:  ws,
	})
}

// ApprovalsHandler lists recorded approvals.
type ApprovalsHandler struct {
	*Base
	receipts *receipts.Service
}

// NewApprovalsHandler creates a new approvals handler.
func NewApprovalsHandler(svc *receipts.Service, logger *slog.Logger) *ApprovalsHandler {
	return &ApprovalsHandler{
		Base:     NewBase(logger),
		receipts: svc,
	}
}

// List handles GET /approvals.
// Query params:
//   - partner: filter by partner slug
//   - mine: only approvals made in this session
//   - limit: max results (default 50)
//   - offset: pagination offset
func (h *ApprovalsHandler) List(c *gin.Context) {
	params := dto.DefaultApprovalListParams()
	params.Partner = c.Query("partner")
	params.Mine = ParseBoolParam(c, "mine", false)
	params.Limit = ParseIntParam(c, "limit", params.Limit)
	params.Offset = ParseIntParam(c, "offset", 0)

	filters := storage.ApprovalFilters{
		Partner: params.Partner,
		Limit:   params.Limit,
		Offset:  params.Offset,
	}
	if params.Mine {
		filters.SessionID = State(c).ID
	}

	result, err := h.receipts.Approvals(c.Request.Context(), filters)
	if err != nil {
		h.Fail(c, err, "")
		return
	}
	h.WriteJSON(c, http.StatusOK, dto.NewApprovalListResponse(result))
}

func (h *ReceiptsHandler) respond(c *gin.Context, ws *receipts.Workspace, err error, message string) {
	if err != nil {
		h.Fail(c, err, message)
		return
	}
	h.WriteJSON(c, http.StatusOK, ws)
}

func (h *ReceiptsHandler) bindEdits(c *gin.Context) (dto.FieldEdits, bool) {
	var edits dto.FieldEdits
	if err := c.ShouldBindJSON(&edits); err != nil {
		h.WriteError(c, http.StatusBadRequest, dto.BadRequestError("body must be a JSON object of field values"))
		return edits, false
	}
	if edits.Len() == 0 {
		h.WriteError(c, http.StatusBadRequest, dto.ValidationError("no fields to change"))
		return edits, false
	}
	return edits, true
}

func (h *ReceiptsHandler) index(c *gin.Context) (int, bool) {
	index, err := strconv.Atoi(c.Param("index"))
	if err != nil {
		h.WriteError(c, http.StatusBadRequest, dto.BadRequestError("item index must be a number"))
		return 0, false
	}
	return index, true
}
