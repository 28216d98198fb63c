package handlers

import (
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eshaffer321/receipt-desk/internal/api/dto"
	"github.com/eshaffer321/receipt-desk/internal/application/customers"
	"github.com/eshaffer321/receipt-desk/internal/domain/directory"
)

// CustomersHandler handles the customer directory.
type CustomersHandler struct {
	*Base
	customers *customers.Service
}

// NewCustomersHandler creates a new customers handler.
func NewCustomersHandler(svc *customers.Service, logger *slog.Logger) *CustomersHandler {
	return &CustomersHandler{
		Base:      NewBase(logger),
		customers: svc,
	}
}

// List handles GET /customers.
func (h *CustomersHandler) List(c *gin.Context) {
	st := State(c)
	view, err := h.customers.Load(c.Request.Context(), st.ID, st.Token)
	h.respond(c, view, err, "Failed to fetch customers. Please try again later.")
}

// Search handles GET /customers/search.
// Query params: days, minOrders, deliveryPartner, minItemsInOrder. Empty
// values do not filter.
func (h *CustomersHandler) Search(c *gin.Context) {
	filters, ok := h.bindFilters(c)
	if !ok {
		return
	}
	st := State(c)
	view, err := h.customers.Search(c.Request.Context(), st.ID, st.Token, filters)
	h.respond(c, view, err, "Failed to search customers. Please try again.")
}

// Toggle handles POST /customers/:id/toggle.
func (h *CustomersHandler) Toggle(c *gin.Context) {
	st := State(c)
	view, err := h.customers.Toggle(c.Request.Context(), st.ID, st.Token, directory.ID(c.Param("id")))
	h.respond(c, view, err, "Failed to fetch customer orders. Please try again.")
}

// Delete handles DELETE /customers/:id.
func (h *CustomersHandler) Delete(c *gin.Context) {
	st := State(c)
	view, err := h.customers.Delete(c.Request.Context(), st.ID, st.Token, directory.ID(c.Param("id")))
	h.respond(c, view, err, "Failed to delete customer. Please try again.")
}

// Export handles GET /customers/download-csv. The CSV is streamed through as
// an attachment.
func (h *CustomersHandler) Export(c *gin.Context) {
	filters, ok := h.bindFilters(c)
	if !ok {
		return
	}
	st := State(c)
	exp, err := h.customers.Export(c.Request.Context(), st.ID, st.Token, filters)
	if err != nil {
		h.Fail(c, err, "Failed to download CSV. Please try again.")
		return
	}
	defer exp.Body.Close()

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", exp.Filename))
	c.Header("Content-Type", exp.ContentType)
	c.Status(http.StatusOK)
	if _, err := io.Copy(c.Writer, exp.Body); err != nil {
		h.logger.Warn("customer export interrupted", "error", err)
	}
}

func (h *CustomersHandler) respond(c *gin.Context, view customers.View, err error, message string) {
	if err != nil {
		h.Fail(c, err, message)
		return
	}
	h.WriteJSON(c, http.StatusOK, view)
}

func (h *CustomersHandler) bindFilters(c *gin.Context) (directory.Filters, bool) {
	var filters directory.Filters
	if err := c.ShouldBindQuery(&filters); err != nil {
		h.WriteError(c, http.StatusBadRequest, dto.BadRequestError("invalid customer filters"))
		return filters, false
	}
	return filters, true
}
