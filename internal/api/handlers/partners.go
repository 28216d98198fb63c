package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eshaffer321/receipt-desk/internal/api/dto"
	"github.com/eshaffer321/receipt-desk/internal/domain/partners"
)

// PartnersHandler serves the partner selector.
type PartnersHandler struct{}

// NewPartnersHandler creates a new partners handler.
func NewPartnersHandler() *PartnersHandler {
	return &PartnersHandler{}
}

// List handles GET /.
func (h *PartnersHandler) List(c *gin.Context) {
	c.JSON(http.StatusOK, dto.NewPartnerListResponse(partners.All()))
}
