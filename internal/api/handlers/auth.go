package handlers

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/eshaffer321/receipt-desk/internal/adapters/backendapi"
	"github.com/eshaffer321/receipt-desk/internal/adapters/upstream"
	"github.com/eshaffer321/receipt-desk/internal/api/dto"
	"github.com/eshaffer321/receipt-desk/internal/application/auth"
	"github.com/eshaffer321/receipt-desk/internal/application/customers"
	"github.com/eshaffer321/receipt-desk/internal/domain/session"
)

// AuthHandler handles sign-in, registration and sign-out.
type AuthHandler struct {
	*Base
	auth      *auth.Service
	customers *customers.Service
}

// NewAuthHandler creates a new auth handler. customers may be nil.
func NewAuthHandler(authSvc *auth.Service, customerSvc *customers.Service, logger *slog.Logger) *AuthHandler {
	return &AuthHandler{
		Base:      NewBase(logger),
		auth:      authSvc,
		customers: customerSvc,
	}
}

// Status handles GET /login: the login entry point, reporting who is signed
// in and where a sign-in would return to.
func (h *AuthHandler) Status(c *gin.Context) {
	h.WriteJSON(c, http.StatusOK, dto.NewSessionResponse(State(c), h.auth.Now()))
}

// Login handles POST /login.
func (h *AuthHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := c.ShouldBind(&req); err != nil {
		h.WriteError(c, http.StatusBadRequest, dto.BadRequestError("invalid login request"))
		return
	}

	result, err := h.auth.Login(c.Request.Context(), State(c), backendapi.Credentials{
		Username: req.Username,
		Password: req.Password,
	})
	if err != nil {
		if upstream.IsStatus(err, http.StatusUnauthorized) || upstream.IsStatus(err, http.StatusBadRequest) {
			h.WriteError(c, http.StatusUnauthorized, dto.NewAPIError(dto.ErrCodeUnauthenticated, "Invalid username or password."))
			return
		}
		h.Fail(c, err, "Login failed. Please try again.")
		return
	}

	resp := dto.NewSessionResponse(result.Session, h.auth.Now())
	resp.ReturnTo = result.ReturnTo
	h.WriteJSON(c, http.StatusOK, resp)
}

// Register handles POST /register.
func (h *AuthHandler) Register(c *gin.Context) {
	var req dto.RegisterRequest
	if err := c.ShouldBind(&req); err != nil {
		h.WriteError(c, http.StatusBadRequest, dto.BadRequestError("invalid registration request"))
		return
	}

	err := h.auth.Register(c.Request.Context(), backendapi.Registration{
		Username: req.Username,
		Password: req.Password,
		Email:    req.Email,
	})
	if err != nil {
		h.Fail(c, err, "Registration failed. Please try again.")
		return
	}

	h.WriteJSON(c, http.StatusCreated, gin.H{"message": "Registration successful. Please log in.", "login_path": session.LoginPath})
}

// Logout handles POST /logout.
func (h *AuthHandler) Logout(c *gin.Context) {
	st, err := h.auth.Logout(c.Request.Context(), State(c))
	if err != nil {
		h.Fail(c, err, "Logout failed. Please try again.")
		return
	}
	if h.customers != nil {
		h.customers.Forget(st.ID)
	}
	h.WriteJSON(c, http.StatusOK, dto.NewSessionResponse(st, h.auth.Now()))
}
