package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"tenantcrm/models"
	"tenantcrm/service"
)

type UserResponse struct {
	ID          uint        `json:"id"`
	TenantID    uint        `json:"tenant_id"`
	Email       string      `json:"email"`
	FullName    string      `json:"full_name"`
	Role        models.Role `json:"role"`
	SuperAdmin  bool        `json:"super_admin"`
	Active      bool        `json:"active"`
	LastLoginAt *time.Time  `json:"last_login_at"`
	CreatedAt   time.Time   `json:"created_at"`
}

func toUserResponse(u *models.User) UserResponse {
	return UserResponse{
		ID:          u.ID,
		TenantID:    u.TenantID,
		Email:       u.Email,
		FullName:    u.FullName,
		Role:        u.Role,
		SuperAdmin:  u.SuperAdmin,
		Active:      u.Active,
		LastLoginAt: u.LastLoginAt,
		CreatedAt:   u.CreatedAt,
	}
}

type TenantResponse struct {
	ID        uint                `json:"id"`
	Name      string              `json:"name"`
	Slug      string              `json:"slug"`
	Status    models.TenantStatus `json:"status"`
	CreatedAt time.Time           `json:"created_at"`
}

func toTenantResponse(t *models.Tenant) TenantResponse {
	return TenantResponse{ID: t.ID, Name: t.Name, Slug: t.Slug, Status: t.Status, CreatedAt: t.CreatedAt}
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginResponse struct {
	Token     string       `json:"token"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      UserResponse `json:"user"`
}

// AdminHandler serves sessions, tenant users and platform tenants.
type AdminHandler struct {
	auth    *service.AuthService
	users   *service.UserService
	tenants *service.TenantService
}

func NewAdminHandler(auth *service.AuthService, users *service.UserService, tenants *service.TenantService) *AdminHandler {
	return &AdminHandler{auth: auth, users: users, tenants: tenants}
}

func (h *AdminHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	res, err := h.auth.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, LoginResponse{Token: res.Token, ExpiresAt: res.ExpiresAt, User: toUserResponse(res.User)})
}

func (h *AdminHandler) Me(c *gin.Context) {
	s := scope(c)
	u, err := h.auth.Me(c.Request.Context(), s)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": toUserResponse(u), "tenant_id": s.TenantID})
}

// Users

func (h *AdminHandler) ListUsers(c *gin.Context) {
	users, err := h.users.List(c.Request.Context(), scope(c))
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]UserResponse, len(users))
	for i := range users {
		out[i] = toUserResponse(&users[i])
	}
	c.JSON(http.StatusOK, out)
}

// CreateUser answers failures with a message fit for display.
func (h *AdminHandler) CreateUser(c *gin.Context) {
	var req service.UserInput
	if err := c.ShouldBindJSON(&req); err != nil {
		err = bindError(err)
		respondErrorMessage(c, err, service.TranslateUserError(err))
		return
	}
	u, err := h.users.Create(c.Request.Context(), scope(c), req)
	if err != nil {
		respondErrorMessage(c, err, service.TranslateUserError(err))
		return
	}
	c.JSON(http.StatusCreated, toUserResponse(u))
}

func (h *AdminHandler) UpdateUser(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req service.UserPatch
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	u, err := h.users.Update(c.Request.Context(), scope(c), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toUserResponse(u))
}

func (h *AdminHandler) DeleteUser(c *gin.Context) {
	deleteByID(h.users.Delete)(c)
}

// Tenants

func (h *AdminHandler) ListTenants(c *gin.Context) {
	tenants, err := h.tenants.List(c.Request.Context(), scope(c))
	if err != nil {
		respondError(c, err)
		return
	}
	out := make([]TenantResponse, len(tenants))
	for i := range tenants {
		out[i] = toTenantResponse(&tenants[i])
	}
	c.JSON(http.StatusOK, out)
}

func (h *AdminHandler) GetTenant(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	t, err := h.tenants.Get(c.Request.Context(), scope(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toTenantResponse(t))
}

func (h *AdminHandler) CreateTenant(c *gin.Context) {
	var req service.TenantInput
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	t, owner, err := h.tenants.Create(c.Request.Context(), scope(c), req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"tenant": toTenantResponse(t), "owner": toUserResponse(owner)})
}

func (h *AdminHandler) UpdateTenant(c *gin.Context) {
	id, ok := parseID(c, "id")
	if !ok {
		return
	}
	var req service.TenantPatch
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}
	t, err := h.tenants.Update(c.Request.Context(), scope(c), id, req)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, toTenantResponse(t))
}

func (h *AdminHandler) DeleteTenant(c *gin.Context) {
	deleteByID(h.tenants.Delete)(c)
}
