package handler

import (
	"net/http"

	"gstbooks/internal/middleware"
	"gstbooks/internal/service"
	"gstbooks/pkg/response"

	"github.com/gin-gonic/gin"
)

type AccountHandler struct {
	accountService service.AccountService
}

func NewAccountHandler(accountService service.AccountService) *AccountHandler {
	return &AccountHandler{accountService: accountService}
}

func (h *AccountHandler) RegisterRoutes(router *gin.RouterGroup) {
	accounts := router.Group("/api/accounts")
	{
		accounts.GET("", middleware.ReadAccess(), h.ListAccounts)
		accounts.GET("/tree", middleware.ReadAccess(), h.AccountTree)
		accounts.POST("", middleware.WriteAccess(), h.CreateAccount)
		accounts.POST("/seed", middleware.AdminOnly(), h.SeedAccounts)
		accounts.PUT("/:id", middleware.WriteAccess(), h.UpdateAccount)
		accounts.DELETE("/:id", middleware.WriteAccess(), h.DeleteAccount)
		accounts.POST("/:id/deactivate", middleware.WriteAccess(), h.DeactivateAccount)
	}
}

// ListAccounts returns the flat chart of accounts ordered by code
// @Summary      List accounts
// @Tags         accounts
// @Security     BearerAuth
// @Produce      json
// @Param        account_type  query     string  false  "ASSET, LIABILITY, EQUITY, REVENUE or EXPENSE"
// @Param        active        query     bool    false  "Only active accounts"
// @Success      200           {object}  response.Response{data=[]service.AccountResponse}
// @Router       /api/accounts [get]
func (h *AccountHandler) ListAccounts(c *gin.Context) {
	accounts, err := h.accountService.ListAccounts(c.Request.Context(), c.Query("account_type"), c.Query("active") == "true")
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, accounts))
}

// AccountTree returns the chart of accounts as a parent/child tree
// @Summary      Account tree
// @Tags         accounts
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response{data=[]service.AccountResponse}
// @Router       /api/accounts/tree [get]
func (h *AccountHandler) AccountTree(c *gin.Context) {
	tree, err := h.accountService.AccountTree(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, tree))
}

// CreateAccount adds an account to the chart
// @Summary      Create account
// @Tags         accounts
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateAccountRequest  true  "Account payload"
// @Success      201      {object}  response.Response{data=service.AccountResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/accounts [post]
func (h *AccountHandler) CreateAccount(c *gin.Context) {
	var req service.CreateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	account, err := h.accountService.CreateAccount(c.Request.Context(), req, currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, account))
}

// UpdateAccount patches an account
// @Summary      Update account
// @Tags         accounts
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                        true  "Account ID"
// @Param        payload  body      service.UpdateAccountRequest  true  "Fields to change"
// @Success      200      {object}  response.Response{data=service.AccountResponse}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /api/accounts/{id} [put]
func (h *AccountHandler) UpdateAccount(c *gin.Context) {
	var req service.UpdateAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	account, err := h.accountService.UpdateAccount(c.Request.Context(), c.Param("id"), req, currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, account))
}

// DeactivateAccount stops an account from receiving new postings
// @Summary      Deactivate account
// @Tags         accounts
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Account ID"
// @Success      200  {object}  response.Response{data=service.AccountResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/accounts/{id}/deactivate [post]
func (h *AccountHandler) DeactivateAccount(c *gin.Context) {
	account, err := h.accountService.DeactivateAccount(c.Request.Context(), c.Param("id"), currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, account))
}

// DeleteAccount removes an unused, non-system account
// @Summary      Delete account
// @Tags         accounts
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Account ID"
// @Success      200  {object}  response.Response
// @Failure      400  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/accounts/{id} [delete]
func (h *AccountHandler) DeleteAccount(c *gin.Context) {
	if err := h.accountService.DeleteAccount(c.Request.Context(), c.Param("id"), currentUser(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "Account deleted"}))
}

// SeedAccounts installs the default chart and wires default accounts into settings
// @Summary      Seed default accounts
// @Tags         accounts
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  response.Response{data=service.SeedAccountsResponse}
// @Router       /api/accounts/seed [post]
func (h *AccountHandler) SeedAccounts(c *gin.Context) {
	res, err := h.accountService.SeedDefaultAccounts(c.Request.Context(), currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}
