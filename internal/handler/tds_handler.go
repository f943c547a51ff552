package handler

import (
	"net/http"

	"gstbooks/internal/middleware"
	"gstbooks/internal/service"
	"gstbooks/pkg/response"

	"github.com/gin-gonic/gin"
)

type TDSHandler struct {
	tdsService service.TDSService
}

func NewTDSHandler(tdsService service.TDSService) *TDSHandler {
	return &TDSHandler{tdsService: tdsService}
}

func (h *TDSHandler) RegisterRoutes(router *gin.RouterGroup) {
	tds := router.Group("/api/tds")
	{
		tds.GET("/pending", middleware.ReadAccess(), h.PendingInvoices)
		tds.GET("/sheet", middleware.ReadAccess(), h.Sheet)

		tds.GET("/challans", middleware.ReadAccess(), h.ListChallans)
		tds.POST("/challans", middleware.WriteAccess(), h.GenerateChallan)
		tds.PUT("/challans/:id", middleware.WriteAccess(), h.UpdateChallan)
		tds.DELETE("/challans/:id", middleware.WriteAccess(), h.DeleteChallan)

		tds.GET("/returns", middleware.ReadAccess(), h.GetReturn)
		tds.POST("/returns/:id/file", middleware.WriteAccess(), h.FileReturn)
		tds.POST("/returns/:id/revise", middleware.WriteAccess(), h.ReviseReturn)
	}
}

// PendingInvoices lists TDS-bearing invoices of a month not yet in a challan
// @Summary      Pending TDS invoices
// @Tags         tds
// @Security     BearerAuth
// @Produce      json
// @Param        financial_year  query     string  true   "Financial year, e.g. 2024-25"
// @Param        month           query     int     true   "Calendar month 1-12"
// @Param        tds_type        query     string  true   "PAYABLE or RECEIVABLE"
// @Param        branch_id       query     string  false  "Branch ID"
// @Success      200             {object}  response.Response{data=service.PendingTDSResponse}
// @Failure      400             {object}  response.Response
// @Router       /api/tds/pending [get]
func (h *TDSHandler) PendingInvoices(c *gin.Context) {
	var q service.PendingTDSQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}

	res, err := h.tdsService.PendingInvoices(c.Request.Context(), q)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}

// GenerateChallan deposits the TDS of the selected invoices under one challan
// @Summary      Generate challan
// @Tags         tds
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.GenerateChallanRequest  true  "Challan payload"
// @Success      201      {object}  response.Response{data=service.ChallanResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Failure      423      {object}  response.Response
// @Router       /api/tds/challans [post]
func (h *TDSHandler) GenerateChallan(c *gin.Context) {
	var req service.GenerateChallanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	challan, err := h.tdsService.GenerateChallan(c.Request.Context(), req, currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, challan))
}

// ListChallans lists challans, live ones only unless include_superseded is set
// @Summary      List challans
// @Tags         tds
// @Security     BearerAuth
// @Produce      json
// @Param        financial_year      query     string  false  "Financial year"
// @Param        tds_type            query     string  false  "PAYABLE or RECEIVABLE"
// @Param        month               query     int     false  "Month"
// @Param        quarter             query     int     false  "Quarter"
// @Param        branch_id           query     string  false  "Branch ID"
// @Param        include_superseded  query     bool    false  "Include deleted challans"
// @Success      200                 {object}  response.Response{data=[]service.ChallanResponse}
// @Router       /api/tds/challans [get]
func (h *TDSHandler) ListChallans(c *gin.Context) {
	var q service.ChallanQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}

	challans, err := h.tdsService.ListChallans(c.Request.Context(), q)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, challans))
}

// UpdateChallan edits challan details and per-invoice penalty or interest
// @Summary      Update challan
// @Tags         tds
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                        true  "Challan ID"
// @Param        payload  body      service.UpdateChallanRequest  true  "Fields to change"
// @Success      200      {object}  response.Response{data=service.ChallanResponse}
// @Failure      404      {object}  response.Response
// @Failure      423      {object}  response.Response
// @Router       /api/tds/challans/{id} [put]
func (h *TDSHandler) UpdateChallan(c *gin.Context) {
	var req service.UpdateChallanRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	challan, err := h.tdsService.UpdateChallan(c.Request.Context(), c.Param("id"), req, currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, challan))
}

// DeleteChallan supersedes a challan and releases its invoices
// @Summary      Delete challan
// @Tags         tds
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Challan ID"
// @Success      200  {object}  response.Response
// @Failure      404  {object}  response.Response
// @Failure      423  {object}  response.Response
// @Router       /api/tds/challans/{id} [delete]
func (h *TDSHandler) DeleteChallan(c *gin.Context) {
	if err := h.tdsService.DeleteChallan(c.Request.Context(), c.Param("id"), currentUser(c)); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, gin.H{"message": "Challan deleted"}))
}

// Sheet summarizes a financial year's TDS month by month
// @Summary      TDS sheet
// @Tags         tds
// @Security     BearerAuth
// @Produce      json
// @Param        financial_year  query     string  true   "Financial year"
// @Param        tds_type        query     string  true   "PAYABLE or RECEIVABLE"
// @Param        branch_id       query     string  false  "Branch ID"
// @Success      200             {object}  response.Response{data=service.TDSSheetResponse}
// @Router       /api/tds/sheet [get]
func (h *TDSHandler) Sheet(c *gin.Context) {
	var q service.TDSSheetQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}

	sheet, err := h.tdsService.Sheet(c.Request.Context(), q)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, sheet))
}

// GetReturn loads a quarterly return, creating a draft on first access
// @Summary      Get quarterly return
// @Tags         tds
// @Security     BearerAuth
// @Produce      json
// @Param        financial_year  query     string  true   "Financial year"
// @Param        quarter         query     int     true   "Quarter 1-4"
// @Param        tds_type        query     string  true   "PAYABLE or RECEIVABLE"
// @Param        branch_id       query     string  false  "Branch ID"
// @Success      200             {object}  response.Response{data=service.TDSReturnResponse}
// @Router       /api/tds/returns [get]
func (h *TDSHandler) GetReturn(c *gin.Context) {
	var q service.TDSReturnQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}

	ret, err := h.tdsService.GetReturn(c.Request.Context(), q)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, ret))
}

// FileReturn marks a draft return as filed
// @Summary      File return
// @Tags         tds
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                     true  "Return ID"
// @Param        payload  body      service.FileReturnRequest  true  "Filing details"
// @Success      200      {object}  response.Response{data=service.TDSReturnResponse}
// @Failure      423      {object}  response.Response
// @Router       /api/tds/returns/{id}/file [post]
func (h *TDSHandler) FileReturn(c *gin.Context) {
	var req service.FileReturnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	ret, err := h.tdsService.FileReturn(c.Request.Context(), c.Param("id"), req, currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, ret))
}

// ReviseReturn records a revision of a filed return
// @Summary      Revise return
// @Tags         tds
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                     true  "Return ID"
// @Param        payload  body      service.FileReturnRequest  true  "Revision details"
// @Success      200      {object}  response.Response{data=service.TDSReturnResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/tds/returns/{id}/revise [post]
func (h *TDSHandler) ReviseReturn(c *gin.Context) {
	var req service.FileReturnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	ret, err := h.tdsService.ReviseReturn(c.Request.Context(), c.Param("id"), req, currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, ret))
}
