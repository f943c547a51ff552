package handler

import (
	"net/http"

	"gstbooks/internal/middleware"
	"gstbooks/internal/service"
	"gstbooks/pkg/pagination"
	"gstbooks/pkg/response"

	"github.com/gin-gonic/gin"
)

type InvoiceHandler struct {
	invoiceService service.InvoiceService
}

func NewInvoiceHandler(invoiceService service.InvoiceService) *InvoiceHandler {
	return &InvoiceHandler{invoiceService: invoiceService}
}

func (h *InvoiceHandler) RegisterRoutes(router *gin.RouterGroup) {
	invoices := router.Group("/api/invoices")
	{
		invoices.GET("", middleware.ReadAccess(), h.ListInvoices)
		invoices.GET("/:id", middleware.ReadAccess(), h.GetInvoice)
		invoices.POST("", middleware.WriteAccess(), h.CreateInvoice)
		invoices.POST("/preview", middleware.ReadAccess(), h.PreviewInvoice)
		invoices.POST("/mark-overdue", middleware.WriteAccess(), h.MarkOverdue)
		invoices.PUT("/:id", middleware.WriteAccess(), h.UpdateInvoice)
		invoices.POST("/:id/send", middleware.WriteAccess(), h.SendInvoice)
		invoices.POST("/:id/cancel", middleware.WriteAccess(), h.CancelInvoice)
	}
}

// CreateInvoice creates a draft invoice, posting it at once when settings say ON_CREATE
// @Summary      Create invoice
// @Description  Computes GST, TDS and TCS totals and stores the invoice. Posts the voucher immediately when ledger_posting_on is ON_CREATE.
// @Tags         invoices
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.InvoiceRequest  true  "Invoice payload"
// @Success      201      {object}  response.Response{data=service.InvoiceResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Failure      422      {object}  response.Response
// @Router       /api/invoices [post]
func (h *InvoiceHandler) CreateInvoice(c *gin.Context) {
	var req service.InvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	invoice, err := h.invoiceService.CreateInvoice(c.Request.Context(), req, currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, invoice))
}

// PreviewInvoice computes totals without saving anything
// @Summary      Preview invoice totals
// @Tags         invoices
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.InvoiceRequest  true  "Invoice payload"
// @Success      200      {object}  response.Response{data=service.TotalsResponse}
// @Failure      400      {object}  response.Response
// @Failure      422      {object}  response.Response
// @Router       /api/invoices/preview [post]
func (h *InvoiceHandler) PreviewInvoice(c *gin.Context) {
	var req service.InvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	totals, err := h.invoiceService.PreviewTotals(c.Request.Context(), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, totals))
}

// ListInvoices returns a paginated list of invoices
// @Summary      List invoices
// @Tags         invoices
// @Security     BearerAuth
// @Produce      json
// @Param        invoice_type  query     string  false  "SALES, PURCHASE, CREDIT_NOTE or DEBIT_NOTE"
// @Param        status        query     string  false  "DRAFT, SENT, PARTIAL, PAID, OVERDUE or CANCELLED"
// @Param        client_id     query     string  false  "Client ID"
// @Param        vendor_id     query     string  false  "Vendor ID"
// @Param        from          query     string  false  "From date (YYYY-MM-DD)"
// @Param        to            query     string  false  "To date (YYYY-MM-DD)"
// @Param        page          query     int     false  "Page number (default 1)"
// @Param        limit         query     int     false  "Number of items per page (default 20)"
// @Success      200           {object}  response.Response{data=response.Page{items=[]service.InvoiceResponse}}
// @Failure      400           {object}  response.Response
// @Router       /api/invoices [get]
func (h *InvoiceHandler) ListInvoices(c *gin.Context) {
	p := pagination.Parse(c)

	invoices, total, err := h.invoiceService.ListInvoices(c.Request.Context(), service.ListInvoicesFilter{
		InvoiceType: c.Query("invoice_type"),
		Status:      c.Query("status"),
		ClientID:    c.Query("client_id"),
		VendorID:    c.Query("vendor_id"),
		From:        c.Query("from"),
		To:          c.Query("to"),
		Page:        p.Page,
		Limit:       p.Limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, p.Of(invoices, total)))
}

// GetInvoice returns one invoice with its items
// @Summary      Get invoice
// @Tags         invoices
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Invoice ID"
// @Success      200  {object}  response.Response{data=service.InvoiceResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/invoices/{id} [get]
func (h *InvoiceHandler) GetInvoice(c *gin.Context) {
	invoice, err := h.invoiceService.GetInvoice(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, invoice))
}

// UpdateInvoice replaces a draft invoice and recomputes its totals
// @Summary      Update draft invoice
// @Tags         invoices
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                  true  "Invoice ID"
// @Param        payload  body      service.InvoiceRequest  true  "Invoice payload"
// @Success      200      {object}  response.Response{data=service.InvoiceResponse}
// @Failure      400      {object}  response.Response
// @Failure      404      {object}  response.Response
// @Router       /api/invoices/{id} [put]
func (h *InvoiceHandler) UpdateInvoice(c *gin.Context) {
	var req service.InvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	invoice, err := h.invoiceService.UpdateInvoice(c.Request.Context(), c.Param("id"), req, currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, invoice))
}

// SendInvoice issues a draft invoice and posts its voucher
// @Summary      Send invoice
// @Tags         invoices
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Invoice ID"
// @Success      200  {object}  response.Response{data=service.InvoiceResponse}
// @Failure      404  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/invoices/{id}/send [post]
func (h *InvoiceHandler) SendInvoice(c *gin.Context) {
	invoice, err := h.invoiceService.SendInvoice(c.Request.Context(), c.Param("id"), currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, invoice))
}

// CancelInvoice cancels an invoice, reversing its voucher when posted
// @Summary      Cancel invoice
// @Tags         invoices
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                        true  "Invoice ID"
// @Param        payload  body      service.CancelInvoiceRequest  true  "Cancellation"
// @Success      200      {object}  response.Response{data=service.InvoiceResponse}
// @Failure      400      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/invoices/{id}/cancel [post]
func (h *InvoiceHandler) CancelInvoice(c *gin.Context) {
	var req service.CancelInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	invoice, err := h.invoiceService.CancelInvoice(c.Request.Context(), c.Param("id"), req, currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, invoice))
}

// MarkOverdue flags issued invoices past their due date
// @Summary      Mark overdue invoices
// @Tags         invoices
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.MarkOverdueRequest  true  "Cut-off date"
// @Success      200      {object}  response.Response{data=service.MarkOverdueResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/invoices/mark-overdue [post]
func (h *InvoiceHandler) MarkOverdue(c *gin.Context) {
	var req service.MarkOverdueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	res, err := h.invoiceService.MarkOverdue(c.Request.Context(), req, currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, res))
}
