package handler

import (
	"net/http"

	"gstbooks/internal/middleware"
	"gstbooks/internal/service"
	"gstbooks/pkg/pagination"
	"gstbooks/pkg/response"

	"github.com/gin-gonic/gin"
)

type PaymentHandler struct {
	paymentService service.PaymentService
}

func NewPaymentHandler(paymentService service.PaymentService) *PaymentHandler {
	return &PaymentHandler{paymentService: paymentService}
}

func (h *PaymentHandler) RegisterRoutes(router *gin.RouterGroup) {
	payments := router.Group("/api/payments")
	{
		payments.GET("", middleware.ReadAccess(), h.ListPayments)
		payments.GET("/:id", middleware.ReadAccess(), h.GetPayment)
		payments.POST("", middleware.WriteAccess(), h.CreatePayment)
		payments.POST("/:id/complete", middleware.WriteAccess(), h.CompletePayment)
		payments.POST("/:id/cancel", middleware.WriteAccess(), h.CancelPayment)
	}
}

// CreatePayment records a receipt or a vendor payment
// @Summary      Create payment
// @Description  COMPLETED payments post a PAY voucher and update the linked invoice; PENDING ones wait for completion.
// @Tags         payments
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreatePaymentRequest  true  "Payment payload"
// @Success      201      {object}  response.Response{data=service.PaymentResponse}
// @Failure      400      {object}  response.Response
// @Failure      422      {object}  response.Response
// @Router       /api/payments [post]
func (h *PaymentHandler) CreatePayment(c *gin.Context) {
	var req service.CreatePaymentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	payment, err := h.paymentService.CreatePayment(c.Request.Context(), req, currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, payment))
}

// ListPayments returns a paginated list of payments
// @Summary      List payments
// @Tags         payments
// @Security     BearerAuth
// @Produce      json
// @Param        payment_type  query     string  false  "RECEIPT or PAYMENT"
// @Param        status        query     string  false  "PENDING, COMPLETED or CANCELLED"
// @Param        invoice_id    query     string  false  "Invoice ID"
// @Param        client_id     query     string  false  "Client ID"
// @Param        vendor_id     query     string  false  "Vendor ID"
// @Param        page          query     int     false  "Page number (default 1)"
// @Param        limit         query     int     false  "Number of items per page (default 20)"
// @Success      200           {object}  response.Response{data=response.Page{items=[]service.PaymentResponse}}
// @Router       /api/payments [get]
func (h *PaymentHandler) ListPayments(c *gin.Context) {
	p := pagination.Parse(c)

	payments, total, err := h.paymentService.ListPayments(c.Request.Context(), service.ListPaymentsFilter{
		PaymentType: c.Query("payment_type"),
		Status:      c.Query("status"),
		InvoiceID:   c.Query("invoice_id"),
		ClientID:    c.Query("client_id"),
		VendorID:    c.Query("vendor_id"),
		Page:        p.Page,
		Limit:       p.Limit,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, p.Of(payments, total)))
}

// GetPayment returns one payment
// @Summary      Get payment
// @Tags         payments
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Payment ID"
// @Success      200  {object}  response.Response{data=service.PaymentResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/payments/{id} [get]
func (h *PaymentHandler) GetPayment(c *gin.Context) {
	payment, err := h.paymentService.GetPayment(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, payment))
}

// CompletePayment completes a pending payment and posts it
// @Summary      Complete payment
// @Tags         payments
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Payment ID"
// @Success      200  {object}  response.Response{data=service.PaymentResponse}
// @Failure      409  {object}  response.Response
// @Router       /api/payments/{id}/complete [post]
func (h *PaymentHandler) CompletePayment(c *gin.Context) {
	payment, err := h.paymentService.CompletePayment(c.Request.Context(), c.Param("id"), currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, payment))
}

// CancelPayment cancels a payment, reversing its voucher when posted
// @Summary      Cancel payment
// @Tags         payments
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                        true   "Payment ID"
// @Param        payload  body      service.CancelPaymentRequest  false  "Cancellation"
// @Success      200      {object}  response.Response{data=service.PaymentResponse}
// @Failure      409      {object}  response.Response
// @Router       /api/payments/{id}/cancel [post]
func (h *PaymentHandler) CancelPayment(c *gin.Context) {
	var req service.CancelPaymentRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, err)
			return
		}
	}

	payment, err := h.paymentService.CancelPayment(c.Request.Context(), c.Param("id"), req, currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, payment))
}
