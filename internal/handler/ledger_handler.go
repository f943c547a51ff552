package handler

import (
	"net/http"
	"strings"

	"gstbooks/internal/middleware"
	"gstbooks/internal/service"
	"gstbooks/pkg/response"

	"github.com/gin-gonic/gin"
)

type LedgerHandler struct {
	ledgerService service.LedgerService
}

func NewLedgerHandler(ledgerService service.LedgerService) *LedgerHandler {
	return &LedgerHandler{ledgerService: ledgerService}
}

func (h *LedgerHandler) RegisterRoutes(router *gin.RouterGroup) {
	ledger := router.Group("/api/ledger")
	{
		ledger.GET("/party-statement", middleware.ReadAccess(), h.PartyStatement)
		ledger.GET("/accounts/:id/statement", middleware.ReadAccess(), h.AccountStatement)
		ledger.GET("/trial-balance", middleware.ReadAccess(), h.TrialBalance)
		// voucher numbers contain slashes, e.g. INV/2024-25/0001
		ledger.GET("/vouchers/*number", middleware.ReadAccess(), h.GetVoucher)
		ledger.POST("/journals", middleware.WriteAccess(), h.CreateJournal)
	}

	reports := router.Group("/api/reports")
	{
		reports.GET("/gst-summary", middleware.ReadAccess(), h.GSTSummary)
	}
}

// PartyStatement projects a client's receivable or a vendor's payable ledger
// @Summary      Party statement
// @Description  Opening balance before from, running balance per entry and closing balance at to.
// @Tags         ledger
// @Security     BearerAuth
// @Produce      json
// @Param        party_type  query     string  true   "client or vendor"
// @Param        party_id    query     string  true   "Party ID"
// @Param        from        query     string  true   "From date (YYYY-MM-DD)"
// @Param        to          query     string  true   "To date (YYYY-MM-DD)"
// @Param        branch_id   query     string  false  "Branch ID"
// @Success      200         {object}  response.Response{data=service.StatementResponse}
// @Failure      400         {object}  response.Response
// @Router       /api/ledger/party-statement [get]
func (h *LedgerHandler) PartyStatement(c *gin.Context) {
	var q service.PartyStatementQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}

	st, err := h.ledgerService.PartyStatement(c.Request.Context(), q)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, st))
}

// AccountStatement projects one account's ledger
// @Summary      Account statement
// @Tags         ledger
// @Security     BearerAuth
// @Produce      json
// @Param        id    path      string  true  "Account ID"
// @Param        from  query     string  true  "From date (YYYY-MM-DD)"
// @Param        to    query     string  true  "To date (YYYY-MM-DD)"
// @Success      200   {object}  response.Response{data=service.StatementResponse}
// @Failure      404   {object}  response.Response
// @Router       /api/ledger/accounts/{id}/statement [get]
func (h *LedgerHandler) AccountStatement(c *gin.Context) {
	var q service.AccountStatementQuery
	if err := c.ShouldBindQuery(&q); err != nil {
		badRequest(c, err)
		return
	}

	st, err := h.ledgerService.AccountStatement(c.Request.Context(), c.Param("id"), q)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, st))
}

// TrialBalance lists every account balance as of a date
// @Summary      Trial balance
// @Tags         ledger
// @Security     BearerAuth
// @Produce      json
// @Param        as_of  query     string  false  "As-of date (YYYY-MM-DD, default today)"
// @Success      200    {object}  response.Response{data=service.TrialBalanceResponse}
// @Router       /api/ledger/trial-balance [get]
func (h *LedgerHandler) TrialBalance(c *gin.Context) {
	tb, err := h.ledgerService.TrialBalance(c.Request.Context(), c.Query("as_of"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, tb))
}

// GetVoucher returns all lines of one voucher
// @Summary      Get voucher
// @Tags         ledger
// @Security     BearerAuth
// @Produce      json
// @Param        number  path      string  true  "Voucher number"
// @Success      200     {object}  response.Response{data=service.VoucherResponse}
// @Failure      404     {object}  response.Response
// @Router       /api/ledger/vouchers/{number} [get]
func (h *LedgerHandler) GetVoucher(c *gin.Context) {
	number := strings.TrimPrefix(c.Param("number"), "/")

	v, err := h.ledgerService.GetVoucher(c.Request.Context(), number)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, v))
}

// CreateJournal posts a balanced manual or opening-balance voucher
// @Summary      Create journal
// @Tags         ledger
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreateJournalRequest  true  "Journal payload"
// @Success      201      {object}  response.Response{data=service.VoucherResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/ledger/journals [post]
func (h *LedgerHandler) CreateJournal(c *gin.Context) {
	var req service.CreateJournalRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, err)
		return
	}

	v, err := h.ledgerService.CreateJournal(c.Request.Context(), req, currentUser(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, v))
}

// GSTSummary aggregates tax by invoice type for a period
// @Summary      GST summary
// @Tags         reports
// @Security     BearerAuth
// @Produce      json
// @Param        from  query     string  true  "From date (YYYY-MM-DD)"
// @Param        to    query     string  true  "To date (YYYY-MM-DD)"
// @Success      200   {object}  response.Response{data=service.GSTSummaryResponse}
// @Failure      400   {object}  response.Response
// @Router       /api/reports/gst-summary [get]
func (h *LedgerHandler) GSTSummary(c *gin.Context) {
	sum, err := h.ledgerService.GSTSummary(c.Request.Context(), c.Query("from"), c.Query("to"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, response.Success(http.StatusOK, sum))
}
