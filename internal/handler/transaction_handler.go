package handler

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"github.com/jordidiaz04/transactions/internal/middleware"
	"github.com/jordidiaz04/transactions/internal/model"
)

const dateLayout = "02/01/2006"

// Commander defines the write-side operations used by TransactionHandler.
type Commander interface {
	Deposit(ctx context.Context, accountNumber string, amount decimal.Decimal, description string) (string, error)
	Withdrawal(ctx context.Context, accountNumber string, amount decimal.Decimal, description string) (string, error)
	WithdrawalFromDebitCard(ctx context.Context, card string, amount decimal.Decimal, description string) (string, error)
	Transfer(ctx context.Context, exitNumber, entryNumber string, amount decimal.Decimal, description string) (string, error)
	PayCredit(ctx context.Context, creditNumber string, amount decimal.Decimal, description string) (string, error)
	SpendCredit(ctx context.Context, creditNumber string, amount decimal.Decimal, description string) (string, error)
}

// Querier defines the read-side operations used by TransactionHandler.
type Querier interface {
	ListByAccount(ctx context.Context, accountNumber string) ([]model.TransactionRecord, error)
	ListByCredit(ctx context.Context, creditNumber string) ([]model.TransactionRecord, error)
	ListAccountInRange(ctx context.Context, accountNumber string, start, end time.Time) ([]model.TransactionRecord, error)
	ListCreditInRange(ctx context.Context, creditNumber string, start, end time.Time) ([]model.TransactionRecord, error)
}

type TransactionHandler struct {
	commands Commander
	queries  Querier
}

func NewTransactionHandler(commands Commander, queries Querier) *TransactionHandler {
	return &TransactionHandler{commands: commands, queries: queries}
}

// RegisterRoutes mounts the transaction API. authMiddleware guards the
// mutating routes and may be nil when the service runs without auth.
func (h *TransactionHandler) RegisterRoutes(router gin.IRouter, authMiddleware gin.HandlerFunc) {
	group := router.Group("/transactions")

	group.GET("/account/:number", h.ListByAccountNumber)
	group.GET("/credit/:number", h.ListByCreditNumber)
	group.GET("/account/:number/range", h.ListAccountTransactionsInRange)
	group.GET("/credit/:number/range", h.ListCreditTransactionsInRange)

	mutations := group.Group("")
	if authMiddleware != nil {
		mutations.Use(authMiddleware)
	}
	mutations.POST("/deposit/account/:number", h.DepositAccount)
	mutations.POST("/withdrawals/account/:number", h.WithdrawalAccount)
	mutations.POST("/withdrawals/card/:card", h.WithdrawalFromDebitCard)
	mutations.POST("/transfer/:exitNumber/to/:entryNumber", h.TransferBetweenAccounts)
	mutations.POST("/pay/credit/:number", h.PayCredit)
	mutations.POST("/spend/credit/:number", h.SpendCredit)
}

// TransactionRequest is the body of every mutating operation. Description is
// optional; each route fills in its own default before calling the engine.
type TransactionRequest struct {
	Amount      decimal.Decimal `json:"amount" validate:"gte=1"`
	Description string          `json:"description"`
}

type ListTransactionsResponse struct {
	Transactions []model.TransactionRecord `json:"transactions"`
}

func (h *TransactionHandler) DepositAccount(c *gin.Context) {
	req, ok := bindTransactionRequest(c, "Deposit")
	if !ok {
		return
	}
	msg, err := h.commands.Deposit(c.Request.Context(), c.Param("number"), req.Amount, req.Description)
	if err != nil {
		respondOperationError(c, err, "Account not found")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

func (h *TransactionHandler) WithdrawalAccount(c *gin.Context) {
	req, ok := bindTransactionRequest(c, "Withdrawal")
	if !ok {
		return
	}
	msg, err := h.commands.Withdrawal(c.Request.Context(), c.Param("number"), req.Amount, req.Description)
	if err != nil {
		respondOperationError(c, err, "Account not found")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

func (h *TransactionHandler) WithdrawalFromDebitCard(c *gin.Context) {
	req, ok := bindTransactionRequest(c, "Withdrawal from debit card")
	if !ok {
		return
	}
	msg, err := h.commands.WithdrawalFromDebitCard(c.Request.Context(), c.Param("card"), req.Amount, req.Description)
	if err != nil {
		if errors.Is(err, model.ErrInsufficientFunds) {
			middleware.RespondWithError(c, http.StatusUnprocessableEntity, "You do not have enough balance in your accounts")
			return
		}
		respondOperationError(c, err, "Debit card not found")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

func (h *TransactionHandler) TransferBetweenAccounts(c *gin.Context) {
	req, ok := bindTransactionRequest(c, "Transfer between accounts")
	if !ok {
		return
	}
	msg, err := h.commands.Transfer(c.Request.Context(), c.Param("exitNumber"), c.Param("entryNumber"), req.Amount, req.Description)
	if err != nil {
		respondOperationError(c, err, "Account not found")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

func (h *TransactionHandler) PayCredit(c *gin.Context) {
	req, ok := bindTransactionRequest(c, "Pay credit")
	if !ok {
		return
	}
	msg, err := h.commands.PayCredit(c.Request.Context(), c.Param("number"), req.Amount, req.Description)
	if err != nil {
		respondOperationError(c, err, "Credit not found")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

func (h *TransactionHandler) SpendCredit(c *gin.Context) {
	req, ok := bindTransactionRequest(c, "Spend credit")
	if !ok {
		return
	}
	msg, err := h.commands.SpendCredit(c.Request.Context(), c.Param("number"), req.Amount, req.Description)
	if err != nil {
		respondOperationError(c, err, "Credit not found")
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": msg})
}

func (h *TransactionHandler) ListByAccountNumber(c *gin.Context) {
	records, err := h.queries.ListByAccount(c.Request.Context(), c.Param("number"))
	if err != nil {
		respondOperationError(c, err, "Account not found")
		return
	}
	c.JSON(http.StatusOK, ListTransactionsResponse{Transactions: records})
}

func (h *TransactionHandler) ListByCreditNumber(c *gin.Context) {
	records, err := h.queries.ListByCredit(c.Request.Context(), c.Param("number"))
	if err != nil {
		respondOperationError(c, err, "Credit not found")
		return
	}
	c.JSON(http.StatusOK, ListTransactionsResponse{Transactions: records})
}

func (h *TransactionHandler) ListAccountTransactionsInRange(c *gin.Context) {
	start, end, ok := bindDateRange(c)
	if !ok {
		return
	}
	records, err := h.queries.ListAccountInRange(c.Request.Context(), c.Param("number"), start, end)
	if err != nil {
		respondOperationError(c, err, "Account not found")
		return
	}
	c.JSON(http.StatusOK, ListTransactionsResponse{Transactions: records})
}

func (h *TransactionHandler) ListCreditTransactionsInRange(c *gin.Context) {
	start, end, ok := bindDateRange(c)
	if !ok {
		return
	}
	records, err := h.queries.ListCreditInRange(c.Request.Context(), c.Param("number"), start, end)
	if err != nil {
		respondOperationError(c, err, "Credit not found")
		return
	}
	c.JSON(http.StatusOK, ListTransactionsResponse{Transactions: records})
}

// bindTransactionRequest parses and validates the body, resolving the default
// description once at this boundary so the engine only ever sees final values.
func bindTransactionRequest(c *gin.Context, defaultDescription string) (TransactionRequest, bool) {
	var req TransactionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Invalid request body")
		return req, false
	}
	if validationErrors := middleware.ValidateRequest(req); validationErrors != nil {
		middleware.RespondWithValidationError(c, validationErrors)
		return req, false
	}
	if req.Description == "" {
		req.Description = defaultDescription
	}
	return req, true
}

func bindDateRange(c *gin.Context) (time.Time, time.Time, bool) {
	startParam := c.Query("start")
	endParam := c.Query("end")
	if startParam == "" {
		middleware.RespondWithError(c, http.StatusBadRequest, "Field start must be required")
		return time.Time{}, time.Time{}, false
	}
	if endParam == "" {
		middleware.RespondWithError(c, http.StatusBadRequest, "Field end must be required")
		return time.Time{}, time.Time{}, false
	}
	start, err := time.Parse(dateLayout, startParam)
	if err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Field start must use format dd/MM/yyyy")
		return time.Time{}, time.Time{}, false
	}
	end, err := time.Parse(dateLayout, endParam)
	if err != nil {
		middleware.RespondWithError(c, http.StatusBadRequest, "Field end must use format dd/MM/yyyy")
		return time.Time{}, time.Time{}, false
	}
	return start, end, true
}

func respondOperationError(c *gin.Context, err error, notFoundMessage string) {
	switch {
	case errors.Is(err, model.ErrProductNotFound):
		middleware.RespondWithError(c, http.StatusNotFound, notFoundMessage)
	case errors.Is(err, model.ErrInsufficientFunds):
		middleware.RespondWithError(c, http.StatusUnprocessableEntity, "You do not have a balance to carry out this transaction")
	default:
		middleware.RespondWithError(c, http.StatusInternalServerError, "Failed to process transaction")
	}
}
