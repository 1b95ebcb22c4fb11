package api

import (
	"context"       // Operation signature
	"encoding/json" // Raw amount decoding
	"net/http"      // HTTP status codes
	"strconv"       // Key building

	"github.com/gin-gonic/gin"      // Gin web framework
	"github.com/shopspring/decimal" // Fixed-point money
	"github.com/sirupsen/logrus"    // Logging library

	"github.com/The-Quan/atm-banking-2/internal/auth"       // Authorization
	"github.com/The-Quan/atm-banking-2/internal/cache"      // Read cache
	"github.com/The-Quan/atm-banking-2/internal/domain"     // Domain models
	"github.com/The-Quan/atm-banking-2/internal/ledger"     // Ledger engine
	"github.com/The-Quan/atm-banking-2/internal/middleware" // Claims access
)

// AmountRequest is a deposit or withdrawal
type AmountRequest struct {
	AccountID int64           `json:"account_id" binding:"required"` // Target account
	Amount    json.RawMessage `json:"amount" binding:"required"`     // Number or numeric string
}

// TransferRequest represents a transfer request
type TransferRequest struct {
	SenderID   int64           `json:"sender_id" binding:"required"`   // Debited account
	ReceiverID int64           `json:"receiver_id" binding:"required"` // Credited account
	Amount     json.RawMessage `json:"amount" binding:"required"`      // Number or numeric string
}

// BalanceResponse is the cached balance payload
type BalanceResponse struct {
	AccountID int64           `json:"account_id"` // Account id
	Balance   decimal.Decimal `json:"balance"`    // Current balance
}

// HistoryResponse is one cached page of account history
type HistoryResponse struct {
	Transactions []domain.Transaction `json:"transactions"` // Most recent first
	Page         int                  `json:"page"`         // Current page
	PageSize     int                  `json:"page_size"`    // Page size
	Total        int64                `json:"total"`        // Total number of records
	TotalPages   int                  `json:"total_pages"`  // Total pages
}

// GetUserHandler returns a user profile to its owner or an admin
func GetUserHandler(users ledger.UserDirectory, gw auth.Gateway) gin.HandlerFunc {
	return func(c *gin.Context) {
		userID, ok := idParam(c, "id")
		if !ok {
			return
		}
		claims, _ := middleware.Claims(c)
		if err := gw.AuthorizeUser(claims, userID); err != nil {
			respondError(c, err)
			return
		}
		user, err := users.GetUser(c.Request.Context(), userID)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, user)
	}
}

// GetBalanceHandler returns the account balance, served from cache when possible
func GetBalanceHandler(eng *ledger.Engine, rc *cache.Cache, gw auth.Gateway) gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID, ok := idParam(c, "account_id")
		if !ok {
			return
		}
		claims, _ := middleware.Claims(c)
		if err := gw.Authorize(claims, accountID, auth.Read); err != nil {
			respondError(c, err)
			return
		}
		ctx := c.Request.Context()
		key := rc.BalanceKey(ctx, accountID) // Cache key for this account, built before the load
		var cached BalanceResponse
		// If cached data found, return it
		if found, err := rc.Get(ctx, key, &cached); err == nil && found {
			c.JSON(http.StatusOK, gin.H{"account_id": cached.AccountID, "balance": cached.Balance, "cached": true})
			return
		}
		acct, err := eng.Account(ctx, accountID)
		if err != nil {
			respondError(c, err)
			return
		}
		resp := BalanceResponse{AccountID: acct.ID, Balance: acct.Balance}
		_ = rc.Set(ctx, key, resp) // Cache the response for future requests
		c.JSON(http.StatusOK, gin.H{"account_id": resp.AccountID, "balance": resp.Balance, "cached": false})
	}
}

// GetTransactionHistoryHandler returns a page of the account's history, most recent first
func GetTransactionHistoryHandler(eng *ledger.Engine, rc *cache.Cache, gw auth.Gateway) gin.HandlerFunc {
	return func(c *gin.Context) {
		accountID, ok := idParam(c, "account_id")
		if !ok {
			return
		}
		claims, _ := middleware.Claims(c)
		if err := gw.Authorize(claims, accountID, auth.Read); err != nil {
			respondError(c, err)
			return
		}
		ctx := c.Request.Context()
		page, pageSize, window := pagination(c)
		key := rc.HistoryKey(ctx, accountID, page, pageSize)
		var cached HistoryResponse
		// If cached data found, return it
		if found, err := rc.Get(ctx, key, &cached); err == nil && found {
			c.JSON(http.StatusOK, gin.H{
				"transactions": cached.Transactions,
				"page":         cached.Page,
				"page_size":    cached.PageSize,
				"total":        cached.Total,
				"total_pages":  cached.TotalPages,
				"cached":       true,
			})
			return
		}
		txs, total, err := eng.History(ctx, accountID, window)
		if err != nil {
			respondError(c, err)
			return
		}
		resp := HistoryResponse{
			Transactions: txs,
			Page:         page,
			PageSize:     pageSize,
			Total:        total,
			TotalPages:   totalPages(total, pageSize),
		}
		_ = rc.Set(ctx, key, resp) // Cache the response for future requests
		c.JSON(http.StatusOK, gin.H{
			"transactions": resp.Transactions,
			"page":         resp.Page,
			"page_size":    resp.PageSize,
			"total":        resp.Total,
			"total_pages":  resp.TotalPages,
			"cached":       false,
		})
	}
}

// DepositHandler credits the caller's account
func DepositHandler(eng *ledger.Engine, rc *cache.Cache, gw auth.Gateway) gin.HandlerFunc {
	return amountHandler(rc, gw, "Deposit successful", eng.Deposit)
}

// WithdrawHandler debits the caller's account within the daily limit
func WithdrawHandler(eng *ledger.Engine, rc *cache.Cache, gw auth.Gateway) gin.HandlerFunc {
	return amountHandler(rc, gw, "Withdrawal successful", eng.Withdraw)
}

// amountOp is Engine.Deposit or Engine.Withdraw
type amountOp func(ctx context.Context, accountID int64, amount decimal.Decimal) (*ledger.Receipt, error)

func amountHandler(rc *cache.Cache, gw auth.Gateway, message string, op amountOp) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req AmountRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request")
			return
		}
		amount, err := ledger.ParseAmount(string(req.Amount))
		if err != nil {
			respondError(c, err)
			return
		}
		claims, _ := middleware.Claims(c)
		if err := gw.Authorize(claims, req.AccountID, auth.Mutate); err != nil {
			respondError(c, err)
			return
		}
		rcpt, err := op(c.Request.Context(), req.AccountID, amount)
		if err != nil {
			respondError(c, err)
			return
		}
		invalidate(c, rc, req.AccountID)
		c.JSON(http.StatusOK, gin.H{"message": message, "transaction": rcpt})
	}
}

// TransferHandler moves funds from the caller's account to another account
func TransferHandler(eng *ledger.Engine, rc *cache.Cache, gw auth.Gateway) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req TransferRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request")
			return
		}
		amount, err := ledger.ParseAmount(string(req.Amount))
		if err != nil {
			respondError(c, err)
			return
		}
		claims, _ := middleware.Claims(c)
		if err := gw.Authorize(claims, req.SenderID, auth.Mutate); err != nil {
			respondError(c, err)
			return
		}
		rcpt, err := eng.Transfer(c.Request.Context(), req.SenderID, req.ReceiverID, amount)
		if err != nil {
			respondError(c, err)
			return
		}
		invalidate(c, rc, req.SenderID, req.ReceiverID)
		c.JSON(http.StatusOK, gin.H{"message": "Transfer successful", "transaction": rcpt})
	}
}

// invalidate drops cached reads of the touched accounts
func invalidate(c *gin.Context, rc *cache.Cache, accountIDs ...int64) {
	if err := rc.InvalidateAccount(c.Request.Context(), accountIDs...); err != nil {
		ids := make([]string, len(accountIDs))
		for i, id := range accountIDs {
			ids[i] = strconv.FormatInt(id, 10)
		}
		logrus.WithFields(logrus.Fields{"account_ids": ids, "error": err.Error()}).Warn("Cache invalidation failed")
	}
}
