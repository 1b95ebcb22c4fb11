package api

import (
	"context"  // Store calls
	"net/http" // HTTP status codes
	"strconv"  // Key building
	"time"     // Date filters

	"github.com/gin-gonic/gin"      // Gin web framework
	"github.com/shopspring/decimal" // Fixed-point money

	"github.com/The-Quan/atm-banking-2/internal/cache"  // Read cache
	"github.com/The-Quan/atm-banking-2/internal/domain" // Domain models
	"github.com/The-Quan/atm-banking-2/internal/ledger" // Filters and pages
)

// AdminStore is the read side the admin listings need
type AdminStore interface {
	ListUsers(ctx context.Context, page ledger.Page) ([]domain.User, int64, error)
	SearchTransactions(ctx context.Context, f ledger.TransactionFilter) ([]domain.Transaction, int64, error)
}

// UserAdminResponse represents the user data returned to admin
type UserAdminResponse struct {
	ID        int64           `json:"id"`         // User ID
	Name      string          `json:"name"`       // Display name
	Email     string          `json:"email"`      // Email
	Role      string          `json:"role"`       // User role
	AccountID int64           `json:"account_id"` // Associated account
	Balance   decimal.Decimal `json:"balance"`    // Account balance
}

type usersPage struct {
	Users      []UserAdminResponse `json:"users"`       // List of users
	Page       int                 `json:"page"`        // Current page
	PageSize   int                 `json:"page_size"`   // Page size
	Total      int64               `json:"total"`       // Total number of users
	TotalPages int                 `json:"total_pages"` // Total pages
}

type transactionsPage struct {
	Transactions []domain.Transaction `json:"transactions"` // List of transactions
	Page         int                  `json:"page"`         // Current page
	PageSize     int                  `json:"page_size"`    // Page size
	Total        int64                `json:"total"`        // Total number of transactions
	TotalPages   int                  `json:"total_pages"`  // Total pages
}

// ListUsersHandler returns all users with their account info
func ListUsersHandler(store AdminStore, rc *cache.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		page, pageSize, window := pagination(c)
		// Create a cache key based on pagination parameters
		key := rc.AdminKey(ctx, "users", "page="+strconv.Itoa(page), "size="+strconv.Itoa(pageSize))
		var cached usersPage
		// If cached data found, return it
		if found, err := rc.Get(ctx, key, &cached); err == nil && found {
			c.JSON(http.StatusOK, gin.H{
				"users":       cached.Users,
				"page":        cached.Page,
				"page_size":   cached.PageSize,
				"total":       cached.Total,
				"total_pages": cached.TotalPages,
				"cached":      true, // Indicate response is from cache
			})
			return
		}
		users, total, err := store.ListUsers(ctx, window)
		if err != nil {
			respondError(c, err)
			return
		}
		// Map users to response format
		resp := usersPage{Users: make([]UserAdminResponse, len(users)), Page: page, PageSize: pageSize, Total: total, TotalPages: totalPages(total, pageSize)}
		for i, u := range users {
			resp.Users[i] = UserAdminResponse{ID: u.ID, Name: u.Name, Email: u.Email, Role: u.Role}
			if u.Account != nil {
				resp.Users[i].AccountID = u.Account.ID
				resp.Users[i].Balance = u.Account.Balance
			}
		}
		_ = rc.Set(ctx, key, resp) // Cache the response for future requests
		c.JSON(http.StatusOK, gin.H{
			"users":       resp.Users,
			"page":        resp.Page,
			"page_size":   resp.PageSize,
			"total":       resp.Total,
			"total_pages": resp.TotalPages,
			"cached":      false, // Indicate response is not from cache
		})
	}
}

// ListTransactionsHandler returns all transactions, with optional filtering by account, type, or date
func ListTransactionsHandler(store AdminStore, rc *cache.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx := c.Request.Context()
		page, pageSize, window := pagination(c)
		f := ledger.TransactionFilter{Page: window}
		if v := c.Query("account_id"); v != "" {
			id, err := strconv.ParseInt(v, 10, 64)
			if err != nil || id <= 0 {
				badRequest(c, "Invalid account_id")
				return
			}
			f.AccountID = id // Filter by account
		}
		if v := c.Query("type"); v != "" {
			f.Type = domain.TransactionType(v)
			if !f.Type.Valid() {
				badRequest(c, "Invalid type")
				return
			}
		}
		var ok bool
		if f.From, ok = dateParam(c, "from", false); !ok {
			return
		}
		if f.To, ok = dateParam(c, "to", true); !ok {
			return
		}
		// Build cache key from all filter params
		key := rc.AdminKey(ctx, "txs",
			"account="+strconv.FormatInt(f.AccountID, 10),
			"type="+string(f.Type),
			"from="+c.Query("from"),
			"to="+c.Query("to"),
			"page="+strconv.Itoa(page),
			"size="+strconv.Itoa(pageSize))
		var cached transactionsPage
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
		txs, total, err := store.SearchTransactions(ctx, f)
		if err != nil {
			respondError(c, err)
			return
		}
		resp := transactionsPage{Transactions: txs, Page: page, PageSize: pageSize, Total: total, TotalPages: totalPages(total, pageSize)}
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

// dateParam accepts RFC 3339 timestamps or plain dates. A plain "to" date
// covers the whole day.
func dateParam(c *gin.Context, name string, endOfDay bool) (time.Time, bool) {
	v := c.Query(name)
	if v == "" {
		return time.Time{}, true
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return t.UTC(), true
	}
	t, err := time.Parse(domain.BookingDateLayout, v)
	if err != nil {
		badRequest(c, "Invalid "+name)
		return time.Time{}, false
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return t, true
}
