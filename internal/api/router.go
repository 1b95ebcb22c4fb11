package api

import (
	"context"  // Health probes
	"net/http" // HTTP status codes
	"time"     // Probe timeout

	"github.com/gin-gonic/gin" // Gin web framework

	"github.com/The-Quan/atm-banking-2/internal/auth"       // Token issuing and authorization
	"github.com/The-Quan/atm-banking-2/internal/cache"      // Read cache
	"github.com/The-Quan/atm-banking-2/internal/identity"   // Registration and login
	"github.com/The-Quan/atm-banking-2/internal/ledger"     // Ledger engine
	"github.com/The-Quan/atm-banking-2/internal/middleware" // Auth and logging middleware
)

// Probe reports whether a dependency is reachable
type Probe func(ctx context.Context) error

// Deps is everything the router wires into handlers
type Deps struct {
	Engine   *ledger.Engine       // Ledger operations
	Users    ledger.UserDirectory // User lookups
	Admin    AdminStore           // Admin listings
	Identity *identity.Service    // Registration and login
	Tokens   *auth.Issuer         // JWT validation
	Cache    *cache.Cache         // Optional Redis cache
	Probes   map[string]Probe     // Health checks by name
	Proxies  []string             // Trusted proxies
}

// NewRouter builds the gin engine with every route
func NewRouter(d Deps) (*gin.Engine, error) {
	r := gin.New()
	r.Use(gin.Recovery(), middleware.RequestLogger())
	// Set trusted proxies for Gin
	if err := r.SetTrustedProxies(d.Proxies); err != nil {
		return nil, err
	}
	gw := auth.Gateway{}

	r.GET("/health", HealthHandler(d.Probes)) // Liveness and dependency checks

	// Auth routes
	r.POST("/register", RegisterHandler(d.Identity))              // Registration endpoint
	r.POST("/login", LoginHandler(d.Identity))                    // Login endpoint
	r.POST("/change-password", ChangePasswordHandler(d.Identity)) // Password change endpoint

	// Account routes (protected by JWT)
	authed := r.Group("")
	authed.Use(middleware.JWTAuthMiddleware(d.Tokens))
	authed.GET("/user/:id", GetUserHandler(d.Users, gw))                                         // User profile endpoint
	authed.GET("/balance/:account_id", GetBalanceHandler(d.Engine, d.Cache, gw))                 // Balance endpoint
	authed.GET("/transactions/:account_id", GetTransactionHistoryHandler(d.Engine, d.Cache, gw)) // Transaction history endpoint
	authed.POST("/deposit", DepositHandler(d.Engine, d.Cache, gw))                               // Deposit endpoint
	authed.POST("/withdraw", WithdrawHandler(d.Engine, d.Cache, gw))                             // Withdraw endpoint
	authed.POST("/transfer", TransferHandler(d.Engine, d.Cache, gw))                             // Transfer endpoint

	// Admin routes (protected, admin only)
	admin := r.Group("/admin")
	admin.Use(middleware.JWTAuthMiddleware(d.Tokens), middleware.AdminOnlyMiddleware(d.Users))
	admin.GET("/users", ListUsersHandler(d.Admin, d.Cache))               // List users endpoint
	admin.GET("/transactions", ListTransactionsHandler(d.Admin, d.Cache)) // List transactions endpoint
	return r, nil
}

// HealthHandler runs every probe and reports 503 if any fails
func HealthHandler(probes map[string]Probe) gin.HandlerFunc {
	return func(c *gin.Context) {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		status := http.StatusOK
		checks := gin.H{}
		for name, probe := range probes {
			if err := probe(ctx); err != nil {
				checks[name] = err.Error()
				status = http.StatusServiceUnavailable
				continue
			}
			checks[name] = "ok"
		}
		state := "ok"
		if status != http.StatusOK {
			state = "degraded"
		}
		c.JSON(status, gin.H{"status": state, "checks": checks})
	}
}
