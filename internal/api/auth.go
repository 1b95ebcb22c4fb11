package api

import (
	"net/http" // HTTP status codes

	"github.com/gin-gonic/gin" // Gin web framework

	"github.com/The-Quan/atm-banking-2/internal/identity" // Registration and login
)

// Request struct for registration
type RegisterRequest struct {
	Name     string `json:"name" binding:"required"`                  // Display name
	Email    string `json:"email" binding:"required,email"`           // Login and notification address
	Password string `json:"password" binding:"required,min=8,max=64"` // Plain password, hashed before storage
}

// Request struct for login
type LoginRequest struct {
	Email    string `json:"email" binding:"required"`    // Email must be provided
	Password string `json:"password" binding:"required"` // Password must be provided
}

// Request struct for password change
type ChangePasswordRequest struct {
	Email       string `json:"email" binding:"required"`                     // Account email
	OldPassword string `json:"old_password" binding:"required"`              // Current password
	NewPassword string `json:"new_password" binding:"required,min=8,max=64"` // Replacement password
}

// Response struct for authentication
type AuthResponse struct {
	Token     string `json:"token"`      // JWT token
	UserID    int64  `json:"user_id"`    // Authenticated user
	AccountID int64  `json:"account_id"` // The user's account
}

// RegisterHandler creates a user together with its zero balance account
func RegisterHandler(svc *identity.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req RegisterRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			// If binding fails, return bad request
			badRequest(c, "Invalid request")
			return
		}
		user, err := svc.Register(c.Request.Context(), req.Name, req.Email, req.Password)
		if err != nil {
			respondError(c, err)
			return
		}
		// Return success response
		c.JSON(http.StatusCreated, gin.H{
			"message":    "User registered successfully",
			"user_id":    user.ID,
			"account_id": user.Account.ID,
		})
	}
}

// LoginHandler authenticates a user and returns a JWT token
func LoginHandler(svc *identity.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req LoginRequest // Bind JSON request to struct
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request")
			return
		}
		token, user, err := svc.Login(c.Request.Context(), req.Email, req.Password)
		if err != nil {
			respondError(c, err)
			return
		}
		// Return the token in the response
		c.JSON(http.StatusOK, AuthResponse{Token: token, UserID: user.ID, AccountID: user.Account.ID})
	}
}

// ChangePasswordHandler replaces a password after verifying the old one
func ChangePasswordHandler(svc *identity.Service) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req ChangePasswordRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			badRequest(c, "Invalid request")
			return
		}
		if err := svc.ChangePassword(c.Request.Context(), req.Email, req.OldPassword, req.NewPassword); err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Password changed successfully"})
	}
}
