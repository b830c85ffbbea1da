package handlers

import (
	"errors"
	"net/http"

	"github.com/drishti/backend/models"
	"github.com/drishti/backend/store"
	"github.com/gin-gonic/gin"
)

// ListUsers handles GET /api/users
func ListUsers(c *gin.Context) {
	users, err := dataStore.ListUsers(c.Request.Context())
	if err != nil {
		respondStoreError(c, err, "Users")
		return
	}
	c.JSON(http.StatusOK, users)
}

// AddUser handles POST /api/users
func AddUser(c *gin.Context) {
	var req struct {
		Name     string      `json:"name" binding:"required"`
		Email    string      `json:"email" binding:"required,email"`
		Password string      `json:"password"`
		Role     models.Role `json:"role"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Name and a valid email are required"})
		return
	}
	if req.Role != "" && !req.Role.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Unknown role"})
		return
	}

	user := models.User{Name: req.Name, Email: req.Email, Role: req.Role}
	if req.Password != "" {
		hashed, err := HashPassword(req.Password)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to hash password"})
			return
		}
		user.PasswordHash = hashed
	}

	if err := dataStore.AddUser(c.Request.Context(), &user); err != nil {
		if errors.Is(err, store.ErrDuplicateEmail) {
			c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
			return
		}
		respondStoreError(c, err, "User")
		return
	}
	c.JSON(http.StatusCreated, user)
}

// DeleteUser handles DELETE /api/users/:id
func DeleteUser(c *gin.Context) {
	id := c.Param("id")
	if id == c.GetString("userID") {
		c.JSON(http.StatusBadRequest, gin.H{"error": "You cannot delete your own account"})
		return
	}
	if err := dataStore.DeleteUser(c.Request.Context(), id); err != nil {
		respondStoreError(c, err, "User")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}
