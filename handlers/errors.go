package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"qteams/middleware"
	"qteams/services"

	"github.com/gin-gonic/gin"
)

// respondError writes the status for a service error. Internal errors are
// attached to the context for the access log and hidden from the client.
func respondError(c *gin.Context, err error) {
	switch services.KindOf(err) {
	case services.KindPermission:
		c.JSON(http.StatusForbidden, gin.H{"error": err.Error()})
	case services.KindPhase:
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case services.KindValidation:
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case services.KindNotFound:
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	default:
		if errors.Is(err, services.ErrInvalidCredentials) {
			c.JSON(http.StatusUnauthorized, gin.H{"error": err.Error()})
			return
		}
		_ = c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
	}
}

// paramID parses a positive numeric path parameter.
func paramID(c *gin.Context, name string) (uint, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid " + name})
		return 0, false
	}
	return uint(id), true
}

func currentUser(c *gin.Context) (uint, bool) {
	userID, ok := middleware.UserID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "User not authenticated"})
		return 0, false
	}
	return userID, true
}
