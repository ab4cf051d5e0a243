package routes

import (
	"strconv"

	"qteams/models"

	"github.com/gin-gonic/gin"
)

// parseTeamID returns 0 for malformed ids, which no team has.
func parseTeamID(c *gin.Context) uint {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil {
		return 0
	}
	return uint(id)
}

func isMember(memberships []models.Membership, userID uint) bool {
	for _, m := range memberships {
		if m.UserID == userID {
			return true
		}
	}
	return false
}
