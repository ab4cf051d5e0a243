package handlers

import (
	"net/http"

	"qteams/services"

	"github.com/gin-gonic/gin"
)

type TeamHandler struct {
	teamService *services.TeamService
}

func NewTeamHandler(teamService *services.TeamService) *TeamHandler {
	return &TeamHandler{
		teamService: teamService,
	}
}

// ListTeams supports the name query filter.
func (h *TeamHandler) ListTeams(c *gin.Context) {
	teams, err := h.teamService.ListTeams(c.Request.Context(), c.Query("name"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, teams)
}

func (h *TeamHandler) MyTeams(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	teams, err := h.teamService.TeamsForUser(c.Request.Context(), userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, teams)
}

func (h *TeamHandler) CreateTeam(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}

	var req services.CreateTeamRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	team, err := h.teamService.CreateTeam(c.Request.Context(), userID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, team)
}

func (h *TeamHandler) GetTeam(c *gin.Context) {
	teamID, ok := paramID(c, "id")
	if !ok {
		return
	}

	team, err := h.teamService.GetTeam(c.Request.Context(), teamID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, team)
}

// GetState returns the team as seen by the caller.
func (h *TeamHandler) GetState(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	teamID, ok := paramID(c, "id")
	if !ok {
		return
	}

	state, err := h.teamService.State(c.Request.Context(), teamID, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, state)
}

// GetUserQuestion returns the caller's question of the running round.
func (h *TeamHandler) GetUserQuestion(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	teamID, ok := paramID(c, "id")
	if !ok {
		return
	}

	question, err := h.teamService.UserQuestion(c.Request.Context(), teamID, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, question)
}

func (h *TeamHandler) AdvancePhase(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	teamID, ok := paramID(c, "id")
	if !ok {
		return
	}

	team, err := h.teamService.AdvancePhase(c.Request.Context(), teamID, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, team)
}

func (h *TeamHandler) SubmitQuestion(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	teamID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req services.SubmitQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	team, err := h.teamService.SubmitQuestion(c.Request.Context(), teamID, userID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, team)
}

func (h *TeamHandler) UpdateQuestion(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	questionID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req services.SubmitQuestionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	question, err := h.teamService.UpdateQuestion(c.Request.Context(), questionID, userID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, question)
}

func (h *TeamHandler) RemoveQuestion(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	questionID, ok := paramID(c, "id")
	if !ok {
		return
	}

	if err := h.teamService.RemoveQuestion(c.Request.Context(), questionID, userID); err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "Question deleted successfully"})
}

func (h *TeamHandler) SubmitAnswer(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	teamID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req services.SubmitAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	team, err := h.teamService.SubmitAnswer(c.Request.Context(), teamID, userID, &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, team)
}

func (h *TeamHandler) ScoreAnswer(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	answerID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req services.ScoreAnswerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	answer, err := h.teamService.ScoreAnswer(c.Request.Context(), answerID, userID, *req.Score)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, answer)
}

// AddMember adds the user in the body, or the caller when the body is empty.
func (h *TeamHandler) AddMember(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	teamID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req services.MemberRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
	} else {
		req.UserID = userID
	}

	team, err := h.teamService.AddMember(c.Request.Context(), teamID, userID, req.UserID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, team)
}

// RemoveMember answers 204 when the last member left and the team is gone.
func (h *TeamHandler) RemoveMember(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	teamID, ok := paramID(c, "id")
	if !ok {
		return
	}
	memberID, ok := paramID(c, "userId")
	if !ok {
		return
	}

	team, err := h.teamService.RemoveMember(c.Request.Context(), teamID, userID, memberID)
	if err != nil {
		respondError(c, err)
		return
	}
	if team == nil {
		c.Status(http.StatusNoContent)
		return
	}

	c.JSON(http.StatusOK, team)
}

func (h *TeamHandler) SetMode(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	teamID, ok := paramID(c, "id")
	if !ok {
		return
	}

	var req services.SetModeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	team, err := h.teamService.SetMode(c.Request.Context(), teamID, userID, req.Mode)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, team)
}

func (h *TeamHandler) ArchiveTeam(c *gin.Context) {
	userID, ok := currentUser(c)
	if !ok {
		return
	}
	teamID, ok := paramID(c, "id")
	if !ok {
		return
	}

	team, err := h.teamService.ArchiveTeam(c.Request.Context(), teamID, userID)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, team)
}
