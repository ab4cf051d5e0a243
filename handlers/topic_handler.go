package handlers

import (
	"net/http"

	"qteams/services"

	"github.com/gin-gonic/gin"
)

type TopicHandler struct {
	topicService *services.TopicService
}

func NewTopicHandler(topicService *services.TopicService) *TopicHandler {
	return &TopicHandler{
		topicService: topicService,
	}
}

// ListTopics supports the code and name query filters.
func (h *TopicHandler) ListTopics(c *gin.Context) {
	topics, err := h.topicService.ListTopics(c.Request.Context(), c.Query("code"), c.Query("name"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, topics)
}

func (h *TopicHandler) GetTopic(c *gin.Context) {
	id, ok := paramID(c, "id")
	if !ok {
		return
	}

	topic, err := h.topicService.GetTopic(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, topic)
}

func (h *TopicHandler) CreateTopic(c *gin.Context) {
	var req services.CreateTopicRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	topic, err := h.topicService.CreateTopic(c.Request.Context(), &req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, topic)
}
