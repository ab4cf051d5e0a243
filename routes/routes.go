package routes

import (
	"net/http"

	"qteams/handlers"
	"qteams/logging"
	"qteams/middleware"
	"qteams/services"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

// Dependencies bundles what the router needs.
type Dependencies struct {
	AuthService    *services.AuthService
	TopicService   *services.TopicService
	TeamService    *services.TeamService
	Hub            *services.Hub
	AllowedOrigins []string
	Logger         *logging.Logger
}

func SetupRoutes(router *gin.Engine, deps Dependencies) {
	authHandler := handlers.NewAuthHandler(deps.AuthService)
	topicHandler := handlers.NewTopicHandler(deps.TopicService)
	teamHandler := handlers.NewTeamHandler(deps.TeamService)
	requireAuth := middleware.AuthMiddleware(deps.AuthService)

	api := router.Group("/api")
	{
		auth := api.Group("/auth")
		{
			auth.POST("/register", authHandler.Register)
			auth.POST("/login", authHandler.Login)
			auth.GET("/profile", requireAuth, authHandler.GetProfile)
		}

		topics := api.Group("/topics")
		{
			topics.GET("", topicHandler.ListTopics)
			topics.GET("/:id", topicHandler.GetTopic)
			topics.POST("", requireAuth, topicHandler.CreateTopic)
		}

		protected := api.Group("")
		protected.Use(requireAuth)
		{
			protected.GET("/me/teams", teamHandler.MyTeams)

			teams := protected.Group("/teams")
			{
				teams.GET("", teamHandler.ListTeams)
				teams.POST("", teamHandler.CreateTeam)
				teams.GET("/:id", teamHandler.GetTeam)
				teams.GET("/:id/state", teamHandler.GetState)
				teams.GET("/:id/question", teamHandler.GetUserQuestion)
				teams.POST("/:id/advance", teamHandler.AdvancePhase)
				teams.POST("/:id/questions", teamHandler.SubmitQuestion)
				teams.POST("/:id/answers", teamHandler.SubmitAnswer)
				teams.POST("/:id/members", teamHandler.AddMember)
				teams.DELETE("/:id/members/:userId", teamHandler.RemoveMember)
				teams.PUT("/:id/mode", teamHandler.SetMode)
				teams.POST("/:id/archive", teamHandler.ArchiveTeam)
			}

			questions := protected.Group("/questions")
			{
				questions.PUT("/:id", teamHandler.UpdateQuestion)
				questions.DELETE("/:id", teamHandler.RemoveQuestion)
			}

			protected.POST("/answers/:id/score", teamHandler.ScoreAnswer)
		}
	}

	// WebSocket endpoint for live team updates. Browsers cannot set headers
	// on the handshake, so the token may come as ?auth=<jwt>.
	router.GET("/ws/teams/:id", requireAuth, teamSocket(deps))

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
}

func teamSocket(deps Dependencies) gin.HandlerFunc {
	upgrader := websocket.Upgrader{
		CheckOrigin: func(r *http.Request) bool {
			return middleware.AllowOrigin(deps.AllowedOrigins, r.Header.Get("Origin"))
		},
	}
	log := deps.Logger
	if log == nil {
		log = logging.Nop()
	}

	return func(c *gin.Context) {
		userID, _ := middleware.UserID(c)
		username := c.GetString(middleware.UsernameKey)

		team, err := deps.TeamService.GetTeam(c.Request.Context(), parseTeamID(c))
		if err != nil {
			if services.IsNotFound(err) {
				c.JSON(http.StatusNotFound, gin.H{"error": "Team not found"})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal server error"})
			return
		}
		if !isMember(team.Memberships, userID) {
			c.JSON(http.StatusForbidden, gin.H{"error": "You are not a member of this team"})
			return
		}

		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.WithTeam(team.ID).WithUser(userID).Warn("websocket upgrade failed", "error", err)
			return
		}

		log.WithTeam(team.ID).WithUser(userID).Debug("websocket connected")
		deps.Hub.RegisterClient(conn, team.ID, userID, username)
	}
}
