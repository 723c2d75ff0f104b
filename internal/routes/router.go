package routes

import (
	"flagforge/internal/admin"
	"flagforge/internal/compete"
	"flagforge/internal/pkg"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
)

func SetupRouter(adminHandler *admin.AdminHandler, competeHandler *compete.CompeteHandler, jwtSecret string) *gin.Engine {
	router := gin.Default()
	router.Use(cors.Default())

	public := router.Group("/api/v1")
	{
		public.POST("/admin/login", adminHandler.AdminLogin)
		public.GET("/teams/:id/score", competeHandler.TeamScore)
		public.GET("/scoreboard", competeHandler.Scoreboard)
	}

	competitorRoutes := router.Group("/api/v1")
	competitorRoutes.Use(pkg.CompetitorAuthMiddleware(jwtSecret))
	{
		competitorRoutes.POST("/submissions", competeHandler.SubmitFlag)
		competitorRoutes.POST("/window/start", competeHandler.StartWindow)
		competitorRoutes.GET("/window", competeHandler.WindowStatus)
		competitorRoutes.GET("/problems", competeHandler.ListProblems)
	}

	adminRoutes := router.Group("/api/v1/admin")
	adminRoutes.Use(pkg.AdminAuthMiddleware(jwtSecret))
	{
		adminRoutes.POST("/problems", adminHandler.CreateProblem)
		adminRoutes.GET("/problems", adminHandler.ListProblems)
		adminRoutes.PUT("/problems/:id", adminHandler.UpdateProblem)
		adminRoutes.DELETE("/problems/:id", adminHandler.DeleteProblem)

		adminRoutes.POST("/teams", adminHandler.CreateTeam)
		adminRoutes.PUT("/teams/:id", adminHandler.RenameTeam)
		adminRoutes.DELETE("/teams/:id", adminHandler.DeleteTeam)

		adminRoutes.POST("/competitors", adminHandler.CreateCompetitor)
		adminRoutes.PUT("/competitors/:id/team", adminHandler.AssignTeam)
		adminRoutes.POST("/competitors/:id/token", adminHandler.MintCompetitorToken)

		adminRoutes.GET("/submissions", adminHandler.ListSubmissions)
	}

	return router
}
