package controller

import (
	"judgehost/internal/common/http/middleware"

	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts the judge API under /api/v1/judge behind the sandbox token.
func RegisterRoutes(r gin.IRouter, h *JudgeController, token string) {
	api := r.Group("/api/v1/judge", middleware.TokenAuthMiddleware(token))
	api.POST("/submit/:id", h.Submit)

	admin := api.Group("/dispatcher")
	admin.POST("/submissions/:id", h.RegisterExisting)
	admin.GET("/submissions/:id", h.GetSubmission)
	admin.GET("/stats", h.GetStats)
}
