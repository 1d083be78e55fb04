package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/campus-timetable-api/internal/handler"
	internalmiddleware "github.com/noah-isme/campus-timetable-api/internal/middleware"
	"github.com/noah-isme/campus-timetable-api/internal/models"
	"github.com/noah-isme/campus-timetable-api/internal/service"
	"github.com/noah-isme/campus-timetable-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/campus-timetable-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/campus-timetable-api/pkg/middleware/requestid"
)

type routerDeps struct {
	APIPrefix      string
	AllowedOrigins []string
	EnableDocs     bool
	Logger         *zap.Logger
	Metrics        *service.MetricsService
	Auth           *service.AuthService
	Timetables     *service.TimetableService
	Checks         map[string]handler.ReadinessCheck
}

func newRouter(d routerDeps) *gin.Engine {
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(d.Logger))
	r.Use(corsmiddleware.New(d.AllowedOrigins))
	r.Use(internalmiddleware.Metrics(d.Metrics))

	metricsHandler := handler.NewMetricsHandler(d.Metrics, d.Checks)
	authHandler := handler.NewAuthHandler(d.Auth)
	timetableHandler := handler.NewTimetableHandler(d.Timetables)

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	if d.EnableDocs {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(d.APIPrefix)
	api.POST("/auth/login", authHandler.Login)
	// The signed token is the credential.
	api.GET("/timetables/download/:token", timetableHandler.Download)

	secured := api.Group("")
	secured.Use(internalmiddleware.JWT(d.Auth))
	secured.GET("/auth/me", authHandler.Me)

	admin := internalmiddleware.RequireRoles(models.RoleAdmin)

	timetables := secured.Group("/timetables")
	timetables.POST("/generate", admin, timetableHandler.Generate)
	timetables.POST("/export", admin, timetableHandler.StoreExport)
	timetables.GET("/latest", timetableHandler.Latest)
	timetables.GET("/export", timetableHandler.Export)
	timetables.GET("/runs", timetableHandler.Runs)
	timetables.GET("/runs/:id/entries", timetableHandler.RunEntries)

	secured.GET("/metrics/summary", admin, metricsHandler.Summary)

	return r
}
