// README: API gateway; builds the gin engine, registers routes and delegates to module services.
package http

import (
	"net/http"
	"slices"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"vitecab/internal/http/handlers"
	"vitecab/internal/http/middleware"
	"vitecab/internal/infra"
	"vitecab/internal/logger"
	"vitecab/internal/modules/realtime"
)

type ServerDeps struct {
	Pricing        handlers.FareService
	Rides          handlers.RideService
	Drivers        handlers.DriverService
	Booking        handlers.BookingService
	Registry       *realtime.Registry
	WS             *realtime.WSServer
	Verifier       infra.TokenVerifier
	Heartbeat      time.Duration
	AllowedOrigins []string
	Log            *logger.Logger
}

type Server struct {
	deps ServerDeps
}

func NewServer(deps ServerDeps) *Server {
	if deps.Log == nil {
		deps.Log = logger.Nop()
	}
	if deps.WS == nil {
		deps.WS = realtime.NewWSServer(deps.AllowedOrigins)
	}
	return &Server{deps: deps}
}

func (s *Server) Routes() *gin.Engine {
	r := gin.New()
	r.Use(middleware.Logging(s.deps.Log), middleware.Recovery(s.deps.Log), middleware.Metrics())
	r.Use(cors.New(corsConfig(s.deps.AllowedOrigins)))

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "time": time.Now().UTC().Format(time.RFC3339)})
	})

	fares := handlers.NewFareHandler(s.deps.Pricing)
	rides := handlers.NewRideHandler(s.deps.Rides, s.deps.Drivers)
	drivers := handlers.NewDriverHandler(s.deps.Drivers)
	bookings := handlers.NewBookingHandler(s.deps.Booking)
	events := handlers.NewEventsHandler(s.deps.Registry, s.deps.WS, s.deps.Heartbeat, s.deps.Log)

	api := r.Group("/api")
	api.POST("/fares/calculate", fares.Calculate)
	api.GET("/fares/routes", fares.Routes)
	api.GET("/fares/vehicle-pricing", fares.VehiclePricing)
	api.GET("/events", events.SSE)
	api.GET("/ws", events.WS)

	authed := api.Group("", middleware.Auth(s.deps.Verifier))
	authed.POST("/bookings", bookings.Create)
	authed.GET("/rides", rides.List)
	authed.GET("/rides/:id", rides.Get)
	authed.POST("/drivers", drivers.Register)
	authed.GET("/drivers/me", drivers.Me)
	authed.PUT("/drivers/documents", drivers.UpdateOwn)
	authed.GET("/drivers/:id", drivers.Get)
	authed.GET("/drivers/:id/rides", rides.ListByDriver)
	authed.POST("/drivers/:id/manual-kyc", drivers.RequestReview)

	admin := api.Group("/admin", middleware.Auth(s.deps.Verifier), middleware.RequireRole(middleware.RoleAdmin))
	admin.GET("/rides", rides.ListByStatus)
	admin.POST("/rides/:id/assign", rides.Assign)
	admin.POST("/rides/:id/unassign", rides.Unassign)
	admin.POST("/rides/:id/cancel", rides.Cancel)
	admin.POST("/rides/:id/complete", rides.Complete)
	admin.POST("/rides/:id/transfer", rides.Transfer)

	admin.GET("/drivers/online", drivers.ListOnline)
	admin.PUT("/drivers/:id", drivers.Update)
	admin.POST("/drivers/:id/kyc", drivers.SetKYC)
	admin.POST("/drivers/:id/manual-kyc", drivers.ResolveReview)

	admin.GET("/fares/distance", fares.ListDistance)
	admin.POST("/fares/distance", fares.CreateDistance)
	admin.PUT("/fares/distance/:id", fares.UpdateDistance)
	admin.DELETE("/fares/distance/:id", fares.DeleteDistance)
	admin.GET("/fares/hourly", fares.ListHourly)
	admin.POST("/fares/hourly", fares.CreateHourly)
	admin.PUT("/fares/hourly/:id", fares.UpdateHourly)
	admin.DELETE("/fares/hourly/:id", fares.DeleteHourly)
	admin.GET("/fares/routes", fares.ListRoutes)
	admin.POST("/fares/routes", fares.CreateRoute)
	admin.PUT("/fares/routes/:id", fares.UpdateRoute)
	admin.DELETE("/fares/routes/:id", fares.DeleteRoute)
	admin.GET("/fares/extras", fares.ListExtras)
	admin.POST("/fares/extras", fares.CreateExtra)
	admin.PUT("/fares/extras/:id", fares.UpdateExtra)
	admin.DELETE("/fares/extras/:id", fares.DeleteExtra)

	return r
}

// corsConfig allows credentials only for an explicit origin list.
func corsConfig(origins []string) cors.Config {
	cfg := cors.Config{
		AllowMethods:  []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowHeaders:  []string{"Origin", "Content-Type", "Accept", "Authorization"},
		ExposeHeaders: []string{"Content-Length"},
		MaxAge:        12 * time.Hour,
	}
	if len(origins) == 0 || slices.Contains(origins, "*") {
		cfg.AllowAllOrigins = true
		return cfg
	}
	cfg.AllowOrigins = origins
	cfg.AllowCredentials = true
	return cfg
}
