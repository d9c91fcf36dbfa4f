package api

import (
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/rs/zerolog/log"
	"github.com/stoptrack/stoptrack/pkg/stats"
)

// Server is the read-side HTTP API over persisted stop events.
type Server struct {
	service  *stats.Service
	location *time.Location
	now      func() time.Time
}

func NewServer(service *stats.Service, location *time.Location) *Server {
	return &Server{
		service:  service,
		location: location,
		now:      time.Now,
	}
}

func (s *Server) SetupApp() *fiber.App {
	webApp := fiber.New(fiber.Config{
		DisableStartupMessage: true,
	})

	webApp.Use(NewLogger())
	webApp.Use(limiter.New(limiter.Config{
		Max:        60,
		Expiration: 1 * time.Minute,
	}))
	webApp.Use(cors.New(cors.Config{
		AllowMethods: fiber.MethodGet,
	}))

	group := webApp.Group("/v1/lines")

	group.Get("/stats/summary", s.getSummary)
	group.Get("/:line/stats/max-delay-between-stops", s.getMaxDelayBetweenStops)
	group.Get("/:line/stats/route-delay", s.getRouteDelay)
	group.Get("/:line/stats/punctuality", s.getPunctuality)
	group.Get("/:line/stats/trend", s.getTrend)

	return webApp
}

func (s *Server) Listen(listen string) error {
	return s.SetupApp().Listen(listen)
}

// parseDates resolves the request window: explicit start_date/end_date when
// both are present, a named period otherwise.
func (s *Server) parseDates(c *fiber.Ctx, defaultPeriod stats.Period) (stats.DateRange, error) {
	startDate := c.Query("start_date")
	endDate := c.Query("end_date")

	if startDate != "" || endDate != "" {
		if startDate == "" || endDate == "" {
			return stats.DateRange{}, stats.RangeError{Reason: "start_date and end_date must be given together"}
		}

		return stats.ParseRange(startDate, endDate, s.now(), s.location)
	}

	period := stats.Period(c.Query("period", string(defaultPeriod)))

	return stats.RangeForPeriod(period, s.now(), s.location)
}

func (s *Server) respond(c *fiber.Ctx, payload []byte, err error) error {
	if err != nil {
		var rangeErr stats.RangeError
		if errors.As(err, &rangeErr) {
			return c.Status(fiber.StatusUnprocessableEntity).JSON(fiber.Map{
				"detail": rangeErr.Reason,
			})
		}

		var notFound stats.NotFoundError
		if errors.As(err, &notFound) {
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"detail": notFound.Error(),
			})
		}

		log.Error().Err(err).Str("path", c.Path()).Msg("Stats query failed")

		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"detail": "internal server error",
		})
	}

	c.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)

	return c.Send(payload)
}

func (s *Server) getMaxDelayBetweenStops(c *fiber.Ctx) error {
	dates, err := s.parseDates(c, stats.PeriodToday)
	if err != nil {
		return s.respond(c, nil, err)
	}

	payload, err := s.service.MaxDelayBetweenStops(c.Context(), c.Params("line"), dates)

	return s.respond(c, payload, err)
}

func (s *Server) getRouteDelay(c *fiber.Ctx) error {
	dates, err := s.parseDates(c, stats.PeriodToday)
	if err != nil {
		return s.respond(c, nil, err)
	}

	payload, err := s.service.RouteDelay(c.Context(), c.Params("line"), dates)

	return s.respond(c, payload, err)
}

func (s *Server) getPunctuality(c *fiber.Ctx) error {
	dates, err := s.parseDates(c, stats.PeriodToday)
	if err != nil {
		return s.respond(c, nil, err)
	}

	payload, err := s.service.Punctuality(c.Context(), c.Params("line"), dates)

	return s.respond(c, payload, err)
}

func (s *Server) getTrend(c *fiber.Ctx) error {
	dates, err := s.parseDates(c, stats.PeriodMonth)
	if err != nil {
		return s.respond(c, nil, err)
	}

	payload, err := s.service.Trend(c.Context(), c.Params("line"), dates)

	return s.respond(c, payload, err)
}

func (s *Server) getSummary(c *fiber.Ctx) error {
	dates, err := s.parseDates(c, stats.PeriodToday)
	if err != nil {
		return s.respond(c, nil, err)
	}

	payload, err := s.service.Summary(c.Context(), dates)

	return s.respond(c, payload, err)
}
