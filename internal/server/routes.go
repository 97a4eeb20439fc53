package server

import (
	"net/http"
	"time"

	"github.com/berfenger/glow2mqtt/internal/core/domain"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

type sessionInfoResponse struct {
	State             string `json:"state"`
	HardwareId        string `json:"hardware_id,omitempty"`
	Authenticated     bool   `json:"authenticated"`
	BrokerConnected   bool   `json:"broker_connected"`
	MessagesReceived  uint64 `json:"messages_received"`
	MalformedMessages uint64 `json:"malformed_messages"`
	Listeners         int    `json:"listeners"`
}

func (s *Server) RegisterRoutes() http.Handler {
	e := echo.New()
	if s.httpLog {
		e.Use(middleware.Logger())
	}
	e.Use(middleware.Recover())

	e.GET("/healthcheck", s.HealthCheckHandler)
	e.GET("/readings", s.ReadingsHandler)
	e.GET("/session", s.SessionHandler)

	return e
}

func (s *Server) HealthCheckHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.ActorHealthRequest{}, 10*time.Second).Result()
	if err != nil {
		return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
	}
	if response, ok := res.(domain.ActorHealthResponse); ok && response.Healthy {
		return c.String(http.StatusOK, "health_check: OK")
	}
	return c.String(http.StatusServiceUnavailable, "health_check: FAIL")
}

func (s *Server) ReadingsHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.GetReadingsRequest{}, 2*time.Second).Result()
	if err = domain.ResponseErrorOf(res, err); err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	return c.JSON(http.StatusOK, res.(domain.GetReadingsResponse).Readings)
}

func (s *Server) SessionHandler(c echo.Context) error {
	res, err := s.rootContext.RequestFuture(s.masterActor, domain.GetSessionInfoRequest{}, 2*time.Second).Result()
	if err = domain.ResponseErrorOf(res, err); err != nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, err.Error())
	}
	info := res.(domain.GetSessionInfoResponse).Info
	return c.JSON(http.StatusOK, sessionInfoResponse{
		State:             info.State.String(),
		HardwareId:        info.HardwareId,
		Authenticated:     info.Authenticated,
		BrokerConnected:   info.BrokerConnected,
		MessagesReceived:  info.MessagesReceived,
		MalformedMessages: info.MalformedMessages,
		Listeners:         info.Listeners,
	})
}
