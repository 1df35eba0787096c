package gateway

import (
	"net/http"

	sentryecho "github.com/getsentry/sentry-go/echo"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/AvaProtocol/ap-filters/version"
)

type HttpJsonResp[T any] struct {
	Data T `json:"data"`
}

type versionInfo struct {
	Version  string `json:"version"`
	Revision string `json:"revision"`
	Filters  int    `json:"filters"`
}

func (g *Gateway) newHttpServer() *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	e.Use(middleware.RequestID())

	// Register Sentry before Recover so panics are reported
	if g.sentryEnabled {
		e.Use(sentryecho.New(sentryecho.Options{
			Repanic:         true,
			WaitForDelivery: false,
		}))
	}
	e.Use(middleware.Recover())

	e.POST("/", echo.WrapHandler(g.rpcServer))

	e.GET("/up", func(c echo.Context) error {
		if g.getStatus() == runningStatus {
			return c.String(http.StatusOK, "up")
		}
		return c.String(http.StatusServiceUnavailable, "pending...")
	})

	e.GET("/version", func(c echo.Context) error {
		return c.JSON(http.StatusOK, &HttpJsonResp[versionInfo]{
			Data: versionInfo{
				Version:  version.Get(),
				Revision: version.GetRevision(),
				Filters:  g.manager.Count(),
			},
		})
	})

	if g.config.EnableMetrics {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(g.registry, promhttp.HandlerOpts{})))
	}

	return e
}
