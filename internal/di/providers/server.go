package providers

import (
	"context"
	"errors"
	"net/http"

	"github.com/samber/do/v2"

	"github.com/collectr/collectr/internal/api"
	"github.com/collectr/collectr/internal/config"
	"github.com/collectr/collectr/internal/logger"
	"github.com/collectr/collectr/internal/metrics"
)

// HTTPServerHandle wraps http.Server with Shutdownable.
type HTTPServerHandle struct {
	*http.Server
}

// Shutdown implements do.Shutdownable.
func (h *HTTPServerHandle) Shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	return h.Server.Shutdown(ctx)
}

// ProvideHTTPServer provides the HTTP server and starts listening.
func ProvideHTTPServer(i do.Injector) (*HTTPServerHandle, error) {
	cfg := do.MustInvoke[*config.Config](i)
	log := do.MustInvoke[*logger.Logger](i)
	remoteHandle := do.MustInvoke[*RemoteHandle](i)
	eventHandle := do.MustInvoke[*EventManagerHandle](i)
	limiter := do.MustInvoke[*WriteLimiterHandle](i)
	services := do.MustInvoke[*api.Services](i)
	m := do.MustInvoke[*metrics.Metrics](i)

	handler := api.NewServer(services, api.Options{
		Store:          remoteHandle.Store,
		Events:         eventHandle.Manager,
		Metrics:        m,
		WriteLimiter:   limiter.KeyedRateLimiter,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}, log.Component("api"))

	srv := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      handler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	go func() {
		log.WithField("addr", srv.Addr).Info("HTTP server starting")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("HTTP server error")
		}
	}()

	return &HTTPServerHandle{Server: srv}, nil
}
