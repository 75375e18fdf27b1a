package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	"github.com/ivan3bx/hamlaunch"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func newRouter(l hamlaunch.Launcher, ph *processHandler, ch *clientHandler) *gin.Engine {
	e := gin.New()
	e.Use(gin.Logger(), gin.Recovery(), managerMiddleware(l))

	// routes: process handling
	{
		e.GET("/", ph.rootHandler)
		e.GET("/api/status", ph.statusHandler)
		e.GET("/api/output", ph.outputHandler)
		e.GET("/api/binaries", ph.binariesHandler)
		e.GET("/api/live", ph.liveHandler)
		e.POST("/api/start", ph.startHandler)
		e.POST("/api/stop", ph.stopHandler)
		e.POST("/api/clear", ph.clearHandler)
	}

	// routes: client handling
	if ch != nil {
		e.GET("/ws", ch.webSocketHandler)
	}

	e.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return e
}

// runWebServer serves e on addr until ctx is done, then shuts down.
func runWebServer(ctx context.Context, addr string, e http.Handler) error {
	srv, failed := startWebServer(addr, e)

	select {
	case err := <-failed:
		return fmt.Errorf("web server: %w", err)
	case <-ctx.Done():
		stopWebServer(srv)
		return nil
	}
}

func startWebServer(addr string, e http.Handler) (*http.Server, <-chan error) {
	srv := &http.Server{
		Addr:    addr,
		Handler: e,
	}

	failed := make(chan error, 1)

	go func() {
		log.WithField("addr", addr).Info("web server listening")
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			failed <- err
		}
	}()

	return srv, failed
}

func stopWebServer(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.WithError(err).Error("server failed to shutdown")
	}
}
