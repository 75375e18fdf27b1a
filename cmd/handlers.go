package main

import (
	"context"
	"errors"
	"html/template"
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	"github.com/gobuffalo/packr/v2"
	"github.com/gorilla/websocket"
	"github.com/ivan3bx/hamlaunch"
	"github.com/ivan3bx/hamlaunch/supervisor"
)

const defaultReadyTimeout = 10 * time.Second

var tmpls = packr.New("templates", "./templates")

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// readyWaiter is implemented by launchers that can tell when the live
// page starts accepting connections.
type readyWaiter interface {
	WaitReady(ctx context.Context, addr string) error
}

// processHandler exposes handlers for the lifecycle of the supervised binary.
type processHandler struct {
	catalog      supervisor.Catalog
	liveURL      string
	readyTimeout time.Duration
}

type startRequest struct {
	Binary string `json:"binary" form:"binary"`
}

func (h *processHandler) rootHandler(c *gin.Context) {
	l := getLauncher(c)
	if l == nil {
		return
	}

	html, err := tmpls.FindString("index.html")

	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	t, err := template.New("").Parse(html)

	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	c.Header("Content-Type", "text/html; charset=utf-8")

	err = t.ExecuteTemplate(c.Writer, "", gin.H{
		"logLines": l.Lines(),
		"status":   l.Status().State.String(),
		"binaries": h.catalog.List(),
		"liveURL":  h.liveURL,
	})

	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}
}

func (h *processHandler) startHandler(c *gin.Context) {
	l := getLauncher(c)
	if l == nil {
		return
	}

	var req startRequest

	if err := c.ShouldBind(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"err": "invalid request"})
		return
	}

	log.WithField("binary", req.Binary).Info("start requested")

	if err := l.Start(req.Binary); err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, l.Status())
}

func (h *processHandler) stopHandler(c *gin.Context) {
	l := getLauncher(c)
	if l == nil {
		return
	}

	if err := l.Stop(); err != nil {
		abortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, l.Status())
}

func (h *processHandler) clearHandler(c *gin.Context) {
	if l := getLauncher(c); l != nil {
		l.Clear()
		c.Status(http.StatusNoContent)
	}
}

func (h *processHandler) statusHandler(c *gin.Context) {
	if l := getLauncher(c); l != nil {
		c.JSON(http.StatusOK, l.Status())
	}
}

func (h *processHandler) outputHandler(c *gin.Context) {
	if l := getLauncher(c); l != nil {
		c.JSON(http.StatusOK, gin.H{"lines": l.Lines()})
	}
}

func (h *processHandler) binariesHandler(c *gin.Context) {
	c.JSON(http.StatusOK, h.catalog.List())
}

// liveHandler waits for the running binary to serve its live page and
// redirects there.
func (h *processHandler) liveHandler(c *gin.Context) {
	l := getLauncher(c)
	if l == nil {
		return
	}

	w, ok := l.(readyWaiter)

	if !ok {
		c.AbortWithStatusJSON(http.StatusNotImplemented, gin.H{"err": "readiness not supported"})
		return
	}

	addr, err := liveAddr(h.liveURL)

	if err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	timeout := h.readyTimeout
	if timeout <= 0 {
		timeout = defaultReadyTimeout
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), timeout)
	defer cancel()

	if err := w.WaitReady(ctx, addr); err != nil {
		if errors.Is(err, hamlaunch.ErrNoProcess) {
			abortWithError(c, err)
			return
		}
		c.AbortWithStatusJSON(http.StatusGatewayTimeout, gin.H{"err": "live page not ready"})
		return
	}

	c.Redirect(http.StatusFound, h.liveURL)
}

type clientHandler struct {
	manager *hamlaunch.ClientManager
}

func (h *clientHandler) webSocketHandler(c *gin.Context) {
	var (
		cm   = h.manager
		conn *websocket.Conn
		err  error
	)

	if conn, err = upgrader.Upgrade(c.Writer, c.Request, nil); err != nil {
		c.AbortWithError(http.StatusInternalServerError, err)
		return
	}

	cm.AddClient(conn)
}

// abortWithError maps launcher errors onto response codes.
func abortWithError(c *gin.Context, err error) {
	var status int

	switch {
	case errors.Is(err, hamlaunch.ErrNoSelection), errors.Is(err, hamlaunch.ErrNoProcess):
		status = http.StatusBadRequest
	case errors.Is(err, hamlaunch.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, hamlaunch.ErrPermission):
		status = http.StatusForbidden
	case errors.Is(err, hamlaunch.ErrAlreadyRunning):
		status = http.StatusConflict
	case errors.Is(err, hamlaunch.ErrClosed):
		status = http.StatusServiceUnavailable
	default:
		status = http.StatusInternalServerError
	}

	c.AbortWithStatusJSON(status, gin.H{"err": err.Error()})
}

// liveAddr is the host:port serving rawURL.
func liveAddr(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)

	if err != nil {
		return "", err
	}

	if u.Hostname() == "" {
		return "", errors.New("live url has no host")
	}

	port := u.Port()

	if port == "" {
		port = "80"
		if u.Scheme == "https" {
			port = "443"
		}
	}

	return net.JoinHostPort(u.Hostname(), port), nil
}
