package main

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/ivan3bx/hamlaunch"
)

const contextKey = "launcher"

// ErrSystem is reported when a request reaches a handler without a launcher.
var ErrSystem = errors.New("launcher not configured")

func getLauncher(c *gin.Context) hamlaunch.Launcher {
	if l, ok := c.Get(contextKey); ok {
		return l.(hamlaunch.Launcher)
	}
	c.AbortWithError(http.StatusInternalServerError, ErrSystem)
	return nil
}

func managerMiddleware(l hamlaunch.Launcher) func(c *gin.Context) {
	return func(c *gin.Context) {
		c.Set(contextKey, l)
	}
}
