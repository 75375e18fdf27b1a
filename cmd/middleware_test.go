package main

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/apex/log"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
)

func init() {
	gin.SetMode(gin.TestMode)
	log.SetLevel(log.ErrorLevel)
}

func TestManagerMiddleware(t *testing.T) {
	t.Run("middleware is set", func(t *testing.T) {
		c, _ := gin.CreateTestContext(httptest.NewRecorder())

		expected := &fakeLauncher{}
		mwFunc := managerMiddleware(expected)

		mwFunc(c)

		actual := getLauncher(c)
		assert.Same(t, expected, actual)
	})

	t.Run("missing launcher aborts", func(t *testing.T) {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)

		assert.Nil(t, getLauncher(c))
		assert.True(t, c.IsAborted())
		assert.Equal(t, http.StatusInternalServerError, w.Code)
		assert.ErrorIs(t, c.Errors.Last().Err, ErrSystem)
	})
}
