package logger

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/sales-eval-api/pkg/config"
)

func TestNewHonoursLevel(t *testing.T) {
	l, err := New(&config.Config{Env: config.EnvProduction, Log: config.LogConfig{Level: "warn", Format: "json"}})
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zapcore.InfoLevel))
	assert.True(t, l.Core().Enabled(zapcore.WarnLevel))
}

func TestGinMiddlewareLevels(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.DebugLevel)
	l := zap.New(core)

	router := gin.New()
	router.Use(Recovery(l), GinMiddleware(l))
	router.GET("/ok", func(c *gin.Context) { c.Status(http.StatusOK) })
	router.GET("/missing", func(c *gin.Context) { c.Status(http.StatusNotFound) })
	router.GET("/panic", func(c *gin.Context) { panic("boom") })

	for _, path := range []string{"/ok", "/missing", "/panic"} {
		router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, path, nil))
	}

	access := logs.FilterMessage("http_request").All()
	require.Len(t, access, 2)
	assert.Equal(t, zapcore.InfoLevel, access[0].Level)
	assert.Equal(t, zapcore.WarnLevel, access[1].Level)
	assert.Equal(t, 1, logs.FilterMessage("panic recovered").Len())
}
