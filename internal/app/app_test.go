package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"therapyroom/internal/config"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// newTestApp wires the app against clients that never dial during the test.
func newTestApp(t *testing.T) *App {
	t.Helper()
	cfg, err := config.LoadFrom(map[string]string{"JWT_SECRET": "app-test"})
	require.NoError(t, err)

	client, err := mongo.Connect(context.Background(), options.Client().ApplyURI("mongodb://127.0.0.1:1"))
	require.NoError(t, err)
	t.Cleanup(func() { client.Disconnect(context.Background()) })
	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"})
	t.Cleanup(func() { rdb.Close() })

	return New(cfg, client.Database(cfg.MongoDatabase), rdb)
}

func TestNew_ServesPublicRoutes(t *testing.T) {
	a := newTestApp(t)

	rec := httptest.NewRecorder()
	a.Handler.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/docs/openapi.json", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	a.Handler.ServeHTTP(rec, httptest.NewRequest("GET", "/v1/ws", nil))
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "no token, no upgrade")
}

func TestRun_StopsWithContext(t *testing.T) {
	a := newTestApp(t)
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan struct{})
	go func() {
		a.Run(ctx)
		close(done)
	}()

	stats, err := a.Coordinator.Stats(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, stats.Rooms)

	cancel()
	<-done
}

func TestConfigureLogger(t *testing.T) {
	require.NoError(t, ConfigureLogger("debug", "console"))
	require.NoError(t, ConfigureLogger("info", "json"))
	assert.Error(t, ConfigureLogger("loud", "json"))
}
