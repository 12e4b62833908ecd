package health

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"tradesim/pkg/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHealthManager_Aggregation(t *testing.T) {
	hm := NewHealthManager(logging.NewNop())
	assert.True(t, hm.IsHealthy(), "no checks is healthy")

	hm.Register("journal", func() error { return nil })
	assert.True(t, hm.IsHealthy())

	hm.Register("circuit_breaker:BTCUSDT", func() error { return errors.New("open") })
	assert.False(t, hm.IsHealthy())

	status := hm.GetStatus()
	assert.Equal(t, "Healthy", status["journal"])
	assert.Equal(t, "Unhealthy: open", status["circuit_breaker:BTCUSDT"])
	assert.Equal(t, []string{"circuit_breaker:BTCUSDT", "journal"}, hm.Components())
}

func TestHealthManager_ServeHTTP(t *testing.T) {
	hm := NewHealthManager(logging.NewNop())
	hm.Register("journal", func() error { return nil })

	rec := httptest.NewRecorder()
	hm.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)

	hm.Register("journal", func() error { return errors.New("store closed") })
	rec = httptest.NewRecorder()
	hm.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "Unhealthy: store closed", body["journal"])
}
