package mqtt

import (
	"context"
	"net"
	"os"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/ambient-go/internal/conf"
	"github.com/tphakala/ambient-go/internal/errors"
)

func testConfig(broker string) Config {
	cfg := DefaultConfig()
	cfg.Broker = broker
	cfg.ClientID = "ambient-go-test"
	cfg.ReconnectCooldown = 0
	cfg.ReconnectDelay = time.Hour
	cfg.ConnectTimeout = 2 * time.Second
	cfg.PublishTimeout = 2 * time.Second
	return cfg
}

func TestConnectRejectsBadBroker(t *testing.T) {
	t.Parallel()

	for _, broker := range []string{"", "tcp://", "://missing-scheme"} {
		c := NewClient(testConfig(broker), nil)
		err := c.Connect(t.Context())
		require.Error(t, err, broker)
		assert.True(t, errors.IsCategory(err, errors.CategoryConfiguration), broker)
		assert.False(t, c.(*client).reconnecting.Load(), "configuration errors must not retry")
		c.Disconnect()
	}
}

func TestConnectRefusedSchedulesReconnect(t *testing.T) {
	t.Parallel()

	// grab a free port and close it so the dial is refused
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := l.Addr().String()
	require.NoError(t, l.Close())

	m := newTestMetrics(t)
	c := NewClient(testConfig("tcp://"+addr), m)
	err = c.Connect(t.Context())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryMQTTConnection))
	assert.True(t, c.(*client).reconnecting.Load())
	assert.False(t, c.IsConnected())
	assert.InDelta(t, 1.0, testutil.ToFloat64(m.Errors.WithLabelValues("connect")), 0)

	c.Disconnect()
	c.Disconnect()
}

func TestConnectCooldown(t *testing.T) {
	t.Parallel()

	cfg := testConfig("tcp://")
	cfg.ReconnectCooldown = time.Hour
	c := NewClient(cfg, nil)
	defer c.Disconnect()

	require.Error(t, c.Connect(t.Context()))

	err := c.Connect(t.Context())
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryMQTTConnection))
	assert.Contains(t, err.Error(), "too recent")
}

func TestPublishWhileDisconnected(t *testing.T) {
	t.Parallel()

	c := NewClient(testConfig("tcp://127.0.0.1:1883"), nil)
	err := c.Publish(t.Context(), "ambient/test", []byte("{}"))
	require.Error(t, err)
	assert.True(t, errors.IsCategory(err, errors.CategoryMQTTPublish))
}

func TestConfigFromSettings(t *testing.T) {
	t.Parallel()

	settings := &conf.Settings{}
	settings.Main.Name = "porch"
	settings.MQTT.Broker = "tcp://broker:1883"
	settings.MQTT.Username = "user"
	settings.MQTT.Password = "secret"

	cfg := ConfigFromSettings(settings)
	assert.Equal(t, "tcp://broker:1883", cfg.Broker)
	assert.Equal(t, "porch", cfg.ClientID)
	assert.Equal(t, "user", cfg.Username)
	assert.Equal(t, "secret", cfg.Password)
	assert.Equal(t, DefaultConfig().PublishTimeout, cfg.PublishTimeout)
}

// TestBrokerRoundTrip runs against a real broker when one is configured.
func TestBrokerRoundTrip(t *testing.T) {
	broker := os.Getenv("AMBIENT_TEST_MQTT_BROKER")
	if broker == "" {
		t.Skip("AMBIENT_TEST_MQTT_BROKER not set")
	}

	c := NewClient(testConfig(broker), nil)
	defer c.Disconnect()

	ctx, cancel := context.WithTimeout(t.Context(), 10*time.Second)
	defer cancel()

	require.NoError(t, c.Connect(ctx))
	require.True(t, c.IsConnected())
	require.NoError(t, c.Publish(ctx, "ambient-go/test", []byte(`{"text":"hello"}`)))
}
