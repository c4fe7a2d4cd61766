package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLoad_Defaults(t *testing.T) {
	cfg := Load()
	assert.Equal(t, "8080", cfg.Port)
	assert.NotEmpty(t, cfg.MongoURI)
	assert.NotEmpty(t, cfg.MQTTBrokerURL)
	assert.Zero(t, cfg.FanoutWorkers)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("PORT", "9999")
	t.Setenv("FANOUT_WORKERS", "32")
	t.Setenv("PUSH_GATEWAY_URL", "http://gateway:8090/push")

	cfg := Load()
	assert.Equal(t, "9999", cfg.Port)
	assert.Equal(t, 32, cfg.FanoutWorkers)
	assert.Equal(t, "http://gateway:8090/push", cfg.PushGatewayURL)
}

func TestLoad_InvalidWorkerCountFallsBack(t *testing.T) {
	t.Setenv("FANOUT_WORKERS", "not-a-number")
	cfg := Load()
	assert.Zero(t, cfg.FanoutWorkers)
}
