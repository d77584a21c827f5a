package main

import (
	"testing"

	"pest-diagnosis-service/config"
	"pest-diagnosis-service/events"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewClient(t *testing.T) {
	c, err := newClient(&config.Config{LLMProvider: config.ProviderStub})
	require.NoError(t, err)
	assert.Equal(t, "Stub", c.SourceName())

	c, err = newClient(&config.Config{LLMProvider: config.ProviderGemini, GeminiAPIKey: "k"})
	require.NoError(t, err)
	assert.Equal(t, "Gemini", c.SourceName())

	_, err = newClient(&config.Config{LLMProvider: config.ProviderGemini})
	assert.ErrorIs(t, err, errMissingAPIKey)

	_, err = newClient(&config.Config{LLMProvider: "openai"})
	assert.Error(t, err)
}

func TestNewPublisherWithoutBroker(t *testing.T) {
	assert.Equal(t, events.NopPublisher{}, newPublisher(&config.Config{}))
}
