package openai

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/winhok/QAchatBot-sub001/model"
)

func TestEveryProviderConstantHasFactory(t *testing.T) {
	providers := []model.Provider{
		model.ProviderOpenAI,
		model.ProviderDeepSeek,
		model.ProviderDashScope,
		model.ProviderCompatible,
	}
	for _, p := range providers {
		m, err := model.NewFromProvider(p, "test-model",
			model.WithAPIKey("key"), model.WithBaseURL("http://localhost:1"))
		require.NoError(t, err, "provider %s", p)
		assert.Equal(t, "test-model", m.Info().Name)
	}
}

func TestUnregisteredProviderFails(t *testing.T) {
	_, err := model.NewFromProvider(model.Provider("no-such-provider"), "m")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not registered")
}
