package llm

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubProvider struct {
	name string
}

func (s *stubProvider) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func (s *stubProvider) EmbedSingle(_ context.Context, _ string) ([]float32, error) {
	return []float32{1, 0}, nil
}

func (s *stubProvider) Chat(_ context.Context, _ []Message) (string, error) {
	return "ok", nil
}

func (s *stubProvider) Generate(_ context.Context, _ string, _ string) (string, error) {
	return "ok", nil
}

func (s *stubProvider) Name() string { return s.name }

func TestRegisterAndNewProvider(t *testing.T) {
	RegisterProvider("stub", func(config map[string]any) (Provider, error) {
		return &stubProvider{name: "stub"}, nil
	})

	p, err := NewProvider("stub", nil)
	require.NoError(t, err)
	assert.Equal(t, "stub", p.Name())

	_, err = NewProvider("does-not-exist", nil)
	assert.Error(t, err)
}

func TestNewEmbeddingAndChatProvider(t *testing.T) {
	RegisterProvider("stub2", func(config map[string]any) (Provider, error) {
		return &stubProvider{name: "stub2"}, nil
	})

	ep, err := NewEmbeddingProvider("stub2", nil)
	require.NoError(t, err)

	vec, err := ep.EmbedSingle(context.Background(), "hello")
	require.NoError(t, err)
	assert.Len(t, vec, 2)

	cp, err := NewChatProvider("stub2", nil)
	require.NoError(t, err)

	out, err := cp.Generate(context.Background(), "hi", "")
	require.NoError(t, err)
	assert.Equal(t, "ok", out)
}

func TestListProvidersSorted(t *testing.T) {
	RegisterProvider("zzz", func(config map[string]any) (Provider, error) {
		return &stubProvider{name: "zzz"}, nil
	})
	RegisterProvider("aaa", func(config map[string]any) (Provider, error) {
		return &stubProvider{name: "aaa"}, nil
	})

	names := ListProviders()
	assert.Contains(t, names, "aaa")
	assert.Contains(t, names, "zzz")
	for i := 1; i < len(names); i++ {
		assert.LessOrEqual(t, names[i-1], names[i])
	}
}
