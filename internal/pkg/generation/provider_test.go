package generation

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateStyles(t *testing.T) {
	styles, err := ValidateStyles([]string{" Classic ", "VINTAGE", "classic"})
	require.NoError(t, err)
	assert.Equal(t, []string{"classic", "vintage"}, styles)
}

func TestValidateStylesRejects(t *testing.T) {
	_, err := ValidateStyles(nil)
	assert.Error(t, err)

	_, err = ValidateStyles([]string{"", "  "})
	assert.Error(t, err)

	_, err = ValidateStyles([]string{"classic", "oil_painting"})
	assert.ErrorContains(t, err, "oil_painting")
}

func TestGeneratePortrait(t *testing.T) {
	portrait := []byte("rendered-jpeg-bytes")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/portraits", r.URL.Path)
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		assert.Equal(t, "classic,vintage", r.FormValue("styles"))

		file, _, err := r.FormFile("photo")
		require.NoError(t, err)
		defer file.Close()
		data, err := io.ReadAll(file)
		require.NoError(t, err)
		assert.Equal(t, []byte("input-photo"), data)

		w.Header().Set("Content-Type", "image/jpeg")
		w.Write(portrait)
	}))
	defer srv.Close()

	provider := &HTTPProvider{BaseURL: srv.URL, APIKey: "test-key", HTTPClient: srv.Client()}
	result, err := provider.GeneratePortrait(context.Background(), []byte("input-photo"), []string{"classic", "vintage"})
	require.NoError(t, err)
	assert.Equal(t, portrait, result.ImageData)
	assert.Equal(t, "image/jpeg", result.ContentType)
}

func TestGeneratePortraitProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"message":"model overloaded"}`))
	}))
	defer srv.Close()

	provider := &HTTPProvider{BaseURL: srv.URL, HTTPClient: srv.Client()}
	_, err := provider.GeneratePortrait(context.Background(), []byte("input-photo"), []string{"classic"})
	assert.ErrorIs(t, err, ErrGenerationFailed)
	assert.ErrorContains(t, err, "model overloaded")
}

func TestGeneratePortraitRequiresConfig(t *testing.T) {
	provider := &HTTPProvider{HTTPClient: http.DefaultClient}
	_, err := provider.GeneratePortrait(context.Background(), []byte("x"), []string{"classic"})
	assert.Error(t, err)

	provider.BaseURL = "http://localhost:1"
	_, err = provider.GeneratePortrait(context.Background(), nil, []string{"classic"})
	assert.Error(t, err)
}
