package transcription

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestHTTPProviderTranscribe(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/v1/audio/transcriptions", r.URL.Path)
		require.Equal(t, "Bearer key", r.Header.Get("Authorization"))
		require.NoError(t, r.ParseMultipartForm(1<<20))
		require.Equal(t, "whisper-large-v3", r.FormValue("model"))
		require.Equal(t, "ja", r.FormValue("language"))

		f, hdr, err := r.FormFile("file")
		require.NoError(t, err)
		defer f.Close()
		require.Equal(t, "audio.webm", hdr.Filename)
		b, _ := io.ReadAll(f)
		require.Equal(t, "abc", string(b))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"text":"こんにちは"}`))
	}))
	defer srv.Close()

	p := NewHTTPProvider(HTTPConfig{Name: "groq", BaseURL: srv.URL + "/v1/", APIKey: "key", Model: "whisper-large-v3"})
	text, err := p.Transcribe(context.Background(), Audio{Data: []byte("abc"), Filename: "audio.webm", MIME: "audio/webm"}, "ja")
	require.NoError(t, err)
	require.Equal(t, "こんにちは", text)
	require.Equal(t, "groq", p.Name())
}

func TestHTTPProviderSurfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		_, _ = w.Write([]byte(`{"error":{"message":"rate limit reached"}}`))
	}))
	defer srv.Close()

	p := NewHTTPProvider(HTTPConfig{Name: "openai", BaseURL: srv.URL, APIKey: "k", Model: "whisper-1"})
	_, err := p.Transcribe(context.Background(), Audio{Data: []byte("x"), Filename: "audio.webm", MIME: "audio/webm"}, "auto")
	require.Error(t, err)
	require.Contains(t, err.Error(), "openai http 429: rate limit reached")
}
