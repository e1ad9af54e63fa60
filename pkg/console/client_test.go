package console

import (
	"archive/zip"
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildBundle(t *testing.T, entryName string, content []byte) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	fw, err := w.Create(entryName)
	require.NoError(t, err)
	_, err = fw.Write(content)
	require.NoError(t, err)
	require.NoError(t, w.Close())
	return buf.Bytes()
}

func newConsoleServer(t *testing.T, bundle []byte) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()

	mux.HandleFunc(authPath, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)

		var creds map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&creds))
		if creds["username"] != "access" || creds["password"] != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		require.NoError(t, json.NewEncoder(w).Encode(map[string]string{"token": "tok-123"}))
	})

	mux.HandleFunc(bundlePath, func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "Bearer tok-123", r.Header.Get("Authorization"))

		var payload map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		assert.Equal(t, "aws", payload["provider"])
		assert.Equal(t, "python", payload["runtime"])

		_, err := w.Write(bundle)
		require.NoError(t, err)
	})

	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestAuthenticate(t *testing.T) {
	inner := []byte("layer-zip-bytes")
	srv := newConsoleServer(t, buildBundle(t, "defender/twistlock_defender_layer.zip", inner))

	t.Run("valid credentials", func(t *testing.T) {
		client := New(srv.URL)
		require.NoError(t, client.Authenticate(context.Background(), "access", "secret"))
	})

	t.Run("rejected credentials", func(t *testing.T) {
		client := New(srv.URL)
		err := client.Authenticate(context.Background(), "access", "wrong")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "401")
	})

	t.Run("empty token in response", func(t *testing.T) {
		empty := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			require.NoError(t, json.NewEncoder(w).Encode(map[string]string{"token": ""}))
		}))
		defer empty.Close()

		client := New(empty.URL)
		err := client.Authenticate(context.Background(), "access", "secret")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "empty token")
	})
}

func TestDownloadDefenderBundle(t *testing.T) {
	inner := []byte("layer-zip-bytes")

	t.Run("returns the nested layer archive", func(t *testing.T) {
		srv := newConsoleServer(t, buildBundle(t, "defender/twistlock_defender_layer.zip", inner))

		client := New(srv.URL)
		require.NoError(t, client.Authenticate(context.Background(), "access", "secret"))

		got, err := client.DownloadDefenderBundle(context.Background(), "python")
		require.NoError(t, err)
		assert.Equal(t, inner, got)
	})

	t.Run("requires authentication first", func(t *testing.T) {
		srv := newConsoleServer(t, buildBundle(t, "twistlock_defender_layer.zip", inner))

		client := New(srv.URL)
		_, err := client.DownloadDefenderBundle(context.Background(), "python")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "not authenticated")
	})

	t.Run("bundle without the layer entry", func(t *testing.T) {
		srv := newConsoleServer(t, buildBundle(t, "README.txt", []byte("nothing here")))

		client := New(srv.URL)
		require.NoError(t, client.Authenticate(context.Background(), "access", "secret"))

		_, err := client.DownloadDefenderBundle(context.Background(), "python")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no entry matching")
	})

	t.Run("response is not an archive", func(t *testing.T) {
		srv := newConsoleServer(t, []byte("surprise: html"))

		client := New(srv.URL)
		require.NoError(t, client.Authenticate(context.Background(), "access", "secret"))

		_, err := client.DownloadDefenderBundle(context.Background(), "python")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "error opening bundle archive")
	})
}

func TestExtractInnerZip(t *testing.T) {
	content := []byte{0x50, 0x4b, 0x03, 0x04, 0xff}
	archive := buildBundle(t, "workload/serverless/twistlock_defender_layer.zip", content)

	got, err := extractInnerZip(archive, innerBundleName)
	require.NoError(t, err)
	assert.Equal(t, content, got)
}
