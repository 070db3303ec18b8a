package server_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strconv"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/waifuvault/WaifuFiles/internal/chunkstore"
	"github.com/waifuvault/WaifuFiles/internal/restrictions"
	"github.com/waifuvault/WaifuFiles/internal/server"
	"github.com/waifuvault/WaifuFiles/internal/services"
	"github.com/waifuvault/WaifuFiles/internal/vault"
	"github.com/waifuvault/WaifuFiles/pkg/models"
)

type fixture struct {
	api   *httptest.Server
	store *chunkstore.Store

	mu       sync.Mutex
	received [][]byte
}

func newFixture(t *testing.T, maxChunkSize int64) *fixture {
	t.Helper()
	f := &fixture{}

	vaultSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/rest/resources/restrictions" {
			_ = json.NewEncoder(w).Encode([]models.Restriction{
				{Type: models.RestrictionMaxFileSize, Value: 123},
			})
			return
		}
		require.NoError(t, r.ParseMultipartForm(64<<20))
		file, _, err := r.FormFile("file")
		require.NoError(t, err)
		data, _ := io.ReadAll(file)
		f.mu.Lock()
		f.received = append(f.received, data)
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(models.StoredFile{
			URL:             "https://vault.example/f/" + strconv.Itoa(len(data)),
			RetentionPeriod: float64(len(data)),
		})
	}))
	t.Cleanup(vaultSrv.Close)

	f.store = chunkstore.New(t.TempDir())
	vaultClient := vault.New(vaultSrv.URL, "bucket-token")
	uploads := services.NewUploadService(services.UploadServiceConfig{
		Store:          f.store,
		Vault:          vaultClient,
		MaxChunkSize:   maxChunkSize,
		HasBucketToken: true,
	})
	srv := server.New(server.Config{
		Uploads:      uploads,
		Restrictions: restrictions.New(vaultClient),
		MaxChunkSize: maxChunkSize,
	})
	f.api = httptest.NewServer(srv.Routes(false))
	t.Cleanup(f.api.Close)
	return f
}

func (f *fixture) lastReceived() []byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.received) == 0 {
		return nil
	}
	return f.received[len(f.received)-1]
}

func postChunk(t *testing.T, api, uploadID string, index, total int, chunk []byte) *http.Response {
	t.Helper()
	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	fw, err := mw.CreateFormFile("chunk", "blob")
	require.NoError(t, err)
	_, err = fw.Write(chunk)
	require.NoError(t, err)
	require.NoError(t, mw.WriteField("uploadId", uploadID))
	require.NoError(t, mw.WriteField("chunkIndex", strconv.Itoa(index)))
	require.NoError(t, mw.WriteField("totalChunks", strconv.Itoa(total)))
	require.NoError(t, mw.Close())
	resp, err := http.Post(api+"/upload/chunk", mw.FormDataContentType(), body)
	require.NoError(t, err)
	return resp
}

func postJSON(t *testing.T, url string, payload any) *http.Response {
	t.Helper()
	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	resp, err := http.Post(url, "application/json", bytes.NewReader(raw))
	require.NoError(t, err)
	return resp
}

func TestChunkEndpoint(t *testing.T) {
	f := newFixture(t, 1024)

	t.Run("chunk accepted", func(t *testing.T) {
		resp := postChunk(t, f.api.URL, "sess-1", 0, 2, []byte("hello"))
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var body struct {
			Message     string `json:"message"`
			ChunkIndex  int    `json:"chunkIndex"`
			TotalChunks int    `json:"totalChunks"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		assert.Equal(t, "Chunk 1/2 uploaded", body.Message)
		assert.Equal(t, 0, body.ChunkIndex)
		assert.Equal(t, 2, body.TotalChunks)
		assert.True(t, f.store.Exists("sess-1"))
	})
	t.Run("oversize chunk rejected", func(t *testing.T) {
		resp := postChunk(t, f.api.URL, "sess-big", 0, 1, bytes.Repeat([]byte("x"), 2048))
		defer resp.Body.Close()
		assert.Equal(t, http.StatusRequestEntityTooLarge, resp.StatusCode)
	})
	t.Run("malformed index fails", func(t *testing.T) {
		body := &bytes.Buffer{}
		mw := multipart.NewWriter(body)
		fw, _ := mw.CreateFormFile("chunk", "blob")
		_, _ = fw.Write([]byte("x"))
		_ = mw.WriteField("uploadId", "sess-bad")
		_ = mw.WriteField("chunkIndex", "not-a-number")
		_ = mw.WriteField("totalChunks", "1")
		_ = mw.Close()
		resp, err := http.Post(f.api.URL+"/upload/chunk", mw.FormDataContentType(), body)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	})
}

func TestFinalizeEndpoint(t *testing.T) {
	f := newFixture(t, 1024)

	t.Run("expired session is 404", func(t *testing.T) {
		resp := postJSON(t, f.api.URL+"/upload/finalize", map[string]any{
			"uploadId": "never-existed",
			"options":  models.UploadOptions{Filename: "f.bin"},
		})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
	t.Run("invalid expiry is 400 before network", func(t *testing.T) {
		resp := postJSON(t, f.api.URL+"/upload/finalize", map[string]any{
			"uploadId": "whatever",
			"options":  models.UploadOptions{Filename: "f.bin", Expires: "abc"},
		})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
	t.Run("chunks reassembled in index order", func(t *testing.T) {
		uploadID := "sess-order"
		// completion order deliberately shuffled
		for _, idx := range []int{2, 0, 1} {
			resp := postChunk(t, f.api.URL, uploadID, idx, 3, []byte(fmt.Sprintf("part%d|", idx)))
			require.Equal(t, http.StatusOK, resp.StatusCode)
			resp.Body.Close()
		}
		resp := postJSON(t, f.api.URL+"/upload/finalize", map[string]any{
			"uploadId": uploadID,
			"options":  models.UploadOptions{Filename: "ordered.bin"},
		})
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		var stored models.StoredFile
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&stored))
		assert.NotEmpty(t, stored.URL)
		assert.Equal(t, []byte("part0|part1|part2|"), f.lastReceived())
		assert.False(t, f.store.Exists(uploadID), "temp dir must be cleaned after finalize")
	})
	t.Run("finalize twice is 404", func(t *testing.T) {
		resp := postJSON(t, f.api.URL+"/upload/finalize", map[string]any{
			"uploadId": "sess-order",
			"options":  models.UploadOptions{Filename: "ordered.bin"},
		})
		defer resp.Body.Close()
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}

func TestCleanupEndpoint(t *testing.T) {
	f := newFixture(t, 1024)

	resp := postChunk(t, f.api.URL, "sess-clean", 0, 1, []byte("x"))
	require.Equal(t, http.StatusOK, resp.StatusCode)
	resp.Body.Close()

	readSuccess := func(resp *http.Response) bool {
		defer resp.Body.Close()
		var body struct {
			Success bool `json:"success"`
		}
		require.NoError(t, json.NewDecoder(resp.Body).Decode(&body))
		require.Equal(t, http.StatusOK, resp.StatusCode)
		return body.Success
	}

	t.Run("removes session", func(t *testing.T) {
		ok := readSuccess(postJSON(t, f.api.URL+"/upload/cleanup", map[string]string{"uploadId": "sess-clean"}))
		assert.True(t, ok)
		assert.False(t, f.store.Exists("sess-clean"))
	})
	t.Run("missing session reports false but never errors", func(t *testing.T) {
		ok := readSuccess(postJSON(t, f.api.URL+"/upload/cleanup", map[string]string{"uploadId": "sess-clean"}))
		assert.False(t, ok)
	})
	t.Run("garbage body reports false", func(t *testing.T) {
		resp, err := http.Post(f.api.URL+"/upload/cleanup", "application/json", bytes.NewReader([]byte("{")))
		require.NoError(t, err)
		assert.False(t, readSuccess(resp))
	})
}

func TestDirectUploadEndpoint(t *testing.T) {
	f := newFixture(t, 1024)

	t.Run("uploads whole file", func(t *testing.T) {
		body := &bytes.Buffer{}
		mw := multipart.NewWriter(body)
		fw, err := mw.CreateFormFile("file", "whole.txt")
		require.NoError(t, err)
		_, _ = fw.Write([]byte("entire content"))
		require.NoError(t, mw.WriteField("options", `{"expires":"1h"}`))
		require.NoError(t, mw.Close())
		resp, err := http.Post(f.api.URL+"/upload", mw.FormDataContentType(), body)
		require.NoError(t, err)
		defer resp.Body.Close()
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, []byte("entire content"), f.lastReceived())
	})
	t.Run("no file is 400", func(t *testing.T) {
		body := &bytes.Buffer{}
		mw := multipart.NewWriter(body)
		require.NoError(t, mw.WriteField("options", `{}`))
		require.NoError(t, mw.Close())
		resp, err := http.Post(f.api.URL+"/upload", mw.FormDataContentType(), body)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
	t.Run("invalid expires is 400", func(t *testing.T) {
		body := &bytes.Buffer{}
		mw := multipart.NewWriter(body)
		fw, _ := mw.CreateFormFile("file", "whole.txt")
		_, _ = fw.Write([]byte("x"))
		require.NoError(t, mw.WriteField("options", `{"expires":"5"}`))
		require.NoError(t, mw.Close())
		resp, err := http.Post(f.api.URL+"/upload", mw.FormDataContentType(), body)
		require.NoError(t, err)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	})
}

func TestRestrictionsEndpoint(t *testing.T) {
	f := newFixture(t, 1024)
	resp, err := http.Get(f.api.URL + "/restrictions")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get("Cache-Control"), "s-maxage=3600")
	var list []models.Restriction
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&list))
	require.Len(t, list, 1)
	assert.Equal(t, models.RestrictionMaxFileSize, list[0].Type)
}
