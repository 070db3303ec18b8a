package vault_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/waifuvault/WaifuFiles/internal/errvalues"
	"github.com/waifuvault/WaifuFiles/internal/vault"
	"github.com/waifuvault/WaifuFiles/pkg/models"
)

func TestUploadFile(t *testing.T) {
	var gotReq *http.Request
	var gotFile []byte
	var gotPassword string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotReq = r.Clone(context.Background())
		require.NoError(t, r.ParseMultipartForm(32<<20))
		f, _, err := r.FormFile("file")
		require.NoError(t, err)
		gotFile, _ = io.ReadAll(f)
		gotPassword = r.FormValue("password")
		_ = json.NewEncoder(w).Encode(models.StoredFile{
			URL:             "https://vault.example/f/abc",
			RetentionPeriod: "30 days",
		})
	}))
	defer srv.Close()

	cli := vault.New(srv.URL, "default-token")

	t.Run("full options", func(t *testing.T) {
		stored, err := cli.UploadFile(context.Background(), []byte("content"), models.UploadOptions{
			Filename:        "report.pdf",
			Expires:         "2d",
			Password:        "secret",
			HideFilename:    true,
			OneTimeDownload: true,
			BucketToken:     "custom-token",
		})
		require.NoError(t, err)
		assert.Equal(t, "https://vault.example/f/abc", stored.URL)
		assert.Equal(t, "/rest/custom-token", gotReq.URL.Path)
		q := gotReq.URL.Query()
		assert.Equal(t, "2d", q.Get("expires"))
		assert.Equal(t, "true", q.Get("hide_filename"))
		assert.Equal(t, "true", q.Get("one_time_download"))
		assert.Equal(t, "secret", gotPassword)
		assert.Equal(t, []byte("content"), gotFile)
	})
	t.Run("unset options stay off the wire", func(t *testing.T) {
		_, err := cli.UploadFile(context.Background(), []byte("x"), models.UploadOptions{
			Filename: "plain.txt",
		})
		require.NoError(t, err)
		assert.Equal(t, "/rest/default-token", gotReq.URL.Path)
		assert.Empty(t, gotReq.URL.RawQuery)
		assert.Empty(t, gotPassword)
	})
	t.Run("invalid expiry rejected before network", func(t *testing.T) {
		gotReq = nil
		_, err := cli.UploadFile(context.Background(), []byte("x"), models.UploadOptions{
			Filename: "plain.txt",
			Expires:  "1x",
		})
		assert.ErrorIs(t, err, errvalues.ErrInvalidExpiry)
		assert.Nil(t, gotReq)
	})
}

func TestUploadFileVaultError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_ = json.NewEncoder(w).Encode(vault.Error{
			Name:    "UNAUTHORIZED",
			Message: "bad bucket token",
			Status:  403,
		})
	}))
	defer srv.Close()

	cli := vault.New(srv.URL, "token")
	_, err := cli.UploadFile(context.Background(), []byte("x"), models.UploadOptions{Filename: "f"})
	var ve *vault.Error
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "UNAUTHORIZED", ve.Name)
	assert.Equal(t, 403, ve.Status)
}

func TestRestrictions(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/rest/resources/restrictions", r.URL.Path)
		_ = json.NewEncoder(w).Encode([]models.Restriction{
			{Type: models.RestrictionMaxFileSize, Value: 1048576000},
		})
	}))
	defer srv.Close()

	cli := vault.New(srv.URL, "token")
	restrictions, err := cli.Restrictions(context.Background())
	require.NoError(t, err)
	require.Len(t, restrictions, 1)
	assert.Equal(t, models.RestrictionMaxFileSize, restrictions[0].Type)
}
