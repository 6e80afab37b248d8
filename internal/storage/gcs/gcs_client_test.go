package gcs_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"cloud.google.com/go/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"

	"docxingest/internal/port"
	"docxingest/internal/storage/gcs"
)

func newClient(t *testing.T, handler http.HandlerFunc) port.ObjectStorage {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	client, err := storage.NewClient(context.Background(),
		option.WithEndpoint(srv.URL+"/storage/v1/"),
		option.WithoutAuthentication(),
	)
	require.NoError(t, err)
	t.Cleanup(func() { _ = client.Close() })
	return gcs.NewFromClient(client)
}

func TestUpload_CreateOnly(t *testing.T) {
	var precondition string
	store := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		precondition = r.URL.Query().Get("ifGenerationMatch")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"bucket":"archive","name":"inv/a/record.json","etag":"CAE=","generation":"1"}`))
	})

	out, err := store.Upload(context.Background(), port.UploadInput{
		Bucket: "archive", Key: "inv/a/record.json", Body: strings.NewReader("{}"), ContentType: "application/json",
		CreateOnly: true,
	})

	require.NoError(t, err)
	assert.Equal(t, "0", precondition)
	assert.Equal(t, "gs://archive/inv/a/record.json", out.Location)
	assert.False(t, out.Existed)
}

func TestUpload_OverwriteHasNoPrecondition(t *testing.T) {
	var query string
	store := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		query = r.URL.RawQuery
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"bucket":"archive","name":"inv/b/report.csv","generation":"2"}`))
	})

	_, err := store.Upload(context.Background(), port.UploadInput{
		Bucket: "archive", Key: "inv/b/report.csv", Body: strings.NewReader("a,b"), ContentType: "text/csv",
	})

	require.NoError(t, err)
	assert.NotContains(t, query, "ifGenerationMatch")
}

func TestUpload_ExistingObjectIsSuccess(t *testing.T) {
	store := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusPreconditionFailed)
		_, _ = w.Write([]byte(`{"error":{"code":412,"message":"conditionNotMet"}}`))
	})

	out, err := store.Upload(context.Background(), port.UploadInput{
		Bucket: "archive", Key: "inv/a/original.pdf", Body: strings.NewReader("%PDF"), ContentType: "application/pdf",
		CreateOnly: true,
	})

	require.NoError(t, err)
	assert.Equal(t, "gs://archive/inv/a/original.pdf", out.Location)
	assert.True(t, out.Existed)
}

func TestUpload_ServerErrorFails(t *testing.T) {
	store := newClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte(`{"error":{"code":403,"message":"denied"}}`))
	})

	_, err := store.Upload(context.Background(), port.UploadInput{
		Bucket: "archive", Key: "k", Body: strings.NewReader("x"), ContentType: "text/plain",
	})

	assert.Error(t, err)
}
