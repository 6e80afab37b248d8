package storage_test

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"docxingest/internal/domain"
	"docxingest/internal/port"
	"docxingest/internal/storage"
	"docxingest/mocks"
)

func keyIs(key string) interface{} {
	return mock.MatchedBy(func(in port.UploadInput) bool { return in.Key == key })
}

func TestCommitter_ReportsPerArtifact(t *testing.T) {
	store := new(mocks.MockObjectStorage)
	store.On("Upload", mock.Anything, keyIs("inv/b1/abc/original.pdf")).
		Return(&port.UploadOutput{Location: "s3://bucket/inv/b1/abc/original.pdf"}, nil)
	store.On("Upload", mock.Anything, keyIs("inv/b1/abc/record.json")).
		Return(nil, errors.New("connection reset"))

	c := storage.NewCommitter(store, "bucket", 0)
	results := c.Commit(context.Background(), "inv/b1/abc", []storage.Artifact{
		{Kind: domain.ArtifactOriginal, Name: "original.pdf", ContentType: "application/pdf", Data: []byte("%PDF")},
		{Kind: domain.ArtifactRecord, Name: "record.json", ContentType: "application/json", Data: []byte("{}")},
	})

	require.Len(t, results, 2)
	assert.Equal(t, domain.ArtifactOriginal, results[0].Kind)
	assert.NoError(t, results[0].Err)
	assert.Equal(t, "s3://bucket/inv/b1/abc/original.pdf", results[0].Location)

	assert.Equal(t, domain.ArtifactRecord, results[1].Kind)
	assert.True(t, domain.IsTransient(results[1].Err))
	store.AssertExpectations(t)
}

func TestCommitter_SendsBodyAndBucket(t *testing.T) {
	store := new(mocks.MockObjectStorage)
	var body []byte
	store.On("Upload", mock.Anything, mock.Anything).Run(func(args mock.Arguments) {
		in := args.Get(1).(port.UploadInput)
		assert.Equal(t, "archive", in.Bucket)
		assert.Equal(t, "text/plain; charset=utf-8", in.ContentType)
		assert.Equal(t, int64(5), in.Size)
		body, _ = io.ReadAll(in.Body)
	}).Return(&port.UploadOutput{Location: "loc"}, nil)

	c := storage.NewCommitter(store, "archive", 0)
	results := c.Commit(context.Background(), "c", []storage.Artifact{
		{Kind: domain.ArtifactAudit, Name: "audit.txt", ContentType: "text/plain; charset=utf-8", Data: []byte("hello")},
	})

	require.NoError(t, results[0].Err)
	assert.Equal(t, []byte("hello"), body)
	assert.Equal(t, "archive", c.Bucket())
}

func TestCommitter_PresignedURL(t *testing.T) {
	store := new(mocks.MockObjectStorage)
	store.On("GetPresignedURL", mock.Anything, "archive", "inv/b1/report.csv", int64(60)).Return("https://signed", nil)

	url, err := storage.NewCommitter(store, "archive", 0).PresignedURL(context.Background(), "inv/b1/report.csv", 60)

	require.NoError(t, err)
	assert.Equal(t, "https://signed", url)
}

func TestCommitter_CreateOnlyUnlessReplace(t *testing.T) {
	store := new(mocks.MockObjectStorage)
	store.On("Upload", mock.Anything, mock.MatchedBy(func(in port.UploadInput) bool {
		return in.Key == "c/record.json" && in.CreateOnly &&
			in.Metadata["content-hash"] == "abc" && in.Metadata["artifact-kind"] == string(domain.ArtifactRecord)
	})).Return(&port.UploadOutput{Location: "loc/record.json", Existed: true}, nil)
	store.On("Upload", mock.Anything, mock.MatchedBy(func(in port.UploadInput) bool {
		return in.Key == "c/report.csv" && !in.CreateOnly
	})).Return(&port.UploadOutput{Location: "loc/report.csv"}, nil)

	c := storage.NewCommitter(store, "archive", 0)
	results := c.Commit(context.Background(), "c", []storage.Artifact{
		{Kind: domain.ArtifactRecord, Name: "record.json", Data: []byte("{}"), Metadata: map[string]string{"content-hash": "abc"}},
		{Kind: domain.ArtifactKind("report"), Name: "report.csv", Data: []byte("a"), Replace: true},
	})

	require.Len(t, results, 2)
	assert.NoError(t, results[0].Err)
	assert.Equal(t, "loc/record.json", results[0].Location)
	assert.NoError(t, results[1].Err)
	store.AssertExpectations(t)
}
