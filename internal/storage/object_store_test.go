package storage

import (
	"context"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewObjectStoreValidation(t *testing.T) {
	_, err := NewObjectStore(context.Background(), Config{Bucket: "receipts"})
	assert.ErrorContains(t, err, "endpoint")

	_, err = NewObjectStore(context.Background(), Config{Endpoint: "r2.test"})
	assert.ErrorContains(t, err, "bucket")
}

func TestLinkUsesPublicBase(t *testing.T) {
	store, err := NewObjectStore(context.Background(), Config{
		Endpoint:        "r2.test",
		Bucket:          "receipts",
		AccessKeyID:     "id",
		SecretAccessKey: "secret",
		PublicBaseURL:   "https://cdn.test/",
	})
	require.NoError(t, err)

	link, err := store.Link(context.Background(), "/receipts/s1.pdf")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.test/receipts/s1.pdf", link)
}

func TestLinkPresignsPrivateBucket(t *testing.T) {
	store, err := NewObjectStore(context.Background(), Config{
		Endpoint:        "https://r2.test",
		Bucket:          "receipts",
		AccessKeyID:     "id",
		SecretAccessKey: "secret",
	})
	require.NoError(t, err)

	link, err := store.Link(context.Background(), "receipts/s1.pdf")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(link, "https://r2.test/receipts/receipts/s1.pdf?"), link)
	assert.Contains(t, link, "X-Amz-Signature=")
}

func TestParseStorageClass(t *testing.T) {
	assert.Nil(t, parseStorageClass(" "))
	sc := parseStorageClass("standard")
	require.NotNil(t, sc)
	assert.Equal(t, types.StorageClassStandard, *sc)
}
