package cloudflare

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	appconfig "walletwise_backend/pkg/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObjectKey(t *testing.T) {
	at := time.Date(2026, 4, 9, 13, 30, 0, 0, time.UTC)
	assert.Equal(t, "webhooks/stripe/2026/04/09/cs_test_a1b2-1775741400.json", ObjectKey("stripe", "cs_test_a1b2", at))
	assert.Equal(t, "webhooks/xendit/2026/04/09/unknown-1775741400.json", ObjectKey("xendit", "", at))
}

func TestNewR2ArchiveDisabledWithoutConfig(t *testing.T) {
	a, err := NewR2Archive(context.Background(), appconfig.ArchiveConfig{})
	require.NoError(t, err)
	assert.Nil(t, a)
}

func TestR2ArchiveStore(t *testing.T) {
	var gotPath, gotBody string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPut, r.Method)
		gotPath = r.URL.Path
		body, _ := io.ReadAll(r.Body)
		gotBody = string(body)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	a, err := NewR2Archive(context.Background(), appconfig.ArchiveConfig{
		AccountID:  "acct",
		AccessKey:  "key",
		SecretKey:  "secret",
		BucketName: "audit",
	}, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(srv.URL)
	})
	require.NoError(t, err)
	require.NotNil(t, a)

	at := time.Date(2026, 4, 9, 13, 30, 0, 0, time.UTC)
	key, err := a.Store(context.Background(), "stripe", "cs_1", []byte(`{"id":"evt_1"}`), at)
	require.NoError(t, err)
	assert.Equal(t, "webhooks/stripe/2026/04/09/cs_1-1775741400.json", key)
	assert.Equal(t, "/audit/"+key, gotPath)
	assert.Equal(t, `{"id":"evt_1"}`, gotBody)
}
