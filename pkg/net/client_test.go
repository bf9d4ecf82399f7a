package net

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGetHTTPClient(t *testing.T) {
	client, err := GetHTTPClient()
	require.NoError(t, err)
	assert.NotNil(t, client)
	assert.NotNil(t, client.Jar)
}

func TestGetBearerClient_NoToken(t *testing.T) {
	client, err := GetBearerClient(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, reqTransport, client.Transport)
}

func newServer(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/private.csv":
			if r.Header.Get("Authorization") != "Bearer secret" {
				w.WriteHeader(http.StatusUnauthorized)
				return
			}
			_, _ = w.Write([]byte("a,b\n1,2\n"))
		case "/public.csv":
			assert.Equal(t, clientAgent, r.Header.Get("User-Agent"))
			_, _ = w.Write([]byte("x\n1\n"))
		case "/broken.csv":
			w.WriteHeader(http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func TestDownload(t *testing.T) {
	srv := newServer(t)
	dst := filepath.Join(t.TempDir(), "raw", "public.csv")

	require.NoError(t, Download(context.Background(), nil, srv.URL+"/public.csv", dst))
	b, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "x\n1\n", string(b))
}

func TestDownload_Bearer(t *testing.T) {
	srv := newServer(t)
	ctx := context.Background()
	dst := filepath.Join(t.TempDir(), "private.csv")

	plain, err := GetHTTPClient()
	require.NoError(t, err)
	assert.Error(t, Download(ctx, plain, srv.URL+"/private.csv", dst))
	_, err = os.Stat(dst)
	assert.True(t, os.IsNotExist(err))

	client, err := GetBearerClient(ctx, "secret")
	require.NoError(t, err)
	require.NoError(t, Download(ctx, client, srv.URL+"/private.csv", dst))
	b, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "a,b\n1,2\n", string(b))
}

func TestDownload_Errors(t *testing.T) {
	srv := newServer(t)
	ctx := context.Background()
	dir := t.TempDir()

	err := Download(ctx, nil, srv.URL+"/missing.csv", filepath.Join(dir, "m.csv"))
	assert.True(t, errors.Is(err, ErrorURLNotFound))

	err = Download(ctx, nil, srv.URL+"/broken.csv", filepath.Join(dir, "b.csv"))
	assert.Error(t, err)
	assert.False(t, errors.Is(err, ErrorURLNotFound))

	cctx, cancel := context.WithCancel(ctx)
	cancel()
	assert.Error(t, Download(cctx, nil, srv.URL+"/public.csv", filepath.Join(dir, "c.csv")))
}

func TestPrintHTTPResponse_Nil(t *testing.T) {
	// should not panic
	PrintHTTPResponse(nil)
}

func TestPrintHTTPResponse_WithResponse(t *testing.T) {
	resp := &http.Response{
		StatusCode: 200,
		Header:     http.Header{},
		Body:       http.NoBody,
	}
	// should not panic
	PrintHTTPResponse(resp)
}
