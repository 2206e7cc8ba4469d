package objectstore

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(url string) *Client {
	return NewClient(ClientOpts{
		BaseURL:    url + "/",
		ServiceKey: "service-key",
		Bucket:     "car-images",
	})
}

func TestUpload(t *testing.T) {
	var req *http.Request
	var body []byte
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req = r
		body, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		io.WriteString(w, `{"Key":"car-images/cars/1/image-1-0.png"}`)
	}))
	defer ts.Close()

	err := newTestClient(ts.URL).Upload(context.Background(), "cars/1/image-1-0.png", []byte("png-bytes"), "image/png")
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/storage/v1/object/car-images/cars/1/image-1-0.png", req.URL.Path)
	assert.Equal(t, "Bearer service-key", req.Header.Get("Authorization"))
	assert.Equal(t, "service-key", req.Header.Get("apikey"))
	assert.Equal(t, "image/png", req.Header.Get("Content-Type"))
	assert.Equal(t, "png-bytes", string(body))
}

func TestUpload_Error(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		io.WriteString(w, `{"error":"Duplicate"}`)
	}))
	defer ts.Close()

	err := newTestClient(ts.URL).Upload(context.Background(), "cars/1/a.png", []byte("x"), "image/png")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status: 409")
	assert.Contains(t, err.Error(), "Duplicate")
}

func TestRemove(t *testing.T) {
	var req *http.Request
	var payload map[string][]string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		req = r
		json.NewDecoder(r.Body).Decode(&payload)
		io.WriteString(w, `[]`)
	}))
	defer ts.Close()

	err := newTestClient(ts.URL).Remove(context.Background(), []string{"cars/1/a.png", "cars/1/b.png"})
	require.NoError(t, err)

	assert.Equal(t, http.MethodDelete, req.Method)
	assert.Equal(t, "/storage/v1/object/car-images", req.URL.Path)
	assert.Equal(t, []string{"cars/1/a.png", "cars/1/b.png"}, payload["prefixes"])
}

func TestRemove_NothingToDo(t *testing.T) {
	called := false
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer ts.Close()

	require.NoError(t, newTestClient(ts.URL).Remove(context.Background(), nil))
	assert.False(t, called)
}

func TestPublicURLRoundTrip(t *testing.T) {
	c := newTestClient("https://abc.supabase.co")

	u := c.PublicURL("cars/42/image-1700000000000-0.jpeg")
	assert.Equal(t, "https://abc.supabase.co/storage/v1/object/public/car-images/cars/42/image-1700000000000-0.jpeg", u)

	path, ok := c.PathFromURL(u)
	assert.True(t, ok)
	assert.Equal(t, "cars/42/image-1700000000000-0.jpeg", path)

	_, ok = c.PathFromURL("https://example.com/other/bucket/x.png")
	assert.False(t, ok)
	_, ok = c.PathFromURL("::not a url")
	assert.False(t, ok)
}
