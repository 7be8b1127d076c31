package browser

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHTTPBrowserKeepsCookiesAndSnapshots(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.SetCookie(w, &http.Cookie{Name: "cf_clearance", Value: "ok", Path: "/"})
		_, _ = w.Write([]byte(`<html><head><title> Worten.pt </title></head><body>home</body></html>`))
	})
	mux.HandleFunc("/search", func(w http.ResponseWriter, r *http.Request) {
		if _, err := r.Cookie("cf_clearance"); err != nil {
			w.WriteHeader(http.StatusForbidden)
			_, _ = w.Write([]byte(`<title>Just a moment...</title>`))
			return
		}
		assert.Equal(t, DefaultUserAgent, r.UserAgent())
		_, _ = w.Write([]byte(`<html><head><title>Pesquisa</title></head><body>` + r.URL.Query().Get("query") + `</body></html>`))
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	b, err := NewHTTPLauncher(HTTPOptions{RequestsPerSecond: 100}).Launch(context.Background())
	require.NoError(t, err)
	defer b.Close()

	ctx := context.Background()
	require.NoError(t, b.Navigate(ctx, srv.URL+"/"))
	page, err := b.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Worten.pt", page.Title)

	require.NoError(t, b.Navigate(ctx, srv.URL+"/search?query=torradeira"))
	page, err = b.Snapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Pesquisa", page.Title)
	assert.Contains(t, page.HTML, "torradeira")
	assert.Equal(t, srv.URL+"/search?query=torradeira", page.URL)
}

func TestHTTPBrowserServerError(t *testing.T) {
	t.Parallel()

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	b, err := NewHTTPLauncher(HTTPOptions{RequestsPerSecond: 100}).Launch(context.Background())
	require.NoError(t, err)

	assert.Error(t, b.Navigate(context.Background(), srv.URL))
}

func TestHTTPBrowserClosed(t *testing.T) {
	t.Parallel()

	b, err := NewHTTPLauncher(HTTPOptions{}).Launch(context.Background())
	require.NoError(t, err)
	require.NoError(t, b.Close())

	_, err = b.Snapshot(context.Background())
	assert.Error(t, err)
	assert.Error(t, b.Navigate(context.Background(), "http://127.0.0.1:1"))
}
