package browser

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"strings"
	"sync"
	"time"

	cloudflarebp "github.com/DaRealFreak/cloudflare-bp-go"
	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"golang.org/x/time/rate"

	"CatalogScanner/internal/ports"
)

// HTTPOptions configure the plain HTTP browser.
type HTTPOptions struct {
	UserAgent         string
	Timeout           time.Duration
	RequestsPerSecond float64
}

// HTTPLauncher starts cookie-keeping HTTP clients that fetch pages without
// executing scripts. It suits pages that are server rendered.
type HTTPLauncher struct {
	opts HTTPOptions
}

var _ ports.BrowserLauncher = (*HTTPLauncher)(nil)

// NewHTTPLauncher fills defaults for zero options.
func NewHTTPLauncher(opts HTTPOptions) *HTTPLauncher {
	if opts.UserAgent == "" {
		opts.UserAgent = DefaultUserAgent
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 30 * time.Second
	}
	if opts.RequestsPerSecond <= 0 {
		opts.RequestsPerSecond = 2
	}
	return &HTTPLauncher{opts: opts}
}

// Launch builds a fresh client with its own cookie jar.
func (l *HTTPLauncher) Launch(_ context.Context) (ports.Browser, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("cookie jar: %w", err)
	}

	client := resty.New()
	client.SetCookieJar(jar)
	client.GetClient().Transport = cloudflarebp.AddCloudFlareByPass(client.GetClient().Transport)
	client.SetHeader("User-Agent", l.opts.UserAgent)
	client.SetHeader("Accept-Language", "pt-PT,pt;q=0.9,en;q=0.8")
	client.SetTimeout(l.opts.Timeout)

	burst := int(l.opts.RequestsPerSecond)
	if burst < 1 {
		burst = 1
	}
	limiter := rate.NewLimiter(rate.Limit(l.opts.RequestsPerSecond), burst)
	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		return limiter.Wait(req.Context())
	})

	return &httpBrowser{client: client}, nil
}

type httpBrowser struct {
	client *resty.Client

	mu     sync.Mutex
	page   ports.Page
	closed bool
}

func (b *httpBrowser) Navigate(ctx context.Context, target string) error {
	b.mu.Lock()
	closed := b.closed
	b.mu.Unlock()
	if closed {
		return fmt.Errorf("browser is closed")
	}

	resp, err := b.client.R().SetContext(ctx).Get(target)
	if err != nil {
		return fmt.Errorf("get %s: %w", target, err)
	}
	if resp.StatusCode() >= http.StatusInternalServerError {
		return fmt.Errorf("get %s: unexpected status %d", target, resp.StatusCode())
	}

	html := resp.String()
	page := ports.Page{URL: target, HTML: html}
	if raw := resp.RawResponse; raw != nil && raw.Request != nil && raw.Request.URL != nil {
		page.URL = raw.Request.URL.String()
	}
	if doc, err := goquery.NewDocumentFromReader(strings.NewReader(html)); err == nil {
		page.Title = strings.TrimSpace(doc.Find("title").First().Text())
	}

	b.mu.Lock()
	b.page = page
	b.mu.Unlock()
	return nil
}

func (b *httpBrowser) Snapshot(context.Context) (ports.Page, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return ports.Page{}, fmt.Errorf("browser is closed")
	}
	return b.page, nil
}

func (b *httpBrowser) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.page = ports.Page{}
	return nil
}
