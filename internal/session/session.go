package session

import (
	"strings"
	"sync"

	"CatalogScanner/internal/domain"
	"CatalogScanner/internal/ports"
)

// noCopy lets go vet's copylocks check flag accidental copies of Session.
type noCopy struct{}

func (*noCopy) Lock()   {}
func (*noCopy) Unlock() {}

// Session is one live browsing context shared by a whole scrape batch.
// It is not safe for concurrent use; overlapping Use calls fail fast.
type Session struct {
	noCopy noCopy

	mu      sync.Mutex
	browser ports.Browser
}

func newSession(browser ports.Browser) *Session {
	return &Session{browser: browser}
}

// Use runs fn with exclusive access to the browser. A second caller that
// arrives while fn is running gets domain.ErrSessionBusy instead of blocking.
func (s *Session) Use(fn func(ports.Browser) error) error {
	if !s.mu.TryLock() {
		return domain.ErrSessionBusy
	}
	defer s.mu.Unlock()

	return fn(s.browser)
}

var challengeMarkers = []string{"momento", "challenge", "just a moment", "attention required"}

// IsChallenge reports whether the page is an anti-bot interstitial rather
// than site content.
func IsChallenge(page ports.Page) bool {
	title := strings.ToLower(page.Title)
	for _, marker := range challengeMarkers {
		if strings.Contains(title, marker) {
			return true
		}
	}
	return strings.Contains(page.HTML, `id="challenge-form"`) || strings.Contains(page.HTML, "cf-challenge-running")
}
