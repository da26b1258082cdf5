package dispatch

import (
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/bissquit/push-relay/internal/domain"
	"golang.org/x/text/unicode/norm"
)

const (
	// DefaultMaxPayloadSize keeps the encrypted record under the 4096 byte
	// limit push services enforce, leaving room for padding and the header.
	DefaultMaxPayloadSize = 3072

	maxTitleRunes = 200
	ellipsis      = "…"

	// draftID has the width of the UUIDs notifications are stored under.
	draftID = "00000000-0000-0000-0000-000000000000"
)

// pushPayload is what the service worker receives in the push event.
type pushPayload struct {
	Title          string `json:"title"`
	Body           string `json:"body"`
	URL            string `json:"url,omitempty"`
	NotificationID string `json:"notification_id"`
	DeliveredURL   string `json:"delivered_url"`
	ClickURL       string `json:"click_url"`
}

// Renderer builds push payloads.
type Renderer struct {
	publicBaseURL string
	maxSize       int
}

// NewRenderer creates a renderer. Callback URLs are absolute URLs under publicBaseURL.
func NewRenderer(publicBaseURL string, maxSize int) *Renderer {
	if maxSize <= 0 {
		maxSize = DefaultMaxPayloadSize
	}
	return &Renderer{
		publicBaseURL: strings.TrimRight(publicBaseURL, "/"),
		maxSize:       maxSize,
	}
}

// Render returns the JSON payload for n, truncating the body if needed.
func (r *Renderer) Render(n *domain.Notification) ([]byte, error) {
	p := pushPayload{
		Title:          truncateRunes(norm.NFC.String(strings.TrimSpace(n.Title)), maxTitleRunes),
		Body:           norm.NFC.String(strings.TrimSpace(n.Body)),
		URL:            n.URL,
		NotificationID: n.ID,
		DeliveredURL:   r.callbackURL(n.ID, "delivered"),
		ClickURL:       r.callbackURL(n.ID, "clicked"),
	}

	for {
		data, err := json.Marshal(p)
		if err != nil {
			return nil, fmt.Errorf("marshal push payload: %w", err)
		}
		if len(data) <= r.maxSize {
			return data, nil
		}
		if p.Body == "" {
			return nil, fmt.Errorf("%w: payload exceeds %d bytes", ErrInvalidInput, r.maxSize)
		}
		p.Body = shorten(p.Body, len(data)-r.maxSize)
	}
}

// Check reports whether n will render within the size limit once it has an id.
func (r *Renderer) Check(n *domain.Notification) error {
	draft := *n
	draft.ID = draftID
	_, err := r.Render(&draft)
	return err
}

func (r *Renderer) callbackURL(id, event string) string {
	return fmt.Sprintf("%s/api/v1/public/notifications/%s/%s", r.publicBaseURL, id, event)
}

// shorten drops at least excess bytes from s on a rune boundary and marks the cut.
func shorten(s string, excess int) string {
	s = strings.TrimSuffix(s, ellipsis)
	cut := len(s) - excess - len(ellipsis)
	if cut <= 0 {
		return ""
	}
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + ellipsis
}

func truncateRunes(s string, max int) string {
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	runes := []rune(s)
	return string(runes[:max-1]) + ellipsis
}
