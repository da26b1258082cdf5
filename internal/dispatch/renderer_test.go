package dispatch

import (
	"encoding/json"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/bissquit/push-relay/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRenderer_Render(t *testing.T) {
	r := NewRenderer("https://relay.example.com/", 0)
	n := &domain.Notification{
		ID:    "0b6f4c1e-7f2a-4d7c-9a55-2f1c8f0e9d11",
		Title: "  Summer sale  ",
		Body:  "Everything -50%",
		URL:   "https://shop.example.com/sale",
	}

	data, err := r.Render(n)
	require.NoError(t, err)

	var p pushPayload
	require.NoError(t, json.Unmarshal(data, &p))
	assert.Equal(t, "Summer sale", p.Title)
	assert.Equal(t, "Everything -50%", p.Body)
	assert.Equal(t, n.URL, p.URL)
	assert.Equal(t, n.ID, p.NotificationID)
	assert.Equal(t, "https://relay.example.com/api/v1/public/notifications/"+n.ID+"/delivered", p.DeliveredURL)
	assert.Equal(t, "https://relay.example.com/api/v1/public/notifications/"+n.ID+"/clicked", p.ClickURL)
}

func TestRenderer_NormalizesUnicode(t *testing.T) {
	r := NewRenderer("https://relay.example.com", 0)

	data, err := r.Render(&domain.Notification{ID: "x", Title: "Cafe\u0301", Body: "ok"})
	require.NoError(t, err)

	var p pushPayload
	require.NoError(t, json.Unmarshal(data, &p))
	assert.Equal(t, "Caf\u00e9", p.Title)
}

func TestRenderer_TruncatesBody(t *testing.T) {
	r := NewRenderer("https://relay.example.com", 512)
	body := strings.Repeat("Привет <мир> ", 200)

	data, err := r.Render(&domain.Notification{ID: "x", Title: "Long", Body: body})
	require.NoError(t, err)
	assert.LessOrEqual(t, len(data), 512)

	var p pushPayload
	require.NoError(t, json.Unmarshal(data, &p))
	assert.True(t, utf8.ValidString(p.Body))
	assert.True(t, strings.HasSuffix(p.Body, ellipsis))
	assert.True(t, strings.HasPrefix(body, strings.TrimSuffix(p.Body, ellipsis)))
}

func TestRenderer_TruncatesTitle(t *testing.T) {
	r := NewRenderer("https://relay.example.com", 0)

	data, err := r.Render(&domain.Notification{ID: "x", Title: strings.Repeat("t", 500)})
	require.NoError(t, err)

	var p pushPayload
	require.NoError(t, json.Unmarshal(data, &p))
	assert.Equal(t, maxTitleRunes, utf8.RuneCountInString(p.Title))
}

func TestRenderer_TooLargeWithoutBody(t *testing.T) {
	r := NewRenderer("https://relay.example.com", 100)

	_, err := r.Render(&domain.Notification{ID: "x", Title: strings.Repeat("t", 150)})
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRenderer_Check(t *testing.T) {
	r := NewRenderer("https://relay.example.com", 0)

	assert.NoError(t, r.Check(&domain.Notification{Title: "Sale", Body: strings.Repeat("b", 5000)}))

	n := &domain.Notification{Title: "Sale", URL: "https://shop.example.com/?" + strings.Repeat("a=1&", 500)}
	assert.ErrorIs(t, r.Check(n), ErrInvalidInput)
	assert.Empty(t, n.ID)
}
