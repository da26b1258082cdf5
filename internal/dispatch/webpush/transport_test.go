package webpush

import (
	"context"
	"crypto/ecdh"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	wp "github.com/SherClockHolmes/webpush-go"
	"github.com/bissquit/push-relay/internal/dispatch"
	"github.com/bissquit/push-relay/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// browserSubscription returns a PushSubscription JSON with real client keys.
func browserSubscription(t *testing.T, endpoint string) []byte {
	t.Helper()
	key, err := ecdh.P256().GenerateKey(rand.Reader)
	require.NoError(t, err)

	auth := make([]byte, 16)
	_, err = rand.Read(auth)
	require.NoError(t, err)

	return []byte(fmt.Sprintf(`{"endpoint":%q,"expirationTime":null,"keys":{"p256dh":%q,"auth":%q}}`,
		endpoint,
		base64.RawURLEncoding.EncodeToString(key.PublicKey().Bytes()),
		base64.RawURLEncoding.EncodeToString(auth),
	))
}

func testKeypair(t *testing.T) *domain.Keypair {
	t.Helper()
	priv, pub, err := wp.GenerateVAPIDKeys()
	require.NoError(t, err)
	return &domain.Keypair{SiteID: "site-1", PublicKey: pub, PrivateKey: priv}
}

type captured struct {
	header http.Header
	body   []byte
}

func pushService(t *testing.T, status int) (*httptest.Server, *[]captured) {
	t.Helper()
	var mu sync.Mutex
	var requests []captured
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		mu.Lock()
		requests = append(requests, captured{header: r.Header.Clone(), body: body})
		mu.Unlock()
		w.WriteHeader(status)
	}))
	t.Cleanup(srv.Close)
	return srv, &requests
}

func TestTransport_Send(t *testing.T) {
	srv, requests := pushService(t, http.StatusCreated)
	kp := testKeypair(t)

	transport := NewTransportWithClient(Config{
		Subscriber: "ops@example.com",
		TTL:        time.Hour,
		Urgency:    "high",
	}, srv.Client())

	status, err := transport.Send(context.Background(), dispatch.Message{
		Subscription: browserSubscription(t, srv.URL+"/push/abc"),
		Payload:      []byte(`{"title":"hi"}`),
		Keypair:      kp,
	})
	require.NoError(t, err)
	assert.Equal(t, http.StatusCreated, status)

	require.Len(t, *requests, 1)
	req := (*requests)[0]
	assert.Equal(t, "3600", req.header.Get("TTL"))
	assert.Equal(t, "high", req.header.Get("Urgency"))
	assert.Equal(t, "aes128gcm", req.header.Get("Content-Encoding"))
	assert.True(t, strings.HasPrefix(req.header.Get("Authorization"), "vapid "))
	assert.Contains(t, req.header.Get("Authorization"), "k=")
	assert.NotContains(t, string(req.body), `"title"`, "payload must be encrypted")
}

func TestTransport_Send_ReportsStatus(t *testing.T) {
	for _, status := range []int{http.StatusGone, http.StatusTooManyRequests, http.StatusBadGateway} {
		t.Run(http.StatusText(status), func(t *testing.T) {
			srv, _ := pushService(t, status)
			transport := NewTransportWithClient(Config{Subscriber: "ops@example.com", TTL: time.Minute}, srv.Client())

			got, err := transport.Send(context.Background(), dispatch.Message{
				Subscription: browserSubscription(t, srv.URL),
				Payload:      []byte(`{}`),
				Keypair:      testKeypair(t),
			})
			require.NoError(t, err)
			assert.Equal(t, status, got)
		})
	}
}

func TestTransport_Send_MalformedSubscription(t *testing.T) {
	transport := NewTransport(Config{Subscriber: "ops@example.com"})

	for _, raw := range []string{`not json`, `{"endpoint":"https://push.example.com/1"}`, `{"keys":{"p256dh":"a","auth":"b"}}`} {
		_, err := transport.Send(context.Background(), dispatch.Message{
			Subscription: []byte(raw),
			Payload:      []byte(`{}`),
			Keypair:      testKeypair(t),
		})
		assert.ErrorIs(t, err, dispatch.ErrMalformedSubscription, raw)
		assert.Equal(t, dispatch.OutcomePermanent, dispatch.Classify(0, err))
	}
}

func TestTransport_Send_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-r.Context().Done():
		case <-time.After(2 * time.Second):
		}
		w.WriteHeader(http.StatusCreated)
	}))
	t.Cleanup(srv.Close)

	transport := NewTransportWithClient(Config{Subscriber: "ops@example.com"}, srv.Client())
	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()

	_, err := transport.Send(ctx, dispatch.Message{
		Subscription: browserSubscription(t, srv.URL),
		Payload:      []byte(`{}`),
		Keypair:      testKeypair(t),
	})
	require.Error(t, err)
	assert.Equal(t, dispatch.OutcomeTransient, dispatch.Classify(0, err))
}
