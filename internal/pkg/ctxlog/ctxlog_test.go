package ctxlog

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFromContext_Default(t *testing.T) {
	assert.Equal(t, slog.Default(), FromContext(context.Background()))
}

func TestWith(t *testing.T) {
	var buf bytes.Buffer
	base := slog.New(slog.NewTextHandler(&buf, nil))
	ctx := WithLogger(context.Background(), base.With("request_id", "req-1"))

	ctx, logger := With(ctx, "site_id", "site-1")
	logger.Info("first")
	FromContext(ctx).Info("second")

	out := buf.String()
	assert.Equal(t, 2, bytes.Count(buf.Bytes(), []byte("request_id=req-1")))
	assert.Equal(t, 2, bytes.Count(buf.Bytes(), []byte("site_id=site-1")))
	assert.Contains(t, out, "msg=second")
}
