package tracing

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChildSpansShareTrace(t *testing.T) {
	ctx, root := StartSpan(context.Background(), "cascade", "req-1")
	_, child := StartChildSpan(ctx, "sweep raw-balance-sheet")
	child.RecordError(errors.New("store refused"))
	child.End()
	root.End()

	assert.Equal(t, "req-1", child.TraceID)
	require.Len(t, root.Children, 1)
	assert.Same(t, child, root.Children[0])

	var buf bytes.Buffer
	root.Log(slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug})))
	out := buf.String()
	assert.Equal(t, 2, strings.Count(out, "msg=span"))
	assert.Contains(t, out, `error="store refused"`)
}

func TestOrphanChildStartsTrace(t *testing.T) {
	_, span := StartChildSpan(context.Background(), "sweep")
	assert.NotEmpty(t, span.TraceID)
	assert.Nil(t, SpanFromContext(context.Background()))
}
