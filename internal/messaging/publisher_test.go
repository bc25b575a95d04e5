package messaging

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sent struct {
	topic   string
	key     string
	payload string
}

type fakeSender struct {
	mu    sync.Mutex
	sent  []sent
	err   error
	block bool
	panic bool
}

func (f *fakeSender) Send(ctx context.Context, topic, key string, payload []byte) error {
	if f.panic {
		panic("broker client bug")
	}
	if f.block {
		<-ctx.Done()
		return ctx.Err()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, sent{topic: topic, key: key, payload: string(payload)})
	return f.err
}

func TestPublishRejectsEmptyInput(t *testing.T) {
	s := &fakeSender{}
	p := NewPublisher(s, time.Second)

	assert.False(t, p.Publish(context.Background(), "", []byte(`{"a":1}`)))
	assert.False(t, p.Publish(context.Background(), "  ", []byte(`{"a":1}`)))
	assert.False(t, p.Publish(context.Background(), "topic", nil))
	assert.False(t, p.Publish(context.Background(), "topic", []byte{}))
	assert.Empty(t, s.sent)
}

func TestPublishSendsWithPartitionKey(t *testing.T) {
	s := &fakeSender{}
	p := NewPublisher(s, time.Second)
	payload := `{"airlineICAOCode":"BAW","reportingPeriod":"Annual","reportDateUTC":"2021-01-01T00:00:00Z","message":"go"}`

	require.True(t, p.Publish(context.Background(), "secondary-report-notification", []byte(payload)))
	require.Len(t, s.sent, 1)
	assert.Equal(t, "secondary-report-notification", s.sent[0].topic)
	assert.Equal(t, "BAW:Annual:2021", s.sent[0].key)
	assert.Equal(t, payload, s.sent[0].payload)
}

func TestPublishFailuresReturnFalse(t *testing.T) {
	tests := []struct {
		name   string
		sender *fakeSender
	}{
		{"send error", &fakeSender{err: errors.New("broker unreachable")}},
		{"timeout", &fakeSender{block: true}},
		{"panic", &fakeSender{panic: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := NewPublisher(tt.sender, 20*time.Millisecond)
			assert.NotPanics(t, func() {
				assert.False(t, p.Publish(context.Background(), "topic", []byte(`{"message":"x"}`)))
			})
		})
	}
}

func TestPartitionKey(t *testing.T) {
	assert.Equal(t, "", partitionKey([]byte(`not json`)))
	assert.Equal(t, "", partitionKey([]byte(`{"message":"x"}`)))
	assert.Equal(t, "BAW:Q1", partitionKey([]byte(`{"airlineICAOCode":"BAW","reportingPeriod":"Q1"}`)))
}
