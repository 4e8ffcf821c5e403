package broker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/BaSui01/dailycrew/types"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeAck records the ack decision taken for a delivery.
type fakeAck struct {
	mu      sync.Mutex
	acked   bool
	nacked  bool
	requeue bool
}

func (f *fakeAck) Ack(tag uint64, multiple bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.acked = true
	return nil
}

func (f *fakeAck) Nack(tag uint64, multiple, requeue bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nacked = true
	f.requeue = requeue
	return nil
}

func (f *fakeAck) Reject(tag uint64, requeue bool) error {
	return f.Nack(tag, false, requeue)
}

type stubHandler struct {
	reply *types.Reply
	err   error
	got   []types.Event
}

func (s *stubHandler) Handle(ctx context.Context, ev types.Event) (*types.Reply, error) {
	s.got = append(s.got, ev)
	return s.reply, s.err
}

type stubReplies struct {
	events []types.Event
}

func (s *stubReplies) PublishReply(ctx context.Context, ev types.Event, reply *types.Reply) error {
	s.events = append(s.events, ev)
	return nil
}

func delivery(t *testing.T, body any) (amqp.Delivery, *fakeAck) {
	t.Helper()
	raw, ok := body.([]byte)
	if !ok {
		var err error
		raw, err = json.Marshal(body)
		require.NoError(t, err)
	}
	ack := &fakeAck{}
	return amqp.Delivery{Acknowledger: ack, Body: raw, MessageId: "m1"}, ack
}

func TestDecodeEvent(t *testing.T) {
	env := NewEnvelope(TypeEvent, types.Event{UserID: "u1", Text: "hi"}, "")
	raw, err := json.Marshal(env)
	require.NoError(t, err)

	ev, err := DecodeEvent(raw)
	require.NoError(t, err)
	assert.Equal(t, "u1", ev.UserID)
	assert.Equal(t, types.EventKindMessage, ev.Kind)
	assert.Equal(t, env.Meta.ID, ev.ID)

	bare, err := DecodeEvent([]byte(`{"id":"e1","user_id":"u2","kind":"hourly_checkin"}`))
	require.NoError(t, err)
	assert.Equal(t, "e1", bare.ID)
	assert.Equal(t, types.EventKindHourlyCheckin, bare.Kind)

	for _, body := range []string{`not json`, `{"data":{"text":"no user"}}`, `{"user_id":"u","kind":"dance"}`} {
		_, err := DecodeEvent([]byte(body))
		assert.ErrorIs(t, err, ErrPoison, body)
	}
}

func TestNewEnvelope(t *testing.T) {
	env := NewEnvelope(TypeReply, "x", "evt-1")
	assert.NotEmpty(t, env.Meta.ID)
	require.NotNil(t, env.Meta.CorrelationID)
	assert.Equal(t, "evt-1", *env.Meta.CorrelationID)
	require.NotNil(t, env.Meta.Producer)
	assert.Equal(t, Producer, *env.Meta.Producer)

	assert.Nil(t, NewEnvelope(TypeReply, "x", "").Meta.CorrelationID)
	assert.Equal(t, "reply.hourly_checkin", ReplyRoutingKey(types.EventKindHourlyCheckin))
}

func TestConsumer_Process(t *testing.T) {
	retryable := types.NewError(types.ErrServiceUnavailable, "store down").WithRetryable(true)

	tests := []struct {
		name        string
		body        any
		handler     *stubHandler
		wantOutcome string
		wantRequeue bool
		wantReplies int
	}{
		{
			name:        "success publishes reply",
			body:        types.Event{ID: "e1", UserID: "u1", Text: "hi"},
			handler:     &stubHandler{reply: types.TextReply("hello")},
			wantOutcome: OutcomeAck,
			wantReplies: 1,
		},
		{
			name:        "silent reply is not published",
			body:        types.Event{ID: "e2", UserID: "u1", Kind: types.EventKindActivityCheck},
			handler:     &stubHandler{reply: &types.Reply{Silent: true}},
			wantOutcome: OutcomeAck,
		},
		{
			name:        "poison is dropped",
			body:        []byte("{{{"),
			handler:     &stubHandler{},
			wantOutcome: OutcomePoison,
		},
		{
			name:        "retryable error requeues",
			body:        types.Event{ID: "e3", UserID: "u1"},
			handler:     &stubHandler{err: retryable},
			wantOutcome: OutcomeRequeue,
			wantRequeue: true,
		},
		{
			name:        "permanent error drops",
			body:        types.Event{ID: "e4", UserID: "u1"},
			handler:     &stubHandler{err: errors.New("bad")},
			wantOutcome: OutcomeDropped,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			replies := &stubReplies{}
			var outcomes []string
			c := NewConsumer(ConnectionOptions{}, ConsumerConfig{Queue: "q"}, tt.handler, replies, nil, zap.NewNop())
			c.OnOutcome = func(o string) { outcomes = append(outcomes, o) }

			d, ack := delivery(t, tt.body)
			got := c.Process(context.Background(), d)

			assert.Equal(t, tt.wantOutcome, got)
			assert.Equal(t, []string{tt.wantOutcome}, outcomes)
			assert.Len(t, replies.events, tt.wantReplies)
			if tt.wantOutcome == OutcomeAck {
				assert.True(t, ack.acked)
			} else {
				assert.True(t, ack.nacked)
				assert.Equal(t, tt.wantRequeue, ack.requeue)
			}
		})
	}
}

func TestDialWithRetry(t *testing.T) {
	calls := 0
	_, err := DialWithRetry(context.Background(), ConnectionOptions{
		URL:           "amqp://nowhere",
		RetryAttempts: 3,
		Delay:         time.Millisecond,
		Dial: func(string) (*amqp.Connection, error) {
			calls++
			return nil, errors.New("refused")
		},
	}, zap.NewNop())
	require.Error(t, err)
	assert.Equal(t, 3, calls)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = DialWithRetry(ctx, ConnectionOptions{
		RetryAttempts: 5,
		Delay:         time.Second,
		Dial: func(string) (*amqp.Connection, error) {
			return nil, errors.New("refused")
		},
	}, zap.NewNop())
	require.Error(t, err)
}
