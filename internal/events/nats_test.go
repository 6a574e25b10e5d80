package events

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/phrazzld/cronq/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// runNATSServer starts an in-process NATS server on a random port.
func runNATSServer(t *testing.T) *server.Server {
	t.Helper()

	opts := &server.Options{
		Host:   "127.0.0.1",
		Port:   server.RANDOM_PORT,
		NoLog:  true,
		NoSigs: true,
	}
	s, err := server.NewServer(opts)
	require.NoError(t, err)

	go s.Start()
	if !s.ReadyForConnections(10 * time.Second) {
		t.Fatal("Unable to start NATS server")
	}
	t.Cleanup(s.Shutdown)
	return s
}

func connect(t *testing.T, s *server.Server) *nats.Conn {
	t.Helper()
	nc, err := Connect(s.ClientURL(), "cronq-test", nil)
	require.NoError(t, err)
	t.Cleanup(nc.Close)
	return nc
}

func TestNATSPublisher(t *testing.T) {
	t.Parallel()
	s := runNATSServer(t)
	nc := connect(t, s)

	sub, err := nc.SubscribeSync("cronq.task.>")
	require.NoError(t, err)
	require.NoError(t, nc.Flush())

	publisher := NewNATSPublisher(nc, "", nil)
	event, err := NewTaskCreatedEvent(newTask(t))
	require.NoError(t, err)

	require.NoError(t, publisher.HandleEvent(context.Background(), event))

	msg, err := sub.NextMsg(5 * time.Second)
	require.NoError(t, err)
	assert.Equal(t, "cronq.task.created", msg.Subject)

	var decoded TaskEvent
	require.NoError(t, json.Unmarshal(msg.Data, &decoded))
	assert.Equal(t, event.ID, decoded.ID)
	assert.Equal(t, event.CronTaskID, decoded.CronTaskID)
	assert.Equal(t, "send_digest", decoded.TaskID)
}

func TestNATSPublisher_CancelledContext(t *testing.T) {
	t.Parallel()
	s := runNATSServer(t)
	publisher := NewNATSPublisher(connect(t, s), "cronq.task", nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := publisher.HandleEvent(ctx, NewTaskStatusChangedEvent(uuid.New(), domain.TaskStatusDone))
	assert.ErrorIs(t, err, context.Canceled)
}

func TestNATSPublisher_ClosedConnection(t *testing.T) {
	t.Parallel()
	s := runNATSServer(t)
	nc := connect(t, s)
	publisher := NewNATSPublisher(nc, "cronq.task", nil)
	nc.Close()

	err := publisher.HandleEvent(context.Background(), NewTaskStatusChangedEvent(uuid.New(), domain.TaskStatusDone))
	assert.ErrorIs(t, err, nats.ErrConnectionClosed)
}

func TestSubscribe_EndToEnd(t *testing.T) {
	t.Parallel()
	s := runNATSServer(t)
	pubConn := connect(t, s)
	subConn := connect(t, s)

	received := make(chan *TaskEvent, 2)
	handler := EventHandlerFunc(func(_ context.Context, event *TaskEvent) error {
		received <- event
		return nil
	})

	sub, err := Subscribe(subConn, "cronq.task.status_changed", handler, nil)
	require.NoError(t, err)
	defer func() { _ = sub.Unsubscribe() }()
	require.NoError(t, subConn.Flush())

	emitter := NewInMemoryEventEmitter(nil)
	emitter.RegisterHandler(NewNATSPublisher(pubConn, "cronq.task", nil))

	created, err := NewTaskCreatedEvent(newTask(t))
	require.NoError(t, err)
	changed := NewTaskStatusChangedEvent(created.CronTaskID, domain.TaskStatusProcessing)

	// Garbage on the subject must not break the subscription
	require.NoError(t, pubConn.Publish("cronq.task.status_changed", []byte("not json")))
	require.NoError(t, emitter.EmitEvent(context.Background(), created))
	require.NoError(t, emitter.EmitEvent(context.Background(), changed))

	select {
	case got := <-received:
		assert.Equal(t, changed.ID, got.ID)
		assert.Equal(t, domain.TaskStatusProcessing, got.Status)
	case <-time.After(5 * time.Second):
		t.Fatal("status change event was not delivered")
	}

	select {
	case extra := <-received:
		t.Fatalf("unexpected event delivered: %s", extra.Type)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestConnect_Unreachable(t *testing.T) {
	t.Parallel()

	_, err := Connect("nats://127.0.0.1:1", "cronq-test", nil)
	assert.Error(t, err)
}
