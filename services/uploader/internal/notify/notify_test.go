package notify

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/snowstudies/csas-stations/services/uploader/internal/reconcile"
)

type doneToken struct{ err error }

func (t doneToken) Wait() bool                     { return true }
func (t doneToken) WaitTimeout(time.Duration) bool { return true }
func (t doneToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	close(ch)
	return ch
}
func (t doneToken) Error() error { return t.err }

type message struct {
	topic    string
	retained bool
	payload  []byte
}

type fakeBroker struct {
	connected bool
	sent      []message
}

func (b *fakeBroker) IsConnected() bool { return b.connected }

func (b *fakeBroker) Publish(topic string, _ byte, retained bool, payload interface{}) mqtt.Token {
	b.sent = append(b.sent, message{topic, retained, payload.([]byte)})
	return doneToken{}
}

func quietLogger() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

func TestOutcomeEvent(t *testing.T) {
	b := &fakeBroker{connected: true}
	n := newNotifier(b, "/csas/test/", quietLogger())
	at := time.Date(2024, 3, 1, 10, 12, 0, 0, time.UTC)

	n.Outcome(reconcile.Result{
		Station: "SASP",
		Outcome: reconcile.UploadedWithGap,
		Rows:    7,
		At:      at,
		Gaps:    []reconcile.Gap{{ArrayID: 1, Diff: 3 * time.Hour}},
	})

	require.Len(t, b.sent, 1)
	assert.Equal(t, "csas/test/stations/SASP/outcome", b.sent[0].topic)
	assert.True(t, b.sent[0].retained)

	var ev Event
	require.NoError(t, json.Unmarshal(b.sent[0].payload, &ev))
	assert.Equal(t, "uploaded_with_gap", ev.Outcome)
	assert.EqualValues(t, 7, ev.Rows)
	require.Len(t, ev.Gaps, 1)
	assert.Equal(t, 3.0, ev.Gaps[0].Hours)
}

func TestRetryHeartbeat(t *testing.T) {
	b := &fakeBroker{connected: true}
	n := newNotifier(b, "", quietLogger())

	n.Retry("PTSP", 4, errors.New("connection refused"))
	n.PassCompleted("abc", time.Now(), []reconcile.Result{{}, {}})

	require.Len(t, b.sent, 2)
	assert.Equal(t, "csas/uploader/heartbeat", b.sent[0].topic)

	var retry, pass Event
	require.NoError(t, json.Unmarshal(b.sent[0].payload, &retry))
	require.NoError(t, json.Unmarshal(b.sent[1].payload, &pass))
	assert.Equal(t, "retry", retry.Kind)
	assert.Equal(t, 4, retry.Attempt)
	assert.Equal(t, "connection refused", retry.Error)
	assert.Equal(t, "pass", pass.Kind)
	assert.Equal(t, 2, pass.Uploads)
}

func TestDisconnectedDropsEvents(t *testing.T) {
	b := &fakeBroker{}
	n := newNotifier(b, "", quietLogger())
	n.Outcome(reconcile.Result{Station: "SASP", Outcome: reconcile.NoNewRows})
	assert.Empty(t, b.sent)
}
