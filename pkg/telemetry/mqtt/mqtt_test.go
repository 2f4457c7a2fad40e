package mqtt

import (
	"encoding/json"
	"errors"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/itohio/dpstep/pkg/control"
	"github.com/itohio/dpstep/pkg/stepper"
	"github.com/itohio/dpstep/pkg/telemetry"
)

type fakeToken struct {
	done bool
	err  error
}

func (t *fakeToken) Wait() bool                     { return t.done }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

func (t *fakeToken) Done() <-chan struct{} {
	ch := make(chan struct{})
	if t.done {
		close(ch)
	}
	return ch
}

type message struct {
	topic   string
	qos     byte
	payload []byte
}

// fakeClient implements the publish side of paho.Client.
type fakeClient struct {
	paho.Client
	token        *fakeToken
	sent         []message
	disconnected bool
}

func (c *fakeClient) Publish(topic string, qos byte, _ bool, payload interface{}) paho.Token {
	c.sent = append(c.sent, message{topic: topic, qos: qos, payload: payload.([]byte)})
	return c.token
}

func (c *fakeClient) Disconnect(uint) {
	c.disconnected = true
}

func TestPublish(t *testing.T) {
	client := &fakeClient{token: &fakeToken{done: true}}
	p := New(client, "", 1)

	rec := telemetry.Record{
		Timestamp: time.Unix(10, 0).UTC(),
		Pressure:  -0.5,
		Steps:     5,
		Direction: stepper.Reverse,
	}
	require.NoError(t, p.Publish(rec))

	require.Len(t, client.sent, 1)
	assert.Equal(t, DefaultTopic, client.sent[0].topic)
	assert.Equal(t, byte(1), client.sent[0].qos)

	var got map[string]interface{}
	require.NoError(t, json.Unmarshal(client.sent[0].payload, &got))
	assert.Equal(t, "reverse", got["direction"])
	assert.Equal(t, float64(5), got["steps"])
	assert.Equal(t, -0.5, got["pressure_kpa"])
	assert.Equal(t, false, got["saturated"])
}

func TestPublish_Errors(t *testing.T) {
	p := New(&fakeClient{token: &fakeToken{done: false}}, "t", 0)
	assert.ErrorIs(t, p.Publish(telemetry.Record{}), ErrPublishTimeout)

	boom := errors.New("boom")
	p = New(&fakeClient{token: &fakeToken{done: true, err: boom}}, "t", 0)
	assert.ErrorIs(t, p.Publish(telemetry.Record{}), boom)
}

func TestReportAndClose(t *testing.T) {
	client := &fakeClient{token: &fakeToken{done: true}}
	p := New(client, "rig/1", 0)

	p.Report(control.Report{Pressure: 2, Command: stepper.Command{Steps: 20, Direction: stepper.Forward, Move: true}})
	p.Close()

	require.Len(t, client.sent, 1)
	assert.Equal(t, "rig/1", client.sent[0].topic)
	assert.True(t, client.disconnected)
}
