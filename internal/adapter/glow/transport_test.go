package glow

import (
	"errors"
	"fmt"
	"net"
	"runtime"
	"sync"
	"testing"
	"time"

	"github.com/berfenger/glow2mqtt/internal/core/port"
	"github.com/berfenger/glow2mqtt/internal/mqtt"
	"github.com/berfenger/glow2mqtt/internal/util"
	"github.com/berfenger/glow2mqtt/pkg/glowmarkt"

	"github.com/eclipse/paho.mqtt.golang/packets"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testTelemetryTopic = "SMART/HILD/" + glowmarkt.TEST_HARDWARE_ID

// eventLog keeps transport events and broker side packets in arrival order.
type eventLog struct {
	mu      sync.Mutex
	entries []string
}

func (l *eventLog) add(entry string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries = append(l.entries, entry)
}

func (l *eventLog) list() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.entries...)
}

func (l *eventLog) events() port.TransportEvents {
	return port.TransportEvents{
		OnConnected:      func() { l.add("connected") },
		OnConnectFailed:  func(err error) { l.add("connect failed") },
		OnConnectionLost: func(err error) { l.add("connection lost") },
		OnMessage: func(topic string, payload []byte) {
			l.add(fmt.Sprintf("message %s %s", topic, payload))
		},
	}
}

// testBroker accepts MQTT clients, acks connects and subscriptions and
// publishes payload once on every subscribed topic.
type testBroker struct {
	ln      net.Listener
	payload []byte
	log     *eventLog
}

func newTestBroker(t *testing.T, payload []byte, log *eventLog) *testBroker {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	b := &testBroker{ln: ln, payload: payload, log: log}
	t.Cleanup(func() { _ = ln.Close() })
	go b.serve()
	return b
}

func (b *testBroker) port() int {
	return b.ln.Addr().(*net.TCPAddr).Port
}

func (b *testBroker) serve() {
	for {
		conn, err := b.ln.Accept()
		if err != nil {
			return
		}
		go b.handle(conn)
	}
}

func (b *testBroker) handle(conn net.Conn) {
	defer conn.Close()
	for {
		cp, err := packets.ReadPacket(conn)
		if err != nil {
			return
		}
		switch p := cp.(type) {
		case *packets.ConnectPacket:
			ack := packets.NewControlPacket(packets.Connack).(*packets.ConnackPacket)
			ack.ReturnCode = packets.Accepted
			if ack.Write(conn) != nil {
				return
			}
		case *packets.SubscribePacket:
			for _, topic := range p.Topics {
				b.log.add("subscribe " + topic)
			}
			ack := packets.NewControlPacket(packets.Suback).(*packets.SubackPacket)
			ack.MessageID = p.MessageID
			ack.ReturnCodes = make([]byte, len(p.Topics))
			if ack.Write(conn) != nil {
				return
			}
			for _, topic := range p.Topics {
				pub := packets.NewControlPacket(packets.Publish).(*packets.PublishPacket)
				pub.TopicName = topic
				pub.Payload = b.payload
				if pub.Write(conn) != nil {
					return
				}
			}
		case *packets.PingreqPacket:
			if packets.NewControlPacket(packets.Pingresp).Write(conn) != nil {
				return
			}
		case *packets.DisconnectPacket:
			return
		}
	}
}

func newTestMQTTTransport(host string, port int) *MQTTTransport {
	cfg := util.LoadTestConfig()
	cfg.Glow.MQTTHost = host
	cfg.Glow.MQTTPort = port
	creds := glowmarkt.Credentials{Username: glowmarkt.TEST_USERNAME, Password: glowmarkt.TEST_PASSWORD}
	return NewMQTTTransportProvider(&cfg, zap.Must(zap.NewDevelopment()))(creds).(*MQTTTransport)
}

func TestMQTTTransportSubscribesAfterConnected(t *testing.T) {

	log := &eventLog{}
	broker := newTestBroker(t, []byte(`{"gasMtr":{}}`), log)
	transport := newTestMQTTTransport("127.0.0.1", broker.port())

	transport.Connect(testTelemetryTopic, log.events())
	t.Cleanup(func() { _ = transport.Disconnect(time.Second) })

	assert.Eventually(t, func() bool {
		return len(log.list()) >= 3
	}, 3*time.Second, 20*time.Millisecond)

	assert.Equal(t, []string{
		"connected",
		"subscribe " + testTelemetryTopic,
		"message " + testTelemetryTopic + ` {"gasMtr":{}}`,
	}, log.list())
	assert.True(t, transport.IsConnected())

	require.NoError(t, transport.Disconnect(time.Second))
	assert.False(t, transport.IsConnected())
}

func TestMQTTTransportDisconnectWhileRetrying(t *testing.T) {

	baseline := runtime.NumGoroutine()

	// nothing listens on port 1, paho keeps retrying
	log := &eventLog{}
	transport := newTestMQTTTransport("127.0.0.1", 1)
	transport.Connect(testTelemetryTopic, log.events())
	time.Sleep(200 * time.Millisecond)
	assert.False(t, transport.IsConnected())

	start := time.Now()
	require.NoError(t, transport.Disconnect(3*time.Second))
	assert.Less(t, time.Since(start), 3*time.Second)
	assert.False(t, transport.IsConnected())
	assert.NotContains(t, log.list(), "connected")

	// the retry loop and token waiters are gone
	assert.Eventually(t, func() bool {
		return runtime.NumGoroutine() <= baseline
	}, 7*time.Second, 100*time.Millisecond)

	// a second disconnect has nothing to stop
	assert.NoError(t, transport.Disconnect(time.Second))
}

func TestConnectContinuation(t *testing.T) {

	log := &eventLog{}
	report := connectContinuation(log.events())

	report(nil)
	report(fmt.Errorf("%w: connect", mqtt.ErrTimeout))
	assert.Empty(t, log.list(), "success and wait timeouts are not failures")

	report(errors.New("not authorized"))
	assert.Equal(t, []string{"connect failed"}, log.list())
}
