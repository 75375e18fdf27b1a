package hamlaunch_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
)

type wsMessage struct {
	kind int
	data []byte
}

// mockServer accepts websocket upgrades and hands each server-side
// connection to the test through connected.
type mockServer struct {
	url       string
	srv       *httptest.Server
	connected chan *websocket.Conn
}

func (m *mockServer) Start(t *testing.T) {
	m.connected = make(chan *websocket.Conn, 1)

	upgrader := websocket.Upgrader{}

	m.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)

		if !assert.NoError(t, err, "failed to upgrade websocket connection") {
			return
		}

		m.connected <- conn
	}))

	m.url = "ws" + strings.TrimPrefix(m.srv.URL, "http")
}

func (m *mockServer) Close() {
	m.srv.Close()
}

// testClient records every message and ping it receives.
type testClient struct {
	*websocket.Conn
	out    chan wsMessage
	closed chan struct{}
}

func (c *testClient) Connect(url string) {
	var err error

	c.out = make(chan wsMessage, 16)
	c.closed = make(chan struct{})

	if c.Conn, _, err = websocket.DefaultDialer.Dial(url, nil); err != nil {
		panic(err)
	}

	c.SetPingHandler(func(appData string) error {
		c.out <- wsMessage{websocket.PingMessage, []byte(appData)}
		return nil
	})

	go func() {
		defer close(c.closed)
		for {
			kind, data, err := c.ReadMessage()
			if err != nil {
				return
			}
			c.out <- wsMessage{kind, data}
		}
	}()
}

// WaitReceive waits for a message of the given kind whose data matches dataRegex.
func (c *testClient) WaitReceive(kind int, dataRegex string) error {
	rxp := regexp.MustCompile(dataRegex)

	timer := time.NewTimer(time.Millisecond * 400)
	defer timer.Stop()

	for {
		select {
		case <-timer.C:
			return fmt.Errorf("timeout waiting for match for '%s'", dataRegex)
		case actual := <-c.out:
			if actual.kind == kind && rxp.Match(actual.data) {
				return nil
			}
		}
	}
}

// WaitClosed returns true once the server side has closed the connection.
func (c *testClient) WaitClosed() bool {
	select {
	case <-c.closed:
		return true
	case <-time.After(time.Millisecond * 400):
		return false
	}
}
