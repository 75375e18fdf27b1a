package hamlaunch

import (
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/apex/log"
	"github.com/gorilla/websocket"
)

const (
	// outputBacklog is how many messages may wait for the broadcast loop.
	outputBacklog = 64

	// writeTimeout bounds a single write to one client.
	writeTimeout = time.Second * 5
)

type websocketClient struct {
	*websocket.Conn
	done chan struct{}
}

var (
	_ io.Writer = &ClientManager{}
	_ Sink      = &ClientManager{}
)

// ClientManager is a collection of websocket clients. It acts as a
// display sink, broadcasting console output and status changes.
type ClientManager struct {
	sync.Mutex
	output chan interface{}
	pool   map[string]*websocketClient
	closed chan struct{}
}

func (c *ClientManager) initialize() {
	c.Lock()
	defer c.Unlock()

	if c.pool == nil {
		c.pool = map[string]*websocketClient{}
	}

	if c.output == nil {
		// start run loop for broadcasting to clients
		c.output = make(chan interface{}, outputBacklog)
		c.closed = make(chan struct{})

		go func(output <-chan interface{}, closed <-chan struct{}) {
			for {
				select {
				case data := <-output:
					c.broadcast(data)
				case <-closed:
					return
				}
			}
		}(c.output, c.closed)
	}
}

// AddClient adds a new client to this manager and starts pinging it.
func (c *ClientManager) AddClient(conn *websocket.Conn) {
	c.initialize()
	client := &websocketClient{Conn: conn, done: make(chan struct{})}

	c.Lock()
	c.pool[conn.RemoteAddr().String()] = client
	closed := c.closed
	c.Unlock()

	go keepAlive(client, closed)
}

// Append sends console text to every client as {"output": text}.
func (c *ClientManager) Append(text string) {
	c.send(map[string]string{"output": text})
}

// Clear tells every client to drop displayed output.
func (c *ClientManager) Clear() {
	c.send(map[string]bool{"clear": true})
}

// Write will send data down a channel to be sent to clients. This
// operation must write to a channel, as writes to an underlying
// websocket can not happen concurrently. It never blocks; when the
// backlog is full the data is dropped.
func (c *ClientManager) Write(data []byte) (int, error) {
	c.send(append([]byte(nil), data...))
	return len(data), nil
}

// Close disconnects all clients and stops the broadcast loop.
func (c *ClientManager) Close() {
	c.Lock()
	defer c.Unlock()

	if c.closed != nil {
		close(c.closed)
	}

	for remoteAddr, client := range c.pool {
		close(client.done)
		client.Close()
		delete(c.pool, remoteAddr)
	}

	c.output = nil
	c.closed = nil
}

// Len returns the number of connected clients.
func (c *ClientManager) Len() int {
	c.Lock()
	defer c.Unlock()
	return len(c.pool)
}

func (c *ClientManager) send(data interface{}) {
	c.initialize()

	c.Lock()
	output, closed := c.output, c.closed
	c.Unlock()

	select {
	case output <- data:
	case <-closed:
	default:
		log.Warn("clients not keeping up, dropping message")
	}
}

func (c *ClientManager) broadcast(data interface{}) {
	if byteData, ok := data.([]byte); ok {
		holder := map[string]interface{}{}

		// Send well-formed JSON as-is or wrap it as generic 'output'
		if err := json.Unmarshal(byteData, &holder); err != nil {
			holder = map[string]interface{}{"output": string(byteData)}
		}

		data = holder
	}

	c.Lock()
	clients := make(map[string]*websocketClient, len(c.pool))
	for remoteAddr, client := range c.pool {
		clients[remoteAddr] = client
	}
	c.Unlock()

	// only this loop writes messages, so the pool lock is not needed while writing
	for remoteAddr, client := range clients {
		client.SetWriteDeadline(time.Now().Add(writeTimeout))

		if err := client.WriteJSON(data); err != nil {
			log.WithField("remoteAddr", remoteAddr).Warn("client disconnected")
			c.remove(remoteAddr, client)
		}
	}
}

// remove drops client from the pool unless Close already has.
func (c *ClientManager) remove(remoteAddr string, client *websocketClient) {
	c.Lock()
	defer c.Unlock()

	if c.pool[remoteAddr] != client {
		return
	}

	close(client.done)
	client.Close()
	delete(c.pool, remoteAddr)
}
