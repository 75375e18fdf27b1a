package hamlaunch

import (
	"time"

	"github.com/apex/log"
	"github.com/gorilla/websocket"
)

const frequency = time.Second * 10
const rspTimeout = time.Second * 5

// keepAlive pings the client right away and then on every tick until the
// client or the manager goes away.
func keepAlive(client *websocketClient, closed <-chan struct{}) {
	ticker := time.NewTicker(frequency)
	defer ticker.Stop()

	for {
		if err := ping(client.Conn); err != nil {
			return
		}

		select {
		case <-client.done:
			return
		case <-closed:
			return
		case <-ticker.C:
		}
	}
}

func ping(conn *websocket.Conn) error {
	var (
		deadline = time.Now().Add(rspTimeout)
		msg      = websocket.PingMessage
		data     = []byte("hamlaunch")
		err      error
	)

	if err = conn.WriteControl(msg, data, deadline); err != nil {
		log.WithField("host", conn.RemoteAddr()).Warn("client failed ping")
		conn.Close()
	}

	return err
}
