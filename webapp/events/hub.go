package events

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/guardian/jobpanel/webapp/metrics"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxInboundSize = 4096
)

/**
Dispatcher receives the inbound side of the realtime channel.
Greeting returns the events a newly connected client should see before anything else;
Dispatch is called on its own goroutine for every inbound event.
*/
type Dispatcher interface {
	Greeting(clientId string) []Event
	Dispatch(clientId string, eventName string)
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	once sync.Once
}

func (c *client) enqueue(frame []byte) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.send <- frame:
		return true
	default:
		return false
	}
}

func (c *client) close() {
	c.once.Do(func() {
		close(c.done)
		c.conn.Close()
	})
}

/**
Hub holds every connected websocket client and fans events out to them. A client whose buffer
is full misses the event rather than holding up everyone else.
*/
type Hub struct {
	mutex      sync.RWMutex
	clients    map[string]*client
	upgrader   websocket.Upgrader
	dispatcher Dispatcher
	sendBuffer int
}

func NewHub(allowedOrigins []string, sendBuffer int) *Hub {
	h := &Hub{
		clients:    make(map[string]*client),
		sendBuffer: sendBuffer,
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 4096,
		CheckOrigin:     OriginChecker(allowedOrigins),
	}
	return h
}

func (h *Hub) SetDispatcher(d Dispatcher) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.dispatcher = d
}

/**
returns a CheckOrigin function allowing the given origins. "*" allows everything, and a request
with no Origin header (i.e. not from a browser) is always allowed.
*/
func OriginChecker(allowedOrigins []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" {
			return true
		}
		for _, allowed := range allowedOrigins {
			if allowed == "*" || allowed == origin {
				return true
			}
		}
		log.Printf("WARNING Hub rejecting websocket from origin %s", origin)
		return false
	}
}

func (h *Hub) ClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

/**
Emit sends the event to every connected client
*/
func (h *Hub) Emit(ev Event) {
	frame, err := ev.Frame()
	if err != nil {
		log.Printf("ERROR Hub could not serialise %s event: %s", ev.Name, err)
		return
	}

	h.mutex.RLock()
	defer h.mutex.RUnlock()
	for _, c := range h.clients {
		if !c.enqueue(frame) {
			log.Printf("WARNING Hub dropped %s event for client %s", ev.Name, c.id)
			metrics.EventsDropped.Inc()
		}
	}
}

func (h *Hub) register(c *client) Dispatcher {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.clients[c.id] = c
	metrics.ConnectedClients.Set(float64(len(h.clients)))
	return h.dispatcher
}

func (h *Hub) unregister(c *client) {
	h.mutex.Lock()
	delete(h.clients, c.id)
	metrics.ConnectedClients.Set(float64(len(h.clients)))
	h.mutex.Unlock()
	c.close()
}

/**
Close disconnects every client
*/
func (h *Hub) Close() {
	h.mutex.Lock()
	toClose := make([]*client, 0, len(h.clients))
	for _, c := range h.clients {
		toClose = append(toClose, c)
	}
	h.mutex.Unlock()

	for _, c := range toClose {
		c.close()
	}
}

/**
upgrades the request to a websocket and serves it until the client goes away
*/
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, upgradeErr := h.upgrader.Upgrade(w, r, nil)
	if upgradeErr != nil {
		//the upgrader has already written an error response
		log.Printf("ERROR Hub could not upgrade connection from %s: %s", r.RemoteAddr, upgradeErr)
		return
	}

	c := &client{
		id:   uuid.New().String(),
		conn: conn,
		send: make(chan []byte, h.sendBuffer),
		done: make(chan struct{}),
	}

	dispatcher := h.register(c)
	log.Printf("INFO Hub client %s connected from %s", c.id, r.RemoteAddr)

	//the write pump is not running yet so the greeting can go straight to the connection,
	//ahead of anything broadcast in the meantime
	if dispatcher != nil {
		for _, ev := range dispatcher.Greeting(c.id) {
			frame, err := ev.Frame()
			if err != nil {
				continue
			}
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if writeErr := c.conn.WriteMessage(websocket.TextMessage, frame); writeErr != nil {
				log.Printf("WARNING Hub could not greet client %s: %s", c.id, writeErr)
				h.unregister(c)
				return
			}
		}
	}

	go h.writePump(c)
	h.readPump(c, dispatcher)
	log.Printf("INFO Hub client %s disconnected", c.id)
}

func (h *Hub) readPump(c *client, dispatcher Dispatcher) {
	defer h.unregister(c)

	c.conn.SetReadLimit(maxInboundSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		_, content, readErr := c.conn.ReadMessage()
		if readErr != nil {
			if websocket.IsUnexpectedCloseError(readErr, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				log.Printf("WARNING Hub read from client %s failed: %s", c.id, readErr)
			}
			return
		}

		var msg inboundMessage
		if unmarshalErr := json.Unmarshal(content, &msg); unmarshalErr != nil || msg.Event == "" {
			log.Printf("WARNING Hub ignoring malformed message from client %s", c.id)
			continue
		}
		if dispatcher != nil {
			go dispatcher.Dispatch(c.id, msg.Event)
		}
	}
}

/**
the only goroutine that writes to the connection
*/
func (h *Hub) writePump(c *client) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	defer c.close()

	for {
		select {
		case frame := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				log.Printf("WARNING Hub write to client %s failed: %s", c.id, err)
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			return
		}
	}
}
