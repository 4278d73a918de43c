package egg

import (
	"sync"
)

// Destinations for Message.To.
const (
	ToApp    = "app"
	ToAgent  = "agent"
	ToRandom = "random"
	ToParent = "parent"
)

// ActionEggReady is the action of the message that tells agents and applications that the whole
// cluster has started.
const ActionEggReady = "egg-ready"

// Message is what travels between an agent and its applications.
type Message struct {
	Action string      `json:"action"`
	Data   interface{} `json:"data,omitempty"`
	To     string      `json:"to,omitempty"`
	From   string      `json:"from,omitempty"`
}

// Transport carries an outbound Message to wherever its destination lives. In a real cluster
// that is the master process; egg-mock replaces it with an in-process relay.
type Transport func(Message)

// MessageHandler receives the data of a message.
type MessageHandler func(data interface{})

// Messenger is the inter-process messaging surface of an agent or application.
type Messenger interface {
	Send(action string, data interface{}, to string)
	SendToApp(action string, data interface{})
	SendToAgent(action string, data interface{})
	SendRandom(action string, data interface{})
	On(action string, h MessageHandler)
	Once(action string, h MessageHandler)

	// OnMessage delivers an inbound message to the handlers registered for its action.
	OnMessage(msg Message)

	// SetTransport replaces the function that outbound messages are given to.
	SetTransport(t Transport)
}

// BaseMessenger is a Messenger that hands every outbound message to its Transport. Without a
// transport, outbound messages are dropped.
type BaseMessenger struct {
	from      string
	transport Transport
	handlers  EventEmitter
	lock      sync.Mutex
}

// NewBaseMessenger creates a messenger whose outbound messages carry the given From value.
func NewBaseMessenger(from string) *BaseMessenger {
	return &BaseMessenger{from: from}
}

func (m *BaseMessenger) Send(action string, data interface{}, to string) {
	m.lock.Lock()
	t := m.transport
	m.lock.Unlock()
	if t != nil {
		t(Message{Action: action, Data: data, To: to, From: m.from})
	}
}

func (m *BaseMessenger) SendToApp(action string, data interface{}) {
	m.Send(action, data, ToApp)
}

func (m *BaseMessenger) SendToAgent(action string, data interface{}) {
	m.Send(action, data, ToAgent)
}

func (m *BaseMessenger) SendRandom(action string, data interface{}) {
	m.Send(action, data, ToRandom)
}

func (m *BaseMessenger) On(action string, h MessageHandler) {
	m.handlers.On(action, func(args ...interface{}) { h(firstArg(args)) })
}

func (m *BaseMessenger) Once(action string, h MessageHandler) {
	m.handlers.Once(action, func(args ...interface{}) { h(firstArg(args)) })
}

func (m *BaseMessenger) OnMessage(msg Message) {
	m.handlers.Emit(msg.Action, msg.Data)
}

func (m *BaseMessenger) SetTransport(t Transport) {
	m.lock.Lock()
	m.transport = t
	m.lock.Unlock()
}

func firstArg(args []interface{}) interface{} {
	if len(args) == 0 {
		return nil
	}
	return args[0]
}
