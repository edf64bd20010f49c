package radio

import (
	"context"
	"sync"
)

// Fake is an in-memory Radio for tests. Inbound packets are injected
// with Inject; every send is recorded.
type Fake struct {
	mu        sync.Mutex
	events    chan PacketEvent
	connected bool

	ConnectErr error
	SendErr    error
	NodeDB     []NodeRecord
	Self       NodeRecord

	Texts      []SentText
	Traces     []SentTrace
	Datas      []SentData
	Heartbeats int
}

type SentText struct {
	Text        string
	Channel     int
	Destination string
}

type SentTrace struct {
	Destination string
	HopLimit    int
	Channel     int
}

type SentData struct {
	Payload     []byte
	Destination string
	Port        PortNum
}

func NewFake() *Fake {
	return &Fake{events: make(chan PacketEvent, 64)}
}

func (f *Fake) Connect(_ context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.ConnectErr != nil {
		return f.ConnectErr
	}
	f.connected = true
	return nil
}

func (f *Fake) Close() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.connected = false
}

func (f *Fake) Connected() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.connected
}

func (f *Fake) Events() <-chan PacketEvent { return f.events }

func (f *Fake) Inject(pkt PacketEvent) { f.events <- pkt }

func (f *Fake) Nodes() ([]NodeRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]NodeRecord(nil), f.NodeDB...), nil
}

func (f *Fake) LocalNode() (NodeRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Self, nil
}

func (f *Fake) SendText(text string, channel int, destination string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendErr != nil {
		return f.SendErr
	}
	f.Texts = append(f.Texts, SentText{Text: text, Channel: channel, Destination: destination})
	return nil
}

func (f *Fake) SendTraceRoute(destination string, hopLimit, channel int) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendErr != nil {
		return f.SendErr
	}
	f.Traces = append(f.Traces, SentTrace{Destination: destination, HopLimit: hopLimit, Channel: channel})
	return nil
}

func (f *Fake) SendData(payload []byte, destination string, port PortNum) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendErr != nil {
		return f.SendErr
	}
	f.Datas = append(f.Datas, SentData{Payload: payload, Destination: destination, Port: port})
	return nil
}

func (f *Fake) SendHeartbeat() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.SendErr != nil {
		return f.SendErr
	}
	f.Heartbeats++
	return nil
}

// SentTexts returns a copy of the recorded text sends.
func (f *Fake) SentTexts() []SentText {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SentText(nil), f.Texts...)
}

// SentTraces returns a copy of the recorded traceroute requests.
func (f *Fake) SentTraces() []SentTrace {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]SentTrace(nil), f.Traces...)
}
