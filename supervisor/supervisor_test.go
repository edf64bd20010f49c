package supervisor

import (
	"context"
	"errors"
	"testing"
	"time"

	"meshmon/radio"
)

type recordingNotifier struct {
	ups      []bool
	silences []int
	downs    int
}

func (r *recordingNotifier) LinkUp(reconnect bool) { r.ups = append(r.ups, reconnect) }
func (r *recordingNotifier) LinkSilent(n int)      { r.silences = append(r.silences, n) }
func (r *recordingNotifier) LinkDown()             { r.downs++ }

func TestConnectOnFirstTick(t *testing.T) {
	fake := radio.NewFake()
	n := &recordingNotifier{}
	s := New(fake, n, time.Minute, 5)

	s.Tick(context.Background(), time.Now())
	if s.State() != StateConnected {
		t.Fatalf("state = %s, want CONNECTED", s.State())
	}
	if len(n.ups) != 1 || n.ups[0] {
		t.Errorf("ups = %v, want one first-connect (reconnect=false)", n.ups)
	}
	if s.Reconnects() != 0 {
		t.Errorf("reconnects = %d, want 0", s.Reconnects())
	}
}

func TestConnectErrorIsRetriedNotRaised(t *testing.T) {
	fake := radio.NewFake()
	fake.ConnectErr = errors.New("broker down")
	n := &recordingNotifier{}
	s := New(fake, n, time.Minute, 5)

	s.Tick(context.Background(), time.Now())
	if s.State() != StateReconnecting {
		t.Fatalf("state = %s, want RECONNECTING", s.State())
	}

	fake.ConnectErr = nil
	s.Tick(context.Background(), time.Now())
	if s.State() != StateConnected {
		t.Fatalf("state after retry = %s, want CONNECTED", s.State())
	}
}

func TestFiveSilentTicksForcesReconnectWithOneWarning(t *testing.T) {
	fake := radio.NewFake()
	n := &recordingNotifier{}
	s := New(fake, n, time.Minute, 5)
	ctx := context.Background()
	now := time.Now()

	s.Tick(ctx, now) // connect
	for i := 0; i < 4; i++ {
		s.Tick(ctx, now)
		if s.State() != StateConnected {
			t.Fatalf("tick %d: state = %s, want CONNECTED", i+1, s.State())
		}
	}
	if len(n.silences) != 0 {
		t.Fatalf("warned before threshold: %v", n.silences)
	}

	s.Tick(ctx, now) // fifth silent tick
	if s.State() != StateDisconnected {
		t.Fatalf("state = %s, want DISCONNECTED", s.State())
	}
	if len(n.silences) != 1 || n.silences[0] != 5 {
		t.Errorf("silences = %v, want exactly one at 5", n.silences)
	}
	if n.downs != 1 {
		t.Errorf("downs = %d, want 1", n.downs)
	}
	if fake.Connected() {
		t.Error("radio should be force-closed")
	}

	// Next tick reconnects and counts it
	s.Tick(ctx, now)
	if s.State() != StateConnected {
		t.Fatalf("state = %s, want CONNECTED after reconnect", s.State())
	}
	if s.Reconnects() != 1 {
		t.Errorf("reconnects = %d, want 1", s.Reconnects())
	}
	if len(n.ups) != 2 || !n.ups[1] {
		t.Errorf("ups = %v, want second entry reconnect=true", n.ups)
	}
}

func TestTrafficResetsCounter(t *testing.T) {
	fake := radio.NewFake()
	s := New(fake, nil, time.Minute, 5)
	ctx := context.Background()
	now := time.Now()

	s.Tick(ctx, now) // connect
	for i := 0; i < 4; i++ {
		s.Tick(ctx, now)
	}
	s.MarkTraffic()
	s.Tick(ctx, now) // counter resets instead of hitting 5
	if s.State() != StateConnected {
		t.Fatalf("state = %s, want CONNECTED", s.State())
	}

	// Four more silent ticks still under threshold after the reset
	for i := 0; i < 4; i++ {
		s.Tick(ctx, now)
	}
	if s.State() != StateConnected {
		t.Fatalf("state = %s, want CONNECTED", s.State())
	}
}

func TestHeartbeatSentWhileConnected(t *testing.T) {
	fake := radio.NewFake()
	s := New(fake, nil, time.Minute, 5)
	ctx := context.Background()

	s.Tick(ctx, time.Now())
	s.Tick(ctx, time.Now())
	s.Tick(ctx, time.Now())
	if fake.Heartbeats != 2 {
		t.Errorf("heartbeats = %d, want 2", fake.Heartbeats)
	}
}

func TestOnTickHookRunsOnlyWhileConnected(t *testing.T) {
	fake := radio.NewFake()
	fake.ConnectErr = errors.New("down")
	s := New(fake, nil, time.Minute, 5)
	var ticks int
	s.SetOnTick(func(time.Time) { ticks++ })
	ctx := context.Background()

	s.Tick(ctx, time.Now()) // connect fails
	if ticks != 0 {
		t.Fatalf("hook ran while disconnected")
	}
	fake.ConnectErr = nil
	s.Tick(ctx, time.Now()) // connects
	s.Tick(ctx, time.Now()) // first connected tick
	if ticks != 1 {
		t.Errorf("ticks = %d, want 1", ticks)
	}
}
