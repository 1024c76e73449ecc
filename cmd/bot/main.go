package main

import (
	"encoding/json"
	"flag"
	"log"
	"math"
	"os"
	"os/signal"

	"github.com/gorilla/websocket"

	"foodrun.game/internal/protocol"
)

func main() {
	var (
		url       = flag.String("url", "ws://localhost:8080/v1/ws", "ws url")
		name      = flag.String("name", "bot", "client name")
		jumpEvery = flag.Uint64("jump_every", 120, "jump every N ticks (0 never jumps)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[bot] ", log.LstdFlags|log.Lmicroseconds)
	conn, _, err := websocket.DefaultDialer.Dial(*url, nil)
	if err != nil {
		logger.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	hello := protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		ClientName:      *name,
	}
	if err := conn.WriteJSON(hello); err != nil {
		logger.Fatalf("send HELLO: %v", err)
	}

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt)

	var seq uint64
	var last protocol.InputMsg
	for {
		select {
		case <-stop:
			return
		default:
		}

		_, msg, err := conn.ReadMessage()
		if err != nil {
			return
		}
		base, err := protocol.DecodeBase(msg)
		if err != nil {
			continue
		}
		switch base.Type {
		case protocol.TypeWelcome:
			var w protocol.WelcomeMsg
			if err := json.Unmarshal(msg, &w); err != nil {
				continue
			}
			logger.Printf("WELCOME session=%s world=%s tick_rate=%d items=%d",
				w.SessionID, w.WorldID, w.WorldParams.TickRateHz, w.Catalogs.ItemPalette.Count)

		case protocol.TypeError:
			var e protocol.ErrorMsg
			if err := json.Unmarshal(msg, &e); err == nil {
				logger.Printf("ERROR %s: %s", e.Code, e.Message)
			}

		case protocol.TypeState:
			var st protocol.StateMsg
			if err := json.Unmarshal(msg, &st); err != nil {
				continue
			}
			for _, ev := range st.Events {
				if ev.Type == "COLLECT" {
					logger.Printf("tick=%d collected %dx %s from %s", st.Tick, ev.Quantity, ev.ItemID, ev.SpawnerID)
				}
			}
			in := steer(&st, *jumpEvery)
			// Input persists server side; only send changes.
			if in == last {
				continue
			}
			last = in
			seq++
			in.Seq = seq
			if err := conn.WriteJSON(in); err != nil {
				return
			}
		}
	}
}

// steer walks toward the nearest uncollected item, or straight ahead when
// there is none, and jumps on a fixed cadence.
func steer(st *protocol.StateMsg, jumpEvery uint64) protocol.InputMsg {
	in := protocol.InputMsg{
		Type:            protocol.TypeInput,
		ProtocolVersion: protocol.Version,
		Forward:         true,
		Yaw:             st.Character.Yaw,
	}
	if jumpEvery > 0 && st.Tick%jumpEvery == 0 {
		in.Jump = true
	}

	pos := st.Character.Pos
	best := math.Inf(1)
	for _, sp := range st.Spawners {
		e := sp.Entity
		if e == nil || e.Collected {
			continue
		}
		dx, dz := e.Pos[0]-pos[0], e.Pos[2]-pos[2]
		d := dx*dx + dz*dz
		if d < best {
			best = d
			// Yaw 0 faces -Z.
			in.Yaw = math.Atan2(-dx, -dz)
		}
	}
	return in
}
