package ws

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"foodrun.game/internal/protocol"
	"foodrun.game/internal/sim/catalogs"
	"foodrun.game/internal/sim/character"
	"foodrun.game/internal/sim/world"
)

// World is the part of the simulation a player connection drives.
type World interface {
	Config() world.WorldConfig
	Status() world.Status
	SubmitInput(in character.Input)
	Subscribe(out chan []byte)
	Unsubscribe(out chan []byte)
}

type Server struct {
	world World
	cats  *catalogs.Catalogs
	log   *log.Logger

	upgrader websocket.Upgrader
}

func NewServer(w World, cats *catalogs.Catalogs, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(io.Discard, "", 0)
	}
	if cats == nil {
		cats = &catalogs.Catalogs{}
	}
	return &Server{
		world: w,
		cats:  cats,
		log:   logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 64 * 1024,
			CheckOrigin:     func(r *http.Request) bool { return true }, // dev default
		},
	}
}

func (s *Server) Handler() http.HandlerFunc {
	return func(rw http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(rw, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		sessionID, ok := s.handshake(conn)
		if !ok {
			return
		}
		s.log.Printf("session=%s connected from %s", sessionID, r.RemoteAddr)

		out := make(chan []byte, 8)
		ctrl := make(chan []byte, 4)
		s.world.Subscribe(out)
		defer s.world.Unsubscribe(out)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		// Writer goroutine. gorilla allows one concurrent writer.
		writeDone := make(chan struct{})
		go func() {
			defer close(writeDone)
			for {
				var b []byte
				select {
				case <-ctx.Done():
					return
				case b = <-ctrl:
				case b = <-out:
				}
				_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
				if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
					cancel()
					return
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				break
			}
			in, code, reason := decodeInput(msg)
			if code != "" {
				select {
				case ctrl <- errorJSON(code, reason):
				default:
				}
				continue
			}
			s.world.SubmitInput(in)
		}

		cancel()
		<-writeDone
		s.log.Printf("session=%s disconnected", sessionID)
	}
}

func (s *Server) handshake(conn *websocket.Conn) (string, bool) {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return "", false
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = writeJSON(conn, protocol.ErrorMsg{Type: protocol.TypeError, ProtocolVersion: protocol.Version, Code: protocol.ErrProtoBadRequest, Message: "expected HELLO"})
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return "", false
	}
	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return "", false
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = writeJSON(conn, protocol.ErrorMsg{Type: protocol.TypeError, ProtocolVersion: protocol.Version, Code: protocol.ErrProtoVersion, Message: "unsupported protocol_version " + hello.ProtocolVersion})
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return "", false
	}

	sid := uuid.NewString()
	if err := writeJSON(conn, s.welcome(sid)); err != nil {
		return "", false
	}
	return sid, true
}

func (s *Server) welcome(sessionID string) protocol.WelcomeMsg {
	cfg := s.world.Config()
	st := s.world.Status()
	return protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sessionID,
		WorldID:         cfg.ID,
		WorldParams: protocol.WorldParams{
			TickRateHz:       cfg.Tuning.TickRateHz,
			MoveSpeed:        cfg.Tuning.Character.MoveSpeed,
			CollisionRadius:  cfg.Tuning.Character.CollisionRadius,
			EyeHeight:        cfg.Tuning.Character.EyeHeight,
			CollectionRadius: cfg.Tuning.Spawning.CollectionRadius,
		},
		Catalogs: protocol.CatalogDigests{
			ItemPalette:      protocol.DigestRef{Digest: s.cats.Items.PaletteDigest, Count: len(s.cats.Items.Palette)},
			ItemsDigest:      s.cats.Items.DefsDigest,
			StructuresDigest: s.cats.Structures.Digest,
			WorldDigest:      st.WorldDigest,
		},
	}
}

func decodeInput(msg []byte) (character.Input, string, string) {
	base, err := protocol.DecodeBase(msg)
	if err != nil {
		return character.Input{}, protocol.ErrProtoBadRequest, "malformed json"
	}
	if base.Type != protocol.TypeInput {
		return character.Input{}, protocol.ErrProtoBadRequest, "unexpected message type " + base.Type
	}
	var m protocol.InputMsg
	if err := json.Unmarshal(msg, &m); err != nil {
		return character.Input{}, protocol.ErrProtoBadRequest, err.Error()
	}
	if m.ProtocolVersion != protocol.Version {
		return character.Input{}, protocol.ErrProtoVersion, "unsupported protocol_version " + m.ProtocolVersion
	}
	return character.Input{
		Forward:  m.Forward,
		Backward: m.Backward,
		Left:     m.Left,
		Right:    m.Right,
		Jump:     m.Jump,
		Yaw:      m.Yaw,
	}, "", ""
}

func errorJSON(code, message string) []byte {
	b, _ := json.Marshal(protocol.ErrorMsg{
		Type:            protocol.TypeError,
		ProtocolVersion: protocol.Version,
		Code:            code,
		Message:         message,
	})
	return b
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
