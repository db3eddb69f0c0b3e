package ws

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"pixelworld.dev/internal/protocol"
	"pixelworld.dev/internal/scene"
	"pixelworld.dev/internal/worldcfg"
)

// SceneSession is one opened scene: the running simulation plus the welcome
// payload describing the placed world.
type SceneSession struct {
	Scene   *scene.Scene
	Frames  <-chan scene.Frame
	Welcome protocol.WelcomeMsg

	// OwnerControls allows set_building commands on this connection.
	OwnerControls bool
}

// BuildFunc opens a scene for a username. It is handed the viewer's login
// ("" for anonymous) so it can grant owner controls.
type BuildFunc func(ctx context.Context, username, viewer string) (*SceneSession, error)

// ViewerFunc extracts the authenticated viewer's login from the upgrade
// request, "" for anonymous.
type ViewerFunc func(r *http.Request) string

// Server upgrades scene websockets. Each connection owns its own simulation
// goroutine; the reader feeds the scene's channels, the writer drains frames.
type Server struct {
	build  BuildFunc
	viewer ViewerFunc
	log    *log.Logger

	upgrader websocket.Upgrader

	activeConns atomic.Int64
	totalConns  atomic.Uint64
}

// ConnStats is a point-in-time view of the connection counters, for metrics.
type ConnStats struct {
	Active int64
	Total  uint64
}

func (s *Server) Stats() ConnStats {
	return ConnStats{Active: s.activeConns.Load(), Total: s.totalConns.Load()}
}

func NewServer(build BuildFunc, viewer ViewerFunc, logger *log.Logger) *Server {
	return &Server{
		build:  build,
		viewer: viewer,
		log:    logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  16 * 1024,
			WriteBufferSize: 16 * 1024,
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

		s.totalConns.Add(1)
		s.activeConns.Add(1)
		defer s.activeConns.Add(-1)

		viewer := ""
		if s.viewer != nil {
			viewer = s.viewer(r)
		}

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		sess := s.handshake(ctx, conn, viewer)
		if sess == nil {
			return
		}

		go func() {
			_ = sess.Scene.Run(ctx)
		}()

		// The connection has exactly one writer: this goroutine. It drains
		// frames and reader-raised error messages; the reader never touches
		// the conn for writes. The scene already drops frames when this
		// connection is slow.
		errs := make(chan protocol.ErrorMsg, 8)
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case f, ok := <-sess.Frames:
					if !ok {
						return
					}
					if err := writeJSON(conn, stateMsg(f)); err != nil {
						cancel()
						return
					}
				case em := <-errs:
					if err := writeJSON(conn, em); err != nil {
						cancel()
						return
					}
				}
			}
		}()

		// Reader loop.
		for {
			_ = conn.SetReadDeadline(time.Now().Add(120 * time.Second))
			_, msg, err := conn.ReadMessage()
			if err != nil {
				cancel()
				return
			}
			base, err := protocol.DecodeBase(msg)
			if err != nil || base.ProtocolVersion != protocol.Version {
				continue
			}
			switch base.Type {
			case protocol.TypeInput:
				var in protocol.InputMsg
				if err := json.Unmarshal(msg, &in); err != nil {
					continue
				}
				sess.Scene.Input() <- scene.Input{
					Up: in.Up, Down: in.Down, Left: in.Left, Right: in.Right,
					AxisX: in.AxisX, AxisY: in.AxisY,
				}
			case protocol.TypeAct:
				var act protocol.ActMsg
				if err := json.Unmarshal(msg, &act); err != nil {
					continue
				}
				s.dispatchAct(errs, sess, act)
			}
		}
	}
}

// dispatchAct routes an ACT to the scene. Rejections go to the writer
// goroutine's error channel; when it is saturated the rejection is dropped,
// matching the frame channel's policy.
func (s *Server) dispatchAct(errs chan<- protocol.ErrorMsg, sess *SceneSession, act protocol.ActMsg) {
	reject := func(code, msg string) {
		select {
		case errs <- protocol.ErrorMsg{Type: protocol.TypeError, Code: code, Message: msg}:
		default:
		}
	}
	switch act.Action {
	case protocol.ActInteract, protocol.ActDismiss, protocol.ActOpenJournal, protocol.ActCloseJournal:
		sess.Scene.Acts() <- scene.Act{Kind: act.Action}
	case protocol.ActSetBuilding:
		if !sess.OwnerControls {
			reject(protocol.ErrUnauthorized, "owner controls required")
			return
		}
		sess.Scene.Commands() <- scene.Command{SlotID: act.SlotID, BuildingType: worldcfg.BuildingType(act.BuildingType)}
	default:
		reject(protocol.ErrProtoBadRequest, "unknown action "+act.Action)
	}
}

func (s *Server) handshake(ctx context.Context, conn *websocket.Conn, viewer string) *SceneSession {
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		return nil
	}

	base, err := protocol.DecodeBase(msg)
	if err != nil || base.Type != protocol.TypeHello {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "expected HELLO"), time.Now().Add(time.Second))
		return nil
	}

	var hello protocol.HelloMsg
	if err := json.Unmarshal(msg, &hello); err != nil {
		return nil
	}
	if hello.ProtocolVersion != protocol.Version {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "bad protocol_version"), time.Now().Add(time.Second))
		return nil
	}
	if hello.Username == "" {
		_ = conn.WriteControl(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "username required"), time.Now().Add(time.Second))
		return nil
	}

	sess, err := s.build(ctx, hello.Username, viewer)
	if err != nil {
		code := protocol.CodeOf(err)
		if code == "" {
			code = protocol.ErrInternal
		}
		_ = writeJSON(conn, protocol.ErrorMsg{Type: protocol.TypeError, Code: code, Message: err.Error()})
		return nil
	}

	if err := writeJSON(conn, sess.Welcome); err != nil {
		return nil
	}
	return sess
}

func stateMsg(f scene.Frame) protocol.StateMsg {
	m := protocol.StateMsg{
		Type:          protocol.TypeState,
		Tick:          f.Tick,
		Player:        protocol.Vec2{X: f.PlayerX, Y: f.PlayerY},
		ActiveZoneID:  f.ActiveZoneID,
		ActionBarOpen: f.ActionBarOpen,
		JournalRepo:   f.JournalRepo,
		Pulse:         f.Pulse,
	}
	if f.Zones != nil {
		m.Zones = make([]protocol.ZoneInfo, 0, len(f.Zones))
		for _, z := range f.Zones {
			m.Zones = append(m.Zones, ZoneInfo(z))
		}
	}
	return m
}

// ZoneInfo converts a placed zone to its wire shape.
func ZoneInfo(z scene.Zone) protocol.ZoneInfo {
	return protocol.ZoneInfo{
		ID:           z.ID,
		X:            z.X,
		Y:            z.Y,
		BuildingType: string(z.BuildingType),
		Label:        z.Label,
		Description:  z.Description,
		RepoURL:      z.RepoURL,
		RepoFullName: z.RepoFullName,
		Stars:        z.Stars,
		Forks:        z.Forks,
		Language:     z.Language,
	}
}

func writeJSON(conn *websocket.Conn, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	_ = conn.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return conn.WriteMessage(websocket.TextMessage, b)
}
