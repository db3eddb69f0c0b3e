package ws

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"pixelworld.dev/internal/protocol"
	"pixelworld.dev/internal/scene"
	"pixelworld.dev/internal/worldcfg"
)

func testBuild(ownerControls bool) BuildFunc {
	return func(_ context.Context, username, _ string) (*SceneSession, error) {
		reg, err := scene.PlaceZones(worldcfg.DefaultSlots(), 1000, 1000)
		if err != nil {
			return nil, err
		}
		frames := make(chan scene.Frame, 8)
		sc, err := scene.New(scene.Config{
			ID: "scene-" + username, TickRateHz: 60,
			Width: 1000, Height: 1000,
			PlayerSpeed: 280, InteractionRadius: 70,
		}, reg, frames)
		if err != nil {
			return nil, err
		}
		welcome := protocol.WelcomeMsg{
			Type:            protocol.TypeWelcome,
			ProtocolVersion: protocol.Version,
			SceneID:         "scene-" + username,
		}
		for _, z := range sc.SnapshotZones() {
			welcome.Zones = append(welcome.Zones, ZoneInfo(z))
		}
		return &SceneSession{
			Scene: sc, Frames: frames, Welcome: welcome,
			OwnerControls: ownerControls,
		}, nil
	}
}

func dial(t *testing.T, ownerControls bool) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(NewServer(testBuild(ownerControls), func(*http.Request) string { return "" }, nil).Handler())
	t.Cleanup(srv.Close)
	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func sendJSON(t *testing.T, conn *websocket.Conn, v any) {
	t.Helper()
	b, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, b); err != nil {
		t.Fatalf("write: %v", err)
	}
}

func readMsg(t *testing.T, conn *websocket.Conn) []byte {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, b, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	return b
}

func hello(username string) protocol.HelloMsg {
	return protocol.HelloMsg{
		Type:            protocol.TypeHello,
		ProtocolVersion: protocol.Version,
		Username:        username,
	}
}

func TestServer_HandshakeThenFrames(t *testing.T) {
	conn := dial(t, false)
	sendJSON(t, conn, hello("alice"))

	var welcome protocol.WelcomeMsg
	if err := json.Unmarshal(readMsg(t, conn), &welcome); err != nil {
		t.Fatalf("welcome: %v", err)
	}
	if welcome.Type != protocol.TypeWelcome || len(welcome.Zones) != 5 {
		t.Fatalf("welcome %+v", welcome)
	}

	// Hold right; the player must drift right across frames.
	sendJSON(t, conn, protocol.InputMsg{
		Type: protocol.TypeInput, ProtocolVersion: protocol.Version, Right: true,
	})

	var first, last protocol.StateMsg
	if err := json.Unmarshal(readMsg(t, conn), &first); err != nil || first.Type != protocol.TypeState {
		t.Fatalf("first state: %v %+v", err, first)
	}
	for i := 0; i < 20; i++ {
		if err := json.Unmarshal(readMsg(t, conn), &last); err != nil {
			t.Fatalf("state: %v", err)
		}
	}
	if last.Tick <= first.Tick {
		t.Fatalf("ticks must advance: %d then %d", first.Tick, last.Tick)
	}
	if last.Player.X <= first.Player.X {
		t.Fatalf("player did not move right: %v -> %v", first.Player.X, last.Player.X)
	}
}

func TestServer_RejectsBadProtocolVersion(t *testing.T) {
	conn := dial(t, false)
	sendJSON(t, conn, protocol.HelloMsg{
		Type: protocol.TypeHello, ProtocolVersion: "0.9", Username: "alice",
	})
	_ = conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatalf("connection must close on bad protocol version")
	}
}

func TestServer_SetBuildingRequiresOwner(t *testing.T) {
	conn := dial(t, false)
	sendJSON(t, conn, hello("alice"))
	readMsg(t, conn) // welcome

	// Hammer rejections while state frames stream: every outbound message
	// must go through the single writer goroutine, so the burst may not
	// corrupt the connection.
	for i := 0; i < 200; i++ {
		sendJSON(t, conn, protocol.ActMsg{
			Type: protocol.TypeAct, ProtocolVersion: protocol.Version,
			Action: protocol.ActSetBuilding, SlotID: "slot-1", BuildingType: "tower",
		})
	}

	sawError := false
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		raw := readMsg(t, conn)
		base, err := protocol.DecodeBase(raw)
		if err != nil {
			continue
		}
		if base.Type == protocol.TypeError {
			var em protocol.ErrorMsg
			_ = json.Unmarshal(raw, &em)
			if em.Code != protocol.ErrUnauthorized {
				t.Fatalf("code %s", em.Code)
			}
			sawError = true
			break
		}
	}
	if !sawError {
		t.Fatalf("no error message for non-owner set_building")
	}

	// The connection must still be healthy: state frames keep arriving.
	var st protocol.StateMsg
	for i := 0; i < 5; i++ {
		raw := readMsg(t, conn)
		if err := json.Unmarshal(raw, &st); err == nil && st.Type == protocol.TypeState {
			return
		}
	}
	t.Fatalf("no state frame after rejection burst")
}

func TestServer_OwnerSetBuildingPublishesZones(t *testing.T) {
	conn := dial(t, true)
	sendJSON(t, conn, hello("alice"))
	readMsg(t, conn) // welcome

	sendJSON(t, conn, protocol.ActMsg{
		Type: protocol.TypeAct, ProtocolVersion: protocol.Version,
		Action: protocol.ActSetBuilding, SlotID: "slot-1", BuildingType: "tower",
	})

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		var st protocol.StateMsg
		if err := json.Unmarshal(readMsg(t, conn), &st); err != nil || st.Type != protocol.TypeState {
			continue
		}
		for _, z := range st.Zones {
			if z.ID == "slot-1" && z.BuildingType == "tower" {
				return
			}
		}
	}
	t.Fatalf("zone change never published")
}
