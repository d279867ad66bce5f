package ws

import (
	"context"
	"sync"
	"testing"
	"time"

	socketio "github.com/googollee/go-socket.io"
	"github.com/kiliankoe/gridmind/internal/ai/governor"
	"github.com/kiliankoe/gridmind/internal/game"
	"github.com/rs/zerolog"
)

type emitted struct {
	event string
	args  []interface{}
}

// fakeConn implements the handful of socketio.Conn methods the handlers use.
type fakeConn struct {
	socketio.Conn

	mu    sync.Mutex
	ctx   interface{}
	rooms []string
	sent  []emitted
	ch    chan emitted
}

func newFakeConn() *fakeConn { return &fakeConn{ch: make(chan emitted, 16)} }

func (c *fakeConn) ID() string { return "sid-1" }

func (c *fakeConn) Context() interface{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ctx
}

func (c *fakeConn) SetContext(ctx interface{}) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.ctx = ctx
}

func (c *fakeConn) Join(room string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.rooms = append(c.rooms, room)
}

func (c *fakeConn) Emit(event string, args ...interface{}) {
	e := emitted{event: event, args: args}
	c.mu.Lock()
	c.sent = append(c.sent, e)
	c.mu.Unlock()
	c.ch <- e
}

func (c *fakeConn) next(t *testing.T) emitted {
	t.Helper()
	select {
	case e := <-c.ch:
		return e
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for emit")
		return emitted{}
	}
}

type fakeRooms struct {
	mu    sync.Mutex
	sent  map[string][]interface{}
	count int
}

func (r *fakeRooms) BroadcastToRoom(_ string, room, event string, args ...interface{}) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.sent == nil {
		r.sent = map[string][]interface{}{}
	}
	r.sent[room+"|"+event] = args
	r.count++
	return true
}

type fakeAI struct{ err error }

func (f fakeAI) Text(_ context.Context, prompt string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "re: " + prompt, nil
}

func (f fakeAI) Greeting(context.Context) string { return "welcome" }

func newTestServer(client AIClient) (*Server, *fakeRooms) {
	rooms := &fakeRooms{}
	srv := New(game.NewManager(), client, zerolog.Nop())
	srv.rooms = rooms
	return srv, rooms
}

func TestCreateAndMove(t *testing.T) {
	srv, rooms := newTestServer(fakeAI{})
	conn := newFakeConn()

	ack := srv.onCreate(conn, createPayload{Config: game.MatchConfig{Difficulty: "hard"}})
	id, _ := ack["matchId"].(string)
	if id == "" || ack["token"] == "" {
		t.Fatalf("unexpected ack %v", ack)
	}
	if len(conn.rooms) != 1 || conn.rooms[0] != id {
		t.Fatalf("connection should join the match room, got %v", conn.rooms)
	}

	if ack := srv.onMove(conn, movePayload{Cell: 0}); ack["ok"] != true {
		t.Fatalf("move failed: %v", ack)
	}
	args := rooms.sent[id+"|match:state"]
	if len(args) != 1 {
		t.Fatalf("expected a state broadcast, got %v", rooms.sent)
	}
	if st := args[0].(game.State); st.Board != "X___O____" {
		t.Fatalf("unexpected board %s", st.Board)
	}
	if rooms.count != 2 {
		t.Fatalf("expected 2 broadcasts, got %d", rooms.count)
	}

	ack = srv.onMove(conn, movePayload{Cell: 4})
	if ack["error"] != "bad_request" {
		t.Fatalf("expected bad_request for a taken cell, got %v", ack)
	}
	if e := conn.next(t); e.event != "error" {
		t.Fatalf("expected error emit, got %s", e.event)
	}
}

func TestMoveWithoutMatch(t *testing.T) {
	srv, _ := newTestServer(fakeAI{})
	conn := newFakeConn()
	conn.SetContext(&ConnCtx{})
	if ack := srv.onMove(conn, movePayload{Cell: 0}); ack["error"] != "match_not_found" {
		t.Fatalf("expected match_not_found, got %v", ack)
	}
}

func TestResume(t *testing.T) {
	srv, _ := newTestServer(fakeAI{})
	first := newFakeConn()
	ack := srv.onCreate(first, createPayload{})
	id, token := ack["matchId"].(string), ack["token"].(string)

	second := newFakeConn()
	if ack := srv.onResume(second, resumePayload{MatchID: id, Token: "bad"}); ack["error"] != "unauthorized" {
		t.Fatalf("expected unauthorized, got %v", ack)
	}
	second.next(t)

	if ack := srv.onResume(second, resumePayload{MatchID: id, Token: token}); ack["ok"] != true {
		t.Fatalf("resume failed: %v", ack)
	}
	if e := second.next(t); e.event != "match:state" {
		t.Fatalf("expected state on resume, got %s", e.event)
	}
	ctx := second.Context().(*ConnCtx)
	if ctx.MatchID != id || ctx.Token != token {
		t.Fatalf("context not set: %+v", ctx)
	}

	hint := srv.onHint(second)
	if hint["ok"] != true || hint["move"] != 0 {
		t.Fatalf("unexpected hint %v", hint)
	}
}

func TestGreetingIsAsync(t *testing.T) {
	srv, _ := newTestServer(fakeAI{})
	conn := newFakeConn()
	if ack := srv.onGreeting(conn); ack["ok"] != true {
		t.Fatalf("unexpected ack %v", ack)
	}
	e := conn.next(t)
	if e.event != "ai:greeting" {
		t.Fatalf("expected ai:greeting, got %s", e.event)
	}
	if got := e.args[0].(map[string]any)["greeting"]; got != "welcome" {
		t.Fatalf("unexpected greeting %v", got)
	}
}

func TestTextReportsQuota(t *testing.T) {
	srv, _ := newTestServer(fakeAI{err: &governor.QuotaError{Remaining: 30 * time.Second}})
	conn := newFakeConn()
	srv.onText(conn, textPayload{Prompt: "hi"})
	e := conn.next(t)
	p := e.args[0].(map[string]any)
	if e.event != "ai:text" || p["error"] != "quota_exceeded" || p["retryAfterSeconds"] != 30 {
		t.Fatalf("unexpected emit %s %v", e.event, p)
	}

	if ack := srv.onText(conn, textPayload{}); ack["error"] != "bad_request" {
		t.Fatalf("expected bad_request for an empty prompt, got %v", ack)
	}
}
