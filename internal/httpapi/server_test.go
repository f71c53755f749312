package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"image/png"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"whiteboard/internal/domain"
	"whiteboard/internal/engine"
	"whiteboard/internal/offline"
	"whiteboard/internal/service"
	"whiteboard/internal/transport"
)

type fixture struct {
	srv    *httptest.Server
	boards *service.Registry
	hub    *transport.Hub
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	hub := transport.NewHub()
	boards := service.NewRegistry(func(ctx context.Context, id string) (*service.BoardService, error) {
		return service.OpenBoard(ctx, service.BoardDeps{
			Local:     offline.NewMemoryStore(),
			Transport: hub,
		}, service.BoardOptions{
			Engine: engine.Options{
				SessionID:     id,
				Width:         160,
				Height:        120,
				SyncDebounce:  time.Hour,
				PruneInterval: time.Hour,
			},
			Participant: service.Participant{UserID: "server"},
		})
	})
	srv := httptest.NewServer(New(boards, hub).Router())
	t.Cleanup(func() {
		srv.Close()
		boards.Close()
	})
	return &fixture{srv: srv, boards: boards, hub: hub}
}

func (f *fixture) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var rd *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("encode body: %v", err)
		}
		rd = bytes.NewReader(raw)
	} else {
		rd = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, f.srv.URL+path, rd)
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func shapeOp(id string, version int) domain.BoardOperation {
	w, h := 30.0, 20.0
	c := domain.Component{
		ID:      id,
		Type:    domain.ComponentShape,
		LayerID: 1,
		X:       10,
		Y:       10,
		Width:   &w,
		Height:  &h,
		ScaleX:  1,
		ScaleY:  1,
		Visible: true,
		Version: version,
		Data:    &domain.ShapeData{ShapeType: domain.ShapeRectangle, Fill: "#0000ff"},
	}
	raw, _ := json.Marshal(c)
	return domain.BoardOperation{ID: "op-" + id, Type: domain.OpCreate, ComponentID: id, Data: raw}
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	if resp := f.do(t, http.MethodGet, "/healthz", nil); resp.StatusCode != http.StatusOK {
		t.Errorf("expected 200, got %d", resp.StatusCode)
	}
}

func TestSnapshot_GetAndPut(t *testing.T) {
	f := newFixture(t)

	resp := f.do(t, http.MethodGet, "/boards/b1/snapshot", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var state domain.BoardState
	if err := json.NewDecoder(resp.Body).Decode(&state); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if state.SessionID != "b1" || len(state.Layers) != 1 {
		t.Errorf("expected fresh board with one layer, got %+v", state)
	}

	op := shapeOp("s1", 1)
	c, _ := op.Component()
	state.Components = []domain.Component{*c}
	if resp := f.do(t, http.MethodPut, "/boards/b1/snapshot", state); resp.StatusCode != http.StatusNoContent {
		t.Fatalf("expected 204, got %d", resp.StatusCode)
	}
	b, _ := f.boards.Get(context.Background(), "b1")
	if !b.Engine.Components.Has("s1") {
		t.Error("expected snapshot loaded into the board")
	}

	state.SessionID = "other"
	if resp := f.do(t, http.MethodPut, "/boards/b1/snapshot", state); resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 for foreign snapshot, got %d", resp.StatusCode)
	}
}

func TestOperations_ApplyAndRelay(t *testing.T) {
	f := newFixture(t)
	var (
		mu      sync.Mutex
		relayed []string
	)
	f.hub.Subscribe(service.OpsChannel("b2"), func(p []byte) {
		mu.Lock()
		relayed = append(relayed, string(p))
		mu.Unlock()
	})

	resp := f.do(t, http.MethodPost, "/boards/b2/operations", map[string]any{
		"origin":     "tablet",
		"operations": []domain.BoardOperation{shapeOp("s1", 1), {ID: "bad", Type: "explode"}},
	})
	if resp.StatusCode != http.StatusMultiStatus {
		t.Fatalf("expected 207, got %d", resp.StatusCode)
	}
	var out operationsResponse
	json.NewDecoder(resp.Body).Decode(&out)
	if out.Applied != 1 || len(out.Errors) != 1 {
		t.Errorf("expected 1 applied and 1 error, got %+v", out)
	}
	mu.Lock()
	if len(relayed) != 1 || !strings.Contains(relayed[0], `"origin":"tablet"`) {
		t.Errorf("expected relay under the sender's origin, got %v", relayed)
	}
	mu.Unlock()

	resp = f.do(t, http.MethodPost, "/boards/b2/operations", map[string]any{
		"operations": []domain.BoardOperation{{ID: "bad", Type: "explode"}},
	})
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("expected 400 when nothing applies, got %d", resp.StatusCode)
	}
}

func TestExport(t *testing.T) {
	f := newFixture(t)
	b, err := f.boards.Get(context.Background(), "b3")
	if err != nil {
		t.Fatalf("get board: %v", err)
	}
	b.ApplyOperations("test", []domain.BoardOperation{shapeOp("s1", 1)})

	resp := f.do(t, http.MethodGet, "/boards/b3/export?format=png&scale=2", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	if ct := resp.Header.Get("Content-Type"); ct != "image/png" {
		t.Errorf("expected image/png, got %q", ct)
	}
	if _, err := png.Decode(resp.Body); err != nil {
		t.Errorf("expected a PNG body: %v", err)
	}

	cases := []struct {
		query  string
		status int
	}{
		{"format=json", http.StatusOK},
		{"format=svg", http.StatusNotImplemented},
		{"format=gif", http.StatusBadRequest},
		{"format=png&scale=-1", http.StatusBadRequest},
		{"format=jpg&quality=500", http.StatusBadRequest},
	}
	for _, tc := range cases {
		if resp := f.do(t, http.MethodGet, "/boards/b3/export?"+tc.query, nil); resp.StatusCode != tc.status {
			t.Errorf("%s: expected %d, got %d", tc.query, tc.status, resp.StatusCode)
		}
	}
}

func TestSync_WithoutRemote(t *testing.T) {
	f := newFixture(t)
	if resp := f.do(t, http.MethodPost, "/boards/b4/sync", nil); resp.StatusCode != http.StatusConflict {
		t.Errorf("expected 409, got %d", resp.StatusCode)
	}
}

func TestWebsocket_ReachesBoard(t *testing.T) {
	f := newFixture(t)
	b, _ := f.boards.Get(context.Background(), "b5")

	c := transport.NewClient("ws"+strings.TrimPrefix(f.srv.URL, "http")+"/boards/b5/ws", transport.ClientOptions{})
	c.Start(context.Background())
	defer c.Close()

	raw, _ := json.Marshal(map[string]any{"origin": "phone", "operation": shapeOp("w1", 1)})
	if err := c.Publish(service.OpsChannel("b5"), raw); err != nil {
		t.Fatalf("publish: %v", err)
	}
	deadline := time.Now().Add(3 * time.Second)
	for !b.Engine.Components.Has("w1") && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	if !b.Engine.Components.Has("w1") {
		t.Error("expected websocket operation applied to the board")
	}
}
