package cmd

import (
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/gorilla/websocket"

	"github.com/inercia/twinbridge/internal/client"
)

// fakeTwin is an in-process twin system used by the command tests.
type fakeTwin struct {
	*httptest.Server

	mu       sync.Mutex
	requests []recordedRequest
}

type recordedRequest struct {
	Method string
	Path   string
	Query  string
	Body   map[string]any
}

var fakeAgents = []map[string]any{
	{"id": "nayeem_mobile", "name": "Nayeem", "role": "Mobile Developer", "expertise": []string{"Flutter", "iOS"}},
	{"id": "karti_database", "name": "Karti", "role": "Database Engineer", "expertise": []string{"PostgreSQL", "Redis"}},
	{"id": "team_coordinator", "name": "Team Coordinator", "role": "Orchestrator", "expertise": []string{"Planning"}},
}

func writeEnvelope(w http.ResponseWriter, status, message string, data any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"status":    status,
		"message":   message,
		"data":      data,
		"timestamp": "2025-01-01T00:00:00Z",
	})
}

func reply(agent, role, text string) map[string]any {
	return map[string]any{
		"message": map[string]any{
			"role":    "assistant",
			"content": []map[string]any{{"text": text}},
		},
		"agent":     agent,
		"role":      role,
		"timestamp": "2025-01-01T10:00:00Z",
	}
}

func newFakeTwin(t *testing.T) *fakeTwin {
	t.Helper()
	f := &fakeTwin{}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /ping", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, "success", "Twin system is running", nil)
	})
	mux.HandleFunc("GET /agents", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, "success", "ok", map[string]any{"agents": fakeAgents})
	})
	mux.HandleFunc("POST /conversation", func(w http.ResponseWriter, r *http.Request) {
		body := f.record(r)
		writeEnvelope(w, "success", "ok", reply("Karti", "Database Engineer", "echo: "+body["message"].(string)))
	})
	mux.HandleFunc("POST /twin-system", func(w http.ResponseWriter, r *http.Request) {
		body := f.record(r)
		agent := "Team Coordinator"
		if target, _ := body["target_agent"].(string); target != "" {
			agent = target
		}
		writeEnvelope(w, "success", "ok", reply(agent, "", "routed: "+body["user_message"].(string)))
	})
	mux.HandleFunc("POST /invocations", func(w http.ResponseWriter, r *http.Request) {
		body := f.record(r)
		input, _ := body["input"].(map[string]any)
		prompt, _ := input["prompt"].(string)
		w.Header().Set("Content-Type", "application/json")
		if prompt == "fail" {
			w.WriteHeader(http.StatusInternalServerError)
			_ = json.NewEncoder(w).Encode(map[string]any{"detail": "Agent processing failed: boom"})
			return
		}
		out := reply("", "", "invoked: "+prompt)
		out["model"] = "twin-system-team_coordinator"
		_ = json.NewEncoder(w).Encode(map[string]any{"output": out})
	})
	mux.HandleFunc("GET /agent/{id}/memory", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		writeEnvelope(w, "success", "ok", map[string]any{
			"agent_id":       r.PathValue("id"),
			"memory_entries": 7,
			"recent_memory": []map[string]any{
				{"timestamp": "2025-01-01T09:00:00Z", "input": "hi", "response": "hello"},
			},
		})
	})
	mux.HandleFunc("GET /agent/{id}/enhanced-memory", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		writeEnvelope(w, "success", "ok", map[string]any{
			"agent_id": r.PathValue("id"),
			"user_id":  r.URL.Query().Get("user_id"),
			"memories": []map[string]any{
				{"id": "m1", "content": "prefers Flutter", "memory_type": "preference", "importance": 0.8},
			},
		})
	})
	mux.HandleFunc("GET /agent/{id}/personality", func(w http.ResponseWriter, r *http.Request) {
		writeEnvelope(w, "success", "ok", map[string]any{
			"agent_id":            r.PathValue("id"),
			"communication_style": map[string]any{"tone": "friendly"},
			"expertise_areas":     []string{"mobile"},
		})
	})
	mux.HandleFunc("GET /agent/{id}/context", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		writeEnvelope(w, "success", "ok", map[string]any{
			"current_topic":        "release planning",
			"recent_conversations": []map[string]any{{"content": "asked about Q4", "memory_type": "conversation"}},
			"relevant_knowledge":   []map[string]any{},
		})
	})
	mux.HandleFunc("POST /agent/{id}/learn", func(w http.ResponseWriter, r *http.Request) {
		f.record(r)
		writeEnvelope(w, "success", "Learning triggered", map[string]any{"patterns": 3})
	})

	upgrader := websocket.Upgrader{}
	mux.HandleFunc("/ws/{user}", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		_, data, err := conn.ReadMessage()
		if err != nil {
			return
		}
		var in map[string]any
		_ = json.Unmarshal(data, &in)
		out, _ := json.Marshal(map[string]any{
			"type":     "response",
			"user_id":  r.PathValue("user"),
			"agent_id": in["agent_id"],
			"message":  "got " + in["message"].(string),
		})
		_ = conn.WriteMessage(websocket.TextMessage, out)
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "bye"))
		// Wait for the client to acknowledge the close.
		_, _, _ = conn.ReadMessage()
	})

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func (f *fakeTwin) record(r *http.Request) map[string]any {
	var body map[string]any
	if data, _ := io.ReadAll(r.Body); len(data) > 0 {
		_ = json.Unmarshal(data, &body)
	}
	f.mu.Lock()
	f.requests = append(f.requests, recordedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.RawQuery,
		Body:   body,
	})
	f.mu.Unlock()
	return body
}

func (f *fakeTwin) last(t *testing.T) recordedRequest {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		t.Fatal("no request recorded")
	}
	return f.requests[len(f.requests)-1]
}

func (f *fakeTwin) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.requests)
}

func (f *fakeTwin) client() *client.Client {
	return client.New(f.URL, client.WithRequestIDs(false))
}
