package anki

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ankichat/ankichat/internal/model"
)

// newRPCServer answers each action with the canned result from results and
// records the decoded requests it saw.
func newRPCServer(t *testing.T, results map[string]interface{}) (*httptest.Server, *[]rpcRequest) {
	t.Helper()
	var seen []rpcRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req rpcRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			t.Fatalf("bad request body: %v", err)
		}
		seen = append(seen, req)

		result, ok := results[req.Action]
		if !ok {
			errMsg := "unsupported action: " + req.Action
			json.NewEncoder(w).Encode(map[string]interface{}{"result": nil, "error": errMsg})
			return
		}
		json.NewEncoder(w).Encode(map[string]interface{}{"result": result, "error": nil})
	}))
	t.Cleanup(srv.Close)
	return srv, &seen
}

func TestClientVersion(t *testing.T) {
	srv, seen := newRPCServer(t, map[string]interface{}{"version": 6})
	c := New(srv.URL, time.Second)

	v, err := c.Version(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if v != 6 {
		t.Fatalf("expected version 6, got %d", v)
	}
	if (*seen)[0].Version != 6 {
		t.Fatalf("request must declare protocol version 6, got %d", (*seen)[0].Version)
	}
}

func TestClientDeckNames(t *testing.T) {
	srv, _ := newRPCServer(t, map[string]interface{}{"deckNames": []string{"French", "News B2"}})
	c := New(srv.URL, time.Second)

	names, err := c.DeckNames(context.Background())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(names) != 2 || names[1] != "News B2" {
		t.Fatalf("unexpected decks: %v", names)
	}
}

func TestClientFindNotesSendsQuery(t *testing.T) {
	srv, seen := newRPCServer(t, map[string]interface{}{"findNotes": []int64{3, 1, 2}})
	c := New(srv.URL, time.Second)

	ids, err := c.FindNotes(context.Background(), `deck:"French" Example:_*`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(ids) != 3 {
		t.Fatalf("unexpected ids: %v", ids)
	}

	params, _ := (*seen)[0].Params.(map[string]interface{})
	if params["query"] != `deck:"French" Example:_*` {
		t.Fatalf("query not forwarded: %v", params)
	}
}

func TestClientNotesInfoRestoresFieldOrder(t *testing.T) {
	srv, _ := newRPCServer(t, map[string]interface{}{
		"notesInfo": []map[string]interface{}{{
			"noteId":    int64(101),
			"modelName": "Vocab",
			"tags":      []string{"compact_examples"},
			"fields": map[string]interface{}{
				"Example": map[string]interface{}{"value": "An example.", "order": 1},
				"Word":    map[string]interface{}{"value": "example", "order": 0},
			},
		}},
	})
	c := New(srv.URL, time.Second)

	notes, err := c.NotesInfo(context.Background(), []int64{101})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(notes) != 1 {
		t.Fatalf("expected 1 note, got %d", len(notes))
	}
	n := notes[0]
	if n.ID != 101 || n.ModelName != "Vocab" || !n.HasTag("compact_examples") {
		t.Fatalf("unexpected note: %+v", n)
	}
	if n.Fields[0].Name != "Word" || n.Fields[1].Name != "Example" {
		t.Fatalf("fields not in declared order: %+v", n.Fields)
	}
}

func TestClientNotesInfoEmptyInput(t *testing.T) {
	// must not hit the network at all
	c := New("http://127.0.0.1:1", time.Second)
	notes, err := c.NotesInfo(context.Background(), nil)
	if err != nil || notes != nil {
		t.Fatalf("expected nil, nil for empty input, got %v, %v", notes, err)
	}
}

func TestClientErrorFieldMapsToBackendUnavailable(t *testing.T) {
	srv, _ := newRPCServer(t, nil) // every action answers with an error field
	c := New(srv.URL, time.Second)

	_, err := c.DeckNames(context.Background())
	if !model.IsBackendUnavailable(err) {
		t.Fatalf("expected BackendUnavailable, got %v", err)
	}
}

func TestClientConnectionRefused(t *testing.T) {
	c := New("http://127.0.0.1:1", 200*time.Millisecond)
	_, err := c.Version(context.Background())
	if !model.IsBackendUnavailable(err) {
		t.Fatalf("expected BackendUnavailable, got %v", err)
	}
}

func TestClientUpdateNoteFieldsShape(t *testing.T) {
	srv, seen := newRPCServer(t, map[string]interface{}{"updateNoteFields": nil})
	c := New(srv.URL, time.Second)

	err := c.UpdateNoteFields(context.Background(), 7, map[string]string{"Example": "Short."})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	params, _ := (*seen)[0].Params.(map[string]interface{})
	note, _ := params["note"].(map[string]interface{})
	if note == nil || note["id"] != float64(7) {
		t.Fatalf("note envelope missing or wrong id: %v", params)
	}
	fields, _ := note["fields"].(map[string]interface{})
	if fields["Example"] != "Short." {
		t.Fatalf("fields not forwarded: %v", fields)
	}
}

func TestClientTagActionsSkipEmptyBatches(t *testing.T) {
	c := New("http://127.0.0.1:1", time.Second)
	if err := c.AddTags(context.Background(), nil, "x"); err != nil {
		t.Fatalf("AddTags with no ids must be a no-op: %v", err)
	}
	if err := c.RemoveTags(context.Background(), nil, "x"); err != nil {
		t.Fatalf("RemoveTags with no ids must be a no-op: %v", err)
	}
}
