// Package anki implements the AnkiConnect JSON-RPC client.
package anki

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/ankichat/ankichat/internal/model"
)

// Connector is the capability interface the rest of the system depends on.
// One resty-backed implementation talks to AnkiConnect; tests substitute fakes.
type Connector interface {
	Version(ctx context.Context) (int, error)
	DeckNames(ctx context.Context) ([]string, error)
	FindNotes(ctx context.Context, query string) ([]int64, error)
	NotesInfo(ctx context.Context, ids []int64) ([]model.Note, error)
	UpdateNoteFields(ctx context.Context, id int64, fields map[string]string) error
	AddTags(ctx context.Context, ids []int64, tag string) error
	RemoveTags(ctx context.Context, ids []int64, tag string) error
	ModelFieldNames(ctx context.Context, modelName string) ([]string, error)
}

// Client calls the AnkiConnect HTTP API (protocol version 6).
type Client struct {
	http *resty.Client
}

// New creates a Client for the given AnkiConnect base URL.
func New(baseURL string, timeout time.Duration) *Client {
	c := resty.New().
		SetBaseURL(baseURL).
		SetHeader("Content-Type", "application/json").
		SetTimeout(timeout)
	return &Client{http: c}
}

type rpcRequest struct {
	Action  string      `json:"action"`
	Version int         `json:"version"`
	Params  interface{} `json:"params,omitempty"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *string         `json:"error"`
}

// rpc performs one JSON-RPC round trip and unmarshals the result into out
// when out is non-nil.
func (c *Client) rpc(ctx context.Context, action string, params interface{}, out interface{}) error {
	req := rpcRequest{Action: action, Version: 6, Params: params}

	resp, err := c.http.R().
		SetContext(ctx).
		SetBody(&req).
		Post("/")
	if err != nil {
		return fmt.Errorf("%w: %s: %v", model.ErrBackendUnavailable, action, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return fmt.Errorf("%w: %s: status %d", model.ErrBackendUnavailable, action, resp.StatusCode())
	}

	var rr rpcResponse
	if err := json.Unmarshal(resp.Body(), &rr); err != nil {
		return fmt.Errorf("%w: %s: decode response: %v", model.ErrBackendUnavailable, action, err)
	}
	if rr.Error != nil && *rr.Error != "" {
		return fmt.Errorf("%w: %s: %s", model.ErrBackendUnavailable, action, *rr.Error)
	}
	if out != nil && len(rr.Result) > 0 && string(rr.Result) != "null" {
		if err := json.Unmarshal(rr.Result, out); err != nil {
			return fmt.Errorf("%w: %s: decode result: %v", model.ErrBackendUnavailable, action, err)
		}
	}
	return nil
}

// Version probes the backend; used by the health monitor.
func (c *Client) Version(ctx context.Context) (int, error) {
	var v int
	if err := c.rpc(ctx, "version", nil, &v); err != nil {
		return 0, err
	}
	return v, nil
}

func (c *Client) DeckNames(ctx context.Context) ([]string, error) {
	var names []string
	if err := c.rpc(ctx, "deckNames", nil, &names); err != nil {
		return nil, err
	}
	return names, nil
}

func (c *Client) FindNotes(ctx context.Context, query string) ([]int64, error) {
	var ids []int64
	params := map[string]string{"query": query}
	if err := c.rpc(ctx, "findNotes", params, &ids); err != nil {
		return nil, err
	}
	return ids, nil
}

// noteInfo mirrors the wire shape of one notesInfo entry.
type noteInfo struct {
	NoteID    int64  `json:"noteId"`
	ModelName string `json:"modelName"`
	Tags      []string `json:"tags"`
	Fields    map[string]struct {
		Value string `json:"value"`
		Order int    `json:"order"`
	} `json:"fields"`
}

func (c *Client) NotesInfo(ctx context.Context, ids []int64) ([]model.Note, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var raw []noteInfo
	params := map[string][]int64{"notes": ids}
	if err := c.rpc(ctx, "notesInfo", params, &raw); err != nil {
		return nil, err
	}

	notes := make([]model.Note, 0, len(raw))
	for _, ni := range raw {
		n := model.Note{ID: ni.NoteID, ModelName: ni.ModelName, Tags: ni.Tags}
		for name, f := range ni.Fields {
			n.Fields = append(n.Fields, model.NoteField{Name: name, Value: f.Value, Order: f.Order})
		}
		// restore the note type's declared field order
		sort.Slice(n.Fields, func(i, j int) bool { return n.Fields[i].Order < n.Fields[j].Order })
		notes = append(notes, n)
	}
	return notes, nil
}

func (c *Client) UpdateNoteFields(ctx context.Context, id int64, fields map[string]string) error {
	params := map[string]interface{}{
		"note": map[string]interface{}{"id": id, "fields": fields},
	}
	return c.rpc(ctx, "updateNoteFields", params, nil)
}

func (c *Client) AddTags(ctx context.Context, ids []int64, tag string) error {
	if len(ids) == 0 {
		return nil
	}
	params := map[string]interface{}{"notes": ids, "tags": tag}
	return c.rpc(ctx, "addTags", params, nil)
}

func (c *Client) RemoveTags(ctx context.Context, ids []int64, tag string) error {
	if len(ids) == 0 {
		return nil
	}
	params := map[string]interface{}{"notes": ids, "tags": tag}
	return c.rpc(ctx, "removeTags", params, nil)
}

func (c *Client) ModelFieldNames(ctx context.Context, modelName string) ([]string, error) {
	var names []string
	params := map[string]string{"modelName": modelName}
	if err := c.rpc(ctx, "modelFieldNames", params, &names); err != nil {
		return nil, err
	}
	return names, nil
}
