package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/ankichat/ankichat/internal/model"
)

var httpClient = &http.Client{Timeout: 5 * time.Minute}

func postJSON(base, path string, body interface{}, out interface{}) error {
	buf, err := json.Marshal(body)
	if err != nil {
		return err
	}
	resp, err := httpClient.Post(base+path, "application/json", bytes.NewReader(buf))
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	return decodeResponse(resp, out)
}

func getJSON(base, path string, out interface{}) error {
	resp, err := httpClient.Get(base + path)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	return decodeResponse(resp, out)
}

func decodeResponse(resp *http.Response, out interface{}) error {
	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Message     string   `json:"message"`
			Suggestions []string `json:"suggestions"`
		}
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Message != "" {
			if len(apiErr.Suggestions) > 0 {
				return fmt.Errorf("%s (suggestions: %v)", apiErr.Message, apiErr.Suggestions)
			}
			return fmt.Errorf("%s", apiErr.Message)
		}
		return fmt.Errorf("status %d: %s", resp.StatusCode, raw)
	}
	return json.Unmarshal(raw, out)
}

func runDecks(base string, w io.Writer) error {
	var res struct {
		Decks []model.Deck `json:"decks"`
		Count int          `json:"count"`
	}
	if err := getJSON(base, "/api/ops/decks", &res); err != nil {
		return err
	}
	for _, d := range res.Decks {
		fmt.Fprintf(w, "%-40s notes=%d examples=%d\n", d.Name, d.NoteCount, d.ExampleCount)
	}
	fmt.Fprintf(w, "%d decks\n", res.Count)
	return nil
}

func runPreview(base, deck, field string, previewCount, limit int, w io.Writer) error {
	req := map[string]interface{}{
		"deck": deck, "field": field, "previewCount": previewCount, "limit": limit,
	}
	var res model.PreviewResult
	if err := postJSON(base, "/api/ops/compact/preview", req, &res); err != nil {
		return err
	}
	fmt.Fprintf(w, "deck=%s field=%s candidates=%d\n", res.Deck, res.Field, res.Count)
	for _, d := range res.Sample {
		fmt.Fprintf(w, "note %d [%s]\n  - %s\n  + %s\n", d.NoteID, d.Word, d.Old, d.New)
	}
	if res.Token != "" {
		fmt.Fprintf(w, "confirm with: ankictl apply %s\n", res.Token)
	}
	return nil
}

func runApply(base, token string, w io.Writer) error {
	var res model.ApplySummary
	if err := postJSON(base, "/api/ops/compact/apply", map[string]string{"confirmToken": token}, &res); err != nil {
		return err
	}
	fmt.Fprintf(w, "applied=%d skipped=%d tagged=%d\n", res.Applied, res.Skipped, res.Tagged)
	return nil
}

func runRollback(base, deck, field string, w io.Writer) error {
	var res model.RollbackSummary
	if err := postJSON(base, "/api/ops/rollback", map[string]string{"deck": deck, "field": field}, &res); err != nil {
		return err
	}
	fmt.Fprintf(w, "restored=%d untagged=%d\n", res.Restored, res.Untagged)
	return nil
}

func runHealth(base string, w io.Writer) error {
	var res struct {
		Status      string `json:"status"`
		AnkiConnect bool   `json:"anki_connect"`
		LLM         bool   `json:"llm"`
	}
	if err := getJSON(base, "/api/health", &res); err != nil {
		return err
	}
	fmt.Fprintf(w, "status=%s anki_connect=%v llm=%v\n", res.Status, res.AnkiConnect, res.LLM)
	return nil
}
