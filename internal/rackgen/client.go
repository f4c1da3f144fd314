package rackgen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"rackgen-backend/internal/utils"
)

// EngineError is any failure of the external generation engine:
// rejection, overload, or timeout. The ledger is never touched when one
// of these is returned.
type EngineError struct {
	StatusCode int
	Detail     string
	Err        error
}

func (e *EngineError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("generation engine error: %s", e.Detail)
	}
	if e.Err != nil {
		return fmt.Sprintf("generation engine unreachable: %v", e.Err)
	}
	return fmt.Sprintf("generation engine returned status %d", e.StatusCode)
}

func (e *EngineError) Unwrap() error { return e.Err }

// MacroDetail mirrors one macro mapping in the engine response.
type MacroDetail struct {
	Macro           int    `json:"macro"`
	Name            string `json:"name"`
	Description     string `json:"description"`
	TargetDevice    string `json:"target_device,omitempty"`
	TargetParameter string `json:"target_parameter,omitempty"`
}

// Result is the artifact description returned by the engine. Filename
// is the opaque handle used for downloads; the rest is presentation
// detail passed through to the caller.
type Result struct {
	Filename      string        `json:"filename"`
	CreativeName  string        `json:"creative_name"`
	SoundIntent   string        `json:"sound_intent,omitempty"`
	Explanation   string        `json:"explanation,omitempty"`
	ParallelLogic bool          `json:"parallel_logic,omitempty"`
	Devices       []string      `json:"devices,omitempty"`
	MacroDetails  []MacroDetail `json:"macro_details,omitempty"`
	Tips          []string      `json:"tips,omitempty"`
}

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    utils.NewHTTPClient(timeout),
	}
}

// Generate calls the engine with the prompt. The context deadline is
// the caller-visible timeout; on expiry the error is an EngineError
// like any other engine failure.
func (c *Client) Generate(ctx context.Context, prompt string) (*Result, error) {
	payload, err := json.Marshal(map[string]string{"prompt": prompt})
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generate", bytes.NewBuffer(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, &EngineError{Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		// The engine reports failures as {"detail": "..."}.
		var body struct {
			Detail string `json:"detail"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		json.Unmarshal(raw, &body)
		return nil, &EngineError{StatusCode: resp.StatusCode, Detail: body.Detail}
	}

	var result Result
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, &EngineError{StatusCode: resp.StatusCode, Detail: "invalid response body", Err: err}
	}
	if result.Filename == "" {
		return nil, &EngineError{StatusCode: resp.StatusCode, Detail: "response missing filename"}
	}

	return &result, nil
}

// DownloadURL returns the engine's download location for an artifact.
// The binary itself is streamed by the engine, not proxied here.
func (c *Client) DownloadURL(filename string) string {
	return c.baseURL + "/download/" + filename
}
