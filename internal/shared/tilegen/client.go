package tilegen

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// maxDrawingSize upper bound on a generated drawing
const maxDrawingSize = 64 << 20

var ErrNotConfigured = errors.New("tile generator is not configured")

// Member product rendered into the tile
type Member struct {
	ProductID   string `json:"product_id"`
	FossPID     string `json:"foss_pid"`
	Description string `json:"description"`
}

// Request body of POST /generate
type Request struct {
	JobID    string   `json:"job_id"`
	TileID   string   `json:"tile_id"`
	TileName string   `json:"tile_name"`
	Members  []Member `json:"members"`
}

// Drawing generated DWG
type Drawing struct {
	FileName string
	Data     []byte
}

// Client HTTP client for the tile drawing generator
type Client struct {
	baseURL    string
	httpClient *http.Client
}

func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 2 * time.Minute
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Generate renders the tile and returns the DWG bytes
func (c *Client) Generate(ctx context.Context, req Request) (*Drawing, error) {
	if c.baseURL == "" {
		return nil, ErrNotConfigured
	}
	if len(req.Members) == 0 {
		return nil, errors.New("tile has no members")
	}

	body, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/octet-stream")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("call tile generator: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var apiErr struct {
			Error string `json:"error"`
		}
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		if json.Unmarshal(raw, &apiErr) == nil && apiErr.Error != "" {
			return nil, fmt.Errorf("tile generator: status %d: %s", resp.StatusCode, apiErr.Error)
		}
		return nil, fmt.Errorf("tile generator: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxDrawingSize+1))
	if err != nil {
		return nil, fmt.Errorf("read drawing: %w", err)
	}
	if len(data) > maxDrawingSize {
		return nil, fmt.Errorf("drawing exceeds %d bytes", maxDrawingSize)
	}
	if len(data) == 0 {
		return nil, errors.New("tile generator returned an empty drawing")
	}

	return &Drawing{FileName: FileName(req.TileName, req.TileID), Data: data}, nil
}

// FileName DWG file name for a tile
func FileName(tileName, tileID string) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			return r
		case r == ' ':
			return '_'
		}
		return -1
	}, tileName)
	if name == "" {
		name = tileID
	}
	return name + ".dwg"
}
