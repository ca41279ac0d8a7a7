package aps

import (
	"context"
	"net/http"
	"net/url"
)

// Manifest status values
const (
	StatusPending    = "pending"
	StatusInProgress = "inprogress"
	StatusSuccess    = "success"
	StatusFailed     = "failed"
	StatusTimeout    = "timeout"
)

// Manifest subset of the model derivative manifest
type Manifest struct {
	URN      string `json:"urn"`
	Status   string `json:"status"`
	Progress string `json:"progress"`
	Region   string `json:"region"`
}

// Terminal reports whether polling can stop
func (m *Manifest) Terminal() bool {
	switch m.Status {
	case StatusSuccess, StatusFailed, StatusTimeout:
		return true
	}
	return false
}

func (c *Client) derivativeBase() string {
	if c.region == RegionEMEA {
		return "/modelderivative/v2/regions/eu/designdata"
	}
	return "/modelderivative/v2/designdata"
}

type translateJob struct {
	Input struct {
		URN string `json:"urn"`
	} `json:"input"`
	Output struct {
		Formats []translateFormat `json:"formats"`
	} `json:"output"`
}

type translateFormat struct {
	Type  string   `json:"type"`
	Views []string `json:"views"`
}

// Translate starts an SVF2 translation, replacing existing derivatives
func (c *Client) Translate(ctx context.Context, urn string) error {
	var job translateJob
	job.Input.URN = urn
	job.Output.Formats = []translateFormat{{Type: "svf2", Views: []string{"2d", "3d"}}}

	return c.doRequest(ctx, http.MethodPost, c.derivativeBase()+"/job",
		map[string]string{"x-ads-force": "true"}, job, nil)
}

// Manifest translation status. A manifest that does not exist yet reads
// as pending.
func (c *Client) Manifest(ctx context.Context, urn string) (*Manifest, error) {
	var m Manifest
	err := c.doRequest(ctx, http.MethodGet, c.derivativeBase()+"/"+url.PathEscape(urn)+"/manifest", nil, nil, &m)
	if IsStatus(err, http.StatusNotFound) {
		return &Manifest{URN: urn, Status: StatusPending, Progress: "0% complete"}, nil
	}
	if err != nil {
		return nil, err
	}
	return &m, nil
}
