package aps

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
)

// Bucket retention policies
const (
	PolicyTransient  = "transient"
	PolicyTemporary  = "temporary"
	PolicyPersistent = "persistent"
)

// Object OSS object details
type Object struct {
	BucketKey string `json:"bucketKey"`
	ObjectKey string `json:"objectKey"`
	ObjectID  string `json:"objectId"`
	Size      int64  `json:"size"`
	Location  string `json:"location,omitempty"`
}

// URN derivative urn of the object
func (o *Object) URN() string {
	return URNFromObjectID(o.ObjectID)
}

// URNFromObjectID unpadded url-safe base64 of the object id
func URNFromObjectID(objectID string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(objectID))
}

// ObjectIDFromURN reverses URNFromObjectID; padded input is accepted too
func ObjectIDFromURN(urn string) (string, error) {
	raw, err := base64.RawURLEncoding.DecodeString(strings.TrimRight(urn, "="))
	if err != nil {
		return "", fmt.Errorf("invalid urn: %w", err)
	}
	return string(raw), nil
}

var bucketKeyInvalid = regexp.MustCompile(`[^a-z0-9_.-]`)

// BucketKey sanitises a bucket key: lowercase, [a-z0-9_.-], 3..128 chars
func BucketKey(prefix, id string) string {
	key := strings.ToLower(prefix + strings.ReplaceAll(id, "-", ""))
	key = bucketKeyInvalid.ReplaceAllString(key, "_")
	if len(key) > 128 {
		key = key[:128]
	}
	return key
}

// EnsureBucket creates the bucket; an existing bucket is not an error
func (c *Client) EnsureBucket(ctx context.Context, bucketKey, policy string) error {
	if policy == "" {
		policy = PolicyPersistent
	}
	body := map[string]string{
		"bucketKey": bucketKey,
		"policyKey": policy,
	}
	err := c.doRequest(ctx, http.MethodPost, "/oss/v2/buckets",
		map[string]string{"x-ads-region": c.region}, body, nil)
	if IsStatus(err, http.StatusConflict) {
		return nil
	}
	return err
}

// DeleteBucket removes the bucket; a missing bucket is not an error
func (c *Client) DeleteBucket(ctx context.Context, bucketKey string) error {
	err := c.doRequest(ctx, http.MethodDelete, "/oss/v2/buckets/"+url.PathEscape(bucketKey), nil, nil, nil)
	if IsStatus(err, http.StatusNotFound) {
		return nil
	}
	return err
}

// ListObjects every object of the bucket, following pagination
func (c *Client) ListObjects(ctx context.Context, bucketKey string) ([]Object, error) {
	var all []Object
	startAt := ""
	for {
		path := "/oss/v2/buckets/" + url.PathEscape(bucketKey) + "/objects?limit=100"
		if startAt != "" {
			path += "&startAt=" + url.QueryEscape(startAt)
		}
		var page struct {
			Items []Object `json:"items"`
			Next  string   `json:"next"`
		}
		if err := c.doRequest(ctx, http.MethodGet, path, nil, nil, &page); err != nil {
			return nil, err
		}
		all = append(all, page.Items...)
		if page.Next == "" {
			return all, nil
		}
		next, err := url.Parse(page.Next)
		if err != nil {
			return nil, fmt.Errorf("parse next page: %w", err)
		}
		startAt = next.Query().Get("startAt")
		if startAt == "" {
			return all, nil
		}
	}
}

// UploadObject uploads data through a signed S3 URL and completes it
func (c *Client) UploadObject(ctx context.Context, bucketKey, objectKey string, data []byte) (*Object, error) {
	base := "/oss/v2/buckets/" + url.PathEscape(bucketKey) + "/objects/" + url.PathEscape(objectKey) + "/signeds3upload"

	var signed struct {
		UploadKey string   `json:"uploadKey"`
		URLs      []string `json:"urls"`
	}
	if err := c.doRequest(ctx, http.MethodGet, base+"?minutesExpiration=15", nil, nil, &signed); err != nil {
		return nil, fmt.Errorf("get signed upload url: %w", err)
	}
	if len(signed.URLs) == 0 {
		return nil, fmt.Errorf("no signed upload url for %s/%s", bucketKey, objectKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, signed.URLs[0], bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("build upload request: %w", err)
	}
	req.ContentLength = int64(len(data))
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("upload to signed url: %w", err)
	}
	body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
	resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{StatusCode: resp.StatusCode, Method: http.MethodPut, Path: "signed-url", Body: string(body)}
	}

	var obj Object
	if err := c.doRequest(ctx, http.MethodPost, base, nil, map[string]string{"uploadKey": signed.UploadKey}, &obj); err != nil {
		return nil, fmt.Errorf("complete upload: %w", err)
	}
	return &obj, nil
}

// CopyObject copies an object inside its bucket
func (c *Client) CopyObject(ctx context.Context, bucketKey, objectKey, newObjectKey string) (*Object, error) {
	path := "/oss/v2/buckets/" + url.PathEscape(bucketKey) + "/objects/" + url.PathEscape(objectKey) +
		"/copyto/" + url.PathEscape(newObjectKey)
	var obj Object
	if err := c.doRequest(ctx, http.MethodPut, path, nil, nil, &obj); err != nil {
		return nil, err
	}
	return &obj, nil
}

// DeleteObject removes an object; a missing object is not an error
func (c *Client) DeleteObject(ctx context.Context, bucketKey, objectKey string) error {
	path := "/oss/v2/buckets/" + url.PathEscape(bucketKey) + "/objects/" + url.PathEscape(objectKey)
	err := c.doRequest(ctx, http.MethodDelete, path, nil, nil, nil)
	if IsStatus(err, http.StatusNotFound) {
		return nil
	}
	return err
}
