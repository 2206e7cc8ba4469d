package objectstore

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"
)

const storagePath = "/storage/v1/object"

// Store is the object storage used for listing images.
type Store interface {
	Upload(ctx context.Context, path string, data []byte, contentType string) error
	Remove(ctx context.Context, paths []string) error
	PublicURL(path string) string
	PathFromURL(rawURL string) (string, bool)
}

type ClientOpts struct {
	BaseURL    string
	ServiceKey string
	Bucket     string
}

// Client talks to the Supabase Storage REST API.
type Client struct {
	httpClient *resty.Client
	baseURL    string
	bucket     string
	pathInURL  *regexp.Regexp
}

func NewClient(opts ClientOpts) *Client {
	c := Client{
		baseURL:   strings.TrimRight(opts.BaseURL, "/"),
		bucket:    opts.Bucket,
		pathInURL: regexp.MustCompile("/" + regexp.QuoteMeta(opts.Bucket) + "/(.*)"),
	}
	c.httpClient = resty.New().
		SetBaseURL(c.baseURL).
		SetHeaders(
			map[string]string{
				"Authorization": "Bearer " + opts.ServiceKey,
				"apikey":        opts.ServiceKey,
			},
		)

	return &c
}

func (c *Client) req(ctx context.Context) *resty.Request {
	return c.httpClient.
		NewRequest().
		SetContext(ctx).
		SetPathParams(map[string]string{
			"bucket": c.bucket,
		})
}

// Upload stores data under path in the bucket. Existing objects are not
// overwritten.
func (c *Client) Upload(ctx context.Context, path string, data []byte, contentType string) error {
	_, err := handleError(c.req(ctx).
		SetHeader("Content-Type", contentType).
		SetHeader("x-upsert", "false").
		SetBody(bytes.NewReader(data)).
		SetRawPathParam("path", path).
		Post(storagePath + "/{bucket}/{path}"))
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", path, err)
	}

	log.Debug().Str("path", path).Int("bytes", len(data)).Msg("uploaded object")
	return nil
}

// Remove deletes the given objects from the bucket.
func (c *Client) Remove(ctx context.Context, paths []string) error {
	if len(paths) == 0 {
		return nil
	}

	_, err := handleError(c.req(ctx).
		SetBody(map[string]any{"prefixes": paths}).
		Delete(storagePath + "/{bucket}"))
	if err != nil {
		return fmt.Errorf("failed to remove objects: %w", err)
	}

	log.Debug().Strs("paths", paths).Msg("removed objects")
	return nil
}

// PublicURL returns the public URL of an object in the bucket.
func (c *Client) PublicURL(path string) string {
	return fmt.Sprintf("%s%s/public/%s/%s", c.baseURL, storagePath, c.bucket, path)
}

// PathFromURL recovers the object path from a public URL produced by
// PublicURL.
func (c *Client) PathFromURL(rawURL string) (string, bool) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", false
	}
	m := c.pathInURL.FindStringSubmatch(u.Path)
	if m == nil || m[1] == "" {
		return "", false
	}
	return m[1], true
}

// handleError turns responses with a status code above 399 into errors.
func handleError(res *resty.Response, err error) (*resty.Response, error) {
	if err != nil {
		return res, err
	}
	if res.IsError() {
		return res, fmt.Errorf("request failed: %s %s (status: %d): %s", res.Request.Method, res.Request.URL, res.StatusCode(), strings.TrimSpace(res.String()))
	}

	return res, nil
}
