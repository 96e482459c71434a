package sse

import (
	"context"
	"io"
	"mime"
	"net/http"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
)

var ErrNotEventStream = errors.New("sse: response is not an event stream")

type CallbackFunc func(event Event)

type Client struct {
	url        string
	httpClient *http.Client
	callback   CallbackFunc
	onConnect  func()
}

type ClientOption func(c *Client)

func WithHTTPClient(httpClient *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithOnConnect calls fn once the server has answered with an event stream, before the first event is read.
func WithOnConnect(fn func()) ClientOption {
	return func(c *Client) {
		c.onConnect = fn
	}
}

func NewClient(url string, callback CallbackFunc, opts ...ClientOption) *Client {
	c := &Client{
		url:        url,
		httpClient: http.DefaultClient,
		callback:   callback,
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Run subscribes to the stream and calls the callback for each event in the order they arrive. Each callback
// returns before the next event is read. Run returns when the stream ends, fails or ctx is cancelled; it does
// not reconnect.
func (c *Client) Run(ctx context.Context) error {
	req, err := http.NewRequest(http.MethodGet, c.url, nil)

	if err != nil {
		return errors.Wrap(err, "sse: could not build request")
	}

	req = req.WithContext(ctx)
	req.Header.Set("Accept", "text/event-stream")
	req.Header.Set("Cache-Control", "no-cache")

	resp, err := c.httpClient.Do(req)

	if err != nil {
		return errors.Wrapf(err, "sse: could not connect to %s", c.url)
	}

	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return errors.Errorf("sse: unexpected status from %s: %s", c.url, resp.Status)
	}

	if mediaType, _, err := mime.ParseMediaType(resp.Header.Get("Content-Type")); err != nil || mediaType != "text/event-stream" {
		return errors.Wrapf(ErrNotEventStream, "content type %q", resp.Header.Get("Content-Type"))
	}

	logrus.Infof("subscribed to event stream: %s", c.url)

	if c.onConnect != nil {
		c.onConnect()
	}

	decoder := NewDecoder(resp.Body)

	for {
		event, err := decoder.Decode()

		if err == io.EOF {
			return nil
		} else if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}

			return errors.Wrap(err, "sse: could not read event stream")
		}

		c.callback(event)
	}
}
