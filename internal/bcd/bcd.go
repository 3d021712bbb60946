// Package bcd is the optional better-call.dev client, grounded on
// original_source/src/octez/bcd.rs's BCDClient. The pipeline calls only
// Head, to hold level discovery back until the node has reached
// better-call.dev's head; OperationsPage is not called by the pipeline, so
// no historical levels are taken from better-call.dev.
package bcd

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/valyala/fastjson"
	"go.uber.org/zap"

	"tzindexer/internal/ixerr"
)

// Client talks to one better-call.dev API instance.
type Client struct {
	log     *zap.Logger
	http    *http.Client
	apiURL  string
	network string
}

func New(log *zap.Logger, apiURL, network string) *Client {
	return &Client{
		log:     log,
		http:    &http.Client{Timeout: 20 * time.Second},
		apiURL:  apiURL,
		network: network,
	}
}

// Head returns the highest level better-call.dev has indexed for this
// client's network.
func (c *Client) Head(ctx context.Context) (int32, error) {
	body, err := c.load(ctx, "head", nil)
	if err != nil {
		return 0, fmt.Errorf("bcd: head: %w", err)
	}

	var p fastjson.Parser
	js, err := p.ParseBytes(body)
	if err != nil {
		return 0, ixerr.Wrap(ixerr.Malformed, "bcd.Head", fmt.Errorf("parsing head response: %w", err))
	}
	for _, entry := range js.GetArray() {
		if string(entry.GetStringBytes("network")) == c.network {
			return int32(entry.GetInt("level")), nil
		}
	}
	return 0, ixerr.New(ixerr.Malformed, "bcd.Head", fmt.Errorf("no entry for network %q in better-call.dev /head response", c.network))
}

// OperationsPage returns one page of distinct levels touching contract,
// newest-operations-first as better-call.dev paginates them, plus the
// cursor to pass as lastID on the next call. An empty levels slice with a
// nil error means there are no more pages.
func (c *Client) OperationsPage(ctx context.Context, contract string, lastID string) (levels []int32, nextLastID string, err error) {
	params := url.Values{"status": {"applied"}}
	if lastID != "" {
		params.Set("last_id", lastID)
	}

	body, err := c.load(ctx, fmt.Sprintf("contract/%s/%s/operations", c.network, contract), params)
	if err != nil {
		return nil, "", fmt.Errorf("bcd: operations(%s): %w", contract, err)
	}

	var p fastjson.Parser
	js, err := p.ParseBytes(body)
	if err != nil {
		return nil, "", ixerr.Wrap(ixerr.Malformed, "bcd.OperationsPage", fmt.Errorf("parsing operations response: %w", err))
	}

	seen := make(map[int32]bool)
	for _, op := range js.GetArray("operations") {
		lvl := int32(op.GetInt("level"))
		if seen[lvl] {
			continue
		}
		seen[lvl] = true
		levels = append(levels, lvl)
	}
	nextLastID = string(js.GetStringBytes("last_id"))
	return levels, nextLastID, nil
}

func (c *Client) load(ctx context.Context, endpoint string, params url.Values) ([]byte, error) {
	uri := fmt.Sprintf("%s/%s", c.apiURL, endpoint)
	if len(params) > 0 {
		uri += "?" + params.Encode()
	}

	var body []byte
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		resp, err := c.http.Do(req)
		if err != nil {
			if c.log != nil {
				c.log.Warn("transient better-call.dev communication error, retrying", zap.String("uri", uri), zap.Error(err))
			}
			return err
		}
		defer resp.Body.Close()

		read, err := io.ReadAll(resp.Body)
		if err != nil {
			return err
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("%s: bad http status %d", uri, resp.StatusCode))
		}
		body = read
		return nil
	}

	if err := backoff.Retry(op, backoff.WithContext(backoff.NewExponentialBackOff(), ctx)); err != nil {
		return nil, ixerr.Wrap(ixerr.Transient, "bcd.load", err)
	}
	return body, nil
}
