// Package rpc is the tezos node RPC client: spec.md §6's "Node RPC client
// (consumed by fetcher & processor)", grounded on que-pasa's own
// octez::node::NodeClient (retry-with-backoff-and-fallover `load`, one
// HTTP GET per RPC method).
package rpc

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/valyala/fastjson"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"tzindexer/internal/chain"
	"tzindexer/internal/ixerr"
)

// Config controls how a Client talks to its pool of nodes.
type Config struct {
	NodeURLs    []string
	Chain       string // defaults to "main"
	Timeout     time.Duration
	CommRetries int32 // <0 means retry indefinitely
	// RequestsPerSecond caps outbound RPC calls across the whole pool;
	// zero disables the limiter.
	RequestsPerSecond float64
	// TLSConfig, if set, is used for any https:// node URL (spec.md §6's
	// --ssl/--ca-cert flags).
	TLSConfig *tls.Config
}

// Client is a round-robin pool of Tezos node RPC endpoints with transient
// error retry and exponential backoff between full rounds, matching the
// fallover behaviour spec.md §6 requires ("fall over to alternate node
// URLs round-robin").
type Client struct {
	log         *zap.Logger
	http        *http.Client
	nodeURLs    []string
	chainID     string
	commRetries int32
	limiter     *rate.Limiter
	rr          uint32
}

func New(log *zap.Logger, cfg Config) (*Client, error) {
	if len(cfg.NodeURLs) == 0 {
		return nil, ixerr.New(ixerr.Configuration, "rpc.New", fmt.Errorf("no node URLs configured"))
	}
	chainID := cfg.Chain
	if chainID == "" {
		chainID = "main"
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 20 * time.Second
	}

	var limiter *rate.Limiter
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	httpClient := &http.Client{Timeout: timeout}
	if cfg.TLSConfig != nil {
		httpClient.Transport = &http.Transport{TLSClientConfig: cfg.TLSConfig}
	}

	return &Client{
		log:         log,
		http:        httpClient,
		nodeURLs:    cfg.NodeURLs,
		chainID:     chainID,
		commRetries: cfg.CommRetries,
		limiter:     limiter,
	}, nil
}

// Head returns the highest level on the chain.
func (c *Client) Head(ctx context.Context) (chain.LevelMeta, error) {
	meta, _, err := c.levelJSON(ctx, "head")
	return meta, err
}

// LevelJSON fetches and parses the full block body at level.
func (c *Client) LevelJSON(ctx context.Context, level int32) (chain.LevelMeta, *chain.Block, error) {
	return c.levelJSON(ctx, strconv.FormatInt(int64(level), 10))
}

func (c *Client) levelJSON(ctx context.Context, level string) (chain.LevelMeta, *chain.Block, error) {
	body, err := c.load(ctx, fmt.Sprintf("blocks/%s", level))
	if err != nil {
		return chain.LevelMeta{}, nil, fmt.Errorf("rpc: level_json(%s): %w", level, err)
	}

	var p fastjson.Parser
	js, err := p.ParseBytes(body)
	if err != nil {
		return chain.LevelMeta{}, nil, ixerr.Wrap(ixerr.Malformed, "rpc.levelJSON", fmt.Errorf("parsing block json: %w", err))
	}
	block, err := chain.ParseBlock(js)
	if err != nil {
		return chain.LevelMeta{}, nil, ixerr.Wrap(ixerr.Malformed, "rpc.levelJSON", err)
	}

	meta := chain.LevelMeta{
		Level:    block.Header.Level,
		Hash:     block.Hash,
		PrevHash: block.Header.Predecessor,
	}
	if t, err := time.Parse(time.RFC3339, block.Header.Timestamp); err == nil {
		unix := t.Unix()
		meta.BakedAt = &unix
	}
	return meta, block, nil
}

// ContractStorageDefinition fetches the declared storage type of contract
// as of level (nil meaning "head").
func (c *Client) ContractStorageDefinition(ctx context.Context, contract string, level *int32) (*fastjson.Value, error) {
	body, err := c.load(ctx, fmt.Sprintf("blocks/%s/context/contracts/%s/script", levelSegment(level), contract))
	if err != nil {
		return nil, fmt.Errorf("rpc: get_contract_storage_definition(%s): %w", contract, err)
	}

	var p fastjson.Parser
	js, err := p.ParseBytes(body)
	if err != nil {
		return nil, ixerr.Wrap(ixerr.Malformed, "rpc.ContractStorageDefinition", fmt.Errorf("parsing script json: %w", err))
	}

	for _, entry := range js.GetArray("code") {
		prim := entry.Get("prim")
		if prim == nil || string(prim.GetStringBytes()) != "storage" {
			continue
		}
		args := entry.GetArray("args")
		if len(args) == 0 {
			return nil, ixerr.New(ixerr.Malformed, "rpc.ContractStorageDefinition", fmt.Errorf("'storage' entry missing args"))
		}
		return args[0], nil
	}
	return nil, ixerr.New(ixerr.Malformed, "rpc.ContractStorageDefinition", fmt.Errorf("script has no 'storage' entry"))
}

// ContractEntrypoints fetches the declared parameter type of every
// entrypoint contract exposes as of level (nil meaning "head"), keyed by
// entrypoint name — the per-entrypoint root type spec.md §4.8 step 3's
// "entry.<entrypoint>" co-walk compiles each into its own relational AST
// from.
func (c *Client) ContractEntrypoints(ctx context.Context, contract string, level *int32) (map[string]*fastjson.Value, error) {
	body, err := c.load(ctx, fmt.Sprintf("blocks/%s/context/contracts/%s/entrypoints", levelSegment(level), contract))
	if err != nil {
		return nil, fmt.Errorf("rpc: get_contract_entrypoints(%s): %w", contract, err)
	}

	var p fastjson.Parser
	js, err := p.ParseBytes(body)
	if err != nil {
		return nil, ixerr.Wrap(ixerr.Malformed, "rpc.ContractEntrypoints", fmt.Errorf("parsing entrypoints json: %w", err))
	}
	obj := js.GetObject("entrypoints")
	if obj == nil {
		return map[string]*fastjson.Value{}, nil
	}
	out := make(map[string]*fastjson.Value, obj.Len())
	obj.Visit(func(key []byte, v *fastjson.Value) {
		out[string(key)] = v
	})
	return out, nil
}

// ContractStorage fetches the raw Micheline storage value of contract at
// level, satisfying storageproc.StorageGetter.
func (c *Client) ContractStorage(ctx context.Context, contract string, level int32) ([]byte, error) {
	body, err := c.load(ctx, fmt.Sprintf("blocks/%d/context/contracts/%s/storage", level, contract))
	if err != nil {
		return nil, fmt.Errorf("rpc: get_contract_storage(%s, %d): %w", contract, level, err)
	}
	return body, nil
}

// BigmapValue fetches a single big-map entry's raw Micheline value, or
// nil if the key is unset at that level.
func (c *Client) BigmapValue(ctx context.Context, level int32, bigmapID int32, keyhash string) ([]byte, error) {
	body, err := c.load(ctx, fmt.Sprintf("blocks/%d/context/big_maps/%d/%s", level, bigmapID, keyhash))
	if err != nil {
		if ixerr.IsKind(err, ixerr.Transient) {
			return nil, err
		}
		return nil, nil
	}
	return body, nil
}

func levelSegment(level *int32) string {
	if level == nil {
		return "head"
	}
	return strconv.FormatInt(int64(*level), 10)
}

// load issues endpoint against the node pool, retrying transient failures
// with exponential backoff between full rounds over the pool and falling
// over to the next node round-robin within a round, mirroring
// NodeClient::load.
func (c *Client) load(ctx context.Context, endpoint string) ([]byte, error) {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0 // rounds are bounded by commRetries alone

	var lastErr error
	for attempt := int32(0); c.commRetries < 0 || attempt <= c.commRetries; attempt++ {
		for i := 0; i < len(c.nodeURLs); i++ {
			node := c.nextNode()
			body, err := c.loadFromNode(ctx, node, endpoint)
			if err == nil {
				return body, nil
			}
			lastErr = err
			if !ixerr.IsKind(err, ixerr.Transient) {
				return nil, err
			}
			if c.log != nil {
				c.log.Warn("transient node communication error, retrying",
					zap.String("node", node), zap.String("endpoint", endpoint),
					zap.Int32("attempt", attempt), zap.Error(err))
			}
		}

		wait := bo.NextBackOff()
		if wait == backoff.Stop {
			break
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil, fmt.Errorf("rpc: exhausted retries calling %s on all nodes: %w", endpoint, lastErr)
}

func (c *Client) nextNode() string {
	idx := atomic.AddUint32(&c.rr, 1) - 1
	return c.nodeURLs[int(idx)%len(c.nodeURLs)]
}

func (c *Client) loadFromNode(ctx context.Context, node, endpoint string) ([]byte, error) {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, err
		}
	}

	uri := fmt.Sprintf("%s/chains/%s/%s", node, c.chainID, endpoint)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, uri, nil)
	if err != nil {
		return nil, ixerr.Wrap(ixerr.Configuration, "rpc.loadFromNode", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, ixerr.Wrap(ixerr.Transient, "rpc.loadFromNode", fmt.Errorf("%s: %w", uri, err))
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, ixerr.Wrap(ixerr.Transient, "rpc.loadFromNode", fmt.Errorf("reading body from %s: %w", uri, err))
	}

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, ixerr.Wrap(ixerr.Transient, "rpc.loadFromNode", fmt.Errorf("%s: http 429", uri))
	}
	if resp.StatusCode != http.StatusOK {
		return nil, ixerr.Wrap(ixerr.Malformed, "rpc.loadFromNode", fmt.Errorf("%s: bad http status %d", uri, resp.StatusCode))
	}
	return body, nil
}
