package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/time/rate"

	"github.com/earn-network/payout-engine/pkg/logger"
)

// ErrTooManyTrials is returned when a batch announcement keeps failing after
// rotating through the configured nodes a bounded number of times.
var ErrTooManyTrials = errors.New("too many trials")

// TxStatus is the network's view of an announced transaction.
type TxStatus string

const (
	StatusUnknown     TxStatus = "unknown"
	StatusUnconfirmed TxStatus = "unconfirmed"
	StatusConfirmed   TxStatus = "confirmed"
	StatusFailed      TxStatus = "failed"
)

// ClientConfig holds network client configuration.
type ClientConfig struct {
	Nodes     []string
	MaxTrials int
	Timeout   time.Duration
	// AnnounceRate caps announcements per second; zero disables the limiter.
	AnnounceRate float64
}

// Client announces signed transactions to the network over the node REST
// gateway, rotating to the next node on failure.
type Client struct {
	mu         sync.Mutex
	nodes      []string
	current    int
	maxTrials  int
	httpClient *http.Client
	limiter    *rate.Limiter
	log        *logger.Logger
}

// NewClient creates a network client.
func NewClient(cfg ClientConfig, log *logger.Logger) (*Client, error) {
	if len(cfg.Nodes) == 0 {
		return nil, fmt.Errorf("at least one node is required")
	}
	if cfg.MaxTrials <= 0 {
		cfg.MaxTrials = 3
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}
	var limiter *rate.Limiter
	if cfg.AnnounceRate > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.AnnounceRate), 1)
	}
	if log == nil {
		log = logger.NewDefault("chain")
	}
	return &Client{
		nodes:      cfg.Nodes,
		maxTrials:  cfg.MaxTrials,
		httpClient: &http.Client{Timeout: timeout},
		limiter:    limiter,
		log:        log,
	}, nil
}

// node returns the currently selected node URL.
func (c *Client) node() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.nodes[c.current]
}

// rotate moves to the next node in the list.
func (c *Client) rotate() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = (c.current + 1) % len(c.nodes)
}

// Announce submits one signed transaction to the currently selected node.
func (c *Client) Announce(ctx context.Context, tx SignedTransaction) error {
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return err
		}
	}

	body, err := json.Marshal(map[string]string{"payload": tx.Payload})
	if err != nil {
		return fmt.Errorf("marshal announce body: %w", err)
	}

	url := c.node() + "/transactions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create announce request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("announce %s: %w", tx.Hash, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode >= 300 {
		return fmt.Errorf("announce %s: node returned %s", tx.Hash, resp.Status)
	}
	return nil
}

// DelegateAll announces a whole batch concurrently and waits for all of it.
// When any announcement fails the client rotates to the next node and retries
// the full batch; after the bounded number of trials it gives up with
// ErrTooManyTrials so callers never mark state on a failed submission.
func (c *Client) DelegateAll(ctx context.Context, txs []SignedTransaction) error {
	if len(txs) == 0 {
		return nil
	}

	var lastErr error
	for trial := 0; trial < c.maxTrials; trial++ {
		if trial > 0 {
			c.rotate()
			c.log.Warnf("retrying batch of %d transactions against %s (trial %d/%d)",
				len(txs), c.node(), trial+1, c.maxTrials)
		}

		g, gctx := errgroup.WithContext(ctx)
		for _, tx := range txs {
			g.Go(func() error {
				return c.Announce(gctx, tx)
			})
		}
		if err := g.Wait(); err != nil {
			lastErr = err
			continue
		}
		return nil
	}

	return fmt.Errorf("%w: %v", ErrTooManyTrials, lastErr)
}

// TransactionStatus asks the network what it knows about a transaction hash.
func (c *Client) TransactionStatus(ctx context.Context, hash string) (TxStatus, error) {
	url := c.node() + "/transactionStatus/" + hash
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return StatusUnknown, fmt.Errorf("create status request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return StatusUnknown, fmt.Errorf("transaction status %s: %w", hash, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return StatusUnknown, nil
	}
	if resp.StatusCode >= 300 {
		return StatusUnknown, fmt.Errorf("transaction status %s: node returned %s", hash, resp.Status)
	}

	var payload struct {
		Group string `json:"group"`
		Code  string `json:"code"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return StatusUnknown, fmt.Errorf("decode status response: %w", err)
	}

	switch payload.Group {
	case "confirmed":
		return StatusConfirmed, nil
	case "unconfirmed", "partial":
		return StatusUnconfirmed, nil
	case "failed":
		return StatusFailed, nil
	default:
		return StatusUnknown, nil
	}
}
