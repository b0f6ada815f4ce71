package ticksource

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/rpc"
)

// Constants for reconnection logic
const (
	initialReconnectDelay = 1 * time.Second
	maxReconnectDelay     = 30 * time.Second
)

// ChainConfig holds the configuration for a chain-backed tick source.
type ChainConfig struct {
	URL    string
	Logger Logger
}

// validate checks if the configuration is valid.
func (c *ChainConfig) validate() error {
	if c.URL == "" {
		return errors.New("config: URL is required")
	}
	if c.Logger == nil {
		return errors.New("config: Logger is required")
	}
	return nil
}

// chainHead is the slice of a newHeads notification we care about.
type chainHead struct {
	Number *hexutil.Big `json:"number"`
}

// ChainSource tracks the head block number of a chain as the tick counter.
// It subscribes to newHeads over RPC and reconnects with exponential backoff;
// between reconnects Latest keeps returning the last observed head. Its
// lifecycle is bound to the context passed to DialChain.
type ChainSource struct {
	latest atomic.Uint64
	errCh  chan error
	logger Logger
}

// DialChain starts a chain-backed source. The returned source is usable
// immediately; Latest reports 0 until the first head arrives.
func DialChain(ctx context.Context, cfg ChainConfig) (*ChainSource, error) {
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	s := &ChainSource{
		errCh:  make(chan error, 1),
		logger: cfg.Logger,
	}
	go s.run(ctx, cfg.URL)
	return s, nil
}

// Latest implements Source.
func (s *ChainSource) Latest() uint64 {
	return s.latest.Load()
}

// Err returns a read-only channel that closes when the source shuts down.
func (s *ChainSource) Err() <-chan error {
	return s.errCh
}

// run handles the networking lifecycle.
func (s *ChainSource) run(ctx context.Context, url string) {
	defer close(s.errCh)
	reconnectDelay := initialReconnectDelay

	for {
		if ctx.Err() != nil {
			s.logger.Info("Tick source context canceled, shutting down.")
			return
		}

		s.logger.Info("Connecting to chain RPC", "url", url)
		rpcClient, err := rpc.DialContext(ctx, url)
		if err != nil {
			s.logger.Error("Failed to connect to chain RPC, will retry...", "error", err, "delay", reconnectDelay)
			time.Sleep(reconnectDelay)
			reconnectDelay = min(reconnectDelay*2, maxReconnectDelay)
			continue
		}

		reconnectDelay = initialReconnectDelay

		err = s.subscribeHeads(ctx, rpcClient)
		if err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
				s.logger.Info("Context canceled, shutting down.")
				return
			}
			s.logger.Error("Head subscription failed, will reconnect...", "error", err, "delay", reconnectDelay)
			time.Sleep(reconnectDelay)
			reconnectDelay = min(reconnectDelay*2, maxReconnectDelay)
		}
	}
}

func (s *ChainSource) subscribeHeads(ctx context.Context, rpcClient *rpc.Client) error {
	defer rpcClient.Close()

	headCh := make(chan *chainHead)
	sub, err := rpcClient.EthSubscribe(ctx, headCh, "newHeads")
	if err != nil {
		return fmt.Errorf("failed to subscribe to newHeads: %w", err)
	}
	defer sub.Unsubscribe()

	s.logger.Info("Subscribed to newHeads. Waiting for blocks...")
	for {
		select {
		case head := <-headCh:
			if head == nil || head.Number == nil {
				continue
			}
			s.observeHead(head.Number.ToInt().Uint64())
		case err := <-sub.Err():
			return err
		case <-ctx.Done():
			s.logger.Info("Context cancelled, stopping subscription.")
			return ctx.Err()
		}
	}
}

// observeHead advances the tick, never backwards: a reorged head must not
// rewind the engine's time base.
func (s *ChainSource) observeHead(number uint64) {
	for {
		current := s.latest.Load()
		if number <= current {
			s.logger.Debug("Ignoring non-advancing head", "head", number, "latest", current)
			return
		}
		if s.latest.CompareAndSwap(current, number) {
			return
		}
	}
}
