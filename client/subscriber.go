package client

import (
	"context"

	"github.com/tr-sdv-sandbox/vsslink/broker"
	"github.com/tr-sdv-sandbox/vsslink/errors"
	"github.com/tr-sdv-sandbox/vsslink/pkg/retry"
)

// subscriberLoop maintains the value subscription across broker outages.
// Each pass connects, fetches an initial value for every subscribed signal,
// then streams updates; failures back off exponentially and the backoff
// resets on any successful read.
func (c *Client) subscriberLoop(ctx context.Context) {
	sm := c.subscriberSM
	backoff := retry.NewBackoff(c.backoffInitial, c.backoffMax)

	first := true
	for {
		if ctx.Err() != nil {
			sm.Stop()
			return
		}
		if first {
			sm.Start()
			first = false
		} else {
			sm.Retry()
			if err := retry.Sleep(ctx, backoff.Next()); err != nil {
				sm.Stop()
				return
			}
		}

		if err := c.waitForConnection(ctx); err != nil {
			if ctx.Err() != nil {
				sm.Stop()
				return
			}
			sm.ConnectFailed(errors.Unavailable("databroker connection not ready", err))
			continue
		}
		sm.ChannelReady()

		c.subMu.Lock()
		ids := make([]int32, 0, len(c.subs))
		for id := range c.subs {
			ids = append(ids, id)
		}
		c.subMu.Unlock()

		stream, err := c.rpc.OpenSubscribeStream(ctx, ids)
		if err != nil {
			sm.StreamFailed(err, true)
			continue
		}

		// Initial fetch: every callback sees a first value, possibly
		// NOT_AVAILABLE, before any streamed update.
		if err := c.initialFetch(ctx, ids); err != nil {
			_ = stream.Close()
			if ctx.Err() != nil {
				sm.Stop()
				return
			}
			sm.StreamFailed(err, false)
			continue
		}

		sm.StreamReady()
		backoff.Reset()

		if done := c.readUpdates(ctx, stream, backoff); done {
			_ = stream.Close()
			sm.Stop()
			return
		}
		_ = stream.Close()

		streamErr := stream.Err()
		if streamErr == nil {
			streamErr = errors.Unavailable("subscription stream ended", nil)
		}
		sm.StreamEnded(streamErr)
	}
}

// initialFetch reads the current value of every subscribed signal and
// dispatches it through the normal update path.
func (c *Client) initialFetch(ctx context.Context, ids []int32) error {
	for _, id := range ids {
		qv, err := c.rpc.GetValue(ctx, id)
		if err != nil {
			return errors.Wrap(err, "Client", "initialFetch", "fetch initial value")
		}
		c.dispatchUpdate(id, qv)
	}
	return nil
}

// readUpdates drains the stream until it ends or ctx is done. It returns
// true when the loop should exit because the client is stopping.
func (c *Client) readUpdates(ctx context.Context, stream broker.SubscribeStream, backoff *retry.Backoff) bool {
	for {
		select {
		case <-ctx.Done():
			return true
		case update, ok := <-stream.Updates():
			if !ok {
				return ctx.Err() != nil
			}
			backoff.Reset()
			for id, dp := range update.Entries {
				c.dispatchUpdate(id, broker.DecodeDatapoint(dp))
			}
		}
	}
}
