package collector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/globalcorp/edgebridge/internal/config"
	"github.com/globalcorp/edgebridge/internal/fieldbus"
	"github.com/globalcorp/edgebridge/internal/model"
)

// closeGrace bounds session teardown when the run context is already
// cancelled.
const closeGrace = 5 * time.Second

// assetSession supervises the connection lifecycle of one asset.
type assetSession struct {
	collector *Collector
	site      *config.Site
	asset     *config.Asset
	hierarchy model.Hierarchy
	log       *slog.Logger
}

// supervise runs connect/serve/backoff until cancellation or quarantine.
func (s *assetSession) supervise(ctx context.Context) {
	c := s.collector
	attempt := 0

	for {
		err := s.runSession(ctx, &attempt)
		if ctx.Err() != nil {
			return
		}

		attempt++
		s.log.Warn("session ended", "error", err, "attempt", attempt)

		c.updateStatus(s.asset.AssetName, func(st *AssetStatus) {
			st.Connected = false
			st.SubscribedTags = 0
			st.Attempts = attempt
		})

		if attempt >= maxConnectAttempts {
			s.log.Error("reconnect budget exhausted, quarantining asset until restart",
				"attempts", attempt)
			c.metrics.Quarantined(s.asset.AssetName)
			c.updateStatus(s.asset.AssetName, func(st *AssetStatus) {
				st.Quarantined = true
			})

			return
		}

		delay := backoffDelay(attempt-1, c.jitter)
		s.log.Info("reconnecting after backoff", "delay", delay)

		select {
		case <-ctx.Done():
			return
		case <-c.clk.After(delay):
		}
	}
}

// runSession establishes one full session and serves it until a transport
// fault or cancellation. A fully established session (connected with at
// least one subscribed tag) resets the reconnect budget.
func (s *assetSession) runSession(ctx context.Context, attempt *int) error {
	c := s.collector

	policy, err := c.resolvePolicy(ctx, s.asset)
	if err != nil {
		return err
	}

	profile, err := c.buildProfile(policy)
	if err != nil {
		return err
	}

	s.log.Info("connecting", "endpoint", s.asset.OPCUAEndpoint, "policy", policy)

	client, err := c.dialer.Dial(ctx, s.asset.OPCUAEndpoint, profile, c.connectTimeout())
	if err != nil {
		return err
	}

	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), closeGrace)
		defer cancel()

		if closeErr := client.Close(closeCtx); closeErr != nil {
			s.log.Debug("session close failed", "error", closeErr)
		}
	}()

	nsIndex, err := client.NamespaceIndex(ctx, namespaceURI)
	if err != nil {
		return err
	}

	notifyCh := make(chan fieldbus.Notification, notifyBufferSize)

	interval := time.Duration(s.site.DefaultSamplingRate) * time.Millisecond

	sub, err := client.Subscribe(ctx, interval, func(n fieldbus.Notification) {
		// Library-owned goroutine; never block it.
		select {
		case notifyCh <- n:
		default:
			c.metrics.SampleDropped(s.asset.AssetName)
		}
	})
	if err != nil {
		return err
	}

	handleTags, nodeIDs, err := s.subscribeTags(ctx, sub, nsIndex)
	if err != nil {
		return err
	}

	wasReconnect := *attempt > 0
	*attempt = 0

	c.updateStatus(s.asset.AssetName, func(st *AssetStatus) {
		st.Connected = true
		st.Quarantined = false
		st.Attempts = 0
		st.SubscribedTags = len(handleTags)
	})

	if wasReconnect {
		c.metrics.Reconnected(s.asset.AssetName)
	}

	s.log.Info("session established", "tags", len(handleTags))

	// Prime downstream with the current value of every node before the
	// first publish cycle delivers changes.
	s.readAll(ctx, client, nodeIDs)

	return s.serve(ctx, client, sub, handleTags, notifyCh)
}

// subscribeTags registers every mapped node for data changes. Individual
// failures are tolerated; a session with zero subscribed tags is an error.
func (s *assetSession) subscribeTags(ctx context.Context, sub fieldbus.Subscription, nsIndex uint16) (map[uint32]string, map[string]string, error) {
	handleTags := make(map[uint32]string, len(s.asset.NodeMapping))
	nodeIDs := make(map[string]string, len(s.asset.NodeMapping))
	handle := uint32(1)

	for tag, rawID := range s.asset.NodeMapping {
		nodeID := fieldbus.ResolveNodeID(nsIndex, rawID)

		err := sub.Monitor(ctx, handle, nodeID)
		if err != nil {
			s.log.Warn("tag subscription failed, continuing without it",
				"tag", tag, "node_id", nodeID, "error", err)

			continue
		}

		handleTags[handle] = tag
		nodeIDs[tag] = nodeID
		handle++
	}

	if len(handleTags) == 0 {
		cancelSubscription(sub)

		return nil, nil, fmt.Errorf("asset %s: no tag could be subscribed", s.asset.AssetName)
	}

	return handleTags, nodeIDs, nil
}

// readAll reads the current value of every subscribed node once and emits
// the results as samples. Read failures only cost the single value.
func (s *assetSession) readAll(ctx context.Context, client fieldbus.Client, nodeIDs map[string]string) {
	for tag, nodeID := range nodeIDs {
		value, status, err := client.Read(ctx, nodeID)
		if err != nil {
			s.log.Debug("initial read failed", "tag", tag, "error", err)

			continue
		}

		s.emit(tag, fieldbus.Notification{Value: value, Status: status})
	}
}

// serve pumps notifications and runs the liveness probe until the session
// faults or the context is cancelled.
func (s *assetSession) serve(ctx context.Context, client fieldbus.Client, sub fieldbus.Subscription, handleTags map[uint32]string, notifyCh <-chan fieldbus.Notification) error {
	c := s.collector

	probe := c.clk.Ticker(livenessInterval)
	defer probe.Stop()
	defer cancelSubscription(sub)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case n := <-notifyCh:
			tag, known := handleTags[n.Handle]
			if !known {
				continue
			}

			s.emit(tag, n)

		case <-probe.C:
			_, err := client.NamespaceArray(ctx)
			if err != nil && ctx.Err() == nil {
				return fmt.Errorf("liveness probe failed: %w", err)
			}
		}
	}
}

func (s *assetSession) emit(tag string, n fieldbus.Notification) {
	c := s.collector

	sample := model.Sample{
		Timestamp: c.clk.Now().UTC(),
		Hierarchy: s.hierarchy,
		Tag:       tag,
		Value:     model.ValueFrom(n.Value),
		Quality:   fieldbus.QualityFromStatus(n.Status),
	}

	c.sink(sample)
	c.metrics.SampleCollected(s.asset.AssetName)

	c.updateStatus(s.asset.AssetName, func(st *AssetStatus) {
		st.LastSampleAt = sample.Timestamp
	})
}

func cancelSubscription(sub fieldbus.Subscription) {
	closeCtx, cancel := context.WithTimeout(context.Background(), closeGrace)
	defer cancel()

	if err := sub.Cancel(closeCtx); err != nil && !errors.Is(err, context.Canceled) {
		slog.Debug("subscription cancel failed", "error", err)
	}
}
