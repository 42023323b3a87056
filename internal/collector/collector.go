// Package collector maintains one authenticated field session per
// configured asset: subscribe to every mapped tag, convert data-change
// notifications into samples, and hand them to the downstream sink. Each
// asset is supervised independently with exponential backoff and a
// quarantine budget.
package collector

import (
	"context"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/globalcorp/edgebridge/internal/config"
	"github.com/globalcorp/edgebridge/internal/fieldbus"
	"github.com/globalcorp/edgebridge/internal/model"
)

const (
	// namespaceURI is resolved to an index on every server; configured
	// node ids are expanded against it.
	namespaceURI = "http://globalcorp.com/opcua/simulation"

	// maxConnectAttempts is the consecutive-failure budget before an
	// asset is quarantined until process restart.
	maxConnectAttempts = 5

	// livenessInterval is how often a live session runs its cheap
	// metadata probe.
	livenessInterval = 30 * time.Second

	// notifyBufferSize bounds the per-session notification channel between
	// the wire callback and the owning task.
	notifyBufferSize = 256
)

// Sink consumes every collected sample. It must not block for long; slow
// sinks cause notification drops.
type Sink func(model.Sample)

// Metrics receives collector events. The bridge wires the real meters;
// the zero value of nopMetrics is used otherwise.
type Metrics interface {
	SampleCollected(asset string)
	SampleDropped(asset string)
	Reconnected(asset string)
	Quarantined(asset string)
}

type nopMetrics struct{}

func (nopMetrics) SampleCollected(string) {}
func (nopMetrics) SampleDropped(string)   {}
func (nopMetrics) Reconnected(string)     {}
func (nopMetrics) Quarantined(string)     {}

// AssetStatus is one asset's connection state snapshot.
type AssetStatus struct {
	Asset          string
	Endpoint       string
	Connected      bool
	Quarantined    bool
	Attempts       int
	SubscribedTags int
	LastSampleAt   time.Time
}

// Collector supervises all asset sessions.
type Collector struct {
	cfg    *config.Config
	dialer fieldbus.Dialer
	sink   Sink
	log    *slog.Logger

	clk     clock.Clock
	jitter  func() float64
	metrics Metrics

	mu       sync.Mutex
	statuses map[string]*AssetStatus
}

// Option configures a Collector.
type Option func(*Collector)

// WithClock substitutes the clock driving backoff sleeps and liveness
// probes.
func WithClock(clk clock.Clock) Option {
	return func(c *Collector) { c.clk = clk }
}

// WithJitter substitutes the jitter fraction source.
func WithJitter(jitter func() float64) Option {
	return func(c *Collector) { c.jitter = jitter }
}

// WithMetrics wires collector event counters.
func WithMetrics(m Metrics) Option {
	return func(c *Collector) { c.metrics = m }
}

// New builds a collector over the given configuration and dialer. Samples
// flow into sink.
func New(cfg *config.Config, dialer fieldbus.Dialer, sink Sink, opts ...Option) *Collector {
	c := &Collector{
		cfg:      cfg,
		dialer:   dialer,
		sink:     sink,
		log:      slog.With("component", "collector"),
		clk:      clock.New(),
		jitter:   defaultJitter,
		metrics:  nopMetrics{},
		statuses: make(map[string]*AssetStatus),
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// Run starts one supervision task per configured asset and blocks until
// ctx is cancelled and all tasks have drained.
func (c *Collector) Run(ctx context.Context) error {
	var wg sync.WaitGroup

	for i := range c.cfg.Sites {
		site := &c.cfg.Sites[i]

		for j := range site.Assets {
			asset := &site.Assets[j]

			c.initStatus(asset)

			session := &assetSession{
				collector: c,
				site:      site,
				asset:     asset,
				hierarchy: c.cfg.Hierarchy(*site, *asset),
				log:       c.log.With("asset", asset.AssetName),
			}

			wg.Add(1)

			go func() {
				defer wg.Done()
				session.supervise(ctx)
			}()
		}
	}

	wg.Wait()

	return ctx.Err()
}

// Statuses snapshots every asset's connection state, sorted by nothing in
// particular.
func (c *Collector) Statuses() []AssetStatus {
	c.mu.Lock()
	defer c.mu.Unlock()

	out := make([]AssetStatus, 0, len(c.statuses))
	for _, st := range c.statuses {
		out = append(out, *st)
	}

	return out
}

func (c *Collector) initStatus(asset *config.Asset) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.statuses[asset.AssetName] = &AssetStatus{
		Asset:    asset.AssetName,
		Endpoint: asset.OPCUAEndpoint,
	}
}

func (c *Collector) updateStatus(asset string, fn func(*AssetStatus)) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if st, ok := c.statuses[asset]; ok {
		fn(st)
	}
}

// resolvePolicy picks the session security policy: per-asset override
// first (the env override is already folded into the asset by the config
// loader), then the global setting, then live negotiation.
func (c *Collector) resolvePolicy(ctx context.Context, asset *config.Asset) (string, error) {
	if asset.SecurityPolicy != "" {
		return asset.SecurityPolicy, nil
	}

	if c.cfg.GlobalSettings.SecurityPolicy != "" {
		return c.cfg.GlobalSettings.SecurityPolicy, nil
	}

	return fieldbus.NegotiatePolicy(ctx, c.dialer, asset.OPCUAEndpoint)
}

// buildProfile assembles the security profile for the chosen policy,
// generating the client certificate on first use.
func (c *Collector) buildProfile(policy string) (fieldbus.SecurityProfile, error) {
	profile := fieldbus.SecurityProfile{Policy: policy}

	if policy == fieldbus.PolicyNone {
		return profile, nil
	}

	hostname, err := os.Hostname()
	if err != nil {
		hostname = "localhost"
	}

	certFile, keyFile, err := fieldbus.EnsureCertificate(c.cfg.GlobalSettings.CertDir, hostname)
	if err != nil {
		return fieldbus.SecurityProfile{}, err
	}

	profile.Mode = "SignAndEncrypt"
	profile.CertFile = certFile
	profile.KeyFile = keyFile

	return profile, nil
}

func (c *Collector) connectTimeout() time.Duration {
	return time.Duration(c.cfg.GlobalSettings.ConnectionTimeout * float64(time.Second))
}
