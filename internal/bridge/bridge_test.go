package bridge_test

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/influxdata/influxdb-client-go/v2/api/write"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/globalcorp/edgebridge/internal/bridge"
	"github.com/globalcorp/edgebridge/internal/buffer"
	"github.com/globalcorp/edgebridge/internal/config"
	"github.com/globalcorp/edgebridge/internal/fieldbus"
)

type fakeSubscription struct {
	client *fakeClient
}

func (s *fakeSubscription) Monitor(_ context.Context, handle uint32, nodeID string) error {
	s.client.mu.Lock()
	defer s.client.mu.Unlock()
	s.client.monitored[handle] = nodeID

	return nil
}

func (s *fakeSubscription) Cancel(context.Context) error { return nil }

type fakeClient struct {
	mu        sync.Mutex
	monitored map[uint32]string
	reads     map[string]any
	notify    func(fieldbus.Notification)
}

func newFakeClient() *fakeClient {
	return &fakeClient{
		monitored: make(map[uint32]string),
		reads:     make(map[string]any),
	}
}

func (c *fakeClient) NamespaceIndex(context.Context, string) (uint16, error) { return 2, nil }

func (c *fakeClient) NamespaceArray(context.Context) ([]string, error) {
	return []string{"http://opcfoundation.org/UA/"}, nil
}

func (c *fakeClient) Read(_ context.Context, nodeID string) (any, uint32, error) {
	if v, ok := c.reads[nodeID]; ok {
		return v, 0, nil
	}

	return nil, 0, errors.New("BadNodeIdUnknown")
}

func (c *fakeClient) Subscribe(_ context.Context, _ time.Duration, notify func(fieldbus.Notification)) (fieldbus.Subscription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.notify = notify

	return &fakeSubscription{client: c}, nil
}

func (c *fakeClient) Close(context.Context) error { return nil }

func (c *fakeClient) send(n fieldbus.Notification) {
	c.mu.Lock()
	notify := c.notify
	c.mu.Unlock()

	notify(n)
}

func (c *fakeClient) handleFor(nodeID string) uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()

	for handle, id := range c.monitored {
		if id == nodeID {
			return handle
		}
	}

	return 0
}

type fakeDialer struct {
	client *fakeClient
}

func (d *fakeDialer) Dial(context.Context, string, fieldbus.SecurityProfile, time.Duration) (fieldbus.Client, error) {
	return d.client, nil
}

func (d *fakeDialer) SecurityPolicies(context.Context, string) ([]string, error) {
	return []string{"None"}, nil
}

type fakeWriter struct {
	mu      sync.Mutex
	pingErr error
	points  []*write.Point
}

func (w *fakeWriter) Ping(context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	return w.pingErr
}

func (w *fakeWriter) WritePoints(_ context.Context, points []*write.Point) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.points = append(w.points, points...)

	return nil
}

func (w *fakeWriter) Close() {}

func (w *fakeWriter) byMeasurement(name string) []*write.Point {
	w.mu.Lock()
	defer w.mu.Unlock()

	var out []*write.Point

	for _, p := range w.points {
		if p.Name() == name {
			out = append(out, p)
		}
	}

	return out
}

func testConfig() *config.Config {
	return &config.Config{
		EnterpriseName: "GlobalCorp",
		Sites: []config.Site{{
			SiteName:            "Plant-North",
			DefaultSamplingRate: 1000,
			Assets: []config.Asset{{
				AssetName:      "Press01",
				OPCUAEndpoint:  "opc.tcp://press01:4840",
				SecurityPolicy: "None",
				NodeMapping: map[string]string{
					"MotorSpeed":   "1001",
					"MachineState": "1003",
				},
				OEE: &config.OEEConfig{
					AvailabilityTags: []string{"MachineState"},
				},
				Metadata: map[string]string{"area": "Stamping", "line": "Line-3"},
			}},
		}},
		GlobalSettings: config.GlobalSettings{
			ConnectionTimeout: 1,
			RetryAttempts:     1,
			RetryDelay:        0.001,
			SendInterval:      1,
			BufferPath:        "edge_buffer.db",
		},
	}
}

func openStore(t *testing.T) *buffer.Store {
	t.Helper()

	store, err := buffer.Open(filepath.Join(t.TempDir(), "buffer.db"), 64<<20)
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	return store
}

func startBridge(t *testing.T, cfg *config.Config, store *buffer.Store, writer *fakeWriter, dialer *fakeDialer) context.CancelFunc {
	t.Helper()

	b, err := bridge.New(cfg, store, writer, dialer, "opcua")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)

	go func() { done <- b.Run(ctx) }()

	t.Cleanup(func() {
		cancel()

		select {
		case err := <-done:
			assert.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("bridge did not stop")
		}
	})

	return cancel
}

func TestBridge_ShipsCollectedTelemetry(t *testing.T) {
	t.Parallel()

	client := newFakeClient()
	client.reads["ns=2;i=1001"] = 1480.0
	client.reads["ns=2;i=1003"] = "running"

	writer := &fakeWriter{}
	store := openStore(t)

	startBridge(t, testConfig(), store, writer, &fakeDialer{client: client})

	// The initial read-out primes both tags; the pump ships them on its
	// next cycle.
	require.Eventually(t, func() bool {
		return len(writer.byMeasurement("opcua_telemetry")) >= 2
	}, 5*time.Second, 20*time.Millisecond)

	var tags []string
	for _, p := range writer.byMeasurement("opcua_telemetry") {
		for _, tag := range p.TagList() {
			if tag.Key == "tag" {
				tags = append(tags, tag.Value)
			}
		}
	}

	assert.Contains(t, tags, "MotorSpeed")
	assert.Contains(t, tags, "MachineState")
}

func TestBridge_EmitsAnalyticsForConfiguredAsset(t *testing.T) {
	t.Parallel()

	client := newFakeClient()
	client.reads["ns=2;i=1003"] = "running"

	writer := &fakeWriter{}
	store := openStore(t)

	startBridge(t, testConfig(), store, writer, &fakeDialer{client: client})

	require.Eventually(t, func() bool {
		return client.handleFor("ns=2;i=1003") != 0
	}, 2*time.Second, 10*time.Millisecond)

	// Fill the availability window past the minimum; the processor
	// starts emitting once it holds more than ten points.
	handle := client.handleFor("ns=2;i=1003")
	for range 12 {
		client.send(fieldbus.Notification{Handle: handle, Value: "running", Status: 0})
	}

	require.Eventually(t, func() bool {
		return len(writer.byMeasurement("opcua_analytics")) > 0
	}, 5*time.Second, 20*time.Millisecond)

	point := writer.byMeasurement("opcua_analytics")[0]

	var analyticsType, assetName string

	for _, tag := range point.TagList() {
		switch tag.Key {
		case "analytics_type":
			analyticsType = tag.Value
		case "asset_name":
			assetName = tag.Value
		}
	}

	assert.Equal(t, "oee", analyticsType)
	assert.Equal(t, "Press01", assetName)

	fields := make(map[string]any)
	for _, f := range point.FieldList() {
		fields[f.Key] = f.Value
	}

	// Every sample reported the machine running.
	assert.InDelta(t, 100.0, fields["availability"].(float64), 1e-9)
}

func TestBridge_HealthReportsDegradedOnRemoteFailure(t *testing.T) {
	t.Parallel()

	writer := &fakeWriter{pingErr: errors.New("connection refused")}
	store := openStore(t)

	b, err := bridge.New(testConfig(), store, writer, &fakeDialer{client: newFakeClient()}, "opcua")
	require.NoError(t, err)

	h := b.Health(context.Background())

	assert.Equal(t, bridge.StateDegraded, h.Overall)
	assert.Equal(t, bridge.StateUnhealthy, h.Remote)
	assert.Equal(t, bridge.StateHealthy, h.Buffer)
}

func TestBridge_HealthHealthyWhenAllComponentsUp(t *testing.T) {
	t.Parallel()

	writer := &fakeWriter{}
	store := openStore(t)

	b, err := bridge.New(testConfig(), store, writer, &fakeDialer{client: newFakeClient()}, "opcua")
	require.NoError(t, err)

	h := b.Health(context.Background())

	assert.Equal(t, bridge.StateHealthy, h.Overall)
	assert.Equal(t, bridge.StateHealthy, h.Remote)
}

func TestBridge_StopsCleanlyOnCancel(t *testing.T) {
	t.Parallel()

	client := newFakeClient()
	client.reads["ns=2;i=1001"] = 1.0
	client.reads["ns=2;i=1003"] = "running"

	writer := &fakeWriter{}
	store := openStore(t)

	cancel := startBridge(t, testConfig(), store, writer, &fakeDialer{client: client})
	cancel()
	// The cleanup registered by startBridge asserts the clean exit.
}
