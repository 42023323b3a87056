package fieldbus

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/gopcua/opcua"
	"github.com/gopcua/opcua/ua"
)

// OPCUADialer is the production Dialer backed by gopcua.
type OPCUADialer struct{}

// SecurityPolicies runs unsecured endpoint discovery and returns the
// short policy names the server offers.
func (OPCUADialer) SecurityPolicies(ctx context.Context, endpoint string) ([]string, error) {
	endpoints, err := opcua.GetEndpoints(ctx, endpoint)
	if err != nil {
		return nil, fmt.Errorf("get endpoints: %w", err)
	}

	seen := make(map[string]bool)

	var policies []string

	for _, ep := range endpoints {
		name := strings.TrimPrefix(ep.SecurityPolicyURI, ua.SecurityPolicyURIPrefix)
		if !seen[name] {
			seen[name] = true
			policies = append(policies, name)
		}
	}

	return policies, nil
}

// Dial opens and connects a session.
func (OPCUADialer) Dial(ctx context.Context, endpoint string, profile SecurityProfile, timeout time.Duration) (Client, error) {
	opts := []opcua.Option{
		opcua.DialTimeout(timeout),
		opcua.RequestTimeout(timeout),
		opcua.AuthAnonymous(),
	}

	if profile.Policy == "" || profile.Policy == PolicyNone {
		opts = append(opts,
			opcua.SecurityPolicy(PolicyNone),
			opcua.SecurityMode(ua.MessageSecurityModeNone),
		)
	} else {
		mode := profile.Mode
		if mode == "" {
			mode = "SignAndEncrypt"
		}

		opts = append(opts,
			opcua.SecurityPolicy(profile.Policy),
			opcua.SecurityModeString(mode),
			opcua.CertificateFile(profile.CertFile),
			opcua.PrivateKeyFile(profile.KeyFile),
		)
	}

	client, err := opcua.NewClient(endpoint, opts...)
	if err != nil {
		return nil, fmt.Errorf("build client for %s: %w", endpoint, err)
	}

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	err = client.Connect(dialCtx)
	if err != nil {
		return nil, fmt.Errorf("connect %s: %w", endpoint, err)
	}

	return &opcuaClient{client: client}, nil
}

type opcuaClient struct {
	client *opcua.Client
}

func (c *opcuaClient) NamespaceIndex(ctx context.Context, uri string) (uint16, error) {
	idx, err := c.client.FindNamespace(ctx, uri)
	if err != nil {
		return 0, fmt.Errorf("resolve namespace %s: %w", uri, err)
	}

	return idx, nil
}

func (c *opcuaClient) NamespaceArray(ctx context.Context) ([]string, error) {
	namespaces, err := c.client.NamespaceArray(ctx)
	if err != nil {
		return nil, fmt.Errorf("read namespace array: %w", err)
	}

	return namespaces, nil
}

func (c *opcuaClient) Read(ctx context.Context, nodeID string) (any, uint32, error) {
	id, err := ua.ParseNodeID(nodeID)
	if err != nil {
		return nil, 0, fmt.Errorf("parse node id %q: %w", nodeID, err)
	}

	resp, err := c.client.Read(ctx, &ua.ReadRequest{
		NodesToRead: []*ua.ReadValueID{
			{NodeID: id, AttributeID: ua.AttributeIDValue},
		},
		TimestampsToReturn: ua.TimestampsToReturnServer,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("read %s: %w", nodeID, err)
	}

	if len(resp.Results) == 0 {
		return nil, 0, fmt.Errorf("read %s: empty result set", nodeID)
	}

	dv := resp.Results[0]

	var value any
	if dv.Value != nil {
		value = dv.Value.Value()
	}

	return value, uint32(dv.Status), nil
}

func (c *opcuaClient) Subscribe(ctx context.Context, interval time.Duration, notify func(Notification)) (Subscription, error) {
	notifyCh := make(chan *opcua.PublishNotificationData, 64)

	sub, err := c.client.Subscribe(ctx, &opcua.SubscriptionParameters{
		Interval: interval,
	}, notifyCh)
	if err != nil {
		return nil, fmt.Errorf("create subscription: %w", err)
	}

	done := make(chan struct{})

	go pumpNotifications(notifyCh, done, notify)

	return &opcuaSubscription{sub: sub, done: done}, nil
}

// pumpNotifications forwards publish payloads to the collector callback
// until the subscription is cancelled.
func pumpNotifications(notifyCh <-chan *opcua.PublishNotificationData, done <-chan struct{}, notify func(Notification)) {
	for {
		select {
		case <-done:
			return
		case msg, ok := <-notifyCh:
			if !ok {
				return
			}

			if msg.Error != nil {
				continue
			}

			payload, ok := msg.Value.(*ua.DataChangeNotification)
			if !ok {
				continue
			}

			for _, item := range payload.MonitoredItems {
				if item == nil || item.Value == nil {
					continue
				}

				n := Notification{
					Handle:     item.ClientHandle,
					Status:     uint32(item.Value.Status),
					ServerTime: item.Value.ServerTimestamp,
				}

				if item.Value.Value != nil {
					n.Value = item.Value.Value.Value()
				}

				notify(n)
			}
		}
	}
}

func (c *opcuaClient) Close(ctx context.Context) error {
	return c.client.Close(ctx)
}

type opcuaSubscription struct {
	sub  *opcua.Subscription
	done chan struct{}
}

func (s *opcuaSubscription) Monitor(ctx context.Context, handle uint32, nodeID string) error {
	id, err := ua.ParseNodeID(nodeID)
	if err != nil {
		return fmt.Errorf("parse node id %q: %w", nodeID, err)
	}

	req := opcua.NewMonitoredItemCreateRequestWithDefaults(id, ua.AttributeIDValue, handle)

	resp, err := s.sub.Monitor(ctx, ua.TimestampsToReturnBoth, req)
	if err != nil {
		return fmt.Errorf("monitor %s: %w", nodeID, err)
	}

	if len(resp.Results) > 0 && resp.Results[0].StatusCode != ua.StatusOK {
		return fmt.Errorf("monitor %s: status %v", nodeID, resp.Results[0].StatusCode)
	}

	return nil
}

func (s *opcuaSubscription) Cancel(ctx context.Context) error {
	close(s.done)

	return s.sub.Cancel(ctx)
}
