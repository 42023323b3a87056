// Package fieldbus abstracts the OPC UA wire protocol behind a small
// client contract. The collector only sees this contract; the gopcua
// adapter at the bottom of the package is the single place that touches
// the protocol library.
package fieldbus

import (
	"context"
	"time"

	"github.com/globalcorp/edgebridge/internal/model"
)

// Security policy names accepted in configuration and negotiated with
// servers, in descending preference order.
const (
	PolicyBasic256Sha256 = "Basic256Sha256"
	PolicyBasic128Rsa15  = "Basic128Rsa15"
	PolicyNone           = "None"
)

// SecurityProfile is everything needed to open a secured session.
type SecurityProfile struct {
	// Policy is one of the Policy* constants.
	Policy string
	// Mode is the message security mode; ignored when Policy is None.
	Mode string
	// CertFile and KeyFile hold the client certificate (DER) and private
	// key (PEM). Required for any policy other than None.
	CertFile string
	KeyFile  string
	// TrustStorePath optionally points at the server certificates to
	// trust.
	TrustStorePath string
}

// Notification is one data-change delivery: the client handle registered
// at Monitor time, the raw value, the wire status, and the server's
// timestamp.
type Notification struct {
	Handle     uint32
	Value      any
	Status     uint32
	ServerTime time.Time
}

// Subscription is a live data-change subscription on one session.
type Subscription interface {
	// Monitor registers one node for data-change notifications under the
	// given client handle.
	Monitor(ctx context.Context, handle uint32, nodeID string) error

	// Cancel tears the subscription down.
	Cancel(ctx context.Context) error
}

// Client is one authenticated session to one field endpoint.
type Client interface {
	// NamespaceIndex resolves a namespace URI to its index on this server.
	NamespaceIndex(ctx context.Context, uri string) (uint16, error)

	// NamespaceArray reads the server's namespace table. Doubles as the
	// liveness probe; any transport fault surfaces here.
	NamespaceArray(ctx context.Context) ([]string, error)

	// Read reads the current value and status of one node.
	Read(ctx context.Context, nodeID string) (any, uint32, error)

	// Subscribe opens a subscription with the given publishing interval.
	// Notifications are delivered through notify from a client-owned
	// goroutine until the subscription is cancelled.
	Subscribe(ctx context.Context, interval time.Duration, notify func(Notification)) (Subscription, error)

	// Close disconnects the session.
	Close(ctx context.Context) error
}

// Dialer opens sessions and enumerates endpoints. The collector receives
// one; tests substitute a fake.
type Dialer interface {
	// Dial connects to endpoint with the given security profile within
	// timeout.
	Dial(ctx context.Context, endpoint string, profile SecurityProfile, timeout time.Duration) (Client, error)

	// SecurityPolicies enumerates the security policy names offered by the
	// server, via a throwaway unsecured discovery request.
	SecurityPolicies(ctx context.Context, endpoint string) ([]string, error)
}

// Status code severity masks per the OPC UA status word layout.
const (
	severityBad       = 0x80000000
	severityUncertain = 0x40000000
)

// QualityFromStatus maps a wire status code onto the sample quality enum.
func QualityFromStatus(status uint32) model.Quality {
	switch {
	case status&severityBad != 0:
		return model.QualityBad
	case status&severityUncertain != 0:
		return model.QualityUncertain
	default:
		return model.QualityGood
	}
}
