package fieldbus_test

import (
	"context"
	"crypto/x509"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/globalcorp/edgebridge/internal/fieldbus"
	"github.com/globalcorp/edgebridge/internal/model"
)

func TestResolveNodeID(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		raw  string
		want string
	}{
		{name: "qualified passes through", raw: "ns=4;i=1001", want: "ns=4;i=1001"},
		{name: "qualified string passes through", raw: "ns=2;s=Press01.Vib", want: "ns=2;s=Press01.Vib"},
		{name: "bare numeric", raw: "1001", want: "ns=2;i=1001"},
		{name: "bare string", raw: "MotorSpeed", want: "ns=2;s=MotorSpeed"},
		{name: "mixed alphanumeric is a string id", raw: "1001a", want: "ns=2;s=1001a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, fieldbus.ResolveNodeID(2, tt.raw))
		})
	}
}

type fakeDialer struct {
	policies []string
	err      error
}

func (f *fakeDialer) SecurityPolicies(context.Context, string) ([]string, error) {
	return f.policies, f.err
}

func (f *fakeDialer) Dial(context.Context, string, fieldbus.SecurityProfile, time.Duration) (fieldbus.Client, error) {
	return nil, errors.New("not dialable")
}

func TestNegotiatePolicy_PrefersStrongest(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	policy, err := fieldbus.NegotiatePolicy(ctx, &fakeDialer{
		policies: []string{"None", "Basic128Rsa15", "Basic256Sha256"},
	}, "opc.tcp://press01:4840")
	require.NoError(t, err)
	assert.Equal(t, fieldbus.PolicyBasic256Sha256, policy)

	policy, err = fieldbus.NegotiatePolicy(ctx, &fakeDialer{
		policies: []string{"None", "Basic128Rsa15"},
	}, "opc.tcp://press01:4840")
	require.NoError(t, err)
	assert.Equal(t, fieldbus.PolicyBasic128Rsa15, policy)

	policy, err = fieldbus.NegotiatePolicy(ctx, &fakeDialer{
		policies: []string{"None"},
	}, "opc.tcp://press01:4840")
	require.NoError(t, err)
	assert.Equal(t, fieldbus.PolicyNone, policy)
}

func TestNegotiatePolicy_Errors(t *testing.T) {
	t.Parallel()

	ctx := context.Background()

	_, err := fieldbus.NegotiatePolicy(ctx, &fakeDialer{err: errors.New("refused")}, "opc.tcp://x")
	require.Error(t, err)

	_, err = fieldbus.NegotiatePolicy(ctx, &fakeDialer{policies: []string{"Aes256_Sha256_RsaPss"}}, "opc.tcp://x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no supported security policy")
}

func TestEnsureCertificate_GeneratesAndReuses(t *testing.T) {
	t.Parallel()

	dir := filepath.Join(t.TempDir(), "certs")

	certFile, keyFile, err := fieldbus.EnsureCertificate(dir, "edge-gw-01")
	require.NoError(t, err)

	der, err := os.ReadFile(certFile)
	require.NoError(t, err)

	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)
	assert.Equal(t, "edgebridge-client", cert.Subject.CommonName)
	assert.Contains(t, cert.DNSNames, "localhost")
	assert.Contains(t, cert.DNSNames, "edge-gw-01")
	require.Len(t, cert.IPAddresses, 1)
	assert.WithinDuration(t, time.Now().Add(365*24*time.Hour), cert.NotAfter, 2*time.Hour)

	keyInfo, err := os.Stat(keyFile)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), keyInfo.Mode().Perm())

	// A second call must reuse, not regenerate.
	certFile2, _, err := fieldbus.EnsureCertificate(dir, "edge-gw-01")
	require.NoError(t, err)

	der2, err := os.ReadFile(certFile2)
	require.NoError(t, err)
	assert.Equal(t, der, der2)
}

func TestQualityFromStatus(t *testing.T) {
	t.Parallel()

	assert.Equal(t, model.QualityGood, fieldbus.QualityFromStatus(0))
	assert.Equal(t, model.QualityBad, fieldbus.QualityFromStatus(0x80000000))
	assert.Equal(t, model.QualityUncertain, fieldbus.QualityFromStatus(0x40000000))
	assert.Equal(t, model.QualityBad, fieldbus.QualityFromStatus(0x80340000))
}
