package fieldbus

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"fmt"
	"log/slog"
	"math/big"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"time"
)

const (
	clientCertName = "client_cert.der"
	clientKeyName  = "client_key.pem"

	certKeyBits  = 2048
	certValidity = 365 * 24 * time.Hour
)

// EnsureCertificate returns the paths of the client certificate and key
// under certDir, generating a self-signed pair on first use. hostname is
// added to the SANs alongside localhost and the loopback address.
func EnsureCertificate(certDir, hostname string) (certFile, keyFile string, err error) {
	certFile = filepath.Join(certDir, clientCertName)
	keyFile = filepath.Join(certDir, clientKeyName)

	if fileExists(certFile) && fileExists(keyFile) {
		return certFile, keyFile, nil
	}

	slog.Info("generating self-signed client certificate", "dir", certDir)

	err = os.MkdirAll(certDir, 0o700)
	if err != nil {
		return "", "", fmt.Errorf("create cert dir: %w", err)
	}

	key, err := rsa.GenerateKey(rand.Reader, certKeyBits)
	if err != nil {
		return "", "", fmt.Errorf("generate rsa key: %w", err)
	}

	serial, err := rand.Int(rand.Reader, new(big.Int).Lsh(big.NewInt(1), 128))
	if err != nil {
		return "", "", fmt.Errorf("generate serial: %w", err)
	}

	applicationURI := "urn:" + hostname + ":edgebridge:client"

	template := x509.Certificate{
		SerialNumber: serial,
		Subject: pkix.Name{
			CommonName:   "edgebridge-client",
			Organization: []string{"GlobalCorp"},
		},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(certValidity),
		KeyUsage:              x509.KeyUsageDigitalSignature | x509.KeyUsageKeyEncipherment | x509.KeyUsageDataEncipherment,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageClientAuth, x509.ExtKeyUsageServerAuth},
		BasicConstraintsValid: true,
		DNSNames:              sanNames(hostname),
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
		URIs:                  nil,
	}

	// The application URI SAN is matched against the session's
	// ApplicationDescription by strict servers.
	if uri, parseErr := url.Parse(applicationURI); parseErr == nil {
		template.URIs = append(template.URIs, uri)
	}

	der, err := x509.CreateCertificate(rand.Reader, &template, &template, &key.PublicKey, key)
	if err != nil {
		return "", "", fmt.Errorf("create certificate: %w", err)
	}

	err = os.WriteFile(certFile, der, 0o600)
	if err != nil {
		return "", "", fmt.Errorf("write certificate: %w", err)
	}

	keyPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "RSA PRIVATE KEY",
		Bytes: x509.MarshalPKCS1PrivateKey(key),
	})

	err = os.WriteFile(keyFile, keyPEM, 0o600)
	if err != nil {
		return "", "", fmt.Errorf("write private key: %w", err)
	}

	return certFile, keyFile, nil
}

func sanNames(hostname string) []string {
	names := []string{"localhost"}
	if hostname != "" && hostname != "localhost" {
		names = append(names, hostname)
	}

	return names
}

func fileExists(path string) bool {
	info, err := os.Stat(path)

	return err == nil && !info.IsDir()
}
