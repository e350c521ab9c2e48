// Package tls secures the listener of the DAP server with TLS, and with
// client certificate verification when a client CA is configured.
package tls

import (
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"os"
)

// ListenerConfig names the PEM files used to secure a listener.
type ListenerConfig struct {
	CertFile string
	KeyFile  string
	// ClientCAFile, when set, requires clients to present a certificate
	// signed by one of the CAs it contains.
	ClientCAFile string
}

// Enabled reports whether c asks for TLS.
func (c ListenerConfig) Enabled() bool {
	return c.CertFile != "" || c.KeyFile != "" || c.ClientCAFile != ""
}

// LoadCertPool reads the PEM encoded certificates in caCrtPath.
func LoadCertPool(caCrtPath string) (*x509.CertPool, error) {
	pem, err := os.ReadFile(caCrtPath)
	if err != nil {
		return nil, err
	}
	pool := x509.NewCertPool()
	if !pool.AppendCertsFromPEM(pem) {
		return nil, fmt.Errorf("no certificates found in %s", caCrtPath)
	}
	return pool, nil
}

func (c ListenerConfig) serverConfig() (*tls.Config, error) {
	if c.CertFile == "" || c.KeyFile == "" {
		return nil, errors.New("TLS requires both a certificate and a key")
	}
	cert, err := tls.LoadX509KeyPair(c.CertFile, c.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load x509 key pair from (%s, %s): %v", c.CertFile, c.KeyFile, err)
	}
	cfg := &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}
	if c.ClientCAFile != "" {
		pool, err := LoadCertPool(c.ClientCAFile)
		if err != nil {
			return nil, fmt.Errorf("load cert pool from (%s): %v", c.ClientCAFile, err)
		}
		cfg.ClientCAs = pool
		cfg.ClientAuth = tls.RequireAndVerifyClientCert
	}
	return cfg, nil
}

// WrapListener returns l unchanged when c is not enabled, a TLS listener
// otherwise.
func WrapListener(l net.Listener, c ListenerConfig) (net.Listener, error) {
	if !c.Enabled() {
		return l, nil
	}
	cfg, err := c.serverConfig()
	if err != nil {
		return nil, err
	}
	return tls.NewListener(l, cfg), nil
}

// Dial connects to a TLS listener at addr verifying its certificate
// against serverCAPath. When client is not nil its certificate is
// presented to the server.
func Dial(addr, serverCAPath string, client *ListenerConfig) (net.Conn, error) {
	pool, err := LoadCertPool(serverCAPath)
	if err != nil {
		return nil, err
	}
	cfg := &tls.Config{RootCAs: pool, MinVersion: tls.VersionTLS12}
	if client != nil {
		cert, err := tls.LoadX509KeyPair(client.CertFile, client.KeyFile)
		if err != nil {
			return nil, err
		}
		cfg.Certificates = []tls.Certificate{cert}
	}
	conn, err := tls.Dial("tcp", addr, cfg)
	if err != nil {
		return nil, err
	}
	return conn, nil
}
