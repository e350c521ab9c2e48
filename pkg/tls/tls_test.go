package tls

import (
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/pem"
	"io"
	"math/big"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// writeCert writes a self signed certificate for 127.0.0.1 and its key.
func writeCert(t *testing.T, dir, name string) ListenerConfig {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	if err != nil {
		t.Fatal(err)
	}
	tmpl := &x509.Certificate{
		SerialNumber:          big.NewInt(time.Now().UnixNano()),
		Subject:               pkix.Name{CommonName: name},
		NotBefore:             time.Now().Add(-time.Hour),
		NotAfter:              time.Now().Add(time.Hour),
		IsCA:                  true,
		BasicConstraintsValid: true,
		KeyUsage:              x509.KeyUsageCertSign | x509.KeyUsageDigitalSignature,
		ExtKeyUsage:           []x509.ExtKeyUsage{x509.ExtKeyUsageServerAuth, x509.ExtKeyUsageClientAuth},
		IPAddresses:           []net.IP{net.ParseIP("127.0.0.1")},
	}
	der, err := x509.CreateCertificate(rand.Reader, tmpl, tmpl, &key.PublicKey, key)
	if err != nil {
		t.Fatal(err)
	}
	keyDER, err := x509.MarshalECPrivateKey(key)
	if err != nil {
		t.Fatal(err)
	}
	c := ListenerConfig{
		CertFile: filepath.Join(dir, name+".crt"),
		KeyFile:  filepath.Join(dir, name+".key"),
	}
	if err := os.WriteFile(c.CertFile, pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der}), 0600); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(c.KeyFile, pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: keyDER}), 0600); err != nil {
		t.Fatal(err)
	}
	return c
}

// echoOnce accepts one connection on l and writes back what it reads.
func echoOnce(l net.Listener) <-chan error {
	errc := make(chan error, 1)
	go func() {
		conn, err := l.Accept()
		if err != nil {
			errc <- err
			return
		}
		defer conn.Close()
		buf := make([]byte, 4)
		if _, err := io.ReadFull(conn, buf); err != nil {
			errc <- err
			return
		}
		_, err = conn.Write(buf)
		errc <- err
	}()
	return errc
}

func listen(t *testing.T, c ListenerConfig) net.Listener {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	wl, err := WrapListener(l, c)
	if err != nil {
		l.Close()
		t.Fatal(err)
	}
	t.Cleanup(func() { wl.Close() })
	return wl
}

func roundTrip(t *testing.T, conn net.Conn) {
	t.Helper()
	defer conn.Close()
	if _, err := conn.Write([]byte("ping")); err != nil {
		t.Fatal(err)
	}
	buf := make([]byte, 4)
	if _, err := io.ReadFull(conn, buf); err != nil {
		t.Fatal(err)
	}
	if string(buf) != "ping" {
		t.Errorf("got %q", buf)
	}
}

func TestWrapListenerDisabled(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	wl, err := WrapListener(l, ListenerConfig{})
	if err != nil || wl != l {
		t.Errorf("got %v %v", wl, err)
	}
}

func TestWrapListenerIncomplete(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatal(err)
	}
	defer l.Close()
	if _, err := WrapListener(l, ListenerConfig{CertFile: "server.crt"}); err == nil {
		t.Error("accepted a certificate without a key")
	}
}

func TestServerTLS(t *testing.T) {
	server := writeCert(t, t.TempDir(), "server")
	l := listen(t, server)
	errc := echoOnce(l)

	conn, err := Dial(l.Addr().String(), server.CertFile, nil)
	if err != nil {
		t.Fatal(err)
	}
	roundTrip(t, conn)
	if err := <-errc; err != nil {
		t.Fatal(err)
	}
}

func TestMutualTLS(t *testing.T) {
	dir := t.TempDir()
	server := writeCert(t, dir, "server")
	client := writeCert(t, dir, "client")
	server.ClientCAFile = client.CertFile
	l := listen(t, server)

	errc := echoOnce(l)
	conn, err := Dial(l.Addr().String(), server.CertFile, &client)
	if err != nil {
		t.Fatal(err)
	}
	roundTrip(t, conn)
	if err := <-errc; err != nil {
		t.Fatal(err)
	}

	errc = echoOnce(l)
	conn, err = Dial(l.Addr().String(), server.CertFile, nil)
	if err == nil {
		// With TLS 1.3 the client learns about the rejected handshake on
		// its first read.
		conn.Write([]byte("ping"))
		_, err = io.ReadFull(conn, make([]byte, 4))
		conn.Close()
	}
	if err == nil {
		t.Error("connection without a client certificate accepted")
	}
	if err := <-errc; err == nil {
		t.Error("server accepted a client without a certificate")
	}
}
