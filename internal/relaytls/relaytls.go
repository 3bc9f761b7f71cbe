// Package relaytls implements the TLS accept stage: it wraps a raw accepted
// socket in a TLS server handshake, using a single PKCS#12 identity file for
// the server certificate and private key.
package relaytls

import (
	"context"
	"crypto/tls"
	"fmt"
	"net"
	"os"

	"software.sslmate.com/src/go-pkcs12"
)

// Stage holds the parsed server identity and wraps plain connections.
type Stage struct {
	config *tls.Config
}

// LoadIdentity reads a PKCS#12 file (cert + private key, optionally a CA
// chain) protected by password, building a Stage ready to accept TLS
// connections.
func LoadIdentity(path, password string) (*Stage, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("relaytls: read identity file: %w", err)
	}

	key, cert, caCerts, err := pkcs12.DecodeChain(data, password)
	if err != nil {
		return nil, fmt.Errorf("relaytls: decode pkcs12 identity: %w", err)
	}

	tlsCert := tls.Certificate{
		Certificate: [][]byte{cert.Raw},
		PrivateKey:  key,
		Leaf:        cert,
	}
	for _, ca := range caCerts {
		tlsCert.Certificate = append(tlsCert.Certificate, ca.Raw)
	}

	return &Stage{
		config: &tls.Config{
			Certificates: []tls.Certificate{tlsCert},
			MinVersion:   tls.VersionTLS12,
		},
	}, nil
}

// Accept wraps an already-accepted raw connection in a TLS server and runs
// the handshake to completion before returning, so a failed handshake never
// reaches the caller as an ordinary post-login connection error. The caller
// is responsible for closing the returned conn; it supersedes raw for all
// further I/O.
func (s *Stage) Accept(ctx context.Context, raw net.Conn) (net.Conn, error) {
	conn := tls.Server(raw, s.config)
	if err := conn.HandshakeContext(ctx); err != nil {
		return nil, fmt.Errorf("relaytls: handshake: %w", err)
	}
	return conn, nil
}
