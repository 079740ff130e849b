// SPDX-License-Identifier: Apache-2.0

package httpauth

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"

	cb "github.com/golang-auth/go-channelbinding"

	negotiate "github.com/golang-auth/go-negotiate"
)

// endpointBinding derives RFC 5929 tls-server-end-point channel binding
// material from a TLS connection. serverCert is the certificate the server
// presented; a client passes nil and the certificate is taken from the
// connection's peer certificates instead.
func endpointBinding(tlsState *tls.ConnectionState, serverCert *x509.Certificate) (*negotiate.ChannelBinding, error) {
	if serverCert == nil {
		if tlsState == nil || len(tlsState.PeerCertificates) == 0 {
			return nil, fmt.Errorf("TLS connection state carries no server certificate for channel binding")
		}
		serverCert = tlsState.PeerCertificates[0]
	}

	data, err := cb.MakeTLSChannelBinding(*tlsState, serverCert, cb.TLSChannelBindingEndpoint)
	if err != nil {
		return nil, fmt.Errorf("channel binding: %w", err)
	}

	return &negotiate.ChannelBinding{Data: data}, nil
}
