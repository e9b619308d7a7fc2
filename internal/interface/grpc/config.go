package grpc_interface

import (
	"crypto/tls"
	"fmt"
)

type Config struct {
	Port uint32
	// TLSCert and TLSKey are the paths of the PEM certificate and key. The
	// service is served in clear over h2c when both are empty.
	TLSCert string
	TLSKey  string
}

func (c Config) Validate() error {
	if (c.TLSCert == "") != (c.TLSKey == "") {
		return fmt.Errorf("tls cert and key must be set together")
	}
	if c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	return nil
}

func (c Config) insecure() bool {
	return c.TLSCert == ""
}

func (c Config) address() string {
	return fmt.Sprintf(":%d", c.Port)
}

func (c Config) tlsConfig() (*tls.Config, error) {
	if c.insecure() {
		return nil, nil
	}
	cert, err := tls.LoadX509KeyPair(c.TLSCert, c.TLSKey)
	if err != nil {
		return nil, fmt.Errorf("failed to load tls key pair: %s", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
		NextProtos:   []string{"h2", "http/1.1"},
	}, nil
}
