package utils

import (
	"net"
	"net/url"
)

func IsValidURL(str string) bool {
	_, err := url.ParseRequestURI(str)
	return err == nil
}

// IsValidPeerAddress accepts websocket urls and plain host:port addresses.
func IsValidPeerAddress(str string) bool {
	if u, err := url.Parse(str); err == nil && (u.Scheme == "ws" || u.Scheme == "wss") {
		return u.Host != ""
	}
	host, port, err := net.SplitHostPort(str)
	return err == nil && host != "" && port != ""
}
