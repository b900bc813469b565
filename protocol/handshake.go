package protocol

import (
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"strconv"
)

// SwitchingProtocolsMarker is the status text of a successful upgrade response
const SwitchingProtocolsMarker = "101 Switching Protocols"

const (
	webSocketVersion = "13"
	keyLength        = 16
)

var headerTerminator = []byte("\r\n\r\n")

// BuildHandshake creates the HTTP upgrade request for host:port/path and
// returns it with the generated Sec-WebSocket-Key.
func BuildHandshake(host string, port int, path string) ([]byte, string, error) {
	if path == "" {
		path = "/"
	}

	raw := make([]byte, keyLength)
	if _, err := rand.Read(raw); err != nil {
		return nil, "", newError(KindHandshake, "key", err)
	}
	key := base64.StdEncoding.EncodeToString(raw)

	var b bytes.Buffer
	fmt.Fprintf(&b, "GET %s HTTP/1.1\r\n", path)
	fmt.Fprintf(&b, "Host: %s\r\n", net.JoinHostPort(host, strconv.Itoa(port)))
	b.WriteString("Upgrade: websocket\r\n")
	b.WriteString("Connection: Upgrade\r\n")
	fmt.Fprintf(&b, "Sec-WebSocket-Key: %s\r\n", key)
	fmt.Fprintf(&b, "Sec-WebSocket-Version: %s\r\n", webSocketVersion)
	b.WriteString("\r\n")

	return b.Bytes(), key, nil
}

// ValidateHandshake checks the upgrade response. It is a textual check for
// the switching protocols status; headers and the accept key are not verified.
func ValidateHandshake(response []byte) error {
	if len(response) == 0 {
		return newError(KindHandshake, "validate", errors.New("empty response"))
	}
	if !bytes.Contains(response, []byte(SwitchingProtocolsMarker)) {
		return newError(KindHandshake, "validate", fmt.Errorf("unexpected response: %q", statusLine(response)))
	}
	return nil
}

// splitHandshake returns the bytes following the response headers, if the
// headers were terminated within response.
func splitHandshake(response []byte) []byte {
	idx := bytes.Index(response, headerTerminator)
	if idx == -1 {
		return nil
	}
	return response[idx+len(headerTerminator):]
}

func statusLine(response []byte) []byte {
	if idx := bytes.IndexByte(response, '\n'); idx != -1 {
		response = response[:idx]
	}
	return bytes.TrimSpace(response)
}
