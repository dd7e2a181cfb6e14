// Command healthcheck exits 0 when the local campaignwatch API reports itself
// healthy, database included. It is the container HEALTHCHECK command.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"time"
)

const (
	defaultAddr = "127.0.0.1:8080"
	timeout     = 2 * time.Second
	// maxBody bounds how much of a misbehaving response is read.
	maxBody = 4 << 10
)

// healthBody mirrors the fields of the API health response that matter here.
type healthBody struct {
	Status   string `json:"status"`
	Database string `json:"database"`
}

func main() {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	addr := normalizeAddr(os.Getenv("CAMPAIGNWATCH_LISTEN_ADDR"))
	err := check(ctx, &http.Client{Timeout: timeout}, addr)
	cancel()

	if err != nil {
		fmt.Fprintln(os.Stderr, "unhealthy:", err)
		os.Exit(1)
	}
}

// check queries the health endpoint at addr. A non-200 answer, an unreadable
// body or a status other than "ok" is an error.
func check(ctx context.Context, client *http.Client, addr string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("http://%s/api/v1/health", addr), nil)
	if err != nil {
		return err
	}

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	var body healthBody
	decodeErr := json.NewDecoder(io.LimitReader(resp.Body, maxBody)).Decode(&body)

	if resp.StatusCode != http.StatusOK {
		if decodeErr == nil && body.Database != "" && body.Database != "ok" {
			return fmt.Errorf("HTTP %d: database %s", resp.StatusCode, body.Database)
		}
		return fmt.Errorf("HTTP %d", resp.StatusCode)
	}
	if decodeErr != nil {
		return fmt.Errorf("decode health response: %w", decodeErr)
	}
	if body.Status != "ok" {
		return fmt.Errorf("status %q", body.Status)
	}
	return nil
}

// normalizeAddr maps a listen address to one the check can dial: bind-all
// hosts become loopback, and unparseable input falls back to the default.
func normalizeAddr(raw string) string {
	if raw == "" {
		return defaultAddr
	}

	host, port, err := net.SplitHostPort(raw)
	if err != nil {
		return defaultAddr
	}

	if host == "" || host == "0.0.0.0" || host == "::" {
		host = "127.0.0.1"
	}

	return net.JoinHostPort(host, port)
}
