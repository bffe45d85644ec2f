package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/doyensec/safeurl"
)

// WebhookSink posts each notification as JSON to an external endpoint.
type WebhookSink struct {
	url    string
	client *http.Client
}

type WebhookOption func(*webhookConfig)

type webhookConfig struct {
	allowPrivate bool
	timeout      time.Duration
}

// AllowPrivateNetworks disables the private address guard.
func AllowPrivateNetworks() WebhookOption {
	return func(c *webhookConfig) { c.allowPrivate = true }
}

// NewWebhookSink validates rawURL and builds a client that refuses to connect to
// private or loopback addresses unless AllowPrivateNetworks is given.
func NewWebhookSink(rawURL string, opts ...WebhookOption) (*WebhookSink, error) {
	cfg := webhookConfig{timeout: 10 * time.Second}
	for _, opt := range opts {
		opt(&cfg)
	}

	if err := validateExternalURL(rawURL, cfg.allowPrivate); err != nil {
		return nil, fmt.Errorf("webhook URL rejected: %w", err)
	}

	client := &http.Client{Timeout: cfg.timeout}
	if !cfg.allowPrivate {
		// Resolved addresses are checked again at dial time, so DNS rebinding cannot
		// reach an internal host.
		guarded := safeurl.GetConfigBuilder().
			SetTimeout(cfg.timeout).
			SetAllowedSchemes("http", "https").
			SetAllowedPorts(80, 443).
			Build()
		client = safeurl.Client(guarded).Client
	}

	return &WebhookSink{url: rawURL, client: client}, nil
}

func (s *WebhookSink) Notify(ctx context.Context, n Notification) error {
	body, err := json.Marshal(n)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := s.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	}
	return nil
}

var privateRanges = []*net.IPNet{
	parseCIDR("10.0.0.0/8"),
	parseCIDR("172.16.0.0/12"),
	parseCIDR("192.168.0.0/16"),
	parseCIDR("127.0.0.0/8"),
	parseCIDR("169.254.0.0/16"),
	parseCIDR("100.64.0.0/10"),
	parseCIDR("0.0.0.0/8"),
	parseCIDR("::1/128"),
	parseCIDR("fc00::/7"),
	parseCIDR("fe80::/10"),
}

// isPrivateIP checks whether an IP address is private, loopback or link-local.
func isPrivateIP(ip net.IP) bool {
	for _, network := range privateRanges {
		if network.Contains(ip) {
			return true
		}
	}
	return false
}

func parseCIDR(cidr string) *net.IPNet {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		panic(fmt.Sprintf("invalid CIDR: %s", cidr))
	}
	return network
}

func validateExternalURL(rawURL string, allowPrivate bool) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("invalid URL: %v", err)
	}

	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("URL scheme '%s' is not allowed; only http and https are permitted", parsed.Scheme)
	}

	host := parsed.Hostname()
	if host == "" {
		return fmt.Errorf("URL has no hostname")
	}
	if allowPrivate {
		return nil
	}

	if strings.EqualFold(host, "localhost") {
		return fmt.Errorf("requests to localhost are not allowed")
	}
	if ip := net.ParseIP(host); ip != nil {
		if isPrivateIP(ip) {
			return fmt.Errorf("URL points to private IP address %s, which is not allowed", ip)
		}
		return nil
	}

	ips, err := net.LookupIP(host)
	if err != nil {
		return fmt.Errorf("failed to resolve hostname '%s': %v", host, err)
	}
	for _, ip := range ips {
		if isPrivateIP(ip) {
			return fmt.Errorf("URL resolves to private IP address %s, which is not allowed", ip.String())
		}
	}
	return nil
}
