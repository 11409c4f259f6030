// Package registration announces the tile server to a service registry
// and keeps the entry alive with heartbeats. The server works the same
// whether or not the registry can be reached.
package registration

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/NERVsystems/vtdecode/pkg/monitoring"
)

const (
	// DefaultHeartbeatInterval is the default interval between heartbeats.
	DefaultHeartbeatInterval = 30 * time.Second

	// DefaultTimeout bounds each registry request.
	DefaultTimeout = 5 * time.Second

	registryService = "registry"
)

// Config describes the service entry.
type Config struct {
	// RegistryURL is the base URL of the registry, e.g. "http://registry:7083".
	RegistryURL string

	ServiceName string
	ServiceType string // default "mcp"

	// ServiceURL and HealthURL are where clients and the registry reach
	// this server.
	ServiceURL string
	HealthURL  string

	Version      string
	Capabilities []string
	Tools        []string
	Metadata     map[string]interface{}

	HeartbeatInterval time.Duration
	Timeout           time.Duration
}

// Entry is the body sent to the registry.
type Entry struct {
	Name         string                 `json:"name"`
	Type         string                 `json:"type"`
	URL          string                 `json:"url"`
	HealthURL    string                 `json:"health_url"`
	Version      string                 `json:"version"`
	Capabilities []string               `json:"capabilities,omitempty"`
	Tools        []string               `json:"tools,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}

// Lease is the registry's answer to a registration.
type Lease struct {
	Status          string    `json:"status"`
	Name            string    `json:"name"`
	TTLSeconds      int       `json:"ttl_seconds"`
	NextHeartbeatBy time.Time `json:"next_heartbeat_by"`
}

// Client registers one service.
type Client struct {
	cfg        Config
	logger     *slog.Logger
	httpClient *http.Client

	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu    sync.RWMutex
	lease *Lease
}

// NewClient validates cfg and fills in defaults.
func NewClient(cfg Config, logger *slog.Logger) (*Client, error) {
	if cfg.RegistryURL == "" {
		return nil, errors.New("registration: registry URL is required")
	}
	if _, err := url.ParseRequestURI(cfg.RegistryURL); err != nil {
		return nil, fmt.Errorf("registration: invalid registry URL: %w", err)
	}
	if cfg.ServiceName == "" {
		return nil, errors.New("registration: service name is required")
	}
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = DefaultHeartbeatInterval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.ServiceType == "" {
		cfg.ServiceType = "mcp"
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &Client{
		cfg:        cfg,
		logger:     logger.With("component", "registration", "registry", cfg.RegistryURL),
		httpClient: &http.Client{Timeout: cfg.Timeout},
	}, nil
}

// Start registers in the background and then sends a heartbeat every
// interval until ctx is done or Stop is called.
func (c *Client) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()

		c.heartbeat(ctx)
		ticker := time.NewTicker(c.cfg.HeartbeatInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				c.heartbeat(ctx)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Stop ends the heartbeats and removes the entry if it was registered.
func (c *Client) Stop() {
	if c.cancel == nil {
		return
	}
	c.cancel()
	c.wg.Wait()

	if !c.Registered() {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), c.cfg.Timeout)
	defer cancel()
	if err := c.Deregister(ctx); err != nil {
		c.logger.Debug("deregistration failed", "error", err)
	}
}

// Registered reports whether the last heartbeat succeeded.
func (c *Client) Registered() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lease != nil
}

func (c *Client) heartbeat(ctx context.Context) {
	was := c.Registered()
	lease, err := c.Register(ctx)
	switch {
	case err != nil && ctx.Err() == nil:
		c.logger.Debug("registration failed (registry may be unavailable)", "error", err)
	case err == nil && !was:
		c.logger.Info("registered", "name", lease.Name, "ttl_seconds", lease.TTLSeconds)
	}
}

// Register sends the entry once and records the lease.
func (c *Client) Register(ctx context.Context) (*Lease, error) {
	body, err := json.Marshal(Entry{
		Name:         c.cfg.ServiceName,
		Type:         c.cfg.ServiceType,
		URL:          c.cfg.ServiceURL,
		HealthURL:    c.cfg.HealthURL,
		Version:      c.cfg.Version,
		Capabilities: c.cfg.Capabilities,
		Tools:        c.cfg.Tools,
		Metadata:     c.cfg.Metadata,
	})
	if err != nil {
		return nil, err
	}

	resp, err := c.do(ctx, "register", http.MethodPost, c.cfg.RegistryURL+"/api/register", body)
	if err != nil {
		// A heartbeat cut short by Stop leaves the lease for deregistration.
		if ctx.Err() == nil {
			c.setLease(nil)
		}
		return nil, err
	}
	defer resp.Body.Close()

	var lease Lease
	if err := json.NewDecoder(resp.Body).Decode(&lease); err != nil {
		c.setLease(nil)
		return nil, fmt.Errorf("registration: decode lease: %w", err)
	}
	c.setLease(&lease)
	return &lease, nil
}

// Deregister removes the entry.
func (c *Client) Deregister(ctx context.Context) error {
	resp, err := c.do(ctx, "deregister", http.MethodDelete,
		c.cfg.RegistryURL+"/api/register/"+url.PathEscape(c.cfg.ServiceName), nil)
	c.setLease(nil)
	if err != nil {
		return err
	}
	resp.Body.Close()
	c.logger.Info("deregistered", "name", c.cfg.ServiceName)
	return nil
}

// do sends one request and fails on any status other than 200.
func (c *Client) do(ctx context.Context, op, method, u string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, method, u, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		monitoring.RecordExternalServiceRequest(registryService, op, time.Since(start), false)
		return nil, err
	}
	ok := resp.StatusCode == http.StatusOK
	monitoring.RecordExternalServiceRequest(registryService, op, time.Since(start), ok)
	if !ok {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		resp.Body.Close()
		return nil, fmt.Errorf("registration: %s returned %d: %s", op, resp.StatusCode, bytes.TrimSpace(msg))
	}
	return resp, nil
}

func (c *Client) setLease(l *Lease) {
	c.mu.Lock()
	c.lease = l
	c.mu.Unlock()
}
