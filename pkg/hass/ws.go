package hass

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	wsMaxRetries     = 3
	wsBaseRetryDelay = 2 * time.Second
	wsMaxRetryDelay  = 60 * time.Second
	wsTimeout        = 30 * time.Second
)

// WSOptions configures the websocket connection to Home Assistant.
type WSOptions struct {
	Ssl bool
	// Skip certificate verification, for instances behind a TLS gateway.
	SslGateway bool
	CertFile   string
	KeyFile    string
	// Attempts to open the connection, 0 uses the default.
	MaxRetries int
	BaseDelay  time.Duration
}

// WSClient sends recorder commands over an authenticated websocket.
type WSClient struct {
	conn   *websocket.Conn
	nextID int
}

var _ StatisticsClient = (*WSClient)(nil)

// WebsocketURL turns a Home Assistant base url into its websocket endpoint.
func WebsocketURL(host string, ssl bool) string {
	host = strings.TrimPrefix(host, "http://")
	host = strings.TrimPrefix(host, "https://")
	host = strings.TrimSuffix(host, "/")
	u := url.URL{Scheme: "ws", Host: host, Path: "/api/websocket"}
	if ssl {
		u.Scheme = "wss"
	}
	return u.String()
}

// DialWS connects and authenticates. Connection failures are retried with
// exponential backoff, a refused token is not.
func DialWS(ctx context.Context, wsURL, token string, opts WSOptions) (*WSClient, error) {
	maxRetries := opts.MaxRetries
	if maxRetries <= 0 {
		maxRetries = wsMaxRetries
	}
	baseDelay := opts.BaseDelay
	if baseDelay <= 0 {
		baseDelay = wsBaseRetryDelay
	}

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = 10 * time.Second
	if opts.Ssl {
		tlsConfig := &tls.Config{InsecureSkipVerify: opts.SslGateway}
		if opts.CertFile != "" && opts.KeyFile != "" {
			cert, err := tls.LoadX509KeyPair(opts.CertFile, opts.KeyFile)
			if err != nil {
				return nil, fmt.Errorf("load client certificate: %w", err)
			}
			tlsConfig.Certificates = []tls.Certificate{cert}
		}
		dialer.TLSClientConfig = tlsConfig
	}

	var lastErr error
	for retry := 0; retry < maxRetries; retry++ {
		if retry > 0 {
			delay := time.Duration(1<<(retry-1)) * baseDelay
			if delay > wsMaxRetryDelay {
				delay = wsMaxRetryDelay
			}
			log.Infof("Retrying websocket connection in %v... (attempt %d/%d)", delay, retry+1, maxRetries)
			select {
			case <-time.After(delay):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		log.WithField("url", wsURL).Info("Connecting to Home Assistant websocket")
		conn, _, err := dialer.DialContext(ctx, wsURL, nil)
		if err != nil {
			log.WithError(err).Warn("Websocket connection failed")
			lastErr = err
			continue
		}

		c := &WSClient{conn: conn, nextID: 1}
		if err := c.authenticate(ctx, token); err != nil {
			conn.Close()
			return nil, err
		}
		return c, nil
	}
	return nil, fmt.Errorf("connect to %s: %w", wsURL, lastErr)
}

func (c *WSClient) authenticate(ctx context.Context, token string) error {
	first, err := c.read(ctx)
	if err != nil {
		return fmt.Errorf("read greeting: %w", err)
	}
	if first.Type != "auth_required" {
		return nil
	}
	if err := c.write(ctx, map[string]any{"type": "auth", "access_token": token}); err != nil {
		return fmt.Errorf("send auth: %w", err)
	}
	resp, err := c.read(ctx)
	if err != nil {
		return fmt.Errorf("read auth result: %w", err)
	}
	if resp.Type != "auth_ok" {
		log.Warn("Home Assistant bans clients after repeated failed logins, check url and token")
		return fmt.Errorf("%w: %s", ErrAuthFailed, resp.Message)
	}
	log.Info("Authenticated on Home Assistant websocket")
	return nil
}

// call sends a command and waits for the result carrying the same id.
func (c *WSClient) call(ctx context.Context, cmd map[string]any) (wsResponse, error) {
	id := c.nextID
	c.nextID++
	cmd["id"] = id
	if err := c.write(ctx, cmd); err != nil {
		return wsResponse{}, err
	}
	for {
		resp, err := c.read(ctx)
		if err != nil {
			return wsResponse{}, err
		}
		if resp.Type != "result" || resp.ID != id {
			continue
		}
		if !resp.Success {
			msg := ""
			if resp.Error != nil {
				msg = resp.Error.Code + ": " + resp.Error.Message
			}
			return resp, fmt.Errorf("%w: %s %s", ErrRejected, cmd["type"], msg)
		}
		return resp, nil
	}
}

func (c *WSClient) ImportStatistics(ctx context.Context, s Series) error {
	stats := s.Stats
	if stats == nil {
		stats = []Statistic{}
	}
	_, err := c.call(ctx, map[string]any{
		"type":     "recorder/import_statistics",
		"metadata": s.Metadata,
		"stats":    stats,
	})
	return err
}

// ListStatisticIDs returns the ids of every sum statistic known to the recorder.
func (c *WSClient) ListStatisticIDs(ctx context.Context) ([]string, error) {
	resp, err := c.call(ctx, map[string]any{
		"type":           "recorder/list_statistic_ids",
		"statistic_type": "sum",
	})
	if err != nil {
		return nil, err
	}
	var listed []struct {
		StatisticID string `json:"statistic_id"`
	}
	if err := json.Unmarshal(resp.Result, &listed); err != nil {
		return nil, fmt.Errorf("decode statistic ids: %w", err)
	}
	ids := make([]string, 0, len(listed))
	for _, l := range listed {
		ids = append(ids, l.StatisticID)
	}
	return ids, nil
}

func (c *WSClient) ClearStatistics(ctx context.Context, ids []string) error {
	_, err := c.call(ctx, map[string]any{
		"type":          "recorder/clear_statistics",
		"statistic_ids": ids,
	})
	return err
}

func (c *WSClient) Close() error {
	err := c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
		time.Now().Add(time.Second))
	if err != nil {
		log.WithError(err).Debug("Error sending close message")
	}
	return c.conn.Close()
}

func (c *WSClient) write(ctx context.Context, v any) error {
	c.conn.SetWriteDeadline(deadline(ctx))
	return c.conn.WriteJSON(v)
}

func (c *WSClient) read(ctx context.Context) (wsResponse, error) {
	c.conn.SetReadDeadline(deadline(ctx))
	var resp wsResponse
	if err := c.conn.ReadJSON(&resp); err != nil {
		return wsResponse{}, err
	}
	return resp, nil
}

func deadline(ctx context.Context) time.Time {
	if d, ok := ctx.Deadline(); ok {
		return d
	}
	return time.Now().Add(wsTimeout)
}
