package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/nfrund/studysync/internal/config"
	"github.com/surrealdb/surrealdb.go"
)

// ErrNotConnected is returned when an operation is attempted without an
// established database connection.
var ErrNotConnected = errors.New("database not connected")

// ExponentialBackoffRetryer implements retry logic with exponential backoff.
// It is used for connection establishment and recovery only; store operations
// themselves are never retried here (retry policy belongs to the caller).
type ExponentialBackoffRetryer struct {
	maxRetries int
	baseDelay  time.Duration
	maxDelay   time.Duration
	multiplier float64
	jitter     bool
}

// NewExponentialBackoffRetryer creates a new retryer with sensible defaults.
func NewExponentialBackoffRetryer() *ExponentialBackoffRetryer {
	return &ExponentialBackoffRetryer{
		maxRetries: 5,
		baseDelay:  100 * time.Millisecond,
		maxDelay:   30 * time.Second,
		multiplier: 2.0,
		jitter:     true,
	}
}

// Retry executes a function with exponential backoff retry logic.
func (r *ExponentialBackoffRetryer) Retry(ctx context.Context, fn func() error) error {
	var lastErr error
	for attempt := 0; attempt <= r.maxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		err := fn()
		if err == nil {
			return nil
		}

		lastErr = err

		if attempt == r.maxRetries {
			break
		}

		delay := r.calculateDelay(attempt)
		slog.DebugContext(ctx, "Retry attempt failed, waiting before next attempt",
			"attempt", attempt+1, "max_attempts", r.maxRetries+1,
			"delay_ms", delay.Milliseconds(), "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(delay):
		}
	}

	return fmt.Errorf("operation failed after %d attempts: %w", r.maxRetries+1, lastErr)
}

func (r *ExponentialBackoffRetryer) calculateDelay(attempt int) time.Duration {
	delay := float64(r.baseDelay) * math.Pow(r.multiplier, float64(attempt))
	if delay > float64(r.maxDelay) {
		delay = float64(r.maxDelay)
	}
	if r.jitter {
		// Up to 25% jitter to avoid thundering herds on shared backends.
		delay += delay * 0.25 * rand.Float64()
	}
	return time.Duration(delay)
}

// Connection manages a SurrealDB connection with health monitoring and
// automatic reconnection.
type Connection struct {
	cfg     *config.Config
	conn    *surrealdb.DB
	retryer *ExponentialBackoffRetryer
	mu      sync.RWMutex
	healthy bool
	done    chan struct{}
}

// NewConnection creates a new managed database connection.
func NewConnection(cfg *config.Config) *Connection {
	return &Connection{
		cfg:     cfg,
		retryer: NewExponentialBackoffRetryer(),
		done:    make(chan struct{}),
	}
}

// Connect establishes the initial database connection.
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.conn != nil {
		return nil // Already connected
	}

	return c.reconnect(ctx)
}

// WithConnection executes a function with a database connection, handling
// reconnections on connection-level failures. Application-level errors pass
// through untouched.
func (c *Connection) WithConnection(ctx context.Context, fn func(*surrealdb.DB) error) error {
	conn := c.getConnection()
	if conn == nil {
		return ErrNotConnected
	}

	err := fn(conn)
	if err == nil {
		return nil
	}

	// If the error is not a connection-related issue, just return it immediately.
	if !isConnectionError(err) {
		return err
	}

	slog.WarnContext(ctx, "Database operation failed, attempting to reconnect with backoff",
		"error", err, "db_url", redactDBURL(c.cfg.DBUrl))

	return c.retryer.Retry(ctx, func() error {
		if reconnectErr := c.forceReconnect(ctx); reconnectErr != nil {
			return fmt.Errorf("reconnection failed: %w (original error: %v)", reconnectErr, err)
		}
		return fn(c.getConnection())
	})
}

// StartMonitoring begins health checks and automatic reconnection.
func (c *Connection) StartMonitoring() {
	go c.monitorConnection()
}

// Close shuts down the connection and monitoring.
func (c *Connection) Close(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	close(c.done)
	if c.conn != nil {
		return c.conn.Close(ctx)
	}
	return nil
}

// IsHealthy returns the current connection status.
func (c *Connection) IsHealthy() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.healthy
}

func (c *Connection) getConnection() *surrealdb.DB {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.conn
}

func (c *Connection) reconnect(ctx context.Context) error {
	if c.conn != nil {
		c.conn.Close(ctx)
	}

	slog.DebugContext(ctx, "Attempting to connect to database", "db_url", redactDBURL(c.cfg.DBUrl))

	conn, err := surrealdb.FromEndpointURLString(ctx, c.cfg.DBUrl)
	if err != nil {
		c.healthy = false
		return fmt.Errorf("failed to connect to database at %s: %w", redactDBURL(c.cfg.DBUrl), err)
	}

	authData := &surrealdb.Auth{
		Username: c.cfg.DBUser,
		Password: c.cfg.DBPass,
	}

	if _, err = conn.SignIn(ctx, authData); err != nil {
		conn.Close(ctx)
		c.healthy = false
		return fmt.Errorf("failed to sign in: %w", err)
	}

	if err = conn.Use(ctx, c.cfg.DBNs, c.cfg.DBDb); err != nil {
		conn.Close(ctx)
		c.healthy = false
		return fmt.Errorf("failed to use namespace/db: %w", err)
	}

	c.conn = conn
	c.healthy = true
	slog.DebugContext(ctx, "Database connection established",
		"db_url", redactDBURL(c.cfg.DBUrl),
		"namespace", c.cfg.DBNs,
		"database", c.cfg.DBDb,
	)
	return nil
}

func (c *Connection) forceReconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.reconnect(ctx)
}

func (c *Connection) monitorConnection() {
	ticker := time.NewTicker(30 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			if err := c.checkHealth(ctx); err != nil {
				slog.WarnContext(ctx, "Database health check failed, attempting reconnection with backoff",
					"error", err, "db_url", redactDBURL(c.cfg.DBUrl))
				if reconnectErr := c.retryer.Retry(ctx, func() error {
					return c.forceReconnect(ctx)
				}); reconnectErr != nil {
					slog.ErrorContext(ctx, "Failed to reconnect to database after health check failure",
						"error", reconnectErr, "db_url", redactDBURL(c.cfg.DBUrl))
				}
			}
			cancel()
		case <-c.done:
			return
		}
	}
}

func (c *Connection) checkHealth(ctx context.Context) error {
	c.mu.RLock()
	conn := c.conn
	c.mu.RUnlock()

	if conn == nil {
		return ErrNotConnected
	}

	// The Version method performs a lightweight check on the connection by
	// asking the server for its version.
	if _, err := conn.Version(ctx); err != nil {
		c.mu.Lock()
		c.healthy = false
		c.mu.Unlock()
		return fmt.Errorf("health check failed: %w", err)
	}

	c.mu.Lock()
	c.healthy = true
	c.mu.Unlock()
	return nil
}

// isConnectionError reports whether an error looks like a transport-level
// failure worth reconnecting over, rather than an application error.
func isConnectionError(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{
		"connection refused",
		"connection reset",
		"broken pipe",
		"websocket",
		"use of closed network connection",
		"i/o timeout",
		"eof",
	} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}

// redactDBURL strips credentials from a database URL before logging it.
func redactDBURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return "invalid-url"
	}
	if u.User != nil {
		u.User = url.UserPassword("xxx", "xxx")
	}
	return u.String()
}
