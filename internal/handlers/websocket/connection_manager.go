package websocket

import (
	"context"
	"sync"
	"time"

	"github.com/xpanvictor/voxgate/pkg/Logger"
	"github.com/xpanvictor/voxgate/pkg/io/device"
)

type connection struct {
	endpoint    device.Endpoint
	connectedAt time.Time
}

// ConnectionManager tracks every open socket, bound or not, so idle ones
// can be reaped and all of them closed on shutdown.
type ConnectionManager struct {
	logger        *Logger.Logger
	connections   map[device.EndpointID]connection
	mutex         sync.RWMutex
	cleanupTicker *time.Ticker
	stopCleanup   chan struct{}
	stopOnce      sync.Once
	idleTimeout   time.Duration
	active        sync.WaitGroup
}

// NewConnectionManager creates a new connection manager. A zero idleTimeout
// disables reaping.
func NewConnectionManager(idleTimeout time.Duration, logger *Logger.Logger) *ConnectionManager {
	cm := &ConnectionManager{
		logger:      logger,
		connections: make(map[device.EndpointID]connection),
		stopCleanup: make(chan struct{}),
		idleTimeout: idleTimeout,
	}
	if idleTimeout > 0 {
		cm.startCleanupRoutine(idleTimeout / 2)
	}
	return cm
}

// RegisterConnection tracks an endpoint
func (cm *ConnectionManager) RegisterConnection(ep device.Endpoint) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	if _, exists := cm.connections[ep.ID()]; !exists {
		cm.active.Add(1)
	}
	cm.connections[ep.ID()] = connection{endpoint: ep, connectedAt: time.Now()}
	cm.logger.Debugf("Registered connection %s", ep.ID())
}

// UnregisterConnection stops tracking an endpoint. Handlers call it last,
// once the session behind the endpoint has been closed.
func (cm *ConnectionManager) UnregisterConnection(id device.EndpointID) {
	cm.mutex.Lock()
	defer cm.mutex.Unlock()

	if conn, exists := cm.connections[id]; exists {
		cm.logger.Debugf("Unregistering connection %s (open for %v)", id, time.Since(conn.connectedAt))
		delete(cm.connections, id)
		cm.active.Done()
	}
}

// Count returns the number of open sockets
func (cm *ConnectionManager) Count() int {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	return len(cm.connections)
}

func (cm *ConnectionManager) startCleanupRoutine(every time.Duration) {
	cm.cleanupTicker = time.NewTicker(every)

	go func() {
		for {
			select {
			case <-cm.cleanupTicker.C:
				cm.cleanupIdleConnections(time.Now())
			case <-cm.stopCleanup:
				cm.cleanupTicker.Stop()
				return
			}
		}
	}()
}

// cleanupIdleConnections closes sockets that have been quiet for longer
// than the idle timeout. Their read loops then tear the sessions down.
func (cm *ConnectionManager) cleanupIdleConnections(now time.Time) int {
	cm.mutex.RLock()
	idle := make([]device.Endpoint, 0)
	for _, conn := range cm.connections {
		if now.Sub(conn.endpoint.LastActive()) > cm.idleTimeout {
			idle = append(idle, conn.endpoint)
		}
	}
	cm.mutex.RUnlock()

	for _, ep := range idle {
		cm.logger.Infof("Closing idle connection %s", ep.ID())
		if err := ep.Close(); err != nil {
			cm.logger.Debugf("close idle connection %s: %v", ep.ID(), err)
		}
	}
	if len(idle) > 0 {
		cm.logger.Infof("Closed %d idle connections", len(idle))
	}
	return len(idle)
}

// Shutdown stops reaping, closes every open socket and waits for their
// handlers to finish or for ctx to expire.
func (cm *ConnectionManager) Shutdown(ctx context.Context) error {
	cm.stopOnce.Do(func() { close(cm.stopCleanup) })

	cm.mutex.RLock()
	open := make([]device.Endpoint, 0, len(cm.connections))
	for _, conn := range cm.connections {
		open = append(open, conn.endpoint)
	}
	cm.mutex.RUnlock()

	for _, ep := range open {
		if err := ep.Close(); err != nil {
			cm.logger.Debugf("close connection %s: %v", ep.ID(), err)
		}
	}

	drained := make(chan struct{})
	go func() {
		cm.active.Wait()
		close(drained)
	}()

	select {
	case <-drained:
		cm.logger.Infof("Connection manager closed %d connections", len(open))
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// GetStats returns connection manager statistics
func (cm *ConnectionManager) GetStats() map[string]interface{} {
	cm.mutex.RLock()
	defer cm.mutex.RUnlock()

	stats := map[string]interface{}{
		"open_connections": len(cm.connections),
		"idle_timeout":     cm.idleTimeout.String(),
	}

	connStats := make([]map[string]interface{}, 0, len(cm.connections))
	for id, conn := range cm.connections {
		connStats = append(connStats, map[string]interface{}{
			"endpoint_id":  id.String(),
			"connected_at": conn.connectedAt,
			"last_active":  conn.endpoint.LastActive(),
			"is_alive":     conn.endpoint.IsAlive(),
		})
	}
	stats["connections"] = connStats

	return stats
}
