package session

import (
	"context"
	"errors"
	"sync"

	"go.uber.org/zap"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrAlreadyExists   = errors.New("session already registered")
)

type Connection interface {
	Id() string
	Send(ctx context.Context, event string, payload any) error
	Close() error
}

// Registry is the set of live sessions on this process.
type Registry interface {
	Add(connection Connection) error
	Remove(id string)
	Count() int
	Contains(id string) bool
	// Snapshot returns a copy of the membership at call time; later
	// Add/Remove calls do not affect it.
	Snapshot() []Connection
	EmitTo(ctx context.Context, id string, event string, payload any) error
}

type InMemoryRegistry struct {
	logger *zap.Logger
	mu     sync.RWMutex

	connections map[string]Connection
}

func NewInMemoryRegistry(
	logger *zap.Logger,
) *InMemoryRegistry {
	return &InMemoryRegistry{
		logger:      logger,
		connections: make(map[string]Connection),
	}
}

func (r *InMemoryRegistry) Add(connection Connection) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.connections[connection.Id()]; ok {
		return ErrAlreadyExists
	}

	r.connections[connection.Id()] = connection

	r.logger.Info("session added",
		zap.String("sessionId", connection.Id()),
		zap.Int("connections", len(r.connections)))

	return nil
}

func (r *InMemoryRegistry) Remove(id string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.connections[id]; !ok {
		return
	}

	delete(r.connections, id)

	r.logger.Info("session removed",
		zap.String("sessionId", id),
		zap.Int("connections", len(r.connections)))
}

func (r *InMemoryRegistry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	return len(r.connections)
}

func (r *InMemoryRegistry) Contains(id string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.connections[id]

	return ok
}

func (r *InMemoryRegistry) Snapshot() []Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	connections := make([]Connection, 0, len(r.connections))
	for _, connection := range r.connections {
		connections = append(connections, connection)
	}

	return connections
}

func (r *InMemoryRegistry) EmitTo(ctx context.Context, id string, event string, payload any) error {
	r.mu.RLock()
	connection, ok := r.connections[id]
	r.mu.RUnlock()

	if !ok {
		return ErrSessionNotFound
	}

	return connection.Send(ctx, event, payload)
}

// Close disconnects every remaining session and leaves the registry empty.
func (r *InMemoryRegistry) Close() {
	r.mu.Lock()
	connections := r.connections
	r.connections = make(map[string]Connection)
	r.mu.Unlock()

	for id, connection := range connections {
		if err := connection.Close(); err != nil {
			r.logger.Warn("failed to close session",
				zap.String("sessionId", id),
				zap.Error(err))
		}
	}
}
