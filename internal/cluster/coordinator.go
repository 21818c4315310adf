// internal/cluster/coordinator.go
// Coordinator drives a Store: heartbeat, client registration/mirroring,
// location lookup, message forwarding, and broadcast. It satisfies
// router.ClusterForwarder so a Router configured with one transparently
// gains multi-instance routing.
package cluster

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"go.uber.org/atomic"

	"github.com/Voskan/hyphagw/internal/logging"
	"github.com/Voskan/hyphagw/internal/metrics"
	"github.com/Voskan/hyphagw/internal/workspace"
)

const (
	keyServerPrefix      = "hypha:cluster:servers:"
	keyActiveServers     = "hypha:cluster:active_servers"
	keyClientPrefix      = "hypha:cluster:clients:"
	keyServerClientsFmt  = "hypha:cluster:servers:%s:clients"
	channelPrefix        = "hypha:cluster:channel:"
	defaultHeartbeat     = 30 * time.Second
	defaultCleanup       = 60 * time.Second
	envelopeForward      = "forward_message"
	envelopeBroadcast    = "message"
)

// Config parameterises a Coordinator.
type Config struct {
	RouterID          string        // stable id of this router instance (server_id config key)
	Host              string
	Port              int
	HeartbeatInterval time.Duration // default 30s
	CleanupInterval   time.Duration // default 60s (cluster_options.cleanup_interval_s)
	ServerTTL         time.Duration // default 90s (cluster_options.server_ttl_s)
}

// serverRecord is the JSON body written to cluster:servers:{id}.
type serverRecord struct {
	Host     string  `json:"host"`
	Port     int     `json:"port"`
	LastSeen int64   `json:"last_seen"`
	Load     float64 `json:"load"`
}

// envelope is the JSON shape published on a router's own channel.
type envelope struct {
	Type         string `json:"type"`
	TargetClient string `json:"target_client,omitempty"` // "ws/clientID"
	Message      string `json:"message,omitempty"`        // base64 frame bytes, or broadcast payload
	FromServer   string `json:"from_server,omitempty"`
	Channel      string `json:"channel,omitempty"`
}

// Coordinator ties a Store to a workspace.Registry so inbound forwarded
// frames land on the right local Peer.
type Coordinator struct {
	cfg    Config
	store  Store
	spaces *workspace.Registry

	active atomic.Bool

	loadMu  sync.Mutex
	loadFn  func() float64

	onBroadcast func(channel, payload string)
}

// New constructs a Coordinator. spaces is used to resolve a forwarded
// frame's local recipient.
func New(cfg Config, store Store, spaces *workspace.Registry) *Coordinator {
	if cfg.HeartbeatInterval <= 0 {
		cfg.HeartbeatInterval = defaultHeartbeat
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = defaultCleanup
	}
	if cfg.ServerTTL <= 0 {
		cfg.ServerTTL = cfg.HeartbeatInterval * 3
	}
	return &Coordinator{cfg: cfg, store: store, spaces: spaces}
}

// OnBroadcast registers the handler invoked for every received broadcast
// envelope. Optional; nil drops them silently.
func (c *Coordinator) OnBroadcast(fn func(channel, payload string)) { c.onBroadcast = fn }

// SetLoadFunc registers a callback reporting this router's current load,
// published with each heartbeat. Optional; defaults to always reporting 0.
func (c *Coordinator) SetLoadFunc(fn func() float64) {
	c.loadMu.Lock()
	c.loadFn = fn
	c.loadMu.Unlock()
}

func (c *Coordinator) load() float64 {
	c.loadMu.Lock()
	defer c.loadMu.Unlock()
	if c.loadFn == nil {
		return 0
	}
	return c.loadFn()
}

// Start begins the heartbeat loop and subscribes to this router's own
// channel, blocking until ctx is cancelled.
func (c *Coordinator) Start(ctx context.Context) {
	c.active.Store(true)
	metrics.ClusterActive.Set(1)
	defer func() {
		c.active.Store(false)
		metrics.ClusterActive.Set(0)
	}()

	c.store.Subscribe(ctx, channelPrefix+c.cfg.RouterID, c.handleEnvelope)

	c.heartbeatOnce(ctx)
	ticker := time.NewTicker(c.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			c.store.RemoveFromSet(context.Background(), keyActiveServers, c.cfg.RouterID)
			return
		case <-ticker.C:
			c.heartbeatOnce(ctx)
		}
	}
}

// RunCleanup scans cluster:active_servers every CleanupInterval and removes
// any router whose last heartbeat is older than ServerTTL, GC-ing that
// router's registered clients too. Blocks until ctx is cancelled; callers
// run it alongside Start in its own goroutine.
func (c *Coordinator) RunCleanup(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.CleanupInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.cleanupOnce(ctx)
		}
	}
}

func (c *Coordinator) cleanupOnce(ctx context.Context) {
	members, err := c.store.Members(ctx, keyActiveServers)
	if err != nil {
		logging.Sugar().Warnw("cluster cleanup: list active servers failed", "err", err)
		return
	}
	cutoff := time.Now().Add(-c.cfg.ServerTTL).Unix()
	for _, id := range members {
		if id == c.cfg.RouterID {
			continue
		}
		raw, ok, err := c.store.Get(ctx, keyServerPrefix+id)
		if err != nil {
			continue
		}
		stale := !ok
		if ok {
			var rec serverRecord
			if json.Unmarshal([]byte(raw), &rec) == nil {
				stale = rec.LastSeen < cutoff
			}
		}
		if !stale {
			continue
		}
		logging.Sugar().Infow("cluster cleanup: reaping stale router", "router_id", id)
		c.gcRouter(ctx, id)
	}
}

// gcRouter removes router id from the active set and every client key it
// was last known to own.
func (c *Coordinator) gcRouter(ctx context.Context, id string) {
	clients, err := c.store.Members(ctx, fmt.Sprintf(keyServerClientsFmt, id))
	if err == nil {
		for _, target := range clients {
			// Set members are stored as "ws:client", the same suffix the
			// client key uses.
			_ = c.store.Delete(ctx, keyClientPrefix+target)
		}
	}
	_ = c.store.Delete(ctx, fmt.Sprintf(keyServerClientsFmt, id))
	_ = c.store.Delete(ctx, keyServerPrefix+id)
	_ = c.store.RemoveFromSet(ctx, keyActiveServers, id)
}

func (c *Coordinator) heartbeatOnce(ctx context.Context) {
	rec := serverRecord{Host: c.cfg.Host, Port: c.cfg.Port, LastSeen: time.Now().Unix(), Load: c.load()}
	body, err := json.Marshal(rec)
	if err != nil {
		return
	}
	ttl := c.cfg.HeartbeatInterval * 3
	if err := c.store.Set(ctx, keyServerPrefix+c.cfg.RouterID, string(body), ttl); err != nil {
		logging.Sugar().Warnw("cluster heartbeat failed", "err", err)
		return
	}
	if err := c.store.AddToSet(ctx, keyActiveServers, c.cfg.RouterID, ttl); err != nil {
		logging.Sugar().Warnw("cluster active-set refresh failed", "err", err)
	}
}

// RegisterPeer records that (ws, clientID) is hosted by this router
// instance.
func (c *Coordinator) RegisterPeer(ctx context.Context, ws, clientID string) error {
	ttl := c.cfg.HeartbeatInterval * 3
	clientKey := keyClientPrefix + ws + ":" + clientID
	if err := c.store.Set(ctx, clientKey, c.cfg.RouterID, ttl); err != nil {
		return err
	}
	return c.store.AddToSet(ctx, fmt.Sprintf(keyServerClientsFmt, c.cfg.RouterID), ws+":"+clientID, ttl)
}

// UnregisterPeer mirrors peer disconnect into the store.
func (c *Coordinator) UnregisterPeer(ctx context.Context, ws, clientID string) error {
	clientKey := keyClientPrefix + ws + ":" + clientID
	if err := c.store.Delete(ctx, clientKey); err != nil {
		return err
	}
	return c.store.RemoveFromSet(ctx, fmt.Sprintf(keyServerClientsFmt, c.cfg.RouterID), ws+":"+clientID)
}

// Locate implements router.ClusterForwarder.
func (c *Coordinator) Locate(ws, clientID string) (string, bool) {
	val, ok, err := c.store.Get(context.Background(), keyClientPrefix+ws+":"+clientID)
	if err != nil || !ok {
		return "", false
	}
	return val, true
}

// Forward implements router.ClusterForwarder: it publishes raw to the
// channel of the router owning (ws, clientID).
func (c *Coordinator) Forward(ws, clientID string, raw []byte) error {
	routerID, ok := c.Locate(ws, clientID)
	if !ok {
		return fmt.Errorf("cluster: no known owner for %s/%s", ws, clientID)
	}
	env := envelope{
		Type:         envelopeForward,
		TargetClient: ws + "/" + clientID,
		Message:      base64.StdEncoding.EncodeToString(raw),
		FromServer:   c.cfg.RouterID,
	}
	body, err := json.Marshal(env)
	if err != nil {
		return err
	}
	if err := c.store.Publish(context.Background(), channelPrefix+routerID, string(body)); err != nil {
		return err
	}
	metrics.ClusterForwardsTotal.Inc()
	return nil
}

// Broadcast publishes payload on channel to every other active router,
// never back to self.
func (c *Coordinator) Broadcast(ctx context.Context, channel string, payload []byte) error {
	members, err := c.store.Members(ctx, keyActiveServers)
	if err != nil {
		return err
	}
	env := envelope{Type: envelopeBroadcast, Channel: channel, Message: base64.StdEncoding.EncodeToString(payload)}
	body, err := json.Marshal(env)
	if err != nil {
		return err
	}
	var firstErr error
	for _, id := range members {
		if id == c.cfg.RouterID {
			continue
		}
		if err := c.store.Publish(ctx, channelPrefix+id, string(body)); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// handleEnvelope processes one message received on this router's own
// channel, delivering a forwarded frame to the local recipient or invoking
// the broadcast callback.
func (c *Coordinator) handleEnvelope(raw string) {
	var env envelope
	if err := json.Unmarshal([]byte(raw), &env); err != nil {
		logging.Sugar().Warnw("cluster envelope decode failed", "err", err)
		return
	}
	switch env.Type {
	case envelopeForward:
		c.deliverForwarded(env)
	case envelopeBroadcast:
		if c.onBroadcast != nil {
			payload, err := base64.StdEncoding.DecodeString(env.Message)
			if err != nil {
				return
			}
			c.onBroadcast(env.Channel, string(payload))
		}
	default:
		logging.Sugar().Debugw("cluster envelope unknown type", "type", env.Type)
	}
}

func (c *Coordinator) deliverForwarded(env envelope) {
	ws, clientID, ok := splitTarget(env.TargetClient)
	if !ok {
		return
	}
	raw, err := base64.StdEncoding.DecodeString(env.Message)
	if err != nil {
		logging.Sugar().Warnw("cluster forwarded frame not valid base64", "err", err)
		return
	}
	w, ok := c.spaces.Get(ws)
	if !ok {
		logging.Sugar().Debugw("cluster forwarded frame for unknown local workspace", "ws", ws)
		return
	}
	p, ok := w.Peer(clientID)
	if !ok {
		logging.Sugar().Debugw("cluster forwarded frame for unknown local peer", "ws", ws, "client", clientID)
		return
	}
	if err := p.Send(raw, true); err != nil {
		logging.Sugar().Debugw("cluster forwarded frame delivery failed", "to", p.ID, "err", err)
	}
}

func splitTarget(id string) (ws, client string, ok bool) {
	for i := 0; i < len(id); i++ {
		if id[i] == '/' {
			return id[:i], id[i+1:], true
		}
	}
	return "", "", false
}

// Active reports whether the coordinator's heartbeat loop is currently
// running.
func (c *Coordinator) Active() bool { return c.active.Load() }
