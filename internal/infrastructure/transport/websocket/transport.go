// Package wstransport carries envelopes between peers over websocket
// connections. Known peers are dialled from a peer book, inbound connections
// are accepted on /v1/p2p and reused to answer the peer that opened them.
package wstransport

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/ArkLabsHQ/intentd/internal/core/ports"
	"github.com/ArkLabsHQ/intentd/pkg/errcode"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	Path       = "/v1/p2p"
	PeerHeader = "X-Intentd-Peer"

	maxMessageSize = 1 << 20
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingInterval   = 50 * time.Second
)

type Config struct {
	// NetworkId is announced to the peers we dial.
	NetworkId string
	// ListenAddr is where inbound connections are accepted, empty to only
	// dial out.
	ListenAddr string
	// Peers maps network ids to websocket urls or host:port addresses.
	Peers       map[string]string
	DialTimeout time.Duration
}

type transport struct {
	cfg      Config
	dialer   *websocket.Dialer
	upgrader websocket.Upgrader

	lock    sync.RWMutex
	handler ports.MessageHandler
	conns   map[string]*peerConn
	server  *http.Server
	ctx     context.Context
	cancel  context.CancelFunc
	wg      sync.WaitGroup
}

func NewTransport(cfg Config) (ports.Transport, error) {
	if cfg.NetworkId == "" {
		return nil, fmt.Errorf("missing network id")
	}
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	peers := make(map[string]string, len(cfg.Peers))
	for id, addr := range cfg.Peers {
		u, err := peerUrl(addr)
		if err != nil {
			return nil, fmt.Errorf("invalid address of peer %s: %w", id, err)
		}
		peers[id] = u
	}
	cfg.Peers = peers

	dialer := *websocket.DefaultDialer
	dialer.HandshakeTimeout = cfg.DialTimeout

	ctx, cancel := context.WithCancel(context.Background())
	return &transport{
		cfg:    cfg,
		dialer: &dialer,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		conns:  make(map[string]*peerConn),
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

func (t *transport) OnReceive(handler ports.MessageHandler) {
	t.lock.Lock()
	defer t.lock.Unlock()
	t.handler = handler
}

func (t *transport) Start(ctx context.Context) error {
	if t.cfg.ListenAddr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle(Path, t)

	listener, err := net.Listen("tcp", t.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", t.cfg.ListenAddr, err)
	}
	server := &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
	t.lock.Lock()
	t.server = server
	t.lock.Unlock()

	go func() {
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.WithError(err).Error("p2p listener stopped")
		}
	}()
	log.Infof("p2p websocket listening on %s%s", listener.Addr(), Path)
	return nil
}

// ServeHTTP upgrades inbound peer connections.
func (t *transport) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if t.ctx.Err() != nil {
		http.Error(w, "shutting down", http.StatusServiceUnavailable)
		return
	}
	conn, err := t.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.WithError(err).Debug("websocket upgrade failed")
		return
	}

	peer := r.Header.Get(PeerHeader)
	from := peer
	if from == "" {
		from = r.RemoteAddr
	}
	pc := newPeerConn(conn, from)
	if peer != "" {
		t.register(peer, pc)
	}
	t.serve(peer, pc)
}

func (t *transport) SendTo(ctx context.Context, peer string, raw []byte) error {
	pc, err := t.connection(ctx, peer)
	if err != nil {
		return err
	}
	if err := pc.write(websocket.BinaryMessage, raw); err != nil {
		t.unregister(peer, pc)
		pc.close()
		return errcode.ErrPeerUnreachable.Wrap(err, peer)
	}
	return nil
}

func (t *transport) Close() {
	t.cancel()

	t.lock.Lock()
	server := t.server
	conns := t.conns
	t.conns = make(map[string]*peerConn)
	t.lock.Unlock()

	if server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		// nolint:all
		server.Shutdown(ctx)
	}
	for _, pc := range conns {
		pc.close()
	}
	t.wg.Wait()
}

func (t *transport) connection(ctx context.Context, peer string) (*peerConn, error) {
	t.lock.RLock()
	pc, ok := t.conns[peer]
	addr, known := t.cfg.Peers[peer]
	t.lock.RUnlock()
	if ok {
		return pc, nil
	}
	if !known {
		return nil, errcode.ErrPeerUnreachable.Newf("no address for peer %s", peer)
	}
	if t.ctx.Err() != nil {
		return nil, errcode.ErrPeerUnreachable.New("transport closed")
	}

	header := http.Header{}
	header.Set(PeerHeader, t.cfg.NetworkId)
	conn, _, err := t.dialer.DialContext(ctx, addr, header)
	if err != nil {
		return nil, errcode.ErrPeerUnreachable.Wrap(err, peer)
	}
	log.WithField("peer", peer).Debugf("connected to %s", addr)

	pc = newPeerConn(conn, peer)
	if current := t.register(peer, pc); current != pc {
		// Another connection won the race.
		pc.close()
		return current, nil
	}
	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		t.serve(peer, pc)
	}()
	return pc, nil
}

// register stores pc as the connection to peer, unless one exists already,
// and returns the one in use.
func (t *transport) register(peer string, pc *peerConn) *peerConn {
	t.lock.Lock()
	defer t.lock.Unlock()
	if current, ok := t.conns[peer]; ok && !current.isClosed() {
		return current
	}
	t.conns[peer] = pc
	return pc
}

func (t *transport) unregister(peer string, pc *peerConn) {
	t.lock.Lock()
	defer t.lock.Unlock()
	if current, ok := t.conns[peer]; ok && current == pc {
		delete(t.conns, peer)
	}
}

// serve reads from pc until it breaks.
func (t *transport) serve(peer string, pc *peerConn) {
	defer func() {
		if peer != "" {
			t.unregister(peer, pc)
		}
		pc.close()
	}()

	done := make(chan struct{})
	defer close(done)
	go pc.keepAlive(done)

	for {
		msgType, raw, err := pc.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.WithError(err).WithField("peer", pc.from).Debug("peer connection lost")
			}
			return
		}
		if msgType != websocket.BinaryMessage {
			continue
		}

		t.lock.RLock()
		handler := t.handler
		t.lock.RUnlock()
		if handler != nil {
			handler(t.ctx, pc.from, raw)
		}
	}
}

type peerConn struct {
	conn *websocket.Conn
	from string

	writeLock sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
}

func newPeerConn(conn *websocket.Conn, from string) *peerConn {
	conn.SetReadLimit(maxMessageSize)
	// nolint:all
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	return &peerConn{conn: conn, from: from, closed: make(chan struct{})}
}

func (p *peerConn) write(msgType int, data []byte) error {
	p.writeLock.Lock()
	defer p.writeLock.Unlock()
	if p.isClosed() {
		return fmt.Errorf("connection closed")
	}
	// nolint:all
	p.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return p.conn.WriteMessage(msgType, data)
}

func (p *peerConn) keepAlive(done <-chan struct{}) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := p.write(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (p *peerConn) isClosed() bool {
	select {
	case <-p.closed:
		return true
	default:
		return false
	}
}

func (p *peerConn) close() {
	p.closeOnce.Do(func() {
		close(p.closed)
		p.writeLock.Lock()
		// nolint:all
		p.conn.WriteControl(
			websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second),
		)
		p.writeLock.Unlock()
		// nolint:all
		p.conn.Close()
	})
}

// peerUrl turns a peer book entry into the websocket url of its p2p
// endpoint.
func peerUrl(addr string) (string, error) {
	if !strings.Contains(addr, "://") {
		addr = "ws://" + addr
	}
	u, err := url.Parse(addr)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported scheme %s", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("missing host")
	}
	if u.Path == "" || u.Path == "/" {
		u.Path = Path
	}
	return u.String(), nil
}
