package velux

import (
	"bufio"
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

// Config holds the KLF200 connection parameters.
type Config struct {
	Host     string
	Port     int
	Password string

	// ConnectTimeout bounds the TCP dial and TLS handshake.
	ConnectTimeout time.Duration

	// CommandTimeout bounds each request/confirm exchange when the
	// caller's context has no earlier deadline.
	CommandTimeout time.Duration
}

// UpdateFunc receives asynchronous position changes from the gateway.
// name is the node's system-table name and percent the new position.
type UpdateFunc func(name string, percent int)

// Logger receives diagnostic output from the session. Both methods
// follow the slog arg convention.
type Logger interface {
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

const (
	defaultConnectTimeout = 10 * time.Second
	defaultCommandTimeout = 30 * time.Second
	writeTimeout          = 5 * time.Second

	// confirmBuffer sizes each waiter channel. Roster loading funnels
	// one notification per node through a single waiter.
	confirmBuffer = 64

	// updateQueueSize bounds pending position callbacks. Updates beyond
	// this are dropped and counted rather than blocking the reader.
	updateQueueSize = 64
)

// nodeUpdate is a queued position callback.
type nodeUpdate struct {
	name    string
	percent int
}

// Stats is a snapshot of session counters.
type Stats struct {
	FramesSent     uint64
	FramesReceived uint64
	UpdatesDropped uint64
}

// Session is an authenticated connection to a KLF200 gateway. A session
// is created with Connect, loads the node roster once with LoadNodes,
// and then serves position commands and update callbacks until Close.
type Session struct {
	cfg  Config
	conn net.Conn

	reader  *bufio.Reader
	writeMu sync.Mutex

	pendingMu sync.Mutex
	pending   map[uint16]chan Frame

	rosterMu    sync.RWMutex
	nodesByID   map[uint8]Node
	nodesByName map[string]uint8

	callbackMu sync.RWMutex
	onUpdate   UpdateFunc
	updates    chan nodeUpdate

	commandMu sync.Mutex
	sessionID atomic.Uint32

	closeOnce sync.Once
	closed    chan struct{}
	wg        sync.WaitGroup

	loggerMu sync.RWMutex
	logger   Logger

	framesTx       atomic.Uint64
	framesRx       atomic.Uint64
	updatesDropped atomic.Uint64
}

// Connect dials the gateway, authenticates and enables the house status
// monitor so that position change notifications are delivered. The
// returned session is ready for LoadNodes.
//
// The KLF200 serves a self-signed certificate with a fixed fingerprint,
// so certificate verification is disabled.
func Connect(ctx context.Context, cfg Config) (*Session, error) {
	if cfg.ConnectTimeout <= 0 {
		cfg.ConnectTimeout = defaultConnectTimeout
	}
	if cfg.CommandTimeout <= 0 {
		cfg.CommandTimeout = defaultCommandTimeout
	}

	address := net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port))
	dialer := &tls.Dialer{
		NetDialer: &net.Dialer{Timeout: cfg.ConnectTimeout},
		Config: &tls.Config{
			InsecureSkipVerify: true, //nolint:gosec // self-signed gateway certificate
			MinVersion:         tls.VersionTLS12,
		},
	}

	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %w", ErrConnectionFailed, address, err)
	}

	s := newSession(conn, cfg)
	s.start()

	if err := s.authenticate(ctx); err != nil {
		s.Close()
		return nil, err
	}
	if err := s.enableHouseMonitor(ctx); err != nil {
		s.Close()
		return nil, err
	}

	return s, nil
}

func newSession(conn net.Conn, cfg Config) *Session {
	return &Session{
		cfg:         cfg,
		conn:        conn,
		reader:      bufio.NewReader(conn),
		pending:     make(map[uint16]chan Frame),
		nodesByID:   make(map[uint8]Node),
		nodesByName: make(map[string]uint8),
		updates:     make(chan nodeUpdate, updateQueueSize),
		closed:      make(chan struct{}),
	}
}

func (s *Session) start() {
	s.wg.Add(2)
	go s.receiveLoop()
	go s.updateLoop()
}

// SetLogger installs a logger for session diagnostics. Safe to call
// concurrently; a nil logger silences output.
func (s *Session) SetLogger(logger Logger) {
	s.loggerMu.Lock()
	s.logger = logger
	s.loggerMu.Unlock()
}

// SetOnNodeUpdate installs the callback invoked when the gateway
// reports a position change for an opening device with a known
// position. The callback runs on a dedicated goroutine.
func (s *Session) SetOnNodeUpdate(fn UpdateFunc) {
	s.callbackMu.Lock()
	s.onUpdate = fn
	s.callbackMu.Unlock()
}

// IsConnected reports whether the session is still open.
func (s *Session) IsConnected() bool {
	select {
	case <-s.closed:
		return false
	default:
		return true
	}
}

// Stats returns a snapshot of the session counters.
func (s *Session) Stats() Stats {
	return Stats{
		FramesSent:     s.framesTx.Load(),
		FramesReceived: s.framesRx.Load(),
		UpdatesDropped: s.updatesDropped.Load(),
	}
}

// LoadNodes requests the gateway's system table and builds the node
// roster. It returns the number of nodes loaded. Call once per session,
// before SetPosition.
func (s *Session) LoadNodes(ctx context.Context) (int, error) {
	ctx, cancel := s.commandContext(ctx)
	defer cancel()

	ch := s.registerWaiter(cmdGetAllNodesInformationCfm,
		cmdGetAllNodesInformationNtf, cmdGetAllNodesInformationFinishedNtf)
	defer s.unregisterWaiter(cmdGetAllNodesInformationCfm,
		cmdGetAllNodesInformationNtf, cmdGetAllNodesInformationFinishedNtf)

	if err := s.send(Frame{Command: cmdGetAllNodesInformationReq}); err != nil {
		return 0, err
	}

	count := 0
	for {
		f, err := s.awaitFrame(ctx, ch)
		if err != nil {
			return 0, fmt.Errorf("loading nodes: %w", err)
		}

		switch f.Command {
		case cmdGetAllNodesInformationCfm:
			expected, err := parseAllNodesCfm(f.Data)
			if err != nil {
				return 0, err
			}
			if expected == 0 {
				return 0, nil
			}

		case cmdGetAllNodesInformationNtf:
			node, err := parseNodeInfoNtf(f.Data)
			if err != nil {
				s.logWarn("skipping malformed node entry", "error", err)
				continue
			}
			s.storeNode(node)
			count++

		case cmdGetAllNodesInformationFinishedNtf:
			return count, nil
		}
	}
}

// Nodes returns the loaded roster sorted by node ID.
func (s *Session) Nodes() []Node {
	s.rosterMu.RLock()
	defer s.rosterMu.RUnlock()

	nodes := make([]Node, 0, len(s.nodesByID))
	for _, n := range s.nodesByID {
		nodes = append(nodes, n)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes
}

// NodeByName looks up a roster node by its system-table name.
func (s *Session) NodeByName(name string) (Node, bool) {
	s.rosterMu.RLock()
	defer s.rosterMu.RUnlock()

	id, ok := s.nodesByName[name]
	if !ok {
		return Node{}, false
	}
	return s.nodesByID[id], true
}

// SetPosition moves the named node to the given percentage and blocks
// until the gateway confirms it accepted the command. Commands are
// serialized; concurrent callers queue on an internal mutex.
func (s *Session) SetPosition(ctx context.Context, name string, percent int) error {
	s.commandMu.Lock()
	defer s.commandMu.Unlock()

	node, ok := s.NodeByName(name)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownNode, name)
	}

	ctx, cancel := s.commandContext(ctx)
	defer cancel()

	sessionID := uint16(s.sessionID.Add(1))
	req := Frame{
		Command: cmdCommandSendReq,
		Data:    buildCommandSend(sessionID, node.ID, PositionFromPercent(percent)),
	}

	cfm, err := s.request(ctx, req, cmdCommandSendCfm)
	if err != nil {
		return fmt.Errorf("set position of %q: %w", name, err)
	}

	gotSession, accepted, err := parseCommandSendCfm(cfm.Data)
	if err != nil {
		return err
	}
	if gotSession != sessionID {
		return fmt.Errorf("%w: confirm for session %d, expected %d",
			ErrBadFrame, gotSession, sessionID)
	}
	if !accepted {
		return fmt.Errorf("%w: node %q", ErrCommandRejected, name)
	}
	return nil
}

// Close shuts the session down and waits for its goroutines to stop.
// Safe to call more than once.
func (s *Session) Close() {
	s.shutdown()
	s.wg.Wait()
}

// shutdown closes the connection and wakes all waiters without waiting
// for goroutines, so the receive loop can trigger it on read failure.
func (s *Session) shutdown() {
	s.closeOnce.Do(func() {
		close(s.closed)
		_ = s.conn.Close()
	})
}

func (s *Session) authenticate(ctx context.Context) error {
	ctx, cancel := s.commandContext(ctx)
	defer cancel()

	data, err := buildPasswordEnter(s.cfg.Password)
	if err != nil {
		return err
	}

	cfm, err := s.request(ctx, Frame{Command: cmdPasswordEnterReq, Data: data}, cmdPasswordEnterCfm)
	if err != nil {
		return fmt.Errorf("authenticating: %w", err)
	}

	ok, err := parsePasswordEnterCfm(cfm.Data)
	if err != nil {
		return err
	}
	if !ok {
		return ErrAuthFailed
	}
	return nil
}

func (s *Session) enableHouseMonitor(ctx context.Context) error {
	ctx, cancel := s.commandContext(ctx)
	defer cancel()

	_, err := s.request(ctx, Frame{Command: cmdHouseStatusMonitorEnableReq}, cmdHouseStatusMonitorEnableCfm)
	if err != nil {
		return fmt.Errorf("enabling house status monitor: %w", err)
	}
	return nil
}

// commandContext applies the configured command timeout when the
// caller's context has no earlier deadline.
func (s *Session) commandContext(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, s.cfg.CommandTimeout)
}

// request sends a frame and waits for the matching confirm.
func (s *Session) request(ctx context.Context, req Frame, cfmCmd uint16) (Frame, error) {
	ch := s.registerWaiter(cfmCmd)
	defer s.unregisterWaiter(cfmCmd)

	if err := s.send(req); err != nil {
		return Frame{}, err
	}
	return s.awaitFrame(ctx, ch)
}

func (s *Session) awaitFrame(ctx context.Context, ch <-chan Frame) (Frame, error) {
	select {
	case f := <-ch:
		return f, nil
	case <-ctx.Done():
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return Frame{}, ErrTimeout
		}
		return Frame{}, ctx.Err()
	case <-s.closed:
		return Frame{}, ErrNotConnected
	}
}

// registerWaiter routes the given command codes to a fresh channel
// until unregistered. One channel may serve several codes, which is how
// roster loading collects its notification stream.
func (s *Session) registerWaiter(cmds ...uint16) chan Frame {
	ch := make(chan Frame, confirmBuffer)
	s.pendingMu.Lock()
	for _, cmd := range cmds {
		s.pending[cmd] = ch
	}
	s.pendingMu.Unlock()
	return ch
}

func (s *Session) unregisterWaiter(cmds ...uint16) {
	s.pendingMu.Lock()
	for _, cmd := range cmds {
		delete(s.pending, cmd)
	}
	s.pendingMu.Unlock()
}

func (s *Session) send(f Frame) error {
	if !s.IsConnected() {
		return ErrNotConnected
	}

	wire := slipEncode(EncodeFrame(f))

	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	if err := s.conn.SetWriteDeadline(time.Now().Add(writeTimeout)); err != nil {
		return fmt.Errorf("setting write deadline: %w", err)
	}
	if _, err := s.conn.Write(wire); err != nil {
		return fmt.Errorf("writing frame 0x%04X: %w", f.Command, err)
	}

	s.framesTx.Add(1)
	return nil
}

// receiveLoop reads frames until the connection closes and dispatches
// each to its waiter or notification handler.
func (s *Session) receiveLoop() {
	defer s.wg.Done()

	for {
		f, err := s.readFrame()
		if err != nil {
			select {
			case <-s.closed:
			default:
				s.logError("gateway connection lost", "error", err)
				s.shutdown()
			}
			return
		}

		s.framesRx.Add(1)
		s.dispatch(f)
	}
}

// readFrame reads one SLIP-delimited transport frame from the wire.
func (s *Session) readFrame() (Frame, error) {
	// Seek the opening delimiter.
	for {
		b, err := s.reader.ReadByte()
		if err != nil {
			return Frame{}, err
		}
		if b == slipEnd {
			break
		}
	}

	// Collect until the closing delimiter, tolerating back-to-back
	// delimiters between frames.
	var buf []byte
	for {
		b, err := s.reader.ReadByte()
		if err != nil {
			return Frame{}, err
		}
		if b == slipEnd {
			if len(buf) == 0 {
				continue
			}
			break
		}
		buf = append(buf, b)
		if len(buf) > 2*maxFrameSize {
			return Frame{}, fmt.Errorf("%w: oversized frame", ErrBadFrame)
		}
	}

	raw, err := slipDecode(buf)
	if err != nil {
		return Frame{}, err
	}
	return DecodeFrame(raw)
}

func (s *Session) dispatch(f Frame) {
	s.pendingMu.Lock()
	waiter := s.pending[f.Command]
	s.pendingMu.Unlock()

	if waiter != nil {
		select {
		case waiter <- f:
		default:
			s.logWarn("dropping frame, waiter queue full", "command", fmt.Sprintf("0x%04X", f.Command))
		}
		return
	}

	switch f.Command {
	case cmdNodeStatePositionChangedNtf:
		s.handlePositionChanged(f.Data)
	case cmdErrorNtf:
		s.logWarn("gateway error", "detail", gatewayError(f.Data))
	case cmdCommandRunStatusNtf, cmdCommandRemainingNtf, cmdSessionFinishedNtf:
		// Command progress notifications carry nothing the bridge needs;
		// the final position arrives as a state change.
	default:
		s.logWarn("unhandled frame", "command", fmt.Sprintf("0x%04X", f.Command))
	}
}

func (s *Session) handlePositionChanged(data []byte) {
	nodeID, position, err := parsePositionChangedNtf(data)
	if err != nil {
		s.logWarn("malformed position notification", "error", err)
		return
	}

	s.rosterMu.Lock()
	node, known := s.nodesByID[nodeID]
	if known {
		node.Position = position
		s.nodesByID[nodeID] = node
	}
	s.rosterMu.Unlock()

	if !known || !node.IsOpeningDevice() || !position.Known() {
		return
	}

	select {
	case s.updates <- nodeUpdate{name: node.Name, percent: position.Percent()}:
	default:
		s.updatesDropped.Add(1)
		s.logWarn("dropping position update, queue full", "node", node.Name)
	}
}

// updateLoop delivers queued position callbacks off the reader
// goroutine so a slow consumer cannot stall the wire.
func (s *Session) updateLoop() {
	defer s.wg.Done()

	for {
		select {
		case <-s.closed:
			return
		case u := <-s.updates:
			s.callbackMu.RLock()
			fn := s.onUpdate
			s.callbackMu.RUnlock()
			if fn != nil {
				s.invokeUpdate(fn, u)
			}
		}
	}
}

func (s *Session) invokeUpdate(fn UpdateFunc, u nodeUpdate) {
	defer func() {
		if r := recover(); r != nil {
			s.logError("panic in node update callback", "node", u.name, "panic", r)
		}
	}()
	fn(u.name, u.percent)
}

func (s *Session) storeNode(node Node) {
	s.rosterMu.Lock()
	defer s.rosterMu.Unlock()

	s.nodesByID[node.ID] = node
	if node.Name == "" {
		s.logWarn("node has no name, unreachable by topic", "id", node.ID)
		return
	}
	if other, exists := s.nodesByName[node.Name]; exists && other != node.ID {
		s.logWarn("duplicate node name, keeping first", "name", node.Name, "id", node.ID)
		return
	}
	s.nodesByName[node.Name] = node.ID
}

func (s *Session) logWarn(msg string, args ...any) {
	s.loggerMu.RLock()
	logger := s.logger
	s.loggerMu.RUnlock()
	if logger != nil {
		logger.Warn(msg, args...)
	}
}

func (s *Session) logError(msg string, args ...any) {
	s.loggerMu.RLock()
	logger := s.logger
	s.loggerMu.RUnlock()
	if logger != nil {
		logger.Error(msg, args...)
	}
}
