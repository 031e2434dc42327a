// Package atvwire implements the Android TV remote protocol v2 over TLS with
// varint-delimited protobuf frames. It is the concrete implementation of the
// remote.Client boundary; nothing above the boundary depends on this package
// except for construction.
package atvwire

import (
	"bufio"
	"context"
	"crypto/sha256"
	"crypto/tls"
	"crypto/x509"
	"encoding/hex"
	"fmt"
	"io"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/hubgrid/androidtv-bridge/internal/remote"
	"github.com/hubgrid/androidtv-bridge/internal/remote/certs"
)

const (
	remotePort  = 6466
	pairingPort = 6467

	// Internal reconnect cadence once KeepReconnecting is enabled. The
	// driver-level backoff only applies to the initial connect.
	superviseRetryDelay = 5 * time.Second
)

// Key press directions on the wire.
const (
	directionStartLong = 1
	directionEndLong   = 2
	directionShort     = 3
)

// Client talks to a single Android TV. It implements remote.Client.
type Client struct {
	clientName string
	certFile   string
	keyFile    string

	mu         sync.Mutex
	host       string
	conn       *tls.Conn
	connClosed chan struct{}
	connected  bool

	isOn       *bool
	currentApp string
	deviceInfo *remote.DeviceInfo

	onPower  []func(bool)
	onApp    []func(string)
	onVolume []func(remote.VolumeInfo)
	onAvail  []func(bool)

	supervise   bool
	onAuthError func()

	// pairing session state between StartPairing and FinishPairing
	pairConn   *tls.Conn
	pairReader *bufio.Reader

	writeMu sync.Mutex
}

var _ remote.Client = (*Client)(nil)

// New creates a client for the device at the given address. certFile/keyFile
// hold the client certificate pair used for both pairing and the session.
func New(host, clientName, certFile, keyFile string) *Client {
	return &Client{
		clientName: clientName,
		certFile:   certFile,
		keyFile:    keyFile,
		host:       host,
	}
}

// GenerateCertIfMissing creates the client certificate pair if absent.
func (c *Client) GenerateCertIfMissing() (bool, error) {
	return certs.GenerateIfMissing(c.certFile, c.keyFile, c.clientName)
}

func (c *Client) Host() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.host
}

func (c *Client) SetHost(address string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.host = address
}

func (c *Client) tlsConfig() (*tls.Config, error) {
	cert, err := certs.Load(c.certFile, c.keyFile)
	if err != nil {
		return nil, fmt.Errorf("load client certificate: %w", err)
	}
	// The device uses a self-signed certificate; trust is established by the
	// pairing handshake, not by the PKI chain.
	return &tls.Config{
		Certificates:       []tls.Certificate{cert},
		InsecureSkipVerify: true, //nolint:gosec
	}, nil
}

func (c *Client) dial(ctx context.Context, port int) (*tls.Conn, error) {
	cfg, err := c.tlsConfig()
	if err != nil {
		return nil, err
	}
	dialer := &tls.Dialer{NetDialer: &net.Dialer{}, Config: cfg}
	addr := net.JoinHostPort(c.Host(), fmt.Sprintf("%d", port))
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		if ctx.Err() != nil {
			return nil, fmt.Errorf("%w: %s", remote.ErrTimeout, addr)
		}
		return nil, fmt.Errorf("%w: %v", remote.ErrCannotConnect, err)
	}
	return conn.(*tls.Conn), nil
}

// GetNameAndMAC retrieves the device name and hardware MAC from the identity
// the device presents on the pairing channel.
func (c *Client) GetNameAndMAC(ctx context.Context) (string, string, error) {
	conn, err := c.dial(ctx, pairingPort)
	if err != nil {
		return "", "", err
	}
	defer conn.Close()

	state := conn.ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return "", "", fmt.Errorf("%w: device presented no certificate", remote.ErrConnectionClosed)
	}
	name, mac := parseDeviceIdentity(state.PeerCertificates[0])
	if mac == "" {
		return "", "", fmt.Errorf("%w: device identity has no MAC", remote.ErrConnectionClosed)
	}
	return name, mac, nil
}

// parseDeviceIdentity extracts name and MAC from the device certificate
// subject, which has the form "atvremote/<product>/<name>/.../<mac>".
func parseDeviceIdentity(cert *x509.Certificate) (string, string) {
	cn := cert.Subject.CommonName
	parts := strings.Split(cn, "/")
	name := parts[0]
	mac := ""
	for _, p := range parts {
		if looksLikeMAC(p) {
			mac = p
			continue
		}
		if p != "" && p != "atvremote" {
			name = p
		}
	}
	return name, mac
}

func looksLikeMAC(s string) bool {
	if len(s) != 17 {
		return false
	}
	for i, r := range s {
		if (i+1)%3 == 0 {
			if r != ':' {
				return false
			}
			continue
		}
		if _, err := hex.DecodeString(string(r) + "0"); err != nil {
			return false
		}
	}
	return true
}

// StartPairing opens the pairing channel and performs the request, option and
// configuration exchange. The channel stays open until FinishPairing.
func (c *Client) StartPairing(ctx context.Context) error {
	c.closePairing()

	conn, err := c.dial(ctx, pairingPort)
	if err != nil {
		return err
	}
	reader := bufio.NewReader(conn)

	steps := []struct {
		send []byte
		ack  int
	}{
		{pairingRequest(c.clientName, c.clientName), pairingFieldRequestAck},
		{pairingOption(), pairingFieldOption},
		{pairingConfiguration(), pairingFieldConfigurationAck},
	}
	for _, step := range steps {
		if err := c.pairingExchange(conn, reader, step.send, step.ack); err != nil {
			conn.Close()
			return err
		}
	}

	c.mu.Lock()
	c.pairConn = conn
	c.pairReader = reader
	c.mu.Unlock()
	return nil
}

// FinishPairing completes the handshake with the PIN shown on the TV. The
// pairing secret binds both certificates and the PIN nonce.
func (c *Client) FinishPairing(ctx context.Context, pin string) error {
	c.mu.Lock()
	conn, reader := c.pairConn, c.pairReader
	c.mu.Unlock()
	if conn == nil {
		return fmt.Errorf("%w: pairing not started", remote.ErrCannotConnect)
	}
	defer c.closePairing()

	secret, err := c.pairingSecretHash(conn, pin)
	if err != nil {
		return err
	}
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetDeadline(deadline)
	}
	return c.pairingExchange(conn, reader, pairingSecret(secret), pairingFieldSecretAck)
}

func (c *Client) pairingExchange(conn *tls.Conn, reader *bufio.Reader, msg []byte, ackField int) error {
	if err := writeFrame(conn, msg); err != nil {
		return fmt.Errorf("%w: %v", remote.ErrConnectionClosed, err)
	}
	payload, err := readFrame(reader)
	if err != nil {
		return fmt.Errorf("%w: %v", remote.ErrConnectionClosed, err)
	}
	fields, err := parseFields(payload)
	if err != nil {
		return fmt.Errorf("%w: %v", remote.ErrConnectionClosed, err)
	}
	if status, ok := parseUint(fields, pairingFieldStatus); ok && status != statusOK {
		if status == statusBadSecret || status == statusUnauthorized {
			return fmt.Errorf("%w: pairing status %d", remote.ErrInvalidAuth, status)
		}
		return fmt.Errorf("%w: pairing status %d", remote.ErrConnectionClosed, status)
	}
	if _, ok := fields[protoNum(ackField)]; !ok {
		return fmt.Errorf("%w: unexpected pairing response", remote.ErrConnectionClosed)
	}
	return nil
}

// pairingSecretHash computes SHA-256 over the public key material of both
// sides plus the PIN nonce, per the vendor handshake.
func (c *Client) pairingSecretHash(conn *tls.Conn, pin string) ([]byte, error) {
	if len(pin) < 2 {
		return nil, fmt.Errorf("%w: pairing code too short", remote.ErrInvalidAuth)
	}
	nonce, err := hex.DecodeString(pin[2:])
	if err != nil {
		return nil, fmt.Errorf("%w: malformed pairing code", remote.ErrInvalidAuth)
	}

	clientCert, err := certs.Load(c.certFile, c.keyFile)
	if err != nil {
		return nil, err
	}
	clientLeaf, err := x509.ParseCertificate(clientCert.Certificate[0])
	if err != nil {
		return nil, err
	}
	state := conn.ConnectionState()
	if len(state.PeerCertificates) == 0 {
		return nil, fmt.Errorf("%w: device presented no certificate", remote.ErrConnectionClosed)
	}

	h := sha256.New()
	h.Write(clientLeaf.RawSubjectPublicKeyInfo)
	h.Write(state.PeerCertificates[0].RawSubjectPublicKeyInfo)
	h.Write(nonce)
	return h.Sum(nil), nil
}

func (c *Client) closePairing() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.pairConn != nil {
		c.pairConn.Close()
		c.pairConn = nil
		c.pairReader = nil
	}
}

// Connect establishes the remote session: dial, configure exchange, then a
// background read loop for callbacks and keepalive.
func (c *Client) Connect(ctx context.Context) error {
	c.Disconnect()

	conn, err := c.dial(ctx, remotePort)
	if err != nil {
		return err
	}
	reader := bufio.NewReader(conn)

	if err := writeFrame(conn, remoteConfigure(c.clientName)); err != nil {
		conn.Close()
		return fmt.Errorf("%w: %v", remote.ErrConnectionClosed, err)
	}

	// The device answers with its own configure, then start. An immediate
	// close during the exchange means our certificate is not paired.
	if deadline, ok := ctx.Deadline(); ok {
		_ = conn.SetReadDeadline(deadline)
	}
	started := false
	for !started {
		payload, err := readFrame(reader)
		if err != nil {
			conn.Close()
			if err == io.EOF || err == io.ErrUnexpectedEOF {
				return fmt.Errorf("%w: device rejected session", remote.ErrInvalidAuth)
			}
			return fmt.Errorf("%w: %v", remote.ErrCannotConnect, err)
		}
		fields, err := parseFields(payload)
		if err != nil {
			continue
		}
		if body, ok := fields[protoNum(remoteFieldConfigure)]; ok {
			c.handleConfigure(body.data)
			if err := writeFrame(conn, remoteSetActive()); err != nil {
				conn.Close()
				return fmt.Errorf("%w: %v", remote.ErrConnectionClosed, err)
			}
		}
		if _, ok := fields[protoNum(remoteFieldStart)]; ok {
			started = true
		}
	}
	_ = conn.SetReadDeadline(time.Time{})

	closed := make(chan struct{})
	c.mu.Lock()
	c.conn = conn
	c.connClosed = closed
	c.connected = true
	c.mu.Unlock()

	go c.readLoop(conn, reader, closed)
	return nil
}

// Disconnect tears down the session and stops the reconnect supervision.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.supervise = false
	conn := c.conn
	c.conn = nil
	c.connected = false
	c.isOn = nil
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
	}
	c.closePairing()
}

// KeepReconnecting enables internal reconnect supervision for the current
// session. onAuthError is invoked if the device rejects our certificate
// during a supervised reconnect.
func (c *Client) KeepReconnecting(onAuthError func()) {
	c.mu.Lock()
	c.supervise = true
	c.onAuthError = onAuthError
	c.mu.Unlock()
}

func (c *Client) readLoop(conn *tls.Conn, reader *bufio.Reader, closed chan struct{}) {
	defer close(closed)
	for {
		payload, err := readFrame(reader)
		if err != nil {
			c.handleDrop(conn, err)
			return
		}
		fields, err := parseFields(payload)
		if err != nil {
			log.Debug().Err(err).Str("host", c.Host()).Msg("Dropping malformed frame")
			continue
		}
		c.dispatch(conn, fields)
	}
}

func (c *Client) dispatch(conn *tls.Conn, fields map[protowire.Number]field) {
	if body, ok := fields[protoNum(remoteFieldPingRequest)]; ok {
		sub, _ := parseFields(body.data)
		val, _ := parseUint(sub, 1)
		c.writeMu.Lock()
		_ = writeFrame(conn, remotePingResponse(val))
		c.writeMu.Unlock()
	}

	if body, ok := fields[protoNum(remoteFieldStart)]; ok {
		sub, err := parseFields(body.data)
		if err == nil {
			on := false
			if v, ok := parseUint(sub, 1); ok {
				on = v != 0
			}
			c.setPower(on)
		}
	}

	if body, ok := fields[protoNum(remoteFieldSetVolumeLevel)]; ok {
		sub, err := parseFields(body.data)
		if err == nil {
			maxLevel, _ := parseUint(sub, 2)
			level, _ := parseUint(sub, 3)
			mutedVal, _ := parseUint(sub, 4)
			info := remote.VolumeInfo{Level: int(level), Muted: mutedVal != 0}
			if maxLevel > 0 && maxLevel != 100 {
				info.Level = int(level * 100 / maxLevel)
			}
			for _, fn := range c.volumeCallbacks() {
				fn(info)
			}
		}
	}

	if body, ok := fields[protoNum(remoteFieldImeKeyInject)]; ok {
		sub, err := parseFields(body.data)
		if err == nil {
			if appInfo, ok := sub[protoNum(1)]; ok {
				inner, err := parseFields(appInfo.data)
				if err == nil {
					if pkg := parseString(inner, 1); pkg != "" {
						c.setCurrentApp(pkg)
					}
				}
			}
		}
	}
}

func (c *Client) handleConfigure(body []byte) {
	sub, err := parseFields(body)
	if err != nil {
		return
	}
	if infoField, ok := sub[protoNum(2)]; ok {
		inner, err := parseFields(infoField.data)
		if err != nil {
			return
		}
		c.mu.Lock()
		c.deviceInfo = &remote.DeviceInfo{
			Model:        parseString(inner, 1),
			Manufacturer: parseString(inner, 2),
			SWVersion:    parseString(inner, 6),
		}
		c.mu.Unlock()
	}
}

func (c *Client) handleDrop(conn *tls.Conn, cause error) {
	c.mu.Lock()
	if c.conn != conn {
		// already replaced or torn down deliberately
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.connected = false
	supervise := c.supervise
	onAuthError := c.onAuthError
	c.mu.Unlock()
	conn.Close()

	log.Warn().Err(cause).Str("host", c.Host()).Msg("Remote session dropped")
	for _, fn := range c.availCallbacks() {
		fn(false)
	}

	if !supervise {
		return
	}
	go c.superviseReconnect(onAuthError)
}

func (c *Client) superviseReconnect(onAuthError func()) {
	for {
		c.mu.Lock()
		supervise := c.supervise
		c.mu.Unlock()
		if !supervise {
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), superviseRetryDelay*2)
		err := c.Connect(ctx)
		cancel()
		if err == nil {
			for _, fn := range c.availCallbacks() {
				fn(true)
			}
			// Connect resets supervision; re-arm it.
			c.mu.Lock()
			c.supervise = true
			c.onAuthError = onAuthError
			c.mu.Unlock()
			return
		}
		if remote.Kind(err) == remote.KindAuth {
			log.Error().Str("host", c.Host()).Msg("Authentication rejected during reconnect")
			if onAuthError != nil {
				onAuthError()
			}
			return
		}
		time.Sleep(superviseRetryDelay)
	}
}

// SendKey injects a key event. The keycode may be a name ("POWER",
// "KEYCODE_POWER") or a numeric code.
func (c *Client) SendKey(keycode string, direction remote.KeyDirection) error {
	code, ok := lookupKeyCode(keycode)
	if !ok {
		return fmt.Errorf("%w: %s", remote.ErrUnknownKey, keycode)
	}

	dir := directionShort
	switch direction {
	case remote.DirectionStartLong:
		dir = directionStartLong
	case remote.DirectionEndLong:
		dir = directionEndLong
	}
	return c.write(remoteKeyInject(code, dir))
}

// LaunchApp sends an app-link launch request (deep link or package id).
func (c *Client) LaunchApp(target string) error {
	return c.write(remoteAppLinkLaunch(target))
}

func (c *Client) write(frame []byte) error {
	c.mu.Lock()
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return remote.ErrConnectionClosed
	}
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if err := writeFrame(conn, frame); err != nil {
		return fmt.Errorf("%w: %v", remote.ErrConnectionClosed, err)
	}
	return nil
}

func (c *Client) IsOn() (bool, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.isOn == nil {
		return false, false
	}
	return *c.isOn, true
}

func (c *Client) CurrentApp() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentApp
}

func (c *Client) DeviceInfo() *remote.DeviceInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.deviceInfo
}

func (c *Client) WriteOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.connected && c.conn != nil
}

func (c *Client) OnPowerChanged(fn func(bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onPower = append(c.onPower, fn)
}

func (c *Client) OnCurrentApp(fn func(string)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onApp = append(c.onApp, fn)
}

func (c *Client) OnVolume(fn func(remote.VolumeInfo)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onVolume = append(c.onVolume, fn)
}

func (c *Client) OnAvailability(fn func(bool)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onAvail = append(c.onAvail, fn)
}

func (c *Client) setPower(on bool) {
	c.mu.Lock()
	changed := c.isOn == nil || *c.isOn != on
	c.isOn = &on
	callbacks := append([]func(bool){}, c.onPower...)
	c.mu.Unlock()
	if changed {
		for _, fn := range callbacks {
			fn(on)
		}
	}
}

func (c *Client) setCurrentApp(app string) {
	c.mu.Lock()
	changed := c.currentApp != app
	c.currentApp = app
	callbacks := append([]func(string){}, c.onApp...)
	c.mu.Unlock()
	if changed {
		for _, fn := range callbacks {
			fn(app)
		}
	}
}

func (c *Client) volumeCallbacks() []func(remote.VolumeInfo) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]func(remote.VolumeInfo){}, c.onVolume...)
}

func (c *Client) availCallbacks() []func(bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]func(bool){}, c.onAvail...)
}
