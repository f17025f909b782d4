package bridge

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/dkeye/Cast/internal/domain"
	"github.com/dkeye/Cast/internal/media"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

var (
	ErrClosed           = errors.New("bridge closed")
	ErrTimeout          = errors.New("timed out waiting for server")
	ErrDuplicatePending = errors.New("operation already pending")
)

const defaultTimeout = 10 * time.Second

type Options struct {
	// Timeout bounds every request. Zero means ten seconds.
	Timeout  time.Duration
	ForceTCP bool
	Header   http.Header
}

type Bridge struct {
	conn     *websocket.Conn
	device   Device
	timeout  time.Duration
	forceTCP bool

	writeMu sync.Mutex
	pending *pendingSet

	mu   sync.Mutex
	send LocalTransport
	recv LocalTransport

	newProducers chan domain.NewProducerData
	done         chan struct{}
	closeOnce    sync.Once
}

// Dial opens the signaling socket at url and starts reading from it.
func Dial(ctx context.Context, url string, device Device, opts Options) (*Bridge, error) {
	ws, _, err := websocket.DefaultDialer.DialContext(ctx, url, opts.Header)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", url, err)
	}
	return New(ws, device, opts), nil
}

func New(ws *websocket.Conn, device Device, opts Options) *Bridge {
	if opts.Timeout <= 0 {
		opts.Timeout = defaultTimeout
	}
	b := &Bridge{
		conn:         ws,
		device:       device,
		timeout:      opts.Timeout,
		forceTCP:     opts.ForceTCP,
		pending:      newPendingSet(),
		newProducers: make(chan domain.NewProducerData, 16),
		done:         make(chan struct{}),
	}
	go b.readLoop()
	return b
}

// NewProducers delivers newProducer announcements. Announcements are dropped
// when nobody reads them.
func (b *Bridge) NewProducers() <-chan domain.NewProducerData {
	return b.newProducers
}

// Done is closed once the signaling socket stops.
func (b *Bridge) Done() <-chan struct{} {
	return b.done
}

func (b *Bridge) Close() error {
	var err error
	b.closeOnce.Do(func() {
		b.mu.Lock()
		for _, lt := range []LocalTransport{b.send, b.recv} {
			if lt != nil {
				_ = lt.Close()
			}
		}
		b.mu.Unlock()

		b.writeMu.Lock()
		_ = b.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(time.Second))
		b.writeMu.Unlock()
		err = b.conn.Close()
	})
	return err
}

func (b *Bridge) readLoop() {
	defer func() {
		b.pending.closeAll(ErrClosed)
		close(b.done)
	}()
	for {
		_, data, err := b.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				log.Warn().Err(err).Str("module", "bridge").Msg("read loop stopped")
			}
			return
		}
		b.dispatch(data)
	}
}

func (b *Bridge) dispatch(data []byte) {
	var msg struct {
		Type domain.MessageType `json:"type"`
		Data json.RawMessage    `json:"data"`
	}
	if err := json.Unmarshal(data, &msg); err != nil {
		log.Warn().Err(err).Str("module", "bridge").Msg("bad json from server")
		return
	}

	switch msg.Type {
	case domain.TypeError:
		var text string
		if err := json.Unmarshal(msg.Data, &text); err != nil {
			text = string(msg.Data)
		}
		log.Error().Str("module", "bridge").Str("error", text).Msg("server error")
		if !b.pending.rejectOldest(text) {
			log.Warn().Str("module", "bridge").Msg("error reply with nothing pending")
		}
	case domain.TypeNewProducer:
		var np domain.NewProducerData
		if err := json.Unmarshal(msg.Data, &np); err != nil {
			log.Warn().Err(err).Str("module", "bridge").Msg("bad newProducer")
			return
		}
		select {
		case b.newProducers <- np:
		default:
			log.Debug().Str("module", "bridge").Str("producer", np.ID).Msg("newProducer dropped")
		}
	default:
		if !b.pending.resolve(msg.Type, msg.Data) {
			log.Debug().Str("module", "bridge").Str("type", string(msg.Type)).Msg("unexpected reply")
		}
	}
}

func (b *Bridge) write(v any) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	if err := b.conn.SetWriteDeadline(time.Now().Add(b.timeout)); err != nil {
		return err
	}
	return b.conn.WriteJSON(v)
}

// request sends v and waits for a reply of type want. transportID scopes the
// wait so two transports never share a future.
func (b *Bridge) request(ctx context.Context, v any, want domain.MessageType, transportID string) (json.RawMessage, error) {
	f, err := b.pending.add(want, transportID)
	if err != nil {
		return nil, err
	}
	if err := b.write(v); err != nil {
		b.pending.remove(f)
		return nil, fmt.Errorf("send for %s: %w", want, err)
	}

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()
	select {
	case r := <-f.ch:
		return r.data, r.err
	case <-timer.C:
		b.pending.remove(f)
		return nil, fmt.Errorf("%s: %w", want, ErrTimeout)
	case <-ctx.Done():
		b.pending.remove(f)
		return nil, ctx.Err()
	}
}

func decodeReply[T any](raw json.RawMessage, op domain.MessageType) (T, error) {
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return v, fmt.Errorf("decode %s: %w", op, err)
	}
	return v, nil
}

type message struct {
	Type domain.MessageType `json:"type"`
}

type createTransportMessage struct {
	Type domain.MessageType `json:"type"`
	domain.CreateTransportRequest
}

type connectTransportMessage struct {
	Type domain.MessageType `json:"type"`
	domain.ConnectTransportRequest
}

type produceMessage struct {
	Type domain.MessageType `json:"type"`
	domain.ProduceRequest
}

type consumeMessage struct {
	Type domain.MessageType `json:"type"`
	domain.ConsumeRequest
}

// LoadDevice fetches the router capabilities and loads the device with them.
func (b *Bridge) LoadDevice(ctx context.Context) error {
	if b.device.Loaded() {
		return nil
	}
	raw, err := b.request(ctx, message{Type: domain.TypeGetRouterRtpCapabilities}, domain.TypeRouterCapabilities, "")
	if err != nil {
		return err
	}
	caps, err := decodeReply[media.RtpCapabilities](raw, domain.TypeRouterCapabilities)
	if err != nil {
		return err
	}
	if err := b.device.Load(caps); err != nil {
		return fmt.Errorf("load device: %w", err)
	}
	log.Info().Str("module", "bridge").Int("codecs", len(caps.Codecs)).Msg("device loaded")
	return nil
}

func (b *Bridge) connectHandler(lt LocalTransport, op, want domain.MessageType) ConnectFunc {
	return func(ctx context.Context, dtls media.DtlsParameters) error {
		_, err := b.request(ctx, connectTransportMessage{
			Type:                    op,
			ConnectTransportRequest: domain.ConnectTransportRequest{TransportID: lt.ID(), DtlsParameters: dtls},
		}, want, lt.ID())
		return err
	}
}

// observe logs state changes of lt. A failed transport is closed; a receive
// transport that connects asks the server to resume its consumer and reports
// the outcome on resumed.
func (b *Bridge) observe(lt LocalTransport, resumed chan<- error) StateFunc {
	return func(state media.TransportState) {
		log.Info().Str("module", "bridge").Str("transport", lt.ID()).Str("direction", string(lt.Direction())).Str("state", state.String()).Msg("transport state")
		switch state {
		case media.TransportStateConnected:
			if resumed == nil {
				return
			}
			_, err := b.request(context.Background(), message{Type: domain.TypeResume}, domain.TypeResumed, lt.ID())
			select {
			case resumed <- err:
			default:
			}
		case media.TransportStateFailed:
			_ = lt.Close()
		}
	}
}

func (b *Bridge) replace(slot *LocalTransport, lt LocalTransport) {
	b.mu.Lock()
	old := *slot
	*slot = lt
	b.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
}
