// internal/resource/resource.go
package resource

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"strings"
	"sync"

	"github.com/plgd-dev/go-coap/v2/message"
	"github.com/plgd-dev/go-coap/v2/message/codes"
	"github.com/plgd-dev/go-coap/v2/mux"
	"go.uber.org/zap"

	"github.com/ocfkit/buttond/internal/button"
)

// observerConn is the slice of mux.Client the resource needs for
// observer bookkeeping and notifications.
type observerConn interface {
	Context() context.Context
	RemoteAddr() net.Addr
	WriteMessage(*message.Message) error
}

// observerKey identifies one observe registration: peer address + token.
type observerKey struct {
	addr  string
	token string
}

type observer struct {
	cc    observerConn
	token message.Token
}

// Resource is one registered resource and its observer set. The
// observer set is touched from transport goroutines and is the only
// mutex-guarded state in the process; the button state itself stays
// inside the notification loop.
type Resource struct {
	desc Descriptor
	log  *zap.SugaredLogger

	mu        sync.Mutex
	handler   Handler
	observers map[observerKey]observer
	seq       uint32
	published button.Snapshot
	inactive  bool
}

func newResource(desc Descriptor, log *zap.SugaredLogger) *Resource {
	return &Resource{
		desc:      desc,
		log:       log,
		observers: make(map[observerKey]observer),
		seq:       2, // 0 and 1 are the observe register/deregister values
		published: desc.Properties,
	}
}

// SetHandler wires the request handler. Requests arriving before this
// are answered with Service Unavailable.
func (r *Resource) SetHandler(h Handler) {
	r.mu.Lock()
	r.handler = h
	r.mu.Unlock()
}

// Published returns the last published properties.
func (r *Resource) Published() button.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.published
}

// Notify publishes snap and pushes it to every current observer.
// Returns ErrNoObservers when the observer set is empty. Write failures
// prune the dead observer and are aggregated; they are not fatal.
func (r *Resource) Notify(snap button.Snapshot) error {
	payload, err := encodeSnapshot(snap)
	if err != nil {
		return fmt.Errorf("resource: encode notify payload: %w", err)
	}

	r.mu.Lock()
	r.published = snap
	if len(r.observers) == 0 {
		r.mu.Unlock()
		return ErrNoObservers
	}
	r.seq++
	seq := r.seq
	keys := make([]observerKey, 0, len(r.observers))
	obs := make([]observer, 0, len(r.observers))
	for k, o := range r.observers {
		keys = append(keys, k)
		obs = append(obs, o)
	}
	r.mu.Unlock()

	var dead []observerKey
	var errs []string
	for i, o := range obs {
		if err := respond(o.cc, o.token, int64(seq), payload); err != nil {
			dead = append(dead, keys[i])
			errs = append(errs, fmt.Sprintf("peer=%s err=%v", keys[i].addr, err))
		}
	}

	if len(dead) > 0 {
		r.mu.Lock()
		for _, k := range dead {
			delete(r.observers, k)
		}
		r.mu.Unlock()
	}

	if len(errs) > 0 {
		return fmt.Errorf("resource: notify: %s", strings.Join(errs, " | "))
	}
	return nil
}

func (r *Resource) currentHandler() Handler {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.handler
}

func (r *Resource) active() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.inactive
}

// deactivate takes the resource off the wire and drops all observers.
func (r *Resource) deactivate() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := len(r.observers)
	r.observers = make(map[observerKey]observer)
	r.inactive = true
	return n
}

func (r *Resource) addObserver(cc observerConn, token message.Token) uint32 {
	k := observerKey{addr: cc.RemoteAddr().String(), token: token.String()}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.observers[k] = observer{cc: cc, token: token}
	r.seq++
	return r.seq
}

func (r *Resource) removeObserver(cc observerConn, token message.Token) {
	k := observerKey{addr: cc.RemoteAddr().String(), token: token.String()}

	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.observers, k)
}

// handle is the CoAP entry point for the resource path.
func (r *Resource) handle(w mux.ResponseWriter, req *mux.Message) {
	if !r.active() {
		setCode(w, codes.NotFound)
		return
	}
	if req.Code != codes.GET {
		setCode(w, codes.MethodNotAllowed)
		return
	}

	h := r.currentHandler()
	if h == nil {
		setCode(w, codes.ServiceUnavailable)
		return
	}

	cc := w.Client()
	obsOpt, obsErr := req.Options.Observe()

	switch {
	case r.desc.Observable && obsErr == nil && obsOpt == 0:
		r.handleObserve(cc, req.Token, h)

	case r.desc.Observable && obsErr == nil && obsOpt == 1:
		r.removeObserver(cc, req.Token)
		r.handleRetrieve(w, h)

	default:
		r.handleRetrieve(w, h)
	}
}

func (r *Resource) handleObserve(cc observerConn, token message.Token, h Handler) {
	// Register before invoking the handler: OnObserve arms the loop,
	// and a tick firing right away must already see this observer.
	seq := r.addObserver(cc, token)

	snap, err := h.OnObserve(cc.Context())
	if err != nil {
		r.removeObserver(cc, token)
		r.log.Warnw("observe handler unavailable", "peer", cc.RemoteAddr(), "err", err)
		_ = respondCode(cc, token, codes.ServiceUnavailable)
		return
	}

	payload, err := encodeSnapshot(snap)
	if err != nil {
		r.removeObserver(cc, token)
		r.log.Errorw("observe payload encode failed", "err", err)
		_ = respondCode(cc, token, codes.InternalServerError)
		return
	}

	if err := respond(cc, token, int64(seq), payload); err != nil {
		r.log.Errorw("observe response failed", "peer", cc.RemoteAddr(), "err", err)
		r.removeObserver(cc, token)
	}
}

func (r *Resource) handleRetrieve(w mux.ResponseWriter, h Handler) {
	cc := w.Client()

	snap, err := h.OnRetrieve(cc.Context())
	if err != nil {
		r.log.Warnw("retrieve handler unavailable", "peer", cc.RemoteAddr(), "err", err)
		setCode(w, codes.ServiceUnavailable)
		return
	}

	payload, err := encodeSnapshot(snap)
	if err != nil {
		r.log.Errorw("retrieve payload encode failed", "err", err)
		setCode(w, codes.InternalServerError)
		return
	}

	if err := w.SetResponse(codes.Content, message.AppJSON, bytes.NewReader(payload)); err != nil {
		r.log.Errorw("retrieve response failed", "peer", cc.RemoteAddr(), "err", err)
	}
}

// responseOptions builds the option set for a content response.
// obs < 0 omits the Observe option.
//
// Each option value must encode into its own buffer: Set* stores the
// encoded value as a slice of the buffer it is given and starts at
// offset 0, so a shared buffer would overwrite the previous option.
func responseOptions(obs int64) (message.Options, error) {
	var opts message.Options

	var cbuf []byte
	opts, n, err := opts.SetContentFormat(cbuf, message.AppJSON)
	if err == message.ErrTooSmall {
		cbuf = append(cbuf, make([]byte, n)...)
		opts, n, err = opts.SetContentFormat(cbuf, message.AppJSON)
	}
	if err != nil {
		return nil, fmt.Errorf("resource: set content format: %w", err)
	}

	if obs >= 0 {
		var obuf []byte
		opts, n, err = opts.SetObserve(obuf, uint32(obs))
		if err == message.ErrTooSmall {
			obuf = append(obuf, make([]byte, n)...)
			opts, n, err = opts.SetObserve(obuf, uint32(obs))
		}
		if err != nil {
			return nil, fmt.Errorf("resource: set observe option: %w", err)
		}
	}

	return opts, nil
}

// respond writes one response or notification on cc with the request
// token. obs < 0 omits the Observe option.
func respond(cc observerConn, token message.Token, obs int64, payload []byte) error {
	opts, err := responseOptions(obs)
	if err != nil {
		return err
	}

	m := message.Message{
		Code:    codes.Content,
		Token:   token,
		Context: cc.Context(),
		Body:    bytes.NewReader(payload),
		Options: opts,
	}
	return cc.WriteMessage(&m)
}

func respondCode(cc observerConn, token message.Token, code codes.Code) error {
	m := message.Message{
		Code:    code,
		Token:   token,
		Context: cc.Context(),
	}
	return cc.WriteMessage(&m)
}

func setCode(w mux.ResponseWriter, code codes.Code) {
	_ = w.SetResponse(code, message.TextPlain, nil)
}
