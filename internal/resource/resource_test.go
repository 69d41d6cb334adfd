// internal/resource/resource_test.go
package resource

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net"
	"testing"

	"github.com/plgd-dev/go-coap/v2/message"
	"go.uber.org/zap"

	"github.com/ocfkit/buttond/internal/button"
)

type fakeConn struct {
	addr net.Addr
	fail bool
	msgs []*message.Message
}

func newFakeConn(port int) *fakeConn {
	return &fakeConn{addr: &net.UDPAddr{IP: net.IPv4(127, 0, 0, 1), Port: port}}
}

func (f *fakeConn) Context() context.Context { return context.Background() }
func (f *fakeConn) RemoteAddr() net.Addr     { return f.addr }

func (f *fakeConn) WriteMessage(m *message.Message) error {
	if f.fail {
		return errors.New("peer gone")
	}
	f.msgs = append(f.msgs, m)
	return nil
}

type handlerFunc struct {
	observe  func(context.Context) (button.Snapshot, error)
	retrieve func(context.Context) (button.Snapshot, error)
}

func (h handlerFunc) OnObserve(ctx context.Context) (button.Snapshot, error) {
	return h.observe(ctx)
}

func (h handlerFunc) OnRetrieve(ctx context.Context) (button.Snapshot, error) {
	return h.retrieve(ctx)
}

func buttonDesc() Descriptor {
	return Descriptor{
		Path:          "/a/button",
		ResourceTypes: []string{button.ResourceType},
		Interfaces:    []string{"oic.if.baseline"},
		Discoverable:  true,
		Observable:    true,
		Properties:    button.Snapshot{ResourceType: button.ResourceType, ID: button.ID},
	}
}

func TestNotify_NoObservers(t *testing.T) {
	res := newResource(buttonDesc(), zap.NewNop().Sugar())

	err := res.Notify(button.Snapshot{ResourceType: button.ResourceType, ID: button.ID, Value: true})
	if !errors.Is(err, ErrNoObservers) {
		t.Fatalf("err=%v want ErrNoObservers", err)
	}

	var n interface{ NoObservers() bool }
	if !errors.As(err, &n) || !n.NoObservers() {
		t.Fatalf("outcome must carry the no-observers reason")
	}
}

func TestNotify_PublishesEvenWithoutObservers(t *testing.T) {
	res := newResource(buttonDesc(), zap.NewNop().Sugar())

	snap := button.Snapshot{ResourceType: button.ResourceType, ID: button.ID, Value: true}
	_ = res.Notify(snap)

	if got := res.Published(); got != snap {
		t.Fatalf("published=%+v want %+v", got, snap)
	}
}

func TestEncodeSnapshot_WireShape(t *testing.T) {
	raw, err := encodeSnapshot(button.Snapshot{
		ResourceType: button.ResourceType,
		ID:           button.ID,
		Value:        true,
	})
	if err != nil {
		t.Fatalf("encode err=%v", err)
	}

	var wire map[string]interface{}
	if err := json.Unmarshal(raw, &wire); err != nil {
		t.Fatalf("decode err=%v", err)
	}

	if wire["rt"] != "oic.r.button" {
		t.Fatalf("rt=%v want oic.r.button", wire["rt"])
	}
	if wire["id"] != "button" {
		t.Fatalf("id=%v want button", wire["id"])
	}
	if wire["value"] != true {
		t.Fatalf("value=%v want true", wire["value"])
	}
	if len(wire) != 3 {
		t.Fatalf("payload has %d fields, want 3: %s", len(wire), raw)
	}
}

func TestEncodeLinks_DiscoveryPayload(t *testing.T) {
	observable := newResource(buttonDesc(), zap.NewNop().Sugar())

	hiddenDesc := buttonDesc()
	hiddenDesc.Path = "/a/hidden"
	hiddenDesc.Discoverable = false
	hidden := newResource(hiddenDesc, zap.NewNop().Sugar())

	raw, err := encodeLinks([]*Resource{observable, hidden})
	if err != nil {
		t.Fatalf("encode err=%v", err)
	}

	var links []Link
	if err := json.Unmarshal(raw, &links); err != nil {
		t.Fatalf("decode err=%v", err)
	}

	if len(links) != 1 {
		t.Fatalf("got %d links, want 1 (non-discoverable must be skipped)", len(links))
	}
	if links[0].Href != "/a/button" {
		t.Fatalf("href=%q want /a/button", links[0].Href)
	}
	if links[0].Policy.BitMask != policyDiscoverable|policyObservable {
		t.Fatalf("bm=%d want %d", links[0].Policy.BitMask, policyDiscoverable|policyObservable)
	}
}

func TestResponseOptions_ObserveKeepsContentFormat(t *testing.T) {
	for _, seq := range []int64{3, 300} {
		opts, err := responseOptions(seq)
		if err != nil {
			t.Fatalf("seq %d: err=%v", seq, err)
		}

		cf, err := opts.ContentFormat()
		if err != nil {
			t.Fatalf("seq %d: content format missing: %v", seq, err)
		}
		if cf != message.AppJSON {
			t.Fatalf("seq %d: content format=%d want %d", seq, cf, message.AppJSON)
		}

		obs, err := opts.Observe()
		if err != nil {
			t.Fatalf("seq %d: observe option missing: %v", seq, err)
		}
		if int64(obs) != seq {
			t.Fatalf("observe=%d want %d", obs, seq)
		}
	}
}

func TestResponseOptions_NoObserveOnPlainResponse(t *testing.T) {
	opts, err := responseOptions(-1)
	if err != nil {
		t.Fatalf("err=%v", err)
	}

	cf, err := opts.ContentFormat()
	if err != nil || cf != message.AppJSON {
		t.Fatalf("content format=%d err=%v want %d", cf, err, message.AppJSON)
	}
	if _, err := opts.Observe(); err == nil {
		t.Fatalf("plain response must not carry an Observe option")
	}
}

func TestNotify_ObserverWireMessage(t *testing.T) {
	res := newResource(buttonDesc(), zap.NewNop().Sugar())
	cc := newFakeConn(40001)
	res.addObserver(cc, message.Token{0x01})

	snap := button.Snapshot{ResourceType: button.ResourceType, ID: button.ID, Value: true}
	if err := res.Notify(snap); err != nil {
		t.Fatalf("notify err=%v", err)
	}
	if len(cc.msgs) != 1 {
		t.Fatalf("got %d messages, want 1", len(cc.msgs))
	}
	m := cc.msgs[0]

	cf, err := m.Options.ContentFormat()
	if err != nil {
		t.Fatalf("content format missing: %v", err)
	}
	if cf != message.AppJSON {
		t.Fatalf("content format=%d want %d", cf, message.AppJSON)
	}

	if _, err := m.Options.Observe(); err != nil {
		t.Fatalf("notification must carry an Observe option: %v", err)
	}

	raw, err := io.ReadAll(m.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	var got button.Snapshot
	if err := json.Unmarshal(raw, &got); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if got != snap {
		t.Fatalf("payload=%+v want %+v", got, snap)
	}
}

func TestNotify_PrunesDeadObservers(t *testing.T) {
	res := newResource(buttonDesc(), zap.NewNop().Sugar())

	good := newFakeConn(40002)
	bad := newFakeConn(40003)
	bad.fail = true
	res.addObserver(good, message.Token{0x01})
	res.addObserver(bad, message.Token{0x02})

	snap := button.Snapshot{ResourceType: button.ResourceType, ID: button.ID, Value: true}

	err := res.Notify(snap)
	if err == nil || errors.Is(err, ErrNoObservers) {
		t.Fatalf("err=%v want aggregated write failure", err)
	}

	// Dead observer pruned; the healthy one remains.
	if err := res.Notify(snap); err != nil {
		t.Fatalf("second notify err=%v", err)
	}
	if len(good.msgs) != 2 {
		t.Fatalf("healthy observer got %d messages, want 2", len(good.msgs))
	}
}

func TestObserve_RegistersBeforeHandlerRuns(t *testing.T) {
	res := newResource(buttonDesc(), zap.NewNop().Sugar())
	cc := newFakeConn(40004)

	snap := button.Snapshot{ResourceType: button.ResourceType, ID: button.ID, Value: true}

	// A tick can fire the instant the handler arms the loop; a notify
	// issued at that moment must already see this observer.
	var notifyErr error
	h := handlerFunc{
		observe: func(context.Context) (button.Snapshot, error) {
			notifyErr = res.Notify(snap)
			return snap, nil
		},
	}

	res.handleObserve(cc, message.Token{0x01}, h)

	if errors.Is(notifyErr, ErrNoObservers) {
		t.Fatalf("observer not registered when the handler ran")
	}
	if notifyErr != nil {
		t.Fatalf("notify during observe err=%v", notifyErr)
	}
	if len(cc.msgs) != 2 {
		t.Fatalf("got %d messages, want notification + observe response", len(cc.msgs))
	}
}

func TestObserve_HandlerFailureRemovesObserver(t *testing.T) {
	res := newResource(buttonDesc(), zap.NewNop().Sugar())
	cc := newFakeConn(40005)

	h := handlerFunc{
		observe: func(context.Context) (button.Snapshot, error) {
			return button.Snapshot{}, errors.New("loop stopped")
		},
	}

	res.handleObserve(cc, message.Token{0x01}, h)

	snap := button.Snapshot{ResourceType: button.ResourceType, ID: button.ID}
	if err := res.Notify(snap); !errors.Is(err, ErrNoObservers) {
		t.Fatalf("err=%v want ErrNoObservers after failed observe", err)
	}
}

func TestObserve_WriteFailureRemovesObserver(t *testing.T) {
	res := newResource(buttonDesc(), zap.NewNop().Sugar())
	cc := newFakeConn(40006)
	cc.fail = true

	snap := button.Snapshot{ResourceType: button.ResourceType, ID: button.ID, Value: true}
	h := handlerFunc{
		observe: func(context.Context) (button.Snapshot, error) { return snap, nil },
	}

	res.handleObserve(cc, message.Token{0x01}, h)

	if err := res.Notify(snap); !errors.Is(err, ErrNoObservers) {
		t.Fatalf("err=%v want ErrNoObservers after undeliverable response", err)
	}
}

func TestUnregister_DeactivatesResource(t *testing.T) {
	srv := NewServer(":0", zap.NewNop().Sugar())

	res, err := srv.Register(buttonDesc())
	if err != nil {
		t.Fatalf("register err=%v", err)
	}
	if !res.active() {
		t.Fatalf("freshly registered resource must be active")
	}

	if err := srv.Unregister(res); err != nil {
		t.Fatalf("unregister err=%v", err)
	}
	if res.active() {
		t.Fatalf("unregistered resource must be inactive")
	}

	if err := srv.Unregister(res); err == nil {
		t.Fatalf("double unregister must fail")
	}
}

func TestRegister_RejectsDiscoveryPath(t *testing.T) {
	srv := NewServer(":0", zap.NewNop().Sugar())

	if _, err := srv.Register(Descriptor{Path: discoveryPath}); err == nil {
		t.Fatalf("registering over %s must fail", discoveryPath)
	}
	if _, err := srv.Register(Descriptor{}); err == nil {
		t.Fatalf("registering an empty path must fail")
	}
}
