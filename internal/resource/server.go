// internal/resource/server.go
package resource

import (
	"bytes"
	"fmt"
	"sync"

	"github.com/plgd-dev/go-coap/v2/message"
	"github.com/plgd-dev/go-coap/v2/message/codes"
	"github.com/plgd-dev/go-coap/v2/mux"
	coapnet "github.com/plgd-dev/go-coap/v2/net"
	"github.com/plgd-dev/go-coap/v2/udp"
	"go.uber.org/zap"
)

const discoveryPath = "/oic/res"

// Server hosts resources over CoAP/UDP and answers discovery.
type Server struct {
	listen string
	log    *zap.SugaredLogger
	router *mux.Router
	srv    *udp.Server

	mu        sync.Mutex
	resources []*Resource
}

func NewServer(listen string, log *zap.SugaredLogger) *Server {
	r := mux.NewRouter()
	s := &Server{
		listen: listen,
		log:    log,
		router: r,
	}

	_ = r.Handle(discoveryPath, mux.HandlerFunc(s.handleDiscovery))
	s.srv = udp.NewServer(udp.WithMux(r))
	return s
}

// Register adds one resource under its path.
func (s *Server) Register(desc Descriptor) (*Resource, error) {
	if desc.Path == "" || desc.Path == discoveryPath {
		return nil, fmt.Errorf("resource: invalid path %q", desc.Path)
	}

	res := newResource(desc, s.log)
	if err := s.router.Handle(desc.Path, mux.HandlerFunc(res.handle)); err != nil {
		return nil, fmt.Errorf("resource: register %s: %w", desc.Path, err)
	}

	s.mu.Lock()
	s.resources = append(s.resources, res)
	s.mu.Unlock()

	s.log.Infow("resource registered", "path", desc.Path, "rt", desc.ResourceTypes)
	return res, nil
}

// Unregister takes the resource off the wire: it disappears from
// discovery, its path answers Not Found and its observers are dropped.
func (s *Server) Unregister(res *Resource) error {
	if res == nil {
		return fmt.Errorf("resource: unregister nil resource")
	}

	s.mu.Lock()
	kept := s.resources[:0]
	found := false
	for _, r := range s.resources {
		if r == res {
			found = true
			continue
		}
		kept = append(kept, r)
	}
	s.resources = kept
	s.mu.Unlock()

	if !found {
		return fmt.Errorf("resource: %s not registered", res.desc.Path)
	}

	dropped := res.deactivate()
	s.log.Infow("resource unregistered", "path", res.desc.Path, "observers_dropped", dropped)
	return nil
}

// Serve blocks serving CoAP until Stop is called.
func (s *Server) Serve() error {
	l, err := coapnet.NewListenUDP("udp", s.listen)
	if err != nil {
		return fmt.Errorf("resource: listen %s: %w", s.listen, err)
	}
	defer l.Close()

	return s.srv.Serve(l)
}

// Stop shuts the server down; Serve returns afterwards.
func (s *Server) Stop() {
	s.srv.Stop()
}

func (s *Server) handleDiscovery(w mux.ResponseWriter, req *mux.Message) {
	if req.Code != codes.GET {
		setCode(w, codes.MethodNotAllowed)
		return
	}

	s.mu.Lock()
	active := make([]*Resource, 0, len(s.resources))
	for _, r := range s.resources {
		if r.active() {
			active = append(active, r)
		}
	}
	s.mu.Unlock()

	payload, err := encodeLinks(active)
	if err != nil {
		s.log.Errorw("discovery encode failed", "err", err)
		setCode(w, codes.InternalServerError)
		return
	}

	if err := w.SetResponse(codes.Content, message.AppJSON, bytes.NewReader(payload)); err != nil {
		s.log.Errorw("discovery response failed", "err", err)
	}
}
