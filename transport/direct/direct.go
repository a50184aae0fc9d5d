// Package direct implements the direct-wire variant of the transport
// abstraction (spec.md §4.1): explicit point-to-point HTTP connections
// between the SMN and each node's GC endpoint, addressed by URL instead of
// broker topic. The client used to dial peers is pluggable — plain
// net/http by default, or github.com/valyala/fasthttp for lower per-call
// allocation — mirroring the teacher's own configurable intra-cluster
// client (transport.whichClient()).
package direct

import (
	"bytes"
	"fmt"
	"io"
	"net/http"
	"sync"

	"github.com/valyala/fasthttp"

	"github.com/openbuildnet/obncore/cmn/cos"
	"github.com/openbuildnet/obncore/cmn/nlog"
	"github.com/openbuildnet/obncore/transport"
)

// Client abstracts the HTTP POST used to deliver a message to a peer URL.
type Client interface {
	Post(url string, body []byte) error
}

type netHTTPClient struct{ cli *http.Client }

func NewNetHTTPClient() Client { return &netHTTPClient{cli: &http.Client{}} }

func (c *netHTTPClient) Post(url string, body []byte) error {
	resp, err := c.cli.Post(url, "application/octet-stream", bytes.NewReader(body))
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("direct transport: peer %s returned status %d", url, resp.StatusCode)
	}
	return nil
}

type fastClient struct{ cli *fasthttp.Client }

// NewFastHTTPClient returns the low-allocation client variant, selected
// when a workspace favors throughput over the marginally simpler net/http
// stack (e.g. high port-update fan-out).
func NewFastHTTPClient() Client { return &fastClient{cli: &fasthttp.Client{}} }

func (c *fastClient) Post(url string, body []byte) error {
	req := fasthttp.AcquireRequest()
	resp := fasthttp.AcquireResponse()
	defer fasthttp.ReleaseRequest(req)
	defer fasthttp.ReleaseResponse(resp)

	req.SetRequestURI(url)
	req.Header.SetMethod(fasthttp.MethodPost)
	req.Header.SetContentType("application/octet-stream")
	req.SetBody(body)

	if err := c.cli.Do(req, resp); err != nil {
		return err
	}
	if resp.StatusCode() != fasthttp.StatusOK {
		return fmt.Errorf("direct transport: peer %s returned status %d", url, resp.StatusCode())
	}
	return nil
}

// Transport is the direct-wire variant: each Open starts (or reuses) an
// HTTP server listening on listenAddr, registers a handler at
// "/"+local, and resolves peer names to URLs via the Resolver.
type Transport struct {
	listenAddr string
	client     Client
	resolve    Resolver

	mu      sync.Mutex
	mux     *http.ServeMux
	server  *http.Server
	started bool

	endpoints map[string]*endpoint
}

// Resolver maps a peer endpoint name (e.g. "workspace/node/_gc_") to the
// base URL of the process hosting it. Assembled by package workspace from
// the per-node transport address table.
type Resolver func(peer string) (url string, ok bool)

func New(listenAddr string, client Client, resolve Resolver) *Transport {
	if client == nil {
		client = NewNetHTTPClient()
	}
	return &Transport{
		listenAddr: listenAddr,
		client:     client,
		resolve:    resolve,
		mux:        http.NewServeMux(),
		endpoints:  make(map[string]*endpoint, 16),
	}
}

func (t *Transport) Name() string { return "direct" }

func (t *Transport) Open(local string, onRecv transport.RecvFunc, onLoss transport.LossFunc, extra *transport.Extra) (transport.Endpoint, error) {
	ep := &endpoint{t: t, local: local, onRecv: onRecv, onLoss: onLoss}
	if extra != nil {
		ep.extra = *extra
	}

	t.mu.Lock()
	t.endpoints[local] = ep
	path := "/" + local
	t.mux.HandleFunc(path, ep.serveHTTP)
	if !t.started {
		t.server = &http.Server{Addr: t.listenAddr, Handler: t.mux}
		t.started = true
		go func() {
			if err := t.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				nlog.Errorf("direct transport: server stopped: %v", err)
			}
		}()
	}
	t.mu.Unlock()
	return ep, nil
}

func (t *Transport) Shutdown() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.server == nil {
		return nil
	}
	return t.server.Close()
}

type endpoint struct {
	t      *Transport
	local  string
	onRecv transport.RecvFunc
	onLoss transport.LossFunc
	extra  transport.Extra
}

func (ep *endpoint) serveHTTP(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	defer r.Body.Close()
	if err != nil {
		if ep.onLoss != nil {
			ep.onLoss(cos.NewError(cos.KindInputPortRawMsg, "direct", err))
		}
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	if ep.extra.Compression == transport.CompressionLZ4 {
		body, err = transport.DecompressLZ4(body)
		if err != nil {
			if ep.onLoss != nil {
				ep.onLoss(err)
			}
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
	}
	ep.onRecv(body)
	w.WriteHeader(http.StatusOK)
}

func (ep *endpoint) Send(peer string, payload []byte) error {
	url, ok := ep.t.resolve(peer)
	if !ok {
		return cos.Errorf(cos.KindOutputPortSendMsg, "direct", "no address known for peer %s", peer)
	}
	if ep.extra.Compression == transport.CompressionLZ4 {
		compressed, err := transport.CompressLZ4(payload)
		if err != nil {
			return err
		}
		payload = compressed
	}
	if err := ep.t.client.Post(url+"/"+peer, payload); err != nil {
		wrapped := cos.NewError(cos.KindTransportLoss, "direct", err)
		if ep.onLoss != nil {
			ep.onLoss(wrapped)
		}
		return wrapped
	}
	return nil
}

func (ep *endpoint) Close() error { return nil }
