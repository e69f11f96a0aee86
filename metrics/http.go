package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
)

// Server is the minimal /metrics + /healthz HTTP listener the daemon runs
// alongside the cluster wire protocol and the local control socket.
type Server struct {
	Addr string
	reg  *prometheus.Registry

	srv *fasthttp.Server
}

func NewServer(addr string, reg *prometheus.Registry) *Server {
	return &Server{Addr: addr, reg: reg}
}

func (s *Server) ListenAndServe() error {
	metricsHandler := fasthttpadaptor.NewFastHTTPHandler(
		promhttp.HandlerFor(s.reg, promhttp.HandlerOpts{}),
	)

	s.srv = &fasthttp.Server{
		Handler: func(ctx *fasthttp.RequestCtx) {
			switch string(ctx.Path()) {
			case "/metrics":
				metricsHandler(ctx)
			case "/healthz":
				ctx.SetStatusCode(fasthttp.StatusOK)
				ctx.SetBodyString("ok")
			default:
				ctx.SetStatusCode(fasthttp.StatusNotFound)
			}
		},
	}
	return s.srv.ListenAndServe(s.Addr)
}

func (s *Server) Close() error {
	if s.srv == nil {
		return nil
	}
	return s.srv.Shutdown()
}
