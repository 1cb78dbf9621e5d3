// Package profiler serves net/http/pprof on a side listener for debugging
// long-running commands.
package profiler

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/http/pprof"

	"github.com/rs/zerolog"

	"github.com/hay-kot/bell/internal/core/logging"
)

type Server struct {
	httpServer *http.Server
	listener   net.Listener
	log        zerolog.Logger
}

// Start listens on addr and serves pprof until Shutdown.
func Start(addr string) (*Server, error) {
	mux := http.NewServeMux()
	mux.HandleFunc("/debug/pprof/", pprof.Index)
	mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
	mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
	mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
	mux.HandleFunc("/debug/pprof/trace", pprof.Trace)

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("profiler listen: %w", err)
	}

	s := &Server{
		httpServer: &http.Server{Handler: mux},
		listener:   ln,
		log:        logging.Component("profiler"),
	}

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error().Err(err).Msg("profiler server stopped")
		}
	}()

	s.log.Info().Str("url", "http://"+s.Addr()+"/debug/pprof/").Msg("profiler endpoint available")
	return s, nil
}

func (s *Server) Addr() string {
	return s.listener.Addr().String()
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
