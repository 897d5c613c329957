// Package web serves a read-only view of the controller for a browser or a
// monitoring scraper.
package web

import (
	"context"
	"net"
	"net/http"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/sweeney/onoff/internal/status"
)

// Server renders the tracker's snapshot. Nothing here can change the power
// state: the only routes are GET views.
type Server struct {
	http    *http.Server
	tracker *status.Tracker
	mux     *http.ServeMux
}

// New returns a server for addr. It does not listen until ListenAndServe or
// Serve is called.
func New(addr string, tracker *status.Tracker) *Server {
	s := &Server{tracker: tracker, mux: http.NewServeMux()}
	s.mux.HandleFunc("/", s.view(s.writeHTML))
	s.mux.HandleFunc("/index.html", s.view(s.writeHTML))
	s.mux.HandleFunc("/index.json", s.view(s.writeJSON))

	s.http = &http.Server{
		Addr:              addr,
		Handler:           s.mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler returns the router.
func (s *Server) Handler() http.Handler { return s.mux }

// ListenAndServe blocks until Shutdown.
func (s *Server) ListenAndServe() error { return s.http.ListenAndServe() }

// Serve accepts connections on ln.
func (s *Server) Serve(ln net.Listener) error { return s.http.Serve(ln) }

// Shutdown stops accepting requests and waits for active ones.
func (s *Server) Shutdown(ctx context.Context) error { return s.http.Shutdown(ctx) }

// view wraps a renderer with the checks every route shares.
func (s *Server) view(render func(http.ResponseWriter, status.Snapshot)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/", "/index.html", "/index.json":
		default:
			http.NotFound(w, r)
			return
		}
		if r.Method != http.MethodGet && r.Method != http.MethodHead {
			w.Header().Set("Allow", "GET, HEAD")
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		w.Header().Set("Cache-Control", "no-store")
		render(w, s.tracker.Snapshot())
	}
}

func (s *Server) writeHTML(w http.ResponseWriter, snap status.Snapshot) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	renderHTML(w, snap)
}

func (s *Server) writeJSON(w http.ResponseWriter, snap status.Snapshot) {
	w.Header().Set("Content-Type", "application/json")
	if _, err := w.Write(status.FormatJSON(snap)); err != nil {
		log.WithError(err).Debug("web: write status")
	}
}
