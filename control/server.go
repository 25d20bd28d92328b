package control

import (
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"time"

	"github.com/golang/glog"
	"github.com/gorilla/websocket"
)

// StatusInterval is how often status is pushed to websocket clients.
const StatusInterval = 50 * time.Millisecond

// ParamMessage is a parameter change sent by a websocket client.
type ParamMessage struct {
	Param string  `json:"param"`
	Value float64 `json:"value"`
}

// StatusMessage is pushed to websocket clients.
type StatusMessage struct {
	Transport *TransportStatus   `json:"transport"`
	Export    *ExportStatus      `json:"export"`
	Features  map[string]float64 `json:"features"`
	BPM       float64            `json:"bpm"`
	Frames    uint64             `json:"frames"`
}

// Server serves the graphql endpoints, the status websocket and an optional
// static directory.
type Server struct {
	api      *API
	reg      *Registry
	upgrader websocket.Upgrader
	interval time.Duration
	mux      *http.ServeMux
}

// NewServer creates a Server. An empty static dir serves nothing at /.
func NewServer(api *API, static string) *Server {
	s := &Server{
		api:      api,
		reg:      api.reg,
		interval: StatusInterval,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
		mux: http.NewServeMux(),
	}
	s.mux.HandleFunc("/api/v1/graphql", s.queryV1)
	s.mux.HandleFunc("/api/v2/graphql", s.queryV2)
	s.mux.HandleFunc("/ws/status", s.status)
	if static != "" {
		s.mux.Handle("/", http.FileServer(http.Dir(static)))
	}
	return s
}

// HandleMIDI accepts raw MIDI messages on /ws/midi, one message per binary
// websocket frame, and hands them to m.
func (s *Server) HandleMIDI(m *Mapper) {
	start := time.Now()
	s.mux.HandleFunc("/ws/midi", func(w http.ResponseWriter, r *http.Request) {
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("[WARNING] websocket upgrade:", err)
			return
		}
		defer conn.Close()
		for {
			typ, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			if typ != websocket.BinaryMessage {
				continue
			}
			if msg, ok := ParseMessage(data, time.Since(start)); ok {
				m.Handle(msg)
			} else if glog.V(2) {
				glog.Infof("ignored midi message % x", data)
			}
		}
	})
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}

// ListenAndServe runs until ctx is cancelled.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{Addr: addr, Handler: s}
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		srv.Shutdown(shutdown)
	}()
	glog.Infof("control server listening on %s", addr)
	if err := srv.ListenAndServe(); err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) queryV1(w http.ResponseWriter, r *http.Request) {
	query := r.URL.Query().Get("query")
	glog.V(2).Info(query)
	res := s.api.Query(query, nil)
	json.NewEncoder(w).Encode(res)
}

func (s *Server) queryV2(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	var req struct {
		Query     string                 `json:"query"`
		Variables map[string]interface{} `json:"variables"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	glog.V(2).Info(req.Query)

	res := s.api.Query(req.Query, req.Variables)
	for _, err := range res.Errors {
		log.Println("[ERROR]", err)
	}
	json.NewEncoder(w).Encode(res)
}

func (s *Server) statusMessage() *StatusMessage {
	st := s.api.eng.Status()
	return &StatusMessage{
		Transport: s.api.transportStatus(),
		Export:    s.api.exportStatus(),
		Features:  st.Features.Features.Map(),
		BPM:       st.Features.BPM,
		Frames:    st.Frames,
	}
}

func (s *Server) status(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Println("[WARNING] websocket upgrade:", err)
		return
	}
	defer conn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var msg ParamMessage
			if err := conn.ReadJSON(&msg); err != nil {
				if !websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					glog.V(1).Infof("websocket read: %v", err)
				}
				return
			}
			if err := s.reg.Apply(msg.Param, msg.Value); err != nil {
				log.Println("[WARNING] websocket param:", err)
			}
		}
	}()

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(time.Second))
			if err := conn.WriteJSON(s.statusMessage()); err != nil {
				glog.V(1).Infof("websocket write: %v", err)
				return
			}
		}
	}
}
