package ih

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/sjc5/holster/internal/util"
)

const defaultRefreshServerPort = 10000

// clientManager fans refresh events out to every connected page.
type clientManager struct {
	clients    map[*client]bool
	register   chan *client
	unregister chan *client
	broadcast  chan refreshPayload
}

type client struct {
	id     string
	notify chan refreshPayload
}

type changeType string

const (
	// changeTypeCSS asks pages to reload their stylesheets in place. Any
	// other change type reloads the page.
	changeTypeCSS changeType = "css"
)

type refreshPayload struct {
	ChangeType changeType `json:"changeType"`
	Task       string     `json:"task"`
	At         time.Time  `json:"at"`
}

func newClientManager() *clientManager {
	return &clientManager{
		clients:    make(map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
		broadcast:  make(chan refreshPayload),
	}
}

func (m *clientManager) start(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case cl := <-m.register:
			m.clients[cl] = true
		case cl := <-m.unregister:
			delete(m.clients, cl)
		case msg := <-m.broadcast:
			for cl := range m.clients {
				// a page that has not read the previous event gets this one later
				select {
				case cl.notify <- msg:
				default:
				}
			}
		}
	}
}

func (m *clientManager) send(ctx context.Context, msg refreshPayload) {
	select {
	case m.broadcast <- msg:
	case <-ctx.Done():
	}
}

func sseHandler(ctx context.Context, m *clientManager) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}

		// registered before the headers go out, so a page that sees the
		// response also sees every later event
		cl := &client{id: r.RemoteAddr, notify: make(chan refreshPayload, 1)}
		select {
		case m.register <- cl:
		case <-ctx.Done():
			return
		}
		defer func() {
			select {
			case m.unregister <- cl:
			case <-ctx.Done():
			}
		}()

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		for {
			select {
			case msg := <-cl.notify:
				data, err := json.Marshal(msg)
				if err != nil {
					return
				}
				fmt.Fprintf(w, "data: %s\n\n", data)
				flusher.Flush()
			case <-r.Context().Done():
				return
			case <-ctx.Done():
				return
			}
		}
	}
}

// RefreshScript is the snippet a theme includes in development to follow a
// watch session's refresh server.
func RefreshScript(port int) string {
	return "\n<script>\n" + fmt.Sprintf(refreshScriptFmt, port) + "\n</script>"
}

const refreshScriptFmt = `
const es = new EventSource("http://localhost:%d/events");

es.onmessage = (e) => {
	const { changeType } = JSON.parse(e.data);
	if (changeType == "css") {
		const now = Date.now();
		for (const link of document.querySelectorAll('link[rel="stylesheet"]')) {
			const url = new URL(link.href);
			url.searchParams.set("holster", now);
			const next = link.cloneNode();
			next.href = url.toString();
			next.onload = () => link.remove();
			link.parentNode.insertBefore(next, link.nextSibling);
		}
		return;
	}
	window.location.reload();
};

window.addEventListener("beforeunload", () => {
	es.close();
});
`

type refreshServer struct {
	port    int
	manager *clientManager
	server  *http.Server
}

// startRefreshServer serves the event stream until ctx is done.
func (c *Config) startRefreshServer(ctx context.Context) (*refreshServer, error) {
	port := c.DevConfig.RefreshServerPort
	if port == 0 {
		var err error
		if port, err = util.GetFreePort(defaultRefreshServerPort); err != nil {
			return nil, fmt.Errorf("error getting refresh server port: %w", err)
		}
	}

	ln, err := net.Listen("tcp", net.JoinHostPort("localhost", strconv.Itoa(port)))
	if err != nil {
		return nil, fmt.Errorf("error listening for refresh server: %w", err)
	}

	rs := &refreshServer{port: port, manager: newClientManager()}
	mux := http.NewServeMux()
	mux.Handle("/events", sseHandler(ctx, rs.manager))
	mux.HandleFunc("/refresh.js", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/javascript")
		fmt.Fprintf(w, refreshScriptFmt, port)
	})
	rs.server = &http.Server{Handler: mux, ReadHeaderTimeout: 5 * time.Second}

	go rs.manager.start(ctx)
	go func() {
		if err := rs.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.Logger.Errorf("error: refresh server: %v", err)
		}
	}()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = rs.server.Shutdown(shutdownCtx)
	}()

	c.Logger.Infof("refresh server listening on http://localhost:%d/events", port)
	return rs, nil
}

func (rs *refreshServer) notify(ctx context.Context, task string) {
	rs.manager.send(ctx, refreshPayload{
		ChangeType: changeTypeCSS,
		Task:       task,
		At:         time.Now(),
	})
}
