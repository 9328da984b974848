package web

// This file describes the http surface of a running shell: the window pages,
// the ipc endpoint the front-end invokes commands through, window closing and
// the development event stream.

import (
	"bytes"
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"html/template"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"net/url"
	"time"

	"github.com/alexedwards/scs/v2"
	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"
	"github.com/gorilla/schema"
	sse "github.com/tmaxmax/go-sse"

	"github.com/rorycl/cutplan/commands"
	"github.com/rorycl/cutplan/config"
)

// maxArgsBytes limits an ipc request body; workbooks travel base64 encoded.
const maxArgsBytes = 32 << 20

//go:embed templates
var templatesEmbeddedFS embed.FS

// runtime is the state of one running shell.
type runtime struct {
	log      *log.Logger
	cfg      *config.Config
	registry *commands.Registry
	frontend fs.FS
	sessions *scs.SessionManager
	windows  *windowSet
	events   *broker
	decoder  *schema.Decoder
}

func newRuntime(logger *log.Logger, cfg *config.Config, reg *commands.Registry, frontend fs.FS) *runtime {
	sessions := scs.New()
	sessions.Lifetime = 24 * time.Hour
	sessions.Cookie.Name = "cutplan_session"
	sessions.Cookie.HttpOnly = true
	sessions.Cookie.SameSite = http.SameSiteStrictMode

	decoder := schema.NewDecoder()
	decoder.IgnoreUnknownKeys(true)

	return &runtime{
		log:      logger,
		cfg:      cfg,
		registry: reg,
		frontend: frontend,
		sessions: sessions,
		windows:  newWindowSet(),
		events:   newBroker(),
		decoder:  decoder,
	}
}

// routes connects all of the endpoints and provides middleware.
func (rt *runtime) routes() http.Handler {

	r := mux.NewRouter()

	static := http.FileServerFS(rt.frontend)
	r.PathPrefix("/static/").Handler(http.StripPrefix("/static/", static))

	r.Handle("/", rt.handleRoot()).Methods(http.MethodGet)
	r.Handle("/events", rt.handleEvents()).Methods(http.MethodGet)

	// Window endpoints carry the window session. Calls and closes must come
	// from the shell's own pages.
	const window = "/window/{label:[A-Za-z0-9_-]+}"
	r.Handle(
		window,
		rt.sessions.LoadAndSave(rt.handleWindow()),
	).Methods(http.MethodGet)
	r.Handle(
		window+"/ipc/{command}",
		rt.crossOrigin(rt.sessions.LoadAndSave(rt.windowOpen(rt.handleIPC()))),
	).Methods(http.MethodPost)
	r.Handle(
		window+"/close",
		rt.crossOrigin(rt.sessions.LoadAndSave(rt.windowOpen(rt.handleClose()))),
	).Methods(http.MethodPost)

	std := rt.log.StandardLog(log.StandardLogOptions{ForceLevel: log.InfoLevel})
	recovery := handlers.RecoveryHandler(
		handlers.RecoveryLogger(rt.log.StandardLog(log.StandardLogOptions{ForceLevel: log.ErrorLevel})),
	)
	return handlers.LoggingHandler(std.Writer(), recovery(r))
}

// sessionKey is the session key counting the instances of a window opened by
// the session.
func sessionKey(label string) string {
	return "window:" + label
}

// windowOpen checks the window exists and was opened by the caller's session.
func (rt *runtime) windowOpen(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		label := mux.Vars(r)["label"]
		if _, ok := rt.cfg.Window(label); !ok {
			rt.jsonError(w, "", fmt.Sprintf("unknown window %q", label), http.StatusNotFound)
			return
		}
		if rt.sessions.GetInt(r.Context(), sessionKey(label)) < 1 {
			rt.jsonError(w, "", fmt.Sprintf("window %q is not open in this session", label), http.StatusForbidden)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// handleRoot redirects to the first visible window.
func (rt *runtime) handleRoot() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		visible := rt.cfg.VisibleWindows()
		if len(visible) == 0 {
			http.NotFound(w, r)
			return
		}
		target, err := WindowURL("", visible[0])
		if err != nil {
			rt.ServerError(w, r, err)
			return
		}
		http.Redirect(w, r, target, http.StatusFound)
	})
}

// initData is handed to the front-end in the init script.
type initData struct {
	Label       string   `json:"label"`
	Title       string   `json:"title"`
	ProductName string   `json:"product_name"`
	Version     string   `json:"version"`
	IPCBase     string   `json:"ipc_base"`
	CloseURL    string   `json:"close_url"`
	EventsURL   string   `json:"events_url,omitempty"`
	Commands    []string `json:"commands"`
}

// handleWindow serves a window's document with the init script injected, and
// marks the window open.
func (rt *runtime) handleWindow() http.Handler {

	templates := template.Must(template.ParseFS(templatesEmbeddedFS, "templates/init.html"))

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		label := mux.Vars(r)["label"]
		win, ok := rt.cfg.Window(label)
		if !ok {
			rt.clientError(w, fmt.Sprintf("unknown window %q", label), http.StatusNotFound)
			return
		}

		doc, err := fs.ReadFile(rt.frontend, win.URL)
		if err != nil {
			rt.ServerError(w, r, fmt.Errorf("window %q document: %w", label, err))
			return
		}

		data := initData{
			Label:       win.Label,
			Title:       win.Title,
			ProductName: rt.cfg.ProductName,
			Version:     rt.cfg.Version,
			IPCBase:     WindowPath(label) + "/ipc/",
			CloseURL:    WindowPath(label) + "/close",
			Commands:    rt.cfg.GrantedTo(label),
		}
		if rt.cfg.Build.DevWatch {
			data.EventsURL = "/events"
		}

		script := new(bytes.Buffer)
		if err := templates.ExecuteTemplate(script, "init.html", data); err != nil {
			rt.ServerError(w, r, err)
			return
		}

		key := sessionKey(label)
		rt.sessions.Put(r.Context(), key, rt.sessions.GetInt(r.Context(), key)+1)
		rt.windows.add(label)
		rt.log.Debug("window opened", "window", label)

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		w.Header().Set("Cache-Control", "no-store")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write(inject(doc, script.Bytes()))
	})
}

// inject places script just before the closing head tag of doc, or at the
// start of doc if there is none.
func inject(doc, script []byte) []byte {
	i := bytes.Index(bytes.ToLower(doc), []byte("</head>"))
	if i < 0 {
		return append(append([]byte{}, script...), doc...)
	}
	out := make([]byte, 0, len(doc)+len(script))
	out = append(out, doc[:i]...)
	out = append(out, script...)
	return append(out, doc[i:]...)
}

// ipcOptions are the query parameters of an ipc call.
type ipcOptions struct {
	ID        string `schema:"id"`
	TimeoutMS int    `schema:"timeout_ms"`
}

// ipcResponse is the body of every ipc reply.
type ipcResponse struct {
	ID     string `json:"id"`
	Result any    `json:"result,omitempty"`
	Error  string `json:"error,omitempty"`
}

// handleIPC invokes a command on behalf of a window.
func (rt *runtime) handleIPC() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		vars := mux.Vars(r)
		label, command := vars["label"], vars["command"]

		var opts ipcOptions
		if err := rt.decoder.Decode(&opts, r.URL.Query()); err != nil {
			rt.jsonError(w, "", fmt.Sprintf("invalid ipc options: %v", err), http.StatusBadRequest)
			return
		}
		if opts.ID == "" {
			opts.ID = uuid.NewString()
		}
		if opts.TimeoutMS < 0 {
			rt.jsonError(w, opts.ID, "timeout_ms must not be negative", http.StatusBadRequest)
			return
		}

		if _, ok := rt.registry.Lookup(command); !ok {
			rt.jsonError(w, opts.ID, fmt.Sprintf("unknown command %q", command), http.StatusNotFound)
			return
		}
		if !rt.cfg.Allowed(label, command) {
			rt.jsonError(w, opts.ID, fmt.Sprintf("command %q is not allowed for window %q", command, label), http.StatusForbidden)
			return
		}

		args, status, err := readArgs(r)
		if err != nil {
			rt.jsonError(w, opts.ID, err.Error(), status)
			return
		}

		ctx := r.Context()
		if opts.TimeoutMS > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, time.Duration(opts.TimeoutMS)*time.Millisecond)
			defer cancel()
		}

		start := time.Now()
		result, err := rt.registry.Invoke(ctx, command, commands.Call{ID: opts.ID, Window: label, Args: args})
		switch {
		case errors.Is(err, commands.ErrInvalidArgs):
			rt.jsonError(w, opts.ID, err.Error(), http.StatusBadRequest)
			return
		case errors.Is(err, context.DeadlineExceeded):
			rt.jsonError(w, opts.ID, fmt.Sprintf("command %q timed out", command), http.StatusGatewayTimeout)
			return
		case err != nil:
			rt.log.Warn("command failed", "command", command, "window", label, "id", opts.ID, "err", err)
			rt.jsonError(w, opts.ID, err.Error(), http.StatusUnprocessableEntity)
			return
		}
		rt.log.Debug("command", "command", command, "window", label, "id", opts.ID, "took", time.Since(start))
		rt.writeJSON(w, http.StatusOK, ipcResponse{ID: opts.ID, Result: result})
	})
}

// readArgs reads the call arguments from a json or form encoded body.
func readArgs(r *http.Request) (commands.Args, int, error) {
	body, err := io.ReadAll(http.MaxBytesReader(nil, r.Body, maxArgsBytes))
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return nil, http.StatusRequestEntityTooLarge, fmt.Errorf("arguments exceed %d bytes", maxArgsBytes)
		}
		return nil, http.StatusBadRequest, fmt.Errorf("could not read arguments: %w", err)
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return commands.NoArgs{}, 0, nil
	}

	mediaType := "application/json"
	if ct := r.Header.Get("Content-Type"); ct != "" {
		mediaType, _, err = mime.ParseMediaType(ct)
		if err != nil {
			return nil, http.StatusUnsupportedMediaType, fmt.Errorf("invalid content type %q", ct)
		}
	}
	switch mediaType {
	case "application/json":
		return commands.JSONArgs(body), 0, nil
	case "application/x-www-form-urlencoded":
		values, err := url.ParseQuery(string(body))
		if err != nil {
			return nil, http.StatusBadRequest, fmt.Errorf("invalid form arguments: %w", err)
		}
		return commands.FormArgs(values), 0, nil
	}
	return nil, http.StatusUnsupportedMediaType, fmt.Errorf("unsupported content type %q", mediaType)
}

// handleClose closes a window. Closing the last open window ends the runtime.
func (rt *runtime) handleClose() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		label := mux.Vars(r)["label"]
		key := sessionKey(label)
		if n := rt.sessions.GetInt(r.Context(), key); n > 1 {
			rt.sessions.Put(r.Context(), key, n-1)
		} else {
			rt.sessions.Remove(r.Context(), key)
		}
		last := rt.windows.remove(label)
		rt.log.Debug("window closed", "window", label, "last", last)
		w.WriteHeader(http.StatusNoContent)
	})
}

// handleEvents streams reload events to the front-end in development mode.
func (rt *runtime) handleEvents() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !rt.cfg.Build.DevWatch {
			http.NotFound(w, r)
			return
		}
		sess, err := sse.Upgrade(w, r)
		if err != nil {
			rt.ServerError(w, r, fmt.Errorf("event stream: %w", err))
			return
		}
		ch, ok := rt.events.subscribe()
		if !ok {
			rt.clientError(w, "shutting down", http.StatusServiceUnavailable)
			return
		}
		defer rt.events.unsubscribe(ch)

		w.Header().Set("Cache-Control", "no-cache")
		hello := &sse.Message{}
		hello.AppendComment("connected")
		if err := send(sess, hello); err != nil {
			rt.log.Error("event stream", "err", err)
			return
		}

		for {
			select {
			case <-r.Context().Done():
				return
			case event, ok := <-ch:
				if !ok {
					return
				}
				typ, err := sse.NewType(event)
				if err != nil {
					rt.log.Warn("event not sent", "event", event, "err", err)
					continue
				}
				msg := &sse.Message{Type: typ}
				msg.AppendData("{}")
				if err := send(sess, msg); err != nil {
					rt.log.Debug("event stream closed", "err", err)
					return
				}
			}
		}
	})
}

// send writes msg to the event stream without buffering.
func send(sess *sse.Session, msg *sse.Message) error {
	if err := sess.Send(msg); err != nil {
		return err
	}
	return sess.Flush()
}

/* -------------------------------------------------------------------------- */
// Helpers
/* -------------------------------------------------------------------------- */

// writeJSON writes v as a json response.
func (rt *runtime) writeJSON(w http.ResponseWriter, status int, v any) {
	body, err := json.Marshal(v)
	if err != nil {
		rt.log.Error("json response encoding", "err", err)
		status = http.StatusInternalServerError
		body = []byte(`{"error":"response encoding failed"}`)
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// jsonError returns an ipc error response.
func (rt *runtime) jsonError(w http.ResponseWriter, id, message string, status int) {
	if message == "" {
		message = http.StatusText(status)
	}
	rt.writeJSON(w, status, ipcResponse{ID: id, Error: message})
}

// ServerError logs and return an internal server error. The error should contain the
// information needed for logging.
func (rt *runtime) ServerError(w http.ResponseWriter, r *http.Request, errs ...error) {
	err := errors.Join(errs...)
	rt.log.Error(err.Error(), "method", r.Method, "uri", r.URL.RequestURI())
	http.Error(w, http.StatusText(http.StatusInternalServerError), http.StatusInternalServerError)
}

// clientError returns a client error.
func (rt *runtime) clientError(w http.ResponseWriter, message string, status int) {
	if message == "" {
		message = http.StatusText(status)
	}
	http.Error(w, message, status)
}
