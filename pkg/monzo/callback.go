package monzo

import (
	"context"
	"errors"
	"fmt"
	"html/template"
	"net"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/mux"
	"k8s.io/klog"
)

var (
	ErrMissingCode   = errors.New("callback is missing the code parameter")
	ErrStateMismatch = errors.New("callback state does not match the authorization request")
)

const shutdownTimeout = 5 * time.Second

var callbackPage = template.Must(template.New("callback").Parse(`<html>
<body style="font-family: Arial, sans-serif; max-width: 600px; margin: 40px auto; text-align: center;">
{{- if .Error }}
    <h2 style="color: #e74c3c;">&#10007; Authorization Failed</h2>
    <p>Error: {{ .Error }}</p>
    <p>Please close this window and try again.</p>
{{- else }}
    <h2 style="color: #2ecc71;">&#10003; Authorization Successful!</h2>
    <p>You can now close this window and return to the application.</p>
{{- end }}
</body>
</html>
`))

// CodeSaver persists the captured authorization code.
type CodeSaver interface {
	SaveAuthCode(code string) error
}

// CallbackListener is bound to the redirect URI port for exactly one authorization callback.
type CallbackListener struct {
	listener net.Listener
	server   *http.Server
	state    string
	saver    CodeSaver

	once   sync.Once
	result chan error
}

// ListenCallback binds the host and port of redirectURI. The port is held until Await returns,
// so the listener should be created before the browser is sent to the authorization page.
func ListenCallback(redirectURI, state string, saver CodeSaver) (*CallbackListener, error) {
	u, err := url.Parse(redirectURI)
	if err != nil {
		return nil, fmt.Errorf("invalid redirect uri %q: %w", redirectURI, err)
	}

	path := u.Path
	if path == "" {
		path = "/"
	}

	l, err := net.Listen("tcp", u.Host)
	if err != nil {
		return nil, fmt.Errorf("failed to listen on %s: %w", u.Host, err)
	}

	c := &CallbackListener{
		listener: l,
		state:    state,
		saver:    saver,
		result:   make(chan error, 1),
	}

	r := mux.NewRouter()
	r.HandleFunc(path, c.handleCallback).Methods(http.MethodGet)
	c.server = &http.Server{
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return c, nil
}

// Addr is the address actually bound, useful when the redirect uri asked for port 0.
func (c *CallbackListener) Addr() string {
	return c.listener.Addr().String()
}

// Await serves until one callback request has been handled or ctx is done, then releases the port.
func (c *CallbackListener) Await(ctx context.Context) error {
	go func() {
		err := c.server.Serve(c.listener)
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			c.finish(fmt.Errorf("callback server failed: %w", err))
		}
	}()

	var err error
	select {
	case err = <-c.result:
	case <-ctx.Done():
		err = ctx.Err()
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if shutdownErr := c.server.Shutdown(shutdownCtx); shutdownErr != nil {
		klog.Warningf("Failed to shut down callback server: %v", shutdownErr)
	}

	return err
}

// Close releases the port without waiting for a callback.
func (c *CallbackListener) Close() error {
	return c.server.Close()
}

func (c *CallbackListener) handleCallback(w http.ResponseWriter, r *http.Request) {
	err := c.capture(r.URL.Query())

	w.Header().Set("Content-Type", "text/html")
	status := http.StatusOK
	if errors.Is(err, ErrMissingCode) || errors.Is(err, ErrStateMismatch) {
		status = http.StatusBadRequest
	} else if err != nil {
		status = http.StatusInternalServerError
	}
	w.WriteHeader(status)

	data := struct{ Error string }{}
	if err != nil {
		data.Error = err.Error()
	}
	if execErr := callbackPage.Execute(w, data); execErr != nil {
		klog.Warningf("Failed to write callback page: %v", execErr)
	}

	c.finish(err)
}

func (c *CallbackListener) capture(query url.Values) error {
	code := query.Get("code")
	if code == "" {
		return ErrMissingCode
	}

	if c.state != "" && query.Get("state") != c.state {
		return ErrStateMismatch
	}

	return c.saver.SaveAuthCode(code)
}

func (c *CallbackListener) finish(err error) {
	c.once.Do(func() {
		c.result <- err
	})
}
