package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/cevalogistics/launcher/internal/config"
	"github.com/cevalogistics/launcher/internal/metrics"
)

const routeKey = "launcher.route"

// Router is the dashboard's single origin. Requests that target the backend
// are forwarded to BackendOrigin; everything else is served from the static
// bundle, or redirected to DevOrigin when no bundle is built.
//
//	GET  /assets/*, /static/*   files from the bundle (when present)
//	GET  /                      bundle index.html, or redirect to DevOrigin
//	*    /<path>                classified per request, see Classify
type Router struct {
	cfg    config.ProxyConfig
	client *http.Client
	log    *slog.Logger
}

// NewRouter constructs a Router. A nil logger uses slog.Default().
func NewRouter(cfg config.ProxyConfig, lg *slog.Logger) *Router {
	if lg == nil {
		lg = slog.Default()
	}
	timeout := cfg.UpstreamTimeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	cfg.BackendOrigin = strings.TrimRight(cfg.BackendOrigin, "/")
	cfg.DevOrigin = strings.TrimRight(cfg.DevOrigin, "/")
	return &Router{
		cfg: cfg,
		// One client for every forwarded call so connections are reused.
		client: &http.Client{
			Timeout: timeout,
			CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			},
		},
		log: lg.With("component", "router"),
	}
}

// Handler returns an http.Handler powered by gin that can be mounted in any server/mux.
func (r *Router) Handler() http.Handler {
	g := gin.New()
	g.RedirectTrailingSlash = false
	g.RedirectFixedPath = false
	g.Use(gin.Recovery(), r.observe())
	if r.cfg.CORS {
		g.Use(cors())
	}

	if r.bundlePresent() {
		r.mount(g, "/assets", filepath.Join(r.cfg.BundleDir, "assets"))
		if dir := filepath.Join(r.cfg.BundleDir, "static"); isDir(dir) {
			r.mount(g, "/static", dir)
		}
	}
	g.GET("/", r.handleRoot)
	g.NoRoute(r.dispatch)
	return g
}

func (r *Router) bundlePresent() bool { return r.cfg.BundleDir != "" && isDir(r.cfg.BundleDir) }

func (r *Router) indexPath() string { return filepath.Join(r.cfg.BundleDir, "index.html") }

// mount serves files under dir at prefix. Missing files are a JSON 404 and
// never reach the backend or the SPA shell.
func (r *Router) mount(g *gin.Engine, prefix, dir string) {
	fsys := http.Dir(dir)
	fileServer := http.StripPrefix(prefix, http.FileServer(fsys))
	h := func(c *gin.Context) {
		c.Set(routeKey, RouteStaticAsset)
		name := c.Param("filepath")
		f, err := fsys.Open(name)
		if err != nil {
			writeJSON(c, http.StatusNotFound, errorResp{Error: "not found"})
			return
		}
		st, err := f.Stat()
		_ = f.Close()
		if err != nil || st.IsDir() {
			writeJSON(c, http.StatusNotFound, errorResp{Error: "not found"})
			return
		}
		c.Header("Cache-Control", cacheControl(name))
		fileServer.ServeHTTP(c.Writer, c.Request)
	}
	g.GET(prefix+"/*filepath", h)
	g.HEAD(prefix+"/*filepath", h)
}

func (r *Router) handleRoot(c *gin.Context) {
	c.Set(routeKey, RouteSPA)
	r.serveEntry(c, "")
}

func (r *Router) dispatch(c *gin.Context) {
	path := strings.TrimPrefix(c.Request.URL.Path, "/")
	route := Classify(c.Request.Method, c.GetHeader("Accept"), path)
	c.Set(routeKey, route)
	switch route {
	case RouteStaticAsset:
		writeJSON(c, http.StatusNotFound, errorResp{Error: "not found"})
	case RouteAPI:
		r.forward(c)
	default:
		r.serveEntry(c, path)
	}
}

// serveEntry answers SPA navigation: the bundle's index.html verbatim, or a
// redirect to the dev origin with the sub-path preserved.
func (r *Router) serveEntry(c *gin.Context, path string) {
	if r.cfg.BundleDir != "" {
		b, err := os.ReadFile(r.indexPath())
		if err == nil {
			c.Data(http.StatusOK, "text/html; charset=utf-8", b)
			return
		}
		if !errors.Is(err, os.ErrNotExist) {
			r.log.Warn("read index.html", "error", err)
		}
	}
	target := r.cfg.DevOrigin
	if path != "" {
		target += "/" + path
	}
	c.Redirect(http.StatusTemporaryRedirect, target)
}

// observe records the route class and status of every request.
func (r *Router) observe() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		route := RouteSPA
		if v, ok := c.Get(routeKey); ok {
			route = v.(Route)
		}
		status := c.Writer.Status()
		metrics.IncProxyRequest(route.String(), status)
		r.log.Debug("request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"route", route.String(),
			"status", status,
			"duration", time.Since(start))
	}
}

// NewServer binds addr and serves the router in the background. Bind
// errors are returned synchronously; Shutdown the returned server to stop.
func NewServer(cfg config.ProxyConfig, lg *slog.Logger) (*http.Server, error) {
	r := NewRouter(cfg, lg)
	ln, err := net.Listen("tcp", cfg.Listen)
	if err != nil {
		return nil, fmt.Errorf("listen %s: %w", cfg.Listen, err)
	}
	server := &http.Server{
		Addr:              ln.Addr().String(),
		Handler:           r.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	go func() {
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			r.log.Error("proxy server stopped", "error", err)
		}
	}()
	return server, nil
}

// Serve runs the router on cfg.Listen until ctx is done.
func Serve(ctx context.Context, cfg config.ProxyConfig, lg *slog.Logger) error {
	srv, err := NewServer(cfg, lg)
	if err != nil {
		return err
	}
	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}

func isDir(p string) bool {
	st, err := os.Stat(p)
	return err == nil && st.IsDir()
}
