package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/gavi-dev/gavi"
	"github.com/gavi-dev/gavi/internal/config"
	"github.com/gavi-dev/gavi/pkg/middleware"
	"github.com/gavi-dev/gavi/pkg/render"
	"github.com/gavi-dev/gavi/pkg/router"
	"github.com/gavi-dev/gavi/pkg/server"
	"github.com/gavi-dev/gavi/pkg/static"
	"github.com/gavi-dev/gavi/pkg/web"
)

func serveCmd() *cobra.Command {
	var (
		addr        string
		metricsAddr string
		staticDir   string
		tracing     bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the demo application server",
		Long: `Serve runs a small demo application through the full Gavi stack:
router, logging/metrics/tracing middleware, static files, and the
HTTP and websocket transports.

Configuration is read from gavi.json in the working directory (or a
parent) when present; flags override the file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				cfg.Address = addr
			}
			if cmd.Flags().Changed("metrics-addr") {
				cfg.MetricsAddress = metricsAddr
			}
			if cmd.Flags().Changed("static") {
				// Flag paths are relative to the working directory, not
				// the config file.
				abs, err := filepath.Abs(staticDir)
				if err != nil {
					return err
				}
				cfg.Static.Dir = abs
			}
			if cmd.Flags().Changed("tracing") {
				cfg.Tracing = tracing
			}

			logger := newLogger(cfg.Log)

			r := router.New()
			r.Get("/", web.Handler(homeHandler))
			r.Get("/info", web.Handler(infoHandler))
			r.Get("/echo/{word}", web.Handler(echoHandler))
			r.Post("/echo", web.Handler(echoBodyHandler))

			if dir := cfg.StaticDirPath(); dir != "" {
				src, err := static.NewDiskSource(dir)
				if err != nil {
					return err
				}
				r.Get(cfg.Static.Prefix+"*", static.App(src, static.Config{
					Prefix:       cfg.Static.Prefix,
					CacheControl: cfg.Static.CacheControl,
				}))
			}

			mws := []gavi.Middleware{
				middleware.Logging(logger),
				middleware.Prometheus(),
			}
			if cfg.Tracing {
				mws = append(mws, middleware.OpenTelemetry())
			}
			app := gavi.Chain(mws...)(r)

			if cfg.MetricsAddress != "" {
				go func() {
					mux := http.NewServeMux()
					mux.Handle("/metrics", promhttp.Handler())
					logger.Info("metrics listening", "address", cfg.MetricsAddress)
					if err := http.ListenAndServe(cfg.MetricsAddress, mux); err != nil {
						logger.Error("metrics server failed", "error", err)
					}
				}()
			}

			startup, err := cfg.StartupTimeout()
			if err != nil {
				return err
			}
			shutdown, err := cfg.ShutdownTimeout()
			if err != nil {
				return err
			}
			srv := server.New(app, &server.Config{
				Address:         cfg.Address,
				EventQueueSize:  cfg.Server.EventQueueSize,
				ReadChunkSize:   cfg.Server.ReadChunkSize,
				StartupTimeout:  startup,
				ShutdownTimeout: shutdown,
				DisableLifespan: cfg.Server.DisableLifespan,
				Logger:          logger,
			})
			return srv.Run()
		},
	}

	cmd.Flags().StringVarP(&addr, "addr", "a", config.DefaultAddress, "Listen address")
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "", "Prometheus metrics listen address (disabled when empty)")
	cmd.Flags().StringVar(&staticDir, "static", "", "Directory to serve static files from")
	cmd.Flags().BoolVar(&tracing, "tracing", false, "Enable OpenTelemetry tracing middleware")

	return cmd
}

// loadConfig reads gavi.json from the nearest project root, or returns
// defaults when no file exists.
func loadConfig() (*config.Config, error) {
	cfg, err := config.LoadFromWorkingDir()
	if err != nil {
		if errors.Is(err, config.ErrNoProject) || os.IsNotExist(err) {
			return config.New(), nil
		}
		return nil, err
	}
	return cfg, nil
}

func newLogger(lc config.LogConfig) *slog.Logger {
	var level slog.Level
	switch lc.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if lc.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

const homePage = `<!DOCTYPE html>
<html>
<head><title>{{.Title}}</title></head>
<body>
<h1>{{.Title}}</h1>
<p>Routes:</p>
<ul>
<li><a href="/info">GET /info</a></li>
<li>{{raw .EchoLink}}</li>
<li>POST /echo</li>
</ul>
<p>You said: {{raw .Greeting}}</p>
</body>
</html>
`

var homeTemplates = func() *render.Templates {
	t, err := render.Parse("home", homePage)
	if err != nil {
		panic(err)
	}
	return t
}()

func homeHandler(ctx context.Context, req *web.Request, res *web.ResponseWriter) error {
	// The echo link carries a quoted hint, escaped for the attribute
	// position before the fragment is marked raw.
	hint := render.EscapeAttr(`echoes "{word}" back as text`)
	link := render.Raw(`<a href="/echo/hello" title="` + hint + `">GET /echo/{word}</a>`)
	greeting := render.Raw("<em>" + render.EscapeHTML(req.Query().Get("greeting")) + "</em>")

	body, err := homeTemplates.Render("home", struct {
		Title    string
		EchoLink render.Raw
		Greeting render.Raw
	}{
		Title:    "Gavi demo",
		EchoLink: link,
		Greeting: greeting,
	})
	if err != nil {
		return err
	}
	res.AddHeader("content-type", "text/html; charset=utf-8")
	return res.End(ctx, body)
}

func infoHandler(ctx context.Context, req *web.Request, res *web.ResponseWriter) error {
	res.AddHeader("content-type", "text/plain; charset=utf-8")
	return res.End(ctx, []byte("ok\n"))
}

func echoHandler(ctx context.Context, req *web.Request, res *web.ResponseWriter) error {
	word := router.Param(ctx, "word")
	res.AddHeader("content-type", "text/plain; charset=utf-8")
	return res.End(ctx, []byte(word+"\n"))
}

func echoBodyHandler(ctx context.Context, req *web.Request, res *web.ResponseWriter) error {
	body, err := req.Body(ctx)
	if err != nil {
		return err
	}
	ct := req.Header("content-type")
	if ct == "" {
		ct = "application/octet-stream"
	}
	res.AddHeader("content-type", ct)
	return res.End(ctx, body)
}
