package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"pixelworld.dev/internal/auth"
	"pixelworld.dev/internal/github"
	"pixelworld.dev/internal/persistence/export"
	"pixelworld.dev/internal/persistence/r2s3"
	"pixelworld.dev/internal/persistence/worlddb"
	"pixelworld.dev/internal/transport/httpapi"
	"pixelworld.dev/internal/transport/ws"
	"pixelworld.dev/internal/tuning"
	"pixelworld.dev/internal/worldcfg"
	"pixelworld.dev/internal/worldview"
)

func main() {
	var (
		addr          = flag.String("addr", ":8080", "http listen address")
		configDir     = flag.String("configs", "./configs", "config directory")
		dataDir       = flag.String("data", "./data", "runtime data directory")
		tuningPath    = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		templatesPath = flag.String("templates", "", "path to templates.yaml (default: <configs>/templates.yaml)")
		schemaPath    = flag.String("save_schema", "./schemas/world_save.schema.json", "path to the world save JSON schema")
		disableDB     = flag.Bool("disable_db", false, "disable the world database (read-only deployment)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}
	tune, err := tuning.Load(tp)
	if err != nil {
		if os.IsNotExist(err) {
			logger.Printf("tuning not found (%s); using defaults", tp)
			tune = tuning.Defaults()
		} else {
			logger.Fatalf("load tuning: %v", err)
		}
	}

	tplPath := strings.TrimSpace(*templatesPath)
	if tplPath == "" {
		tplPath = filepath.Join(*configDir, "templates.yaml")
	}
	templates, err := worldcfg.LoadTemplates(tplPath)
	if err != nil {
		logger.Fatalf("load templates: %v", err)
	}

	// World database. Optional: without it the server runs read-only on
	// default worlds.
	var store *worlddb.Store
	if !*disableDB {
		_ = os.MkdirAll(*dataDir, 0o755)
		store, err = worlddb.Open(filepath.Join(*dataDir, "worlds.db"))
		if err != nil {
			logger.Fatalf("open world db: %v", err)
		}
		defer store.Close()
	} else {
		logger.Printf("world db disabled; serving default worlds read-only")
	}

	// Object storage for uploaded backgrounds and config exports. Optional.
	objects, err := buildObjectStore(logger)
	if err != nil {
		logger.Fatalf("init object store: %v", err)
	}

	var mirror *export.Mirror
	if objects != nil {
		mirror = export.NewMirror(objects, 2, tune.ExportQueueSize, 0, logger)
		defer mirror.Close()
	}

	ghClient := github.New(strings.TrimSpace(os.Getenv("PW_GITHUB_TOKEN")),
		time.Duration(tune.ProfileCacheTTLSec)*time.Second)

	// GitHub OAuth. Optional: without it every viewer is anonymous and the
	// editor surfaces are unavailable.
	var authSvc *auth.Service
	clientID := strings.TrimSpace(os.Getenv("PW_OAUTH_CLIENT_ID"))
	clientSecret := strings.TrimSpace(os.Getenv("PW_OAUTH_CLIENT_SECRET"))
	if clientID != "" && clientSecret != "" {
		redirectURL := strings.TrimSpace(os.Getenv("PW_OAUTH_REDIRECT_URL"))
		if redirectURL == "" {
			redirectURL = "http://localhost:8080/api/auth/callback"
		}
		cookieSecret := strings.TrimSpace(os.Getenv("PW_COOKIE_SECRET"))
		authSvc, err = auth.New(clientID, clientSecret, redirectURL, cookieSecret)
		if err != nil {
			logger.Fatalf("init auth: %v", err)
		}
	} else {
		logger.Printf("oauth not configured (PW_OAUTH_CLIENT_ID/SECRET); anonymous viewers only")
	}

	resolve := func(key string) string { return "" }
	if objects != nil {
		resolve = objects.PublicURL
	}

	view := worldview.New(worldviewStoreOrNil(store), ghClient, tune, resolve, logger)

	api, err := httpapi.NewServer(httpapi.Config{
		Store:          httpapi.WorldStoreOrNil(store),
		Objects:        uploaderOrNil(objects),
		Exports:        exporterOrNil(mirror),
		Metadata:       ghClient,
		Auth:           authSvc,
		Tuning:         tune,
		Templates:      templates,
		Logger:         logger,
		SaveSchemaPath: *schemaPath,
	})
	if err != nil {
		logger.Fatalf("init http api: %v", err)
	}

	wsSrv := ws.NewServer(view.OpenScene, api.ViewerLogin, logger)

	ctx, cancel := signalContext()
	defer cancel()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		cs := wsSrv.Stats()
		fmt.Fprintf(rw, "# HELP pixelworld_scene_connections Currently open scene websockets.\n")
		fmt.Fprintf(rw, "# TYPE pixelworld_scene_connections gauge\n")
		fmt.Fprintf(rw, "pixelworld_scene_connections %d\n", cs.Active)

		fmt.Fprintf(rw, "# HELP pixelworld_scene_connections_total Total scene websocket upgrades.\n")
		fmt.Fprintf(rw, "# TYPE pixelworld_scene_connections_total counter\n")
		fmt.Fprintf(rw, "pixelworld_scene_connections_total %d\n", cs.Total)

		writeExportMirrorMetrics(rw, mirror)
	})
	if envBool("PW_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	api.Register(mux)
	mux.HandleFunc("/v1/ws", wsSrv.Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Printf("listening on %s", *addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		return srv.Shutdown(ctx2)
	})
	if err := g.Wait(); err != nil {
		logger.Fatalf("server: %v", err)
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

// buildObjectStore reads the R2/S3 binding from the environment. All five
// values must be present; a partial binding is a configuration error.
func buildObjectStore(logger *log.Logger) (*r2s3.Client, error) {
	endpoint := strings.TrimSpace(os.Getenv("PW_R2_ENDPOINT"))
	bucket := strings.TrimSpace(os.Getenv("PW_R2_BUCKET"))
	accessKeyID := strings.TrimSpace(os.Getenv("PW_R2_ACCESS_KEY_ID"))
	secretAccessKey := strings.TrimSpace(os.Getenv("PW_R2_SECRET_ACCESS_KEY"))
	publicBaseURL := strings.TrimSpace(os.Getenv("PW_R2_PUBLIC_BASE_URL"))

	if endpoint == "" && bucket == "" && accessKeyID == "" && secretAccessKey == "" {
		logger.Printf("object store not configured (PW_R2_*); uploads and exports disabled")
		return nil, nil
	}
	if endpoint == "" || bucket == "" || accessKeyID == "" || secretAccessKey == "" {
		return nil, fmt.Errorf("incomplete PW_R2_* binding: endpoint, bucket, access key id and secret are all required")
	}
	return r2s3.New(endpoint, bucket, publicBaseURL, accessKeyID, secretAccessKey)
}

func envBool(key string, def bool) bool {
	v := strings.ToLower(strings.TrimSpace(os.Getenv(key)))
	switch v {
	case "":
		return def
	case "1", "true", "yes", "on":
		return true
	default:
		return false
	}
}

// Typed-nil guards: a nil concrete pointer must become a nil interface.

func worldviewStoreOrNil(s *worlddb.Store) worldview.WorldStore {
	if s == nil {
		return nil
	}
	return s
}

func uploaderOrNil(c *r2s3.Client) httpapi.Uploader {
	if c == nil {
		return nil
	}
	return c
}

func exporterOrNil(m *export.Mirror) httpapi.Exporter {
	if m == nil {
		return nil
	}
	return m
}

func writeExportMirrorMetrics(rw http.ResponseWriter, mirror *export.Mirror) {
	if mirror == nil {
		return
	}
	s := mirror.Stats()
	fmt.Fprintf(rw, "# HELP pixelworld_export_queue_depth Current export mirror queue depth.\n")
	fmt.Fprintf(rw, "# TYPE pixelworld_export_queue_depth gauge\n")
	fmt.Fprintf(rw, "pixelworld_export_queue_depth %d\n", s.QueueDepth)

	fmt.Fprintf(rw, "# HELP pixelworld_export_queue_capacity Export mirror queue capacity.\n")
	fmt.Fprintf(rw, "# TYPE pixelworld_export_queue_capacity gauge\n")
	fmt.Fprintf(rw, "pixelworld_export_queue_capacity %d\n", s.QueueCapacity)

	fmt.Fprintf(rw, "# HELP pixelworld_export_enqueued_total Total export enqueue attempts.\n")
	fmt.Fprintf(rw, "# TYPE pixelworld_export_enqueued_total counter\n")
	fmt.Fprintf(rw, "pixelworld_export_enqueued_total %d\n", s.EnqueuedTotal)

	fmt.Fprintf(rw, "# HELP pixelworld_export_queue_saturated_total Total enqueue attempts when the queue was saturated.\n")
	fmt.Fprintf(rw, "# TYPE pixelworld_export_queue_saturated_total counter\n")
	fmt.Fprintf(rw, "pixelworld_export_queue_saturated_total %d\n", s.QueueSaturatedTotal)

	fmt.Fprintf(rw, "# HELP pixelworld_export_dropped_total Total exports dropped because the queue remained saturated.\n")
	fmt.Fprintf(rw, "# TYPE pixelworld_export_dropped_total counter\n")
	fmt.Fprintf(rw, "pixelworld_export_dropped_total %d\n", s.DroppedTotal)

	fmt.Fprintf(rw, "# HELP pixelworld_export_upload_success_total Total successful export uploads.\n")
	fmt.Fprintf(rw, "# TYPE pixelworld_export_upload_success_total counter\n")
	fmt.Fprintf(rw, "pixelworld_export_upload_success_total %d\n", s.UploadSuccessTotal)

	fmt.Fprintf(rw, "# HELP pixelworld_export_upload_fail_total Total failed export uploads after retry.\n")
	fmt.Fprintf(rw, "# TYPE pixelworld_export_upload_fail_total counter\n")
	fmt.Fprintf(rw, "pixelworld_export_upload_fail_total %d\n", s.UploadFailTotal)

	fmt.Fprintf(rw, "# HELP pixelworld_export_last_success_unix Unix timestamp of the last successful export upload.\n")
	fmt.Fprintf(rw, "# TYPE pixelworld_export_last_success_unix gauge\n")
	fmt.Fprintf(rw, "pixelworld_export_last_success_unix %d\n", s.LastSuccessUnix)

	fmt.Fprintf(rw, "# HELP pixelworld_export_last_error_unix Unix timestamp of the last failed export upload.\n")
	fmt.Fprintf(rw, "# TYPE pixelworld_export_last_error_unix gauge\n")
	fmt.Fprintf(rw, "pixelworld_export_last_error_unix %d\n", s.LastErrorUnix)
}
