package main

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"connectrpc.com/grpchealth"
	"github.com/alecthomas/kingpin/v2"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"

	"github.com/kazz187/agentguild/api/agentguild/v1/agentguildv1connect"
	agentruntime "github.com/kazz187/agentguild/internal/runtime"
	"github.com/kazz187/agentguild/pkg/cerr"
	"github.com/kazz187/agentguild/pkg/clog"
	"github.com/kazz187/agentguild/pkg/filewatch"
)

var (
	app = kingpin.New("agentguild-runtime", "Runtime process for a single agentguild agent")

	agentID    = app.Flag("agent-id", "Agent ID").Required().String()
	port       = app.Flag("port", "Loopback port to serve the control channel on").Required().Int()
	configPath = app.Flag("config", "Path of the agent config file").Required().ExistingFile()
	executor   = app.Flag("executor", "Task executor").Envar("AGENTGUILD_RUNTIME_EXECUTOR").Default("claude").Enum("claude", "echo")
	workDir    = app.Flag("work-dir", "Working directory for task execution").Envar("AGENTGUILD_RUNTIME_WORK_DIR").Default(".").String()
	maxTurns   = app.Flag("max-turns", "Turn limit per task, 0 for the executor default").Envar("AGENTGUILD_RUNTIME_MAX_TURNS").Default("0").Int()
	drainFor   = app.Flag("drain-timeout", "How long in-flight tasks may finish after SIGTERM").Envar("AGENTGUILD_RUNTIME_DRAIN_TIMEOUT").Default("8s").Duration()
	logLevel   = app.Flag("log-level", "Log level").Envar("AGENTGUILD_LOG_LEVEL").Default("info").String()
	logJSON    = app.Flag("log-json", "Log as JSON").Envar("AGENTGUILD_RUNTIME_LOG_JSON").Bool()
)

func main() {
	kingpin.MustParse(app.Parse(os.Args[1:]))

	var level slog.Level
	if err := level.UnmarshalText([]byte(*logLevel)); err != nil {
		level = slog.LevelInfo
	}
	var handler slog.Handler
	if *logJSON {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = clog.NewTextHandler(os.Stderr, clog.WithLevel(level), clog.WithColor(false))
	}
	slog.SetDefault(slog.New(clog.NewAttributesHandler(handler)).With("agent_id", *agentID))

	if err := run(); err != nil {
		slog.Error("runtime exited with error", "error", err)
		os.Exit(1)
	}
}

func run() error {
	loaded, err := filewatch.HashFile(*configPath)
	if err != nil {
		return err
	}
	cfg, err := agentruntime.LoadConfig(*configPath)
	if err != nil {
		return err
	}
	if cfg.AgentID != *agentID {
		return errors.New("config file belongs to agent " + cfg.AgentID)
	}
	// The claude CLI picks the model from its environment; a model change
	// always restarts the process so this stays accurate.
	if err := os.Setenv("ANTHROPIC_MODEL", cfg.Model); err != nil {
		return err
	}

	exec, err := agentruntime.NewExecutor(*executor, *workDir, *maxTurns)
	if err != nil {
		return err
	}
	srv := agentruntime.NewServer(cfg, exec)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()
	// Requests keep running after a signal until they are drained.
	serveCtx, cancelServe := context.WithCancel(context.Background())
	defer cancelServe()

	go func() {
		if err := srv.Watch(ctx, *configPath, loaded); err != nil {
			slog.ErrorContext(ctx, "config watcher stopped", "error", err)
		}
	}()

	mux := http.NewServeMux()
	mux.Handle(agentguildv1connect.NewRuntimeServiceHandler(srv, connect.WithInterceptors(
		clog.NewSlogConnectInterceptor(clog.WithConnectFilter(func(spec connect.Spec) bool {
			return spec.Procedure != agentguildv1connect.RuntimeServicePingProcedure
		})),
		cerr.NewConvertConnectErrorInterceptor(),
	)))
	mux.Handle(grpchealth.NewHandler(grpchealth.NewStaticChecker(agentguildv1connect.RuntimeServiceName)))

	httpServer := &http.Server{
		Addr:              net.JoinHostPort("127.0.0.1", strconv.Itoa(*port)),
		Handler:           h2c.NewHandler(mux, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return serveCtx },
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("runtime listening", "addr", httpServer.Addr, "executor", *executor, "model", cfg.Model)
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("runtime draining", "timeout", *drainFor)
	drainCtx, drainCancel := context.WithTimeout(context.Background(), *drainFor)
	defer drainCancel()
	if err := srv.Drain(drainCtx); err != nil {
		slog.Warn("runtime: tasks still running at drain deadline, interrupting", "error", err)
	}

	slog.Info("runtime shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), time.Second)
	defer shutdownCancel()
	// h2c streams are hijacked connections that Shutdown does not wait for;
	// cancelling the base context interrupts whatever Drain left behind.
	err = httpServer.Shutdown(shutdownCtx)
	cancelServe()
	return err
}
