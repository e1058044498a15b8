package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/redis/go-redis/v9"

	server "github.com/kazz187/agentguild/internal"
	"github.com/kazz187/agentguild/internal/agent"
	agentrepo "github.com/kazz187/agentguild/internal/agent/repositoryimpl"
	"github.com/kazz187/agentguild/internal/config"
	"github.com/kazz187/agentguild/internal/delegation"
	"github.com/kazz187/agentguild/internal/event"
	"github.com/kazz187/agentguild/internal/eventbus"
	"github.com/kazz187/agentguild/internal/project"
	projectrepo "github.com/kazz187/agentguild/internal/project/repositoryimpl"
	"github.com/kazz187/agentguild/internal/pushnotification"
	pushsubrepo "github.com/kazz187/agentguild/internal/pushsubscription/repositoryimpl"
	"github.com/kazz187/agentguild/internal/scheduler"
	"github.com/kazz187/agentguild/internal/supervisor"
	"github.com/kazz187/agentguild/internal/task"
	taskrepo "github.com/kazz187/agentguild/internal/task/repositoryimpl"
	"github.com/kazz187/agentguild/pkg/clog"
	"github.com/kazz187/agentguild/pkg/storage"
)

func main() {
	env, err := config.LoadEnv()
	if err != nil {
		slog.Error("failed to load env", "error", err)
		os.Exit(1)
	}

	// Setup logger
	level := env.SlogLevel()
	var handler slog.Handler
	if env.Env == "local" {
		handler = clog.NewTextHandler(os.Stderr, clog.WithLevel(level))
	} else {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	}
	slog.SetDefault(slog.New(clog.NewAttributesHandler(handler)))

	if err := run(env); err != nil {
		slog.Error("server exited with error", "error", err)
		os.Exit(1)
	}
}

func run(env *config.Env) error {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer cancel()

	// Setup storage
	var store storage.Storage
	var err error
	switch env.StorageEnv.Type {
	case "s3":
		store, err = storage.NewS3Storage(ctx, env.S3Bucket, env.S3Prefix, env.S3Region)
		if err != nil {
			return err
		}
	default:
		store, err = storage.NewLocalStorage(env.BaseDir)
		if err != nil {
			return err
		}
	}

	// Optional redis for the task lease and the event stream mirror
	var rdb *redis.Client
	if env.RedisEnv.URL != "" {
		opts, err := redis.ParseURL(env.RedisEnv.URL)
		if err != nil {
			return err
		}
		rdb = redis.NewClient(opts)
		defer rdb.Close()
		if err := rdb.Ping(ctx).Err(); err != nil {
			return err
		}
	}

	// Setup event bus
	var eventStore eventbus.Store
	switch env.EventEnv.StoreType {
	case "sqlite":
		if err := os.MkdirAll(filepath.Dir(env.SQLitePath), 0o755); err != nil {
			return err
		}
		sqliteStore, err := eventbus.OpenSQLiteStore(ctx, env.SQLitePath)
		if err != nil {
			return err
		}
		defer sqliteStore.Close()
		eventStore = sqliteStore
	default:
		eventStore = eventbus.NewMemoryStore(env.RingCapacity)
	}
	var busOpts []eventbus.Option
	if rdb != nil {
		sink := eventbus.NewRedisStreamSink(rdb, env.StreamKey, env.StreamMax)
		go sink.Run(ctx)
		busOpts = append(busOpts, eventbus.WithSink(sink))
	}
	bus, err := eventbus.New(ctx, eventStore, busOpts...)
	if err != nil {
		return err
	}

	// Setup repositories
	projectRepo := projectrepo.NewYAMLRepository(store)
	agentRepo := agentrepo.NewYAMLRepository(store)
	taskRepo := taskrepo.NewYAMLRepository(store)
	trajectoryRepo := taskrepo.NewTrajectoryRepository(store)
	pushSubRepo := pushsubrepo.NewYAMLRepository(store)

	// Setup supervisor
	launcher, err := supervisor.NewExecLauncher(env.RuntimeCommand)
	if err != nil {
		return err
	}
	sup := supervisor.New(agentRepo, launcher, supervisor.DefaultDialer(),
		supervisor.NewPortPool(env.PortMin, env.PortMax), bus, supervisor.Config{
			RuntimeDir:        env.RuntimeDir,
			StartTimeout:      env.StartTimeout,
			StopGracePeriod:   env.StopGracePeriod,
			HealthTimeout:     env.HealthTimeout,
			ReapInterval:      env.ReapInterval,
			MaxHealthFailures: env.MaxHealthFailures,
		})

	// Setup scheduler and delegation
	var schedOpts []scheduler.Option
	if rdb != nil {
		schedOpts = append(schedOpts, scheduler.WithLocker(scheduler.NewRedisLocker(rdb, env.LockPrefix, env.LockTTL)))
	}
	sched := scheduler.New(taskRepo, trajectoryRepo, agentRepo, sup, bus, scheduler.Config{
		TickInterval:          env.TickInterval,
		MaxConcurrentPerAgent: env.MaxConcurrentPerAgent,
		Location:              env.Location(),
	}, schedOpts...)
	router := delegation.NewRouter(agentRepo, sched, sup, bus)
	sched.AddCompletionHook(router)

	// Setup servers
	agentServer := agent.NewServer(agentRepo, projectRepo, sup, sched, bus)
	projectServer := project.NewServer(projectRepo, agentRepo, agentServer)
	taskServer := task.NewServer(taskRepo, trajectoryRepo, sched)
	delegationServer := delegation.NewServer(router)
	eventServer := event.NewServer(bus)

	// Setup push notification
	vapidEnv := config.VAPIDEnvFromEnv(env)
	pushSender := pushnotification.NewSender(vapidEnv, pushSubRepo)
	pushNotificationServer := pushnotification.NewServer(vapidEnv, pushSubRepo)
	pushDispatcher := pushnotification.NewDispatcher(bus, pushSender)

	srv := server.NewServer(
		env,
		projectServer,
		agentServer,
		taskServer,
		delegationServer,
		eventServer,
		pushNotificationServer,
	)

	// Runtimes do not survive a server restart.
	if err := sup.Reconcile(ctx); err != nil {
		return err
	}
	if err := sched.Reconcile(ctx); err != nil {
		return err
	}
	go sup.StartReaper(ctx)
	go sched.Start(ctx)
	go pushDispatcher.Start(ctx)

	go func() {
		if err := srv.ListenAndServe(ctx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("server error", "error", err)
			cancel()
		}
	}()

	<-ctx.Done()
	slog.Info("shutting down server")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	sched.Close()
	sup.Shutdown(shutdownCtx)
	return nil
}
