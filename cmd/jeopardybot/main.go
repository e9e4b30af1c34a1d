// Command jeopardybot is the process bootstrap (§1 "process bootstrap"
// is an out-of-scope external, but a minimal one is still written so
// the module runs): it wires Store, the two Bot identities, Matcher,
// Supervisor, and the admin status feed together into the single
// cooperatively-multitasked process spec.md §5 calls for ("single
// process, multi-tasked"), then waits for SIGINT/SIGTERM and drains
// the Supervisor before exiting.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"jeopardybot/adminmon"
	"jeopardybot/bot"
	"jeopardybot/matcher"
	"jeopardybot/platform"
	"jeopardybot/store"
	"jeopardybot/supervisor"
)

// NewPlatformClient builds the concrete messaging-platform client for
// a bot token. The client library itself is an out-of-scope external
// collaborator (§1): only its contract (platform.Client) is defined by
// this module. A real deployment replaces this var with a constructor
// for its actual platform client before calling main's wiring, or
// vendors its own cmd/ package that does the same wiring below against
// a concrete implementation.
var NewPlatformClient = func(token string, log *zap.Logger) (platform.Client, error) {
	return nil, fmt.Errorf("no platform.Client wired for this deployment; provide one via jeopardybot.NewPlatformClient")
}

func main() {
	_ = godotenv.Load() // optional local .env, ignored if absent

	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = log.Sync() }()

	schedulerToken := requireEnv(log, "SCHEDULER_BOT_TOKEN")
	playToken := requireEnv(log, "PLAY_BOT_TOKEN")
	dbPath := envOrDefault("JEOPARDYBOT_DB_PATH", "jeopardybot.db")
	managerID := envInt64(log, "JEOPARDYBOT_MANAGER_ID")
	dummyID := envInt64OrZero("JEOPARDYBOT_DUMMY_ID")
	adminAddr := envOrDefault("JEOPARDYBOT_ADMIN_ADDR", ":8090")

	st, err := store.Open(dbPath)
	if err != nil {
		log.Fatal("open store", zap.Error(err))
	}
	defer func() { _ = st.Close() }()

	schedulerClient, err := NewPlatformClient(schedulerToken, log.With(zap.String("bot", "scheduler")))
	if err != nil {
		log.Fatal("construct scheduler platform client", zap.Error(err))
	}
	playClient, err := NewPlatformClient(playToken, log.With(zap.String("bot", "play")))
	if err != nil {
		log.Fatal("construct play platform client", zap.Error(err))
	}

	schedulerBot := bot.New(schedulerClient, log.With(zap.String("bot", "scheduler")))
	playBot := bot.New(playClient, log.With(zap.String("bot", "play")))

	sup := supervisor.New(st, schedulerBot, playBot, nil, schedulerClient.Updates(), playClient.Updates(),
		supervisor.Config{ManagerID: managerID, DummyID: dummyID}, log)
	m := matcher.New(st, sup.CandidateSource(), sup.Notifier(), log.With(zap.String("component", "matcher")))
	sup.SetMatcher(m)

	hub := adminmon.New(log.With(zap.String("component", "adminmon")))
	sup.SetAdminHub(hub)
	adminServer := adminmon.NewServer(hub, sup, []string{"http://localhost:3000"}, log)
	httpServer := &http.Server{Addr: adminAddr, Handler: adminServer.Handler()}

	ctx, cancel := context.WithCancel(context.Background())

	go hub.Run(ctx)
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("admin http server failed", zap.Error(err))
		}
	}()
	go func() {
		if err := sup.Run(ctx); err != nil {
			log.Error("supervisor run failed", zap.Error(err))
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	<-sig
	log.Info("shutting down")

	sup.Shutdown(ctx)
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)

	log.Info("bot off")
}

func requireEnv(log *zap.Logger, key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatal("missing required environment variable", zap.String("key", key))
	}
	return v
}

func envOrDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func envInt64(log *zap.Logger, key string) int64 {
	v := requireEnv(log, key)
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		log.Fatal("invalid environment variable", zap.String("key", key), zap.Error(err))
	}
	return n
}

func envInt64OrZero(key string) int64 {
	v := os.Getenv(key)
	if v == "" {
		return 0
	}
	n, _ := strconv.ParseInt(v, 10, 64)
	return n
}
