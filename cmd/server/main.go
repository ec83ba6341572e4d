// Command server runs the queue & matchmaking engine:
//
//  1. load config from environment variables (.env during dev)
//  2. open the durable queue mirror and rehydrate the in-memory queue
//  3. optionally connect the discord presence gate
//  4. serve the websocket/HTTP boundary and run the matchmaking tick
//     until a signal from the OS
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/bwmarrin/discordgo"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/DoyleJ11/lol-matchmaking-backend/internal/broadcast"
	"github.com/DoyleJ11/lol-matchmaking-backend/internal/config"
	"github.com/DoyleJ11/lol-matchmaking-backend/internal/httpapi"
	"github.com/DoyleJ11/lol-matchmaking-backend/internal/matchmaking"
	"github.com/DoyleJ11/lol-matchmaking-backend/internal/presence"
	"github.com/DoyleJ11/lol-matchmaking-backend/internal/queue"
	"github.com/DoyleJ11/lol-matchmaking-backend/internal/scheduler"
	"github.com/DoyleJ11/lol-matchmaking-backend/internal/store"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config error: %v", err)
	}

	logger, err := buildLogger(cfg.Dev)
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := store.Open(cfg.DatabaseURL, logger)
	if err != nil {
		logger.Fatal("open persistence", zap.Error(err))
	}

	qs := queue.NewStore(db, logger)
	if err := qs.Rehydrate(); err != nil {
		logger.Fatal("rehydrate queue", zap.Error(err))
	}

	gw := broadcast.NewGateway(cfg.BroadcastCooldown, logger)
	gate := presence.NewGate(cfg.LobbyChannelID, cfg.GuildID, logger)
	engine := matchmaking.NewEngine(ctx, qs, gw, gate, cfg.AcceptTimeout, logger)
	sched := scheduler.New(cfg.TickInterval, engine.TryFormMatch, logger)

	if cfg.DiscordToken != "" {
		sess, derr := discordgo.New("Bot " + cfg.DiscordToken)
		if derr != nil {
			logger.Fatal("discord session", zap.Error(derr))
		}
		gate.Register(sess)
		if derr := sess.Open(); derr != nil {
			logger.Fatal("discord gateway", zap.Error(derr))
		}
		defer sess.Close()
	}

	srv := &http.Server{
		Addr:    cfg.Addr,
		Handler: httpapi.SetupRoutes(engine, gw, gate, logger),
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		if serr := srv.ListenAndServe(); !errors.Is(serr, http.ErrServerClosed) {
			return serr
		}
		return nil
	})
	g.Go(func() error { return sched.Run(gctx) })
	g.Go(func() error {
		<-gctx.Done()
		engine.Shutdown()
		shutCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutCtx)
	})

	logger.Info("listening", zap.String("addr", cfg.Addr), zap.String("config", cfg.Redacted()))
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Fatal("server exited", zap.Error(err))
	}
}

func buildLogger(dev bool) (*zap.Logger, error) {
	if dev {
		return zap.NewDevelopment()
	}
	return zap.NewProduction()
}
