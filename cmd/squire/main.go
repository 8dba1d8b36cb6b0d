package main

import (
	"context"
	"errors"
	"flag"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/freeeve/squire/internal/book"
	"github.com/freeeve/squire/internal/bot"
	"github.com/freeeve/squire/internal/config"
	"github.com/freeeve/squire/internal/engine"
	"github.com/freeeve/squire/internal/lichess"
	"github.com/freeeve/squire/internal/logger"
)

func main() {
	configPath := flag.String("config", "config.yml", "path to the config file")
	upgrade := flag.Bool("u", false, "upgrade the account to a bot account and exit")
	debug := flag.Bool("debug", false, "enable debug logging")
	flag.Parse()

	logger.Init()
	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Str("path", *configPath).Msg("Loading config failed")
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	client := lichess.NewClient(cfg.Token, cfg.URL, bot.Version)

	account, err := client.GetProfile(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Fetching profile failed")
	}
	log.Info().Str("username", account.Username).Str("title", account.Title).Msg("Signed in")

	if *upgrade {
		if account.IsBot() {
			log.Info().Msg("Account is already a bot account")
			return
		}
		if err := client.UpgradeToBot(ctx); err != nil {
			log.Fatal().Err(err).Msg("Upgrading to a bot account failed")
		}
		log.Info().Str("username", account.Username).Msg("Account upgraded to a bot account")
		return
	}
	if !account.IsBot() {
		log.Fatal().Str("username", account.Username).
			Msg("Account is not a bot account, run with -u to upgrade it")
	}

	advisor := book.NewAdvisor(cfg.Engine.Book)
	defer advisor.Close()
	factory := engine.NewUCIFactory(cfg.Engine)

	err = bot.Start(ctx, client, client, factory, advisor, cfg, account.Username)
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Fatal().Err(err).Msg("Orchestrator failed")
	}
	log.Info().Msg("Shut down cleanly")
}
