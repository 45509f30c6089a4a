package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/EgorLis/apbot/internal/apclient"
	"github.com/EgorLis/apbot/internal/bot"
	"github.com/EgorLis/apbot/internal/config"
	"github.com/EgorLis/apbot/internal/logger"
	"github.com/EgorLis/apbot/internal/persist"
)

type flags struct {
	slotName   string
	serverAddr string
	password   string
}

func main() {
	// .env необязателен
	_ = godotenv.Load()

	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		log.Printf("fatal: %v", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var f flags
	cmd := &cobra.Command{
		Use:           "apbot <config-file>",
		Short:         "Archipelago bot that plays one slot to its goal",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), args[0], f)
		},
	}
	cmd.Flags().StringVarP(&f.slotName, "slot-name", "s", "", "slot to play (env SLOT_NAME)")
	cmd.Flags().StringVarP(&f.serverAddr, "server-addr", "a", "", "server address, host:port or ws(s)://... (env SERVER_ADDR)")
	cmd.Flags().StringVarP(&f.password, "password", "p", "", "room password (env PASSWORD)")
	return cmd
}

func run(ctx context.Context, path string, f flags) error {
	cfg, err := config.Load(path)
	if err != nil {
		return err
	}
	applyOverrides(cfg, f)

	p := newPrompter()
	defer p.Close()
	if cfg.SlotName == "" {
		if cfg.SlotName, err = p.Ask("Slot name: "); err != nil {
			return fmt.Errorf("slot_name: %w", err)
		}
	}
	if cfg.ServerAddr == "" {
		if cfg.ServerAddr, err = p.Ask("Server address: "); err != nil {
			return fmt.Errorf("server_addr: %w", err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	if err := logger.Init(cfg.LogFile, cfg.Verbose); err != nil {
		return fmt.Errorf("log file: %w", err)
	}
	defer logger.Close()

	codec, err := persist.CodecFor(cfg.StateFormat)
	if err != nil {
		return err
	}
	repo := persist.NewFileRepository(cfg.StateDir, codec)

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := bot.Bootstrap(ctx, cfg, repo)
	if needsPassword(err, cfg) && p.Interactive() {
		if cfg.Password, err = p.AskPassword("Password: "); err != nil {
			return err
		}
		s, err = bot.Bootstrap(ctx, cfg, repo)
	}
	if err != nil {
		return err
	}
	defer s.Close()

	log.Println("running… press Ctrl+C to stop")
	out, err := s.Run(ctx)
	if err != nil {
		return err
	}
	if out.Goal {
		log.Printf("done: goal reached at %s", out.Result.At.Format("15:04:05"))
	} else {
		log.Println("done: disconnected before the goal")
	}
	return nil
}

// applyOverrides: флаг > переменная окружения > конфиг.
func applyOverrides(cfg *config.Config, f flags) {
	pick := func(dst *string, flag, env string) {
		if flag != "" {
			*dst = flag
		} else if v := os.Getenv(env); v != "" {
			*dst = v
		}
	}
	pick(&cfg.SlotName, f.slotName, "SLOT_NAME")
	pick(&cfg.ServerAddr, f.serverAddr, "SERVER_ADDR")
	pick(&cfg.Password, f.password, "PASSWORD")
}

func needsPassword(err error, cfg *config.Config) bool {
	return cfg.Password == "" &&
		errors.Is(err, apclient.ErrConnectionRefused) &&
		strings.Contains(err.Error(), "InvalidPassword")
}
