package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/spf13/cobra"

	"taskplanner/internal/bot"
	"taskplanner/internal/dispatch"
	"taskplanner/internal/notify"
	"taskplanner/internal/repository"
	"taskplanner/internal/service"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the reminder scanner and the Telegram bot",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	logger.Info("starting planner", "version", Version)

	// graceful shutdown
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, closeDB, err := openDB()
	if err != nil {
		return err
	}
	defer closeDB()

	gateway, api, err := buildGateway()
	if err != nil {
		return err
	}

	store := repository.NewStore(db)
	hub := notify.NewHub(32)
	taskSvc := service.NewTaskService(store, hub, logger, cfg.Location())
	reminderSvc := service.NewReminderService(store, gateway, newPool(), logger).WithDispatchTimeout(cfg.DispatchTimeout)

	scheduler := service.NewSchedulerService(cfg.Location(), logger)
	if _, err := scheduler.ScheduleInterval(cfg.ReminderInterval, reminderSvc.ScanJob(cfg.ReminderInterval)); err != nil {
		return fmt.Errorf("schedule reminder scan: %w", err)
	}
	scheduler.Start()
	defer scheduler.Stop()
	logger.Info("reminder scan scheduled", "interval", cfg.ReminderInterval, "workers", cfg.DispatchWorkers)

	if api == nil {
		logger.Warn("TELEGRAM_TOKEN not set, running reminder scanner only")
		<-ctx.Done()
		logger.Info("shutdown complete")
		return nil
	}

	telegramBot := bot.New(api, store.Owners, taskSvc, reminderSvc, hub, logger)
	if err := telegramBot.Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("bot stopped: %w", err)
	}
	logger.Info("shutdown complete")
	return nil
}

// buildGateway wires the configured channels. Unconfigured channels report
// themselves disabled, and reminders routed only to them are resolved
// without delivery.
func buildGateway() (dispatch.Transport, *tgbotapi.BotAPI, error) {
	var transport dispatch.Transport
	if cfg.SMTP.Enabled() {
		transport.Mailer = dispatch.NewSMTPMailer(cfg.SMTP.Host, cfg.SMTP.Port, cfg.SMTP.Username, cfg.SMTP.Password, cfg.SMTP.From, cfg.SMTP.Timeout)
	} else {
		logger.Info("SMTP_HOST not set, email reminders disabled")
	}

	if cfg.TelegramToken == "" {
		return transport, nil, nil
	}
	api, err := bot.NewAPI(cfg.TelegramToken)
	if err != nil {
		return transport, nil, err
	}
	transport.Pusher = dispatch.NewTelegramPusher(api)
	return transport, api, nil
}

func newPool() *dispatch.Pool {
	return dispatch.NewPool(cfg.DispatchWorkers)
}
