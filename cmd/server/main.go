package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	"time"

	"github.com/Spok95/school-fees-service/internal/app"
	"github.com/Spok95/school-fees-service/internal/config"
	"github.com/Spok95/school-fees-service/internal/db"
	"github.com/Spok95/school-fees-service/internal/fees"
	"github.com/Spok95/school-fees-service/internal/jobs"
	"github.com/Spok95/school-fees-service/internal/logging"
	"github.com/Spok95/school-fees-service/internal/observability"
	"github.com/Spok95/school-fees-service/internal/promotion"
	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

func main() {
	// Загрузка переменных окружения
	if err := godotenv.Load(); err != nil {
		log.Println("Не удалось загрузить .env файл, используем переменные окружения")
	}

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Ошибка конфигурации: %v", err)
	}

	lg, err := logging.Init(cfg.LogLevel, cfg.Env)
	if err != nil {
		log.Fatalf("Ошибка логгера: %v", err)
	}
	defer lg.Closer()

	flush, err := observability.InitSentry(cfg.SentryDSN, cfg.Env, "")
	if err != nil {
		lg.Base.Warn("sentry не инициализирован", zap.Error(err))
	}
	defer flush()

	database, err := db.MustOpen()
	if err != nil {
		log.Fatalf("Ошибка подключения к БД: %v", err)
	}
	defer database.Close()

	if err := db.Migrate(database); err != nil {
		log.Fatal("Миграция не удалась:", err)
	}

	// Бот опционален: без токена сервис работает, уведомлений нет
	var bot *tgbotapi.BotAPI
	if cfg.BotToken != "" {
		bot, err = tgbotapi.NewBotAPI(cfg.BotToken)
		if err != nil {
			lg.Base.Warn("telegram-бот не запущен", zap.Error(err))
			bot = nil
		} else {
			lg.Base.Info("telegram-бот запущен", zap.String("username", bot.Self.UserName))
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	srv := &app.Server{
		DB:        database,
		Fees:      fees.NewEngine(database),
		Promotion: promotion.NewEngine(database, lg.Base),
		Revert:    promotion.NewRevertEngine(database, lg.Base),
		Log:       lg.Base,
		Loc:       cfg.Location,
		Bot:       bot,
		AdminIDs:  cfg.AdminIDs,
	}
	app.StartHTTP(ctx, cfg.HTTPAddr, srv)
	lg.Base.Info("HTTP-сервер запущен", zap.String("addr", cfg.HTTPAddr))

	runner := jobs.New(ctx)
	runner.Every(15*time.Minute, "dues_gauge", func(ctx context.Context) error {
		return jobs.RefreshDuesGauge(ctx, database)
	})

	<-ctx.Done()
	lg.Base.Info("останавливаемся")
}
