package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tenapay/internal/config"
	"tenapay/internal/gateway"
	"tenapay/internal/handler"
	"tenapay/internal/infrastructure/cache"
	"tenapay/internal/infrastructure/database"
	"tenapay/internal/infrastructure/mail"
	"tenapay/internal/infrastructure/mq"
	"tenapay/internal/infrastructure/ws"
	"tenapay/internal/job"
	"tenapay/internal/service"
	"tenapay/pkg/idgen"
)

func main() {
	cfg := config.LoadConfig("config/config.yaml")

	idgen.Init(1)

	db := database.InitMySQL(&cfg.MySQL)

	redisClient := cache.InitRedis(&cfg.Redis)

	mq.InitKafka(&cfg.Kafka)
	defer mq.CloseKafka()

	hub := ws.NewHub()
	mailer := mail.NewMailer(&cfg.Mail)
	gatewayClient := gateway.NewClient(&cfg.Gateway)

	dispatcher := service.NewNotificationService(db, hub, mailer)
	claimService := service.NewClaimService(db, redisClient, cfg, gatewayClient, dispatcher)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	outboxSender := job.NewOutboxSender(db, cfg)
	go outboxSender.Start(ctx)

	reconciliationJob := job.NewReconciliationJob(db, cfg, claimService)
	go reconciliationJob.Start(ctx)

	reportJob := job.NewDailyReportJob(db, cfg, mailer)
	go reportJob.Start(ctx)

	router := handler.SetupRouter(db, redisClient, cfg, hub, dispatcher, claimService)

	server := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	go func() {
		log.Printf("server started, listening on port %d", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("shutting down...")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Printf("server shutdown error: %v", err)
	}

	log.Println("server stopped")
}
