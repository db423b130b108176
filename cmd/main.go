package main

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/oapi-lab/canteen/internal/api/handler"
	"github.com/oapi-lab/canteen/internal/api/router"
	"github.com/oapi-lab/canteen/internal/config"
	"github.com/oapi-lab/canteen/internal/infra/consumer"
	"github.com/oapi-lab/canteen/internal/infra/producer"
	"github.com/oapi-lab/canteen/internal/infra/provider"
	"github.com/oapi-lab/canteen/internal/infra/provider/mtn"
	"github.com/oapi-lab/canteen/internal/infra/provider/orange"
	"github.com/oapi-lab/canteen/internal/infra/repository/db"
	"github.com/oapi-lab/canteen/internal/infra/repository/redis_repo"
	"github.com/oapi-lab/canteen/internal/pkg/logger"
	"github.com/oapi-lab/canteen/internal/service"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"
)

func main() {
	log := logger.New("canteen")
	cf := config.GetConfig()

	conn, err := db.GetDbConn(cf.DbName, cf.DbHost, cf.DbPort, cf.DbUser, cf.DbPas)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to postgres")
	}
	dao := db.NewDbDao(conn)
	if err := dao.InitMigrate(); err != nil {
		log.Fatal().Err(err).Msg("failed to migrate schema")
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cf.RedisAddr,
		Password: cf.RedisPassword,
		DB:       cf.RedisDB,
	})
	defer redisClient.Close()

	// provider 共用一個帶逾時的 http client
	providerClient := &http.Client{Timeout: cf.ProviderTimeout()}
	provider.Register(orange.New(cf, providerClient, logger.New("orange")))
	provider.Register(mtn.New(cf, providerClient, logger.New("mtn")))

	eventProducer := producer.NewEventProducer(cf.KafkaBrokers, cf.KafkaNotificationTopic, cf.KafkaPaymentTopic)
	defer eventProducer.Close()

	orderRepo := db.NewOrderRepo(dao)
	paymentRepo := db.NewPaymentRepo(dao)
	methodRepo := db.NewPaymentMethodRepo(dao)
	menuRepo := db.NewMenuRepo(dao)
	cartRepo := redis_repo.NewCartRepo(redisClient)

	pricing := service.NewPricingService()
	taxRate := decimal.NewFromFloat(cf.TaxRate)
	deliveryFee := decimal.NewFromFloat(cf.DefaultDeliveryFee)
	paymentExpiry := time.Duration(cf.PaymentExpiryMin) * time.Minute

	orderService := service.NewOrderService(dao, orderRepo, menuRepo, pricing, eventProducer, taxRate, logger.New("order_service"))
	paymentService := service.NewPaymentService(dao, paymentRepo, methodRepo, orderService, eventProducer, paymentExpiry, logger.New("payment_service"))
	cartService := service.NewCartService(cartRepo, menuRepo, orderService, deliveryFee, logger.New("cart_service"))

	paymentConsumer := consumer.NewPaymentEventConsumer(cf.KafkaBrokers, cf.KafkaPaymentTopic, cf.KafkaConsumerGroup, orderRepo, logger.New("payment_consumer"))
	defer paymentConsumer.Close()

	mux := router.SetupRouter(router.Handlers{
		Cart:    handler.NewCartHandler(cartService),
		Order:   handler.NewOrderHandler(orderService),
		Payment: handler.NewPaymentHandler(paymentService),
		Webhook: handler.NewWebhookHandler(paymentService, logger.New("webhook")),
		Menu:    handler.NewMenuHandler(menuRepo, methodRepo),
	}, &log)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	server := &http.Server{
		Addr:    ":" + cf.ServerPort,
		Handler: mux,
	}

	g, gCtx := errgroup.WithContext(ctx)

	g.Go(func() error {
		log.Info().Str("port", cf.ServerPort).Msg("http server started")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		log.Info().Str("topic", cf.KafkaPaymentTopic).Msg("payment event consumer started")
		return paymentConsumer.Run(gCtx)
	})

	g.Go(func() error {
		<-gCtx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("server exited with error")
	}
	log.Info().Msg("server stopped")
}
