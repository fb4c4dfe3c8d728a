// cmd/payment-service/main.go
package main

import (
	"context"

	"atlas/internal/events"
	"atlas/internal/pkg/bootstrap"
	"atlas/internal/pkg/logger"
	"atlas/internal/pkg/mq"
	"atlas/internal/pkg/redis"
	"atlas/internal/service/payment/application"
	"atlas/internal/service/payment/infrastructure"
	"atlas/internal/service/payment/interfaces"
)

const (
	serviceName = "payment-service"
	servicePort = 8083

	idempotencyPrefix = "atlas:payment:event:"
)

// main 支付服务组装根：事件驱动扣款 + 只读查询接口。
func main() {
	bootstrap.Init()
	cfg := bootstrap.GetCurrentConfig()

	db, err := infrastructure.NewDB(cfg.Infra.MySQL.DSN)
	if err != nil {
		logger.Logger().Fatal().Err(err).Msg("failed to connect mysql")
	}
	repo := infrastructure.NewGormPaymentRepository(db)

	publisher := infrastructure.NewKafkaEventPublisher(cfg.Infra.Kafka.Brokers)
	defer publisher.Close()

	gateway := infrastructure.NewSimulatedGateway(cfg.App.Payment.DeclineOver)
	svc := application.NewPaymentService(repo, gateway, publisher, cfg.App.Payment.Currency)

	redisClient := redis.NewClient(cfg.Infra.Redis.Addr)
	defer redisClient.Close()
	if err := redisClient.Ping(context.Background()); err != nil {
		logger.Logger().Warn().Err(err).Msg("redis unreachable at startup, event dedup degraded until it recovers")
	}
	idem := redis.NewIdempotencyStore(redisClient, idempotencyPrefix, 0)
	eventHandler := application.NewEventHandler(svc, idem)

	runners := interfaces.NewEventConsumers(cfg.Infra.Kafka.Brokers, eventHandler)
	// 每个消费的主题都有对应的死信监听
	for _, topic := range []string{events.TopicOrderEvents, events.TopicInventoryEvents} {
		dlt := mq.NewDLTMonitor(cfg.Infra.Kafka.Brokers, topic, serviceName+"-dlt")
		runners = append(runners, dlt.Run)
	}

	httpHandler := interfaces.NewPaymentHandler(svc)
	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        servicePort,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			httpHandler.RegisterRoutes(appCtx.Mux)
		},
		Runners: runners,
	})
}
