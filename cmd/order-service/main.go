// cmd/order-service/main.go
package main

import (
	"context"

	"atlas/internal/events"
	"atlas/internal/pkg/bootstrap"
	"atlas/internal/pkg/logger"
	"atlas/internal/pkg/mq"
	"atlas/internal/pkg/redis"
	"atlas/internal/service/order/application"
	"atlas/internal/service/order/infrastructure"
	"atlas/internal/service/order/interfaces"
)

const (
	serviceName = "order-service"
	servicePort = 8081

	idempotencyPrefix = "atlas:order:event:"
)

// main 订单服务组装根：HTTP 下单入口 + saga 投影消费循环。
func main() {
	bootstrap.Init()
	cfg := bootstrap.GetCurrentConfig()

	db, err := infrastructure.NewDB(cfg.Infra.MySQL.DSN)
	if err != nil {
		logger.Logger().Fatal().Err(err).Msg("failed to connect mysql")
	}
	repo := infrastructure.NewGormOrderRepository(db)

	publisher := infrastructure.NewKafkaEventPublisher(cfg.Infra.Kafka.Brokers)
	defer publisher.Close()

	svc := application.NewOrderService(repo, publisher)

	redisClient := redis.NewClient(cfg.Infra.Redis.Addr)
	defer redisClient.Close()
	if err := redisClient.Ping(context.Background()); err != nil {
		logger.Logger().Warn().Err(err).Msg("redis unreachable at startup, event dedup degraded until it recovers")
	}
	idem := redis.NewIdempotencyStore(redisClient, idempotencyPrefix, 0)
	sagaHandler := application.NewSagaEventHandler(repo, idem)

	runners := interfaces.NewEventConsumers(cfg.Infra.Kafka.Brokers, sagaHandler)
	// 每个消费的主题都有对应的死信监听
	for _, topic := range []string{events.TopicInventoryEvents, events.TopicPaymentEvents} {
		dlt := mq.NewDLTMonitor(cfg.Infra.Kafka.Brokers, topic, serviceName+"-dlt")
		runners = append(runners, dlt.Run)
	}

	httpHandler := interfaces.NewOrderHandler(svc)
	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        servicePort,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			httpHandler.RegisterRoutes(appCtx.Mux)
		},
		Runners: runners,
	})
}
