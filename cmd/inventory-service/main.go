// cmd/inventory-service/main.go
package main

import (
	"context"

	"atlas/internal/events"
	"atlas/internal/pkg/bootstrap"
	"atlas/internal/pkg/logger"
	"atlas/internal/pkg/mq"
	"atlas/internal/pkg/redis"
	"atlas/internal/service/inventory/application"
	"atlas/internal/service/inventory/infrastructure"
	"atlas/internal/service/inventory/interfaces"
	"atlas/internal/zookeeper"
)

const (
	serviceName = "inventory-service"
	servicePort = 8082

	idempotencyPrefix = "atlas:inventory:event:"
	sweepLockResource = "reservation-sweep"
)

// main 是库存服务的组装根：构造仓储、发布器、告警规则、
// 应用服务、HTTP 接口和后台 Runner，然后交给 bootstrap 启动。
func main() {
	bootstrap.Init()
	cfg := bootstrap.GetCurrentConfig()

	db, err := infrastructure.NewDB(cfg.Infra.MySQL.DSN)
	if err != nil {
		logger.Logger().Fatal().Err(err).Msg("failed to connect mysql")
	}
	repo := infrastructure.NewGormInventoryRepository(db)

	publisher := infrastructure.NewKafkaEventPublisher(cfg.Infra.Kafka.Brokers)
	defer publisher.Close()

	alertRule, err := infrastructure.NewCELAlertRule(cfg.App.Alert.Rule)
	if err != nil {
		logger.Logger().Fatal().Err(err).Str("rule", cfg.App.Alert.Rule).Msg("invalid alert rule")
	}

	svc := application.NewReservationManager(repo, publisher, alertRule, cfg.App.Reservation.TTL.Std())

	redisClient := redis.NewClient(cfg.Infra.Redis.Addr)
	defer redisClient.Close()
	if err := redisClient.Ping(context.Background()); err != nil {
		logger.Logger().Warn().Err(err).Msg("redis unreachable at startup, event dedup degraded until it recovers")
	}
	idem := redis.NewIdempotencyStore(redisClient, idempotencyPrefix, 0)
	eventHandler := application.NewEventHandler(svc, idem, publisher)

	// 清扫锁放不上只是降级成"可能多实例重复清扫"，清扫本身幂等。
	var sweepLock application.SweepLock
	zkConn, err := zookeeper.Connect(cfg.Infra.Zookeeper.Servers, cfg.Infra.Zookeeper.SessionTimeout.Std())
	if err != nil {
		logger.Logger().Warn().Err(err).Msg("zookeeper unavailable, expiry sweep runs unguarded")
	} else {
		defer zkConn.Close()
		lock, err := zookeeper.NewDistributedLock(zkConn, sweepLockResource)
		if err != nil {
			logger.Logger().Warn().Err(err).Msg("failed to prepare sweep lock, expiry sweep runs unguarded")
		} else {
			sweepLock = lock
		}
	}
	sweeper := application.NewExpirySweeper(svc, sweepLock,
		cfg.App.Reservation.SweepInterval.Std(), cfg.App.Reservation.SweepBatch)

	runners := append(
		interfaces.NewEventConsumers(cfg.Infra.Kafka.Brokers, eventHandler),
		sweeper.Run,
	)
	// 每个消费的主题都有对应的死信监听
	for _, topic := range []string{events.TopicOrderEvents, events.TopicPaymentEvents, events.TopicInventoryEvents} {
		dlt := mq.NewDLTMonitor(cfg.Infra.Kafka.Brokers, topic, serviceName+"-dlt")
		runners = append(runners, dlt.Run)
	}

	httpHandler := interfaces.NewInventoryHandler(svc)
	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        servicePort,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			httpHandler.RegisterRoutes(appCtx.Mux)
		},
		Runners: runners,
	})
}
