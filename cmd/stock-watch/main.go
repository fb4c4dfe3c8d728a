// cmd/stock-watch/main.go
package main

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"atlas/internal/pkg/bootstrap"
	"atlas/internal/service/stockwatch"
)

const (
	serviceName = "stock-watch"
	servicePort = 8084
)

// main 库存监控面板的推送网关：消费 inventory-events，
// 把事件实时广播给 WebSocket 订阅者。
func main() {
	bootstrap.Init()
	cfg := bootstrap.GetCurrentConfig()

	hub := stockwatch.NewHub()
	consumer := stockwatch.NewEventConsumer(cfg.Infra.Kafka.Brokers, hub)

	bootstrap.StartService(bootstrap.AppInfo{
		ServiceName: serviceName,
		Port:        servicePort,
		RegisterHandlers: func(appCtx bootstrap.AppCtx) {
			appCtx.Mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusOK) })
			appCtx.Mux.Handle("/metrics", promhttp.Handler())
			appCtx.Mux.HandleFunc("GET /ws", func(w http.ResponseWriter, r *http.Request) {
				stockwatch.ServeWS(hub, w, r)
			})
		},
		Runners: []bootstrap.Runner{hub.Run, consumer},
	})
}
