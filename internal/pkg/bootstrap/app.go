// internal/pkg/bootstrap/app.go
package bootstrap

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"

	"atlas/internal/pkg/config"
	"atlas/internal/pkg/logger"
	"atlas/internal/pkg/nacos"
	"atlas/internal/pkg/utils"
	"atlas/internal/tracing"
)

var currentConfig *config.Config

// Init 加载全局配置。必须在 StartService 之前调用。
// 配置路径来自 CONF_PATH 环境变量，默认 ./configs/config.yaml。
func Init() {
	path := os.Getenv("CONF_PATH")
	if path == "" {
		path = "./configs/config.yaml"
	}
	cfg, err := config.Load(path)
	if err != nil {
		logger.Logger().Fatal().Err(err).Str("path", path).Msg("failed to load config")
	}
	currentConfig = cfg
}

// GetCurrentConfig 返回已加载的全局配置。
func GetCurrentConfig() *config.Config {
	if currentConfig == nil {
		Init()
	}
	return currentConfig
}

// AppCtx 传递给各服务的装配回调。
type AppCtx struct {
	Mux    *http.ServeMux
	Config *config.Config
}

// Runner 是一个长期运行的后台组件（Kafka 消费者、过期清扫等）。
// ctx 取消后必须尽快返回。
type Runner func(ctx context.Context) error

// AppInfo 包含了启动一个微服务所需的所有特定信息。
type AppInfo struct {
	ServiceName      string
	Port             int
	RegisterHandlers func(appCtx AppCtx)
	// Runners 在 HTTP 服务就绪后启动，随服务一起优雅关停。
	Runners []Runner
}

// StartService 封装了所有微服务的通用启动和优雅关停逻辑。
func StartService(info AppInfo) {
	logger.Init(info.ServiceName)
	cfg := GetCurrentConfig()

	// 1. Tracer
	tp, err := tracing.InitTracerProvider(info.ServiceName, cfg.Infra.Jaeger.Endpoint)
	if err != nil {
		logger.Logger().Fatal().Err(err).Msg("failed to initialize tracer provider")
	}

	// 2. 服务注册
	namingClient, err := nacos.NewClient(cfg.Infra.Nacos.ServerAddrs, cfg.Infra.Nacos.Namespace, cfg.Infra.Nacos.Group)
	if err != nil {
		logger.Logger().Fatal().Err(err).Msg("failed to initialize nacos client")
	}
	ip, err := utils.GetOutboundIP()
	if err != nil {
		logger.Logger().Fatal().Err(err).Msg("failed to get outbound IP address")
	}
	if err := namingClient.RegisterServiceInstance(info.ServiceName, ip, info.Port); err != nil {
		logger.Logger().Fatal().Err(err).Msg("failed to register service with nacos")
	}

	// 3. HTTP Server
	mux := http.NewServeMux()
	if info.RegisterHandlers != nil {
		info.RegisterHandlers(AppCtx{Mux: mux, Config: cfg})
	}
	server := &http.Server{Addr: ":" + strconv.Itoa(info.Port), Handler: mux}
	go func() {
		logger.Logger().Info().Int("port", info.Port).Msgf("%s listening", info.ServiceName)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Logger().Fatal().Err(err).Msgf("could not listen on %s", server.Addr)
		}
	}()

	// 4. 后台组件统一由 errgroup 管理，任何一个异常退出都会触发整体关停。
	runCtx, cancelRunners := context.WithCancel(context.Background())
	group, groupCtx := errgroup.WithContext(runCtx)
	for _, r := range info.Runners {
		runner := r
		group.Go(func() error { return runner(groupCtx) })
	}

	// 5. 等待退出信号或后台组件失败
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case sig := <-quit:
		logger.Logger().Info().Str("signal", sig.String()).Msgf("Shutting down service %s...", info.ServiceName)
	case <-groupCtx.Done():
		logger.Logger().Error().Err(groupCtx.Err()).Msg("background runner failed, shutting down")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// 关停顺序与启动相反 (后进先出)
	cancelRunners()
	if err := group.Wait(); err != nil && err != context.Canceled {
		logger.Logger().Error().Err(err).Msg("background runners exited with error")
	}

	if err := namingClient.DeregisterServiceInstance(info.ServiceName, ip, info.Port); err != nil {
		logger.Logger().Error().Err(err).Msg("Error deregistering from Nacos")
	}

	if err := tp.Shutdown(ctx); err != nil {
		logger.Logger().Error().Err(err).Msg("Error shutting down tracer provider")
	}

	if err := server.Shutdown(ctx); err != nil {
		logger.Logger().Error().Err(err).Msg("Error shutting down http server")
	}

	logger.Logger().Info().Msgf("Service %s gracefully shut down.", info.ServiceName)
}
