// internal/pkg/config/config.go
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration 包装 time.Duration 以支持 yaml 中的 "15m" 这类写法。
type Duration time.Duration

func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	parsed, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", value.Value, err)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// Config 是所有服务共享的配置根。
// 每个服务只读取自己关心的部分。
type Config struct {
	App   App   `yaml:"app"`
	Infra Infra `yaml:"infra"`
}

type App struct {
	Reservation Reservation `yaml:"reservation"`
	Payment     Payment     `yaml:"payment"`
	Alert       Alert       `yaml:"alert"`
}

// Reservation 控制预留的生命周期策略。
// TTL 是一个可调参数：它直接决定了"慢支付"还能成功的时间窗口。
type Reservation struct {
	TTL           Duration `yaml:"ttl"`
	SweepInterval Duration `yaml:"sweepInterval"`
	SweepBatch    int      `yaml:"sweepBatch"`
}

type Payment struct {
	DeclineOver int64  `yaml:"declineOver"` // 模拟网关：超过该金额的扣款会被拒绝，0 表示不限
	Currency    string `yaml:"currency"`
}

// Alert 配置低库存告警规则。Rule 是一个 CEL 表达式，
// 可用变量为 available / quantity / reserved / threshold。
type Alert struct {
	Rule string `yaml:"rule"`
}

type Infra struct {
	MySQL     MySQL     `yaml:"mysql"`
	Redis     Redis     `yaml:"redis"`
	Kafka     Kafka     `yaml:"kafka"`
	Jaeger    Jaeger    `yaml:"jaeger"`
	Zookeeper Zookeeper `yaml:"zookeeper"`
	Nacos     Nacos     `yaml:"nacos"`
}

type MySQL struct {
	DSN string `yaml:"dsn"`
}

type Redis struct {
	Addr string `yaml:"addr"`
}

type Kafka struct {
	Brokers []string `yaml:"brokers"`
}

type Jaeger struct {
	Endpoint string `yaml:"endpoint"`
}

type Zookeeper struct {
	Servers        []string `yaml:"servers"`
	SessionTimeout Duration `yaml:"sessionTimeout"`
}

type Nacos struct {
	ServerAddrs string `yaml:"serverAddrs"`
	Namespace   string `yaml:"namespace"`
	Group       string `yaml:"group"`
}

// Load 从 path 读取 yaml 配置，并应用环境变量覆盖。
// 环境变量优先于文件，方便容器化部署时按实例调整。
func Load(path string) (*Config, error) {
	cfg := defaults()

	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			if !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		} else if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse config %s: %w", path, err)
		}
	}

	applyEnv(cfg)
	return cfg, nil
}

func defaults() *Config {
	return &Config{
		App: App{
			Reservation: Reservation{
				TTL:           Duration(15 * time.Minute),
				SweepInterval: Duration(time.Minute),
				SweepBatch:    200,
			},
			Payment: Payment{Currency: "CNY"},
			Alert:   Alert{Rule: "available <= threshold"},
		},
		Infra: Infra{
			MySQL:     MySQL{DSN: "root:root@tcp(localhost:3306)/atlas?charset=utf8mb4&parseTime=True&loc=Local"},
			Redis:     Redis{Addr: "localhost:6379"},
			Kafka:     Kafka{Brokers: []string{"localhost:9092"}},
			Jaeger:    Jaeger{Endpoint: "http://localhost:14268/api/traces"},
			Zookeeper: Zookeeper{Servers: []string{"localhost:2181"}, SessionTimeout: Duration(5 * time.Second)},
			Nacos:     Nacos{ServerAddrs: "localhost:8848", Group: "DEFAULT_GROUP"},
		},
	}
}

func applyEnv(cfg *Config) {
	if v := os.Getenv("MYSQL_DSN"); v != "" {
		cfg.Infra.MySQL.DSN = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.Infra.Redis.Addr = v
	}
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		cfg.Infra.Kafka.Brokers = strings.Split(v, ",")
	}
	if v := os.Getenv("JAEGER_ENDPOINT"); v != "" {
		cfg.Infra.Jaeger.Endpoint = v
	}
	if v := os.Getenv("ZOOKEEPER_SERVERS"); v != "" {
		cfg.Infra.Zookeeper.Servers = strings.Split(v, ",")
	}
	if v := os.Getenv("NACOS_SERVER_ADDRS"); v != "" {
		cfg.Infra.Nacos.ServerAddrs = v
	}
	if v := os.Getenv("NACOS_NAMESPACE"); v != "" {
		cfg.Infra.Nacos.Namespace = v
	}
	if v := os.Getenv("NACOS_GROUP"); v != "" {
		cfg.Infra.Nacos.Group = v
	}
	if v := os.Getenv("RESERVATION_TTL"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			cfg.App.Reservation.TTL = Duration(parsed)
		}
	}
	if v := os.Getenv("RESERVATION_SWEEP_INTERVAL"); v != "" {
		if parsed, err := time.ParseDuration(v); err == nil {
			cfg.App.Reservation.SweepInterval = Duration(parsed)
		}
	}
}
