package env

import (
	"context"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/sethvargo/go-envconfig"
	"go.uber.org/zap"

	"github.com/luma/gredis/client"
)

type Config struct {
	Host     string `env:"GREDIS_HOST,default=localhost"`
	Port     int    `env:"GREDIS_PORT,default=6379"`
	DB       int    `env:"GREDIS_DB,default=0"`
	Password string `env:"GREDIS_PASSWORD"`

	SocketTimeout  time.Duration `env:"GREDIS_SOCKET_TIMEOUT,default=5s"`
	ConnectTimeout time.Duration `env:"GREDIS_CONNECT_TIMEOUT,default=5s"`
	KeepAlive      time.Duration `env:"GREDIS_KEEPALIVE,default=0s"`
	RetryOnTimeout bool          `env:"GREDIS_RETRY_ON_TIMEOUT,default=false"`

	ReadSize       int    `env:"GREDIS_READ_SIZE,default=65536"`
	Encoding       string `env:"GREDIS_ENCODING"`
	MaxConnections int    `env:"GREDIS_MAX_CONNECTIONS,default=0"`

	LogLevel  string `env:"GREDIS_LOG_LEVEL,default=info"`
	HTTPAddr  string `env:"GREDIS_HTTP_ADDR,default=0.0.0.0:7362"`
	DebugHTTP bool   `env:"GREDIS_DEBUG_HTTP"`
}

// LoadConfig reads the config from the environment, after loading
// .env.local when there is one.
func LoadConfig(ctx context.Context) (*Config, error) {
	if err := godotenv.Load(".env.local"); err != nil {
		if !os.IsNotExist(err) {
			return nil, err
		}
	}

	return LoadConfigWith(ctx, envconfig.OsLookuper())
}

func LoadConfigWith(ctx context.Context, lookuper envconfig.Lookuper) (*Config, error) {
	config := Config{}

	if err := envconfig.ProcessWith(ctx, &config, lookuper); err != nil {
		return nil, err
	}

	return &config, nil
}

// ClientOptions maps the config onto client options.
func (c *Config) ClientOptions(log *zap.Logger) client.Options {
	return client.Options{
		Host:           c.Host,
		Port:           c.Port,
		DB:             c.DB,
		Password:       c.Password,
		SocketTimeout:  c.SocketTimeout,
		ConnectTimeout: c.ConnectTimeout,
		KeepAlive:      c.KeepAlive,
		RetryOnTimeout: c.RetryOnTimeout,
		ReadSize:       c.ReadSize,
		Encoding:       c.Encoding,
		MaxConnections: c.MaxConnections,
		Log:            log,
	}
}
