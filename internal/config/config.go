package config

import (
	"bufio"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
)

// Config holds every runtime parameter. The file format is a two-level YAML
// subset (sections with key: value pairs); credentials may be overridden with
// QB_DB_PASSWORD / QB_MQ_PASSWORD / QB_REDIS_PASSWORD.
type Config struct {
	Database DatabaseConfig
	RabbitMQ RabbitMQConfig
	Redis    RedisConfig
	HTTP     HTTPConfig
	Consumer ConsumerConfig
	SMTP     SMTPConfig
}

type DatabaseConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Database string
	SSLMode  string
}

type RabbitMQConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	VHost    string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type HTTPConfig struct {
	Port        int
	MetricsPort int
}

type ConsumerConfig struct {
	Workers     int
	Prefetch    int
	MaxAttempts int
}

type SMTPConfig struct {
	Addr string
	From string
}

func defaults() Config {
	return Config{
		Database: DatabaseConfig{Port: 5432, SSLMode: "disable"},
		RabbitMQ: RabbitMQConfig{Port: 5672, VHost: "/"},
		Redis:    RedisConfig{Addr: "localhost:6379"},
		HTTP:     HTTPConfig{Port: 3000, MetricsPort: 9090},
		Consumer: ConsumerConfig{Workers: 4, Prefetch: 8, MaxAttempts: 3},
	}
}

func Load(path string) (Config, error) {
	file, err := os.Open(path)
	if err != nil {
		return Config{}, fmt.Errorf("open config: %w", err)
	}
	defer file.Close()

	cfg := defaults()
	sc := bufio.NewScanner(file)
	var section string
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if strings.HasSuffix(line, ":") && !strings.Contains(line, " ") {
			section = strings.TrimSuffix(line, ":")
			continue
		}
		parts := strings.SplitN(line, ":", 2)
		if len(parts) != 2 {
			continue
		}
		key := strings.TrimSpace(parts[0])
		value := strings.Trim(strings.TrimSpace(parts[1]), `"'`)
		cfg.assign(section, key, value)
	}
	if err := sc.Err(); err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}

	applyEnv(&cfg)
	if cfg.Database.Host == "" || cfg.RabbitMQ.Host == "" {
		return Config{}, errors.New("invalid config: missing database/rabbitmq host")
	}
	return cfg, nil
}

func (c *Config) assign(section, key, value string) {
	switch section {
	case "database":
		switch key {
		case "host":
			c.Database.Host = value
		case "port":
			c.Database.Port = atoi(value, c.Database.Port)
		case "user":
			c.Database.User = value
		case "password":
			c.Database.Password = value
		case "database":
			c.Database.Database = value
		case "sslmode":
			c.Database.SSLMode = value
		}
	case "rabbitmq":
		switch key {
		case "host":
			c.RabbitMQ.Host = value
		case "port":
			c.RabbitMQ.Port = atoi(value, c.RabbitMQ.Port)
		case "user":
			c.RabbitMQ.User = value
		case "password":
			c.RabbitMQ.Password = value
		case "vhost":
			c.RabbitMQ.VHost = value
		}
	case "redis":
		switch key {
		case "addr":
			c.Redis.Addr = value
		case "password":
			c.Redis.Password = value
		case "db":
			c.Redis.DB = atoi(value, 0)
		}
	case "http":
		switch key {
		case "port":
			c.HTTP.Port = atoi(value, c.HTTP.Port)
		case "metrics_port":
			c.HTTP.MetricsPort = atoi(value, c.HTTP.MetricsPort)
		}
	case "consumer":
		switch key {
		case "workers":
			c.Consumer.Workers = atoi(value, c.Consumer.Workers)
		case "prefetch":
			c.Consumer.Prefetch = atoi(value, c.Consumer.Prefetch)
		case "max_attempts":
			c.Consumer.MaxAttempts = atoi(value, c.Consumer.MaxAttempts)
		}
	case "smtp":
		switch key {
		case "addr":
			c.SMTP.Addr = value
		case "from":
			c.SMTP.From = value
		}
	}
}

func applyEnv(c *Config) {
	if v := os.Getenv("QB_DB_PASSWORD"); v != "" {
		c.Database.Password = v
	}
	if v := os.Getenv("QB_MQ_PASSWORD"); v != "" {
		c.RabbitMQ.Password = v
	}
	if v := os.Getenv("QB_REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
}

func atoi(s string, def int) int {
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

// FindConfig looks in the conventional locations.
func FindConfig() (string, error) {
	candidates := []string{"config.yaml", "deploy/config.example.yaml"}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", fs.ErrNotExist
}
