package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/sync/errgroup"

	"quickbite/internal/config"
	"quickbite/internal/consumer"
	"quickbite/internal/domain"
	"quickbite/internal/httpapi"
	"quickbite/internal/logger"
	"quickbite/internal/metrics"
	"quickbite/internal/notify"
	"quickbite/internal/order"
	"quickbite/internal/queue"
	"quickbite/internal/storage"
	"quickbite/internal/transition"
)

func main() {
	mode := flag.String("mode", "", "api-service | order-processor")
	cfgPath := flag.String("config", "", "path to YAML config (defaults to conventional locations)")
	port := flag.Int("port", 0, "api-service: HTTP port override")
	workers := flag.Int("workers", 0, "order-processor: worker count override")
	consumerName := flag.String("consumer-name", "", "order-processor: unique consumer name")
	flag.Parse()

	lg := logger.New("bootstrap")
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	path := *cfgPath
	if path == "" {
		var err error
		if path, err = config.FindConfig(); err != nil {
			fmt.Fprintln(os.Stderr, "no config file found; pass --config")
			os.Exit(2)
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		lg.Error("config_load_failed", err, map[string]any{"path": path})
		os.Exit(1)
	}
	if *port != 0 {
		cfg.HTTP.Port = *port
	}
	if *workers != 0 {
		cfg.Consumer.Workers = *workers
	}

	switch *mode {
	case "api-service":
		lg.Info("service_started", map[string]any{"service": "api-service", "port": cfg.HTTP.Port})
		if err := runAPI(ctx, cfg); err != nil {
			lg.Error("fatal", err, nil)
			os.Exit(1)
		}
	case "order-processor":
		lg.Info("service_started", map[string]any{"service": "order-processor", "workers": cfg.Consumer.Workers})
		if err := runProcessor(ctx, cfg, *consumerName); err != nil {
			lg.Error("fatal", err, nil)
			os.Exit(1)
		}
	default:
		fmt.Fprintln(os.Stderr, "--mode is required: api-service | order-processor")
		os.Exit(2)
	}
}

func runAPI(ctx context.Context, cfg config.Config) error {
	lg := logger.New("api-service")

	db, err := storage.Connect(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	mq, err := queue.Dial(cfg.RabbitMQ)
	if err != nil {
		return err
	}
	defer mq.Close()

	met := metrics.New(prometheus.DefaultRegisterer)
	svc := order.NewService(
		storage.NewOrderRepository(db),
		storage.NewCatalogRepository(db),
		mq, lg, met,
	)
	h := httpapi.NewHandler(svc, lg)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return httpapi.NewServer(":"+strconv.Itoa(cfg.HTTP.Port), httpapi.Router(h)).Run(ctx)
	})
	g.Go(func() error {
		return runMetricsServer(ctx, cfg.HTTP.MetricsPort)
	})
	return g.Wait()
}

func runProcessor(ctx context.Context, cfg config.Config, name string) error {
	lg := logger.New("order-processor")

	db, err := storage.Connect(ctx, cfg.Database)
	if err != nil {
		return err
	}
	defer db.Close()

	mq, err := queue.Dial(cfg.RabbitMQ)
	if err != nil {
		return err
	}
	defer mq.Close()

	push, err := notify.NewPushSender(cfg.Redis)
	if err != nil {
		return err
	}
	defer push.Close()

	senders := map[domain.ChannelKind]notify.Sender{
		domain.ChannelCustomerPush: push,
		domain.ChannelKitchenPush:  push,
		domain.ChannelStaffPush:    push,
	}
	if cfg.SMTP.Addr != "" {
		senders[domain.ChannelCustomerEmail] = notify.NewEmailSender(cfg.SMTP)
	}

	met := metrics.New(prometheus.DefaultRegisterer)
	orders := storage.NewOrderRepository(db)
	engine := transition.NewEngine(orders, lg, met)
	dispatcher := notify.NewDispatcher(senders, storage.NewNotificationLog(db), lg, met)

	cons := consumer.New(mq, engine, orders, dispatcher, mq, lg, met, consumer.Config{
		Name:        name,
		Workers:     cfg.Consumer.Workers,
		Prefetch:    cfg.Consumer.Prefetch,
		MaxAttempts: cfg.Consumer.MaxAttempts,
	})

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error { return cons.Run(ctx) })
	g.Go(func() error { return runMetricsServer(ctx, cfg.HTTP.MetricsPort) })
	return g.Wait()
}

func runMetricsServer(ctx context.Context, port int) error {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", metrics.Handler())
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	return httpapi.NewServer(":"+strconv.Itoa(port), mux).Run(ctx)
}
