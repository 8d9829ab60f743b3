package main

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Qirrat098/ShopSmart/pkg/logger"
	"github.com/Qirrat098/ShopSmart/pricing-service/internal/app/pricing/bootstrap"
	"github.com/Qirrat098/ShopSmart/pricing-service/internal/app/pricing/config"
	"github.com/Qirrat098/ShopSmart/pricing-service/internal/app/pricing/seed"
	"github.com/Qirrat098/ShopSmart/pricing-service/internal/app/pricing/service"
	"github.com/Qirrat098/ShopSmart/pricing-service/internal/app/pricing/util"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "pricing-seed",
		Usage: "load sample stores and items into the pricing catalog",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "file",
				Aliases: []string{"f"},
				Value:   "configs/seed.yaml",
				Usage:   "path to the seed YAML file",
				EnvVars: []string{"SEED_FILE"},
			},
			&cli.BoolFlag{
				Name:  "publish-events",
				Usage: "publish PRICE_UPDATED events to Kafka for seeded prices",
			},
			&cli.BoolFlag{
				Name:  "dry-run",
				Usage: "parse the file and print a summary without writing",
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		logger.Fatal().Err(err).Msg("Seeding failed")
	}
}

func run(c *cli.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	logger.Init("pricing-seed", cfg.Log.Level)

	file, err := seed.Load(c.String("file"))
	if err != nil {
		return err
	}

	if c.Bool("dry-run") {
		prices := 0
		for _, item := range file.Items {
			prices += len(item.Prices)
		}
		fmt.Fprintf(c.App.Writer, "stores: %d, items: %d, prices: %d\n", len(file.Stores), len(file.Items), prices)
		return nil
	}

	ctx, stop := signal.NotifyContext(c.Context, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	storage, err := bootstrap.OpenStorage(ctx, cfg)
	if err != nil {
		return err
	}
	defer storage.Close()

	// закешированные представления затронутых товаров нужно инвалидировать
	var cache util.ViewCache
	if redisClient, err := util.NewRedisClient(cfg.Redis.Address(), cfg.Redis.Password, cfg.Redis.DB); err != nil {
		logger.Warn().Err(err).Msg("Redis unavailable, cache will not be invalidated")
	} else {
		defer redisClient.Close()
		cache = redisClient
	}

	var publisher util.MessagePublisher
	if c.Bool("publish-events") {
		kafkaProducer := util.NewKafkaProducer(cfg.Kafka.Brokers, cfg.Kafka.EventsTopic)
		defer kafkaProducer.Close()
		publisher = kafkaProducer
	}

	catalogService := service.NewCatalogService(storage.Stores, storage.Items, cache, publisher)
	queryService := service.NewQueryService(storage.Items, storage.Stores, nil, cfg.Cache.TTL)

	result, err := seed.NewSeeder(storage.Stores, catalogService, queryService).Run(ctx, file)
	if err != nil {
		return err
	}

	fmt.Fprintf(c.App.Writer, "stores: %d created, %d reused; items: %d created, %d skipped\n",
		result.StoresCreated, result.StoresReused, result.ItemsCreated, result.ItemsSkipped)
	return nil
}
