package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/parlakisik/carrier-exchange/src/cx-market/internal/config"
	"github.com/parlakisik/carrier-exchange/src/cx-market/internal/httpapi"
	"github.com/parlakisik/carrier-exchange/src/cx-market/internal/model"
	"github.com/parlakisik/carrier-exchange/src/cx-market/internal/service"
	"github.com/parlakisik/carrier-exchange/src/cx-market/internal/store"
	"github.com/parlakisik/carrier-exchange/src/internal/events"
	"github.com/parlakisik/carrier-exchange/src/internal/httpclient"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// bidderFlags collects repeated -bidder values.
type bidderFlags []model.BidderSpec

func (b *bidderFlags) String() string {
	names := make([]string, 0, len(*b))
	for _, s := range *b {
		names = append(names, s.Name)
	}
	return strings.Join(names, ",")
}

func (b *bidderFlags) Set(v string) error {
	*b = append(*b, config.ParseBidder(v, len(*b)+1))
	return nil
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	var bidders bidderFlags
	mode := flag.String("mode", string(cfg.Mode), "auction kind: iterative or sealed")
	settlement := flag.String("settlement", string(cfg.Settlement), "sealed-bid settlement: first-price or second-price")
	serve := flag.Bool("serve", false, "run the operator HTTP API instead of a single auction")
	flag.Var(&bidders, "bidder", "bidder as [name=]tolerance percent; repeatable")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: cx-market [flags] \"<job title>\" <price>\n       cx-market -serve\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	logLevel := slog.LevelInfo
	if cfg.Environment == "development" {
		logLevel = slog.LevelDebug
	}
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	var title string
	var price int
	if !*serve {
		title, price, err = config.ParseBuyerArgs(flag.Args())
		if err != nil {
			slog.Error("invalid buyer arguments", "error", err, "args", flag.Args())
			flag.Usage()
			os.Exit(2)
		}
	}

	slog.Info("starting cx-market",
		"environment", cfg.Environment,
		"mode", *mode,
		"store_type", cfg.StoreType,
		"serve", *serve,
	)

	directory, mongoClient := openStore(cfg)
	defer func() { _ = directory.Close() }()
	if mongoClient != nil {
		defer func() {
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := mongoClient.Disconnect(ctx); err != nil {
				slog.Error("failed to disconnect mongodb", "error", err)
			}
		}()
	}

	publisher := newPublisher(cfg)

	defaults := cfg.Bidders
	if len(bidders) > 0 {
		defaults = bidders
	}
	if len(defaults) == 0 {
		defaults = config.DefaultBidders()
	}

	svc := service.New(directory, publisher, service.Settings{
		Mode:           model.Mode(*mode),
		Settlement:     model.SettlementRule(*settlement),
		RoundTimeout:   cfg.RoundTimeout,
		AckTimeout:     cfg.AckTimeout,
		DelegationWait: cfg.DelegationWait,
		ThinkTimeMin:   cfg.ThinkTimeMin,
		ThinkTimeMax:   cfg.ThinkTimeMax,
		Seed:           cfg.RandomSeed,
		DefaultBidders: defaults,
	})

	if *serve {
		if err := serveHTTP(cfg, svc, publisher); err != nil {
			os.Exit(1)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	out, err := svc.Run(ctx, model.AuctionRequest{JobTitle: title, Price: price})
	if err != nil {
		slog.Error("auction not started", "error", err)
		os.Exit(2)
	}
	slog.Info("auction_result",
		"auction_id", out.AuctionID,
		"status", out.Status,
		"reason", out.Reason,
		"winner", out.Winner,
		"settled_price", out.SettledPrice,
		"rounds", out.Rounds,
	)
	if out.Delegation != nil {
		slog.Info("delegation_result",
			"variant", out.Delegation.Variant,
			"adjusted_cost", out.Delegation.AdjustedCost,
			"assignment", out.Delegation.Assignment(),
		)
	}
	flushEvents(publisher)
}

// flushEvents waits briefly for queued webhook deliveries.
func flushEvents(publisher *events.Publisher) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := publisher.Close(ctx); err != nil {
		slog.Warn("events not flushed", "error", err)
	}
}

func openStore(cfg *config.Config) (store.DirectoryStore, *mongo.Client) {
	switch cfg.StoreType {
	case "mongo":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
		if err != nil {
			slog.Error("failed to connect to mongodb", "error", err)
			os.Exit(1)
		}
		if err := client.Ping(ctx, nil); err != nil {
			slog.Error("failed to ping mongodb", "error", err)
			os.Exit(1)
		}

		mongoStore := store.NewMongoDirectoryStore(client, cfg.MongoDB, cfg.MongoCollection)
		if err := mongoStore.EnsureIndexes(ctx); err != nil {
			slog.Warn("failed to create indexes", "error", err)
		}
		slog.Info("using mongodb directory", "db", cfg.MongoDB, "collection", cfg.MongoCollection)
		return mongoStore, client

	case "firestore":
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()

		fsStore, err := store.NewFirestoreDirectoryStore(ctx, cfg.FirestoreProjectID, cfg.FirestoreCollection)
		if err != nil {
			slog.Error("failed to initialize firestore", "error", err)
			os.Exit(1)
		}
		slog.Info("using firestore directory", "project", cfg.FirestoreProjectID, "collection", cfg.FirestoreCollection)
		return fsStore, nil

	default:
		slog.Info("using in-memory directory")
		return store.NewMemoryStore(), nil
	}
}

func newPublisher(cfg *config.Config) *events.Publisher {
	client := httpclient.NewClient("cx-market", 5*time.Second)
	if cfg.EventWebhookToken != "" {
		client = client.WithAuth(&httpclient.BearerTokenAuth{Token: cfg.EventWebhookToken})
	}
	pub := events.NewPublisherWithClient("cx-market", client)
	if cfg.EventWebhookURL != "" {
		pub.RegisterEndpoint("", cfg.EventWebhookURL)
		slog.Info("delivering events to webhook", "url", cfg.EventWebhookURL)
	}
	return pub
}

func serveHTTP(cfg *config.Config, svc *service.Service, publisher *events.Publisher) error {
	srv := &http.Server{
		Addr:         ":" + cfg.Port,
		Handler:      httpapi.NewRouter(svc),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		slog.Info("http server listening", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errc <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errc:
		slog.Error("http server error", "error", err)
		return err
	}

	slog.Info("shutting down server...")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		slog.Error("server forced to shutdown", "error", err)
		return err
	}
	svc.Wait()
	flushEvents(publisher)

	slog.Info("server stopped")
	return nil
}
