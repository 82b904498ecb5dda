package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/parlakisik/carrier-exchange/src/cx-market/internal/model"
)

type Config struct {
	Port        string
	Environment string

	Mode           model.Mode
	Settlement     model.SettlementRule
	RoundTimeout   time.Duration
	AckTimeout     time.Duration
	DelegationWait time.Duration
	ThinkTimeMin   time.Duration
	ThinkTimeMax   time.Duration
	RandomSeed     uint64
	Bidders        []model.BidderSpec

	StoreType           string
	MongoURI            string
	MongoDB             string
	MongoCollection     string
	FirestoreProjectID  string
	FirestoreCollection string

	EventWebhookURL   string
	EventWebhookToken string
}

func Load() (*Config, error) {
	cfg := &Config{
		Port:                getEnv("PORT", "8090"),
		Environment:         getEnv("ENVIRONMENT", "development"),
		Mode:                model.Mode(getEnv("MARKET_MODE", string(model.ModeIterative))),
		Settlement:          model.SettlementRule(getEnv("SETTLEMENT_RULE", string(model.FirstPrice))),
		StoreType:           getEnv("STORE_TYPE", "memory"),
		MongoURI:            getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDB:             getEnv("MONGO_DB", "carrier_exchange"),
		MongoCollection:     getEnv("MONGO_COLLECTION_DIRECTORY", "directory"),
		FirestoreProjectID:  getEnv("FIRESTORE_PROJECT_ID", ""),
		FirestoreCollection: getEnv("FIRESTORE_COLLECTION_DIRECTORY", "directory"),
		EventWebhookURL:     getEnv("EVENT_WEBHOOK_URL", ""),
		EventWebhookToken:   getEnv("EVENT_WEBHOOK_TOKEN", ""),
	}

	var err error
	durations := []struct {
		key  string
		def  time.Duration
		dest *time.Duration
	}{
		{"ROUND_TIMEOUT", 10 * time.Second, &cfg.RoundTimeout},
		{"ACK_TIMEOUT", 15 * time.Second, &cfg.AckTimeout},
		{"DELEGATION_WAIT", 5 * time.Second, &cfg.DelegationWait},
		{"THINK_TIME_MIN", time.Second, &cfg.ThinkTimeMin},
		{"THINK_TIME_MAX", 3 * time.Second, &cfg.ThinkTimeMax},
	}
	for _, d := range durations {
		if *d.dest, err = getDuration(d.key, d.def); err != nil {
			return nil, err
		}
	}

	if seed := os.Getenv("RANDOM_SEED"); seed != "" {
		if cfg.RandomSeed, err = strconv.ParseUint(seed, 10, 64); err != nil {
			return nil, fmt.Errorf("RANDOM_SEED: %w", err)
		}
	}

	if list := os.Getenv("BIDDERS"); list != "" {
		cfg.Bidders = ParseBidders(list)
	}

	switch cfg.Mode {
	case model.ModeIterative, model.ModeSealed:
	default:
		return nil, fmt.Errorf("MARKET_MODE must be iterative or sealed, got %q", cfg.Mode)
	}
	switch cfg.Settlement {
	case model.FirstPrice, model.SecondPrice:
	default:
		return nil, fmt.Errorf("SETTLEMENT_RULE must be first-price or second-price, got %q", cfg.Settlement)
	}
	if cfg.ThinkTimeMax < cfg.ThinkTimeMin {
		return nil, fmt.Errorf("THINK_TIME_MAX (%s) is below THINK_TIME_MIN (%s)", cfg.ThinkTimeMax, cfg.ThinkTimeMin)
	}
	if cfg.DelegationWait >= cfg.AckTimeout {
		return nil, fmt.Errorf("DELEGATION_WAIT (%s) must be below ACK_TIMEOUT (%s)", cfg.DelegationWait, cfg.AckTimeout)
	}
	if cfg.Environment == "production" && cfg.StoreType == "firestore" && cfg.FirestoreProjectID == "" {
		return nil, fmt.Errorf("FIRESTORE_PROJECT_ID is required in production with firestore store")
	}

	return cfg, nil
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) (time.Duration, error) {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue, nil
	}
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}
