package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	envPrefix = "FITCHECK"

	defaultHTTPAddress     = "0.0.0.0:8080"
	defaultMongoURI        = "mongodb://127.0.0.1:27017"
	defaultMongoDatabase   = "fitcheck"
	defaultLogLevel        = "info"
	defaultTokenTTLMinutes = 1440
	defaultChatModel       = "gpt-4o-mini"
	defaultClassifierModel = "gpt-4o-mini"

	defaultWeeklyBaseRequests = 10
	defaultBonusPerReferral   = 5
	defaultMaxReferrals       = 5
	defaultHistoryLimit       = 20
)

// AppConfig captures runtime configuration for the API server.
type AppConfig struct {
	HTTPAddress   string
	MongoURI      string
	MongoDatabase string
	SigningSecret string
	TokenTTL      time.Duration
	LogLevel      string

	OpenAIAPIKey    string
	OpenAIBaseURL   string
	ChatModel       string
	ClassifierModel string

	WeeklyBaseRequests int
	BonusPerReferral   int
	MaxReferrals       int

	// HistoryLimit bounds how many stored messages a reloaded conversation
	// replays into the prompt.
	HistoryLimit int

	FrontendBaseURL string
	PersistAdvice   bool
}

// NewViper returns a viper instance with defaults and env bindings configured.
func NewViper() *viper.Viper {
	configViper := viper.New()
	ApplyDefaults(configViper)
	return configViper
}

// ApplyDefaults configures defaults and env bindings on the provided viper instance.
func ApplyDefaults(configViper *viper.Viper) {
	configViper.SetEnvPrefix(envPrefix)
	configViper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	configViper.AutomaticEnv()

	configViper.SetDefault("http.address", defaultHTTPAddress)
	configViper.SetDefault("mongo.uri", defaultMongoURI)
	configViper.SetDefault("mongo.database", defaultMongoDatabase)
	configViper.SetDefault("log.level", defaultLogLevel)
	configViper.SetDefault("token.ttl_minutes", defaultTokenTTLMinutes)
	configViper.SetDefault("openai.chat_model", defaultChatModel)
	configViper.SetDefault("openai.classifier_model", defaultClassifierModel)
	configViper.SetDefault("coach.weekly_base_requests", defaultWeeklyBaseRequests)
	configViper.SetDefault("coach.bonus_per_referral", defaultBonusPerReferral)
	configViper.SetDefault("coach.max_referrals", defaultMaxReferrals)
	configViper.SetDefault("coach.history_limit", defaultHistoryLimit)
	configViper.SetDefault("coach.persist_advice", false)
}

// Load parses runtime configuration from viper.
func Load(configViper *viper.Viper) (AppConfig, error) {
	cfg := AppConfig{
		HTTPAddress:        configViper.GetString("http.address"),
		MongoURI:           configViper.GetString("mongo.uri"),
		MongoDatabase:      configViper.GetString("mongo.database"),
		SigningSecret:      configViper.GetString("auth.signing_secret"),
		TokenTTL:           time.Duration(configViper.GetInt("token.ttl_minutes")) * time.Minute,
		LogLevel:           configViper.GetString("log.level"),
		OpenAIAPIKey:       configViper.GetString("openai.api_key"),
		OpenAIBaseURL:      configViper.GetString("openai.base_url"),
		ChatModel:          configViper.GetString("openai.chat_model"),
		ClassifierModel:    configViper.GetString("openai.classifier_model"),
		WeeklyBaseRequests: configViper.GetInt("coach.weekly_base_requests"),
		BonusPerReferral:   configViper.GetInt("coach.bonus_per_referral"),
		MaxReferrals:       configViper.GetInt("coach.max_referrals"),
		HistoryLimit:       configViper.GetInt("coach.history_limit"),
		FrontendBaseURL:    configViper.GetString("frontend.base_url"),
		PersistAdvice:      configViper.GetBool("coach.persist_advice"),
	}

	if err := cfg.validate(); err != nil {
		return AppConfig{}, err
	}

	return cfg, nil
}

func (c AppConfig) validate() error {
	if strings.TrimSpace(c.SigningSecret) == "" {
		return fmt.Errorf("auth.signing_secret is required")
	}
	if strings.TrimSpace(c.MongoURI) == "" {
		return fmt.Errorf("mongo.uri is required")
	}
	if strings.TrimSpace(c.MongoDatabase) == "" {
		return fmt.Errorf("mongo.database is required")
	}
	if strings.TrimSpace(c.OpenAIAPIKey) == "" {
		return fmt.Errorf("openai.api_key is required")
	}
	if c.WeeklyBaseRequests < 0 || c.BonusPerReferral < 0 || c.MaxReferrals < 0 {
		return fmt.Errorf("coach quota values must not be negative")
	}
	if c.HistoryLimit <= 0 {
		return fmt.Errorf("coach.history_limit must be positive")
	}
	return nil
}
