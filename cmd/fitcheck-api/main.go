package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/fitcheckhq/fitcheck/backend/internal/auth"
	"github.com/fitcheckhq/fitcheck/backend/internal/coach"
	"github.com/fitcheckhq/fitcheck/backend/internal/config"
	"github.com/fitcheckhq/fitcheck/backend/internal/database"
	"github.com/fitcheckhq/fitcheck/backend/internal/llm"
	"github.com/fitcheckhq/fitcheck/backend/internal/logging"
	"github.com/fitcheckhq/fitcheck/backend/internal/server"
	"github.com/fitcheckhq/fitcheck/backend/internal/users"
	"github.com/fitcheckhq/fitcheck/backend/internal/workouts"
)

var (
	cfgFile string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "fitcheck-api",
		Short: "FitCheck workout tracking and AI coaching backend",
		PreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig()
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context())
		},
	}

	setupFlags(rootCmd)

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setupFlags(cmd *cobra.Command) {
	config.ApplyDefaults(viper.GetViper())
	defaults := config.NewViper()
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to configuration file")
	cmd.PersistentFlags().String("http-address", defaults.GetString("http.address"), "HTTP listen address")
	cmd.PersistentFlags().String("mongo-uri", defaults.GetString("mongo.uri"), "MongoDB connection URI")
	cmd.PersistentFlags().String("mongo-database", defaults.GetString("mongo.database"), "MongoDB database name")
	cmd.PersistentFlags().Int("token-ttl-minutes", defaults.GetInt("token.ttl_minutes"), "Backend token TTL in minutes")
	cmd.PersistentFlags().String("log-level", defaults.GetString("log.level"), "Log level (debug, info, warn, error)")
	cmd.PersistentFlags().String("signing-secret", "", "Backend signing secret (overrides env)")
	cmd.PersistentFlags().String("openai-base-url", defaults.GetString("openai.base_url"), "OpenAI-compatible API base URL")
	cmd.PersistentFlags().String("chat-model", defaults.GetString("openai.chat_model"), "Model used for coach replies")
	cmd.PersistentFlags().String("classifier-model", defaults.GetString("openai.classifier_model"), "Model used for intent classification")
	cmd.PersistentFlags().String("frontend-base-url", defaults.GetString("frontend.base_url"), "Frontend base URL for invitation links")

	bindFlag(cmd, "http.address", "http-address")
	bindFlag(cmd, "mongo.uri", "mongo-uri")
	bindFlag(cmd, "mongo.database", "mongo-database")
	bindFlag(cmd, "token.ttl_minutes", "token-ttl-minutes")
	bindFlag(cmd, "log.level", "log-level")
	bindFlag(cmd, "auth.signing_secret", "signing-secret")
	bindFlag(cmd, "openai.base_url", "openai-base-url")
	bindFlag(cmd, "openai.chat_model", "chat-model")
	bindFlag(cmd, "openai.classifier_model", "classifier-model")
	bindFlag(cmd, "frontend.base_url", "frontend-base-url")
}

func bindFlag(cmd *cobra.Command, key, flag string) {
	if err := viper.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(err)
	}
}

func initConfig() error {
	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	}

	if err := viper.ReadInConfig(); err != nil {
		var configNotFound viper.ConfigFileNotFoundError
		if cfgFile != "" && errors.As(err, &configNotFound) {
			return err
		}
	}

	return nil
}

func runServer(ctx context.Context) error {
	appConfig, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}

	logger, err := logging.NewLogger(appConfig.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync() //nolint:errcheck

	signalCtx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	db, err := database.Connect(signalCtx, appConfig.MongoURI, appConfig.MongoDatabase)
	if err != nil {
		return err
	}
	defer func() {
		disconnectCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := database.Disconnect(disconnectCtx, db); err != nil {
			logger.Warn("mongo disconnect failed", zap.Error(err))
		}
	}()

	if err := database.EnsureIndexes(signalCtx, db); err != nil {
		return err
	}

	tokenManager := auth.NewTokenIssuer(auth.TokenIssuerConfig{
		SigningSecret: []byte(appConfig.SigningSecret),
		Issuer:        "fitcheck-auth",
		Audience:      "fitcheck-api",
		TokenTTL:      appConfig.TokenTTL,
	})

	llmClient, err := llm.NewClient(llm.Config{
		APIKey:          appConfig.OpenAIAPIKey,
		BaseURL:         appConfig.OpenAIBaseURL,
		ChatModel:       appConfig.ChatModel,
		ClassifierModel: appConfig.ClassifierModel,
	})
	if err != nil {
		return err
	}

	userStore := users.NewMongoStore(db)
	workoutStore := workouts.NewMongoStore(db)
	conversationStore := coach.NewMongoConversationStore(db)
	adviceStore := coach.NewMongoAdviceStore(db)

	referralService, err := users.NewReferralService(users.ReferralServiceConfig{
		Store:           userStore,
		FrontendBaseURL: appConfig.FrontendBaseURL,
		Logger:          logger,
	})
	if err != nil {
		return err
	}

	userService, err := users.NewService(users.ServiceConfig{
		Store:     userStore,
		Referrals: referralService,
		Logger:    logger,
	})
	if err != nil {
		return err
	}

	workoutService, err := workouts.NewService(workouts.ServiceConfig{
		Store:      workoutStore,
		Referrals:  referralService,
		IDProvider: workouts.NewUUIDProvider(),
		Logger:     logger,
	})
	if err != nil {
		return err
	}

	coachService, err := coach.NewService(coach.ServiceConfig{
		Users:         userStore,
		Logs:          workoutStore,
		Conversations: conversationStore,
		Advice:        adviceStore,
		Completer:     llmClient,
		Streamer:      coach.ClientStreamer{Client: llmClient},
		Quota: coach.QuotaConfig{
			WeeklyBaseRequests: appConfig.WeeklyBaseRequests,
			BonusPerReferral:   appConfig.BonusPerReferral,
			MaxReferrals:       appConfig.MaxReferrals,
		},
		HistoryLimit:  appConfig.HistoryLimit,
		PersistAdvice: appConfig.PersistAdvice,
		IDProvider:    coach.NewUUIDProvider(),
		Logger:        logger,
	})
	if err != nil {
		return err
	}

	handler, err := server.NewHTTPHandler(server.Dependencies{
		TokenManager:    tokenManager,
		UserService:     userService,
		ReferralService: referralService,
		WorkoutService:  workoutService,
		CoachService:    coachService,
		Logger:          logger,
	})
	if err != nil {
		return err
	}

	httpServer := &http.Server{
		Addr:    appConfig.HTTPAddress,
		Handler: handler,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("server starting", zap.String("address", appConfig.HTTPAddress))
		err := httpServer.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-signalCtx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	case err := <-errCh:
		return err
	}
}
