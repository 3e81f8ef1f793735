package main

import (
	"fmt"
	"log"
	"net/http"
	"time"

	"tripfare/cfg"
	"tripfare/internal/search"
	"tripfare/pkg/cache"
	"tripfare/pkg/idgen"
	"tripfare/pkg/logger"
	"tripfare/pkg/pricing"
	"tripfare/pkg/ratelimit"

	"github.com/gin-gonic/gin"
)

func main() {
	// ============
	// config
	// ============
	config, errCfg := cfg.Load()
	if errCfg != nil {
		log.Fatal(errCfg)
	}

	// ============
	// logger
	// ============
	zlogger := logger.NewZeroLog(config.AppEnv)

	// ============
	// Cache
	// ============
	var snapshotCache cache.Cache
	if config.CacheEnabled {
		redisAddr := config.RedisConfig.Host + ":" + config.RedisConfig.Port
		snapshotCache = cache.NewRedisCache(redisAddr, config.RedisConfig.Password)
	} else {
		snapshotCache = cache.NewNoOpCache()
	}

	// ============
	// External Service
	// ============
	httpClient := &http.Client{
		Timeout: 5 * time.Second,
	}
	limiter := ratelimit.NewEndpointLimiterWithDefaults()
	limiter.SetEndpointLimit(pricing.EndpointSearch, 5, 10)
	limiter.SetEndpointLimit(pricing.EndpointResults, 10, 20)
	pricingClient := pricing.NewHTTPClient(httpClient, config.PricingClientConfig.BaseURL, limiter, zlogger)

	// ============
	// ID generator
	// ============
	generator, err := idgen.NewSnowflakeGenerator(1)
	if err != nil {
		log.Fatal(err)
	}

	// ============
	// Internal Service
	// ============
	sessionConfig := search.SessionConfig{
		PollInterval:    time.Duration(config.Polling.IntervalMs) * time.Millisecond,
		MaxPollAttempts: config.Polling.MaxAttempts,
		PageSize:        config.PageSize,
	}
	searchSvc := search.NewService(pricingClient, snapshotCache, config.CacheTTLMinutes, generator, sessionConfig, zlogger)
	searchHandler := search.NewSearchHandler(searchSvc)

	// ============
	// HTTP
	// ============
	r := gin.Default()
	searchHandler.RegisterRoutes(r)

	addr := fmt.Sprintf(":%s", config.AppPort)
	if err := r.Run(addr); err != nil {
		log.Fatalf("Failed to start server: %v", err)
	}
}
