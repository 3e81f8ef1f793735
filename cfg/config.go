package cfg

import (
	"errors"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

type RedisConfig struct {
	Host     string
	Port     string
	Password string
}

type PricingClientConfig struct {
	BaseURL string
}

type PollingConfig struct {
	IntervalMs  int
	MaxAttempts int
}

type Config struct {
	AppEnv              string
	AppPort             string
	RedisConfig         RedisConfig
	PricingClientConfig PricingClientConfig
	Polling             PollingConfig
	CacheEnabled        bool
	CacheTTLMinutes     int
	PageSize            int
}

func Load() (*Config, error) {
	var errs []error

	err := godotenv.Load()
	if err != nil {
		return nil, errors.New("failed load cfg: " + err.Error())
	}

	appEnv := mustEnv("APP_ENV", &errs)
	appPort := mustEnv("APP_PORT", &errs)
	redisHost := mustEnv("REDIS_HOST", &errs)
	redisPort := mustEnv("REDIS_PORT", &errs)
	redisPassword := mustEnv("REDIS_PASSWORD", &errs)
	pricingBaseURL := mustEnv("PRICING_BASE_URL", &errs)

	cacheEnabled := mustEnvBool("CACHE_ENABLED", &errs)
	cacheTTLMinutes := mustEnvInt("CACHE_TTL_MINUTES", &errs)
	pollIntervalMs := mustEnvInt("POLL_INTERVAL_MS", &errs)
	maxPollAttempts := mustEnvInt("MAX_POLL_ATTEMPTS", &errs)
	pageSize := mustEnvInt("PAGE_SIZE", &errs)

	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	return &Config{
		AppEnv:  appEnv,
		AppPort: appPort,
		RedisConfig: RedisConfig{
			Host:     redisHost,
			Port:     redisPort,
			Password: redisPassword,
		},
		PricingClientConfig: PricingClientConfig{
			BaseURL: pricingBaseURL,
		},
		Polling: PollingConfig{
			IntervalMs:  pollIntervalMs,
			MaxAttempts: maxPollAttempts,
		},
		CacheEnabled:    cacheEnabled,
		CacheTTLMinutes: cacheTTLMinutes,
		PageSize:        pageSize,
	}, nil
}

func mustEnv(key string, errs *[]error) string {
	value, exists := os.LookupEnv(key)
	if !exists || value == "" {
		*errs = append(*errs, errors.New("missing env: "+key))
	}
	return value
}

func mustEnvInt(key string, errs *[]error) int {
	value := mustEnv(key, errs)
	if value == "" {
		return 0
	}

	n, err := strconv.Atoi(value)
	if err != nil {
		*errs = append(*errs, errors.New("conversion failed env: "+key))
	}
	return n
}

func mustEnvBool(key string, errs *[]error) bool {
	value := mustEnv(key, errs)
	return value == "true" || value == "1" || value == "yes"
}
