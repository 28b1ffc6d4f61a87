/*
Copyright © 2025 Acronis International GmbH.

Released under MIT license.
*/

package httpclient

import (
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/nskit/nskit/config"
	"github.com/nskit/nskit/ratelimit"
	"github.com/nskit/nskit/retry"
)

const (
	// DefaultClientTimeout is a default timeout for a whole request, admission wait included.
	DefaultClientTimeout = 2 * time.Minute

	// RetryPolicyExponential is a policy for exponential retries.
	RetryPolicyExponential = "exponential"

	// RetryPolicyConstant is a policy for constant retries.
	RetryPolicyConstant = "constant"

	// configuration properties
	cfgKeyRetriesEnabled                          = "retries.enabled"
	cfgKeyRetriesMax                              = "retries.maxAttempts"
	cfgKeyRetriesPolicyStrategy                   = "retries.policy.strategy"
	cfgKeyRetriesPolicyExponentialInitialInterval = "retries.policy.exponentialBackoffInitialInterval"
	cfgKeyRetriesPolicyConstantInterval           = "retries.policy.constantBackoffInterval"
	cfgKeyRateLimitsEnabled                       = "rateLimits.enabled"
	cfgKeyRateLimitsWaitTimeout                   = "rateLimits.waitTimeout"
	cfgKeyRateLimitsFallbackDelay                 = "rateLimits.fallbackDelay"
	cfgKeyRateLimitsCeilingAlg                    = "rateLimits.ceiling.alg"
	cfgKeyRateLimitsCeilingLimit                  = "rateLimits.ceiling.limit"
	cfgKeyRateLimitsCeilingWindow                 = "rateLimits.ceiling.window"
	cfgKeyRateLimitsCeilingBurst                  = "rateLimits.ceiling.burst"
	cfgKeyTelegramMinInterval                     = "telegrams.minInterval"
	cfgKeyTelegramRecruitmentMinInterval          = "telegrams.recruitmentMinInterval"
	cfgKeyLoggerEnabled                           = "logger.enabled"
	cfgKeyLoggerMode                              = "logger.mode"
	cfgKeyLoggerSlowRequestThreshold              = "logger.slowRequestThreshold"
	cfgKeyMetricsEnabled                          = "metrics.enabled"
	cfgKeyUserAgent                               = "userAgent"
	cfgKeyTimeout                                 = "timeout"
)

var _ config.Config = (*Config)(nil)
var _ config.KeyPrefixProvider = (*Config)(nil)

var availableCeilingAlgs = []string{
	ratelimit.CeilingAlgTokenBucket, ratelimit.CeilingAlgSlidingWindow, ratelimit.CeilingAlgLeakyBucket,
}

// CeilingConfig represents configuration options for the client-side request ceiling.
type CeilingConfig struct {
	// Alg selects the ceiling algorithm: [token_bucket, sliding_window, leaky_bucket].
	Alg string `mapstructure:"alg"`

	// Limit is the maximum number of requests per window.
	Limit int `mapstructure:"limit"`

	// Window is the duration the limit refers to.
	Window time.Duration `mapstructure:"window"`

	// Burst allows temporary spikes in request rate.
	Burst int `mapstructure:"burst"`
}

// RateLimitConfig represents configuration options for quota admission of outgoing requests.
type RateLimitConfig struct {
	// Enabled is a flag that enables quota admission.
	Enabled bool `mapstructure:"enabled"`

	// WaitTimeout is the maximum time to wait for admission.
	WaitTimeout time.Duration `mapstructure:"waitTimeout"`

	// FallbackDelay is the grant spacing used while quota data is unusable.
	FallbackDelay time.Duration `mapstructure:"fallbackDelay"`

	// Ceiling is a client-side frequency limit applied before any response has been observed.
	Ceiling CeilingConfig `mapstructure:"ceiling"`
}

// Set is part of config interface implementation.
func (c *RateLimitConfig) Set(dp config.DataProvider) (err error) {
	if c.Enabled, err = dp.GetBool(cfgKeyRateLimitsEnabled); err != nil {
		return err
	}
	if !c.Enabled {
		return nil
	}

	if c.WaitTimeout, err = dp.GetDuration(cfgKeyRateLimitsWaitTimeout); err != nil {
		return err
	}
	if c.WaitTimeout < 0 {
		return errors.New("client wait timeout must be positive")
	}

	if c.FallbackDelay, err = dp.GetDuration(cfgKeyRateLimitsFallbackDelay); err != nil {
		return err
	}
	if c.FallbackDelay < 0 {
		return errors.New("client fallback delay must be positive")
	}

	if c.Ceiling.Alg, err = dp.GetStringFromSet(cfgKeyRateLimitsCeilingAlg, availableCeilingAlgs, true); err != nil {
		return err
	}

	if c.Ceiling.Limit, err = dp.GetInt(cfgKeyRateLimitsCeilingLimit); err != nil {
		return err
	}
	if c.Ceiling.Limit <= 0 {
		return errors.New("client ceiling limit must be positive")
	}

	if c.Ceiling.Window, err = dp.GetDuration(cfgKeyRateLimitsCeilingWindow); err != nil {
		return err
	}
	if c.Ceiling.Window <= 0 {
		return errors.New("client ceiling window must be positive")
	}

	if c.Ceiling.Burst, err = dp.GetInt(cfgKeyRateLimitsCeilingBurst); err != nil {
		return err
	}
	if c.Ceiling.Burst < 0 {
		return errors.New("client ceiling burst must be positive")
	}

	return nil
}

// SetProviderDefaults is part of config interface implementation.
func (c *RateLimitConfig) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyRateLimitsEnabled, true)
	dp.SetDefault(cfgKeyRateLimitsWaitTimeout, DefaultAdmissionWaitTimeout)
	dp.SetDefault(cfgKeyRateLimitsFallbackDelay, ratelimit.DefaultFallbackDelay)
	dp.SetDefault(cfgKeyRateLimitsCeilingAlg, ratelimit.CeilingAlgTokenBucket)
	dp.SetDefault(cfgKeyRateLimitsCeilingLimit, ratelimit.DefaultAPIRate.Count)
	dp.SetDefault(cfgKeyRateLimitsCeilingWindow, ratelimit.DefaultAPIRate.Duration)
}

// TransportOpts returns transport options.
func (c *RateLimitConfig) TransportOpts() AdmissionRoundTripperOpts {
	return AdmissionRoundTripperOpts{WaitTimeout: c.WaitTimeout}
}

// MakeLimiter builds a quota limiter from the configuration.
func (c *RateLimitConfig) MakeLimiter(listener ratelimit.Listener) (*ratelimit.Limiter, error) {
	ceiling, err := ratelimit.NewCeiling(
		c.Ceiling.Alg,
		ratelimit.Rate{Count: c.Ceiling.Limit, Duration: c.Ceiling.Window},
		c.Ceiling.Burst,
	)
	if err != nil {
		return nil, err
	}
	return ratelimit.NewLimiterWithOpts(ratelimit.Opts{
		Ceiling:       ceiling,
		FallbackDelay: c.FallbackDelay,
		Listener:      listener,
	}), nil
}

// TelegramConfig represents configuration options for telegram pacing floors.
type TelegramConfig struct {
	// MinInterval is the pacing floor for standard telegrams.
	MinInterval time.Duration `mapstructure:"minInterval"`

	// RecruitmentMinInterval is the pacing floor for recruitment telegrams.
	RecruitmentMinInterval time.Duration `mapstructure:"recruitmentMinInterval"`
}

// Set is part of config interface implementation.
func (c *TelegramConfig) Set(dp config.DataProvider) (err error) {
	if c.MinInterval, err = dp.GetDuration(cfgKeyTelegramMinInterval); err != nil {
		return err
	}
	if c.MinInterval < 0 {
		return errors.New("telegram min interval must be positive")
	}

	if c.RecruitmentMinInterval, err = dp.GetDuration(cfgKeyTelegramRecruitmentMinInterval); err != nil {
		return err
	}
	if c.RecruitmentMinInterval < 0 {
		return errors.New("telegram recruitment min interval must be positive")
	}

	return nil
}

// SetProviderDefaults is part of config interface implementation.
func (c *TelegramConfig) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyTelegramMinInterval, ratelimit.DefaultTelegramInterval)
	dp.SetDefault(cfgKeyTelegramRecruitmentMinInterval, ratelimit.DefaultRecruitmentInterval)
}

// PolicyConfig represents configuration options for retry policy.
type PolicyConfig struct {
	// Strategy is a strategy for retry policy.
	Strategy string `mapstructure:"strategy"`

	// ExponentialBackoffInitialInterval is the initial interval for exponential backoff.
	ExponentialBackoffInitialInterval time.Duration `mapstructure:"exponentialBackoffInitialInterval"`

	// ConstantBackoffInterval is the interval for constant backoff.
	ConstantBackoffInterval time.Duration `mapstructure:"constantBackoffInterval"`
}

// Set is part of config interface implementation.
func (c *PolicyConfig) Set(dp config.DataProvider) (err error) {
	strategy, err := dp.GetString(cfgKeyRetriesPolicyStrategy)
	if err != nil {
		return err
	}
	c.Strategy = strategy

	if c.Strategy != "" && c.Strategy != RetryPolicyExponential && c.Strategy != RetryPolicyConstant {
		return errors.New("client retry policy must be one of: [exponential, constant]")
	}

	if c.Strategy == RetryPolicyExponential {
		var interval time.Duration
		if interval, err = dp.GetDuration(cfgKeyRetriesPolicyExponentialInitialInterval); err != nil {
			return err
		}
		if interval < 0 {
			return errors.New("client exponential backoff initial interval must be positive")
		}
		c.ExponentialBackoffInitialInterval = interval
	} else if c.Strategy == RetryPolicyConstant {
		var interval time.Duration
		if interval, err = dp.GetDuration(cfgKeyRetriesPolicyConstantInterval); err != nil {
			return err
		}
		if interval < 0 {
			return errors.New("client constant backoff interval must be positive")
		}
		c.ConstantBackoffInterval = interval
	}

	return nil
}

// SetProviderDefaults is part of config interface implementation.
func (c *PolicyConfig) SetProviderDefaults(_ config.DataProvider) {}

// RetriesConfig represents configuration options for HTTP client retries policy.
type RetriesConfig struct {
	// Enabled is a flag that enables retries.
	Enabled bool `mapstructure:"enabled"`

	// MaxAttempts is the maximum number of attempts to retry the request.
	MaxAttempts int `mapstructure:"maxAttempts"`

	// Policy of a retry: [exponential, constant].
	Policy PolicyConfig `mapstructure:"policy"`
}

// GetPolicy returns a retry policy based on strategy or nil if none is provided.
func (c *RetriesConfig) GetPolicy() retry.Policy {
	if c.Policy.Strategy == RetryPolicyExponential {
		return retry.PolicyFunc(func() backoff.BackOff {
			bf := backoff.NewExponentialBackOff()
			bf.InitialInterval = c.Policy.ExponentialBackoffInitialInterval
			bf.Multiplier = DefaultExponentialBackoffMultiplier
			bf.Reset()
			return bf
		})
	} else if c.Policy.Strategy == RetryPolicyConstant {
		return retry.PolicyFunc(func() backoff.BackOff {
			bf := backoff.NewConstantBackOff(c.Policy.ConstantBackoffInterval)
			bf.Reset()
			return bf
		})
	}

	return nil
}

// Set is part of config interface implementation.
func (c *RetriesConfig) Set(dp config.DataProvider) error {
	enabled, err := dp.GetBool(cfgKeyRetriesEnabled)
	if err != nil {
		return err
	}
	c.Enabled = enabled

	if !c.Enabled {
		return nil
	}

	maxAttempts, err := dp.GetInt(cfgKeyRetriesMax)
	if err != nil {
		return err
	}
	if maxAttempts < 0 {
		return errors.New("client max retry attempts must be positive")
	}
	c.MaxAttempts = maxAttempts

	return c.Policy.Set(dp)
}

// SetProviderDefaults is part of config interface implementation.
func (c *RetriesConfig) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyRetriesMax, DefaultMaxRetryAttempts)
}

// TransportOpts returns transport options.
func (c *RetriesConfig) TransportOpts() RetryableRoundTripperOpts {
	return RetryableRoundTripperOpts{MaxRetryAttempts: c.MaxAttempts}
}

// LoggerConfig represents configuration options for HTTP client logs.
type LoggerConfig struct {
	// Enabled is a flag that enables logging.
	Enabled bool `mapstructure:"enabled"`

	// SlowRequestThreshold is a threshold for slow requests.
	SlowRequestThreshold time.Duration `mapstructure:"slowRequestThreshold"`

	// Mode of logging.
	Mode string `mapstructure:"mode"`
}

// Set is part of config interface implementation.
func (c *LoggerConfig) Set(dp config.DataProvider) error {
	enabled, err := dp.GetBool(cfgKeyLoggerEnabled)
	if err != nil {
		return err
	}
	c.Enabled = enabled

	if !c.Enabled {
		return nil
	}

	slowRequestThreshold, err := dp.GetDuration(cfgKeyLoggerSlowRequestThreshold)
	if err != nil {
		return err
	}
	if slowRequestThreshold < 0 {
		return errors.New("client logger slow request threshold can not be negative")
	}
	c.SlowRequestThreshold = slowRequestThreshold

	mode, err := dp.GetString(cfgKeyLoggerMode)
	if err != nil {
		return err
	}
	if !LoggingMode(mode).IsValid() {
		return errors.New("client logger invalid mode, choose one of: [none, all, failed]")
	}
	c.Mode = mode

	return nil
}

// SetProviderDefaults is part of config interface implementation.
func (c *LoggerConfig) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyLoggerMode, string(LoggingModeAll))
}

// TransportOpts returns transport options.
func (c *LoggerConfig) TransportOpts() LoggingRoundTripperOpts {
	return LoggingRoundTripperOpts{
		Mode:                 LoggingMode(c.Mode),
		SlowRequestThreshold: c.SlowRequestThreshold,
	}
}

// MetricsConfig represents configuration options for HTTP client metrics.
type MetricsConfig struct {
	// Enabled is a flag that enables metrics.
	Enabled bool `mapstructure:"enabled"`
}

// Set is part of config interface implementation.
func (c *MetricsConfig) Set(dp config.DataProvider) error {
	enabled, err := dp.GetBool(cfgKeyMetricsEnabled)
	if err != nil {
		return err
	}
	c.Enabled = enabled

	return nil
}

// SetProviderDefaults is part of config interface implementation.
func (c *MetricsConfig) SetProviderDefaults(_ config.DataProvider) {}

// Config represents options for HTTP client configuration.
type Config struct {
	// UserAgent identifies the script to the API operators. Required for all requests.
	UserAgent string `mapstructure:"userAgent"`

	// Retries is a configuration for HTTP client retries policy.
	Retries RetriesConfig `mapstructure:"retries"`

	// RateLimits is a configuration for quota admission of outgoing requests.
	RateLimits RateLimitConfig `mapstructure:"rateLimits"`

	// Telegrams is a configuration for telegram pacing floors.
	Telegrams TelegramConfig `mapstructure:"telegrams"`

	// Logger is a configuration for HTTP client logs.
	Logger LoggerConfig `mapstructure:"logger"`

	// Metrics is a configuration for HTTP client metrics.
	Metrics MetricsConfig `mapstructure:"metrics"`

	// Timeout is the maximum time for a whole request, admission wait included.
	Timeout time.Duration `mapstructure:"timeout"`

	// keyPrefix is a prefix for configuration parameters.
	keyPrefix string
}

// NewConfig creates a new instance of the Config.
func NewConfig() *Config {
	return NewConfigWithKeyPrefix("")
}

// NewConfigWithKeyPrefix creates a new instance of the Config.
// Allows specifying key prefix which will be used for parsing configuration parameters.
func NewConfigWithKeyPrefix(keyPrefix string) *Config {
	return &Config{keyPrefix: keyPrefix}
}

// KeyPrefix returns a key prefix with which all configuration parameters should be presented.
func (c *Config) KeyPrefix() string {
	return c.keyPrefix
}

// Set is part of config interface implementation.
func (c *Config) Set(dp config.DataProvider) error {
	userAgent, err := dp.GetString(cfgKeyUserAgent)
	if err != nil {
		return err
	}
	c.UserAgent = userAgent

	timeout, err := dp.GetDuration(cfgKeyTimeout)
	if err != nil {
		return err
	}
	c.Timeout = timeout

	if err = c.Retries.Set(dp); err != nil {
		return err
	}
	if err = c.RateLimits.Set(dp); err != nil {
		return err
	}
	if err = c.Telegrams.Set(dp); err != nil {
		return err
	}
	if err = c.Logger.Set(dp); err != nil {
		return err
	}
	return c.Metrics.Set(dp)
}

// SetProviderDefaults is part of config interface implementation.
func (c *Config) SetProviderDefaults(dp config.DataProvider) {
	dp.SetDefault(cfgKeyTimeout, DefaultClientTimeout)
	c.Retries.SetProviderDefaults(dp)
	c.RateLimits.SetProviderDefaults(dp)
	c.Telegrams.SetProviderDefaults(dp)
	c.Logger.SetProviderDefaults(dp)
	c.Metrics.SetProviderDefaults(dp)
}
