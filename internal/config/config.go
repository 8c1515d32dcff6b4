package config

import (
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"

	"marketlink-service/internal/catalog/model"
)

// EnvPrefix: MARKETLINK_SERVER_PORT, MARKETLINK_RECOMMEND_WORKERS, ...
const EnvPrefix = "MARKETLINK"

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Log       LogConfig       `mapstructure:"log"`
	Storage   StorageConfig   `mapstructure:"storage"`
	Linking   LinkingConfig   `mapstructure:"linking"`
	Recommend RecommendConfig `mapstructure:"recommend"`
}

type ServerConfig struct {
	Host         string   `mapstructure:"host"`
	Port         int      `mapstructure:"port" validate:"min=1,max=65535"`
	AllowOrigins []string `mapstructure:"allow_origins" validate:"min=1"`
	MaxUploadMB  int      `mapstructure:"max_upload_mb" validate:"min=1"`
}

type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=trace debug info warn error"`
	File  string `mapstructure:"file"`
}

type StorageConfig struct {
	Path string `mapstructure:"path" validate:"required"`
}

type LinkingConfig struct {
	TitleThreshold float64 `mapstructure:"title_threshold" validate:"gt=0,lte=1"`
}

// RecommendConfig: параметры пакетного прогона. Workers=0 означает NumCPU.
type RecommendConfig struct {
	MinRecommendations int                    `mapstructure:"min_recommendations" validate:"min=1"`
	MaxRecommendations int                    `mapstructure:"max_recommendations" validate:"min=1,gtefield=MinRecommendations"`
	BatchSize          int                    `mapstructure:"batch_size" validate:"min=1"`
	Workers            int                    `mapstructure:"workers" validate:"min=0"`
	Policy             model.MatchLevelPolicy `mapstructure:"policy" validate:"min=1"`
	Weights            model.ScoringWeights   `mapstructure:"weights"`
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Load reads ./config.yaml or ./config/config.yaml when present, then lets
// MARKETLINK_* environment variables override it. The result is validated,
// including the run configuration it produces.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("%w: read config: %w", model.ErrConfigValidation, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("%w: unmarshal config: %w", model.ErrConfigValidation, err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8082)
	v.SetDefault("server.allow_origins", []string{"*"})
	v.SetDefault("server.max_upload_mb", 256)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "logs/marketlink-service.log")

	v.SetDefault("storage.path", "data/marketlink.db")

	v.SetDefault("linking.title_threshold", 0.83)

	v.SetDefault("recommend.min_recommendations", model.DefaultMinRecommendations)
	v.SetDefault("recommend.max_recommendations", model.DefaultMaxRecommendations)
	v.SetDefault("recommend.batch_size", model.DefaultBatchSize)
	v.SetDefault("recommend.workers", 0)

	levels := make([]map[string]any, 0, len(model.DefaultPolicy()))
	for _, lvl := range model.DefaultPolicy() {
		attrs := make([]string, len(lvl.Attributes))
		for i, a := range lvl.Attributes {
			attrs[i] = string(a)
		}
		levels = append(levels, map[string]any{"name": lvl.Name, "attributes": attrs})
	}
	v.SetDefault("recommend.policy", levels)

	// каждый вес отдельным ключом, иначе AutomaticEnv его не увидит
	w := reflect.ValueOf(model.DefaultWeights())
	for i := range w.NumField() {
		key := w.Type().Field(i).Tag.Get("mapstructure")
		v.SetDefault("recommend.weights."+key, w.Field(i).Interface())
	}
}

// Validate runs the struct tags first, then the run-config rules. Every
// failure wraps model.ErrConfigValidation.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s: failed %q (%s)", fe.Namespace(), fe.Tag(), fe.Param()))
			}
			return fmt.Errorf("%w: %s", model.ErrConfigValidation, strings.Join(msgs, "; "))
		}
		return fmt.Errorf("%w: %w", model.ErrConfigValidation, err)
	}
	return c.RunConfig().Validate()
}

func (c *Config) Addr() string { return fmt.Sprintf("%s:%d", c.Server.Host, c.Server.Port) }

// RunConfig собирает конфигурацию одного прогона рекомендаций.
func (c *Config) RunConfig() model.RunConfig {
	rc := model.DefaultRunConfig()
	rc.Policy = c.Recommend.Policy
	rc.Weights = c.Recommend.Weights
	rc.MinRecommendations = c.Recommend.MinRecommendations
	rc.MaxRecommendations = c.Recommend.MaxRecommendations
	rc.BatchSize = c.Recommend.BatchSize
	if c.Recommend.Workers > 0 {
		rc.Workers = c.Recommend.Workers
	}
	return rc
}

// RunConfigSource re-reads the configuration on every call, so a policy
// edited in config.yaml takes effect on the next run without a restart.
func RunConfigSource() func() (model.RunConfig, error) {
	return func() (model.RunConfig, error) {
		cfg, err := Load()
		if err != nil {
			return model.RunConfig{}, err
		}
		return cfg.RunConfig(), nil
	}
}
