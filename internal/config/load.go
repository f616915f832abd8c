package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable name.
const EnvPrefix = "VIDQ"

// ErrInvalidConfig wraps validation failures.
var ErrInvalidConfig = errors.New("invalid configuration")

// staleRunningGrace is added to the longest task timeout when the stale-running
// threshold is not configured explicitly.
const staleRunningGrace = 15 * time.Minute

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("server.public_url", "")
	v.SetDefault("server.role", RoleAll)
	v.SetDefault("server.shutdown_timeout", "30s")
	v.SetDefault("server.check_source_size", true)

	v.SetDefault("database.driver", "postgres")
	v.SetDefault("database.url", "")

	v.SetDefault("queue.driver", "redis")
	v.SetDefault("queue.redis_url", "redis://localhost:6379/0")
	v.SetDefault("queue.name", "vidq:queue")
	v.SetDefault("queue.pop_timeout", "5s")
	v.SetDefault("queue.capacity", 0)

	v.SetDefault("worker.concurrency", 3)
	v.SetDefault("worker.timeouts.caption", "30m")
	v.SetDefault("worker.timeouts.merge", "45m")
	v.SetDefault("worker.timeouts.background_music", "20m")
	v.SetDefault("worker.download_parallelism", 4)
	v.SetDefault("worker.download_retries", 3)
	v.SetDefault("worker.max_file_size_mb", 100)
	v.SetDefault("worker.temp_dir", "")
	v.SetDefault("worker.heartbeat_every", 20)

	v.SetDefault("retention.window", "2h")
	v.SetDefault("retention.interval", "1h")
	v.SetDefault("retention.temp_max_age", "3h")
	// retention.stale_running_after has no static default; see Load.
	_ = v.BindEnv("retention.stale_running_after")

	v.SetDefault("storage.output_dir", "./videos")

	v.SetDefault("media.ffmpeg_path", "ffmpeg")
	v.SetDefault("media.ffprobe_path", "ffprobe")
	v.SetDefault("media.max_words_per_line", 3)
	v.SetDefault("media.caption.font_name", "Arial")
	v.SetDefault("media.caption.font_size", 24)
	v.SetDefault("media.caption.primary_color", "#FFFFFF")
	v.SetDefault("media.caption.outline_color", "#000000")
	v.SetDefault("media.caption.outline", 2)
	v.SetDefault("media.caption.shadow", 1)
	v.SetDefault("media.caption.position_y", 1500)

	v.SetDefault("transcription.backend", "whisper")
	v.SetDefault("transcription.whisper_path", "whisper")
	v.SetDefault("transcription.model_cache_dir", "")
	v.SetDefault("transcription.gemini_api_key", "")
	v.SetDefault("transcription.gemini_model", "gemini-2.0-flash")

	v.SetDefault("events.nats_url", "")
	v.SetDefault("events.subject_prefix", "vidq.tasks")
}

// Load configuration from defaults, an optional config.yaml in the working
// directory, and environment variables. Environment variables take precedence
// over values from the config file.
// Returns a populated Config struct or an error if loading/validation fails.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if !v.IsSet("retention.stale_running_after") {
		cfg.Retention.StaleRunningAfter = cfg.Worker.Timeouts.Longest() + staleRunningGrace
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks cfg against its struct tags.
func Validate(cfg *Config) error {
	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(cfg); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	return nil
}
