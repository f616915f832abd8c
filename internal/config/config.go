package config

import "time"

// Process roles selectable with server.role.
const (
	RoleAPI    = "api"
	RoleWorker = "worker"
	RoleAll    = "all"
)

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server        ServerConfig        `mapstructure:"server"        validate:"required"`
	Database      DatabaseConfig      `mapstructure:"database"      validate:"required"`
	Queue         QueueConfig         `mapstructure:"queue"         validate:"required"`
	Worker        WorkerConfig        `mapstructure:"worker"        validate:"required"`
	Retention     RetentionConfig     `mapstructure:"retention"     validate:"required"`
	Storage       StorageConfig       `mapstructure:"storage"       validate:"required"`
	Media         MediaConfig         `mapstructure:"media"         validate:"required"`
	Transcription TranscriptionConfig `mapstructure:"transcription" validate:"required"`
	Events        EventsConfig        `mapstructure:"events"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port"      validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
	// PublicURL prefixes result references when building video URLs.
	PublicURL string `mapstructure:"public_url" validate:"omitempty,url"`
	// Role selects which loops the process runs.
	Role            string        `mapstructure:"role"             validate:"required,oneof=api worker all"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
	// CheckSourceSize makes admission look up source sizes with HEAD requests
	// and reject tasks over worker.max_file_size_mb.
	CheckSourceSize bool `mapstructure:"check_source_size"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	Driver string `mapstructure:"driver" validate:"required,oneof=postgres sqlite"`
	URL    string `mapstructure:"url"    validate:"required"`
}

// QueueConfig selects and configures the queue transport.
type QueueConfig struct {
	Driver   string `mapstructure:"driver"    validate:"required,oneof=redis memory"`
	RedisURL string `mapstructure:"redis_url" validate:"required_if=Driver redis,omitempty,url"`
	Name     string `mapstructure:"name"      validate:"required"`
	// PopTimeout bounds each blocking pop so the scheduler can observe shutdown.
	PopTimeout time.Duration `mapstructure:"pop_timeout" validate:"gt=0"`
	// Capacity bounds the memory transport. Zero means unbounded.
	Capacity int `mapstructure:"capacity" validate:"gte=0"`
}

// WorkerConfig contains the scheduler and pipeline execution settings.
type WorkerConfig struct {
	Concurrency         int            `mapstructure:"concurrency"          validate:"gte=1,lte=64"`
	Timeouts            TimeoutsConfig `mapstructure:"timeouts"             validate:"required"`
	DownloadParallelism int            `mapstructure:"download_parallelism" validate:"gte=1,lte=32"`
	DownloadRetries     int            `mapstructure:"download_retries"     validate:"gte=0,lte=10"`
	MaxFileSizeMB       int64          `mapstructure:"max_file_size_mb"     validate:"gt=0"`
	TempDir             string         `mapstructure:"temp_dir"`
	HeartbeatEvery      int            `mapstructure:"heartbeat_every"      validate:"gte=0"`
}

// TimeoutsConfig holds the hard execution timeout of each task type.
type TimeoutsConfig struct {
	Caption         time.Duration `mapstructure:"caption"          validate:"gt=0"`
	Merge           time.Duration `mapstructure:"merge"            validate:"gt=0"`
	BackgroundMusic time.Duration `mapstructure:"background_music" validate:"gt=0"`
}

// Longest returns the largest configured timeout.
func (t TimeoutsConfig) Longest() time.Duration {
	return max(t.Caption, t.Merge, t.BackgroundMusic)
}

// RetentionConfig controls the sweeper.
type RetentionConfig struct {
	Window   time.Duration `mapstructure:"window"   validate:"gt=0"`
	Interval time.Duration `mapstructure:"interval" validate:"gt=0"`
	// StaleRunningAfter is the age after which a running record is presumed
	// abandoned. Zero disables reclassification.
	StaleRunningAfter time.Duration `mapstructure:"stale_running_after" validate:"gte=0"`
	// TempMaxAge is the age after which abandoned workspaces are removed.
	TempMaxAge time.Duration `mapstructure:"temp_max_age" validate:"gt=0"`
}

// StorageConfig locates produced artifacts.
type StorageConfig struct {
	OutputDir string `mapstructure:"output_dir" validate:"required"`
}

// MediaConfig configures the external media tools and caption rendering.
type MediaConfig struct {
	FFmpegPath      string        `mapstructure:"ffmpeg_path"        validate:"required"`
	FFprobePath     string        `mapstructure:"ffprobe_path"       validate:"required"`
	MaxWordsPerLine int           `mapstructure:"max_words_per_line" validate:"gte=1,lte=20"`
	Caption         CaptionConfig `mapstructure:"caption"`
}

// CaptionConfig holds the burn-in style of captions.
type CaptionConfig struct {
	FontName     string `mapstructure:"font_name"`
	FontSize     int    `mapstructure:"font_size"     validate:"gt=0"`
	PrimaryColor string `mapstructure:"primary_color" validate:"hexcolor"`
	OutlineColor string `mapstructure:"outline_color" validate:"hexcolor"`
	Outline      int    `mapstructure:"outline"       validate:"gte=0"`
	Shadow       int    `mapstructure:"shadow"        validate:"gte=0"`
	// PositionY is the vertical position of captions on a 1920 pixel tall frame.
	PositionY int `mapstructure:"position_y" validate:"gte=0,lte=1920"`
}

// TranscriptionConfig selects the speech-to-text backend.
type TranscriptionConfig struct {
	Backend       string `mapstructure:"backend"         validate:"required,oneof=whisper gemini"`
	WhisperPath   string `mapstructure:"whisper_path"    validate:"required_if=Backend whisper"`
	ModelCacheDir string `mapstructure:"model_cache_dir"`
	GeminiAPIKey  string `mapstructure:"gemini_api_key"  validate:"required_if=Backend gemini"`
	GeminiModel   string `mapstructure:"gemini_model"    validate:"required_if=Backend gemini"`
}

// EventsConfig configures lifecycle event publishing. An empty NATSURL disables it.
type EventsConfig struct {
	NATSURL       string `mapstructure:"nats_url"       validate:"omitempty,url"`
	SubjectPrefix string `mapstructure:"subject_prefix" validate:"required_with=NATSURL"`
}

// RunsAPI reports whether the process serves HTTP.
func (c ServerConfig) RunsAPI() bool {
	return c.Role == RoleAPI || c.Role == RoleAll
}

// RunsWorker reports whether the process runs the scheduler and sweeper.
func (c ServerConfig) RunsWorker() bool {
	return c.Role == RoleWorker || c.Role == RoleAll
}
