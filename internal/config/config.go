package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig   `mapstructure:"server"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	MinIO    MinIOConfig    `mapstructure:"minio"`
	JWT      JWTConfig      `mapstructure:"jwt"`
	Drive    DriveConfig    `mapstructure:"drive"`
	APS      APSConfig      `mapstructure:"aps"`
	TileGen  TileGenConfig  `mapstructure:"tilegen"`
	Viewer   ViewerConfig   `mapstructure:"viewer"`
	Currency CurrencyConfig `mapstructure:"currency"`
	Log      LogConfig      `mapstructure:"log"`
}

type ServerConfig struct {
	Port            int           `mapstructure:"port"`
	Mode            string        `mapstructure:"mode"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
	AllowedOrigins  []string      `mapstructure:"allowed_origins"`
}

type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	DBName          string        `mapstructure:"dbname"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time"`
}

// DSN builds a libpq style connection string.
func (c DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode,
	)
}

type RedisConfig struct {
	Host     string `mapstructure:"host"`
	Port     int    `mapstructure:"port"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
	PoolSize int    `mapstructure:"pool_size"`
}

type MinIOConfig struct {
	Endpoint  string `mapstructure:"endpoint"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
	Bucket    string `mapstructure:"bucket"`
	UseSSL    bool   `mapstructure:"use_ssl"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Issuer string `mapstructure:"issuer"`
}

// DriveConfig Google Drive service account settings
type DriveConfig struct {
	CredentialsFile string `mapstructure:"credentials_file"`
	SharedDriveID   string `mapstructure:"shared_drive_id"`
	RootFolderName  string `mapstructure:"root_folder_name"`
	ArchiveFolder   string `mapstructure:"archive_folder"`
}

// APSConfig Autodesk Platform Services settings
type APSConfig struct {
	ClientID         string `mapstructure:"client_id"`
	ClientSecret     string `mapstructure:"client_secret"`
	BaseURL          string `mapstructure:"base_url"`
	Region           string `mapstructure:"region"`
	BucketPrefix     string `mapstructure:"bucket_prefix"`
	ViewerBucket     string `mapstructure:"viewer_bucket"`
	TemplateFile     string `mapstructure:"template_file"`
	TemplateFileName string `mapstructure:"template_file_name"`
}

type TileGenConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

type ViewerConfig struct {
	PollInterval    time.Duration `mapstructure:"poll_interval"`
	MaxPollAttempts int           `mapstructure:"max_poll_attempts"`
	CacheTTL        time.Duration `mapstructure:"cache_ttl"`
}

// CurrencyConfig static exchange rates against EUR, refreshed into Redis
type CurrencyConfig struct {
	Base     string             `mapstructure:"base"`
	Rates    map[string]float64 `mapstructure:"rates"`
	CacheTTL time.Duration      `mapstructure:"cache_ttl"`
}

type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath("./configs")
	v.AddConfigPath(".")

	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		// no config file, env only
	}

	bindEnvVariables(v)

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 10*time.Second)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000"})

	v.SetDefault("database.port", 5432)
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_open_conns", 20)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", time.Hour)
	v.SetDefault("database.conn_max_idle_time", 10*time.Minute)

	v.SetDefault("redis.host", "127.0.0.1")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.pool_size", 10)

	v.SetDefault("minio.bucket", "fossapp")

	v.SetDefault("jwt.issuer", "fossapp")

	v.SetDefault("drive.root_folder_name", "Projects")
	v.SetDefault("drive.archive_folder", "_Archive")

	v.SetDefault("aps.base_url", "https://developer.api.autodesk.com")
	v.SetDefault("aps.region", "EMEA")
	v.SetDefault("aps.bucket_prefix", "fossapp_prj_")
	v.SetDefault("aps.viewer_bucket", "fossapp_viewer")
	v.SetDefault("aps.template_file_name", "floorplan_template.dwg")

	v.SetDefault("tilegen.timeout", 2*time.Minute)

	v.SetDefault("viewer.poll_interval", 2*time.Second)
	v.SetDefault("viewer.max_poll_attempts", 60)
	v.SetDefault("viewer.cache_ttl", 24*time.Hour)

	v.SetDefault("currency.base", "EUR")
	v.SetDefault("currency.cache_ttl", 12*time.Hour)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
}

func bindEnvVariables(v *viper.Viper) {
	// Server
	v.BindEnv("server.port", "SERVER_PORT")
	v.BindEnv("server.mode", "SERVER_MODE")

	// Database
	v.BindEnv("database.host", "DB_HOST")
	v.BindEnv("database.port", "DB_PORT")
	v.BindEnv("database.user", "DB_USER")
	v.BindEnv("database.password", "DB_PASSWORD")
	v.BindEnv("database.dbname", "DB_NAME")
	v.BindEnv("database.sslmode", "DB_SSLMODE")

	// Redis
	v.BindEnv("redis.host", "REDIS_HOST")
	v.BindEnv("redis.port", "REDIS_PORT")
	v.BindEnv("redis.password", "REDIS_PASSWORD")

	// MinIO
	v.BindEnv("minio.endpoint", "MINIO_ENDPOINT")
	v.BindEnv("minio.access_key", "MINIO_ACCESS_KEY")
	v.BindEnv("minio.secret_key", "MINIO_SECRET_KEY")
	v.BindEnv("minio.bucket", "MINIO_BUCKET")

	// JWT
	v.BindEnv("jwt.secret", "JWT_SECRET")

	// Google Drive
	v.BindEnv("drive.credentials_file", "GOOGLE_DRIVE_CREDENTIALS_FILE")
	v.BindEnv("drive.shared_drive_id", "GOOGLE_DRIVE_SHARED_DRIVE_ID")

	// Autodesk
	v.BindEnv("aps.client_id", "APS_CLIENT_ID")
	v.BindEnv("aps.client_secret", "APS_CLIENT_SECRET")

	// Tile generator
	v.BindEnv("tilegen.base_url", "TILEGEN_BASE_URL")
}

// GetEnvOrDefault returns the env value or the fallback
func GetEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
