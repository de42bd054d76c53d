package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const EnvProduction = "production"

type Config struct {
	Environment string
	HTTP        HTTPConfig
	GRPC        GRPCConfig
	Database    DatabaseConfig
	JWT         JWTConfig
	Password    PasswordConfig
	Media       MediaConfig
	Log         LogConfig
}

type HTTPConfig struct {
	Host        string
	Port        string
	CORSOrigins []string
	// BodyLimit caps non-multipart request bodies, in echo's size notation.
	BodyLimit     string
	MaxUploadSize int64
}

type GRPCConfig struct {
	Host string
	Port string
}

type DatabaseConfig struct {
	Driver         string
	DSN            string
	MigrateOnStart bool
}

type JWTConfig struct {
	AccessSecret    string
	AccessTokenTTL  time.Duration
	RefreshSecret   string
	RefreshTokenTTL time.Duration
}

type PasswordConfig struct {
	Hasher     string
	BcryptCost int
	Argon2     Argon2Config
}

type Argon2Config struct {
	MemoryKiB   uint32
	Iterations  uint32
	Parallelism uint8
}

type MediaConfig struct {
	Driver    string
	Dir       string
	PublicURL string
	S3        S3Config
}

type S3Config struct {
	Bucket       string
	Region       string
	Endpoint     string
	AccessKey    string
	SecretKey    string
	UsePathStyle bool
}

type LogConfig struct {
	Level  string
	Format string
}

func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Environment, EnvProduction)
}

func (c *Config) DSN() string {
	return c.Database.DSN
}

func Load() (*Config, error) {
	// Load .env file if it exists (ignores error if not found)
	_ = godotenv.Load()

	memoryKiB, memoryErr := getUintEnv("ARGON2_MEMORY_KIB", 64*1024, 32)
	iterations, iterationsErr := getUintEnv("ARGON2_ITERATIONS", 3, 32)
	parallelism, parallelismErr := getUintEnv("ARGON2_PARALLELISM", 2, 8)

	cfg := &Config{
		Environment: getEnv("APP_ENV", "development"),
		HTTP: HTTPConfig{
			Host:          getEnv("HTTP_HOST", ""),
			Port:          getEnv("HTTP_PORT", "8000"),
			CORSOrigins:   getListEnv("CORS_ORIGINS", []string{"*"}),
			BodyLimit:     getEnv("HTTP_BODY_LIMIT", "16KB"),
			MaxUploadSize: getInt64Env("MAX_UPLOAD_SIZE", 10<<20),
		},
		GRPC: GRPCConfig{
			Host: getEnv("GRPC_HOST", ""),
			Port: getEnv("GRPC_PORT", "9090"),
		},
		Database: DatabaseConfig{
			Driver:         strings.ToLower(getEnv("DB_DRIVER", "mysql")),
			DSN:            strings.TrimSpace(os.Getenv("DB_DSN")),
			MigrateOnStart: getBoolEnv("DB_MIGRATE_ON_START", false),
		},
		JWT: JWTConfig{
			AccessSecret:    os.Getenv("ACCESS_TOKEN_SECRET"),
			AccessTokenTTL:  getDurationEnv("JWT_ACCESS_TOKEN_TTL", 15*time.Minute),
			RefreshSecret:   os.Getenv("REFRESH_TOKEN_SECRET"),
			RefreshTokenTTL: getDurationEnv("JWT_REFRESH_TOKEN_TTL", 10*24*time.Hour),
		},
		Password: PasswordConfig{
			Hasher:     strings.ToLower(getEnv("PASSWORD_HASHER", "bcrypt")),
			BcryptCost: getIntEnv("BCRYPT_COST", 10),
			Argon2: Argon2Config{
				MemoryKiB:   uint32(memoryKiB),
				Iterations:  uint32(iterations),
				Parallelism: uint8(parallelism),
			},
		},
		Media: MediaConfig{
			Driver:    strings.ToLower(getEnv("MEDIA_DRIVER", "filesystem")),
			Dir:       getEnv("MEDIA_DIR", "var/media"),
			PublicURL: strings.TrimRight(getEnv("MEDIA_PUBLIC_URL", "http://localhost:8000/media"), "/"),
			S3: S3Config{
				Bucket:       os.Getenv("S3_BUCKET"),
				Region:       getEnv("S3_REGION", "us-east-1"),
				Endpoint:     os.Getenv("S3_ENDPOINT"),
				AccessKey:    os.Getenv("S3_ACCESS_KEY"),
				SecretKey:    os.Getenv("S3_SECRET_KEY"),
				UsePathStyle: getBoolEnv("S3_USE_PATH_STYLE", false),
			},
		},
		Log: LogConfig{
			Level:  getEnv("LOG_LEVEL", "info"),
			Format: getEnv("LOG_FORMAT", "text"),
		},
	}

	if cfg.Database.Driver == "sqlite" && cfg.Database.DSN == "" {
		cfg.Database.DSN = "var/accounts.db"
	}

	if err := errors.Join(memoryErr, iterationsErr, parallelismErr, cfg.Validate()); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate reports every configuration problem at once.
func (c *Config) Validate() error {
	var errs []error

	if c.JWT.AccessSecret == "" {
		errs = append(errs, errors.New("ACCESS_TOKEN_SECRET environment variable is required"))
	}
	if c.JWT.RefreshSecret == "" {
		errs = append(errs, errors.New("REFRESH_TOKEN_SECRET environment variable is required"))
	}
	if c.JWT.AccessSecret != "" && c.JWT.AccessSecret == c.JWT.RefreshSecret {
		errs = append(errs, errors.New("ACCESS_TOKEN_SECRET and REFRESH_TOKEN_SECRET must differ"))
	}
	if c.JWT.AccessTokenTTL <= 0 || c.JWT.RefreshTokenTTL <= 0 {
		errs = append(errs, errors.New("token TTLs must be positive"))
	}

	switch c.Database.Driver {
	case "mysql", "postgres":
		if c.Database.DSN == "" {
			errs = append(errs, errors.New("DB_DSN environment variable is required"))
		}
	case "sqlite":
	default:
		errs = append(errs, fmt.Errorf("unsupported DB_DRIVER %q", c.Database.Driver))
	}

	switch c.Password.Hasher {
	case "bcrypt":
	case "argon2id":
		a := c.Password.Argon2
		if a.MemoryKiB == 0 || a.Iterations == 0 || a.Parallelism == 0 {
			errs = append(errs, errors.New("ARGON2_MEMORY_KIB, ARGON2_ITERATIONS and ARGON2_PARALLELISM must be positive"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported PASSWORD_HASHER %q", c.Password.Hasher))
	}

	switch c.Media.Driver {
	case "filesystem":
	case "s3":
		if c.Media.S3.Bucket == "" {
			errs = append(errs, errors.New("S3_BUCKET environment variable is required for the s3 media driver"))
		}
	default:
		errs = append(errs, fmt.Errorf("unsupported MEDIA_DRIVER %q", c.Media.Driver))
	}

	return errors.Join(errs...)
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getDurationEnv accepts Go duration syntax ("15m", "240h") or a bare number of minutes.
func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	if minutes, err := strconv.Atoi(value); err == nil {
		return time.Duration(minutes) * time.Minute
	}
	if d, err := time.ParseDuration(value); err == nil {
		return d
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

// getUintEnv parses an unsigned value that must fit in bitSize bits. Unlike the
// other helpers it reports bad input instead of falling back to the default.
func getUintEnv(key string, defaultValue uint64, bitSize int) (uint64, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}
	n, err := strconv.ParseUint(value, 10, bitSize)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer between 0 and %d, got %q", key, uint64(1)<<bitSize-1, value)
	}
	return n, nil
}

func getInt64Env(key string, defaultValue int64) int64 {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.ParseInt(value, 10, 64); err == nil {
			return n
		}
	}
	return defaultValue
}

func getListEnv(key string, defaultValue []string) []string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}

	var out []string
	for _, part := range strings.Split(value, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
