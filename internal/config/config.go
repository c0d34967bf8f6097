package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/cozy-creator/summarize-server/internal/utils/pathutil"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvPrefix = "SUMMARIZE"

	DBDriverSQLite   = "sqlite"
	DBDriverPostgres = "pg"
)

type Config struct {
	Port          int               `mapstructure:"port"`
	Host          string            `mapstructure:"host"`
	RPCPort       int               `mapstructure:"rpc_port"`
	RPCHost       string            `mapstructure:"rpc_host"`
	RPCWorkers    int               `mapstructure:"rpc_workers"`
	MaxBodyBytes  int64             `mapstructure:"max_body_bytes"`
	Environment   string            `mapstructure:"environment"`
	SummarizeHome string            `mapstructure:"summarize_home"`
	ModelsDir     string            `mapstructure:"models_dir"`
	HFToken       string            `mapstructure:"hf_token"`
	Model         *ModelConfig      `mapstructure:"model"`
	Runtime       *RuntimeConfig    `mapstructure:"runtime"`
	Generation    *GenerationConfig `mapstructure:"generation"`
	DB            *DBConfig         `mapstructure:"db"`
	S3            *S3Config         `mapstructure:"s3"`
}

type ModelConfig struct {
	Name   string `mapstructure:"name"`
	Path   string `mapstructure:"path"`
	Device string `mapstructure:"device"`
}

// Locator returns the artifact locator the model store should load.
// A local path override always wins over the named identifier.
func (m *ModelConfig) Locator() string {
	if m == nil {
		return DefaultModelName
	}
	if strings.TrimSpace(m.Path) != "" {
		return m.Path
	}
	return m.Name
}

type RuntimeConfig struct {
	Address  string `mapstructure:"address"`
	Timeout  int    `mapstructure:"timeout"`
	PoolSize int    `mapstructure:"pool_size"`
}

type GenerationConfig struct {
	// Timeout in seconds; zero leaves generation unbounded.
	Timeout int `mapstructure:"timeout"`
}

type DBConfig struct {
	Driver string `mapstructure:"driver"`
	DSN    string `mapstructure:"dsn"`
}

type S3Config struct {
	Region      string `mapstructure:"region_name"`
	AccessKey   string `mapstructure:"access_key"`
	SecretKey   string `mapstructure:"secret_key"`
	EndpointUrl string `mapstructure:"endpoint_url"`
}

var config *Config

func init() {
	setDefaults(viper.GetViper())
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("port", DefaultPort)
	v.SetDefault("host", "0.0.0.0")
	v.SetDefault("rpc_port", DefaultRPCPort)
	v.SetDefault("rpc_host", "0.0.0.0")
	v.SetDefault("rpc_workers", DefaultRPCWorkers)
	v.SetDefault("max_body_bytes", DefaultMaxBodyBytes)
	v.SetDefault("environment", "dev")

	v.SetDefault("model.name", DefaultModelName)
	v.SetDefault("model.path", "")
	v.SetDefault("model.device", DefaultDevice)

	v.SetDefault("runtime.address", DefaultRuntimeAddress)
	v.SetDefault("runtime.timeout", DefaultRuntimeTimeout)
	v.SetDefault("runtime.pool_size", DefaultRuntimePoolSize)

	v.SetDefault("generation.timeout", 0)

	v.SetDefault("db.driver", DefaultDBDriver)
	v.SetDefault("db.dsn", "")
}

// BindEnvs registers the environment variables that are read without the
// SUMMARIZE_ prefix.
func BindEnvs(v *viper.Viper) {
	v.BindEnv("model.name", "MODEL_NAME")
	v.BindEnv("model.path", "MODEL_PATH")
	v.BindEnv("hf_token", "HF_TOKEN")

	v.BindEnv("s3.access_key", "AWS_ACCESS_KEY_ID")
	v.BindEnv("s3.secret_key", "AWS_SECRET_ACCESS_KEY")
	v.BindEnv("s3.region_name", "AWS_REGION")
}

// LoadEnvAndConfigFiles resolves the home directory, loads the optional .env
// and config.yaml files found there and unmarshals the merged settings.
func LoadEnvAndConfigFiles() error {
	home, err := getSummarizeHome()
	if err != nil {
		return err
	}

	modelsDir, err := getModelsDir(home)
	if err != nil {
		return err
	}

	viper.Set("summarize_home", home)
	viper.Set("models_dir", modelsDir)

	envFile := viper.GetString("env_file")
	if envFile == "" {
		envFile = filepath.Join(home, ".env")
	}

	if _, err := os.Stat(envFile); err == nil {
		if err := godotenv.Load(envFile); err != nil {
			return fmt.Errorf("failed to load env file: %w", err)
		}
	} else if !os.IsNotExist(err) {
		return fmt.Errorf("failed to stat .env file: %w", err)
	}

	configFile := viper.GetString("config_file")
	if configFile != "" {
		viper.SetConfigFile(configFile)
	} else {
		viper.SetConfigType("yaml")
		viper.SetConfigName("config")
		viper.AddConfigPath(home)
	}

	if err := viper.ReadInConfig(); err != nil {
		if !errors.As(err, &viper.ConfigFileNotFoundError{}) {
			return fmt.Errorf("error reading config: %w", err)
		}
	}

	cfg, err := Unmarshal(viper.GetViper())
	if err != nil {
		return err
	}

	config = cfg
	return nil
}

func Unmarshal(v *viper.Viper) (*Config, error) {
	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	return cfg, nil
}

func GetConfig() (*Config, error) {
	if config == nil {
		return nil, ErrConfigNotLoaded
	}

	return config, nil
}

func MustGetConfig() *Config {
	if config == nil {
		panic("config not loaded")
	}

	return config
}

// Returns the summarize home directory path.
// It attempts to retrieve the home directory from the following sources in order:
// 1. The `summarize_home` flag from viper.
// 2. The `SUMMARIZE_HOME` environment variable.
// 3. The default home directory.
func getSummarizeHome() (string, error) {
	home := viper.GetString("summarize_home")
	if home == "" {
		home = os.Getenv("SUMMARIZE_HOME")
		if home == "" {
			home = DefaultSummarizeHome
		}
	}

	home, err := pathutil.ExpandPath(home)
	if err != nil {
		return "", fmt.Errorf("failed to expand summarize home path: %w", err)
	}

	return home, nil
}

func getModelsDir(home string) (string, error) {
	if home == "" {
		return "", ErrHomeNotSet
	}

	modelsDir := viper.GetString("models_dir")
	if modelsDir == "" {
		modelsDir = filepath.Join(home, "models")
	}

	modelsDir, err := pathutil.ExpandPath(modelsDir)
	if err != nil {
		return "", ErrHomeExpandFailed
	}

	return modelsDir, nil
}
