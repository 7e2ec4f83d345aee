package config

import (
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

type TLSConfig struct {
	CertFile string `mapstructure:"cert_file"`
	KeyFile  string `mapstructure:"key_file"`
}

type S3Config struct {
	Bucket    string `mapstructure:"bucket"`
	Region    string `mapstructure:"region"`
	Endpoint  string `mapstructure:"endpoint"`
	Prefix    string `mapstructure:"prefix"`
	AccessKey string `mapstructure:"access_key"`
	SecretKey string `mapstructure:"secret_key"`
}

type BlobConfig struct {
	Backend string   `mapstructure:"backend"`
	Dir     string   `mapstructure:"dir"`
	S3      S3Config `mapstructure:"s3"`
}

// OpsConfig guards the operator API with HTTP basic auth. An empty password
// leaves /api unmounted.
type OpsConfig struct {
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
}

// WSConfig controls the WebSocket entry on the HTTP listener. Origins lists
// browser origins allowed besides the server's own host.
type WSConfig struct {
	Enabled bool     `mapstructure:"enabled"`
	Origins []string `mapstructure:"origins"`
}

type ClientConfig struct {
	ServerAddr        string        `mapstructure:"server_addr"`
	CAFile            string        `mapstructure:"ca_file"`
	ServerName        string        `mapstructure:"server_name"`
	Insecure          bool          `mapstructure:"insecure"`
	ReconnectInterval time.Duration `mapstructure:"reconnect_interval"`
	VideoInterval     time.Duration `mapstructure:"video_interval"`
	AudioFrameBytes   int           `mapstructure:"audio_frame_bytes"`
}

type Config struct {
	Mode         string       `mapstructure:"mode"`
	ListenAddr   string       `mapstructure:"listen_addr"`
	HTTPAddr     string       `mapstructure:"http_addr"`
	Ops          OpsConfig    `mapstructure:"ops"`
	WS           WSConfig     `mapstructure:"ws"`
	TLS          TLSConfig    `mapstructure:"tls"`
	DBPath       string       `mapstructure:"db_path"`
	DBWorkers    int          `mapstructure:"db_workers"`
	SendQueue    int          `mapstructure:"send_queue"`
	MaxFrameSize uint32       `mapstructure:"max_frame_size"`
	Blob         BlobConfig   `mapstructure:"blob"`
	LogLevel     string       `mapstructure:"log_level"`
	Client       ClientConfig `mapstructure:"client"`

	v        *viper.Viper
	fromFile bool
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("listen_addr", ":5555")
	v.SetDefault("http_addr", "127.0.0.1:8080")
	v.SetDefault("ops.user", "admin")
	v.SetDefault("ops.password", "")
	v.SetDefault("ws.enabled", false)
	v.SetDefault("ws.origins", []string{})
	v.SetDefault("tls.cert_file", "")
	v.SetDefault("tls.key_file", "")
	v.SetDefault("db_path", "./data/roomcast.db")
	v.SetDefault("db_workers", 8)
	v.SetDefault("send_queue", 256)
	v.SetDefault("max_frame_size", 72<<20)
	v.SetDefault("blob.backend", "disk")
	v.SetDefault("blob.dir", "./data/files")
	for _, k := range []string{"bucket", "region", "endpoint", "prefix", "access_key", "secret_key"} {
		v.SetDefault("blob.s3."+k, "")
	}
	v.SetDefault("log_level", "info")

	v.SetDefault("client.server_addr", "localhost:5555")
	v.SetDefault("client.ca_file", "")
	v.SetDefault("client.server_name", "")
	v.SetDefault("client.insecure", false)
	v.SetDefault("client.reconnect_interval", "5s")
	v.SetDefault("client.video_interval", "100ms")
	v.SetDefault("client.audio_frame_bytes", 4096)
}

// Load reads config/config.<CONFIG_ENV>.yaml (dev by default). ROOMCAST_*
// environment variables override file values, e.g. ROOMCAST_BLOB_BACKEND.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

// LoadFile is Load with an explicit file. A missing file falls back to defaults.
func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.SetEnvPrefix("ROOMCAST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	fromFile := true
	if err := v.ReadInConfig(); err != nil {
		fromFile = false
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	cfg, err := decode(v)
	if err != nil {
		return nil, err
	}
	cfg.fromFile = fromFile
	log.Info().Str("module", "config").Str("mode", cfg.Mode).Str("listen", cfg.ListenAddr).Str("http", cfg.HTTPAddr).Msg("config ready")
	return cfg, nil
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if cfg.Blob.Backend != "disk" && cfg.Blob.Backend != "s3" {
		return nil, fmt.Errorf("unknown blob backend %q", cfg.Blob.Backend)
	}
	cfg.v = v
	return &cfg, nil
}

// Watch reloads the file on change and hands the new config to onChange.
// It is a no-op when no file was read.
func (c *Config) Watch(onChange func(*Config)) {
	if c.v == nil || !c.fromFile {
		return
	}
	var mu sync.Mutex
	c.v.OnConfigChange(func(e fsnotify.Event) {
		mu.Lock()
		defer mu.Unlock()
		next, err := decode(c.v)
		if err != nil {
			log.Error().Err(err).Str("module", "config").Str("file", e.Name).Msg("reload failed")
			return
		}
		next.fromFile = true
		log.Info().Str("module", "config").Str("file", e.Name).Msg("config reloaded")
		onChange(next)
	})
	c.v.WatchConfig()
}

// ApplyLogLevel sets the global zerolog level. An empty level means info.
func ApplyLogLevel(level string) error {
	if level == "" {
		level = "info"
	}
	l, err := zerolog.ParseLevel(level)
	if err != nil {
		return err
	}
	zerolog.SetGlobalLevel(l)
	return nil
}
