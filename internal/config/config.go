package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const envPrefix = "TUNEFETCH"

// Config holds application level configuration aggregated from env/config files.
type Config struct {
	Server struct {
		Addr        string
		CORSOrigins []string
	}
	Database struct {
		Path string
	}
	Download struct {
		DataDir       string
		MaxConcurrent int
		OutputFormat  string
	}
	Matching struct {
		Threshold              float64
		TitleWeight            float64
		ArtistWeight           float64
		DurationWeight         float64
		RankWeight             float64
		StructuredRankStrength float64
		FallbackRankStrength   float64
		AutoAccept             bool
	}
	Catalog struct {
		ClientID     string
		ClientSecret string
		TokenURL     string
		APIURL       string
		Market       string
	}
	MediaSource struct {
		YTDLPPath  string
		ProxyURL   string
		Timeout    time.Duration
		RatePerSec float64
	}
	Library struct {
		MusicPath string
		APIURL    string
		Username  string
		Password  string
	}
	Storage struct {
		Bucket     string
		KeyPrefix  string
		Region     string
		Endpoint   string
		PresignTTL time.Duration
	}
	AWS struct {
		Profile string
	}
	Cache struct {
		RedisAddr     string
		RedisPassword string
		RedisDB       int
		TTL           time.Duration
	}
	Auth struct {
		JWTSecret string
		TokenTTL  time.Duration
	}
	Log struct {
		Level      string
		File       string
		MaxSizeMB  int
		MaxBackups int
		MaxAgeDays int
	}
}

// Load reads configuration from environment variables, an optional .env file
// and an optional config file. Variables already set in the environment win
// over .env entries.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	v.SetConfigName("config")
	v.AddConfigPath(".")
	_ = v.ReadInConfig() // optional file

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	cfg.Server.CORSOrigins = splitList(cfg.Server.CORSOrigins)

	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", "0.0.0.0:8080")
	v.SetDefault("server.corsorigins", []string{"*"})
	v.SetDefault("database.path", "data/tunefetch.db")
	v.SetDefault("download.datadir", "data/downloads")
	v.SetDefault("download.maxconcurrent", 3)
	v.SetDefault("download.outputformat", "mp3")

	v.SetDefault("matching.threshold", 0.65)
	v.SetDefault("matching.titleweight", 0.45)
	v.SetDefault("matching.artistweight", 0.25)
	v.SetDefault("matching.durationweight", 0.20)
	v.SetDefault("matching.rankweight", 0.10)
	v.SetDefault("matching.structuredrankstrength", 6.0)
	v.SetDefault("matching.fallbackrankstrength", 3.6)
	v.SetDefault("matching.autoaccept", true)

	v.SetDefault("catalog.clientid", "")
	v.SetDefault("catalog.clientsecret", "")
	v.SetDefault("catalog.tokenurl", "")
	v.SetDefault("catalog.apiurl", "")
	v.SetDefault("catalog.market", "")

	v.SetDefault("mediasource.ytdlppath", "yt-dlp")
	v.SetDefault("mediasource.proxyurl", "")
	v.SetDefault("mediasource.timeout", 5*time.Minute)
	v.SetDefault("mediasource.ratepersec", 1.0)

	v.SetDefault("library.musicpath", "/music")
	v.SetDefault("library.apiurl", "")
	v.SetDefault("library.username", "")
	v.SetDefault("library.password", "")

	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.keyprefix", "tracks")
	v.SetDefault("storage.region", "us-east-1")
	v.SetDefault("storage.endpoint", "")
	v.SetDefault("storage.presignttl", 24*time.Hour)
	v.SetDefault("aws.profile", "")

	v.SetDefault("cache.redisaddr", "")
	v.SetDefault("cache.redispassword", "")
	v.SetDefault("cache.redisdb", 0)
	v.SetDefault("cache.ttl", 6*time.Hour)

	v.SetDefault("auth.jwtsecret", "")
	v.SetDefault("auth.tokenttl", 30*24*time.Hour)

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "")
	v.SetDefault("log.maxsizemb", 50)
	v.SetDefault("log.maxbackups", 3)
	v.SetDefault("log.maxagedays", 28)
}

// splitList accepts both list values and a single comma separated string, which
// is what an environment variable yields.
func splitList(in []string) []string {
	var out []string
	for _, item := range in {
		for _, part := range strings.Split(item, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
