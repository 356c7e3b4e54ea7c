package main

import (
	"bytes"
	"errors"
	"io/fs"
	"os"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/zabeloliver/shc-cover-bridge/bridge"
	"github.com/zabeloliver/shc-cover-bridge/history"
	"github.com/zabeloliver/shc-cover-bridge/registry"
)

type config struct {
	Files struct {
		Certificate struct {
			Crt string `mapstructure:"crt"`
			Key string `mapstructure:"key"`
		} `mapstructure:"certificate"`
	} `mapstructure:"files"`
	Shc struct {
		Host        string `mapstructure:"host"`
		Polltimeout int    `mapstructure:"polltimeout"`
	} `mapstructure:"shc"`
	Entry struct {
		Id string `mapstructure:"id"`
	} `mapstructure:"entry"`
	Http struct {
		Port string `mapstructure:"port"`
	} `mapstructure:"http"`
	Log struct {
		File  string `mapstructure:"file"`
		Level string `mapstructure:"level"`
	} `mapstructure:"log"`
	Registry registry.Config `mapstructure:"registry"`
	Mqtt     bridge.Config   `mapstructure:"mqtt"`
	Influxdb history.Config  `mapstructure:"influxdb"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("files.certificate.crt", "client-cert.pem")
	v.SetDefault("files.certificate.key", "client-key.pem")
	v.SetDefault("shc.host", "localhost")
	v.SetDefault("shc.polltimeout", 30)
	v.SetDefault("entry.id", "shc")
	v.SetDefault("http.port", 9123)
	v.SetDefault("log.file", "shc_cover_bridge.log")
	v.SetDefault("log.level", "info")
	v.SetDefault("registry.path", "data/registry.db")
	v.SetDefault("registry.busytimeout", 5)
	v.SetDefault("mqtt.broker", "")
	v.SetDefault("mqtt.clientid", "shc-cover-bridge")
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.topicprefix", "shc")
	v.SetDefault("mqtt.discoveryprefix", "homeassistant")
	v.SetDefault("mqtt.qos", 1)
	v.SetDefault("influxdb.host", "")
	v.SetDefault("influxdb.token", "")
	v.SetDefault("influxdb.org", "")
	v.SetDefault("influxdb.bucket", "shc")
}

// loadConfig reads configPath (optional), a .env file next to the process
// (optional) and SHC_* environment variables, in increasing precedence.
func loadConfig(configPath string, logger *zap.SugaredLogger) (config, error) {
	var c config
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return c, err
	}

	v := viper.New()
	setDefaults(v)
	replacer := strings.NewReplacer(".", "_")
	v.SetEnvKeyReplacer(replacer)
	v.SetEnvPrefix("shc")
	v.AutomaticEnv()
	v.SetConfigType("yaml")

	cfg, err := os.ReadFile(configPath)
	if err != nil {
		logger.Info("No configuration file found. Using Default config")
	} else if err := v.ReadConfig(bytes.NewBuffer(cfg)); err != nil {
		return c, err
	}

	if err := v.Unmarshal(&c); err != nil {
		return c, err
	}
	c.Shc.Host = normalizeHost(c.Shc.Host)
	logger.Infof("Configuration from %v", redacted(v.AllSettings()))
	return c, nil
}

// normalizeHost adds the https scheme the controller requires.
func normalizeHost(host string) string {
	host = strings.TrimRight(host, "/")
	if strings.HasPrefix(host, "https://") || strings.HasPrefix(host, "http://") {
		return host
	}
	return "https://" + host
}

func redacted(settings map[string]any) map[string]any {
	out := make(map[string]any, len(settings))
	for k, val := range settings {
		switch typed := val.(type) {
		case map[string]any:
			out[k] = redacted(typed)
		default:
			if (k == "password" || k == "token") && val != "" {
				out[k] = "***"
			} else {
				out[k] = val
			}
		}
	}
	return out
}
