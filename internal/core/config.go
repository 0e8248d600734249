package core

import (
	"strings"

	"github.com/gookit/config/v2"
	"github.com/gookit/config/v2/yaml"
)

type Config struct {
	Addr              string `config:"addr"`
	DBPath            string `config:"db_path"`
	HeartbeatSeconds  int    `config:"heartbeat_seconds"`
	SessionBufferSize int    `config:"session_buffer_size"`
}

func NewConfig(path string) (*Config, error) {
	appConfig := Config{
		Addr:              ":6750",
		DBPath:            "deckbeam.db",
		HeartbeatSeconds:  25,
		SessionBufferSize: 32,
	}

	config.WithOptions(func(opt *config.Options) {
		opt.ParseEnv = true
		opt.DecoderConfig.TagName = "config"
	})

	config.AddDriver(yaml.Driver)

	if err := config.LoadFiles(path); err != nil {
		return nil, err
	}

	if err := config.LoadExists(strings.Replace(path, ".yml", ".local.yml", 1)); err != nil {
		return nil, err
	}

	if err := config.BindStruct("", &appConfig); err != nil {
		return nil, err
	}

	return &appConfig, nil
}
