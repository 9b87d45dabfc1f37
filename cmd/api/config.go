package main

import (
	"log"
	"os"

	"github.com/go-yaml/yaml"

	"github.com/tixgate/eventchat/core"
)

type Config struct {
	Server Server             `yaml:"server"`
	Chat   core.Config        `yaml:"chat"`
	Chains []core.ChainConfig `yaml:"chains"`
}

type Server struct {
	Listen        string `yaml:"listen"`
	Dsn           string `yaml:"dsn"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisDB       int    `yaml:"redisDB"`
	MemcachedAddr string `yaml:"memcachedAddr"`
	EnableTrace   bool   `yaml:"enableTrace"`
	TraceEndpoint string `yaml:"traceEndpoint"`
	LogPath       string `yaml:"logPath"`
}

// Load loads config from given path
func (c *Config) Load(path string) error {
	f, err := os.Open(path)
	if err != nil {
		log.Fatal("failed to open configuration file:", err)
		return err
	}
	defer f.Close()

	err = yaml.NewDecoder(f).Decode(&c)
	if err != nil {
		log.Fatal("failed to load configuration file:", err)
		return err
	}

	if c.Server.Listen == "" {
		c.Server.Listen = ":8000"
	}
	if len(c.Chains) > 0 {
		c.Chat.Chains = c.Chains
	}
	c.Chat.Normalize()

	return nil
}
