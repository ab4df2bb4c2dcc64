package config

import (
	"os"
	"time"

	"gopkg.in/ini.v1"
	"gopkg.in/yaml.v3"

	"chainkv/logx"
)

// LoadGenesisConfig reads and parses the node.yml file
func LoadGenesisConfig(path string) (*GenesisConfig, error) {
	file, err := os.Open(path)
	if err != nil {
		logx.Error("CONFIG", "Failed to open file: ", err)
		return nil, err
	}
	defer file.Close()

	var cfgFile ConfigFile
	decoder := yaml.NewDecoder(file)
	if err := decoder.Decode(&cfgFile); err != nil {
		logx.Error("CONFIG", "Failed to decode YAML: ", err)
		return nil, err
	}
	logx.Info("CONFIG", "Loaded node config: SelfNode=", cfgFile.Config.SelfNode.Name, ", PeerNodes=", len(cfgFile.Config.PeerNodes))
	return &cfgFile.Config, nil
}

type GossipConfig struct {
	AnnounceIntervalMs int `ini:"announce_interval_ms"`
	SessionTimeoutMs   int `ini:"session_timeout_ms"`
	RequestTimeoutMs   int `ini:"request_timeout_ms"`
}

type ReadConfig struct {
	MaxAttempts   int `ini:"max_attempts"`
	BackoffStepMs int `ini:"backoff_step_ms"`
}

func (g *GossipConfig) AnnounceInterval() time.Duration {
	return time.Duration(g.AnnounceIntervalMs) * time.Millisecond
}

func (g *GossipConfig) SessionTimeout() time.Duration {
	return time.Duration(g.SessionTimeoutMs) * time.Millisecond
}

func (g *GossipConfig) RequestTimeout() time.Duration {
	return time.Duration(g.RequestTimeoutMs) * time.Millisecond
}

func (r *ReadConfig) BackoffStep() time.Duration {
	return time.Duration(r.BackoffStepMs) * time.Millisecond
}

func DefaultGossipConfig() *GossipConfig {
	return &GossipConfig{
		AnnounceIntervalMs: DefaultAnnounceIntervalMs,
		SessionTimeoutMs:   DefaultSessionTimeoutMs,
		RequestTimeoutMs:   DefaultRequestTimeoutMs,
	}
}

func DefaultReadConfig() *ReadConfig {
	return &ReadConfig{
		MaxAttempts:   DefaultReadMaxAttempts,
		BackoffStepMs: DefaultReadBackoffStepMs,
	}
}

// LoadGossipConfig reads gossip tunables from an .ini file
func LoadGossipConfig(path string) (*GossipConfig, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, err
	}
	gossipSection := cfg.Section("gossip")
	gossipCfg := DefaultGossipConfig()
	err = gossipSection.MapTo(gossipCfg)
	if err != nil {
		return nil, err
	}
	return gossipCfg, nil
}

// LoadReadConfig reads read-retry tunables from an .ini file
func LoadReadConfig(path string) (*ReadConfig, error) {
	cfg, err := ini.Load(path)
	if err != nil {
		return nil, err
	}
	readSection := cfg.Section("read")
	readCfg := DefaultReadConfig()
	err = readSection.MapTo(readCfg)
	if err != nil {
		return nil, err
	}
	return readCfg, nil
}
