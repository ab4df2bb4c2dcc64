package config

// NodeConfig represents a node's ambient configuration
type NodeConfig struct {
	Name        string `yaml:"name"`
	ListenAddr  string `yaml:"listen_addr"`
	MetricsAddr string `yaml:"metrics_addr"`
}

// PeerNode is a bootstrap peer entry
type PeerNode struct {
	Addr string `yaml:"addr"`
}

// GenesisConfig holds the configuration from node.yml
type GenesisConfig struct {
	SelfNode  NodeConfig `yaml:"self_node"`
	PeerNodes []PeerNode `yaml:"peer_nodes"`
}

// ConfigFile is the top-level structure for node.yml
type ConfigFile struct {
	Config GenesisConfig `yaml:"config"`
}
