package model

// PoolConfig is a pool entry from configuration.
type PoolConfig struct {
	Address     string   `mapstructure:"address" json:"address"`
	Type        string   `mapstructure:"type" json:"type"`
	StartHeight uint64   `mapstructure:"start_height" json:"start_height"`
	Weight      float64  `mapstructure:"weight" json:"weight,omitempty"`
	Exclude     []string `mapstructure:"exclude" json:"exclude,omitempty"`
}
