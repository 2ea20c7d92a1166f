// Copyright (c) 2025 Karl Gaissmaier
// SPDX-License-Identifier: MIT

package tcam

import (
	"os"
	"slices"

	"github.com/pkg/errors"
	"go.uber.org/multierr"
	"gopkg.in/yaml.v3"

	"github.com/LUXERON/VXLAN-CONTROL-PLANE-SERVER-sub001/internal/cidr"
	"github.com/LUXERON/VXLAN-CONTROL-PLANE-SERVER-sub001/internal/hint"
)

// Policy selects the tiers a lookup may use.
type Policy string

const (
	// PolicyTiered runs cache, matcher and trie, the default.
	PolicyTiered Policy = "tiered"

	// PolicyNoCache skips the cache, matcher and trie only.
	PolicyNoCache Policy = "no-cache"

	// PolicyTrieOnly answers every lookup from an unbounded trie walk,
	// neither the cache, the matcher nor the hint index is consulted.
	PolicyTrieOnly Policy = "trie-only"
)

var policies = []Policy{PolicyTiered, PolicyNoCache, PolicyTrieOnly}

func (p Policy) useCache() bool {
	return p == PolicyTiered
}

func (p Policy) useMatcher() bool {
	return p != PolicyTrieOnly
}

func (p Policy) useHints() bool {
	return p != PolicyTrieOnly
}

// Config holds the tunables of a Table.
type Config struct {
	// HotLengths are the prefix lengths indexed by the matcher.
	HotLengths []int `yaml:"hot_lengths"`

	// CacheCapacity is the maximum number of cached lookup results.
	CacheCapacity int `yaml:"cache_capacity"`

	// CacheShards is rounded up to a power of two.
	CacheShards int `yaml:"cache_shards"`

	// ClusterBits is the cluster key length of the hint index and
	// the granularity of cache invalidation, 1..8.
	ClusterBits int `yaml:"cluster_bits"`

	// ShardBits splits the trie into 2^ShardBits writer shards,
	// 0..ClusterBits.
	ShardBits int `yaml:"shard_bits"`

	// RebuildThreshold is the number of mutations after which the
	// hint index is rebuilt, 0 disables automatic rebuilds.
	RebuildThreshold int `yaml:"rebuild_threshold"`

	Policy Policy `yaml:"policy"`

	// TrackLatency measures every lookup, costs two clock reads.
	TrackLatency bool `yaml:"track_latency"`
}

// DefaultConfig returns the configuration used for zero or missing values.
func DefaultConfig() Config {
	return Config{
		HotLengths:       []int{32, 24, 16, 8},
		CacheCapacity:    1 << 16,
		CacheShards:      16,
		ClusterBits:      8,
		ShardBits:        4,
		RebuildThreshold: 1024,
		Policy:           PolicyTiered,
		TrackLatency:     true,
	}
}

// LoadConfig reads a YAML file on top of the defaults and validates it.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, errors.Wrap(err, "reading config")
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, errors.Wrapf(ErrParse, "config %s: %v", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, errors.Wrapf(err, "config %s", path)
	}
	return cfg, nil
}

// Validate checks the configuration, all problems are reported at once.
func (c Config) Validate() error {
	var errs error

	if len(c.HotLengths) == 0 {
		errs = multierr.Append(errs, errors.New("hot_lengths is empty"))
	}
	for _, l := range c.HotLengths {
		if l < 0 || l > cidr.MaxBits {
			errs = multierr.Append(errs, errors.Errorf("hot_lengths: %d out of range 0..%d", l, cidr.MaxBits))
		}
	}
	if c.CacheCapacity < 1 {
		errs = multierr.Append(errs, errors.Errorf("cache_capacity %d, must be positive", c.CacheCapacity))
	}
	if c.CacheShards < 1 {
		errs = multierr.Append(errs, errors.Errorf("cache_shards %d, must be positive", c.CacheShards))
	}
	if c.ClusterBits < 1 || c.ClusterBits > hint.MaxClusterBits {
		errs = multierr.Append(errs, errors.Errorf("cluster_bits %d out of range 1..%d", c.ClusterBits, hint.MaxClusterBits))
	}
	if c.ShardBits < 0 || c.ShardBits > c.ClusterBits {
		errs = multierr.Append(errs, errors.Errorf("shard_bits %d out of range 0..cluster_bits(%d)", c.ShardBits, c.ClusterBits))
	}
	if c.RebuildThreshold < 0 {
		errs = multierr.Append(errs, errors.Errorf("rebuild_threshold %d, must not be negative", c.RebuildThreshold))
	}
	if !slices.Contains(policies, c.Policy) {
		errs = multierr.Append(errs, errors.Errorf("policy %q must be one of %v", c.Policy, policies))
	}

	if errs != nil {
		return errors.Wrap(multierr.Combine(ErrValidation, errs), "invalid config")
	}
	return nil
}
