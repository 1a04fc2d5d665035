// Package config defines the review-filter worker's command-line and
// environment configuration, grouped the way the teacher's flowctl
// commands group theirs: one struct per concern, `group`/`namespace`/
// `env-namespace` tags on each, parsed with github.com/jessevdk/go-flags.
package config

import "time"

// Queue names a broker destination as spec §6 defines it: a queue/topic
// name plus an optional exchange, empty exchange meaning a direct queue.
type Queue struct {
	Name     string `long:"queue" env:"QUEUE" required:"true" description:"queue or topic name"`
	Exchange string `long:"exchange" env:"EXCHANGE" description:"exchange name, empty for a direct queue"`
}

// Input groups the two input stream configurations of spec §6.
type Input struct {
	Books   Queue `group:"Books input" namespace:"books" env-namespace:"BOOKS"`
	Reviews struct {
		QueuePrefix string `long:"queue-prefix" env:"QUEUE_PREFIX" required:"true" description:"review queue prefix; actual queue is <prefix>_<instance-id>"`
		Exchange    string `long:"exchange" env:"EXCHANGE" description:"exchange name, empty for a direct queue"`
		Group       string `long:"group" env:"GROUP" default:"reviewfilter-reviews" description:"shared consumer group name across shards"`
	} `group:"Reviews input" namespace:"reviews" env-namespace:"REVIEWS"`
}

// Output groups spec §6's fanout destinations: emission goes to every
// configured queue and every configured exchange.
type Output struct {
	Queues    []string `long:"queue" env:"QUEUES" env-delim:"," description:"output queue names"`
	Exchanges []string `long:"exchange" env:"EXCHANGES" env-delim:"," description:"output exchange names"`
}

// Cluster groups spec §6's shard-identity configuration.
type Cluster struct {
	InstanceID uint32 `long:"instance-id" env:"INSTANCE_ID" required:"true" description:"this shard's id, in [0, cluster-size)"`
	Size       uint32 `long:"size" env:"SIZE" required:"true" description:"total number of shards N"`
}

// Storage groups the embedded RocksDB persistence configuration of spec
// §4.3/§6.
type Storage struct {
	Directory string `long:"directory" env:"DIRECTORY" required:"true" description:"per-worker storage directory; must not be shared between workers"`
}

// Broker groups the Kafka client configuration used to realize spec §6's
// broker-agnostic queue/exchange contract (DOMAIN STACK: github.com/twmb/franz-go).
type Broker struct {
	Brokers         []string `long:"broker" env:"BROKERS" env-delim:"," required:"true" description:"Kafka seed broker addresses"`
	RingTopicPrefix string   `long:"ring-topic-prefix" env:"RING_TOPIC_PREFIX" default:"reviewfilter.ring" description:"per-shard ring inbox topic prefix for books-EOF forwarding"`
}

// Log groups structured-logging configuration, matching the level/format
// knobs the teacher's mainboilerplate LogConfig exposes.
type Log struct {
	Level  string `long:"level" env:"LEVEL" default:"info" choice:"debug" choice:"info" choice:"warn" choice:"error" description:"logging level"`
	Format string `long:"format" env:"FORMAT" default:"text" choice:"text" choice:"json" description:"logging format"`
}

// Config is the top-level configuration object of the review-filter
// worker, parsed by cmd/reviewfilter/main.go.
type Config struct {
	Input   Input   `group:"Input" namespace:"input" env-namespace:"INPUT"`
	Output  Output  `group:"Output" namespace:"output" env-namespace:"OUTPUT"`
	Cluster Cluster `group:"Cluster" namespace:"cluster" env-namespace:"CLUSTER"`
	Storage Storage `group:"Storage" namespace:"storage" env-namespace:"STORAGE"`
	Broker  Broker  `group:"Broker" namespace:"broker" env-namespace:"BROKER"`
	Log     Log     `group:"Logging" namespace:"log" env-namespace:"LOG"`

	CleanupTimeoutSeconds uint32 `long:"cleanup-timeout-seconds" env:"CLEANUP_TIMEOUT_SECONDS" default:"1200" description:"idle duration after which a client's filter state is reaped"`
}

// CleanupTimeout returns the configured cleanup timeout as a Duration.
func (c Config) CleanupTimeout() time.Duration {
	return time.Duration(c.CleanupTimeoutSeconds) * time.Second
}
