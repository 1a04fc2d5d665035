package broker

import (
	"context"
	"fmt"

	"github.com/reviewfilter/core/go/packet"
	"github.com/twmb/franz-go/pkg/kgo"
)

// Config names the Kafka-side resolution of spec §6's configuration block.
type Config struct {
	Brokers []string

	// BookTopic is consumed with a distinct, unshared group per shard so
	// every shard sees every message (broadcast fanout).
	BookTopic string

	// RingTopicPrefix names the per-shard point-to-point inbox used to
	// forward a stamped books-EOF token to exactly the next shard in the
	// ring: topic "<prefix>.<instance_id>" is this shard's inbox.
	RingTopicPrefix string

	// ReviewTopicPrefix + InstanceID name this shard's share of the
	// sharded review stream: review_input_queue = (prefix, exchange) in
	// spec §6 becomes one Kafka topic per shard, "<prefix>_<instance_id>",
	// fed upstream by a title-hash partitioner, consumed under one shared
	// consumer group across shards.
	ReviewTopicPrefix string
	ReviewGroup       string

	OutputTopics []string

	InstanceID  uint32
	ClusterSize uint32
}

// KafkaBooks is the BooksSource over a franz-go client, one per shard,
// each running its own unshared consumer group so every book reaches
// every shard.
type KafkaBooks struct {
	cl        *kgo.Client
	nextInbox string
}

// NewKafkaBooks opens a client consuming cfg.BookTopic (broadcast to every
// shard via an unshared group) and this shard's own ring inbox topic
// (point-to-point, nothing else is subscribed to it).
func NewKafkaBooks(cfg Config) (*KafkaBooks, error) {
	var myInbox = fmt.Sprintf("%s.%d", cfg.RingTopicPrefix, cfg.InstanceID)
	var nextInbox = fmt.Sprintf("%s.%d", cfg.RingTopicPrefix, (cfg.InstanceID+1)%cfg.ClusterSize)

	cl, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumeTopics(cfg.BookTopic, myInbox),
		kgo.ConsumerGroup(fmt.Sprintf("reviewfilter-books-%d", cfg.InstanceID)),
		kgo.DisableAutoCommit(),
	)
	if err != nil {
		return nil, fmt.Errorf("broker: opening books consumer: %w", err)
	}
	return &KafkaBooks{cl: cl, nextInbox: nextInbox}, nil
}

func (b *KafkaBooks) Receive(ctx context.Context) (packet.Packet, error) {
	for {
		var fetches = b.cl.PollRecords(ctx, 1)
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if errs := fetches.Errors(); len(errs) > 0 {
			return nil, fmt.Errorf("broker: books fetch: %w", errs[0].Err)
		}

		var iter = fetches.RecordIter()
		if iter.Done() {
			continue
		}
		var rec = iter.Next()
		b.cl.MarkCommitRecords(rec) // auto-acked: books-stream EOF cannot be requeued (spec §9).
		return packet.Decode(rec.Value)
	}
}

// Return hands the stamped EOF token to the next shard's ring inbox.
func (b *KafkaBooks) Return(ctx context.Context, eof packet.EOF) error {
	var rec = &kgo.Record{Topic: b.nextInbox, Value: packet.Encode(eof)}
	if err := b.cl.ProduceSync(ctx, rec).FirstErr(); err != nil {
		return fmt.Errorf("broker: forwarding books EOF to ring: %w", err)
	}
	return nil
}

func (b *KafkaBooks) Close() { b.cl.Close() }

// KafkaReviews is the ReviewsSource for one shard's own review topic,
// "<ReviewTopicPrefix>_<InstanceID>", into which a consistent title-hash
// partitioner upstream routes that shard's reviews. The consumer group is
// shared across shards; each shard subscribes only to its own topic.
type KafkaReviews struct {
	cl *kgo.Client
}

// NewKafkaReviews opens a client consuming
// "<ReviewTopicPrefix>_<InstanceID>" under the shared ReviewGroup.
func NewKafkaReviews(cfg Config) (*KafkaReviews, error) {
	var topic = fmt.Sprintf("%s_%d", cfg.ReviewTopicPrefix, cfg.InstanceID)
	cl, err := kgo.NewClient(
		kgo.SeedBrokers(cfg.Brokers...),
		kgo.ConsumeTopics(topic),
		kgo.ConsumerGroup(cfg.ReviewGroup),
		kgo.DisableAutoCommit(),
		kgo.FetchMaxBytes(1<<20), // bounded prefetch mirrors spec §5's prefetch-count=1 intent.
	)
	if err != nil {
		return nil, fmt.Errorf("broker: opening reviews consumer: %w", err)
	}
	return &KafkaReviews{cl: cl}, nil
}

func (r *KafkaReviews) Receive(ctx context.Context) (Message, error) {
	for {
		var fetches = r.cl.PollRecords(ctx, 1)
		if err := ctx.Err(); err != nil {
			return Message{}, err
		}
		if errs := fetches.Errors(); len(errs) > 0 {
			return Message{}, fmt.Errorf("broker: reviews fetch: %w", errs[0].Err)
		}

		var iter = fetches.RecordIter()
		if iter.Done() {
			continue
		}
		var rec = iter.Next()

		p, err := packet.Decode(rec.Value)
		if err != nil {
			return Message{}, err
		}

		return NewMessage(p,
			func(ctx context.Context) error {
				return r.cl.CommitRecords(ctx, rec)
			},
			func(ctx context.Context, toSend packet.Packet) error {
				var tail = &kgo.Record{Topic: rec.Topic, Key: rec.Key, Value: packet.Encode(toSend)}
				if err := r.cl.ProduceSync(ctx, tail).FirstErr(); err != nil {
					return fmt.Errorf("broker: requeue republish: %w", err)
				}
				return r.cl.CommitRecords(ctx, rec)
			},
		), nil
	}
}

func (r *KafkaReviews) Close() { r.cl.Close() }

// KafkaPublisher publishes enriched reviews and downstream EOF tokens to
// every configured output topic (spec §6: output_queues + output_exchanges,
// flattened onto Kafka topics).
type KafkaPublisher struct {
	cl     *kgo.Client
	topics []string
}

// NewKafkaPublisher opens a client that publishes to cfg.OutputTopics.
func NewKafkaPublisher(cfg Config) (*KafkaPublisher, error) {
	cl, err := kgo.NewClient(kgo.SeedBrokers(cfg.Brokers...))
	if err != nil {
		return nil, fmt.Errorf("broker: opening publisher: %w", err)
	}
	return &KafkaPublisher{cl: cl, topics: cfg.OutputTopics}, nil
}

func (p *KafkaPublisher) Publish(ctx context.Context, pkt packet.Packet) error {
	var body = packet.Encode(pkt)
	for _, topic := range p.topics {
		if err := p.cl.ProduceSync(ctx, &kgo.Record{Topic: topic, Value: body}).FirstErr(); err != nil {
			return fmt.Errorf("broker: publish to %q: %w", topic, err)
		}
	}
	return nil
}

func (p *KafkaPublisher) Close() { p.cl.Close() }
