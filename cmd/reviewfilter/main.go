package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/fatih/color"
	"github.com/jessevdk/go-flags"
	log "github.com/sirupsen/logrus"

	"github.com/reviewfilter/core/go/broker"
	"github.com/reviewfilter/core/go/config"
	"github.com/reviewfilter/core/go/filter"
	"github.com/reviewfilter/core/go/store"
)

// Config is the top-level configuration object of a review-filter worker.
var Config = new(config.Config)

var (
	green  = color.New(color.FgGreen).SprintFunc()
	yellow = color.New(color.FgYellow).SprintFunc()
)

type cmdServe struct{}

func initLog(cfg config.Log) {
	switch cfg.Format {
	case "json":
		log.SetFormatter(&log.JSONFormatter{})
	default:
		log.SetFormatter(&log.TextFormatter{})
	}

	if lvl, err := log.ParseLevel(cfg.Level); err != nil {
		log.WithField("err", err).Fatal("unrecognized log level")
	} else {
		log.SetLevel(lvl)
	}
}

func (cmdServe) Execute(_ []string) error {
	initLog(Config.Log)
	log.WithField("config", Config).Info("review-filter worker configuration")

	var ctx, cancel = context.WithCancel(context.Background())
	defer cancel()

	db, err := store.Open(Config.Storage.Directory)
	if err != nil {
		log.WithError(err).Fatal("opening storage directory")
	}
	defer db.Close()

	var brokerCfg = broker.Config{
		Brokers:           Config.Broker.Brokers,
		BookTopic:         Config.Input.Books.Name,
		RingTopicPrefix:   Config.Broker.RingTopicPrefix,
		ReviewTopicPrefix: Config.Input.Reviews.QueuePrefix,
		ReviewGroup:       Config.Input.Reviews.Group,
		OutputTopics:      append(append([]string(nil), Config.Output.Queues...), Config.Output.Exchanges...),
		InstanceID:        Config.Cluster.InstanceID,
		ClusterSize:       Config.Cluster.Size,
	}

	books, err := broker.NewKafkaBooks(brokerCfg)
	if err != nil {
		log.WithError(err).Fatal("opening books consumer")
	}
	defer books.Close()

	reviews, err := broker.NewKafkaReviews(brokerCfg)
	if err != nil {
		log.WithError(err).Fatal("opening reviews consumer")
	}
	defer reviews.Close()

	pub, err := broker.NewKafkaPublisher(brokerCfg)
	if err != nil {
		log.WithError(err).Fatal("opening publisher")
	}
	defer pub.Close()

	var workerCfg = filter.Config{
		InstanceID:     Config.Cluster.InstanceID,
		ClusterSize:    Config.Cluster.Size,
		CleanupTimeout: Config.CleanupTimeout(),
	}

	w, err := filter.New(ctx, workerCfg, db, books, reviews, pub)
	if err != nil {
		log.WithError(err).Fatal("recovering filter worker state")
	}

	fmt.Println(green("✔"), "shard", Config.Cluster.InstanceID, "of", Config.Cluster.Size, "serving")

	var signalCh = make(chan os.Signal, 1)
	signal.Notify(signalCh, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		var sig = <-signalCh
		fmt.Println(yellow("●"), "caught", sig, "beginning graceful shutdown")
		cancel()
	}()

	if err := w.Run(ctx); err != nil {
		log.WithError(err).Fatal("filter worker exited with error")
	}
	return nil
}

func main() {
	var parser = flags.NewParser(Config, flags.Default)

	_, _ = parser.AddCommand("serve", "Serve as a review-filter worker", `
Serve a single shard of the review-filter worker cluster, until signaled to
exit (via SIGTERM or SIGINT).
`, &cmdServe{})

	if _, err := parser.Parse(); err != nil {
		os.Exit(1)
	}
}
