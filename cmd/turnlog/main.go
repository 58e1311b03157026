// Command turnlog tails the conversation-turn topics and prints one line per
// turn.
package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"sort"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
	"github.com/urfave/cli/v3"

	"ai-doll-conversation-service/internal/models"
)

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.Kitchen})

	var (
		brokers       string
		topicTurns    string
		topicFailures string
		since         time.Duration
		childID       string
	)

	cmd := &cli.Command{
		Name:  "turnlog",
		Usage: "Print conversation turn events from Kafka",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "brokers",
				Usage:       "Kafka brokers (comma-separated)",
				Value:       "localhost:9092",
				Sources:     cli.EnvVars("KAFKA_BROKERS"),
				Destination: &brokers,
			},
			&cli.StringFlag{
				Name:        "topic-turns",
				Usage:       "Completed turn topic",
				Value:       models.EventTypeTurnCompleted,
				Sources:     cli.EnvVars("KAFKA_TOPIC_TURNS"),
				Destination: &topicTurns,
			},
			&cli.StringFlag{
				Name:        "topic-failures",
				Usage:       "Failed turn topic",
				Value:       models.EventTypeTurnFailed,
				Sources:     cli.EnvVars("KAFKA_TOPIC_FAILURES"),
				Destination: &topicFailures,
			},
			&cli.DurationFlag{
				Name:        "since",
				Usage:       "How far back to start reading",
				Value:       time.Hour,
				Destination: &since,
			},
			&cli.StringFlag{
				Name:        "child",
				Usage:       "Only show turns of this child",
				Destination: &childID,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			list := strings.Split(brokers, ",")
			log.Info().Strs("brokers", list).Str("turns", topicTurns).Str("failures", topicFailures).Msg("Tailing turn events")

			var wg sync.WaitGroup
			for _, topic := range []string{topicTurns, topicFailures} {
				wg.Add(1)
				go func(topic string) {
					defer wg.Done()
					consume(ctx, list, topic, time.Now().Add(-since), childID)
				}(topic)
			}
			wg.Wait()
			return nil
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		log.Fatal().Err(err).Msg("turnlog failed")
	}
}

func consume(ctx context.Context, brokers []string, topic string, from time.Time, childID string) {
	partitions, err := lookupPartitions(ctx, brokers, topic)
	if err != nil {
		log.Error().Err(err).Str("topic", topic).Msg("Could not list partitions")
		return
	}

	var wg sync.WaitGroup
	for _, rc := range readerConfigs(brokers, topic, partitions) {
		wg.Add(1)
		go func(rc kafka.ReaderConfig) {
			defer wg.Done()
			consumePartition(ctx, rc, from, childID)
		}(rc)
	}
	wg.Wait()
}

func lookupPartitions(ctx context.Context, brokers []string, topic string) ([]kafka.Partition, error) {
	var lastErr error
	for _, broker := range brokers {
		conn, err := kafka.DialContext(ctx, "tcp", broker)
		if err != nil {
			lastErr = err
			continue
		}
		partitions, err := conn.ReadPartitions(topic)
		conn.Close()
		if err != nil {
			lastErr = err
			continue
		}
		return partitions, nil
	}
	return nil, goerr.Wrap(lastErr, "no broker answered", goerr.V("topic", topic))
}

// readerConfigs builds one partition reader per partition of topic. There is
// no consumer group; this is a viewer, not a processor.
func readerConfigs(brokers []string, topic string, partitions []kafka.Partition) []kafka.ReaderConfig {
	ids := make([]int, 0, len(partitions))
	for _, p := range partitions {
		if p.Topic != "" && p.Topic != topic {
			continue
		}
		ids = append(ids, p.ID)
	}
	sort.Ints(ids)

	configs := make([]kafka.ReaderConfig, 0, len(ids))
	for _, id := range ids {
		configs = append(configs, kafka.ReaderConfig{
			Brokers:   brokers,
			Topic:     topic,
			Partition: id,
			MinBytes:  1,
			MaxBytes:  10e6,
		})
	}
	return configs
}

func consumePartition(ctx context.Context, rc kafka.ReaderConfig, from time.Time, childID string) {
	reader := kafka.NewReader(rc)
	defer reader.Close()

	logger := log.With().Str("topic", rc.Topic).Int("partition", rc.Partition).Logger()
	if err := reader.SetOffsetAt(ctx, from); err != nil {
		logger.Warn().Err(err).Msg("Could not seek, reading from the current offset")
	}

	for {
		msg, err := reader.ReadMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			logger.Error().Err(err).Msg("Kafka read error")
			time.Sleep(time.Second)
			continue
		}

		var event models.TurnEvent
		if err := json.Unmarshal(msg.Value, &event); err != nil {
			logger.Warn().Err(err).Msg("Skipping malformed event")
			continue
		}
		if childID != "" && event.ChildID != childID {
			continue
		}
		printTurn(event)
	}
}

func printTurn(e models.TurnEvent) {
	entry := log.Info()
	if e.EventType == models.EventTypeTurnFailed {
		entry = log.Warn().Str("capability", e.Capability)
	}
	entry.
		Str("turnId", e.TurnID).
		Str("childId", e.ChildID).
		Str("status", e.Status).
		Str("stage", e.Stage).
		Int64("latencyMs", e.LatencyMs).
		Str("child", truncate(e.UserText, 60)).
		Str("doll", truncate(e.AIText, 60)).
		Msg(e.EventType)
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
