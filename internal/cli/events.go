package cli

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/spf13/cobra"

	"github.com/shaiso/Refinery/internal/mq"
)

// NewEventsCmd создаёт команду чтения событий проектов и заданий.
func NewEventsCmd(appFn func() *App) *cobra.Command {
	var queue string
	var count int

	cmd := &cobra.Command{
		Use:   "events [PATTERN...]",
		Short: "Print project and job events from the message broker",
		Long: `Print project and job events from the message broker.

Patterns use topic syntax: "*" matches one word, "#" any number of
words. Without patterns every event is printed. Without --queue a
temporary queue is used and events published while the command is not
running are lost.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			app := appFn()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			conn, err := app.AMQP(ctx)
			if err != nil {
				return err
			}

			name, err := mq.DeclareSubscription(ctx, conn, queue, args...)
			if err != nil {
				return err
			}
			app.Logger.Info("subscribed", "queue", name, "patterns", args)

			var seen atomic.Int64
			consumer := mq.NewConsumer(conn, app.Logger, mq.ConsumerConfig{
				Queue: name,
				Handler: func(_ context.Context, msg *mq.Message) error {
					// Durable очередь могла быть привязана раньше с другими шаблонами.
					if !matchesAny(args, msg.Type) {
						return nil
					}
					printEvent(app.Out, msg)
					if count > 0 && seen.Add(1) >= int64(count) {
						cancel()
					}
					return nil
				},
			})

			if err := consumer.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&queue, "queue", "", "Durable queue name (default: temporary queue)")
	cmd.Flags().IntVar(&count, "count", 0, "Exit after N events (0 for no limit)")

	return cmd
}

// printEvent печатает событие строкой "<время> <тип> <payload>" или JSON.
func printEvent(out *Output, msg *mq.Message) {
	if out.JSONMode() {
		out.JSON(msg)
		return
	}
	fmt.Fprintf(out.Writer(), "%s %s %s\n", msg.Timestamp.Local().Format(time.RFC3339), msg.Type, msg.Payload)
}

// matchesAny проверяет ключ по шаблонам; пустой список пропускает всё.
func matchesAny(patterns []string, key mq.RoutingKey) bool {
	if len(patterns) == 0 {
		return true
	}
	for _, p := range patterns {
		if mq.MatchTopic(p, key) {
			return true
		}
	}
	return false
}
