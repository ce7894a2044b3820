package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/okian/kaushal/internal/adapters/notify"
	"github.com/okian/kaushal/internal/client/poll"
	"github.com/okian/kaushal/internal/domain/types"
)

var watchFlags struct {
	clientFlags
	broker string
	prefix string
	codec  string
}

var watchCmd = &cobra.Command{
	Use:   "watch <assessment-id>",
	Short: "Follow the status of one assessment",
	Long: `Follow one assessment until it completes or fails. With --mqtt the
status pushes from the broker are printed as they arrive. Polling decides
the result in either case.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return watch(cmd, args[0])
	},
}

func init() {
	f := &watchFlags
	f.bind(watchCmd)
	watchCmd.Flags().StringVar(&f.broker, "mqtt", "", "MQTT broker host:port for status pushes")
	watchCmd.Flags().StringVar(&f.prefix, "mqtt-prefix", "kaushal", "MQTT topic prefix")
	watchCmd.Flags().StringVar(&f.codec, "mqtt-codec", "json", "MQTT payload codec: json or msgpack")
}

func watch(cmd *cobra.Command, id string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()
	f := &watchFlags
	out := cmd.OutOrStdout()

	if f.broker != "" {
		pushes := make(chan notify.Event, 1)
		go func() {
			err := notify.Subscribe(ctx, notify.MQTTConfig{
				Broker:      f.broker,
				ClientID:    fmt.Sprintf("kaushal-watch-%d", time.Now().UnixNano()),
				TopicPrefix: f.prefix,
				Codec:       f.codec,
			}, id, func(ev notify.Event) {
				select {
				case pushes <- ev:
				default:
				}
			})
			if err != nil {
				fmt.Fprintf(cmd.ErrOrStderr(), "mqtt: %v; polling only\n", err)
			}
		}()
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case ev := <-pushes:
					fmt.Fprintf(out, "  push: %s %s\n", ev.Status, ev.Reason)
				}
			}
		}()
	}

	final, err := poll.New(f.client(), poll.WithInterval(f.interval)).Watch(ctx, id, func(a types.Assessment) {
		fmt.Fprintf(out, "  status: %s\n", a.Status)
	})
	if err != nil {
		if final.ID != "" {
			printResult(cmd, final)
		}
		return err
	}
	printResult(cmd, final)
	return nil
}
