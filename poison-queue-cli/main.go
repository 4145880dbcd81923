package main

import (
	"context"
	"fmt"
	"os"

	"github.com/ThreeDotsLabs/go-event-driven/common/log"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"

	"ticketing/pubsub"
)

func newHandler(c *cli.Context) (*Handler, func() error) {
	rdb := pubsub.NewRedisClient(c.String("redis-addr"))
	publisher := pubsub.NewRedisPublisher(rdb, log.NewWatermill(log.FromContext(context.Background())))

	return NewHandler(rdb, publisher), rdb.Close
}

func messageIDArg(c *cli.Context) (string, error) {
	id := c.Args().First()
	if id == "" {
		return "", cli.Exit("message_id is required", 1)
	}
	return id, nil
}

func main() {
	log.Init(logrus.WarnLevel)

	app := &cli.App{
		Name:  "poison-queue-cli",
		Usage: "Manage the Poison Queue",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "redis-addr",
				EnvVars: []string{"REDIS_ADDR"},
				Value:   "localhost:6379",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "preview",
				Usage: "preview messages",
				Action: func(c *cli.Context) error {
					h, closeFn := newHandler(c)
					defer closeFn()

					messages, err := h.Preview(c.Context)
					if err != nil {
						return err
					}

					for _, m := range messages {
						fmt.Printf("%v\t%v\t%v\t%v\n", m.ID, m.Topic, m.Handler, m.Reason)
					}

					return nil
				},
			},
			{
				Name:      "remove",
				ArgsUsage: "<message_id>",
				Usage:     "remove message",
				Action: func(c *cli.Context) error {
					id, err := messageIDArg(c)
					if err != nil {
						return err
					}

					h, closeFn := newHandler(c)
					defer closeFn()

					return h.Remove(c.Context, id)
				},
			},
			{
				Name:      "requeue",
				ArgsUsage: "<message_id>",
				Usage:     "publish message back to its source topic, only the handler that failed it processes it again",
				Action: func(c *cli.Context) error {
					id, err := messageIDArg(c)
					if err != nil {
						return err
					}

					h, closeFn := newHandler(c)
					defer closeFn()

					return h.Requeue(c.Context, id)
				},
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		logrus.Fatal(err)
	}
}
