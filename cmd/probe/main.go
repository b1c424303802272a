package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"dm-relay/client"
	"dm-relay/domain"

	"github.com/Netflix/go-env"
	"github.com/gookit/color"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
)

// Exit codes for the probe.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config defines the probe-side environment variables.
type Config struct {
	RelayURL       string        `env:"PROBE_RELAY_URL,default=ws://localhost:8080/ws"`
	SenderID       string        `env:"PROBE_SENDER_ID,required=true"`
	ReceiverID     string        `env:"PROBE_RECEIVER_ID,required=true"`
	ConversationID string        `env:"PROBE_CONVERSATION_ID,required=true"`
	Content        string        `env:"PROBE_CONTENT,default=probe ping"`
	Timeout        time.Duration `env:"PROBE_TIMEOUT,default=5s"`
	LogLevel       string        `env:"LOG_LEVEL,default=warn"`
}

type step struct {
	name   string
	ok     bool
	detail string
}

func main() {
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Probe error: %v\n", err)
	}
	os.Exit(code)
}

// run performs one full smoke pass against a live relay: two identities
// connect, one sends, the other must receive, then a mark-read must reach
// the sender. The summary table is the deliverable.
func run() (int, error) {
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithTimeout(ctx, config.Timeout)
	defer cancel()

	var steps []step

	sender, err := client.Dial(ctx, config.RelayURL, log)
	if err != nil {
		return exitRuntime, err
	}
	defer sender.Close()

	receiver, err := client.Dial(ctx, config.RelayURL, log)
	if err != nil {
		return exitRuntime, err
	}
	defer receiver.Close()

	received := make(chan domain.Message, 1)
	receiver.On(domain.EventReceiveMessage, func(data json.RawMessage) {
		var message domain.Message
		if json.Unmarshal(data, &message) == nil {
			received <- message
		}
	})
	readAck := make(chan domain.MessagesRead, 1)
	sender.On(domain.EventMessagesRead, func(data json.RawMessage) {
		var note domain.MessagesRead
		if json.Unmarshal(data, &note) == nil {
			readAck <- note
		}
	})

	steps = append(steps, joinStep("join sender", sender, config.SenderID))
	steps = append(steps, joinStep("join receiver", receiver, config.ReceiverID))

	result, err := sender.SendMessage(ctx, domain.SendPayload{
		SenderID:       config.SenderID,
		ReceiverID:     config.ReceiverID,
		Content:        config.Content,
		ConversationID: config.ConversationID,
	})
	switch {
	case err != nil:
		steps = append(steps, step{"send-message ack", false, err.Error()})
	case !result.Ok:
		steps = append(steps, step{"send-message ack", false, result.Error})
	default:
		steps = append(steps, step{"send-message ack", true, "ok:true"})
	}

	select {
	case message := <-received:
		steps = append(steps, step{"receive-message", true,
			fmt.Sprintf("id=%s content=%q", message.ID, message.Content)})
	case <-ctx.Done():
		steps = append(steps, step{"receive-message", false, "timeout"})
	}

	if err := receiver.MarkRead(domain.MarkReadPayload{
		SenderID:       config.ReceiverID,
		ConversationID: config.ConversationID,
	}); err != nil {
		steps = append(steps, step{"mark-read", false, err.Error()})
	} else {
		select {
		case note := <-readAck:
			steps = append(steps, step{"messages-read", true,
				fmt.Sprintf("reader=%s", note.ReaderID)})
		case <-ctx.Done():
			steps = append(steps, step{"messages-read", false, "timeout"})
		}
	}

	printSummary(steps)
	for _, s := range steps {
		if !s.ok {
			return exitRuntime, nil
		}
	}
	return exitOK, nil
}

func joinStep(name string, c *client.Client, userID string) step {
	if err := c.Join(userID); err != nil {
		return step{name, false, err.Error()}
	}
	return step{name, true, userID}
}

func printSummary(steps []step) {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Step", "Status", "Detail"})
	for _, s := range steps {
		status := color.Green.Sprint("OK")
		if !s.ok {
			status = color.Red.Sprint("FAIL")
		}
		table.Append([]string{s.name, status, s.detail})
	}
	table.Render()
}
