// Viewer is a read-only inspection tool: it opens the message store,
// replays a room's history, and prints the rebuilt analytics alongside
// the most recent messages. Safe to run while the server holds the
// database lock.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/gookit/color"
	"github.com/joho/godotenv"
	"github.com/olekukonko/tablewriter"

	"chat-intel/analytics"
	"chat-intel/domain"
	"chat-intel/internal"
	"chat-intel/repositories"
)

func main() {
	// 1. Load config
	_ = godotenv.Load()
	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		log.Fatalf("Config error: %v", err)
	}

	room := flag.String("room", "", "Room to inspect")
	tail := flag.Int("tail", 10, "Number of recent messages to print")
	flag.Parse()
	if *room == "" {
		log.Fatal("Missing -room flag")
	}

	// 2. Open Badger in Read-Only mode
	// Note: BypassLockGuard allows opening if another process (the server) holds the lock
	opts := badger.DefaultOptions(config.BadgerFilepath).
		WithReadOnly(true).
		WithBypassLockGuard(true).
		WithLoggingLevel(badger.WARNING)

	db, err := badger.Open(opts)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()

	// 3. Replay the room and rebuild its analytics
	repository := repositories.NewMessageRepository(db, internal.GetLoggerFromString("WARN"))

	var history []domain.AnnotatedMessage
	err = repository.Replay(*room, func(msg domain.AnnotatedMessage) error {
		history = append(history, msg)
		return nil
	})
	if err != nil {
		log.Fatalf("Replay failed: %v", err)
	}

	aggregator := analytics.NewAggregator(*room, config.TopEntities)
	aggregator.Rebuild(history)
	view := aggregator.Snapshot()

	header := fmt.Sprintf(" Room %q — %d messages ", *room, view.MessageCount)
	fmt.Println(color.New(color.BgBlack, color.FgGreen).Render(header))

	printDistribution("Emotions", view.EmotionDistribution)
	printDistribution("Sentiments", view.SentimentDistribution)
	printTopEntities(view.TopEntities)
	printRecent(history, *tail)
}

func printDistribution(title string, dist map[string]int) {
	fmt.Println(color.Bold.Render(title))
	table := newTable([]string{"Label", "Count"})
	for label, count := range dist {
		table.Append([]string{label, fmt.Sprintf("%d", count)})
	}
	table.Render()
	fmt.Println()
}

func printTopEntities(entities []domain.EntityCount) {
	fmt.Println(color.Bold.Render("Top entities"))
	table := newTable([]string{"Entity", "Count"})
	for _, e := range entities {
		table.Append([]string{e.Entity, fmt.Sprintf("%d", e.Count)})
	}
	table.Render()
	fmt.Println()
}

func printRecent(history []domain.AnnotatedMessage, tail int) {
	if tail <= 0 || len(history) == 0 {
		return
	}
	if tail > len(history) {
		tail = len(history)
	}

	fmt.Println(color.Bold.Render("Recent messages"))
	table := newTable([]string{"Seq", "At", "Sender", "Emotion", "Text"})
	for _, msg := range history[len(history)-tail:] {
		emotion := msg.Emotion
		if msg.Degraded {
			emotion = color.FgYellow.Render(emotion)
		}
		table.Append([]string{
			fmt.Sprintf("%d", msg.Sequence),
			msg.At.Format("15:04:05"),
			msg.Sender,
			emotion,
			msg.Text,
		})
	}
	table.Render()
}

func newTable(headers []string) *tablewriter.Table {
	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader(headers)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetCenterSeparator("")
	table.SetColumnSeparator("")
	table.SetRowSeparator("")
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetTablePadding("\t")

	return table
}
