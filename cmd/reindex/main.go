package main

import (
	"flag"
	"fmt"
	"log"
	"sort"

	"eventcam/internal/repository/sqlite"
)

func main() {
	eventsDir := flag.String("events", "events", "Directory containing clips and images")
	dbPath := flag.String("db", "data/events.db", "Database path")
	reset := flag.Bool("clear", false, "Drop existing index rows first")
	flag.Parse()

	fmt.Printf("Indexing events from %s into %s\n", *eventsDir, *dbPath)

	db, err := sqlite.New(*dbPath)
	if err != nil {
		log.Fatalf("Failed to open database: %v", err)
	}
	defer db.Close()
	repo := sqlite.NewEventRepository(db)

	events, skipped, err := scanEvents(*eventsDir)
	if err != nil {
		log.Fatalf("Failed to read events directory: %v", err)
	}
	for _, name := range skipped {
		log.Printf("⚠️  Skipping %s", name)
	}

	if *reset {
		if err := repo.DeleteAll(); err != nil {
			log.Fatalf("Failed to clear index: %v", err)
		}
	}

	if len(events) == 0 {
		fmt.Println("No events found to index")
		return
	}

	fmt.Printf("Inserting %d events into database...\n", len(events))
	n, err := repo.InsertBatch(events)
	if err != nil {
		log.Fatalf("Failed to insert events: %v", err)
	}
	fmt.Printf("✅ Indexed %d events\n", n)
	if len(skipped) > 0 {
		fmt.Printf("⚠️  Skipped %d files (invalid format or errors)\n", len(skipped))
	}

	stats, err := repo.GetStats()
	if err != nil {
		return
	}
	fmt.Printf("\n📊 Database Statistics:\n")
	fmt.Printf("   Total events: %d\n", stats.TotalEvents)
	fmt.Printf("   Total size: %d bytes\n", stats.TotalSizeBytes)
	fmt.Printf("   Per label:\n")

	labels := make([]string, 0, len(stats.PerLabel))
	for label := range stats.PerLabel {
		labels = append(labels, label)
	}
	sort.Strings(labels)
	for _, label := range labels {
		fmt.Printf("      - %s: %d\n", label, stats.PerLabel[label])
	}
}
