package main

import (
	"fmt"
	"log"
	"os"

	"github.com/segmentio/parquet-go"
)

// Event is the schema shared by the generated files, so prefetch state
// learned on one carries over to the other.
type Event struct {
	ID      int64   `parquet:"id"`
	Service string  `parquet:"service,dict"`
	Status  int32   `parquet:"status"`
	Latency float64 `parquet:"latency"`
}

const (
	rowGroups      = 4
	rowsPerGroup   = 1000
	generatedFiles = 2
)

var services = []string{"api", "auth", "billing", "search"}

func main() {
	for i := 0; i < generatedFiles; i++ {
		name := fmt.Sprintf("events-%d.parquet", i)
		if err := generate(name, int64(i*rowGroups*rowsPerGroup)); err != nil {
			log.Fatal(err)
		}
		log.Printf("Generated %s with %d row groups", name, rowGroups)
	}
}

func generate(name string, firstID int64) error {
	file, err := os.Create(name)
	if err != nil {
		return err
	}
	defer file.Close()

	writer := parquet.NewGenericWriter[Event](file)
	for rg := 0; rg < rowGroups; rg++ {
		events := make([]Event, rowsPerGroup)
		for j := range events {
			id := firstID + int64(rg*rowsPerGroup+j)
			events[j] = Event{
				ID:      id,
				Service: services[id%int64(len(services))],
				Status:  []int32{200, 200, 200, 404, 500}[id%5],
				Latency: float64(id%250) / 10,
			}
		}
		if _, err := writer.Write(events); err != nil {
			return err
		}
		if err := writer.Flush(); err != nil {
			return err
		}
	}
	return writer.Close()
}
