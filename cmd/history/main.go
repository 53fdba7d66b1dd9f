package main

import (
	"chat-relay/domain"
	"chat-relay/repositories"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/mama165/sdk-go/database"
	"github.com/mama165/sdk-go/logs"
	"github.com/olekukonko/tablewriter"
)

func main() {
	dbPath := flag.String("db", database.DefaultPath, "Path to badger DB")
	target := flag.String("target", "", "Only show records sent to this user, group or ALL")
	limit := flag.Int("limit", 0, "Show only the latest N records (0 for all)")
	flag.Parse()

	db, err := openDB(*dbPath)
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	repo := repositories.NewHistoryRepository(db, logs.GetLoggerFromLevel(slog.LevelError))
	var max *int
	if *limit > 0 {
		max = limit
	}

	var records []domain.HistoryRecord
	if *target != "" {
		records, err = repo.ListFor(*target, max)
	} else {
		records, err = repo.List(max)
	}
	if err != nil {
		log.Fatal(err)
	}
	render(os.Stdout, records)
}

func render(w io.Writer, records []domain.HistoryRecord) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Time", "Kind", "Sender", "Target", "Content", "Audio", "Mime"})
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

	for _, r := range records {
		table.Append([]string{
			r.At.Format("2006-01-02 15:04:05.000"),
			string(r.Kind),
			r.Sender,
			r.Target,
			r.Content,
			r.AudioFile,
			r.MimeType,
		})
	}
	table.Render()
}

// openDB opens the history read-only so it can be inspected while the relay runs.
func openDB(path string) (*badger.DB, error) {
	opts := badger.DefaultOptions(path).
		WithReadOnly(true).
		WithLogger(nil).
		WithBypassLockGuard(true)

	db, err := badger.Open(opts)
	if err != nil {
		// An unclean shutdown leaves a log that only a writable open can truncate.
		if strings.Contains(err.Error(), "Log truncate required") {
			repairOpts := badger.DefaultOptions(path).
				WithLogger(nil).WithBypassLockGuard(true)

			db, err = badger.Open(repairOpts)
			if err != nil {
				return nil, fmt.Errorf("repair failed: %w", err)
			}
			_ = db.Close()
			return badger.Open(opts)
		}
		return nil, err
	}
	return db, nil
}
