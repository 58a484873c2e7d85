// Package internal hosts the operator-only debug page: a read-only HTML
// view over the store plus the live delivery counters. It carries no auth,
// so it must only ever bind to localhost.
package internal

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strings"

	"github.com/dgraph-io/badger/v4"

	"parley/observability"
)

//go:embed inspect.html
var templatesFS embed.FS

type InspectRow struct {
	Key    string
	Kind   string
	Entity string
	Detail string
}

type PageData struct {
	Prefix string
	Items  []InspectRow
	Stats  observability.Stats
}

// StartDebugServer serves GET /inspect?prefix= on localhost. Secondary index
// rows are skipped; primary rows are rendered with their JSON value inline.
func StartDebugServer(log *slog.Logger, db *badger.DB, monitor *observability.Monitor, port int) {
	mux := http.NewServeMux()
	tmpl := template.Must(template.ParseFS(templatesFS, "inspect.html"))

	mux.HandleFunc("GET /inspect", func(w http.ResponseWriter, r *http.Request) {
		prefix := r.URL.Query().Get("prefix")
		if prefix == "" {
			prefix = "conv:"
		}

		data := PageData{
			Prefix: prefix,
			Stats:  monitor.GetLatest(),
		}

		_ = db.View(func(txn *badger.Txn) error {
			it := txn.NewIterator(badger.DefaultIteratorOptions)
			defer it.Close()
			for it.Seek([]byte(prefix)); it.ValidForPrefix([]byte(prefix)); it.Next() {
				item := it.Item()
				key := string(item.Key())
				if strings.HasPrefix(key, "idx:") {
					continue
				}
				_ = item.Value(func(val []byte) error {
					data.Items = append(data.Items, mapRow(key, val))
					return nil
				})
			}
			return nil
		})

		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_ = tmpl.Execute(w, data)
	})

	go func() {
		addr := fmt.Sprintf("localhost:%d", port)
		log.Info("Debug inspector listening", "addr", addr)
		if err := http.ListenAndServe(addr, mux); err != nil {
			log.Error("Debug inspector stopped", "error", err)
		}
	}()
}

func mapRow(key string, val []byte) InspectRow {
	parts := strings.SplitN(key, ":", 3)
	row := InspectRow{
		Key:    key,
		Kind:   parts[0],
		Entity: "--------",
		Detail: fmt.Sprintf("%d bytes", len(val)),
	}
	if len(parts) > 1 {
		row.Entity = short(parts[len(parts)-1])
	}
	if pretty := compactJSON(val); pretty != "" {
		row.Detail = pretty
	}
	return row
}

func compactJSON(val []byte) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, val); err != nil {
		return ""
	}
	return buf.String()
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
