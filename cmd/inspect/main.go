// Inspect dumps the contents of a parley Badger store as a table, one row
// per record, for debugging a stopped server.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/dgraph-io/badger/v4"
	"github.com/olekukonko/tablewriter"

	"parley/domain"
)

func main() {
	dbPath := flag.String("db", "/tmp/parley/badger", "Path to badger DB")
	prefix := flag.String("prefix", "conv:", "Prefix to scan (user:, conv:, member:, memberof:, msg:)")
	flag.Parse()

	db, err := badger.Open(badger.DefaultOptions(*dbPath).
		WithReadOnly(true).
		WithLoggingLevel(badger.ERROR))
	if err != nil {
		log.Fatal("Error while opening Badger: ", err)
	}
	defer db.Close()

	table := tablewriter.NewWriter(os.Stdout)
	table.SetHeader([]string{"Key", "Type", "Timestamp", "Entity ID", "Detail"})
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

	err = db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		prefixBytes := []byte(*prefix)
		for it.Seek(prefixBytes); it.ValidForPrefix(prefixBytes); it.Next() {
			item := it.Item()
			key := string(item.Key())

			// Secondary indexes hold bare ids, nothing worth a row
			if strings.HasPrefix(key, "idx:") {
				continue
			}

			err := item.Value(func(v []byte) error {
				table.Append(describe(key, v))
				return nil
			})
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		log.Fatal("Error while scanning: ", err)
	}

	table.Render()
}

// describe renders one record according to its key space. Unmarshal
// failures become a row too; a corrupt record is exactly what this tool
// exists to find.
func describe(key string, value []byte) []string {
	switch {
	case strings.HasPrefix(key, "user:"):
		var user domain.User
		if err := json.Unmarshal(value, &user); err != nil {
			return corrupt(key, err)
		}
		detail := fmt.Sprintf("%s <%s> online=%t devices=%d",
			user.Username, user.Email, user.Online, user.DevicesOnline)
		return []string{key, "USER", user.CreatedAt.Format("15:04:05"), short(user.ID), detail}

	case strings.HasPrefix(key, "conv:"):
		var conv domain.Conversation
		if err := json.Unmarshal(value, &conv); err != nil {
			return corrupt(key, err)
		}
		name := "-"
		if conv.Name != nil {
			name = *conv.Name
		}
		detail := fmt.Sprintf("%s disappearing=%t", name, conv.DisappearingMode)
		return []string{key, strings.ToUpper(conv.Kind.String()),
			conv.LastActivity.Format("15:04:05"), short(string(conv.ID)), detail}

	case strings.HasPrefix(key, "member:"), strings.HasPrefix(key, "memberof:"):
		var membership domain.Membership
		if err := json.Unmarshal(value, &membership); err != nil {
			return corrupt(key, err)
		}
		detail := fmt.Sprintf("%s admin=%t", membership.Status, membership.Admin)
		return []string{key, "MEMBER", membership.LastSeen.Format("15:04:05"),
			short(membership.UserID), detail}

	case strings.HasPrefix(key, "msg:"):
		var message domain.Message
		if err := json.Unmarshal(value, &message); err != nil {
			return corrupt(key, err)
		}
		detail := "<File Sent>"
		if message.Content != nil {
			detail = *message.Content
		}
		if message.Disappearing {
			detail = "[disappearing] " + detail
		}
		return []string{key, "MESSAGE", message.CreatedAt.Format("15:04:05"),
			short(message.ID.String()), detail}

	default:
		return []string{key, "RAW", "", "", fmt.Sprintf("%d bytes", len(value))}
	}
}

func corrupt(key string, err error) []string {
	return []string{key, "CORRUPT", "", "", err.Error()}
}

func short(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
