package repositories

import (
	"context"
	"log/slog"

	"github.com/abadojack/whatlanggo"
	"github.com/blugelabs/bluge"
	"github.com/google/uuid"

	"parley/domain"
)

type ISearchIndex interface {
	Index(message domain.Message) error
	Remove(id uuid.UUID) error
	// Search returns the ids of messages in one conversation matching the
	// given terms, most relevant first.
	Search(ctx context.Context, conversation domain.ConversationID, terms string, limit int) ([]uuid.UUID, error)
}

// SearchIndex maintains a Bluge full-text index over message content. The
// writer is opened once in main and injected; it owns the index directory.
type SearchIndex struct {
	writer *bluge.Writer
	log    *slog.Logger
}

func NewSearchIndex(writer *bluge.Writer, log *slog.Logger) *SearchIndex {
	return &SearchIndex{writer: writer, log: log}
}

func (s *SearchIndex) Index(message domain.Message) error {
	if message.Content == nil || *message.Content == "" {
		return nil
	}
	content := *message.Content

	doc := bluge.NewDocument(message.ID.String())
	doc.AddField(bluge.NewKeywordField("conversation", string(message.ConversationID)).StoreValue())
	doc.AddField(bluge.NewTextField("content", content))
	doc.AddField(bluge.NewKeywordField("sender", message.SenderID))
	doc.AddField(bluge.NewDateTimeField("created", message.CreatedAt))

	// Tag the detected language so clients can filter transcripts later.
	info := whatlanggo.Detect(content)
	if info.IsReliable() {
		doc.AddField(bluge.NewKeywordField("lang", info.Lang.Iso6391()))
	}

	return s.writer.Update(doc.ID(), doc)
}

func (s *SearchIndex) Remove(id uuid.UUID) error {
	return s.writer.Delete(bluge.Identifier(id.String()))
}

func (s *SearchIndex) Search(ctx context.Context, conversation domain.ConversationID, terms string, limit int) ([]uuid.UUID, error) {
	reader, err := s.writer.Reader()
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := reader.Close(); err != nil {
			s.log.Warn("Failed to close index reader", "error", err)
		}
	}()

	query := bluge.NewBooleanQuery().
		AddMust(bluge.NewMatchQuery(terms).SetField("content")).
		AddMust(bluge.NewTermQuery(string(conversation)).SetField("conversation"))

	iterator, err := reader.Search(ctx, bluge.NewTopNSearch(limit, query))
	if err != nil {
		return nil, err
	}

	var ids []uuid.UUID
	for {
		match, err := iterator.Next()
		if err != nil {
			return nil, err
		}
		if match == nil {
			break
		}
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			if field == "_id" {
				if id, err := uuid.Parse(string(value)); err == nil {
					ids = append(ids, id)
				}
			}
			return true
		})
		if err != nil {
			return nil, err
		}
	}
	return ids, nil
}
