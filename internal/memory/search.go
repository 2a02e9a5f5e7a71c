package memory

import (
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"

	"github.com/ChamsBouzaiene/dodo-agentcore/internal/engine"
)

// Index provides keyword search over conversation records. It mirrors the
// code-chunk index's corrupted-on-open recovery: an index that fails to
// open with anything other than ErrorIndexPathDoesNotExist is assumed
// corrupted and is recreated from scratch rather than left unusable.
type Index struct {
	index bleve.Index
	path  string
}

// OpenIndex opens or creates a bleve index at path.
func OpenIndex(path string) (*Index, error) {
	idx, err := bleve.Open(path)
	if err == bleve.ErrorIndexPathDoesNotExist {
		idx, err = bleve.New(path, buildConversationMapping())
		if err != nil {
			return nil, fmt.Errorf("creating conversation index: %w", err)
		}
		log.Println("conversation search index created")
	} else if err != nil {
		log.Printf("conversation search index appears corrupted (%v), recreating", err)
		if idx != nil {
			idx.Close()
		}
		if rmErr := os.RemoveAll(path); rmErr != nil {
			log.Printf("failed to remove corrupted index directory: %v", rmErr)
		}
		idx, err = bleve.New(path, buildConversationMapping())
		if err != nil {
			return nil, fmt.Errorf("recreating conversation index: %w", err)
		}
		log.Println("conversation search index recreated")
	}
	return &Index{index: idx, path: path}, nil
}

func buildConversationMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	doc := bleve.NewDocumentMapping()

	idField := bleve.NewTextFieldMapping()
	idField.Analyzer = keyword.Name
	idField.Store = true
	idField.Index = true
	doc.AddFieldMappingsAt("id", idField)

	tagsField := bleve.NewTextFieldMapping()
	tagsField.Analyzer = keyword.Name
	tagsField.Store = false
	tagsField.Index = true
	doc.AddFieldMappingsAt("tags", tagsField)

	titleField := bleve.NewTextFieldMapping()
	titleField.Analyzer = standard.Name
	titleField.Store = false
	titleField.Index = true
	doc.AddFieldMappingsAt("title", titleField)

	summaryField := bleve.NewTextFieldMapping()
	summaryField.Analyzer = standard.Name
	summaryField.Store = false
	summaryField.Index = true
	doc.AddFieldMappingsAt("summary", summaryField)

	textField := bleve.NewTextFieldMapping()
	textField.Analyzer = standard.Name
	textField.Store = false
	textField.Index = true
	doc.AddFieldMappingsAt("text", textField)

	indexMapping.DefaultMapping = doc
	return indexMapping
}

// IndexRecord indexes or reindexes a conversation record.
func (idx *Index) IndexRecord(rec engine.ConversationRecord) error {
	var text strings.Builder
	for _, m := range rec.Messages {
		text.WriteString(m.ContentAsText())
		text.WriteString("\n")
	}
	doc := map[string]interface{}{
		"id":      rec.ID,
		"tags":    strings.Join(rec.Tags, " "),
		"title":   rec.Title,
		"summary": rec.Summary,
		"text":    text.String(),
	}
	return idx.index.Index(rec.ID, doc)
}

// Delete removes a record from the index.
func (idx *Index) Delete(id string) error {
	return idx.index.Delete(id)
}

// Search returns the IDs of the top-scoring conversations matching query.
func (idx *Index) Search(query string, limit int) ([]string, error) {
	textQuery := bleve.NewMatchQuery(query)
	textQuery.SetField("text")
	titleQuery := bleve.NewMatchQuery(query)
	titleQuery.SetField("title")
	summaryQuery := bleve.NewMatchQuery(query)
	summaryQuery.SetField("summary")

	combined := bleve.NewDisjunctionQuery(textQuery, titleQuery, summaryQuery)

	req := bleve.NewSearchRequest(combined)
	req.Size = limit

	result, err := idx.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("conversation search failed: %w", err)
	}

	ids := make([]string, 0, len(result.Hits))
	for _, hit := range result.Hits {
		ids = append(ids, hit.ID)
	}
	return ids, nil
}

func (idx *Index) Close() error {
	return idx.index.Close()
}
