package searchdb

import (
	"fmt"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/keyword"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search"
	"github.com/blevesearch/bleve/v2/search/query"

	"github.com/levandor/ferret/config"
	"github.com/levandor/ferret/logger"
)

// IndexingBatchSize is the number of buffered documents per committed batch.
const IndexingBatchSize = 100

const defaultSearchLimit = 100

const (
	indexFieldPath        = "path"
	indexFieldName        = "name"
	indexFieldSize        = "size"
	indexFieldModified    = "modified"
	indexFieldCreated     = "created"
	indexFieldHash        = "hash"
	indexFieldMIMEType    = "mime_type"
	indexFieldCategory    = "category"
	indexFieldMagicHeader = "magic_header"
	indexFieldExtension   = "extension"
	indexFieldIndexedAt   = "indexed_at"
	indexFieldPreview     = "preview"
	indexFieldContent     = "content"
	indexFieldTables      = "tables"
	indexFieldColumns     = "columns"
	indexFieldJSONPaths   = "json_paths"
	indexFieldSheets      = "sheets"
	indexFieldError       = "error"
)

// structuredFields maps a structured query kind to its token field.
var structuredFields = map[StructuredKind]string{
	StructuredSQLTable:   indexFieldTables,
	StructuredColumnName: indexFieldColumns,
	StructuredJSONPath:   indexFieldJSONPaths,
	StructuredSheetName:  indexFieldSheets,
}

type BleveDB struct {
	indexPath string
	logger    logger.Logger
	index     bleve.Index
}

func New(logger logger.Logger, cfg *config.Config) (*BleveDB, error) {
	indexPath := cfg.GetIndexPath()

	index, err := bleve.New(indexPath, createIndexMapping())
	if err != nil {
		index, err = bleve.Open(indexPath)
		if err != nil {
			logger.Error("could not open index", "err", err.Error())
			return nil, err
		}
	}
	return &BleveDB{indexPath: indexPath, logger: logger, index: index}, nil
}

func createIndexMapping() mapping.IndexMapping {

	indexMapping := bleve.NewIndexMapping()
	docMapping := bleve.NewDocumentMapping()

	// Exact-match metadata fields
	for _, field := range []string{
		indexFieldPath, indexFieldHash, indexFieldMIMEType,
		indexFieldCategory, indexFieldMagicHeader, indexFieldExtension,
		indexFieldError,
	} {
		fieldMapping := bleve.NewTextFieldMapping()
		fieldMapping.Analyzer = keyword.Name
		docMapping.AddFieldMappingsAt(field, fieldMapping)
	}

	// Name is analyzed for partial matching
	nameFieldMapping := bleve.NewTextFieldMapping()
	nameFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt(indexFieldName, nameFieldMapping)

	// Preview is analyzed and stored so hits can carry a snippet
	previewFieldMapping := bleve.NewTextFieldMapping()
	previewFieldMapping.Analyzer = standard.Name
	docMapping.AddFieldMappingsAt(indexFieldPreview, previewFieldMapping)

	// Content is indexed for search but never stored
	contentFieldMapping := bleve.NewTextFieldMapping()
	contentFieldMapping.Analyzer = standard.Name
	contentFieldMapping.Store = false
	contentFieldMapping.Index = true
	docMapping.AddFieldMappingsAt(indexFieldContent, contentFieldMapping)

	// Structured token fields
	for _, field := range []string{
		indexFieldTables, indexFieldColumns, indexFieldJSONPaths, indexFieldSheets,
	} {
		fieldMapping := bleve.NewTextFieldMapping()
		fieldMapping.Analyzer = standard.Name
		docMapping.AddFieldMappingsAt(field, fieldMapping)
	}

	sizeFieldMapping := bleve.NewNumericFieldMapping()
	docMapping.AddFieldMappingsAt(indexFieldSize, sizeFieldMapping)

	modifiedFieldMapping := bleve.NewDateTimeFieldMapping()
	docMapping.AddFieldMappingsAt(indexFieldModified, modifiedFieldMapping)

	createdFieldMapping := bleve.NewDateTimeFieldMapping()
	docMapping.AddFieldMappingsAt(indexFieldCreated, createdFieldMapping)

	indexedAtFieldMapping := bleve.NewDateTimeFieldMapping()
	docMapping.AddFieldMappingsAt(indexFieldIndexedAt, indexedAtFieldMapping)

	indexMapping.AddDocumentMapping("_default", docMapping)

	return indexMapping
}

// BuildIndex buffers documents into batches and commits each batch atomically.
// Readers never observe a partially applied batch.
func (b *BleveDB) BuildIndex(documents []*Document) error {

	batch := b.index.NewBatch()

	for i, doc := range documents {

		if err := batch.Index(doc.Path, doc); err != nil {
			b.logger.Error("could not index document", "path", doc.Path, "err", err.Error())
			return fmt.Errorf("could not index document %s: %w", doc.Path, err)
		}

		// Execute batch when it reaches the batch size
		if (i+1)%IndexingBatchSize == 0 {
			if err := b.index.Batch(batch); err != nil {
				return err
			}
			batch = b.index.NewBatch()
		}
	}

	if batch.Size() > 0 {
		if err := b.index.Batch(batch); err != nil {
			b.logger.Error("could not commit index batch", "err", err.Error())
			return err
		}
	}

	return nil
}

func (b *BleveDB) DeleteDocuments(paths []string) error {
	batch := b.index.NewBatch()

	for i, path := range paths {
		batch.Delete(path)

		if (i+1)%IndexingBatchSize == 0 {
			if err := b.index.Batch(batch); err != nil {
				return err
			}
			batch = b.index.NewBatch()
		}
	}

	if batch.Size() > 0 {
		if err := b.index.Batch(batch); err != nil {
			b.logger.Error("could not delete documents", "err", err.Error())
			return err
		}
	}

	return nil
}

// Search executes a typed query. Ordering is descending score with ties
// broken by ascending path, so results are deterministic across runs.
func (b *BleveDB) Search(q *Query) (*Response, error) {
	start := time.Now()

	if err := q.Validate(); err != nil {
		return nil, err
	}

	searchQuery, limit := b.buildQuery(q)

	searchRequest := bleve.NewSearchRequestOptions(searchQuery, limit, 0, false)
	searchRequest.Fields = []string{
		indexFieldPath, indexFieldName, indexFieldSize,
		indexFieldMIMEType, indexFieldCategory, indexFieldPreview,
	}
	searchRequest.IncludeLocations = true
	searchRequest.SortBy([]string{"-_score", indexFieldPath})

	searchResult, err := b.index.Search(searchRequest)
	if err != nil {
		b.logger.Error("search failed", "err", err.Error())
		return nil, fmt.Errorf("search failed: %w", err)
	}

	results := make([]Result, len(searchResult.Hits))
	for i, hit := range searchResult.Hits {
		results[i] = hitToResult(hit)
	}

	return &Response{
		Results:    results,
		Total:      searchResult.Total,
		MaxScore:   searchResult.MaxScore,
		SearchTime: time.Since(start).String(),
	}, nil
}

func (b *BleveDB) buildQuery(q *Query) (query.Query, int) {
	switch {
	case q.FullText != nil:
		return b.buildFullTextQuery(q.FullText.Text), limitOrDefault(q.FullText.Limit)

	case q.Metadata != nil:
		return b.buildMetadataQuery(q.Metadata), defaultSearchLimit

	case q.Structured != nil:
		structuredQuery := bleve.NewMatchQuery(q.Structured.Text)
		structuredQuery.SetField(structuredFields[q.Structured.Kind])
		return structuredQuery, defaultSearchLimit

	default:
		// Combined: cheap metadata filters first bound the candidate set,
		// text scoring applies only within it
		conjunction := bleve.NewConjunctionQuery(
			b.buildMetadataQuery(&q.Combined.Metadata),
			b.buildFullTextQuery(q.Combined.FullText.Text),
		)
		return conjunction, limitOrDefault(q.Combined.FullText.Limit)
	}
}

func (b *BleveDB) buildFullTextQuery(text string) query.Query {

	const (
		boostForContent  = 3.0
		boostForName     = 2.0
		boostForPreview  = 2.0
		boostForTokens   = 1.5
		boostForPhrase   = 5.0
	)

	disjunctQuery := bleve.NewDisjunctionQuery()

	contentQuery := bleve.NewMatchQuery(text)
	contentQuery.SetField(indexFieldContent)
	contentQuery.SetBoost(boostForContent)
	disjunctQuery.AddQuery(contentQuery)

	nameQuery := bleve.NewMatchQuery(text)
	nameQuery.SetField(indexFieldName)
	nameQuery.SetBoost(boostForName)
	disjunctQuery.AddQuery(nameQuery)

	previewQuery := bleve.NewMatchQuery(text)
	previewQuery.SetField(indexFieldPreview)
	previewQuery.SetBoost(boostForPreview)
	disjunctQuery.AddQuery(previewQuery)

	phraseQuery := bleve.NewMatchPhraseQuery(text)
	phraseQuery.SetField(indexFieldContent)
	phraseQuery.SetBoost(boostForPhrase)
	disjunctQuery.AddQuery(phraseQuery)

	for _, field := range []string{indexFieldTables, indexFieldColumns, indexFieldJSONPaths, indexFieldSheets} {
		tokenQuery := bleve.NewMatchQuery(text)
		tokenQuery.SetField(field)
		tokenQuery.SetBoost(boostForTokens)
		disjunctQuery.AddQuery(tokenQuery)
	}

	return disjunctQuery
}

func (b *BleveDB) buildMetadataQuery(m *MetadataQuery) query.Query {
	conjunction := bleve.NewConjunctionQuery()

	if m.Category != "" {
		categoryQuery := bleve.NewTermQuery(m.Category)
		categoryQuery.SetField(indexFieldCategory)
		conjunction.AddQuery(categoryQuery)
	}

	if m.MIMEType != "" {
		mimeQuery := bleve.NewTermQuery(m.MIMEType)
		mimeQuery.SetField(indexFieldMIMEType)
		conjunction.AddQuery(mimeQuery)
	}

	if m.Extension != "" {
		extensionQuery := bleve.NewTermQuery(m.Extension)
		extensionQuery.SetField(indexFieldExtension)
		conjunction.AddQuery(extensionQuery)
	}

	if m.MinSize != nil || m.MaxSize != nil {
		var minSize, maxSize *float64
		if m.MinSize != nil {
			v := float64(*m.MinSize)
			minSize = &v
		}
		if m.MaxSize != nil {
			v := float64(*m.MaxSize)
			maxSize = &v
		}
		sizeQuery := bleve.NewNumericRangeQuery(minSize, maxSize)
		sizeQuery.SetField(indexFieldSize)
		conjunction.AddQuery(sizeQuery)
	}

	if len(conjunction.Conjuncts) == 0 {
		return bleve.NewMatchAllQuery()
	}

	return conjunction
}

// GetDocument looks up a single document by its path key.
func (b *BleveDB) GetDocument(path string) (*Result, bool, error) {
	docQuery := bleve.NewDocIDQuery([]string{path})

	searchRequest := bleve.NewSearchRequestOptions(docQuery, 1, 0, false)
	searchRequest.Fields = []string{
		indexFieldPath, indexFieldName, indexFieldSize,
		indexFieldMIMEType, indexFieldCategory, indexFieldPreview,
		indexFieldIndexedAt, indexFieldError,
	}

	searchResult, err := b.index.Search(searchRequest)
	if err != nil {
		return nil, false, fmt.Errorf("document lookup failed: %w", err)
	}

	if len(searchResult.Hits) == 0 {
		return nil, false, nil
	}

	result := hitToResult(searchResult.Hits[0])
	return &result, true, nil
}

func (b *BleveDB) GetDocCount() (uint64, error) {
	return b.index.DocCount()
}

func (b *BleveDB) Close() error {

	if b.index != nil {
		if err := b.index.Close(); err != nil {
			b.logger.Error("could not close search index", "err", err.Error())
			return err
		}
	}
	return nil
}

func hitToResult(hit *search.DocumentMatch) Result {
	result := Result{
		Path:  hit.ID,
		Score: hit.Score,
	}

	if name, ok := hit.Fields[indexFieldName].(string); ok {
		result.Name = name
	}
	if size, ok := hit.Fields[indexFieldSize].(float64); ok {
		result.Size = int64(size)
	}
	if mimeType, ok := hit.Fields[indexFieldMIMEType].(string); ok {
		result.MIMEType = mimeType
	}
	if category, ok := hit.Fields[indexFieldCategory].(string); ok {
		result.Category = category
	}
	if preview, ok := hit.Fields[indexFieldPreview].(string); ok {
		result.Snippet = preview
	}
	if indexedAt, ok := hit.Fields[indexFieldIndexedAt].(string); ok {
		result.IndexedAt = indexedAt
	}
	if extractionError, ok := hit.Fields[indexFieldError].(string); ok {
		result.Error = extractionError
	}
	result.Location = structuredLocation(hit.Locations)

	return result
}

// structuredLocation reports which structured token matched, e.g.
// "tables:users", so callers can see where inside the structure a hit landed.
func structuredLocation(locations search.FieldTermLocationMap) string {
	for _, field := range []string{indexFieldTables, indexFieldColumns, indexFieldJSONPaths, indexFieldSheets} {
		terms, ok := locations[field]
		if !ok {
			continue
		}
		for term := range terms {
			return field + ":" + term
		}
	}
	return ""
}

func limitOrDefault(limit int) int {
	if limit <= 0 {
		return defaultSearchLimit
	}
	return limit
}
