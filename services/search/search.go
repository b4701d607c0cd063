package search

import (
	"fmt"
	"os"

	"github.com/levandor/ferret/db/searchdb"
	"github.com/levandor/ferret/detect"
	"github.com/levandor/ferret/extract"
	"github.com/levandor/ferret/logger"
)

// Service plans queries against the search database and serves on-demand
// deep extraction. It never writes to the index.
type Service struct {
	logger   logger.Logger
	db       searchdb.DB
	registry *extract.Registry
}

func New(logger logger.Logger, db searchdb.DB, registry *extract.Registry) *Service {
	return &Service{
		logger:   logger,
		db:       db,
		registry: registry,
	}
}

// Search validates the query union and executes it. Malformed queries are
// rejected before touching the index.
func (s *Service) Search(query *searchdb.Query) (*searchdb.Response, error) {
	if err := query.Validate(); err != nil {
		return nil, err
	}

	response, err := s.db.Search(query)
	if err != nil {
		s.logger.Error("search failed", "err", err.Error())
		return nil, err
	}

	s.logger.Info("search completed", "total", response.Total, "took", response.SearchTime)
	return response, nil
}

// ExtractDeep returns the full content of one file. It always reads the live
// file rather than the indexed summary, re-classifying it first, so the
// result reflects the file as it is now even if the index is stale.
func (s *Service) ExtractDeep(path string) (string, error) {
	if _, err := os.Stat(path); err != nil {
		return "", fmt.Errorf("cannot extract %s: %w", path, err)
	}

	header, err := detect.ReadHeader(path)
	if err != nil {
		return "", fmt.Errorf("cannot extract %s: %w", path, err)
	}

	detected := detect.Classify(header, path)

	content, err := s.registry.Deep(path, detected.Category, detected.MIMEType)
	if err != nil {
		s.logger.Warn("deep extraction failed", "path", path, "err", err.Error())
		return "", err
	}

	return content, nil
}
