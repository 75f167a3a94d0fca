package store

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/arkilian/nanostore/internal/engine"
	storeerrors "github.com/arkilian/nanostore/internal/errors"
	"github.com/arkilian/nanostore/internal/hydrate"
	"github.com/arkilian/nanostore/internal/query"
	"github.com/arkilian/nanostore/pkg/types"
)

// SearchResult holds the outcome of a search. Keys is filled for
// query.ReturnKeys, Objects for query.ReturnObjects.
type SearchResult struct {
	Keys    []string
	Objects []types.Document
}

func (s *Store) translator() *query.Translator {
	return query.NewTranslator(s.indexed...)
}

// record feeds the attribute usage of a search into the statistics the
// index policy reads.
func (s *Store) record(sr *query.Search, st query.Statement) {
	match := sr.Match.String()
	if len(sr.Expressions) > 0 {
		match = "expression"
	}
	for _, attr := range st.Attributes {
		s.stats.RecordFilter(attr, match)
	}
	for _, d := range sr.SortDescriptors {
		s.stats.RecordSort(d.Attribute)
	}
}

// Search runs sr. Matches are paged in insertion order; object results are
// then sorted by the search's sort descriptors. Key results ignore sorting.
func (s *Store) Search(ctx context.Context, sr *query.Search) (_ *SearchResult, err error) {
	defer s.observe("search", time.Now(), &err)
	if err := s.ready(); err != nil {
		return nil, err
	}
	st, err := s.translator().Build(sr)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, sr, st)
}

// SearchObjectsAdded runs sr restricted to documents added before, on or
// after date.
func (s *Store) SearchObjectsAdded(ctx context.Context, sr *query.Search, match query.DateMatch, date time.Time) (_ *SearchResult, err error) {
	defer s.observe("search", time.Now(), &err)
	if err := s.ready(); err != nil {
		return nil, err
	}
	st, err := s.translator().BuildAddedDate(sr, match, date)
	if err != nil {
		return nil, err
	}
	return s.run(ctx, sr, st)
}

func (s *Store) run(ctx context.Context, sr *query.Search, st query.Statement) (*SearchResult, error) {
	s.record(sr, st)
	s.logger.Debug("search", zap.String("sql", st.SQL), zap.Int("args", len(st.Args)))

	res, err := s.engine.QueryRaw(ctx, st.SQL, st.Args...)
	if err != nil {
		return nil, err
	}
	if sr.ReturnType == query.ReturnKeys {
		return &SearchResult{Keys: hydrate.Keys(res)}, nil
	}
	if len(sr.SortDescriptors) == 0 {
		docs, err := s.hydrator.Documents(res, sr.AttributesToBeReturned)
		if err != nil {
			return nil, err
		}
		return &SearchResult{Objects: docs}, nil
	}

	// Sort paths may name attributes the projection leaves out.
	docs, err := s.hydrator.Documents(res, nil)
	if err != nil {
		return nil, err
	}
	if err := hydrate.Sort(docs, sr.SortDescriptors); err != nil {
		return nil, err
	}
	for i, doc := range docs {
		docs[i] = s.hydrator.Project(doc, sr.AttributesToBeReturned)
	}
	return &SearchResult{Objects: docs}, nil
}

// Aggregate computes fn over attribute across the documents sr matches. An
// empty attribute counts the matching documents. The result is nil when no
// value qualifies.
func (s *Store) Aggregate(ctx context.Context, sr *query.Search, fn query.Aggregate, attribute string) (_ any, err error) {
	defer s.observe("aggregate", time.Now(), &err)
	if err := s.ready(); err != nil {
		return nil, err
	}
	st, err := s.translator().BuildAggregate(sr, fn, attribute)
	if err != nil {
		return nil, err
	}
	s.record(sr, st)
	res, err := s.engine.QueryRaw(ctx, st.SQL, st.Args...)
	if err != nil {
		return nil, err
	}
	return res.FirstValue(), nil
}

// ExecuteSQL runs a caller-supplied statement and returns its rows as is.
func (s *Store) ExecuteSQL(ctx context.Context, sql string, args ...any) (_ *engine.Result, err error) {
	defer s.observe("execute_sql", time.Now(), &err)
	if err := s.ready(); err != nil {
		return nil, err
	}
	if sql == "" {
		return nil, storeerrors.NewConfigurationError(storeerrors.CodeInvalidParameter, "store: empty statement")
	}
	return s.engine.QueryRaw(ctx, sql, args...)
}

// ExecuteSQLReturning runs a caller-supplied SELECT after rewriting its
// select list to the columns rt needs, and hydrates the rows.
func (s *Store) ExecuteSQLReturning(ctx context.Context, sql string, rt query.ReturnType) (_ *SearchResult, err error) {
	defer s.observe("execute_sql", time.Now(), &err)
	if err := s.ready(); err != nil {
		return nil, err
	}
	fixed, err := query.FixColumns(sql, rt)
	if err != nil {
		return nil, err
	}
	res, err := s.engine.QueryRaw(ctx, fixed)
	if err != nil {
		return nil, err
	}
	if rt == query.ReturnKeys {
		return &SearchResult{Keys: hydrate.Keys(res)}, nil
	}
	docs, err := s.hydrator.Documents(res, nil)
	if err != nil {
		return nil, err
	}
	return &SearchResult{Objects: docs}, nil
}

// ExplainSQL returns the query plan of sql.
func (s *Store) ExplainSQL(ctx context.Context, sql string, args ...any) (*engine.Result, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	return s.engine.QueryRaw(ctx, "EXPLAIN QUERY PLAN "+sql, args...)
}

// ExplainSearch returns the query plan of the statement sr translates to.
func (s *Store) ExplainSearch(ctx context.Context, sr *query.Search) (*engine.Result, error) {
	if err := s.ready(); err != nil {
		return nil, err
	}
	st, err := s.translator().Build(sr)
	if err != nil {
		return nil, err
	}
	return s.engine.QueryRaw(ctx, "EXPLAIN QUERY PLAN "+st.SQL, st.Args...)
}
