package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/cespare/xxhash/v2"

	"offchaind/oc"
)

// Articles applies article calls to the offchain article records.
// Every apply is idempotent: running it twice on the same slot leaves the
// same state as running it once.
type Articles struct {
	local LocalTier
	log   *slog.Logger
}

func NewArticles(local LocalTier, log *slog.Logger) *Articles {
	return &Articles{local: local, log: log}
}

// ContentHash is the hex xxhash64 of the record encoded without its hash.
func ContentHash(a oc.Article) ([]byte, error) {
	a.Hash = nil
	d, err := a.MarshalMsg(nil)
	if err != nil {
		return nil, err
	}
	return []byte(fmt.Sprintf("%016x", xxhash.Sum64(d))), nil
}

// Get returns the processed article with the given id.
func (s *Articles) Get(id []byte) (oc.Article, bool, error) {
	var a oc.Article
	d, ok, err := s.local.Get(articleKey(id))
	if err != nil || !ok {
		return a, false, err
	}
	if _, err := a.UnmarshalMsg(d); err != nil {
		return a, false, fmt.Errorf("article %q: %w", id, err)
	}
	return a, true, nil
}

// Hash returns the processed content hash for id.
func (s *Articles) Hash(id []byte) ([]byte, bool, error) {
	return s.local.Get(articleIndexKey(id))
}

func (s *Articles) put(a oc.Article) error {
	hash, err := ContentHash(a)
	if err != nil {
		return permanent(err)
	}
	a.Hash = hash
	d, err := a.MarshalMsg(nil)
	if err != nil {
		return permanent(err)
	}
	// storage failures are worth another try on the next cycle
	if err := s.local.Set(articleKey(a.ID), d); err != nil {
		return retryable(err)
	}
	if err := s.local.Set(articleIndexKey(a.ID), hash); err != nil {
		return retryable(err)
	}
	return nil
}

// Post stores a new article. A slot can be delivered again after other
// methods already touched the record, so an existing record that is
// deleted or not older than a wins and the post is a no-op.
func (s *Articles) Post(ctx context.Context, a oc.Article) error {
	if len(a.ID) == 0 {
		return permanent(fmt.Errorf("empty id: %w", oc.ErrInvalidArticle))
	}
	if a.Status > oc.StatusDeleted {
		return permanent(fmt.Errorf("article %q status %d: %w", a.ID, a.Status, oc.ErrInvalidArticle))
	}
	cur, ok, err := s.Get(a.ID)
	if err != nil {
		return retryable(err)
	}
	if ok && (cur.Status == oc.StatusDeleted || cur.UpdatedTime >= a.UpdatedTime) {
		s.log.Debug("article post superseded", "id", string(a.ID), "status", cur.Status, "updated_time", cur.UpdatedTime)
		return nil
	}
	if err := s.put(a); err != nil {
		return err
	}
	s.log.Debug("article posted", "id", string(a.ID))
	return nil
}

// Update merges p into the processed record. Methods drain independently,
// so an update can be seen before its post; that is retried.
func (s *Articles) Update(ctx context.Context, p oc.ArticlePatch) error {
	if len(p.ID) == 0 {
		return permanent(fmt.Errorf("empty id: %w", oc.ErrInvalidArticle))
	}
	cur, ok, err := s.Get(p.ID)
	if err != nil {
		return retryable(err)
	}
	if !ok {
		return retryable(fmt.Errorf("update %q: %w", p.ID, oc.ErrArticleUnknown))
	}
	if cur.Status == oc.StatusDeleted {
		return permanent(fmt.Errorf("update %q: article is deleted", p.ID))
	}
	if p.Status != nil && *p.Status > oc.StatusFrozen {
		return permanent(fmt.Errorf("update %q status %d: %w", p.ID, *p.Status, oc.ErrInvalidArticle))
	}
	merge(&cur.Title, p.Title)
	merge(&cur.CoverURI, p.CoverURI)
	merge(&cur.RawContent, p.RawContent)
	merge(&cur.Content, p.Content)
	merge(&cur.SectionID, p.SectionID)
	merge(&cur.AuthorID, p.AuthorID)
	merge(&cur.Tags, p.Tags)
	merge(&cur.ExtLink, p.ExtLink)
	if p.Status != nil {
		cur.Status = *p.Status
	}
	if p.SpaceType != nil {
		cur.SpaceType = *p.SpaceType
	}
	if p.UpdatedTime > cur.UpdatedTime {
		cur.UpdatedTime = p.UpdatedTime
	}
	return s.put(cur)
}

// Delete marks the article deleted, keeping the record.
func (s *Articles) Delete(ctx context.Context, ref oc.ArticleRef) error {
	if len(ref.ID) == 0 {
		return permanent(fmt.Errorf("empty id: %w", oc.ErrInvalidArticle))
	}
	cur, ok, err := s.Get(ref.ID)
	if err != nil {
		return retryable(err)
	}
	if !ok {
		return retryable(fmt.Errorf("delete %q: %w", ref.ID, oc.ErrArticleUnknown))
	}
	cur.Status = oc.StatusDeleted
	if ref.UpdatedTime > cur.UpdatedTime {
		cur.UpdatedTime = ref.UpdatedTime
	}
	return s.put(cur)
}

// empty fields of an update keep the current value
func merge(dst *[]byte, src []byte) {
	if len(src) > 0 {
		*dst = src
	}
}
