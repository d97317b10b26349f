package main

import (
	"context"
	"fmt"

	"github.com/tinylib/msgp/msgp"

	"offchaind/oc"
)

// Method is the closed set of queued call kinds. Adding one means adding a
// case to String and to Registry.Handle.
type Method int

const (
	ArticlePost Method = iota + 1
	ArticleUpdate
	ArticleDelete
)

// AllMethods lists every method in dispatch order.
var AllMethods = []Method{ArticlePost, ArticleUpdate, ArticleDelete}

func (m Method) String() string {
	switch m {
	case ArticlePost:
		return "article_post"
	case ArticleUpdate:
		return "article_update"
	case ArticleDelete:
		return "article_delete"
	}
	return fmt.Sprintf("method(%d)", int(m))
}

func ParseMethod(s string) (Method, error) {
	if !validMethodID(s) {
		return 0, fmt.Errorf("%q is not a method identifier: %w", s, oc.ErrUnknownMethod)
	}
	for _, m := range AllMethods {
		if m.String() == s {
			return m, nil
		}
	}
	return 0, fmt.Errorf("%q: %w", s, oc.ErrUnknownMethod)
}

// Router decodes and applies slot payloads for a set of methods.
type Router interface {
	Methods() []string
	Handle(ctx context.Context, method string, payload []byte) error
}

// Registry routes every Method to its article handler.
type Registry struct {
	articles *Articles
}

func NewRegistry(articles *Articles) *Registry {
	return &Registry{articles: articles}
}

func (r *Registry) Methods() []string {
	out := make([]string, 0, len(AllMethods))
	for _, m := range AllMethods {
		out = append(out, m.String())
	}
	return out
}

func (r *Registry) Has(method string) bool {
	_, err := ParseMethod(method)
	return err == nil
}

// Handle decodes payload for method and applies it. Decode failures come
// back as *DecodeError, apply failures as *HandlerError.
func (r *Registry) Handle(ctx context.Context, method string, payload []byte) error {
	m, err := ParseMethod(method)
	if err != nil {
		return permanent(err)
	}
	switch m {
	case ArticlePost:
		var a oc.Article
		if err := decode(method, payload, &a); err != nil {
			return err
		}
		return r.articles.Post(ctx, a)
	case ArticleUpdate:
		var p oc.ArticlePatch
		if err := decode(method, payload, &p); err != nil {
			return err
		}
		return r.articles.Update(ctx, p)
	case ArticleDelete:
		var ref oc.ArticleRef
		if err := decode(method, payload, &ref); err != nil {
			return err
		}
		return r.articles.Delete(ctx, ref)
	}
	return permanent(fmt.Errorf("%s: %w", m, oc.ErrUnknownMethod))
}

func decode(method string, payload []byte, v msgp.Unmarshaler) error {
	left, err := v.UnmarshalMsg(payload)
	if err == nil && len(left) > 0 {
		err = fmt.Errorf("%d trailing bytes", len(left))
	}
	if err != nil {
		return &DecodeError{Method: method, Err: err}
	}
	return nil
}
