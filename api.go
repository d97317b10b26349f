package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"

	"github.com/buaazp/fasthttprouter"
	json "github.com/goccy/go-json"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/valyala/fasthttp"
	"github.com/valyala/fasthttp/fasthttpadaptor"
	"github.com/valyala/fasthttp/pprofhandler"

	"offchaind/oc"
)

// API is the HTTP surface of a node.
//
//	POST /db/:acc/call/:id    enqueue the body as a call of method id
//	POST /db/:acc/submit      apply a JSON Batch atomically
//	POST /db/:acc/index/:id   set the index hash of article id to the body
//	GET  /db/:acc/index/:id   read the index entry of article id
//	GET  /queue/:id           queue state, ?ver=N&wait=S long-polls the top
//	GET  /article/:id         processed article
//	GET  /failures            recent dispatch failures from the journal
//	GET  /metrics             prometheus metrics
//	GET  /debug/pprof/...     runtime profiles
//
// Writes need "Authorization: Bearer <token>" matching the account.
type API struct {
	node     *Node
	gatherer prometheus.Gatherer
	log      *slog.Logger
}

func NewAPI(node *Node, gatherer prometheus.Gatherer, log *slog.Logger) *API {
	return &API{node: node, gatherer: gatherer, log: log}
}

func (a *API) Router() *fasthttprouter.Router {
	router := fasthttprouter.New()
	router.POST("/db/:acc/call/:id", a.CallHandler)
	router.POST("/db/:acc/submit", a.SubmitHandler)
	router.POST("/db/:acc/index/:id", a.SetIndexHandler)
	router.GET("/db/:acc/index/:id", a.GetIndexHandler)
	router.GET("/queue/:id", a.QueueHandler)
	router.GET("/article/:id", a.ArticleHandler)
	router.GET("/failures", a.FailuresHandler)
	router.GET("/metrics", fasthttpadaptor.NewFastHTTPHandler(promhttp.HandlerFor(a.gatherer, promhttp.HandlerOpts{})))
	router.GET("/debug/pprof/*profile", pprofhandler.PprofHandler)

	router.NotFound = func(ctx *fasthttp.RequestCtx) {
		ctx.SetStatusCode(404)
	}
	return router
}

func errStatus(err error) int {
	switch {
	case errors.Is(err, oc.ErrUnauthenticated):
		return 401
	case errors.Is(err, oc.ErrUnknownMethod):
		return 404
	case errors.Is(err, oc.ErrStopped):
		return 503
	case errors.Is(err, oc.ErrCounterIncrement):
		return 500
	}
	return 400
}

func writeJSON(ctx *fasthttp.RequestCtx, v any) {
	d, err := json.Marshal(v)
	if err != nil {
		ctx.Error(err.Error(), 500)
		return
	}
	ctx.SetContentType("application/json")
	ctx.Response.SetBody(d)
}

func (a *API) caller(ctx *fasthttp.RequestCtx, acc string) (Caller, bool) {
	tok := bytes.TrimPrefix(ctx.Request.Header.Peek("Authorization"), []byte("Bearer "))
	c, err := a.node.Ledger.Authenticate(acc, string(tok))
	if err != nil {
		ctx.Error(err.Error(), errStatus(err))
		return "", false
	}
	return c, true
}

// Append one call to the queue of method id
func (a *API) CallHandler(ctx *fasthttp.RequestCtx) {
	acc, id, err := getAccID(ctx)
	if err != nil {
		ctx.Error(err.Error(), 400)
		return
	}
	c, ok := a.caller(ctx, acc)
	if !ok {
		return
	}
	payload := append([]byte(nil), ctx.PostBody()...)
	seq, err := a.node.Ledger.Enqueue(c, id, payload)
	if err != nil {
		ctx.Error("err enqueue: "+err.Error(), errStatus(err))
		return
	}
	writeJSON(ctx, SlotRef{Method: id, Seq: seq})
}

// Apply several calls and index updates as one transaction
func (a *API) SubmitHandler(ctx *fasthttp.RequestCtx) {
	acc, err := getAcc(ctx)
	if err != nil {
		ctx.Error(err.Error(), 400)
		return
	}
	c, ok := a.caller(ctx, acc)
	if !ok {
		return
	}
	var b Batch
	if err := json.Unmarshal(ctx.PostBody(), &b); err != nil {
		ctx.Error(err.Error(), 400)
		return
	}
	r, err := a.node.Ledger.Submit(c, b)
	if err != nil {
		ctx.Error("err submit: "+err.Error(), errStatus(err))
		return
	}
	writeJSON(ctx, r)
}

func (a *API) SetIndexHandler(ctx *fasthttp.RequestCtx) {
	acc, id, err := getAccID(ctx)
	if err != nil {
		ctx.Error(err.Error(), 400)
		return
	}
	c, ok := a.caller(ctx, acc)
	if !ok {
		return
	}
	err = a.node.Ledger.UpdateIndex(c, id, string(ctx.PostBody()))
	if err != nil {
		ctx.Error("err updating: "+err.Error(), errStatus(err))
		return
	}
}

func (a *API) GetIndexHandler(ctx *fasthttp.RequestCtx) {
	_, id, err := getAccID(ctx)
	if err != nil {
		ctx.Error(err.Error(), 400)
		return
	}
	e, ok, err := a.node.Ledger.IndexEntry(id)
	if err != nil {
		ctx.Error("db read err: "+err.Error(), 500)
		return
	}
	if !ok {
		ctx.Error("not found", 404)
		return
	}
	ctx.Response.Header.Set("version", strconv.FormatInt(e.Version, 10))
	ctx.Response.Header.Set("sender", e.Sender)
	_, _ = ctx.Write(e.Hash)
}

func (a *API) QueueHandler(ctx *fasthttp.RequestCtx) {
	id, _ := ctx.UserValue("id").(string)
	if !a.node.Registry.Has(id) {
		ctx.Error("unknown method", 404)
		return
	}
	args := ctx.Request.URI().QueryArgs()
	if args.Has("ver") {
		ver, err := strconv.ParseUint(string(args.Peek("ver")), 10, 64)
		if err != nil {
			ctx.Error("failed to parse ver "+err.Error(), 400)
			return
		}
		wait, err := strconv.Atoi(string(args.Peek("wait")))
		if err != nil || wait < 0 || wait > 60 {
			ctx.Error("wait is not in range 0~60", 400)
			return
		}
		top, err := a.node.Cursors.Top(id)
		if err != nil {
			ctx.Error("db read err: "+err.Error(), 500)
			return
		}
		if top == ver && wait > 0 {
			lctx, cancel := context.WithTimeout(ctx, time.Duration(wait)*time.Second)
			a.node.notify.Listen(lctx, id, ver)
			cancel()
		}
	}
	s, err := a.node.QueueState(id)
	if err != nil {
		ctx.Error("db read err: "+err.Error(), 500)
		return
	}
	writeJSON(ctx, s)
}

func (a *API) ArticleHandler(ctx *fasthttp.RequestCtx) {
	id, _ := ctx.UserValue("id").(string)
	if err := checkName("id", id); err != nil {
		ctx.Error(err.Error(), 400)
		return
	}
	art, ok, err := a.node.Articles.Get([]byte(id))
	if err != nil {
		ctx.Error("db read err: "+err.Error(), 500)
		return
	}
	if !ok {
		ctx.Error("not found", 404)
		return
	}
	writeJSON(ctx, art)
}

func (a *API) FailuresHandler(ctx *fasthttp.RequestCtx) {
	if a.node.Journal == nil {
		ctx.Error("journal disabled", 404)
		return
	}
	args := ctx.Request.URI().QueryArgs()
	limit, _ := strconv.Atoi(string(args.Peek("limit")))
	fs, err := a.node.Journal.Recent(ctx, string(args.Peek("method")), limit)
	if err != nil {
		ctx.Error(err.Error(), 500)
		return
	}
	writeJSON(ctx, fs)
}
