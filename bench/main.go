package main

import (
	"flag"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/valyala/fasthttp"

	"offchaind/oc"
)

// article_post payloads for ids 0..n-1
func articlePayloads(n, size int) [][]byte {
	out := make([][]byte, n)
	content := make([]byte, size)
	for i := range content {
		content[i] = byte('a' + i%26)
	}
	for i := 0; i < n; i++ {
		a := oc.Article{
			ID:          []byte(fmt.Sprintf("bench-%d", i)),
			Title:       []byte(fmt.Sprintf("title %d", i)),
			Content:     content,
			SpaceType:   oc.SpaceBlog,
			CreatedTime: uint64(time.Now().Unix()),
		}
		d, err := a.MarshalMsg(nil)
		if err != nil {
			panic(err)
		}
		out[i] = d
	}
	return out
}

func BenchmarkCall(u, acc, token, method string, payloads [][]byte, parallel, nPerThread int) {
	c := fasthttp.Client{
		MaxConnsPerHost: 50000,
	}
	uri := fasthttp.AcquireURI()
	defer fasthttp.ReleaseURI(uri)
	if err := uri.Parse(nil, []byte(fmt.Sprintf("%s/db/%s/call/%s", u, acc, method))); err != nil {
		panic(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < parallel; i++ {
		wg.Add(1)
		go func() {
			rnd := rand.New(rand.NewSource(time.Now().UnixNano()))
			defer wg.Done()
			for j := 0; j < nPerThread; j++ {
				req := fasthttp.AcquireRequest()
				req.Header.SetMethod("POST")
				req.Header.Set("Authorization", "Bearer "+token)
				req.SetBody(payloads[rnd.Intn(len(payloads))])
				req.SetURI(uri)
				resp := fasthttp.AcquireResponse()
				err := c.Do(req, resp)
				if err != nil {
					panic(err)
				}
				if resp.StatusCode() != 200 {
					panic(fmt.Sprintf("NON 200 sstatus code: %v %v ", resp.StatusCode(), string(resp.Body())))
				}
				fasthttp.ReleaseRequest(req)
				fasthttp.ReleaseResponse(resp)
			}
		}()
	}
	wg.Wait()
}

func BenchmarkSubmit(u, acc, token string, batch, parallel, nPerThread int) {
	c := fasthttp.Client{
		MaxConnsPerHost: 50000,
	}
	uri := fasthttp.AcquireURI()
	defer fasthttp.ReleaseURI(uri)
	if err := uri.Parse(nil, []byte(fmt.Sprintf("%s/db/%s/submit", u, acc))); err != nil {
		panic(err)
	}

	var wg sync.WaitGroup
	for i := 0; i < parallel; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			for j := 0; j < nPerThread; j++ {
				b := []byte(`{"index": [`)
				for k := 0; k < batch; k++ {
					if k > 0 {
						b = append(b, ',')
					}
					b = append(b, fmt.Sprintf(`{"id": "bench-%d-%d", "hash": "%016x"}`, i, k, j)...)
				}
				b = append(b, "]}"...)
				req := fasthttp.AcquireRequest()
				req.Header.SetMethod("POST")
				req.Header.Set("Authorization", "Bearer "+token)
				req.SetBody(b)
				req.SetURI(uri)
				resp := fasthttp.AcquireResponse()
				err := c.Do(req, resp)
				if err != nil {
					panic(err)
				}
				if resp.StatusCode() != 200 {
					panic(fmt.Sprintf("NON 200 sstatus code: %v %v ", resp.StatusCode(), string(resp.Body())))
				}
				fasthttp.ReleaseRequest(req)
				fasthttp.ReleaseResponse(resp)
			}
		}(i)
	}
	wg.Wait()
}

func main() {
	addr := flag.String("addr", "http://localhost:8080", "node address")
	acc := flag.String("acc", "bench", "caller account")
	token := flag.String("token", "bench", "caller token")
	parallel := flag.Int("parallel", 1000, "concurrent clients")
	perThread := flag.Int("n", 100, "requests per client")
	flag.Parse()

	total := float64(*parallel * *perThread)

	for _, size := range []int{64, 1024, 10240} {
		payloads := articlePayloads(1000, size)
		start := time.Now()
		BenchmarkCall(*addr, *acc, *token, "article_post", payloads, *parallel, *perThread)
		log.Printf("%d byte article_post calls: %.1fk req/sec %.1f MB/sec", size, total/time.Since(start).Seconds()/1000, total*float64(size)/1000000/time.Since(start).Seconds())
	}

	for _, batch := range []int{1, 10, 100} {
		start := time.Now()
		BenchmarkSubmit(*addr, *acc, *token, batch, *parallel, *perThread)
		log.Printf("submit with %d index updates: %.1fk req/sec", batch, total/time.Since(start).Seconds()/1000)
	}
}
