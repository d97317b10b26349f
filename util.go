package main

import (
	"encoding/binary"
	"fmt"
	"strconv"

	"github.com/valyala/fasthttp"
)

type txGetter interface {
	Get(key []byte) ([]byte, error)
}

type txSetter interface {
	Set(key, value []byte) error
}

// GetUint64 reads a little endian counter. Missing keys read as 0.
func GetUint64(key []byte, b txGetter) (uint64, error) {
	d, err := b.Get(key)
	if err != nil {
		return 0, fmt.Errorf("DB ERR %w", err)
	}
	if d == nil {
		return 0, nil
	}
	if len(d) != 8 {
		return 0, fmt.Errorf("DB ERR counter %q has %d bytes", key, len(d))
	}
	return binary.LittleEndian.Uint64(d), nil
}

func SetUint64(key []byte, val uint64, b txSetter) error {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, val)
	return b.Set(key, buf)
}

// markers are stored as decimal text, the same way the producer publishes them
func encodeMarker(n uint64) []byte {
	return strconv.AppendUint(nil, n, 10)
}

func decodeMarker(d []byte) (uint64, error) {
	n, err := strconv.ParseUint(string(d), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("bad marker %q: %w", d, err)
	}
	return n, nil
}

func checkName(kind, v string) error {
	if len(v) > 255 || len(v) == 0 {
		return fmt.Errorf("%s is not in range 0~255", kind)
	}
	for _, c := range v {
		if c == 0 {
			return fmt.Errorf("0 is not allowed as a character in %s", kind)
		}
	}
	return nil
}

func getAcc(ctx *fasthttp.RequestCtx) (string, error) {
	acc, _ := ctx.UserValue("acc").(string)
	if err := checkName("acc", acc); err != nil {
		return "", err
	}
	return acc, nil
}

func getAccID(ctx *fasthttp.RequestCtx) (string, string, error) {
	acc, err := getAcc(ctx)
	if err != nil {
		return "", "", err
	}
	id, _ := ctx.UserValue("id").(string)
	if err := checkName("id", id); err != nil {
		return "", "", err
	}
	return acc, id, nil
}
