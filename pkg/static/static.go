// Package static serves file payloads as http responses from a pluggable
// Source: local disk or an S3 bucket.
package static

import (
	"context"
	"errors"
	"io"
	"mime"
	"net/http"
	"path"
	"strconv"

	"github.com/gavi-dev/gavi"
	"github.com/gavi-dev/gavi/pkg/protocol"
)

// ErrNotFound is returned by Sources when the named file does not exist.
var ErrNotFound = errors.New("static: file not found")

// FileInfo describes an opened file.
type FileInfo struct {
	// Size in bytes, -1 when unknown.
	Size int64

	// ContentType as reported by the source, "" to detect from the name.
	ContentType string
}

// Source supplies file content by cleaned, slash-separated name.
type Source interface {
	Open(ctx context.Context, name string) (io.ReadCloser, FileInfo, error)
}

// Config configures the static file application.
type Config struct {
	// Prefix is stripped from the scope path before lookup, e.g. "/static/".
	Prefix string

	// ChunkSize is the response body chunk size. Default: 64KB.
	ChunkSize int

	// CacheControl, when non-empty, is sent with every successful response.
	CacheControl string
}

// App returns an Application that serves GET and HEAD requests from src.
// Requests with other methods get a 405; missing or escaping paths get a
// 404.
func App(src Source, config Config) gavi.Application {
	if config.ChunkSize <= 0 {
		config.ChunkSize = 64 << 10
	}
	return gavi.AppFunc(func(ctx context.Context, scope *protocol.Scope, receive gavi.Receive, send gavi.Send) error {
		if scope.Method != http.MethodGet && scope.Method != http.MethodHead {
			return plainResponse(ctx, send, http.StatusMethodNotAllowed, "Method Not Allowed\n")
		}

		name, ok := cleanName(scope.Path, config.Prefix)
		if !ok {
			return plainResponse(ctx, send, http.StatusNotFound, "Not Found\n")
		}

		rc, info, err := src.Open(ctx, name)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				return plainResponse(ctx, send, http.StatusNotFound, "Not Found\n")
			}
			return err
		}
		defer rc.Close()

		ct := info.ContentType
		if ct == "" {
			ct = mime.TypeByExtension(path.Ext(name))
		}
		if ct == "" {
			ct = "application/octet-stream"
		}
		headers := protocol.Headers{{Name: "content-type", Value: ct}}
		if info.Size >= 0 {
			headers = append(headers, protocol.Header{Name: "content-length", Value: strconv.FormatInt(info.Size, 10)})
		}
		if config.CacheControl != "" {
			headers = append(headers, protocol.Header{Name: "cache-control", Value: config.CacheControl})
		}

		if err := send(ctx, protocol.ResponseStart{Status: http.StatusOK, Headers: headers}); err != nil {
			return err
		}
		if scope.Method == http.MethodHead {
			return send(ctx, protocol.ResponseBody{})
		}
		return streamBody(ctx, send, rc, config.ChunkSize)
	})
}

// streamBody copies rc to the connection in bounded chunks so large files
// never sit whole in memory.
func streamBody(ctx context.Context, send gavi.Send, rc io.Reader, chunkSize int) error {
	buf := make([]byte, chunkSize)
	for {
		n, err := rc.Read(buf)
		if err == io.EOF {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			return send(ctx, protocol.ResponseBody{Body: chunk})
		}
		if err != nil {
			return err
		}
		chunk := make([]byte, n)
		copy(chunk, buf[:n])
		if err := send(ctx, protocol.ResponseBody{Body: chunk, More: true}); err != nil {
			return err
		}
	}
}

// cleanName strips the prefix and rejects any path that would escape the
// source root.
func cleanName(p, prefix string) (string, bool) {
	if prefix != "" {
		if len(p) < len(prefix) || p[:len(prefix)] != prefix {
			return "", false
		}
		p = p[len(prefix):]
	}
	cleaned := path.Clean("/" + p)
	if cleaned == "/" {
		return "", false
	}
	return cleaned[1:], true
}

func plainResponse(ctx context.Context, send gavi.Send, status int, body string) error {
	err := send(ctx, protocol.ResponseStart{
		Status: status,
		Headers: protocol.Headers{
			{Name: "content-type", Value: "text/plain; charset=utf-8"},
		},
	})
	if err != nil {
		return err
	}
	return send(ctx, protocol.ResponseBody{Body: []byte(body)})
}
