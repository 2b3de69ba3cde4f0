package s3

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"time"

	aws "github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const metaHeaderPrefix = "X-Amz-Meta-"

// NewMockForTests builds a Store whose SDK client talks to an in-memory
// transport instead of AWS. It covers exactly the operations the Store
// issues: PutObject, GetObject, HeadObject, DeleteObject and ListObjectsV2.
func NewMockForTests() *Store {
	ft := &fakeTransport{objects: make(map[string]fakeObject)}
	cfg, _ := config.LoadDefaultConfig(context.Background(),
		config.WithRegion("us-east-1"),
		config.WithCredentialsProvider(credentials.NewStaticCredentialsProvider("AKIA", "SECRET", "")),
	)
	client := s3.NewFromConfig(cfg, func(o *s3.Options) {
		o.HTTPClient = &http.Client{Transport: ft}
		o.UsePathStyle = true
		o.BaseEndpoint = aws.String("https://mock.s3.local")
	})
	return &Store{client: client, bucket: "mock-bucket"}
}

type fakeTransport struct {
	objects map[string]fakeObject
}

type fakeObject struct {
	data        []byte
	contentType string
	metadata    http.Header
}

func (t *fakeTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req.Method == http.MethodGet && req.URL.Query().Get("list-type") == "2" {
		return t.list(req.URL.Query().Get("prefix")), nil
	}
	key := objectKey(req.URL.Path)
	switch req.Method {
	case http.MethodPut:
		return t.put(key, req), nil
	case http.MethodHead:
		return t.stat(key, false), nil
	case http.MethodGet:
		return t.stat(key, true), nil
	case http.MethodDelete:
		delete(t.objects, key)
		return reply(http.StatusNoContent, nil, nil), nil
	}
	return reply(http.StatusNotImplemented, nil, nil), nil
}

func (t *fakeTransport) put(key string, req *http.Request) *http.Response {
	data, _ := io.ReadAll(req.Body)
	if payload, ok := unwrapChunked(data); ok {
		data = payload
	}
	// First write wins. The Store guards creates with a HeadObject probe,
	// so a duplicate PutObject never reaches a correct client.
	if _, exists := t.objects[key]; !exists {
		md := http.Header{}
		for name, vals := range req.Header {
			if strings.HasPrefix(name, metaHeaderPrefix) {
				md[name] = vals
			}
		}
		t.objects[key] = fakeObject{data: data, contentType: req.Header.Get("Content-Type"), metadata: md}
	}
	return reply(http.StatusOK, nil, http.Header{"ETag": {`"fake"`}})
}

// stat answers both HeadObject and GetObject; only the latter carries a body.
func (t *fakeTransport) stat(key string, withBody bool) *http.Response {
	obj, ok := t.objects[key]
	if !ok {
		return reply(http.StatusNotFound, nil, nil)
	}
	hdr := http.Header{
		"Content-Length": {strconv.Itoa(len(obj.data))},
		"Content-Type":   {obj.contentType},
		"ETag":           {`"fake"`},
		"Last-Modified":  {time.Now().UTC().Format(http.TimeFormat)},
	}
	for name, vals := range obj.metadata {
		hdr[name] = vals
	}
	var body []byte
	if withBody {
		body = obj.data
	}
	return reply(http.StatusOK, body, hdr)
}

func (t *fakeTransport) list(prefix string) *http.Response {
	keys := make([]string, 0, len(t.objects))
	for k := range t.objects {
		if strings.HasPrefix(k, prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	var b strings.Builder
	b.WriteString(`<?xml version="1.0"?><ListBucketResult><IsTruncated>false</IsTruncated>`)
	for _, k := range keys {
		fmt.Fprintf(&b, "<Contents><Key>%s</Key><Size>%d</Size><LastModified>2024-01-01T00:00:00Z</LastModified></Contents>", k, len(t.objects[k].data))
	}
	b.WriteString("</ListBucketResult>")
	return reply(http.StatusOK, []byte(b.String()), http.Header{"Content-Type": {"application/xml"}})
}

// objectKey strips the leading slash and the path-style bucket segment.
func objectKey(path string) string {
	_, key, _ := strings.Cut(strings.TrimPrefix(path, "/"), "/")
	return key
}

func reply(status int, body []byte, hdr http.Header) *http.Response {
	if hdr == nil {
		hdr = http.Header{}
	}
	return &http.Response{StatusCode: status, Body: io.NopCloser(bytes.NewReader(body)), Header: hdr}
}

// unwrapChunked strips single-chunk aws-chunked framing
// ("<hex size>\r\n<payload>\r\n0\r\n...") from streaming uploads.
func unwrapChunked(data []byte) ([]byte, bool) {
	head, rest, ok := bytes.Cut(data, []byte("\r\n"))
	if !ok {
		return nil, false
	}
	size, err := strconv.ParseInt(string(head), 16, 64)
	if err != nil {
		return nil, false
	}
	payload, trailer, ok := bytes.Cut(rest, []byte("\r\n"))
	if !ok || int64(len(payload)) != size || !bytes.HasPrefix(trailer, []byte("0")) {
		return nil, false
	}
	return payload, true
}
