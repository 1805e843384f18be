package leonardo

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"photogen/internal/domain"
)

type routeStub struct {
	status int
	body   string
}

// providerStub serves canned responses keyed by "METHOD /path" and records
// every request body it sees.
type providerStub struct {
	t        *testing.T
	routes   map[string]routeStub
	bodies   map[string][]byte
	requests []*http.Request
}

func newProviderStub(t *testing.T) (*providerStub, *httptest.Server) {
	stub := &providerStub{t: t, routes: map[string]routeStub{}, bodies: map[string][]byte{}}
	srv := httptest.NewServer(http.HandlerFunc(stub.serve))
	t.Cleanup(srv.Close)
	return stub, srv
}

func (p *providerStub) serve(w http.ResponseWriter, r *http.Request) {
	key := r.Method + " " + r.URL.Path
	body, _ := io.ReadAll(r.Body)
	p.bodies[key] = body
	p.requests = append(p.requests, r)
	route, ok := p.routes[key]
	if !ok {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte("not found"))
		return
	}
	if route.status == 0 {
		route.status = http.StatusOK
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(route.status)
	_, _ = w.Write([]byte(route.body))
}

func newTestClient(srv *httptest.Server, key string) *Client {
	return NewClient(Options{APIKey: key, BaseURL: srv.URL, HTTPClient: srv.Client()})
}

func TestInitUploadEnvelopeShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
	}{
		{"nested object fields", `{"uploadInitImage":{"id":"img-1","url":"https://s3.example.com/up","fields":{"key":"k","policy":"p"}}}`},
		{"nested string fields", `{"uploadInitImage":{"id":"img-1","url":"https://s3.example.com/up","fields":"{\"key\":\"k\",\"policy\":\"p\"}"}}`},
		{"data wrapper", `{"data":{"uploadInitImage":{"id":"img-1","url":"https://s3.example.com/up","fields":{"key":"k","policy":"p"}}}}`},
		{"top level", `{"id":"img-1","url":"https://s3.example.com/up","fields":{"key":"k","policy":"p"}}`},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			stub, srv := newProviderStub(t)
			stub.routes["POST /v1/init-image"] = routeStub{body: tc.body}

			ticket, err := newTestClient(srv, "secret").InitUpload(context.Background(), ".JPG")
			require.NoError(t, err)
			assert.Equal(t, "img-1", ticket.ImageID)
			assert.Equal(t, "https://s3.example.com/up", ticket.URL)
			assert.Equal(t, map[string]string{"key": "k", "policy": "p"}, ticket.Fields)

			var sent map[string]string
			require.NoError(t, json.Unmarshal(stub.bodies["POST /v1/init-image"], &sent))
			assert.Equal(t, "jpg", sent["extension"])
			assert.Equal(t, "Bearer secret", stub.requests[0].Header.Get("Authorization"))
		})
	}
}

func TestInitUploadMalformed(t *testing.T) {
	for _, body := range []string{
		`{"uploadInitImage":{"url":"https://s3.example.com/up","fields":{"key":"k"}}}`,
		`{"uploadInitImage":{"id":"img","fields":{"key":"k"}}}`,
		`{"uploadInitImage":{"id":"img","url":"https://s3.example.com/up"}}`,
		`{"uploadInitImage":{"id":"img","url":"https://s3.example.com/up","fields":"not json"}}`,
		`{}`,
		`[]`,
	} {
		stub, srv := newProviderStub(t)
		stub.routes["POST /v1/init-image"] = routeStub{body: body}
		_, err := newTestClient(srv, "secret").InitUpload(context.Background(), "png")
		assert.ErrorIs(t, err, domain.ErrMalformedResponse, body)
	}
}

func TestInitUploadProviderError(t *testing.T) {
	stub, srv := newProviderStub(t)
	stub.routes["POST /v1/init-image"] = routeStub{status: http.StatusUnauthorized, body: strings.Repeat("denied ", 500)}

	_, err := newTestClient(srv, "secret").InitUpload(context.Background(), "png")
	require.ErrorIs(t, err, domain.ErrProviderUnavailable)
	var derr *domain.Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, http.StatusUnauthorized, derr.Status)
	assert.LessOrEqual(t, len(derr.Detail), domain.MaxDetailBytes+len("…"))
}

func TestCallsWithoutCredentials(t *testing.T) {
	client := NewClient(Options{})
	assert.False(t, client.HasCredentials())

	_, err := client.InitUpload(context.Background(), "png")
	assert.ErrorIs(t, err, domain.ErrNotConfigured)
	_, err = client.RequestGeneration(context.Background(), domain.GenerationRequest{Prompt: "p"}, "img")
	assert.ErrorIs(t, err, domain.ErrNotConfigured)
	_, err = client.GetStatus(context.Background(), "gen")
	assert.ErrorIs(t, err, domain.ErrNotConfigured)
}

func TestPushBytesSendsFieldsAndFile(t *testing.T) {
	var gotFields map[string]string
	var gotFile []byte
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		require.NoError(t, r.ParseMultipartForm(1<<20))
		gotFields = map[string]string{}
		for k, v := range r.MultipartForm.Value {
			gotFields[k] = v[0]
		}
		f, _, err := r.FormFile("file")
		require.NoError(t, err)
		gotFile, _ = io.ReadAll(f)
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	client := NewClient(Options{APIKey: "secret", HTTPClient: srv.Client()})
	ticket := &domain.UploadTicket{URL: srv.URL, Fields: map[string]string{"key": "uploads/x.png", "policy": "abc"}, ImageID: "img"}
	require.NoError(t, client.PushBytes(context.Background(), ticket, "x.png", []byte("payload")))

	assert.Empty(t, gotAuth)
	assert.Equal(t, map[string]string{"key": "uploads/x.png", "policy": "abc"}, gotFields)
	assert.Equal(t, []byte("payload"), gotFile)
	assert.True(t, ticket.Consumed())

	err := client.PushBytes(context.Background(), ticket, "x.png", []byte("payload"))
	assert.ErrorIs(t, err, domain.ErrTicketConsumed)
}

func TestPushBytesRejected(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
		_, _ = w.Write([]byte("<Error>AccessDenied</Error>"))
	}))
	defer srv.Close()

	client := NewClient(Options{APIKey: "secret", HTTPClient: srv.Client()})
	err := client.PushBytes(context.Background(), &domain.UploadTicket{URL: srv.URL, ImageID: "img"}, "x.png", []byte("p"))
	require.ErrorIs(t, err, domain.ErrUploadRejected)
	assert.Contains(t, err.Error(), "AccessDenied")
}

func TestRequestGenerationPayloadAndShapes(t *testing.T) {
	for _, body := range []string{
		`{"generate":{"generationId":"gen-9"}}`,
		`{"sdGenerationJob":{"generationId":"gen-9"}}`,
		`{"generationId":"gen-9"}`,
		`{"id":"gen-9"}`,
	} {
		stub, srv := newProviderStub(t)
		stub.routes["POST /v2/generations"] = routeStub{body: body}
		client := newTestClient(srv, "secret")

		id, err := client.RequestGeneration(context.Background(), domain.GenerationRequest{
			Prompt:        "bunny avatar",
			Width:         1024,
			Height:        1024,
			Strength:      "MID",
			Seed:          7,
			PromptEnhance: true,
			Quantity:      1,
		}, "img-1")
		require.NoError(t, err, body)
		assert.Equal(t, "gen-9", id)

		var sent map[string]any
		require.NoError(t, json.Unmarshal(stub.bodies["POST /v2/generations"], &sent))
		assert.Equal(t, false, sent["public"])
		assert.Equal(t, defaultModel, sent["model"])
		params := sent["parameters"].(map[string]any)
		assert.Equal(t, "bunny avatar", params["prompt"])
		assert.EqualValues(t, 1024, params["width"])
		assert.EqualValues(t, 7, params["seed"])
		assert.Equal(t, "ON", params["prompt_enhance"])
		refs := params["guidances"].(map[string]any)["image_reference"].([]any)
		require.Len(t, refs, 1)
		ref := refs[0].(map[string]any)
		assert.Equal(t, "MID", ref["strength"])
		assert.Equal(t, map[string]any{"id": "img-1", "type": "UPLOADED"}, ref["image"])
	}
}

func TestRequestGenerationMissingID(t *testing.T) {
	stub, srv := newProviderStub(t)
	stub.routes["POST /v2/generations"] = routeStub{body: `{"generate":{}}`}
	_, err := newTestClient(srv, "secret").RequestGeneration(context.Background(), domain.GenerationRequest{Prompt: "p"}, "img")
	assert.ErrorIs(t, err, domain.ErrMalformedResponse)
}

func TestGetStatusShapes(t *testing.T) {
	tests := []struct {
		name string
		body string
		want []string
	}{
		{"pending", `{"generations_by_pk":{"status":"PENDING","generated_images":[]}}`, nil},
		{"by pk url", `{"generations_by_pk":{"status":"COMPLETE","generated_images":[{"url":"https://cdn/a.png"}]}}`, []string{"https://cdn/a.png"}},
		{"job result", `{"job":{"result":{"images":[{"image_url":"https://cdn/b.png"}]}}}`, []string{"https://cdn/b.png"}},
		{"top level list", `{"generated_images":[{"imageUrl":"https://cdn/c.png"},{"uri":"https://cdn/d.png"}]}`, []string{"https://cdn/c.png", "https://cdn/d.png"}},
		{"plain strings", `{"images":["https://cdn/e.png"]}`, []string{"https://cdn/e.png"}},
		{"entries without urls", `{"generations_by_pk":{"generated_images":[{"nsfw":false}]}}`, nil},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			stub, srv := newProviderStub(t)
			stub.routes["GET /v1/generations/gen-1"] = routeStub{body: tc.body}
			job, err := newTestClient(srv, "secret").GetStatus(context.Background(), "gen-1")
			require.NoError(t, err)
			assert.Equal(t, tc.want, job.ImageURLs)
			if tc.want == nil {
				assert.Equal(t, domain.JobStatusPending, job.Status)
			} else {
				assert.Equal(t, domain.JobStatusReady, job.Status)
				assert.Equal(t, tc.want[0], job.FirstImageURL())
			}
		})
	}
}

func TestGetStatusServerError(t *testing.T) {
	stub, srv := newProviderStub(t)
	stub.routes["GET /v1/generations/gen-1"] = routeStub{status: http.StatusBadGateway, body: "bad gateway"}
	_, err := newTestClient(srv, "secret").GetStatus(context.Background(), "gen-1")
	var derr *domain.Error
	require.ErrorAs(t, err, &derr)
	assert.Equal(t, http.StatusBadGateway, derr.Status)
}

func TestDownload(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/missing.png" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "image/jpeg")
		_, _ = w.Write([]byte{0xff, 0xd8, 0xff, 0xe0})
	}))
	defer srv.Close()
	client := NewClient(Options{APIKey: "secret", HTTPClient: srv.Client()})

	data, enc, err := client.Download(context.Background(), srv.URL+"/out.jpg")
	require.NoError(t, err)
	assert.Equal(t, domain.EncodingJPEG, enc)
	assert.Equal(t, []byte{0xff, 0xd8, 0xff, 0xe0}, data)

	_, _, err = client.Download(context.Background(), srv.URL+"/missing.png")
	assert.ErrorIs(t, err, domain.ErrProviderUnavailable)

	_, _, err = client.Download(context.Background(), "ftp://example.com/x.png")
	assert.ErrorIs(t, err, domain.ErrMalformedResponse)
}

func TestDownloadRejectsNonImageBodies(t *testing.T) {
	tests := []struct {
		name        string
		contentType string
		body        []byte
	}{
		{"html error page", "image/png", []byte("<!DOCTYPE html><html><body>Access denied</body></html>")},
		{"gif", "image/gif", []byte("GIF89a\x01\x00\x01\x00\x00\x00\x00;")},
		{"plain text", "text/plain", []byte("not an image")},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				w.Header().Set("Content-Type", tc.contentType)
				_, _ = w.Write(tc.body)
			}))
			defer srv.Close()
			client := NewClient(Options{APIKey: "secret", HTTPClient: srv.Client()})

			data, enc, err := client.Download(context.Background(), srv.URL+"/out.png")
			require.ErrorIs(t, err, domain.ErrMalformedResponse)
			assert.Nil(t, data)
			assert.Empty(t, enc)
		})
	}
}

func TestDownloadTrustsBodyOverHeader(t *testing.T) {
	webp := []byte("RIFF\x10\x00\x00\x00WEBPVP8 payload")
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/octet-stream")
		_, _ = w.Write(webp)
	}))
	defer srv.Close()
	client := NewClient(Options{APIKey: "secret", HTTPClient: srv.Client()})

	_, enc, err := client.Download(context.Background(), srv.URL+"/out")
	require.NoError(t, err)
	assert.Equal(t, domain.EncodingWebP, enc)
}
