package leonardo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"photogen/internal/domain"
	"photogen/internal/infra"
)

const (
	defaultBaseURL = "https://cloud.leonardo.ai/api/rest"
	defaultModel   = "gpt-image-1.5"

	// maxResponseBytes caps how much of any JSON reply is read into memory.
	maxResponseBytes = 4 << 20
	// maxImageBytes caps a downloaded result.
	maxImageBytes = 64 << 20
)

// Options configures the Leonardo client.
type Options struct {
	APIKey         string
	BaseURL        string
	Model          string
	HTTPClient     *http.Client
	Logger         *infra.Logger
	RequestTimeout time.Duration
}

// Client is a thin typed client over the init-upload, generation and status
// endpoints. Every method performs exactly one remote request.
type Client struct {
	apiKey     string
	baseURL    string
	model      string
	httpClient *http.Client
	logger     *infra.Logger
}

// NewClient constructs a client with defaults for unset options.
func NewClient(opts Options) *Client {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(strings.TrimSpace(opts.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	model := strings.TrimSpace(opts.Model)
	if model == "" {
		model = defaultModel
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		discard := zerolog.New(io.Discard)
		l := infra.Logger(discard)
		logger = &l
	}
	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		model:      model,
		httpClient: httpClient,
		logger:     logger,
	}
}

// HasCredentials reports whether the client can perform remote calls.
func (c *Client) HasCredentials() bool {
	return c != nil && c.apiKey != ""
}

// Model returns the model identifier sent with generation requests.
func (c *Client) Model() string {
	return c.model
}

// InitUpload asks the provider for a presigned upload target.
func (c *Client) InitUpload(ctx context.Context, ext string) (*domain.UploadTicket, error) {
	const op = "leonardo: init upload"
	if !c.HasCredentials() {
		return nil, domain.NewError(domain.ErrNotConfigured, op, 0, "", nil)
	}
	ext = strings.ToLower(strings.TrimPrefix(strings.TrimSpace(ext), "."))
	if ext == "" {
		return nil, domain.NewError(domain.ErrInvalidInput, op, 0, "extension required", nil)
	}
	doc, err := c.doJSON(ctx, op, http.MethodPost, "/v1/init-image", map[string]string{"extension": ext})
	if err != nil {
		return nil, err
	}
	found, shape, ok := firstMatch(doc, ticketStrategies)
	if !ok {
		return nil, domain.NewError(domain.ErrMalformedResponse, op, 0, "missing url, fields or id", nil)
	}
	c.logger.Debug().Str("shape", shape).Str("image_id", found.ImageID).Msg("leonardo: upload ticket issued")
	return &domain.UploadTicket{URL: found.URL, Fields: found.Fields, ImageID: found.ImageID}, nil
}

// PushBytes transfers data to the ticket's presigned destination. The ticket
// is consumed before the transfer starts, whatever the outcome.
func (c *Client) PushBytes(ctx context.Context, ticket *domain.UploadTicket, filename string, data []byte) error {
	const op = "leonardo: push bytes"
	if ticket == nil || strings.TrimSpace(ticket.URL) == "" {
		return domain.NewError(domain.ErrInvalidInput, op, 0, "ticket required", nil)
	}
	if err := ticket.Consume(); err != nil {
		return domain.NewError(domain.ErrTicketConsumed, op, 0, ticket.ImageID, err)
	}

	body := &bytes.Buffer{}
	mw := multipart.NewWriter(body)
	for key, value := range ticket.Fields {
		if err := mw.WriteField(key, value); err != nil {
			return fmt.Errorf("%s: encode field %q: %w", op, key, err)
		}
	}
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return fmt.Errorf("%s: create file part: %w", op, err)
	}
	if _, err := part.Write(data); err != nil {
		return fmt.Errorf("%s: write file part: %w", op, err)
	}
	if err := mw.Close(); err != nil {
		return fmt.Errorf("%s: close multipart: %w", op, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, ticket.URL, body)
	if err != nil {
		return domain.NewError(domain.ErrUploadRejected, op, 0, "invalid upload url", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.NewError(domain.ErrUploadRejected, op, 0, "", err)
	}
	defer resp.Body.Close()
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, domain.MaxDetailBytes*2))
	switch resp.StatusCode {
	case http.StatusOK, http.StatusCreated, http.StatusNoContent:
		return nil
	}
	return domain.NewError(domain.ErrUploadRejected, op, resp.StatusCode, string(raw), nil)
}

type generationBody struct {
	Public     bool             `json:"public"`
	Model      string           `json:"model"`
	Parameters generationParams `json:"parameters"`
}

type generationParams struct {
	Prompt        string     `json:"prompt"`
	Width         int        `json:"width,omitempty"`
	Height        int        `json:"height,omitempty"`
	Quantity      int        `json:"quantity,omitempty"`
	Mode          string     `json:"mode,omitempty"`
	Seed          *int       `json:"seed,omitempty"`
	PromptEnhance string     `json:"prompt_enhance,omitempty"`
	Guidances     *guidances `json:"guidances,omitempty"`
}

type guidances struct {
	ImageReference []imageReference `json:"image_reference"`
}

type imageReference struct {
	Image    referencedImage `json:"image"`
	Strength string          `json:"strength,omitempty"`
}

type referencedImage struct {
	ID   string `json:"id"`
	Type string `json:"type"`
}

// RequestGeneration starts a generation job guided by imageID and any extra
// references carried on req, returning the provider's generation id.
func (c *Client) RequestGeneration(ctx context.Context, req domain.GenerationRequest, imageID string) (string, error) {
	const op = "leonardo: request generation"
	if !c.HasCredentials() {
		return "", domain.NewError(domain.ErrNotConfigured, op, 0, "", nil)
	}
	prompt := strings.TrimSpace(req.Prompt)
	if prompt == "" {
		return "", domain.NewError(domain.ErrInvalidInput, op, 0, "prompt required", nil)
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = c.model
	}
	payload := generationBody{
		Public: req.Public,
		Model:  model,
		Parameters: generationParams{
			Prompt:   prompt,
			Width:    req.Width,
			Height:   req.Height,
			Quantity: req.Quantity,
			Mode:     strings.TrimSpace(req.Mode),
		},
	}
	if req.Seed > 0 {
		seed := req.Seed
		payload.Parameters.Seed = &seed
	}
	if req.PromptEnhance {
		payload.Parameters.PromptEnhance = "ON"
	}
	refs := make([]imageReference, 0, len(req.References)+1)
	if id := strings.TrimSpace(imageID); id != "" {
		refs = append(refs, imageReference{Image: referencedImage{ID: id, Type: "UPLOADED"}, Strength: req.Strength})
	}
	for _, ref := range req.References {
		if strings.TrimSpace(ref.ImageID) == "" {
			continue
		}
		typ := ref.Type
		if typ == "" {
			typ = "UPLOADED"
		}
		refs = append(refs, imageReference{Image: referencedImage{ID: ref.ImageID, Type: typ}, Strength: req.Strength})
	}
	if len(refs) > 0 {
		payload.Parameters.Guidances = &guidances{ImageReference: refs}
	}

	doc, err := c.doJSON(ctx, op, http.MethodPost, "/v2/generations", payload)
	if err != nil {
		return "", err
	}
	id, shape, ok := firstMatch(doc, generationIDStrategies)
	if !ok {
		return "", domain.NewError(domain.ErrMalformedResponse, op, 0, "missing generation id", nil)
	}
	c.logger.Debug().Str("shape", shape).Str("generation_id", id).Msg("leonardo: generation requested")
	return id, nil
}

// GetStatus performs a single poll of a generation. The returned job is ready
// only when at least one result image URL could be found.
func (c *Client) GetStatus(ctx context.Context, generationID string) (*domain.GenerationJob, error) {
	const op = "leonardo: get status"
	if !c.HasCredentials() {
		return nil, domain.NewError(domain.ErrNotConfigured, op, 0, "", nil)
	}
	generationID = strings.TrimSpace(generationID)
	if generationID == "" {
		return nil, domain.NewError(domain.ErrInvalidInput, op, 0, "generation id required", nil)
	}
	doc, err := c.doJSON(ctx, op, http.MethodGet, "/v1/generations/"+url.PathEscape(generationID), nil)
	if err != nil {
		return nil, err
	}
	job := &domain.GenerationJob{GenerationID: generationID, Status: domain.JobStatusPending}
	job.RemoteStatus, _, _ = firstMatch(doc, remoteStatusStrategies)
	if urls, _, ok := firstMatch(doc, imageListStrategies); ok {
		job.ImageURLs = urls
		job.Status = domain.JobStatusReady
	}
	return job, nil
}

// Download fetches a result image without credentials and reports its encoding.
// The encoding comes from the body; anything other than png, jpeg or webp is
// a malformed response and is never handed to storage.
func (c *Client) Download(ctx context.Context, imageURL string) ([]byte, domain.Encoding, error) {
	const op = "leonardo: download"
	parsed, err := url.Parse(strings.TrimSpace(imageURL))
	if err != nil || (parsed.Scheme != "http" && parsed.Scheme != "https") {
		return nil, "", domain.NewError(domain.ErrMalformedResponse, op, 0, "invalid image url: "+imageURL, err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, parsed.String(), nil)
	if err != nil {
		return nil, "", fmt.Errorf("%s: build request: %w", op, err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, "", domain.NewError(domain.ErrProviderUnavailable, op, 0, "", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, domain.MaxDetailBytes*2))
		return nil, "", domain.NewError(domain.ErrProviderUnavailable, op, resp.StatusCode, string(raw), nil)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, "", domain.NewError(domain.ErrProviderUnavailable, op, resp.StatusCode, "", err)
	}
	if len(data) > maxImageBytes {
		return nil, "", domain.NewError(domain.ErrMalformedResponse, op, resp.StatusCode, "image exceeds size limit", nil)
	}
	if len(data) == 0 {
		return nil, "", domain.NewError(domain.ErrMalformedResponse, op, resp.StatusCode, "empty image body", nil)
	}
	encoding, ok := domain.DetectEncoding(data)
	if !ok {
		detail := fmt.Sprintf("unrecognized image body (content-type %q): %s", resp.Header.Get("Content-Type"), domain.Excerpt(string(data), 128))
		return nil, "", domain.NewError(domain.ErrMalformedResponse, op, resp.StatusCode, detail, nil)
	}
	return data, encoding, nil
}

func (c *Client) doJSON(ctx context.Context, op, method, path string, payload any) (map[string]any, error) {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("%s: encode request: %w", op, err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("%s: build request: %w", op, err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, domain.NewError(domain.ErrProviderUnavailable, op, 0, "", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, domain.NewError(domain.ErrProviderUnavailable, op, resp.StatusCode, "", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, domain.NewError(domain.ErrProviderUnavailable, op, resp.StatusCode, string(raw), nil)
	}

	var doc map[string]any
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&doc); err != nil {
		return nil, domain.NewError(domain.ErrMalformedResponse, op, resp.StatusCode, string(raw), err)
	}
	if doc == nil {
		return nil, domain.NewError(domain.ErrMalformedResponse, op, resp.StatusCode, "empty body", errors.New("null document"))
	}
	return doc, nil
}
