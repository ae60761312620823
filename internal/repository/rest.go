package repository

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/conneroisu/reactive/internal/config"
	"github.com/conneroisu/reactive/internal/errors"
	"github.com/conneroisu/reactive/internal/logging"
)

// maxResponseBytes bounds how much of a response body is read.
const maxResponseBytes = 10 << 20

// RESTRepository maps the repository contract onto a resource collection:
//
//	GET    {base}        List
//	HEAD   {base}/{id}   Exists
//	POST   {base}        Create
//	GET    {base}/{id}   Read
//	PUT    {base}/{id}   Update
//	DELETE {base}/{id}   Delete
type RESTRepository struct {
	base    *url.URL
	client  *http.Client
	headers map[string]string
	logger  logging.Logger

	// Serialize encodes a record into a request body.
	Serialize func(Record) ([]byte, error)
	// Deserialize decodes a response body into a Record or a []Record.
	Deserialize func([]byte) (any, error)
}

// NewRESTRepository creates a repository for the collection at
// cfg.BaseURL + "/" + collection.
func NewRESTRepository(cfg config.RepositoryConfig, collection string, logger logging.Logger) (*RESTRepository, error) {
	if cfg.BaseURL == "" {
		return nil, errors.NewConfigError(errors.ErrCodeConfigInvalid, "repository base_url is required")
	}
	base, err := url.Parse(strings.TrimSuffix(cfg.BaseURL, "/"))
	if err != nil {
		return nil, errors.WrapConfig(err, errors.ErrCodeConfigInvalid, "invalid repository base_url")
	}
	if collection != "" {
		base = base.JoinPath(collection)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = config.DefaultTimeout
	}
	if logger == nil {
		logger = logging.Nop()
	}

	return &RESTRepository{
		base:        base,
		client:      &http.Client{Timeout: timeout},
		headers:     cfg.Headers,
		logger:      logger.WithComponent("repository"),
		Serialize:   func(r Record) ([]byte, error) { return json.Marshal(r) },
		Deserialize: deserializeJSON,
	}, nil
}

// URL returns the collection URL.
func (r *RESTRepository) URL() string {
	return r.base.String()
}

func deserializeJSON(data []byte) (any, error) {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, err
	}
	switch t := v.(type) {
	case map[string]any:
		return Record(t), nil
	case []any:
		records := make([]Record, 0, len(t))
		for _, item := range t {
			if m, ok := item.(map[string]any); ok {
				records = append(records, m)
			}
		}
		return records, nil
	}
	return v, nil
}

// Exists reports whether the record answers a HEAD request with 2xx.
func (r *RESTRepository) Exists(ctx context.Context, id string) (bool, error) {
	if err := validateID(id); err != nil {
		return false, err
	}
	_, err := r.do(ctx, http.MethodHead, id, nil)
	if errors.IsNotFound(err) {
		return false, nil
	}
	return err == nil, err
}

// List fetches the whole collection.
func (r *RESTRepository) List(ctx context.Context) ([]Record, error) {
	body, err := r.do(ctx, http.MethodGet, "", nil)
	if err != nil {
		return nil, err
	}
	v, err := r.Deserialize(body)
	if err != nil {
		return nil, r.decodeError(err)
	}
	records, ok := v.([]Record)
	if !ok {
		return nil, r.decodeError(nil)
	}
	return records, nil
}

// Create posts record to the collection.
func (r *RESTRepository) Create(ctx context.Context, record Record) (Record, error) {
	return r.send(ctx, http.MethodPost, "", record)
}

// Read fetches one record.
func (r *RESTRepository) Read(ctx context.Context, id string) (Record, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	body, err := r.do(ctx, http.MethodGet, id, nil)
	if err != nil {
		return nil, err
	}
	return r.record(body)
}

// Update puts record under id.
func (r *RESTRepository) Update(ctx context.Context, id string, record Record) (Record, error) {
	if err := validateID(id); err != nil {
		return nil, err
	}
	return r.send(ctx, http.MethodPut, id, record)
}

// Delete removes one record.
func (r *RESTRepository) Delete(ctx context.Context, id string) error {
	if err := validateID(id); err != nil {
		return err
	}
	_, err := r.do(ctx, http.MethodDelete, id, nil)
	return err
}

func (r *RESTRepository) send(ctx context.Context, method, id string, record Record) (Record, error) {
	payload, err := r.Serialize(record)
	if err != nil {
		return nil, errors.WrapValidation(err, errors.ErrCodeValidationFailed, "serializing record")
	}
	body, err := r.do(ctx, method, id, payload)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(body)) == 0 {
		return cloneRecord(record), nil
	}
	return r.record(body)
}

func (r *RESTRepository) record(body []byte) (Record, error) {
	v, err := r.Deserialize(body)
	if err != nil {
		return nil, r.decodeError(err)
	}
	record, ok := v.(Record)
	if !ok {
		return nil, r.decodeError(nil)
	}
	return record, nil
}

func (r *RESTRepository) decodeError(cause error) error {
	return errors.NewRepositoryError(errors.ErrCodeDecodeFailed, "unexpected response body", cause).
		WithContext("url", r.base.String())
}

// do performs one request and returns the response body of a 2xx answer.
func (r *RESTRepository) do(ctx context.Context, method, id string, payload []byte) ([]byte, error) {
	target := r.base
	if id != "" {
		target = r.base.JoinPath(id)
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, target.String(), body)
	if err != nil {
		return nil, errors.NewInternalError(errors.ErrCodeRequestFailed, "building request", err)
	}
	req.Header.Set("Accept", "application/json")
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range r.headers {
		req.Header.Set(k, v)
	}

	start := time.Now()
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, errors.NewNetworkError(errors.ErrCodeRequestFailed, method+" "+target.Redacted()+" failed", err)
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, errors.NewNetworkError(errors.ErrCodeRequestFailed, "reading response", err)
	}

	r.logger.Debug(ctx, "Repository request",
		"method", method, "url", target.Redacted(), "status", resp.StatusCode,
		"duration_ms", time.Since(start).Milliseconds())

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, errors.ErrRecordNotFound(id).WithContext("url", target.Redacted())
	case resp.StatusCode < 200 || resp.StatusCode > 299:
		return nil, errors.NewRepositoryError(errors.ErrCodeRequestFailed, "unexpected status "+resp.Status, nil).
			WithContext("url", target.Redacted()).
			WithContext("status", resp.StatusCode)
	}
	return data, nil
}
