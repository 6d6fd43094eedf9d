package ipamclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"sync"

	recerr "github.com/DoesN0tCompute/bamreconciler/internal/errors"
	"github.com/DoesN0tCompute/bamreconciler/internal/resilience"
)

// HTTPClient is a reference Client implementation talking to an IPAM-style
// REST API, wrapped in a circuit breaker per object-type family.
type HTTPClient struct {
	baseURL    string
	http       *http.Client
	mu         sync.Mutex
	breakers   map[string]*resilience.CircuitBreaker
	breakerCfg resilience.Config
}

func NewHTTPClient(baseURL string, httpClient *http.Client, breakerCfg resilience.Config) *HTTPClient {
	return &HTTPClient{
		baseURL:    baseURL,
		http:       httpClient,
		breakers:   map[string]*resilience.CircuitBreaker{},
		breakerCfg: breakerCfg,
	}
}

func (c *HTTPClient) breakerFor(objectType string) *resilience.CircuitBreaker {
	c.mu.Lock()
	defer c.mu.Unlock()
	if b, ok := c.breakers[objectType]; ok {
		return b
	}
	b := resilience.New(objectType, c.breakerCfg)
	c.breakers[objectType] = b
	return b
}

func (c *HTTPClient) Create(ctx context.Context, objectType, path string, body map[string]any) (map[string]any, error) {
	result, err := c.breakerFor(objectType).Call(ctx, func(ctx context.Context) (any, error) {
		return c.doJSON(ctx, http.MethodPost, "/objects/"+objectType, body)
	})
	if err != nil {
		return nil, err
	}
	return result.(map[string]any), nil
}

func (c *HTTPClient) UpdateByID(ctx context.Context, id int64, typeName string, body map[string]any) error {
	_, err := c.breakerFor(typeName).Call(ctx, func(ctx context.Context) (any, error) {
		return c.doJSON(ctx, http.MethodPut, "/entities/"+strconv.FormatInt(id, 10), body)
	})
	return err
}

func (c *HTTPClient) DeleteByID(ctx context.Context, id int64, typeName string, allowDangerous bool) error {
	if !allowDangerous {
		return recerr.New(recerr.KindValidation, "dangerous delete not permitted for "+typeName)
	}
	_, err := c.breakerFor(typeName).Call(ctx, func(ctx context.Context) (any, error) {
		return c.doJSON(ctx, http.MethodDelete, "/entities/"+strconv.FormatInt(id, 10), nil)
	})
	return err
}

func (c *HTTPClient) LookupByNaturalKey(ctx context.Context, objectType string, key map[string]string) (map[string]any, error) {
	result, err := c.breakerFor(objectType).Call(ctx, func(ctx context.Context) (any, error) {
		return c.doJSON(ctx, http.MethodGet, "/objects/"+objectType+"/lookup", key)
	})
	if err != nil {
		return nil, err
	}
	return result.(map[string]any), nil
}

func (c *HTTPClient) doJSON(ctx context.Context, method, path string, body any) (map[string]any, error) {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, recerr.Wrap(recerr.KindServer, err, "ipam request failed")
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusConflict:
		return nil, NewAlreadyExistsError(path)
	case http.StatusNotFound:
		return nil, NewNotFoundError(path)
	case http.StatusTooManyRequests:
		retryAfter := 1.0
		if v := resp.Header.Get("Retry-After"); v != "" {
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				retryAfter = f
			}
		}
		return nil, &RateLimitError{RetryAfterSeconds: retryAfter}
	}
	if resp.StatusCode >= 400 {
		return nil, recerr.New(recerr.KindServer, fmt.Sprintf("ipam server returned status %d", resp.StatusCode))
	}

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if len(data) == 0 {
		return map[string]any{}, nil
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return out, nil
}
