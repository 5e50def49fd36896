package model

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/cementai/plant-core/internal/policy"
	"github.com/cementai/plant-core/pkg/config"
	"github.com/cementai/plant-core/pkg/logger"
)

// ErrCircuitOpen is returned without contacting the server while the
// circuit breaker for the model is open.
var ErrCircuitOpen = errors.New("remote model circuit open")

// Remote evaluates the regressor on a KServe v2 (Open Inference Protocol)
// server:
//   - Infer: POST /v2/models/{name}[/versions/{version}]/infer
//   - Server ready: GET /v2/health/ready
//   - Model ready: GET /v2/models/{name}/ready
type Remote struct {
	endpoint  string
	name      string
	version   string
	inputName string
	modelType string

	httpClient *http.Client
	policies   *policy.Set
	now        func() time.Time
}

// RemoteOption configures a Remote
type RemoteOption func(*Remote)

// WithHTTPClient sets the HTTP client used for inference calls
func WithHTTPClient(c *http.Client) RemoteOption {
	return func(r *Remote) {
		r.httpClient = c
	}
}

// WithClock replaces time.Now for the circuit breaker
func WithClock(now func() time.Time) RemoteOption {
	return func(r *Remote) {
		r.now = now
	}
}

// NewRemote creates a KServe v2 client from config
func NewRemote(cfg *config.RemoteModel, opts ...RemoteOption) *Remote {
	r := &Remote{
		endpoint:  strings.TrimRight(cfg.Endpoint, "/"),
		name:      cfg.ModelName,
		version:   cfg.ModelVersion,
		inputName: cfg.InputName,
		modelType: cfg.ModelType,
		policies:  policy.NewSetFromConfig(cfg),
		now:       time.Now,
	}
	if r.inputName == "" {
		r.inputName = "input0"
	}
	if r.modelType == "" {
		r.modelType = "KServe:" + r.name
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.httpClient == nil {
		r.httpClient = &http.Client{Timeout: cfg.Timeout()}
	}
	return r
}

func (r *Remote) Type() string { return r.modelType }

// Fingerprint identifies the remote model by its address, name and version.
func (r *Remote) Fingerprint() Fingerprint {
	return FingerprintOf([]byte(r.endpoint + "|" + r.name + "|" + r.version))
}

// Predict sends x to the inference server, retrying transient failures.
func (r *Remote) Predict(ctx context.Context, x []float64) (float64, error) {
	cb := r.policies.CircuitBreaker
	if cb != nil && !cb.AllowRequest(r.name, r.now()) {
		return 0, ErrCircuitOpen
	}

	retry := r.policies.Retry
	var (
		out float64
		err error
	)
	for attempt := 0; ; attempt++ {
		out, err = r.infer(ctx, x)
		if err == nil || retry == nil || !retry.ShouldRetry(attempt, err) {
			break
		}
		wait := retry.GetBackoffDuration(attempt + 1)
		logger.Warn("remote inference failed, retrying",
			"model", r.name,
			"attempt", attempt+1,
			"backoff", wait,
			"error", err)
		if werr := sleep(ctx, wait); werr != nil {
			err = werr
			break
		}
	}

	if cb != nil {
		if err != nil {
			cb.RecordFailure(r.name, r.now())
		} else {
			cb.RecordSuccess(r.name, r.now())
		}
	}
	return out, err
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

type v2Tensor struct {
	Name     string    `json:"name"`
	Shape    []int     `json:"shape"`
	Datatype string    `json:"datatype"`
	Data     []float64 `json:"data"`
}

type v2InferRequest struct {
	Inputs []v2Tensor `json:"inputs"`
}

type v2InferResponse struct {
	ModelName    string `json:"model_name"`
	ModelVersion string `json:"model_version"`
	Outputs      []struct {
		Name  string `json:"name"`
		Shape []int  `json:"shape"`
		Data  []any  `json:"data"`
	} `json:"outputs"`
}

func (r *Remote) modelPath() string {
	path := fmt.Sprintf("%s/v2/models/%s", r.endpoint, r.name)
	if r.version != "" {
		path = fmt.Sprintf("%s/versions/%s", path, r.version)
	}
	return path
}

func (r *Remote) infer(ctx context.Context, x []float64) (float64, error) {
	body, err := json.Marshal(v2InferRequest{Inputs: []v2Tensor{{
		Name:     r.inputName,
		Shape:    []int{1, len(x)},
		Datatype: "FP64",
		Data:     x,
	}}})
	if err != nil {
		return 0, fmt.Errorf("kserve v2 marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, r.modelPath()+"/infer", bytes.NewReader(body))
	if err != nil {
		return 0, policy.Permanent(fmt.Errorf("kserve v2 create request: %w", err))
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return 0, fmt.Errorf("kserve v2 request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, fmt.Errorf("kserve v2 read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("kserve v2 error: status=%d, body=%s", resp.StatusCode, strings.TrimSpace(string(respBody)))
		if resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
			return 0, policy.Permanent(err)
		}
		return 0, err
	}

	var out v2InferResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return 0, policy.Permanent(fmt.Errorf("kserve v2 parse response: %w", err))
	}
	if len(out.Outputs) == 0 || len(out.Outputs[0].Data) == 0 {
		return 0, policy.Permanent(fmt.Errorf("kserve v2 response has no outputs"))
	}
	v, ok := out.Outputs[0].Data[0].(float64)
	if !ok {
		return 0, policy.Permanent(fmt.Errorf("kserve v2 output is %T, want number", out.Outputs[0].Data[0]))
	}
	return v, nil
}

// Ready reports whether the server and the model are ready to serve.
func (r *Remote) Ready(ctx context.Context) error {
	for _, url := range []string{
		r.endpoint + "/v2/health/ready",
		fmt.Sprintf("%s/v2/models/%s/ready", r.endpoint, r.name),
	} {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return err
		}
		resp, err := r.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("kserve v2 readiness %s: %w", url, err)
		}
		_, _ = io.Copy(io.Discard, resp.Body)
		resp.Body.Close()
		if resp.StatusCode != http.StatusOK {
			return fmt.Errorf("kserve v2 readiness %s: status=%d", url, resp.StatusCode)
		}
	}
	return nil
}
