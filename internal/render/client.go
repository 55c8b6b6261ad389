// Package render talks to an Automatic1111-compatible txt2img REST service.
// Submissions are wrapped in an asynchronous job handle so callers can poll
// progress or block for the final images.
package render

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	pkgLogger "musegen/pkg/logger"
)

// Params are the base generation parameters shared by every render in a
// session. Seed -1 asks the service to pick one; the chosen per-image seeds
// come back in the result.
type Params struct {
	Model          string  `yaml:"model" json:"-"`
	Steps          int     `yaml:"steps" json:"steps"`
	CfgScale       float64 `yaml:"cfg_scale" json:"cfg_scale"`
	Width          int     `yaml:"width" json:"width"`
	Height         int     `yaml:"height" json:"height"`
	Sampler        string  `yaml:"sampler" json:"sampler_name"`
	NegativePrompt string  `yaml:"negative_prompt" json:"negative_prompt"`
	BatchSize      int     `yaml:"batch_size" json:"batch_size"`
	Seed           int64   `yaml:"-" json:"seed"`
}

// Result is a completed render: always at least one image on success, with
// the seed the service actually used for each.
type Result struct {
	Images [][]byte
	Seeds  []int64
}

// Progress is a point-in-time snapshot of a running job.
type Progress struct {
	Fraction   float64
	ETASeconds float64
	Preview    []byte
}

// Client issues render jobs against one service endpoint.
type Client struct {
	baseURL string
	http    *http.Client
	logger  *pkgLogger.Logger
}

// NewClient creates a render client. timeout bounds a single txt2img call
// end to end; generation on slow hardware can take minutes, so callers
// should be generous.
func NewClient(baseURL string, timeout time.Duration, logger *pkgLogger.Logger) *Client {
	if timeout <= 0 {
		timeout = 5 * time.Minute
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		logger:  logger.WithComponent("render"),
	}
}

// Job is an in-flight render. Await blocks for the outcome; Progress may be
// polled concurrently while waiting.
type Job struct {
	ID     uuid.UUID
	client *Client

	done   chan struct{}
	result *Result
	err    error
}

// Submit starts a render job for the given prompt. The request runs on its
// own goroutine; errors surface from Await.
func (c *Client) Submit(params Params, prompt string) *Job {
	job := &Job{
		ID:     uuid.New(),
		client: c,
		done:   make(chan struct{}),
	}

	c.logger.Debug("submitting render job", "job", job.ID, "prompt", prompt)
	go func() {
		defer close(job.done)
		job.result, job.err = c.generate(params, prompt)
	}()
	return job
}

// Done is closed when the job finishes. Lets callers poll progress while
// waiting without blocking on Await.
func (j *Job) Done() <-chan struct{} {
	return j.done
}

// Await blocks until the job finishes and returns its result or error.
func (j *Job) Await() (*Result, error) {
	<-j.done
	if j.err != nil {
		return nil, errors.Wrapf(j.err, "render job %s failed", j.ID)
	}
	return j.result, nil
}

// Progress fetches the service's current progress. The service reports
// progress globally, which is fine here: the feedback loop renders one job
// at a time.
func (j *Job) Progress() (Progress, error) {
	resp, err := j.client.http.Get(j.client.baseURL + "/sdapi/v1/progress")
	if err != nil {
		return Progress{}, errors.Wrap(err, "progress request failed")
	}
	defer resp.Body.Close()

	var body struct {
		Progress     float64 `json:"progress"`
		EtaRelative  float64 `json:"eta_relative"`
		CurrentImage string  `json:"current_image"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return Progress{}, errors.Wrap(err, "failed to decode progress response")
	}

	p := Progress{Fraction: body.Progress, ETASeconds: body.EtaRelative}
	if body.CurrentImage != "" {
		if preview, err := base64.StdEncoding.DecodeString(body.CurrentImage); err == nil {
			p.Preview = preview
		}
	}
	return p, nil
}

// generate performs the blocking txt2img call.
func (c *Client) generate(params Params, prompt string) (*Result, error) {
	reqBody := struct {
		Prompt string `json:"prompt"`
		Params
		OverrideSettings map[string]string `json:"override_settings,omitempty"`
	}{
		Prompt: prompt,
		Params: params,
	}
	if params.Model != "" {
		reqBody.OverrideSettings = map[string]string{"sd_model_checkpoint": params.Model}
	}

	payload, err := json.Marshal(reqBody)
	if err != nil {
		return nil, errors.Wrap(err, "failed to encode txt2img request")
	}

	resp, err := c.http.Post(c.baseURL+"/sdapi/v1/txt2img", "application/json", bytes.NewReader(payload))
	if err != nil {
		return nil, errors.Wrap(err, "txt2img request failed")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, errors.Errorf("txt2img returned status %d: %s", resp.StatusCode, msg)
	}

	var body struct {
		Images []string `json:"images"`
		Info   string   `json:"info"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, errors.Wrap(err, "failed to decode txt2img response")
	}
	if len(body.Images) == 0 {
		return nil, errors.New("txt2img returned no images")
	}

	result := &Result{}
	for _, img := range body.Images {
		raw, err := base64.StdEncoding.DecodeString(img)
		if err != nil {
			return nil, errors.Wrap(err, "failed to decode image data")
		}
		result.Images = append(result.Images, raw)
	}

	// info is a JSON document serialized into a string field
	var info struct {
		Seed     int64   `json:"seed"`
		AllSeeds []int64 `json:"all_seeds"`
	}
	if err := json.Unmarshal([]byte(body.Info), &info); err == nil && len(info.AllSeeds) > 0 {
		result.Seeds = info.AllSeeds
	} else {
		for range result.Images {
			result.Seeds = append(result.Seeds, info.Seed)
		}
	}
	for len(result.Seeds) < len(result.Images) {
		result.Seeds = append(result.Seeds, 0)
	}
	return result, nil
}
