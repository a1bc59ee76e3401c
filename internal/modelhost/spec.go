// Package modelhost serves open-weight models on a Kubernetes cluster through
// KServe so they can be benchmarked next to hosted API models.
package modelhost

import (
	"fmt"
	"time"

	"github.com/giantswarm/strategy-eval/internal/testsuite"
)

const (
	defaultRuntime      = "kserve-vllm"
	defaultReadyTimeout = 10 * time.Minute
)

// Spec describes how a model is served.
type Spec struct {
	// Name is both the resource name (after sanitizing) and the served model name.
	Name string
	// StorageURI locates the weights, e.g. "hf://mistralai/Mistral-7B-Instruct-v0.3".
	StorageURI   string
	Runtime      string
	GPUs         int
	Args         []string
	ReadyTimeout time.Duration
}

// SpecFor derives a serving spec from a benchmark model. The model is served
// under its own name so requests can keep using it.
func SpecFor(model testsuite.Model) Spec {
	gpus := model.GPUCount
	if gpus <= 0 {
		gpus = 1
	}
	return Spec{
		Name:         model.Name,
		StorageURI:   model.ModelURI,
		Runtime:      defaultRuntime,
		GPUs:         gpus,
		Args:         []string{"--served-model-name=" + model.Name},
		ReadyTimeout: defaultReadyTimeout,
	}
}

func (s Spec) validate() error {
	if s.Name == "" {
		return fmt.Errorf("model name is required")
	}
	if s.StorageURI == "" {
		return fmt.Errorf("storage URI is required for model %s", s.Name)
	}
	return nil
}

// Endpoint is the observed state of a served model.
type Endpoint struct {
	Name      string `json:"name"`
	Ready     bool   `json:"ready"`
	URL       string `json:"url,omitempty"`
	CreatedAt string `json:"created_at,omitempty"`
	Message   string `json:"message,omitempty"`
}
