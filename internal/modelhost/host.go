package modelhost

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/util/wait"
	"k8s.io/client-go/dynamic"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/giantswarm/strategy-eval/internal/llm"
	"github.com/giantswarm/strategy-eval/internal/testsuite"
)

// Host deploys, inspects and removes served models in one namespace.
type Host struct {
	client       dynamic.Interface
	namespace    string
	pollInterval time.Duration

	mu       sync.Mutex
	deployed map[string]bool // models this Host created and must tear down
}

// New connects to the cluster from a kubeconfig (empty uses the default
// loading rules) or from the in-cluster service account.
func New(namespace, kubeconfig string, inCluster bool) (*Host, error) {
	var (
		cfg *rest.Config
		err error
	)
	if inCluster {
		cfg, err = rest.InClusterConfig()
	} else {
		rules := clientcmd.NewDefaultClientConfigLoadingRules()
		rules.ExplicitPath = kubeconfig
		cfg, err = clientcmd.NewNonInteractiveDeferredLoadingClientConfig(rules, &clientcmd.ConfigOverrides{}).ClientConfig()
	}
	if err != nil {
		return nil, fmt.Errorf("failed to create kubernetes config: %w", err)
	}

	client, err := dynamic.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create dynamic client: %w", err)
	}
	return NewWithClient(client, namespace), nil
}

// NewWithClient wraps an existing dynamic client.
func NewWithClient(client dynamic.Interface, namespace string) *Host {
	return &Host{
		client:       client,
		namespace:    namespace,
		pollInterval: 5 * time.Second,
		deployed:     make(map[string]bool),
	}
}

func (h *Host) resources() dynamic.ResourceInterface {
	return h.client.Resource(gvr).Namespace(h.namespace)
}

// Available reports an error when the InferenceService CRD cannot be listed.
func (h *Host) Available(ctx context.Context) error {
	if _, err := h.resources().List(ctx, metav1.ListOptions{Limit: 1}); err != nil {
		return fmt.Errorf("KServe InferenceService CRD is not available in the cluster: %w", err)
	}
	return nil
}

// Deploy creates the InferenceService for spec and blocks until it reports
// Ready or spec.ReadyTimeout passes.
func (h *Host) Deploy(ctx context.Context, spec Spec) (*Endpoint, error) {
	if err := spec.validate(); err != nil {
		return nil, err
	}

	isvc := newInferenceService(spec, h.namespace)
	obj, err := isvc.unstructured()
	if err != nil {
		return nil, err
	}

	slog.Info("deploying model",
		"name", isvc.Name,
		"storage_uri", spec.StorageURI,
		"gpus", spec.GPUs,
	)

	if _, err := h.resources().Create(ctx, obj, metav1.CreateOptions{}); err != nil {
		return nil, fmt.Errorf("failed to create InferenceService %s: %w", isvc.Name, err)
	}
	h.mu.Lock()
	h.deployed[isvc.Name] = true
	h.mu.Unlock()

	timeout := spec.ReadyTimeout
	if timeout <= 0 {
		timeout = defaultReadyTimeout
	}

	var ep *Endpoint
	err = wait.PollUntilContextTimeout(ctx, h.pollInterval, timeout, true, func(ctx context.Context) (bool, error) {
		ep, err = h.Get(ctx, isvc.Name)
		if err != nil {
			return false, err
		}
		if !ep.Ready {
			slog.Debug("model not ready yet", "name", isvc.Name, "message", ep.Message)
		}
		return ep.Ready, nil
	})
	if err != nil {
		return nil, fmt.Errorf("InferenceService %s not ready: %w", isvc.Name, err)
	}

	slog.Info("model ready", "name", isvc.Name, "url", ep.URL)
	return ep, nil
}

// Get returns the endpoint of a served model.
func (h *Host) Get(ctx context.Context, name string) (*Endpoint, error) {
	rn := resourceName(name)
	obj, err := h.resources().Get(ctx, rn, metav1.GetOptions{})
	if err != nil {
		return nil, fmt.Errorf("failed to get InferenceService %s: %w", rn, err)
	}
	isvc, err := decodeInferenceService(obj)
	if err != nil {
		return nil, err
	}
	ep := h.endpoint(isvc)
	return &ep, nil
}

// List returns every model served by this tool in the namespace.
func (h *Host) List(ctx context.Context) ([]Endpoint, error) {
	list, err := h.resources().List(ctx, metav1.ListOptions{
		LabelSelector: managedByLabel + "=" + managedBy,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list InferenceServices: %w", err)
	}

	out := make([]Endpoint, 0, len(list.Items))
	for i := range list.Items {
		isvc, err := decodeInferenceService(&list.Items[i])
		if err != nil {
			slog.Warn("skipping undecodable InferenceService", "name", list.Items[i].GetName(), "error", err)
			continue
		}
		out = append(out, h.endpoint(isvc))
	}
	return out, nil
}

// Teardown deletes a served model. Deleting a model that does not exist is
// not an error.
func (h *Host) Teardown(ctx context.Context, name string) error {
	rn := resourceName(name)
	slog.Info("tearing down model", "name", rn)

	grace := int64(30)
	foreground := metav1.DeletePropagationForeground
	err := h.resources().Delete(ctx, rn, metav1.DeleteOptions{
		GracePeriodSeconds: &grace,
		PropagationPolicy:  &foreground,
	})

	h.mu.Lock()
	delete(h.deployed, rn)
	h.mu.Unlock()

	if err != nil && !apierrors.IsNotFound(err) {
		return fmt.Errorf("failed to delete InferenceService %s: %w", rn, err)
	}
	return nil
}

// ClientForModel returns an LLM client for model. Models with a ModelURI are
// deployed first; others must already be served.
func (h *Host) ClientForModel(ctx context.Context, model testsuite.Model) (llm.Client, error) {
	var (
		ep  *Endpoint
		err error
	)
	if model.ModelURI != "" {
		ep, err = h.Deploy(ctx, SpecFor(model))
	} else {
		ep, err = h.Get(ctx, model.Name)
		if err == nil && !ep.Ready {
			err = fmt.Errorf("model %s is not ready: %s", model.Name, ep.Message)
		}
	}
	if err != nil {
		return nil, err
	}

	return llm.NewOpenAIClient(
		llm.WithBaseURL(ep.URL),
		llm.WithAPIKey("not-needed"),
		llm.WithModel(model.Name),
	), nil
}

// Release tears down model if this Host deployed it. Models that were
// already served are left alone.
func (h *Host) Release(ctx context.Context, model testsuite.Model) error {
	rn := resourceName(model.Name)
	h.mu.Lock()
	owned := h.deployed[rn]
	h.mu.Unlock()
	if !owned {
		return nil
	}
	return h.Teardown(ctx, model.Name)
}

func (h *Host) endpoint(isvc *inferenceService) Endpoint {
	ep := Endpoint{
		Name:      isvc.Name,
		CreatedAt: isvc.CreationTimestamp.Format(time.RFC3339),
	}
	ready, msg := isvc.ready()
	if !ready {
		ep.Message = msg
		return ep
	}
	ep.Ready = true
	ep.URL = isvc.Status.URL
	if ep.URL == "" {
		ep.URL = ClusterURL(isvc.Name, h.namespace)
	}
	return ep
}
