package modelhost

import (
	"fmt"
	"strconv"
	"strings"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/runtime/schema"
)

const (
	apiVersion = "serving.kserve.io/v1beta1"
	kind       = "InferenceService"
	managedBy  = "strategy-eval"

	managedByLabel = "app.kubernetes.io/managed-by"
	modelLabel     = "strategy-eval.giantswarm.io/model"
	gpuResource    = corev1.ResourceName("nvidia.com/gpu")
)

var gvr = schema.GroupVersionResource{
	Group:    "serving.kserve.io",
	Version:  "v1beta1",
	Resource: "inferenceservices",
}

// inferenceService covers the subset of the KServe v1beta1 schema we read and
// write. The KServe SDK is not imported for it.
type inferenceService struct {
	metav1.TypeMeta   `json:",inline"`
	metav1.ObjectMeta `json:"metadata,omitempty"`

	Spec struct {
		Predictor struct {
			Model *predictorModel `json:"model,omitempty"`
		} `json:"predictor"`
	} `json:"spec,omitempty"`

	Status struct {
		URL        string      `json:"url,omitempty"`
		Conditions []condition `json:"conditions,omitempty"`
	} `json:"status,omitempty"`
}

type predictorModel struct {
	ModelFormat struct {
		Name string `json:"name"`
	} `json:"modelFormat"`
	Runtime    string                      `json:"runtime,omitempty"`
	StorageURI string                      `json:"storageUri,omitempty"`
	Args       []string                    `json:"args,omitempty"`
	Resources  corev1.ResourceRequirements `json:"resources,omitempty"`
}

type condition struct {
	Type    string `json:"type"`
	Status  string `json:"status"`
	Reason  string `json:"reason,omitempty"`
	Message string `json:"message,omitempty"`
}

// ready returns whether the Ready condition is True, plus a short
// explanation when it is not.
func (s *inferenceService) ready() (bool, string) {
	for _, c := range s.Status.Conditions {
		if c.Type != "Ready" {
			continue
		}
		if c.Status == "True" {
			return true, ""
		}
		if c.Message != "" {
			return false, c.Message
		}
		return false, strings.ToLower(c.Reason)
	}
	return false, "pending"
}

func newInferenceService(spec Spec, namespace string) *inferenceService {
	isvc := &inferenceService{
		TypeMeta: metav1.TypeMeta{APIVersion: apiVersion, Kind: kind},
		ObjectMeta: metav1.ObjectMeta{
			Name:      resourceName(spec.Name),
			Namespace: namespace,
			Labels: map[string]string{
				managedByLabel: managedBy,
				modelLabel:     resourceName(spec.Name),
			},
			Annotations: map[string]string{
				"strategy-eval.giantswarm.io/served-model": spec.Name,
			},
		},
	}

	m := &predictorModel{
		Runtime:    spec.Runtime,
		StorageURI: spec.StorageURI,
		Args:       spec.Args,
	}
	m.ModelFormat.Name = "vLLM"
	if spec.GPUs > 0 {
		gpus := resource.MustParse(strconv.Itoa(spec.GPUs))
		m.Resources = corev1.ResourceRequirements{
			Requests: corev1.ResourceList{gpuResource: gpus},
			Limits:   corev1.ResourceList{gpuResource: gpus},
		}
	}
	isvc.Spec.Predictor.Model = m
	return isvc
}

func (s *inferenceService) unstructured() (*unstructured.Unstructured, error) {
	obj, err := runtime.DefaultUnstructuredConverter.ToUnstructured(s)
	if err != nil {
		return nil, fmt.Errorf("failed to encode InferenceService %s: %w", s.Name, err)
	}
	return &unstructured.Unstructured{Object: obj}, nil
}

func decodeInferenceService(obj *unstructured.Unstructured) (*inferenceService, error) {
	var isvc inferenceService
	if err := runtime.DefaultUnstructuredConverter.FromUnstructured(obj.Object, &isvc); err != nil {
		return nil, fmt.Errorf("failed to decode InferenceService %s: %w", obj.GetName(), err)
	}
	return &isvc, nil
}

// resourceName turns a model name into a DNS-1123 label: lowercase
// alphanumerics and dashes, starting with a letter, at most 63 characters.
func resourceName(name string) string {
	var b strings.Builder
	for _, c := range strings.ToLower(name) {
		switch {
		case c >= 'a' && c <= 'z', c >= '0' && c <= '9', c == '-':
			b.WriteRune(c)
		case strings.ContainsRune("_./@:", c):
			b.WriteByte('-')
		}
	}
	out := b.String()
	if out != "" && (out[0] < 'a' || out[0] > 'z') {
		out = "m-" + out
	}
	if len(out) > 63 {
		out = out[:63]
	}
	return strings.TrimRight(out, "-")
}

// ClusterURL is the in-cluster OpenAI-compatible base URL of a served model.
func ClusterURL(name, namespace string) string {
	return fmt.Sprintf("http://%s.%s.svc.cluster.local/v1", resourceName(name), namespace)
}
