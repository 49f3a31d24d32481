// Package manifest generates the deployment descriptors for both targets:
// the Kubernetes manifest applied to GKE and the Render service blueprint.
package manifest

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/distribution/reference"
	"gopkg.in/yaml.v3"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	networkingv1 "k8s.io/api/networking/v1"
	"k8s.io/apimachinery/pkg/api/resource"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
	"k8s.io/apimachinery/pkg/util/intstr"

	"github.com/tridyme/tridyme-cli/internal/config"
)

const (
	// ContainerPort is the port the backend listens on inside the pod.
	ContainerPort = 8000
	// ServicePort is the port exposed by the ClusterIP service.
	ServicePort = 80
	// IngressClassAnnotation selects the GCE ingress controller.
	IngressClassAnnotation = "kubernetes.io/ingress.class"
	// IngressClass is the value of IngressClassAnnotation.
	IngressClass = "gce"
)

// RegistryHost returns the Artifact Registry host for region.
func RegistryHost(region string) string {
	return region + "-docker.pkg.dev"
}

// ImageRef returns the container image reference for the project.
func ImageRef(cfg *config.ProjectConfig) string {
	return fmt.Sprintf("%s/%s/%s/%s:latest",
		RegistryHost(cfg.GCPRegion()), cfg.GCPProject(), cfg.GCPRepository(), cfg.ProjectName())
}

// ValidateImageRef reports whether ref is a well formed image reference.
func ValidateImageRef(ref string) error {
	if _, err := reference.ParseNormalizedNamed(ref); err != nil {
		return fmt.Errorf("invalid image reference %q: %w", ref, err)
	}
	return nil
}

// ClusterObjects returns the Deployment, Service and Ingress for the project, in apply order.
func ClusterObjects(cfg *config.ProjectConfig, image string) []runtime.Object {
	name := cfg.ProjectName()
	labels := map[string]string{"app": name}
	replicas := int32(1)
	pathType := networkingv1.PathTypeImplementationSpecific

	deployment := &appsv1.Deployment{
		TypeMeta:   metav1.TypeMeta{APIVersion: "apps/v1", Kind: "Deployment"},
		ObjectMeta: metav1.ObjectMeta{Name: name},
		Spec: appsv1.DeploymentSpec{
			Replicas: &replicas,
			Selector: &metav1.LabelSelector{MatchLabels: labels},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: labels},
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{{
						Name:  name,
						Image: image,
						Ports: []corev1.ContainerPort{{ContainerPort: ContainerPort}},
						Resources: corev1.ResourceRequirements{
							Requests: corev1.ResourceList{
								corev1.ResourceCPU:    resource.MustParse("100m"),
								corev1.ResourceMemory: resource.MustParse("128Mi"),
							},
							Limits: corev1.ResourceList{
								corev1.ResourceCPU:    resource.MustParse("500m"),
								corev1.ResourceMemory: resource.MustParse("512Mi"),
							},
						},
					}},
				},
			},
		},
	}

	service := &corev1.Service{
		TypeMeta:   metav1.TypeMeta{APIVersion: "v1", Kind: "Service"},
		ObjectMeta: metav1.ObjectMeta{Name: name},
		Spec: corev1.ServiceSpec{
			Type:     corev1.ServiceTypeClusterIP,
			Selector: labels,
			Ports: []corev1.ServicePort{{
				Port:       ServicePort,
				TargetPort: intstr.FromInt32(ContainerPort),
			}},
		},
	}

	ingress := &networkingv1.Ingress{
		TypeMeta: metav1.TypeMeta{APIVersion: "networking.k8s.io/v1", Kind: "Ingress"},
		ObjectMeta: metav1.ObjectMeta{
			Name:        name,
			Annotations: map[string]string{IngressClassAnnotation: IngressClass},
		},
		Spec: networkingv1.IngressSpec{
			Rules: []networkingv1.IngressRule{{
				IngressRuleValue: networkingv1.IngressRuleValue{
					HTTP: &networkingv1.HTTPIngressRuleValue{
						Paths: []networkingv1.HTTPIngressPath{{
							Path:     "/" + name + "/*",
							PathType: &pathType,
							Backend: networkingv1.IngressBackend{
								Service: &networkingv1.IngressServiceBackend{
									Name: name,
									Port: networkingv1.ServiceBackendPort{Number: ServicePort},
								},
							},
						}},
					},
				},
			}},
		},
	}

	return []runtime.Object{deployment, service, ingress}
}

// Cluster renders the project's Kubernetes manifest as a multi-document YAML stream.
// The output depends only on cfg and image.
func Cluster(cfg *config.ProjectConfig, image string) ([]byte, error) {
	objects := ClusterObjects(cfg, image)
	docs := make([]map[string]any, 0, len(objects))
	for _, obj := range objects {
		content, err := runtime.DefaultUnstructuredConverter.ToUnstructured(obj)
		if err != nil {
			return nil, fmt.Errorf("convert %s: %w", obj.GetObjectKind().GroupVersionKind().Kind, err)
		}
		prune(content)
		docs = append(docs, content)
	}
	return encodeStream(docs)
}

// prune drops server-populated fields that would otherwise be emitted as
// empty values.
func prune(content map[string]any) {
	unstructured.RemoveNestedField(content, "status")
	unstructured.RemoveNestedField(content, "metadata", "creationTimestamp")
	unstructured.RemoveNestedField(content, "spec", "template", "metadata", "creationTimestamp")
	if strategy, found, _ := unstructured.NestedMap(content, "spec", "strategy"); found && len(strategy) == 0 {
		unstructured.RemoveNestedField(content, "spec", "strategy")
	}
}

func encodeStream(docs []map[string]any) ([]byte, error) {
	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	for _, doc := range docs {
		if err := enc.Encode(doc); err != nil {
			_ = enc.Close()
			return nil, fmt.Errorf("encode manifest: %w", err)
		}
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("finalize manifest stream: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeStream splits a multi-document YAML stream into its non-empty documents.
func DecodeStream(data []byte) ([]map[string]any, error) {
	var docs []map[string]any
	dec := yaml.NewDecoder(bytes.NewReader(data))
	for {
		var doc map[string]any
		if err := dec.Decode(&doc); err != nil {
			if errors.Is(err, io.EOF) {
				break
			}
			return nil, fmt.Errorf("decode manifest: %w", err)
		}
		if len(doc) == 0 {
			continue
		}
		docs = append(docs, doc)
	}
	return docs, nil
}
