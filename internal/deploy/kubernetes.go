package deploy

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	apierrors "k8s.io/apimachinery/pkg/api/errors"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"

	"github.com/sparesparrow/build-orchestrator/pkg/models"
)

// KubernetesBackend applies an apps/v1 Deployment for the component image.
// The image is expected to be reachable by the cluster under the same tag
// the docker backend produces.
type KubernetesBackend struct {
	clientset kubernetes.Interface
	namespace string
	logger    zerolog.Logger
}

// NewKubernetesBackend creates a kubernetes deployment backend. kubeconfig
// may be empty, in which case in-cluster configuration is used.
func NewKubernetesBackend(kubeconfig, namespace string, logger zerolog.Logger) (*KubernetesBackend, error) {
	var restConfig *rest.Config
	var err error
	if kubeconfig != "" {
		restConfig, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
	} else {
		restConfig, err = rest.InClusterConfig()
	}
	if err != nil {
		return nil, fmt.Errorf("load kubernetes config: %w", err)
	}

	clientset, err := kubernetes.NewForConfig(restConfig)
	if err != nil {
		return nil, fmt.Errorf("create kubernetes client: %w", err)
	}

	if namespace == "" {
		namespace = "default"
	}

	return &KubernetesBackend{
		clientset: clientset,
		namespace: namespace,
		logger:    logger.With().Str("component", "deploy-kubernetes").Logger(),
	}, nil
}

// Name returns the deploy type served by this backend.
func (b *KubernetesBackend) Name() string {
	return "kubernetes"
}

// Deploy creates or updates a Deployment for the component.
func (b *KubernetesBackend) Deploy(ctx context.Context, cfg *models.BuildConfig, res *models.BuildResult) error {
	version := cfg.Deploy.Version
	if version == "" {
		version = "latest"
	}
	name := strings.ToLower(cfg.Name)
	image := fmt.Sprintf("%s:%s", name, version)

	b.logger.Info().
		Str("name", cfg.Name).
		Str("namespace", b.namespace).
		Str("image", image).
		Msg("Applying Deployment")

	deployment := b.buildDeployment(name, image, cfg.Deploy)

	deployments := b.clientset.AppsV1().Deployments(b.namespace)
	existing, err := deployments.Get(ctx, name, metav1.GetOptions{})
	if apierrors.IsNotFound(err) {
		if _, err := deployments.Create(ctx, deployment, metav1.CreateOptions{}); err != nil {
			return fmt.Errorf("create deployment: %w", err)
		}
		b.logger.Info().Str("name", name).Msg("Deployment created")
		return nil
	}
	if err != nil {
		return fmt.Errorf("get deployment: %w", err)
	}

	existing.Spec = deployment.Spec
	if _, err := deployments.Update(ctx, existing, metav1.UpdateOptions{}); err != nil {
		return fmt.Errorf("update deployment: %w", err)
	}
	b.logger.Info().Str("name", name).Msg("Deployment updated")
	return nil
}

func (b *KubernetesBackend) buildDeployment(name, image string, deploy *models.DeployConfig) *appsv1.Deployment {
	labels := map[string]string{"app": name, "managed-by": "build-orchestrator"}
	replicas := int32(1)

	env := make([]corev1.EnvVar, 0, len(deploy.Env))
	for k, v := range deploy.Env {
		env = append(env, corev1.EnvVar{Name: k, Value: v})
	}

	var ports []corev1.ContainerPort
	for _, spec := range deploy.Ports {
		if p, ok := containerPort(spec); ok {
			ports = append(ports, corev1.ContainerPort{ContainerPort: p})
		}
	}

	return &appsv1.Deployment{
		ObjectMeta: metav1.ObjectMeta{
			Name:      name,
			Namespace: b.namespace,
			Labels:    labels,
		},
		Spec: appsv1.DeploymentSpec{
			Replicas: &replicas,
			Selector: &metav1.LabelSelector{MatchLabels: labels},
			Template: corev1.PodTemplateSpec{
				ObjectMeta: metav1.ObjectMeta{Labels: labels},
				Spec: corev1.PodSpec{
					Containers: []corev1.Container{{
						Name:  name,
						Image: image,
						Env:   env,
						Ports: ports,
					}},
				},
			},
		},
	}
}

// containerPort extracts the container-side port from a "host:container" or
// bare port spec.
func containerPort(spec string) (int32, bool) {
	parts := strings.Split(spec, ":")
	p, err := strconv.Atoi(parts[len(parts)-1])
	if err != nil || p <= 0 || p > 65535 {
		return 0, false
	}
	return int32(p), true
}
