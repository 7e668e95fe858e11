// Copyright (c) 2025, NVIDIA CORPORATION.  All rights reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package inventory

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	v1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	"k8s.io/client-go/util/homedir"
)

const roleLabelPrefix = "node-role.kubernetes.io/"

// Kubernetes lists cluster nodes through the API server and maps them to
// inventory records. Node ids are ordinals over the name-sorted node list,
// which keeps them stable for a given cluster membership.
type Kubernetes struct {
	client    kubernetes.Interface
	clusterID int
}

// NewKubernetes creates a Kubernetes inventory source. The kubeconfig path
// may be empty, in which case discovery follows KUBECONFIG, ~/.kube/config,
// then in-cluster configuration.
func NewKubernetes(kubeconfig string, clusterID int) (*Kubernetes, error) {
	client, err := buildKubeClient(kubeconfig)
	if err != nil {
		return nil, err
	}
	return &Kubernetes{client: client, clusterID: clusterID}, nil
}

// NewKubernetesWithClient creates a source around an existing client.
// Used by tests with the fake clientset.
func NewKubernetesWithClient(client kubernetes.Interface, clusterID int) *Kubernetes {
	return &Kubernetes{client: client, clusterID: clusterID}
}

// Records implements Source.
func (k *Kubernetes) Records(ctx context.Context) ([]Record, error) {
	list, err := k.client.CoreV1().Nodes().List(ctx, metav1.ListOptions{})
	if err != nil {
		return nil, fmt.Errorf("listing cluster nodes: %w", err)
	}

	nodes := list.Items
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].Name < nodes[j].Name })

	records := make([]Record, 0, len(nodes))
	for i := range nodes {
		records = append(records, k.toRecord(&nodes[i], i+1))
	}
	return records, nil
}

// ReleaseMap implements Source. Kubernetes reports one release for the
// whole cluster: the API server version.
func (k *Kubernetes) ReleaseMap(ctx context.Context) (map[int]string, error) {
	release, err := k.ControlPlaneRelease(ctx)
	if err != nil {
		return nil, err
	}
	return map[int]string{k.clusterID: release}, nil
}

// ControlPlaneRelease implements Source.
func (k *Kubernetes) ControlPlaneRelease(_ context.Context) (string, error) {
	info, err := k.client.Discovery().ServerVersion()
	if err != nil {
		return "", fmt.Errorf("querying server version: %w", err)
	}
	return info.GitVersion, nil
}

func (k *Kubernetes) toRecord(node *v1.Node, id int) Record {
	rec := Record{
		ID:         id,
		Cluster:    k.clusterID,
		Name:       node.Name,
		FQDN:       node.Name,
		MAC:        "n/a",
		OSPlatform: platformOf(node),
		Roles:      rolesOf(node),
		Status:     "notready",
	}

	for _, cond := range node.Status.Conditions {
		if cond.Type == v1.NodeReady && cond.Status == v1.ConditionTrue {
			rec.Online = true
			rec.Status = "ready"
		}
	}

	for _, a := range node.Status.Addresses {
		switch a.Type {
		case v1.NodeInternalIP:
			rec.Addr = a.Address
		case v1.NodeHostName:
			rec.FQDN = a.Address
		}
	}
	return rec
}

// rolesOf extracts role labels; unlabeled nodes default to "worker".
func rolesOf(node *v1.Node) Roles {
	var roles Roles
	for label := range node.Labels {
		if role := strings.TrimPrefix(label, roleLabelPrefix); role != label && role != "" {
			roles = append(roles, role)
		}
	}
	if len(roles) == 0 {
		roles = Roles{"worker"}
	}
	sort.Strings(roles)
	return roles
}

// platformOf reports the OS distribution tag, e.g. "ubuntu" out of
// "Ubuntu 24.04.1 LTS".
func platformOf(node *v1.Node) string {
	image := node.Status.NodeInfo.OSImage
	if image == "" {
		return node.Status.NodeInfo.OperatingSystem
	}
	return strings.ToLower(strings.Fields(image)[0])
}

// buildKubeClient creates a Kubernetes client from the given kubeconfig
// path, falling back to KUBECONFIG, ~/.kube/config, then in-cluster config.
func buildKubeClient(kubeconfig string) (*kubernetes.Clientset, error) {
	if kubeconfig == "" {
		kubeconfig = os.Getenv("KUBECONFIG")
		if kubeconfig == "" {
			candidate := filepath.Join(homedir.HomeDir(), ".kube", "config")
			if _, err := os.Stat(candidate); err == nil {
				kubeconfig = candidate
			}
		}
	}

	var cfg *rest.Config
	var err error
	if kubeconfig == "" {
		cfg, err = rest.InClusterConfig()
		if err != nil {
			return nil, fmt.Errorf("getting in-cluster config: %w", err)
		}
	} else {
		cfg, err = clientcmd.BuildConfigFromFlags("", kubeconfig)
		if err != nil {
			return nil, fmt.Errorf("building kube config from %s: %w", kubeconfig, err)
		}
	}

	client, err := kubernetes.NewForConfig(cfg)
	if err != nil {
		return nil, fmt.Errorf("creating kubernetes client: %w", err)
	}
	return client, nil
}
