package cluster

// see https://github.com/kubernetes/client-go/blob/master/examples/in-cluster-client-configuration/main.go

import (
	"errors"
	"io/ioutil"
	"log"
	"os"
	"strings"

	"k8s.io/client-go/kubernetes"
	"k8s.io/client-go/rest"
	"k8s.io/client-go/tools/clientcmd"
	//
	// load all auth plugins, for out-of-cluster use against managed clusters
	_ "k8s.io/client-go/plugin/pkg/client/auth"
)

const serviceAccountNamespaceFile = "/var/run/secrets/kubernetes.io/serviceaccount/namespace"

/**
initialise connection to Kubernetes from a pod within the cluster
*/
func InClusterClient() (*kubernetes.Clientset, error) {
	config, err := rest.InClusterConfig()
	if err != nil {
		log.Print("Could not establish cluster connection: ", err)
		return nil, err
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		log.Print("Could not establish cluster connection: ", err)
		return nil, err
	}

	return clientset, nil
}

/**
initialise a connection to Kubernetes from outside the cluster. This requires a kubeconfig file (e.g. for kubectl)
to describe how to connect and authorise to the cluster
*/
func OutOfClusterClient(kubeConfigPath string) (*kubernetes.Clientset, error) {
	config, err := clientcmd.BuildConfigFromFlags("", kubeConfigPath)
	if err != nil {
		log.Print("Could not build out-of-cluster config: ", err)
		return nil, err
	}

	clientset, err := kubernetes.NewForConfig(config)
	if err != nil {
		log.Print("Could not establish cluster connection: ", err)
		return nil, err
	}

	return clientset, nil
}

/**
in-cluster configuration is preferred; if we are not in a cluster then fall back to the given kubeconfig
(or the default loading rules if that is empty)
*/
func GetK8Client(kubeConfigPath string) (*kubernetes.Clientset, error) {
	k8Client, inClusterErr := InClusterClient()
	if inClusterErr == nil {
		log.Print("Using in-cluster kubernetes configuration")
		return k8Client, nil
	}

	if kubeConfigPath == "" {
		kubeConfigPath = clientcmd.NewDefaultClientConfigLoadingRules().GetDefaultFilename()
	}
	log.Printf("Not running in a cluster, using kubeconfig from %s", kubeConfigPath)
	return OutOfClusterClient(kubeConfigPath)
}

/**
determine the namespace that we are running in.  This only works inside a cluster, outside of one
an error is returned and the caller should use configuration instead
*/
func GetMyNamespace() (string, error) {
	_, statErr := os.Stat(serviceAccountNamespaceFile)
	if statErr != nil {
		if os.IsNotExist(statErr) {
			return "", errors.New("not running inside a cluster")
		}
		log.Print("ERROR asserting kubernetes namespace: ", statErr)
		return "", statErr
	}

	content, readErr := ioutil.ReadFile(serviceAccountNamespaceFile)
	if readErr != nil {
		log.Print("Could not read in k8s namespace: ", readErr)
		return "", readErr
	}
	return strings.TrimSpace(string(content)), nil
}
