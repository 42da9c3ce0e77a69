package coordinator

import (
	"fmt"

	batchv1 "k8s.io/api/batch/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/apis/meta/v1/unstructured"
	"k8s.io/apimachinery/pkg/runtime"
)

const manualInstantiationAnnotation = "cronjob.kubernetes.io/instantiate"

/**
builds a Job named `name` from the cronjob's job template, the same way `kubectl create job --from=cronjob/...`
does. The template's spec is round-tripped through its unstructured form so that the new Job shares
nothing with the cronjob object, and restartPolicy defaults to Never.
*/
func BuildJobFromCronJob(name string, cronJob *batchv1.CronJob) (*batchv1.Job, error) {
	template := cronJob.Spec.JobTemplate
	if len(template.Spec.Template.Spec.Containers) == 0 {
		return nil, &ConfigurationError{CronJobName: cronJob.Name, Reason: "job template has no pod spec"}
	}

	specContent, toErr := runtime.DefaultUnstructuredConverter.ToUnstructured(&template.Spec)
	if toErr != nil {
		return nil, fmt.Errorf("could not convert job template of %s: %w", cronJob.Name, toErr)
	}

	restartPolicy, found, _ := unstructured.NestedString(specContent, "template", "spec", "restartPolicy")
	if !found || restartPolicy == "" {
		setErr := unstructured.SetNestedField(specContent, string(corev1.RestartPolicyNever), "template", "spec", "restartPolicy")
		if setErr != nil {
			return nil, fmt.Errorf("could not set restartPolicy for %s: %w", name, setErr)
		}
	}

	var spec batchv1.JobSpec
	if fromErr := runtime.DefaultUnstructuredConverter.FromUnstructured(specContent, &spec); fromErr != nil {
		return nil, fmt.Errorf("could not rebuild job spec for %s: %w", name, fromErr)
	}

	annotations := map[string]string{}
	for k, v := range template.Annotations {
		annotations[k] = v
	}
	annotations[manualInstantiationAnnotation] = "manual"

	labels := map[string]string{}
	for k, v := range template.Labels {
		labels[k] = v
	}

	return &batchv1.Job{
		TypeMeta: metav1.TypeMeta{APIVersion: "batch/v1", Kind: "Job"},
		ObjectMeta: metav1.ObjectMeta{
			Name:        name,
			Namespace:   cronJob.Namespace,
			Labels:      labels,
			Annotations: annotations,
		},
		Spec: spec,
	}, nil
}
