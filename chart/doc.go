// Package chart writes resolved versions into a Helm chart repository and
// publishes charts to OCI registries.
//
// Updater clones the chart repository into memory, edits Chart.yaml and the
// values file with the yaml.v3 node API so comments and key order survive,
// then commits and pushes. Pushes rejected because the branch moved are
// retried from the new remote tip.
//
// Releaser packages a chart directory with helm and pushes it through
// oci.Client. Every manifest carries a content digest annotation, which makes
// re-publishing the same chart a no-op and publishing different content under
// an existing version a conflict.
package chart
