// Package stages holds the collaborators behind each processing phase:
// probing the provider for an archive, downloading it, extracting and
// cleaning the CSV inside and loading the rows into the destination
// store. Each collaborator implements pipeline.Stage and owns all
// protocol and format detail for its phase; the pipeline manager only
// sees outcomes.
package stages
