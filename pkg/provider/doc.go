/*
Package provider implements the deployment backends driven by the
orchestrator.

Every backend implements Provider. Capabilities only some backends have are
separate interfaces checked with a type assertion:

	if s, ok := p.(provider.Setuper); ok {
		err = s.Setup(ctx)
	}

# Compose

Compose runs the product with `docker compose`. The version is selected by an
environment variable; an upgrade re-applies the compose file for one
component's services and polls until they are healthy.

# Cluster

Cluster deploys the product chart with helm into a Kubernetes cluster,
bootstrapping a local kind cluster when none is reachable. The deployment is
a list of units:

  - zero configured releases: one monolithic unit playing both roles
  - otherwise: one unit per release, each with a single role

All naming (license secret, service names, tunnel roles) derives from the
unit, so the monolithic topology needs no special cases. After every deploy
or upgrade the tunnels of the touched role are restarted so verification
never talks to a terminated pod.
*/
package provider
