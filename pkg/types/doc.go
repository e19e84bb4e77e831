/*
Package types defines the core data structures shared by the harness.

# Stages

A run is an ordered list of Stage values. Pipeline returns the fixed order:

	clean -> cluster-setup -> deploy-from -> verify-baseline
	      -> upgrade-api -> verify-api -> upgrade-gateway -> verify-all

and, when downgrade is requested, the mirrored tail:

	downgrade-api -> verify-after-downgrade-api
	              -> downgrade-gateway -> verify-after-downgrade

The "api" component is the control plane (management API and console UI
images). The "gateway" component is the data plane.

# Options

Options is built once per CLI invocation and validated with struct tags
before any infrastructure is touched. It is passed by value and never
mutated afterwards.

# Releases and roles

A Release is a deployable unit under the cluster backend, tagged with the Role
it plays. Zero configured releases means a single monolithic unit that plays
both roles; see package provider.
*/
package types
