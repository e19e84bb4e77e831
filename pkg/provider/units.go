package provider

import (
	"fmt"
	"sort"

	"github.com/cuemby/upgrade-harness/pkg/config"
	"github.com/cuemby/upgrade-harness/pkg/tunnel"
	"github.com/cuemby/upgrade-harness/pkg/types"
)

// licenseDataKey is the key inside the license secret the chart reads
const licenseDataKey = "licensekey"

// deployUnit is one helm release of the product
type deployUnit struct {
	name        string
	valuesFiles []string
	roles       []types.Role
	// monolithic units play both roles from a single release
	monolithic bool
}

func (u deployUnit) secretName() string {
	return u.name + "-license"
}

func (u deployUnit) has(role types.Role) bool {
	for _, r := range u.roles {
		if r == role {
			return true
		}
	}
	return false
}

// buildUnits derives the deploy units. The control plane is ordered first
// so gateways find the management API running.
func buildUnits(cfg config.ClusterConfig) []deployUnit {
	releases := cfg.ReleaseList()
	if len(releases) == 0 {
		return []deployUnit{{
			name:        cfg.FallbackRelease,
			valuesFiles: append([]string{}, cfg.ValuesFiles...),
			roles:       []types.Role{types.RoleControlPlane, types.RoleDataPlane},
			monolithic:  true,
		}}
	}

	units := make([]deployUnit, 0, len(releases))
	for _, r := range releases {
		files := append(append([]string{}, cfg.ValuesFiles...), r.ValuesFiles...)
		units = append(units, deployUnit{
			name:        r.Name,
			valuesFiles: files,
			roles:       []types.Role{r.Role},
		})
	}
	sort.SliceStable(units, func(i, j int) bool {
		return units[i].has(types.RoleControlPlane) && !units[j].has(types.RoleControlPlane)
	})
	return units
}

// tagValues are the image tag --set pairs for the given roles
func tagValues(keys config.TagKeys, version string, roles ...types.Role) map[string]string {
	values := make(map[string]string)
	for _, role := range roles {
		switch role {
		case types.RoleControlPlane:
			values[keys.API] = version
			values[keys.UI] = version
		case types.RoleDataPlane:
			values[keys.Gateway] = version
		}
	}
	return values
}

// artifactsFor names the registry artifacts a role runs
func artifactsFor(images config.ImagesConfig, roles ...types.Role) []string {
	var artifacts []string
	for _, role := range roles {
		switch role {
		case types.RoleControlPlane:
			artifacts = append(artifacts, images.API, images.UI)
		case types.RoleDataPlane:
			artifacts = append(artifacts, images.Gateway)
		}
	}
	return artifacts
}

// tunnelRoles maps a deployment role to the tunnel roles serving it
func tunnelRoles(role types.Role) []tunnel.Role {
	if role == types.RoleControlPlane {
		return []tunnel.Role{tunnel.RoleAPI, tunnel.RoleUI}
	}
	return []tunnel.Role{tunnel.RoleGateway1, tunnel.RoleGateway2}
}

// tunnelSpecs lays the units onto the fixed local ports. Data-plane units
// take gateway-1 then gateway-2 in order.
func tunnelSpecs(units []deployUnit, ports config.PortsConfig) []tunnel.Spec {
	spec := func(role tunnel.Role, unit string, p config.PortConfig) tunnel.Spec {
		return tunnel.Spec{
			Role:       role,
			Resource:   fmt.Sprintf("svc/%s-%s", unit, p.Suffix),
			LocalPort:  p.Local,
			RemotePort: p.Remote,
		}
	}

	var specs []tunnel.Spec
	gateways := 0
	for _, u := range units {
		if u.has(types.RoleControlPlane) {
			specs = append(specs,
				spec(tunnel.RoleAPI, u.name, ports.API),
				spec(tunnel.RoleUI, u.name, ports.UI))
		}
		if u.has(types.RoleDataPlane) {
			switch gateways {
			case 0:
				specs = append(specs, spec(tunnel.RoleGateway1, u.name, ports.Gateway1))
			case 1:
				specs = append(specs, spec(tunnel.RoleGateway2, u.name, ports.Gateway2))
			}
			gateways++
		}
	}
	return specs
}

// envKeys maps tunnel roles to the test environment
var envKeys = map[tunnel.Role]string{
	tunnel.RoleAPI:      EnvManagementURL,
	tunnel.RoleUI:       EnvUIURL,
	tunnel.RoleGateway1: EnvGatewayURL,
	tunnel.RoleGateway2: EnvGateway2URL,
}
