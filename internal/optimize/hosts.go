package optimize

import "playbookctl/internal/inventory"

// ComputeForAllHosts returns the vars file of every host under
// inventoryRoot/host_vars, canonical and sorted.
func ComputeForAllHosts(inventoryRoot string) ([]string, error) {
	return inventory.NewResolver(inventoryRoot).AllHosts()
}

// ComputeForHost returns the single vars file of hostname, or a
// NotFoundError.
func ComputeForHost(inventoryRoot, hostname string) ([]string, error) {
	return inventory.NewResolver(inventoryRoot).Host(hostname)
}
