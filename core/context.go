package core

import "strconv"

// Kernel is the read-only identity of the process that runs scripts.
//
// A task sees it as its own owner id (for "$key" reads) and as the
// tuples ID:kernel.name and ID:kernel.id.
type Kernel struct {
	Name string `json:"name" yaml:"name" toml:"name"`
	ID   int    `json:"id" yaml:"id" toml:"id"`
}

func (k Kernel) String() string {
	return k.Name + "#" + strconv.Itoa(k.ID)
}
