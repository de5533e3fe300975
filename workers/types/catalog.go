package types

import "github.com/walesch-yan/argussight/workers"

// Catalog is the full compiled-in worker-type catalog (spec §9's
// "no runtime reflection required"): the set of types cmd/argusd wires into
// the Supervisor at startup.
func Catalog() map[string]workers.TypeDescriptor {
	return map[string]workers.TypeDescriptor{
		TestDescriptor.TypeName:  TestDescriptor,
		SaverDescriptor.TypeName: SaverDescriptor,
		FlowDescriptor.TypeName:  FlowDescriptor,
	}
}
