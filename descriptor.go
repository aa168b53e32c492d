package modserver

// Descriptor is a constructible module definition supplied by a Source.
// Its capabilities decide how it is classified:
//
//   - ModuleFactory: a full module, constructed and optionally loaded.
//   - ResourceType: a resource-type contribution.
//   - anything else: a generic descriptor with no contributions.
type Descriptor any

// DescriptorKind is the result of classifying a Descriptor.
type DescriptorKind int

const (
	KindGeneric DescriptorKind = iota
	KindModule
	KindResourceType
)

func (k DescriptorKind) String() string {
	switch k {
	case KindModule:
		return "module"
	case KindResourceType:
		return "resource-type"
	default:
		return "generic"
	}
}

// Classify determines the kind of a descriptor. ModuleFactory is checked
// first, so a descriptor implementing both contracts is a full module.
func Classify(d Descriptor) DescriptorKind {
	switch d.(type) {
	case ModuleFactory:
		return KindModule
	case ResourceType:
		return KindResourceType
	default:
		return KindGeneric
	}
}
