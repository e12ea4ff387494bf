package model

// EndpointSource records how an endpoint was chosen.
type EndpointSource int

const (
	SourceRegistry EndpointSource = iota
	SourceOverride
)

func (s EndpointSource) String() string {
	switch s {
	case SourceOverride:
		return "override"
	case SourceRegistry:
		return "registry"
	default:
		return "unknown"
	}
}

// ResolvedEndpoint is the LCD base URL currently believed usable.
type ResolvedEndpoint struct {
	BaseURL string
	Source  EndpointSource
}
