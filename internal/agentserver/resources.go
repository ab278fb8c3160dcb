package agentserver

import "github.com/OutfinityResearch/ploinky-sub006/internal/mcprpc"

// defaultResources are the static resources this demo agent exposes.
// Real agents would back this with whatever document store they own;
// this runtime has none, so it advertises a single readme.
func defaultResources() []mcprpc.Resource {
	return []mcprpc.Resource{
		{
			URI:         "ploinky://agent/readme",
			Name:        "readme",
			Description: "Describes this agent's available tools.",
			MimeType:    "text/plain",
		},
	}
}
