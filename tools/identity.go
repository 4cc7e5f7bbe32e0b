package tools

import (
	"encoding/json"

	"github.com/clawlet/broker/brokererr"
	"github.com/clawlet/broker/wallet"
)

func opGetAgentIdentity(c *Catalog, _ json.RawMessage) (interface{}, error) {
	return c.Manager.GetAgentIdentity()
}

// SetAgentIdentityInput is the `setAgentIdentity` operation's input; name
// is required (spec.md §3).
type SetAgentIdentityInput struct {
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	AgentID     *string `json:"agentId,omitempty"`
	Registry    *string `json:"registry,omitempty"`
	MetadataURI *string `json:"metadataUri,omitempty"`
}

func opSetAgentIdentity(c *Catalog, input json.RawMessage) (interface{}, error) {
	if err := c.requireWrite(); err != nil {
		return nil, err
	}
	var in SetAgentIdentityInput
	if err := decode(input, &in); err != nil {
		return nil, err
	}
	if in.Name == "" {
		return nil, brokererr.New(brokererr.KindValidation, "agent identity requires a name")
	}
	return c.Manager.SetAgentIdentity(wallet.IdentityPatch{
		Name: in.Name, Description: in.Description,
		AgentID: in.AgentID, Registry: in.Registry, MetadataURI: in.MetadataURI,
	})
}
