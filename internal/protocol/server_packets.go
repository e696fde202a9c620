package protocol

// ChatMessage (authority -> client)
type ServerChatMessagePacket struct {
	Message string `json:"message"`
}

// Connection and Disconnection are synthesized by the network system on
// transport lifecycle changes; the authority never sends them.
type ServerConnectionPacket struct {
	Address string `json:"address,omitempty"`
}

type ServerDisconnectionPacket struct {
	Reason string `json:"reason,omitempty"`
}

// Display carries render state for every entity that changed.
type ServerDisplayPacket struct {
	DisplayPackage []RenderObject `json:"displayPackage"`
}

type ServerTokenPacket struct {
	Token     string    `json:"token"`
	TokenType TokenType `json:"tokenType"`
	RequestID string    `json:"requestID,omitempty"`
}

type ServerResourceListingPacket struct {
	Resources []Resource `json:"resources"`
}

type ServerEntityInspectionListingPacket struct {
	EntityID   string          `json:"entityID"`
	Components []ComponentInfo `json:"components"`
}

func (ServerChatMessagePacket) Kind() Kind             { return KindChatMessage }
func (ServerConnectionPacket) Kind() Kind              { return KindConnection }
func (ServerDisconnectionPacket) Kind() Kind           { return KindDisconnection }
func (ServerDisplayPacket) Kind() Kind                 { return KindDisplay }
func (ServerTokenPacket) Kind() Kind                   { return KindToken }
func (ServerResourceListingPacket) Kind() Kind         { return KindResourceListing }
func (ServerEntityInspectionListingPacket) Kind() Kind { return KindEntityInspectionListing }

func (p ServerChatMessagePacket) Serialize() any   { return p }
func (p ServerConnectionPacket) Serialize() any    { return p }
func (p ServerDisconnectionPacket) Serialize() any { return p }
func (p ServerTokenPacket) Serialize() any         { return p }

// List-carrying variants never put null on the wire: a nil slice becomes [].
func (p ServerDisplayPacket) Serialize() any {
	if p.DisplayPackage == nil {
		p.DisplayPackage = []RenderObject{}
	}
	return p
}

func (p ServerResourceListingPacket) Serialize() any {
	if p.Resources == nil {
		p.Resources = []Resource{}
	}
	return p
}

func (p ServerEntityInspectionListingPacket) Serialize() any {
	comps := make([]ComponentInfo, len(p.Components))
	for i, c := range p.Components {
		if c.Options == nil {
			c.Options = []ComponentOption{}
		}
		comps[i] = c
	}
	p.Components = comps
	return p
}

func (ServerChatMessagePacket) schemaName() string             { return "server_chat_message" }
func (ServerConnectionPacket) schemaName() string              { return "server_connection" }
func (ServerDisconnectionPacket) schemaName() string           { return "server_disconnection" }
func (ServerDisplayPacket) schemaName() string                 { return "server_display" }
func (ServerTokenPacket) schemaName() string                   { return "server_token" }
func (ServerResourceListingPacket) schemaName() string         { return "server_resource_listing" }
func (ServerEntityInspectionListingPacket) schemaName() string { return "server_entity_inspection_listing" }

// ServerVariants is the decode priority order for frames arriving at the
// client. Connection/Disconnection are absent: they are local lifecycle
// packets and their empty shape would match every frame.
func ServerVariants() []Variant {
	return []Variant{
		VariantOf[ServerTokenPacket](),
		VariantOf[ServerEntityInspectionListingPacket](),
		VariantOf[ServerResourceListingPacket](),
		VariantOf[ServerDisplayPacket](),
		VariantOf[ServerChatMessagePacket](),
	}
}

type Vec2 struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type Rect struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// RenderObject is the last known render/geometry snapshot of one entity.
type RenderObject struct {
	ID               string  `json:"id"`
	Deleted          bool    `json:"deleted"`
	Position         Vec2    `json:"position"`
	Depth            float64 `json:"depth"`
	Scale            Vec2    `json:"scale"`
	Texture          string  `json:"texture"`
	TextureSubregion Rect    `json:"textureSubregion"`
}

type ResourceType string

const (
	ResourceScript  ResourceType = "script"
	ResourceImage   ResourceType = "image"
	ResourceSound   ResourceType = "sound"
	ResourcePrefab  ResourceType = "prefab"
	ResourceUnknown ResourceType = "unknown"
)

type Resource struct {
	ID          string       `json:"id"`
	Type        ResourceType `json:"type"`
	Name        string       `json:"name"`
	Creator     string       `json:"creator"`
	Description string       `json:"description"`
	Time        float64      `json:"time"`
	Icon        string       `json:"icon"`
}

type ComponentOption struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Value string `json:"value"`
}

type ComponentInfo struct {
	ID          string            `json:"id"`
	Name        string            `json:"name"`
	Creator     string            `json:"creator"`
	Description string            `json:"description"`
	Time        float64           `json:"time"`
	Icon        string            `json:"icon"`
	Options     []ComponentOption `json:"options"`
}
