package protocol

// ChatMessage (client -> authority)
type ClientChatMessagePacket struct {
	Message string `json:"message"`
}

// EntityCreation: place prefabID at world position (x, y).
type ClientEntityCreationPacket struct {
	PrefabID string  `json:"prefabID"`
	X        float64 `json:"x"`
	Y        float64 `json:"y"`
}

type ClientEntityDeletionPacket struct {
	ID string `json:"id"`
}

// EntityInspection: a nil ID ends the current inspection.
type ClientEntityInspectionPacket struct {
	ID *string `json:"id,omitempty"`
}

// Input: raw keyboard state change.
type ClientKeyboardInputPacket struct {
	Key    string `json:"key"`
	State  int    `json:"state"`
	Device int    `json:"device"`
}

type ClientExecuteScriptPacket struct {
	ResourceID string  `json:"resourceID"`
	Args       string  `json:"args"`
	EntityID   *string `json:"entityID,omitempty"`
}

type ClientModifyMetadataPacket struct {
	ResourceID string `json:"resourceID"`
	Property   string `json:"property"`
	Value      string `json:"value"`
}

type ClientModifyComponentMetaPacket struct {
	ComponentID string `json:"componentID"`
	Property    string `json:"property"`
	Value       string `json:"value"`
}

type ClientSetComponentEnableStatePacket struct {
	ComponentID string `json:"componentID"`
	EnableState bool   `json:"enableState"`
}

type ClientRemoveComponentPacket struct {
	ComponentID string `json:"componentID"`
}

// TokenRequest asks the authority for a single-use token. RequestID is
// echoed back by authorities that support correlation.
type ClientTokenRequestPacket struct {
	TokenType TokenType `json:"tokenType"`
	RequestID string    `json:"requestID,omitempty"`
}

func (ClientChatMessagePacket) Kind() Kind             { return KindChatMessage }
func (ClientEntityCreationPacket) Kind() Kind          { return KindEntityCreation }
func (ClientEntityDeletionPacket) Kind() Kind          { return KindEntityDeletion }
func (ClientEntityInspectionPacket) Kind() Kind        { return KindEntityInspection }
func (ClientKeyboardInputPacket) Kind() Kind           { return KindInput }
func (ClientExecuteScriptPacket) Kind() Kind           { return KindExecuteScript }
func (ClientModifyMetadataPacket) Kind() Kind          { return KindModifyMetadata }
func (ClientModifyComponentMetaPacket) Kind() Kind     { return KindModifyComponentMeta }
func (ClientSetComponentEnableStatePacket) Kind() Kind { return KindSetComponentEnableState }
func (ClientRemoveComponentPacket) Kind() Kind         { return KindRemoveComponent }
func (ClientTokenRequestPacket) Kind() Kind            { return KindTokenRequest }

func (p ClientChatMessagePacket) Serialize() any             { return p }
func (p ClientEntityCreationPacket) Serialize() any          { return p }
func (p ClientEntityDeletionPacket) Serialize() any          { return p }
func (p ClientEntityInspectionPacket) Serialize() any        { return p }
func (p ClientKeyboardInputPacket) Serialize() any           { return p }
func (p ClientExecuteScriptPacket) Serialize() any           { return p }
func (p ClientModifyMetadataPacket) Serialize() any          { return p }
func (p ClientModifyComponentMetaPacket) Serialize() any     { return p }
func (p ClientSetComponentEnableStatePacket) Serialize() any { return p }
func (p ClientRemoveComponentPacket) Serialize() any         { return p }
func (p ClientTokenRequestPacket) Serialize() any            { return p }

func (ClientChatMessagePacket) schemaName() string             { return "client_chat_message" }
func (ClientEntityCreationPacket) schemaName() string          { return "client_entity_creation" }
func (ClientEntityDeletionPacket) schemaName() string          { return "client_entity_deletion" }
func (ClientEntityInspectionPacket) schemaName() string        { return "client_entity_inspection" }
func (ClientKeyboardInputPacket) schemaName() string           { return "client_keyboard_input" }
func (ClientExecuteScriptPacket) schemaName() string           { return "client_execute_script" }
func (ClientModifyMetadataPacket) schemaName() string          { return "client_modify_metadata" }
func (ClientModifyComponentMetaPacket) schemaName() string     { return "client_modify_component_meta" }
func (ClientSetComponentEnableStatePacket) schemaName() string { return "client_set_component_enable_state" }
func (ClientRemoveComponentPacket) schemaName() string         { return "client_remove_component" }
func (ClientTokenRequestPacket) schemaName() string            { return "client_token_request" }

// ClientVariants is the decode priority order for frames sent by clients.
// Variants with more required fields come first, so a frame that satisfies
// a richer shape is never claimed by a looser one. EntityInspection has no
// required field and matches any object, so it is last.
func ClientVariants() []Variant {
	return []Variant{
		VariantOf[ClientSetComponentEnableStatePacket](),
		VariantOf[ClientModifyComponentMetaPacket](),
		VariantOf[ClientModifyMetadataPacket](),
		VariantOf[ClientEntityCreationPacket](),
		VariantOf[ClientKeyboardInputPacket](),
		VariantOf[ClientExecuteScriptPacket](),
		VariantOf[ClientTokenRequestPacket](),
		VariantOf[ClientRemoveComponentPacket](),
		VariantOf[ClientChatMessagePacket](),
		VariantOf[ClientEntityDeletionPacket](),
		VariantOf[ClientEntityInspectionPacket](),
	}
}
