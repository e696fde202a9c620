// Package ui defines what the game needs from a user interface and ships a
// line-oriented console implementation for headless use.
package ui

import (
	"worldsmith.dev/internal/input"
	"worldsmith.dev/internal/protocol"
	"worldsmith.dev/internal/resource"
)

// Hooks are the user intents a UI reports. Nil hooks are skipped.
type Hooks struct {
	OnPlayerMessageEntry   func(message string)
	OnToolChange           func(tool input.Tool)
	OnPrefabSelect         func(prefabID string)
	OnResourceUpload       func(files []resource.File, resourceID string)
	OnResourceDelete       func(resourceID string)
	OnScriptRun            func(resourceID, args string, entityID *string)
	OnResourceInfoModify   func(resourceID, property, value string)
	OnComponentInfoModify  func(componentID, property, value string)
	OnComponentEnableState func(componentID string, enabled bool)
	OnComponentDelete      func(componentID string)
}

// UI is driven from the loop goroutine.
type UI interface {
	AddChatMessage(message string)
	SetResourceList(resources []protocol.Resource)
	SetEntityData(components []protocol.ComponentInfo, entityID string)
	Inspect(entityID *string)
	Render()
	SetHooks(Hooks)
}
