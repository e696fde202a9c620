// Package game wires the client together: network, loop, input, renderer,
// UI and resource transfer all meet here through delegates and hooks.
package game

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"time"

	"golang.org/x/time/rate"

	"worldsmith.dev/internal/config"
	"worldsmith.dev/internal/input"
	"worldsmith.dev/internal/loop"
	"worldsmith.dev/internal/network"
	"worldsmith.dev/internal/persistence/indexdb"
	"worldsmith.dev/internal/protocol"
	"worldsmith.dev/internal/render"
	"worldsmith.dev/internal/resource"
	"worldsmith.dev/internal/ui"
)

// SessionRecorder is told about every connection change.
type SessionRecorder interface {
	RecordSession(indexdb.SessionEvent)
}

// flusher is implemented by recorders that buffer frames; the game flushes
// them once per tick.
type flusher interface {
	Flush() error
}

type Options struct {
	Config    config.Config
	Logger    *log.Logger
	Transport network.Transport
	UI        ui.UI

	// Optional.
	TextureLoader render.Loader
	Recorder      network.Recorder
	Observer      network.Observer
	Sessions      SessionRecorder
	Now           func() time.Time
	// StatsEvery logs network stats every so often; zero disables.
	StatsEvery time.Duration
}

type Game struct {
	cfg config.Config
	log *log.Logger
	now func() time.Time

	loop     *loop.Loop
	net      *network.System
	input    *input.Handler
	renderer *render.Table
	ui       ui.UI
	transfer *resource.Transfer
	sessions SessionRecorder
	frames   flusher

	chatLim *rate.Limiter

	statsEvery time.Duration
	lastStats  time.Time
}

func New(opts Options) (*Game, error) {
	if opts.Transport == nil {
		return nil, errors.New("game: nil transport")
	}
	if opts.UI == nil {
		return nil, errors.New("game: nil ui")
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard, "", 0)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	cfg := opts.Config

	client, err := resource.NewClient(resource.ClientConfig{
		BaseURL:     cfg.ResourceAPI.URL,
		HTTPTimeout: cfg.ResourceAPI.HTTPTimeout(),
	})
	if err != nil {
		return nil, err
	}

	g := &Game{
		cfg:        cfg,
		log:        opts.Logger,
		now:        opts.Now,
		input:      input.NewHandler(),
		ui:         opts.UI,
		sessions:   opts.Sessions,
		statsEvery: opts.StatsEvery,
	}
	if cfg.Chat.MessagesPerSecond > 0 {
		burst := cfg.Chat.Burst
		if burst <= 0 {
			burst = 1
		}
		g.chatLim = rate.NewLimiter(rate.Limit(cfg.Chat.MessagesPerSecond), burst)
	}

	g.loop = loop.New(cfg.Loop.TickRateHz, g.tick)
	g.net = network.New(network.Config{
		Address:  cfg.Server.Address,
		Tagged:   cfg.Wire.Tagged,
		Logger:   opts.Logger,
		Recorder: opts.Recorder,
		Observer: opts.Observer,
		Now:      opts.Now,
	}, opts.Transport, g.loop)

	if f, ok := opts.Recorder.(flusher); ok {
		g.frames = f
	}

	loader := opts.TextureLoader
	if loader == nil {
		loader = render.DirLoader{Root: cfg.Textures.Root}
	}
	g.renderer = render.NewTable(loader, g.loop, opts.Logger)

	g.transfer = resource.NewTransfer(resource.TransferConfig{
		TokenRequestsPerSecond: cfg.ResourceAPI.TokenRequestsPerSecond,
		TokenRequestBurst:      cfg.ResourceAPI.TokenRequestBurst,
		Logger:                 opts.Logger,
		Now:                    opts.Now,
	}, client, g.loop)

	g.hookupNetwork()
	g.hookupUI()
	g.hookupInput()
	g.hookupTransfer()
	return g, nil
}

func (g *Game) Loop() *loop.Loop               { return g.loop }
func (g *Game) Network() *network.System       { return g.net }
func (g *Game) Input() *input.Handler          { return g.input }
func (g *Game) Renderer() *render.Table        { return g.renderer }
func (g *Game) Transfer() *resource.Transfer   { return g.transfer }
func (g *Game) UI() ui.UI                      { return g.ui }
func (g *Game) Post(fn func())                 { g.loop.Post(fn) }
func (g *Game) queue(p protocol.Packet)        { g.net.Queue(protocol.EventOf(p)) }
func (g *Game) say(format string, args ...any) { g.ui.AddChatMessage(fmt.Sprintf(format, args...)) }

// Start connects to the configured authority and runs the loop until ctx
// is done. Connecting on startup stands in for a server browser.
func (g *Game) Start(ctx context.Context) error {
	g.loop.Post(func() {
		if err := g.net.Connect(ctx, ""); err != nil {
			g.log.Printf("connect: %v", err)
		}
	})
	err := g.loop.Run(ctx)
	g.Close()
	return err
}

// Close drops the connection and waits for background transfers.
func (g *Game) Close() {
	g.net.Disconnect()
	g.transfer.Close()
	g.renderer.Wait()
}

// Tick runs one game tick on the caller's goroutine.
func (g *Game) Tick(now time.Time) { g.loop.Step(now) }

func (g *Game) tick(now time.Time) {
	g.renderer.Update()
	g.ui.Render()
	if g.net.Connected() {
		if err := g.net.SendMessages(); err != nil {
			g.log.Printf("send: %v", err)
		}
	}
	if g.frames != nil {
		if err := g.frames.Flush(); err != nil {
			g.log.Printf("flush frames: %v", err)
		}
	}
	if g.statsEvery > 0 && now.Sub(g.lastStats) >= g.statsEvery {
		g.lastStats = now
		ls := g.loop.Stats()
		g.log.Printf("net %s; loop ticks=%d skipped=%d; render %s", g.net.Stats(), ls.Ticks, ls.Skipped, g.renderer.Stats())
	}
}

func (g *Game) recordSession(event, reason string) {
	if g.sessions == nil {
		return
	}
	g.sessions.RecordSession(indexdb.SessionEvent{At: g.now(), Address: g.net.Address(), Event: event, Reason: reason})
}

func (g *Game) hookupNetwork() {
	h := g.net.NetEventHandler()
	h.AddConnectionDelegate(func(p protocol.ServerConnectionPacket) {
		g.log.Printf("connected to server %s", p.Address)
		g.say("Connected to server.")
		g.recordSession("connected", "")
	})
	h.AddDisconnectionDelegate(func(p protocol.ServerDisconnectionPacket) {
		g.log.Printf("disconnected from server: %s", p.Reason)
		g.say("Disconnected from server.")
		g.recordSession("disconnected", p.Reason)
	})
	h.AddChatMessageDelegate(func(p protocol.ServerChatMessagePacket) {
		g.log.Printf("received message: %s", p.Message)
		g.ui.AddChatMessage(p.Message)
	})
	h.AddDisplayDelegate(func(p protocol.ServerDisplayPacket) {
		for _, ro := range p.DisplayPackage {
			g.renderer.UpdateRenderObject(ro)
		}
		g.input.UpdateClickableEntities(p.DisplayPackage)
	})
	h.AddTokenDelegate(func(p protocol.ServerTokenPacket) {
		if p.TokenType == protocol.TokenFileUpload || p.TokenType == protocol.TokenFileDelete {
			g.transfer.SupplyToken(p.Token, p.TokenType, p.RequestID)
		}
	})
	h.AddResourceListingDelegate(func(p protocol.ServerResourceListingPacket) {
		g.ui.SetResourceList(p.Resources)
	})
	h.AddEntityInspectListingDelegate(func(p protocol.ServerEntityInspectionListingPacket) {
		g.ui.SetEntityData(p.Components, p.EntityID)
	})
}

func (g *Game) hookupUI() {
	g.ui.SetHooks(ui.Hooks{
		OnPlayerMessageEntry: func(message string) {
			if g.chatLim != nil && !g.chatLim.AllowN(g.now(), 1) {
				g.say("(slow down) message not sent: %s", message)
				return
			}
			g.log.Printf("sent message: %s", message)
			g.queue(protocol.ClientChatMessagePacket{Message: message})
		},
		OnToolChange: func(t input.Tool) {
			g.input.SetTool(t)
		},
		OnPrefabSelect: func(prefabID string) {
			g.input.SetPrefab(prefabID)
		},
		OnResourceUpload: func(files []resource.File, resourceID string) {
			if _, err := g.transfer.Send(files, resourceID); err != nil {
				g.say("upload: %v", err)
			}
		},
		OnResourceDelete: func(resourceID string) {
			if _, err := g.transfer.Delete(resourceID); err != nil {
				g.say("delete: %v", err)
			}
		},
		OnScriptRun: func(resourceID, args string, entityID *string) {
			g.queue(protocol.ClientExecuteScriptPacket{ResourceID: resourceID, Args: args, EntityID: entityID})
		},
		OnResourceInfoModify: func(resourceID, property, value string) {
			g.queue(protocol.ClientModifyMetadataPacket{ResourceID: resourceID, Property: property, Value: value})
		},
		OnComponentInfoModify: func(componentID, property, value string) {
			g.queue(protocol.ClientModifyComponentMetaPacket{ComponentID: componentID, Property: property, Value: value})
		},
		OnComponentEnableState: func(componentID string, enabled bool) {
			g.queue(protocol.ClientSetComponentEnableStatePacket{ComponentID: componentID, EnableState: enabled})
		},
		OnComponentDelete: func(componentID string) {
			g.queue(protocol.ClientRemoveComponentPacket{ComponentID: componentID})
		},
	})
}

func (g *Game) hookupInput() {
	key := func(ev input.KeyEvent) {
		g.queue(protocol.ClientKeyboardInputPacket{Key: ev.Key, State: int(ev.State), Device: int(ev.Device)})
	}
	g.input.OnKeyPress = key
	g.input.OnKeyRelease = key
	g.input.OnPlace = func(prefabID string, x, y float64) {
		g.queue(protocol.ClientEntityCreationPacket{PrefabID: prefabID, X: x, Y: y})
	}
	g.input.OnErase = func(id string) {
		g.queue(protocol.ClientEntityDeletionPacket{ID: id})
	}
	g.input.OnEdit = func(id *string) {
		g.queue(protocol.ClientEntityInspectionPacket{ID: id})
		g.ui.Inspect(id)
	}
}

func (g *Game) hookupTransfer() {
	g.transfer.OnTokenRequest = func(tokenType protocol.TokenType, requestID string) {
		g.queue(protocol.ClientTokenRequestPacket{TokenType: tokenType, RequestID: requestID})
	}
	g.transfer.OnComplete = func(r resource.Result) {
		if r.Err != nil {
			g.say("%s failed: %v", r.Op, r.Err)
			return
		}
		g.say("%s done", r.Op)
	}
}
